package sources

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/config"
	"github.com/macrosync-io/macrosync/internal/fetch"
)

// BuildRegistry constructs every enabled source with its own rate limiter
// and retry executor wired from configuration.
//
// Credentialed sources (fred, eia) are skipped with a warning when their
// credential is unset, unless the sources file enabled them explicitly, in
// which case the missing credential is a hard configuration error: an
// operator who asked for a source should not silently not get it.
func BuildRegistry(cfg *config.Config, client *http.Client, logger *slog.Logger) (map[string]Source, error) {
	registry := make(map[string]Source, len(catalog.Names()))

	for _, schema := range catalog.All() {
		enabled, explicit := cfg.SourceEnabled(schema.Name)
		if !enabled {
			logger.Info("source disabled by configuration", slog.String("source", schema.Name))

			continue
		}

		source, err := buildSource(cfg, schema, client, logger)
		if err != nil {
			if explicit {
				return nil, fmt.Errorf("source %s: %w", schema.Name, err)
			}

			logger.Warn("source skipped",
				slog.String("source", schema.Name),
				slog.String("reason", err.Error()),
			)

			continue
		}

		registry[schema.Name] = source
	}

	return registry, nil
}

func buildSource(cfg *config.Config, schema catalog.Schema, client *http.Client, logger *slog.Logger) (Source, error) {
	executor := newExecutor(cfg, schema.Name, logger)

	switch schema.Name {
	case "yahoo":
		return NewYahoo(client, executor, logger), nil
	case "fred":
		return NewFRED(client, executor, cfg.FredAPIKey, logger)
	case "eia":
		return NewEIA(client, executor, cfg.EIAToken, logger)
	case "bkr":
		return NewSpreadsheet(BKRSpec(), client, CSVWorkbook{}, logger), nil
	case "finra":
		return NewSpreadsheet(FINRASpec(), client, CSVWorkbook{}, logger), nil
	case "silverblatt":
		return NewSpreadsheet(SilverblattSpec(), client, CSVWorkbook{}, logger), nil
	case "usda":
		return NewSpreadsheet(USDASpec(), client, CSVWorkbook{}, logger), nil
	case "occ":
		return NewOCC(client, executor, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownSource, schema.Name)
	}
}

// newExecutor wires one source's rate limiter and retry policy.
func newExecutor(cfg *config.Config, source string, logger *slog.Logger) *fetch.Executor {
	limit, window := cfg.RateLimit(source)
	limiter := fetch.NewLimiter(limit, window)

	return fetch.NewExecutor(limiter, cfg.MaxRetries, cfg.RetryBaseWait, logger)
}
