package pipeline

import (
	"log/slog"
	"strings"
	"time"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/sources"
)

// Symbol is one row of the identifier universe: an identifier, the source
// it belongs to, and its raw configured series start.
type Symbol struct {
	Identifier  string
	Source      string
	SeriesStart string
}

// symbolDateLayouts are the start-date spellings tolerated in the symbols
// catalog. Everything normalizes onto the ISO day.
var symbolDateLayouts = []string{"2006-01-02", "2006/01/02", "1/2/2006"}

// PrepareRequests partitions the symbol universe across identifier-driven
// sources and builds one fetch request per source: identifiers with a
// null or empty key are dropped with a warning, start dates normalize to
// ISO (malformed ones fall back to the source default, with a warning), and
// identifiers without a start inherit the source default.
func PrepareRequests(symbols []Symbol, defaultStart func(source string) catalog.Date, logger *slog.Logger) map[string]sources.Request {
	requests := map[string]sources.Request{}

	for _, symbol := range symbols {
		name := strings.ToLower(strings.TrimSpace(symbol.Source))

		schema, err := catalog.Lookup(name)
		if err != nil {
			logger.Warn("symbol references unknown source, dropped",
				slog.String("identifier", symbol.Identifier),
				slog.String("source", symbol.Source),
			)

			continue
		}

		if schema.Direct {
			// Direct sources fetch everything in one call; a symbols row
			// pointing at one is configuration noise.
			logger.Warn("symbol references direct source, dropped",
				slog.String("identifier", symbol.Identifier),
				slog.String("source", name),
			)

			continue
		}

		identifier := strings.TrimSpace(symbol.Identifier)
		if identifier == "" {
			logger.Warn("symbol with empty identifier dropped", slog.String("source", name))

			continue
		}

		req, ok := requests[name]
		if !ok {
			req = sources.Request{
				StartDates: map[string]catalog.Date{},
				Start:      defaultStart(name),
			}
		}

		req.Identifiers = append(req.Identifiers, identifier)

		if start, ok := parseSymbolDate(symbol.SeriesStart); ok {
			req.StartDates[identifier] = start
		} else if strings.TrimSpace(symbol.SeriesStart) != "" {
			logger.Warn("malformed series start, using source default",
				slog.String("identifier", identifier),
				slog.String("source", name),
				slog.String("series_start", symbol.SeriesStart),
			)
		}

		requests[name] = req
	}

	return requests
}

// parseSymbolDate normalizes a raw series start onto a calendar day.
func parseSymbolDate(raw string) (catalog.Date, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return catalog.Date{}, false
	}

	for _, layout := range symbolDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return catalog.DateOf(t), true
		}
	}

	return catalog.Date{}, false
}
