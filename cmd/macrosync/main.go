// Package main provides the macrosync pipeline runner.
//
// One invocation executes one synchronization run: every enabled source is
// fetched, validated, watermark-filtered and committed to staging with a
// bronze snapshot, then the run summary is printed.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/macrosync-io/macrosync/internal/bronze"
	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/config"
	"github.com/macrosync-io/macrosync/internal/pipeline"
	"github.com/macrosync-io/macrosync/internal/sources"
	"github.com/macrosync-io/macrosync/internal/staging"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "macrosync"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel(config.EnvLogLevel, slog.LevelInfo),
	}))

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting macrosync pipeline",
		slog.String("service", name),
		slog.String("version", version),
		slog.Any("config", cfg),
	)

	store, err := staging.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to open staging database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = store.Close() // Ensure connection closes on normal shutdown
	}()

	ctx := context.Background()

	symbols, err := store.LoadSymbols(ctx)
	if err != nil {
		logger.Error("Failed to load symbols",
			slog.String("error", err.Error()),
			slog.String("hint", "run `stagectl init` and populate the symbols table first"),
		)

		_ = store.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	registry, err := sources.BuildRegistry(cfg, &http.Client{Timeout: cfg.HTTPTimeout}, logger)
	if err != nil {
		logger.Error("Failed to build source registry", slog.String("error", err.Error()))

		_ = store.Close()
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(
		registry,
		store,
		bronze.NewExporter(cfg.BronzeDir, logger),
		catalog.NewValidator(logger),
		logger,
		pipeline.WithSymbols(toPipelineSymbols(symbols)),
		pipeline.WithIncremental(cfg.Incremental),
		pipeline.WithDefaultStart(func(source string) catalog.Date {
			return catalog.MustParseDate(cfg.StartDate(source))
		}),
	)

	summary, err := orchestrator.Run(ctx, cfg.Sources)
	if err != nil {
		logger.Error("Pipeline run failed", slog.String("error", err.Error()))

		_ = store.Close()
		os.Exit(1)
	}

	summary.Log(logger)
	logger.Info("macrosync pipeline stopped")
}

// toPipelineSymbols adapts staging symbol rows to the orchestrator's type.
func toPipelineSymbols(rows []staging.SymbolRow) []pipeline.Symbol {
	symbols := make([]pipeline.Symbol, len(rows))
	for i, r := range rows {
		symbols[i] = pipeline.Symbol{Identifier: r.Symbol, Source: r.Source, SeriesStart: r.SeriesStart}
	}

	return symbols
}
