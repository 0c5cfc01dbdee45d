// Package main provides the staging database CLI tool for macrosync.
//
// It initializes the staging schema and inspects watermarks and gaps without
// running the pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/config"
	"github.com/macrosync-io/macrosync/internal/staging"
)

// Version information
const (
	version = "1.0.0-dev"
	name    = "stagectl"
)

func main() {
	var (
		configHelp  = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *configHelp || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	db, err := staging.Open(config.GetEnvStr(config.EnvDBPath, "macrosync.duckdb"), logger)
	if err != nil {
		log.Fatalf("Failed to open staging database: %v", err)
	}
	defer db.Close()

	if err := executeCommand(flag.Args(), db); err != nil {
		log.Fatalf("stagectl failed: %v", err)
	}
}

// executeCommand runs the specified staging command
func executeCommand(args []string, db *staging.DB) error {
	ctx := context.Background()
	command := args[0]

	switch command {
	case "init":
		if err := db.InitSchema(ctx); err != nil {
			return err
		}

		fmt.Println("staging schema initialized")

		return nil
	case "watermarks":
		source := ""
		if len(args) > 1 {
			source = args[1]
		}

		return printWatermarks(ctx, db, source)
	case "gaps":
		if len(args) < 2 {
			return fmt.Errorf("gaps requires a source name")
		}

		return printGaps(ctx, db, args[1], args[2:])
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printWatermarks lists the latest committed date per identifier, for one
// source or all of them.
func printWatermarks(ctx context.Context, db *staging.DB, source string) error {
	sources := catalog.Names()
	if source != "" {
		sources = []string{source}
	}

	for _, src := range sources {
		schema, err := catalog.Lookup(src)
		if err != nil {
			return err
		}

		watermarks, err := db.LatestDates(ctx, schema)
		if err != nil {
			return err
		}

		identifiers := make([]string, 0, len(watermarks))
		for identifier := range watermarks {
			identifiers = append(identifiers, identifier)
		}

		sort.Strings(identifiers)

		for _, identifier := range identifiers {
			fmt.Printf("%-12s %-30s %s\n", src, identifier, watermarks[identifier])
		}
	}

	return nil
}

// printGaps reports identifiers whose watermark trails the reference day by
// more than the staleness threshold.
func printGaps(ctx context.Context, db *staging.DB, source string, extra []string) error {
	flags := flag.NewFlagSet("gaps", flag.ContinueOnError)
	since := flags.String("since", "", "reference day, YYYY-MM-DD (default: today UTC)")
	maxStale := flags.Int("max-stale", 7, "allowed staleness in days")

	if err := flags.Parse(extra); err != nil {
		return err
	}

	reference := catalog.DateOf(time.Now().UTC())

	if *since != "" {
		parsed, err := catalog.ParseDate(*since)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}

		reference = parsed
	}

	schema, err := catalog.Lookup(source)
	if err != nil {
		return err
	}

	gaps, err := db.FindGaps(ctx, schema, reference, *maxStale)
	if err != nil {
		return err
	}

	if len(gaps) == 0 {
		fmt.Printf("no identifiers more than %d day(s) behind %s\n", *maxStale, reference)
		return nil
	}

	for _, g := range gaps {
		fmt.Printf("%-30s watermark %s  %d day(s) behind\n", g.Identifier, g.Watermark, g.DaysBehind)
	}

	return fmt.Errorf("%d stale identifier(s)", len(gaps))
}

// printUsage displays usage information
func printUsage() {
	fmt.Printf(`%s v%s - Staging Database Tool for macrosync

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    init                Create the symbols table and all staging tables
    watermarks [source] Show the latest committed date per identifier
    gaps <source> [--since YYYY-MM-DD] [--max-stale N]
                        Report identifiers lagging the reference day

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    MACROSYNC_DB_PATH  Staging DuckDB file
                       (default: macrosync.duckdb)

EXAMPLES:
    %s init                          # Create tables in a fresh database
    %s watermarks fred               # Latest date per FRED series
    %s gaps yahoo --max-stale 5      # Symbols more than 5 days stale
`, name, version, name, name, name, name)
}
