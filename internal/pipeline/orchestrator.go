package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/sources"
)

type (
	// Store is the slice of the staging contract the orchestrator consumes:
	// watermark reads and delta appends.
	Store interface {
		LatestDates(ctx context.Context, schema catalog.Schema) (map[string]catalog.Date, error)
		Append(ctx context.Context, schema catalog.Schema, batch *catalog.Batch) (int, error)
	}

	// Exporter writes the bronze snapshot for a committed delta.
	Exporter interface {
		Export(ctx context.Context, batch *catalog.Batch) (string, error)
	}

	// SourceResult is one source's outcome within a run.
	SourceResult struct {
		Source     string
		Stage      Stage
		Fetched    int
		Kept       int
		Written    int
		BronzePath string
		Err        error
		Elapsed    time.Duration
	}

	// Summary aggregates a whole run.
	Summary struct {
		RunID           string
		Results         []SourceResult
		TotalRows       int
		SourcesWithData int
		Duration        time.Duration
	}

	// Orchestrator runs the synchronization pipeline across the enabled
	// sources, strictly sequentially and fail-fast.
	Orchestrator struct {
		sources     map[string]sources.Source
		store       Store
		exporter    Exporter
		validator   *catalog.Validator
		symbols     []Symbol
		incremental bool
		startFor    func(source string) catalog.Date
		logger      *slog.Logger
		now         func() time.Time
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

// WithSymbols supplies the identifier universe partitioned across the
// identifier-driven sources.
func WithSymbols(symbols []Symbol) Option {
	return func(o *Orchestrator) {
		o.symbols = symbols
	}
}

// WithIncremental selects incremental (watermark-filtered) or full-refresh
// loading. Default is incremental.
func WithIncremental(incremental bool) Option {
	return func(o *Orchestrator) {
		o.incremental = incremental
	}
}

// WithDefaultStart supplies the per-source default series start used for
// identifiers without their own.
func WithDefaultStart(startFor func(source string) catalog.Date) Option {
	return func(o *Orchestrator) {
		o.startFor = startFor
	}
}

// NewOrchestrator wires a pipeline over the given source registry, staging
// store and bronze exporter.
func NewOrchestrator(registry map[string]sources.Source, store Store, exporter Exporter, validator *catalog.Validator, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sources:     registry,
		store:       store,
		exporter:    exporter,
		validator:   validator,
		incremental: true,
		startFor: func(string) catalog.Date {
			return catalog.MustParseDate("1900-01-01")
		},
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run executes one pipeline run over the allowed sources (all enabled
// sources when allow is empty; matching is case-insensitive). The first
// hard error aborts the run with the failing source's name attached;
// already-committed staging writes from earlier sources stay committed.
func (o *Orchestrator) Run(ctx context.Context, allow []string) (Summary, error) {
	started := o.now()

	summary := Summary{RunID: uuid.NewString()}

	selected, err := o.selectSources(allow)
	if err != nil {
		return summary, err
	}

	o.logger.Info("pipeline run starting",
		slog.String("run_id", summary.RunID),
		slog.Int("sources", len(selected)),
		slog.Bool("incremental", o.incremental),
	)

	requests := PrepareRequests(o.symbols, o.startFor, o.logger)

	for _, name := range selected {
		result := o.runSource(ctx, name, requests)
		summary.Results = append(summary.Results, result)

		if result.Err != nil {
			summary.Duration = o.now().Sub(started)

			return summary, fmt.Errorf("source %s: %w", name, result.Err)
		}

		summary.TotalRows += result.Written
		if result.Written > 0 {
			summary.SourcesWithData++
		}
	}

	summary.Duration = o.now().Sub(started)

	return summary, nil
}

// selectSources resolves the allow-list against the registry, preserving
// catalog order. An allow-list entry naming no enabled source is a
// configuration error raised before any fetch.
func (o *Orchestrator) selectSources(allow []string) ([]string, error) {
	allowed := map[string]bool{}
	for _, name := range allow {
		allowed[strings.ToLower(strings.TrimSpace(name))] = false
	}

	var selected []string

	for _, name := range catalog.Names() {
		if _, ok := o.sources[name]; !ok {
			continue
		}

		if len(allowed) > 0 {
			if _, ok := allowed[name]; !ok {
				continue
			}

			allowed[name] = true
		}

		selected = append(selected, name)
	}

	for name, matched := range allowed {
		if !matched {
			return nil, fmt.Errorf("allowed source %q: %w (or source not enabled)", name, catalog.ErrUnknownSource)
		}
	}

	return selected, nil
}

// runSource drives one source through fetch, validate, filter and commit.
func (o *Orchestrator) runSource(ctx context.Context, name string, requests map[string]sources.Request) SourceResult {
	started := o.now()

	result := SourceResult{Source: name, Stage: StagePending}

	fail := func(err error) SourceResult {
		o.setStage(&result, StageFailed)
		result.Err = err
		result.Elapsed = o.now().Sub(started)

		return result
	}

	schema, err := catalog.Lookup(name)
	if err != nil {
		return fail(err)
	}

	src := o.sources[name]

	req, ok := requests[name]
	if !ok {
		req = sources.Request{Start: o.startFor(name)}
	}

	if !schema.Direct && len(req.Identifiers) == 0 {
		o.logger.Warn("no identifiers configured for source, skipping",
			slog.String("source", name),
		)

		o.setStage(&result, StageFetching)
		o.setStage(&result, StageValidating)
		o.setStage(&result, StageFiltering)
		o.setStage(&result, StageDone)
		result.Elapsed = o.now().Sub(started)

		return result
	}

	o.setStage(&result, StageFetching)

	batch, err := src.Fetch(ctx, req)
	if err != nil {
		return fail(err)
	}

	result.Fetched = batch.Len()

	o.setStage(&result, StageValidating)

	if err := o.validator.Validate(&batch); err != nil {
		return fail(err)
	}

	o.setStage(&result, StageFiltering)

	delta := batch

	if o.incremental {
		watermarks, err := o.store.LatestDates(ctx, schema)
		if err != nil {
			return fail(err)
		}

		delta = FilterNew(&batch, watermarks, o.logger)
	}

	result.Kept = delta.Len()

	if delta.Empty() {
		o.logger.Info("source already up to date",
			slog.String("source", name),
			slog.Int("fetched", result.Fetched),
		)

		o.setStage(&result, StageDone)
		result.Elapsed = o.now().Sub(started)

		return result
	}

	o.setStage(&result, StageCommitting)

	// Staging first and hard, bronze second and best-effort: the staging
	// table is the authoritative record, the snapshot is a replay and
	// audit convenience.
	written, err := o.store.Append(ctx, schema, &delta)
	if err != nil {
		return fail(err)
	}

	result.Written = written

	path, err := o.exporter.Export(ctx, &delta)
	if err != nil {
		o.logger.Warn("bronze export failed, staging commit stands",
			slog.String("source", name),
			slog.String("error", err.Error()),
		)
	} else {
		result.BronzePath = path
	}

	o.setStage(&result, StageDone)
	result.Elapsed = o.now().Sub(started)

	o.logger.Info("source synchronized",
		slog.String("source", name),
		slog.Int("fetched", result.Fetched),
		slog.Int("kept", result.Kept),
		slog.Int("written", result.Written),
		slog.Duration("elapsed", result.Elapsed),
	)

	return result
}

// setStage advances a source's stage, logging the transition. An illegal
// transition indicates an orchestrator bug and is logged loudly rather than
// hidden.
func (o *Orchestrator) setStage(result *SourceResult, next Stage) {
	if !result.Stage.CanTransitionTo(next) {
		o.logger.Error("illegal stage transition",
			slog.String("source", result.Source),
			slog.String("from", result.Stage.String()),
			slog.String("to", next.String()),
		)
	}

	o.logger.Debug("stage transition",
		slog.String("source", result.Source),
		slog.String("from", result.Stage.String()),
		slog.String("to", next.String()),
	)

	result.Stage = next
}

// Log emits the run summary in the structured form the runner prints at the
// end of a successful run.
func (s *Summary) Log(logger *slog.Logger) {
	logger.Info("pipeline run complete",
		slog.String("run_id", s.RunID),
		slog.Int("total_new_rows", s.TotalRows),
		slog.Int("sources_with_data", s.SourcesWithData),
		slog.Int("sources_run", len(s.Results)),
		slog.Duration("duration", s.Duration),
	)

	for _, r := range s.Results {
		logger.Info("source result",
			slog.String("run_id", s.RunID),
			slog.String("source", r.Source),
			slog.String("stage", r.Stage.String()),
			slog.Int("fetched", r.Fetched),
			slog.Int("kept", r.Kept),
			slog.Int("written", r.Written),
			slog.String("bronze_path", r.BronzePath),
			slog.Duration("elapsed", r.Elapsed),
		)
	}
}
