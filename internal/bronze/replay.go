package bronze

import (
	"context"
	"errors"
	"fmt"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// ErrStagingNotEmpty indicates the staging table already holds rows for the
// source being replayed; re-appending snapshots over them would duplicate
// every row.
var ErrStagingNotEmpty = errors.New("staging table not empty")

// Store is the slice of the staging contract replay needs.
type Store interface {
	LatestDates(ctx context.Context, schema catalog.Schema) (map[string]catalog.Date, error)
	Append(ctx context.Context, schema catalog.Schema, batch *catalog.Batch) (int, error)
}

// Replay re-appends every snapshot for a source to the staging store in
// ingestion order, and returns the total rows written. Because snapshots are
// immutable and each captures exactly one run's committed delta, replaying
// them in order rebuilds the staging table from empty. The source's staging
// table must hold no rows yet; otherwise replay fails with
// ErrStagingNotEmpty instead of duplicating data.
func (r *Reader) Replay(ctx context.Context, store Store, source string) (int, error) {
	schema, err := catalog.Lookup(source)
	if err != nil {
		return 0, err
	}

	watermarks, err := store.LatestDates(ctx, schema)
	if err != nil {
		return 0, err
	}

	if len(watermarks) > 0 {
		return 0, fmt.Errorf("source %s has %d staged identifier(s): %w", source, len(watermarks), ErrStagingNotEmpty)
	}

	snapshots, err := r.List(source)
	if err != nil {
		return 0, err
	}

	total := 0

	for _, snapshot := range snapshots {
		batch, err := r.Read(snapshot.Path)
		if err != nil {
			return total, err
		}

		written, err := store.Append(ctx, schema, &batch)
		if err != nil {
			return total, fmt.Errorf("replaying %s: %w", snapshot.Path, err)
		}

		total += written
	}

	return total, nil
}
