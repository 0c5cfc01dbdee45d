package staging

import (
	"context"
	"log/slog"
	"sort"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// Gap reports one identifier whose watermark lags the reference day by more
// than the allowed staleness.
type Gap struct {
	// Identifier is the lagging series or symbol.
	Identifier string

	// Watermark is its latest committed date.
	Watermark catalog.Date

	// DaysBehind is how far the watermark trails the reference day.
	DaysBehind int
}

// FindGaps compares every identifier's watermark against a reference day and
// reports those more than maxStale days behind, sorted worst first. Every
// source uses this one utility; there is no per-source gap heuristic.
func (db *DB) FindGaps(ctx context.Context, schema catalog.Schema, since catalog.Date, maxStale int) ([]Gap, error) {
	watermarks, err := db.LatestDates(ctx, schema)
	if err != nil {
		return nil, err
	}

	var gaps []Gap

	for identifier, latest := range watermarks {
		behind := catalog.DaysBetween(latest, since)
		if behind > maxStale {
			gaps = append(gaps, Gap{Identifier: identifier, Watermark: latest, DaysBehind: behind})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].DaysBehind != gaps[j].DaysBehind {
			return gaps[i].DaysBehind > gaps[j].DaysBehind
		}

		return gaps[i].Identifier < gaps[j].Identifier
	})

	if len(gaps) > 0 {
		db.logger.Warn("stale identifiers detected",
			slog.String("source", schema.Name),
			slog.Int("gaps", len(gaps)),
			slog.String("worst", gaps[0].Identifier),
			slog.Int("worst_days_behind", gaps[0].DaysBehind),
		)
	}

	return gaps, nil
}
