package pipeline

import (
	"log/slog"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// FilterNew computes the incremental delta of a batch against the watermark
// map: a row survives iff its identifier has no watermark, or its date is
// strictly greater than the identifier's watermark. Each identifier is
// judged independently, so identifiers at different historical depths
// advance on their own schedules.
//
// Policy for identifiers with no watermark: every fetched row passes. The
// fetch itself starts from the identifier's configured start date, so "no
// watermark" means "keep whatever the configured start produced", uniformly
// for every source.
//
// The input batch is never mutated.
func FilterNew(batch *catalog.Batch, watermarks map[string]catalog.Date, logger *slog.Logger) catalog.Batch {
	delta := catalog.Batch{
		Source:    batch.Source,
		Shape:     batch.Shape,
		FetchedAt: batch.FetchedAt,
	}

	if batch.Shape == catalog.ShapeOHLCV {
		for _, bar := range batch.Bars {
			if isNew(bar.Symbol, bar.Date, watermarks) {
				delta.Bars = append(delta.Bars, bar)
			}
		}
	} else {
		for _, p := range batch.Points {
			if isNew(p.Identifier, p.Date, watermarks) {
				delta.Points = append(delta.Points, p)
			}
		}
	}

	logger.Debug("incremental filter applied",
		slog.String("source", batch.Source),
		slog.Int("fetched", batch.Len()),
		slog.Int("kept", delta.Len()),
		slog.Int("watermarked_identifiers", len(watermarks)),
	)

	return delta
}

func isNew(identifier string, date catalog.Date, watermarks map[string]catalog.Date) bool {
	watermark, ok := watermarks[identifier]
	if !ok {
		return true
	}

	return date.After(watermark)
}
