// Package bronze writes and reads the immutable snapshot layer: one Parquet
// file per (source, ingestion time), capturing exactly the rows committed in
// that run.
//
// Snapshots are write-once and never modified or deleted. Replaying a
// source's snapshots in ingestion order reconstructs its staging table from
// empty, which is the layer's whole reason to exist: audit and replay.
package bronze

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// timestampLayout renders the ingestion time inside snapshot filenames.
const timestampLayout = "20060102_150405"

type (
	// Exporter writes snapshots under a per-source directory tree.
	Exporter struct {
		dir    string
		logger *slog.Logger

		// now is overridden by tests for deterministic filenames.
		now func() time.Time
	}

	// bronzeBar is the Parquet row for wide OHLCV snapshots. Pointer fields
	// keep upstream nulls null.
	bronzeBar struct {
		Date      time.Time `parquet:"date,timestamp(millisecond)"`
		Symbol    string    `parquet:"symbol"`
		Open      *float64  `parquet:"open,optional"`
		High      *float64  `parquet:"high,optional"`
		Low       *float64  `parquet:"low,optional"`
		Close     *float64  `parquet:"close,optional"`
		Volume    *int64    `parquet:"volume,optional"`
		FetchedAt time.Time `parquet:"fetched_at,timestamp(millisecond)"`
	}

	// bronzePoint is the Parquet row for long-format snapshots. Metric is
	// empty for observation sources.
	bronzePoint struct {
		Date       time.Time `parquet:"date,timestamp(millisecond)"`
		Identifier string    `parquet:"identifier"`
		Metric     string    `parquet:"metric,optional"`
		Value      *float64  `parquet:"value,optional"`
		FetchedAt  time.Time `parquet:"fetched_at,timestamp(millisecond)"`
	}
)

// NewExporter creates an Exporter rooted at dir.
func NewExporter(dir string, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger, now: time.Now}
}

// Export writes one immutable snapshot for the batch and returns its path.
// An empty batch writes nothing and returns an empty path. The file is
// created exclusively: a name collision fails rather than overwriting, no
// snapshot is ever mutated.
func (e *Exporter) Export(ctx context.Context, batch *catalog.Batch) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if batch.Empty() {
		return "", nil
	}

	dir := filepath.Join(e.dir, batch.Source)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating bronze directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s_%s_%drows.parquet",
		batch.Source, e.now().UTC().Format(timestampLayout), batch.Len())
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) //nolint:gosec // path is built from registry names
	if err != nil {
		return "", fmt.Errorf("creating snapshot %s: %w", path, err)
	}

	if err := writeRows(file, batch); err != nil {
		_ = file.Close()
		_ = os.Remove(path)

		return "", fmt.Errorf("writing snapshot %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(path)

		return "", fmt.Errorf("closing snapshot %s: %w", path, err)
	}

	e.logger.Info("bronze snapshot written",
		slog.String("source", batch.Source),
		slog.String("path", path),
		slog.Int("rows", batch.Len()),
	)

	return path, nil
}

// writeRows renders the batch as snappy-compressed Parquet.
func writeRows(file *os.File, batch *catalog.Batch) error {
	if batch.Shape == catalog.ShapeOHLCV {
		rows := make([]bronzeBar, len(batch.Bars))
		for i, bar := range batch.Bars {
			rows[i] = bronzeBar{
				Date:      bar.Date.Time(),
				Symbol:    bar.Symbol,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
				FetchedAt: batch.FetchedAt,
			}
		}

		return writeParquet(file, rows)
	}

	rows := make([]bronzePoint, len(batch.Points))
	for i, p := range batch.Points {
		rows[i] = bronzePoint{
			Date:       p.Date.Time(),
			Identifier: p.Identifier,
			Metric:     p.Metric,
			Value:      p.Value,
			FetchedAt:  batch.FetchedAt,
		}
	}

	return writeParquet(file, rows)
}

func writeParquet[T any](file *os.File, rows []T) error {
	writer := parquet.NewGenericWriter[T](file, parquet.Compression(&parquet.Snappy))

	if _, err := writer.Write(rows); err != nil {
		return err
	}

	return writer.Close()
}
