package bronze

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// snapshotNamePattern decomposes a snapshot filename into source, ingestion
// timestamp and row count.
var snapshotNamePattern = regexp.MustCompile(`^(.+)_(\d{8}_\d{6})_(\d+)rows\.parquet$`)

// ErrCorruptSnapshot indicates a snapshot whose contents disagree with its
// filename.
var ErrCorruptSnapshot = errors.New("corrupt bronze snapshot")

type (
	// Snapshot describes one bronze file, parsed from its name.
	Snapshot struct {
		// Source is the registry name of the producing source.
		Source string

		// Path locates the file.
		Path string

		// Timestamp is the ingestion time encoded in the name, UTC.
		Timestamp time.Time

		// Rows is the row count encoded in the name.
		Rows int
	}

	// Reader lists and loads snapshots from the bronze tree.
	Reader struct {
		dir string
	}
)

// NewReader creates a Reader rooted at dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// List returns every snapshot for a source, ordered by ingestion timestamp
// then name. A source with no snapshot directory yet lists empty.
func (r *Reader) List(source string) ([]Snapshot, error) {
	dir := filepath.Join(r.dir, source)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing bronze directory %s: %w", dir, err)
	}

	var snapshots []Snapshot

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		snapshot, err := ParseSnapshotName(filepath.Join(dir, entry.Name()))
		if err != nil {
			// Stray files in the tree are not snapshots; skip them.
			continue
		}

		if snapshot.Source == source {
			snapshots = append(snapshots, snapshot)
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].Timestamp.Equal(snapshots[j].Timestamp) {
			return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
		}

		return snapshots[i].Path < snapshots[j].Path
	})

	return snapshots, nil
}

// ParseSnapshotName decomposes a snapshot path into its metadata.
func ParseSnapshotName(path string) (Snapshot, error) {
	match := snapshotNamePattern.FindStringSubmatch(filepath.Base(path))
	if match == nil {
		return Snapshot{}, fmt.Errorf("%s is not a snapshot filename", filepath.Base(path))
	}

	ts, err := time.ParseInLocation(timestampLayout, match[2], time.UTC)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", filepath.Base(path), err)
	}

	rows, err := strconv.Atoi(match[3])
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", filepath.Base(path), err)
	}

	return Snapshot{Source: match[1], Path: path, Timestamp: ts, Rows: rows}, nil
}

// Read loads one snapshot back into a batch. The source's registered shape
// decides how the rows decode.
func (r *Reader) Read(path string) (catalog.Batch, error) {
	snapshot, err := ParseSnapshotName(path)
	if err != nil {
		return catalog.Batch{}, err
	}

	schema, err := catalog.Lookup(snapshot.Source)
	if err != nil {
		return catalog.Batch{}, err
	}

	if schema.Shape == catalog.ShapeOHLCV {
		rows, err := parquet.ReadFile[bronzeBar](path)
		if err != nil {
			return catalog.Batch{}, fmt.Errorf("reading snapshot %s: %w", path, err)
		}

		batch := catalog.Batch{Source: snapshot.Source, Shape: schema.Shape, Bars: make([]catalog.Bar, len(rows))}

		for i, row := range rows {
			batch.Bars[i] = catalog.Bar{
				Date:   catalog.DateOf(row.Date),
				Symbol: row.Symbol,
				Open:   row.Open,
				High:   row.High,
				Low:    row.Low,
				Close:  row.Close,
				Volume: row.Volume,
			}

			batch.FetchedAt = row.FetchedAt.UTC()
		}

		return batch, nil
	}

	rows, err := parquet.ReadFile[bronzePoint](path)
	if err != nil {
		return catalog.Batch{}, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	batch := catalog.Batch{Source: snapshot.Source, Shape: schema.Shape, Points: make([]catalog.Point, len(rows))}

	for i, row := range rows {
		batch.Points[i] = catalog.Point{
			Date:       catalog.DateOf(row.Date),
			Identifier: row.Identifier,
			Metric:     row.Metric,
			Value:      row.Value,
		}

		batch.FetchedAt = row.FetchedAt.UTC()
	}

	return batch, nil
}

// Verify checks a snapshot's contents against the row count its filename
// declares.
func (r *Reader) Verify(path string) error {
	snapshot, err := ParseSnapshotName(path)
	if err != nil {
		return err
	}

	batch, err := r.Read(path)
	if err != nil {
		return err
	}

	if batch.Len() != snapshot.Rows {
		return fmt.Errorf("%w: %s declares %d rows, contains %d",
			ErrCorruptSnapshot, filepath.Base(path), snapshot.Rows, batch.Len())
	}

	return nil
}
