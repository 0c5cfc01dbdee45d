// Package staging persists committed rows in a local embedded DuckDB
// database, one table per source, and derives the per-identifier watermarks
// from what was actually committed.
//
// The staging table is the system of record: watermarks are never stored
// separately, they are the MAX(date) per identifier of the committed rows,
// so they cannot drift from the data.
package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// symbolsTable holds the identifier universe the pipeline partitions across
// identifier-driven sources.
const symbolsTable = "symbols"

var (
	// ErrNoSymbolsTable indicates the symbols table has not been created
	// yet. Runners surface it with a pointer to `stagectl init`.
	ErrNoSymbolsTable = errors.New("symbols table does not exist")

	// ErrNoSymbols indicates the symbols table exists but holds no rows, so
	// no identifier-driven source has anything to fetch.
	ErrNoSymbols = errors.New("no symbols in database")

	// ErrUnknownShape indicates a schema carrying a shape the DDL generator
	// does not know. Unreachable for registry schemas.
	ErrUnknownShape = errors.New("unknown schema shape")
)

type (
	// DB is the staging store on an embedded DuckDB database. It assumes a
	// single writer; concurrent readers are safe.
	DB struct {
		conn   *sql.DB
		logger *slog.Logger
	}

	// WriteError is the hard failure of a staging append. Any run that hits
	// one aborts: the staging table is the authoritative record.
	WriteError struct {
		Source string
		Err    error
	}

	// SymbolRow is one row of the symbols table: an identifier, the source
	// it belongs to, and its raw configured series start (normalized later
	// by the pipeline).
	SymbolRow struct {
		Symbol      string
		Source      string
		SeriesStart string
	}
)

// Error identifies the failing source and the underlying cause.
func (e *WriteError) Error() string {
	return fmt.Sprintf("staging write failed for source %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Open opens (creating if needed) the staging database at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening staging database %s: %w", path, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("connecting to staging database %s: %w", path, err)
	}

	return &DB{conn: conn, logger: logger}, nil
}

// OpenMemory opens an in-memory staging database, used by tests and dry
// runs.
func OpenMemory(logger *slog.Logger) (*DB, error) {
	return Open("", logger)
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureTable creates the source's staging table if it does not exist.
func (db *DB) EnsureTable(ctx context.Context, schema catalog.Schema) error {
	ddl, err := createTableSQL(schema)
	if err != nil {
		return err
	}

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return &WriteError{Source: schema.Name, Err: fmt.Errorf("creating table %s: %w", schema.StagingTable(), err)}
	}

	return nil
}

// Append commits a batch to the source's staging table, creating the table
// on first use, and returns the number of rows written. The whole batch
// commits in one transaction: a failure writes nothing.
func (db *DB) Append(ctx context.Context, schema catalog.Schema, batch *catalog.Batch) (int, error) {
	if batch.Empty() {
		return 0, nil
	}

	if err := db.EnsureTable(ctx, schema); err != nil {
		return 0, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &WriteError{Source: schema.Name, Err: fmt.Errorf("beginning transaction: %w", err)}
	}

	written, err := appendRows(ctx, tx, schema, batch)
	if err != nil {
		_ = tx.Rollback()

		return 0, &WriteError{Source: schema.Name, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &WriteError{Source: schema.Name, Err: fmt.Errorf("committing transaction: %w", err)}
	}

	db.logger.Debug("staging append committed",
		slog.String("source", schema.Name),
		slog.String("table", schema.StagingTable()),
		slog.Int("rows", written),
	)

	return written, nil
}

// LatestDates returns the watermark per identifier: the MAX(date) of the
// committed rows grouped by the schema's identifier column. A source whose
// staging table does not exist yet (first run) gets an empty map, not an
// error.
func (db *DB) LatestDates(ctx context.Context, schema catalog.Schema) (map[string]catalog.Date, error) {
	exists, err := db.tableExists(ctx, schema.StagingTable())
	if err != nil {
		return nil, err
	}

	watermarks := map[string]catalog.Date{}
	if !exists {
		return watermarks, nil
	}

	query := fmt.Sprintf("SELECT %s, MAX(%s) FROM %s GROUP BY %s",
		schema.IdentifierColumn, schema.DateColumn, schema.StagingTable(), schema.IdentifierColumn)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying watermarks for %s: %w", schema.Name, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			identifier string
			latest     time.Time
		)

		if err := rows.Scan(&identifier, &latest); err != nil {
			return nil, fmt.Errorf("scanning watermark row for %s: %w", schema.Name, err)
		}

		watermarks[identifier] = catalog.DateOf(latest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating watermark rows for %s: %w", schema.Name, err)
	}

	return watermarks, nil
}

// LoadSymbols reads the identifier universe from the symbols table. A
// missing table fails with ErrNoSymbolsTable and an empty one with
// ErrNoSymbols, so the runner can explain the required setup step instead of
// silently syncing nothing.
func (db *DB) LoadSymbols(ctx context.Context) ([]SymbolRow, error) {
	exists, err := db.tableExists(ctx, symbolsTable)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, ErrNoSymbolsTable
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT string_symbol, string_source, COALESCE(date_series_start, '') FROM symbols ORDER BY string_source, string_symbol")
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var symbols []SymbolRow

	for rows.Next() {
		var s SymbolRow

		if err := rows.Scan(&s.Symbol, &s.Source, &s.SeriesStart); err != nil {
			return nil, fmt.Errorf("scanning symbol row: %w", err)
		}

		symbols = append(symbols, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating symbol rows: %w", err)
	}

	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	return symbols, nil
}

// AddSymbol inserts one identifier into the symbols table.
func (db *DB) AddSymbol(ctx context.Context, row SymbolRow) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO symbols (string_symbol, string_source, date_series_start) VALUES (?, ?, ?)",
		row.Symbol, row.Source, row.SeriesStart)
	if err != nil {
		return fmt.Errorf("inserting symbol %s: %w", row.Symbol, err)
	}

	return nil
}

// InitSchema creates the symbols table and every registered staging table.
func (db *DB) InitSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		string_symbol VARCHAR NOT NULL,
		string_source VARCHAR NOT NULL,
		date_series_start VARCHAR
	)`, symbolsTable)

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating symbols table: %w", err)
	}

	for _, schema := range catalog.All() {
		if err := db.EnsureTable(ctx, schema); err != nil {
			return err
		}
	}

	db.logger.Info("staging schema initialized",
		slog.Int("staging_tables", len(catalog.All())),
	)

	return nil
}

// tableExists consults information_schema for a table in the main schema.
func (db *DB) tableExists(ctx context.Context, table string) (bool, error) {
	var count int

	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?", table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}

	return count > 0, nil
}

// createTableSQL derives the staging DDL from the schema's shape.
func createTableSQL(schema catalog.Schema) (string, error) {
	var columns []string

	switch schema.Shape {
	case catalog.ShapeOHLCV:
		columns = []string{
			"date DATE NOT NULL",
			"symbol VARCHAR NOT NULL",
			"open DOUBLE",
			"high DOUBLE",
			"low DOUBLE",
			"close DOUBLE",
			"volume BIGINT",
		}
	case catalog.ShapeObservation:
		columns = []string{
			"date DATE NOT NULL",
			"series_id VARCHAR NOT NULL",
			"value DOUBLE",
		}
	case catalog.ShapeMetric:
		columns = []string{
			"date DATE NOT NULL",
			"symbol VARCHAR NOT NULL",
			"metric VARCHAR NOT NULL",
			"value DOUBLE",
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShape, schema.Shape)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		schema.StagingTable(), strings.Join(columns, ", ")), nil
}

// appendRows writes the batch through one prepared statement.
func appendRows(ctx context.Context, tx *sql.Tx, schema catalog.Schema, batch *catalog.Batch) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(schema.Columns)), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.StagingTable(), strings.Join(schema.Columns, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	written := 0

	switch schema.Shape {
	case catalog.ShapeOHLCV:
		for _, bar := range batch.Bars {
			_, err := stmt.ExecContext(ctx, bar.Date.Time(), bar.Symbol,
				nullable(bar.Open), nullable(bar.High), nullable(bar.Low), nullable(bar.Close), nullable(bar.Volume))
			if err != nil {
				return 0, fmt.Errorf("inserting bar %s %s: %w", bar.Symbol, bar.Date, err)
			}

			written++
		}
	case catalog.ShapeObservation:
		for _, p := range batch.Points {
			if _, err := stmt.ExecContext(ctx, p.Date.Time(), p.Identifier, nullable(p.Value)); err != nil {
				return 0, fmt.Errorf("inserting observation %s %s: %w", p.Identifier, p.Date, err)
			}

			written++
		}
	case catalog.ShapeMetric:
		for _, p := range batch.Points {
			if _, err := stmt.ExecContext(ctx, p.Date.Time(), p.Identifier, p.Metric, nullable(p.Value)); err != nil {
				return 0, fmt.Errorf("inserting metric %s %s: %w", p.Identifier, p.Date, err)
			}

			written++
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownShape, schema.Shape)
	}

	return written, nil
}

// nullable converts a pointer field into a driver value: nil stays NULL,
// a present value dereferences.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}

	return *v
}
