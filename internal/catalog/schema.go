package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type (
	// Schema declares the expected layout of one source's batches and the
	// staging table derived from it.
	Schema struct {
		// Name is the lowercase registry key ("yahoo", "fred", ...).
		Name string

		// Shape is the row layout every batch from this source must carry.
		Shape Shape

		// Columns is the required column set, in staging-table order.
		Columns []string

		// IdentifierColumn names the column watermarks are grouped by.
		// Always a member of Columns.
		IdentifierColumn string

		// DateColumn names the column carrying the observation day.
		// Always a member of Columns.
		DateColumn string

		// Description is a short human-readable label used in logs.
		Description string

		// Direct marks sources that publish one fixed dataset and therefore
		// take no identifier list on fetch. Identifier-driven sources
		// (yahoo, fred, eia) receive their identifier subset from the
		// symbols catalog instead.
		Direct bool
	}
)

// ErrUnknownSource indicates a source name with no registry entry.
var ErrUnknownSource = errors.New("unknown source")

// sourceOrder fixes the iteration order for Names, All and full runs.
var sourceOrder = []string{
	"yahoo", "fred", "eia", "bkr", "finra", "silverblatt", "usda", "occ",
}

// sourceSchemas is the closed registry of every source the pipeline knows.
var sourceSchemas = map[string]Schema{
	"yahoo": {
		Name:             "yahoo",
		Shape:            ShapeOHLCV,
		Columns:          []string{"date", "symbol", "open", "high", "low", "close", "volume"},
		IdentifierColumn: "symbol",
		DateColumn:       "date",
		Description:      "Yahoo Finance OHLCV data",
	},
	"fred": {
		Name:             "fred",
		Shape:            ShapeObservation,
		Columns:          []string{"date", "series_id", "value"},
		IdentifierColumn: "series_id",
		DateColumn:       "date",
		Description:      "FRED economic data",
	},
	"eia": {
		Name:             "eia",
		Shape:            ShapeObservation,
		Columns:          []string{"date", "series_id", "value"},
		IdentifierColumn: "series_id",
		DateColumn:       "date",
		Description:      "EIA energy data",
	},
	"bkr": {
		Name:             "bkr",
		Shape:            ShapeMetric,
		Columns:          []string{"date", "symbol", "metric", "value"},
		IdentifierColumn: "symbol",
		DateColumn:       "date",
		Description:      "Baker Hughes rig count data",
		Direct:           true,
	},
	"finra": {
		Name:             "finra",
		Shape:            ShapeMetric,
		Columns:          []string{"date", "symbol", "metric", "value"},
		IdentifierColumn: "symbol",
		DateColumn:       "date",
		Description:      "FINRA margin statistics",
		Direct:           true,
	},
	"silverblatt": {
		Name:             "silverblatt",
		Shape:            ShapeMetric,
		Columns:          []string{"date", "symbol", "metric", "value"},
		IdentifierColumn: "symbol",
		DateColumn:       "date",
		Description:      "S&P 500 earnings data",
		Direct:           true,
	},
	"usda": {
		Name:             "usda",
		Shape:            ShapeMetric,
		Columns:          []string{"date", "symbol", "metric", "value"},
		IdentifierColumn: "symbol",
		DateColumn:       "date",
		Description:      "USDA agricultural data",
		Direct:           true,
	},
	"occ": {
		Name:             "occ",
		Shape:            ShapeMetric,
		Columns:          []string{"date", "symbol", "metric", "value"},
		IdentifierColumn: "symbol",
		DateColumn:       "date",
		Description:      "OCC options and futures volume data",
		Direct:           true,
	},
}

// Lookup resolves a source name to its schema. Matching is case-insensitive
// and ignores surrounding whitespace. Unknown names fail with
// ErrUnknownSource.
func Lookup(name string) (Schema, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	schema, ok := sourceSchemas[key]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	return schema, nil
}

// Names returns every registered source name in registry order.
func Names() []string {
	return slices.Clone(sourceOrder)
}

// All returns every registered schema in registry order.
func All() []Schema {
	schemas := make([]Schema, 0, len(sourceOrder))
	for _, name := range sourceOrder {
		schemas = append(schemas, sourceSchemas[name])
	}

	return schemas
}

// StagingTable returns the staging table name for the source ("stg_yahoo").
func (s Schema) StagingTable() string {
	return "stg_" + s.Name
}

// Validate checks the schema's internal consistency: the shape must be a
// registered shape and the identifier and date columns must be members of
// the required column set.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("schema name cannot be empty")
	}

	if !s.Shape.IsValid() {
		return fmt.Errorf("schema %s: invalid shape %q", s.Name, s.Shape)
	}

	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %s: no required columns", s.Name)
	}

	if !slices.Contains(s.Columns, s.IdentifierColumn) {
		return fmt.Errorf("schema %s: identifier column %q not in required columns", s.Name, s.IdentifierColumn)
	}

	if !slices.Contains(s.Columns, s.DateColumn) {
		return fmt.Errorf("schema %s: date column %q not in required columns", s.Name, s.DateColumn)
	}

	return nil
}
