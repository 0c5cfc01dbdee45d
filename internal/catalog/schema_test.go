package catalog

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	schema, err := Lookup("yahoo")
	if err != nil {
		t.Fatalf("Lookup(yahoo) failed: %v", err)
	}

	if schema.Shape != ShapeOHLCV {
		t.Errorf("yahoo shape = %s, want %s", schema.Shape, ShapeOHLCV)
	}

	if schema.IdentifierColumn != "symbol" {
		t.Errorf("yahoo identifier column = %s, want symbol", schema.IdentifierColumn)
	}

	if schema.StagingTable() != "stg_yahoo" {
		t.Errorf("staging table = %s, want stg_yahoo", schema.StagingTable())
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	for _, name := range []string{"FRED", "Fred", "  fred  "} {
		schema, err := Lookup(name)
		if err != nil {
			t.Errorf("Lookup(%q) failed: %v", name, err)
			continue
		}

		if schema.Name != "fred" {
			t.Errorf("Lookup(%q).Name = %s, want fred", name, schema.Name)
		}
	}
}

func TestLookup_UnknownSource(t *testing.T) {
	_, err := Lookup("bloomberg")
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Lookup(bloomberg) error = %v, want ErrUnknownSource", err)
	}
}

func TestRegistryConsistency(t *testing.T) {
	names := Names()
	if len(names) != 8 {
		t.Fatalf("Names() returned %d sources, want 8", len(names))
	}

	for _, schema := range All() {
		if err := schema.Validate(); err != nil {
			t.Errorf("registry entry %s is inconsistent: %v", schema.Name, err)
		}
	}
}

func TestRegistryDirectSources(t *testing.T) {
	// Identifier-driven sources receive a symbol subset; direct sources
	// publish one fixed dataset.
	direct := map[string]bool{
		"yahoo": false, "fred": false, "eia": false,
		"bkr": true, "finra": true, "silverblatt": true, "usda": true, "occ": true,
	}

	for name, want := range direct {
		schema, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s) failed: %v", name, err)
		}

		if schema.Direct != want {
			t.Errorf("%s Direct = %v, want %v", name, schema.Direct, want)
		}
	}
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{
			name: "valid",
			schema: Schema{
				Name:             "demo",
				Shape:            ShapeObservation,
				Columns:          []string{"date", "series_id", "value"},
				IdentifierColumn: "series_id",
				DateColumn:       "date",
			},
			wantErr: false,
		},
		{
			name: "identifier column not in columns",
			schema: Schema{
				Name:             "demo",
				Shape:            ShapeObservation,
				Columns:          []string{"date", "value"},
				IdentifierColumn: "series_id",
				DateColumn:       "date",
			},
			wantErr: true,
		},
		{
			name: "date column not in columns",
			schema: Schema{
				Name:             "demo",
				Shape:            ShapeObservation,
				Columns:          []string{"series_id", "value"},
				IdentifierColumn: "series_id",
				DateColumn:       "date",
			},
			wantErr: true,
		},
		{
			name: "invalid shape",
			schema: Schema{
				Name:             "demo",
				Shape:            Shape("tabular"),
				Columns:          []string{"date", "series_id", "value"},
				IdentifierColumn: "series_id",
				DateColumn:       "date",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
