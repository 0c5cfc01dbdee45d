package catalog

import (
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"
)

func newTestValidator() *Validator {
	return NewValidator(slog.New(slog.DiscardHandler))
}

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int64) *int64 { return &i }

func validBar(date, symbol string) Bar {
	return Bar{
		Date:   MustParseDate(date),
		Symbol: symbol,
		Open:   floatPtr(100.0),
		High:   floatPtr(101.5),
		Low:    floatPtr(99.25),
		Close:  floatPtr(100.75),
		Volume: intPtr(1_000_000),
	}
}

// ==============================================================================
// Valid batches
// ==============================================================================

func TestValidate_ValidOHLCVBatch(t *testing.T) {
	batch := &Batch{
		Source:    "yahoo",
		Shape:     ShapeOHLCV,
		Bars:      []Bar{validBar("2024-06-03", "AAPL"), validBar("2024-06-03", "MSFT")},
		FetchedAt: time.Now().UTC(),
	}

	if err := newTestValidator().Validate(batch); err != nil {
		t.Errorf("Validate() failed for valid batch: %v", err)
	}
}

func TestValidate_EmptyBatchIsNoOp(t *testing.T) {
	batch := &Batch{Source: "fred", Shape: ShapeObservation}

	if err := newTestValidator().Validate(batch); err != nil {
		t.Errorf("Validate() failed for empty batch: %v", err)
	}
}

func TestValidate_NullValuesAreSoft(t *testing.T) {
	// Nulls in well-typed value columns are logged, never rejected.
	bar := validBar("2024-06-03", "AAPL")
	bar.Close = nil
	bar.Volume = nil

	batch := &Batch{Source: "yahoo", Shape: ShapeOHLCV, Bars: []Bar{bar}}

	if err := newTestValidator().Validate(batch); err != nil {
		t.Errorf("Validate() rejected batch with null values: %v", err)
	}

	point := Point{Date: MustParseDate("2024-06-03"), Identifier: "DGS10", Value: nil}
	obsBatch := &Batch{Source: "fred", Shape: ShapeObservation, Points: []Point{point}}

	if err := newTestValidator().Validate(obsBatch); err != nil {
		t.Errorf("Validate() rejected observation batch with null value: %v", err)
	}
}

// ==============================================================================
// Hard violations
// ==============================================================================

func TestValidate_UnknownSource(t *testing.T) {
	batch := &Batch{
		Source: "bloomberg",
		Shape:  ShapeOHLCV,
		Bars:   []Bar{validBar("2024-06-03", "AAPL")},
	}

	if err := newTestValidator().Validate(batch); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Validate() error = %v, want ErrUnknownSource", err)
	}
}

func TestValidate_ShapeMismatch(t *testing.T) {
	// A fred batch must be observations, not bars.
	batch := &Batch{
		Source: "fred",
		Shape:  ShapeOHLCV,
		Bars:   []Bar{validBar("2024-06-03", "DGS10")},
	}

	err := newTestValidator().Validate(batch)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}

	if vErr.Source != "fred" {
		t.Errorf("ValidationError.Source = %s, want fred", vErr.Source)
	}
}

func TestValidate_ZeroDateIsHard(t *testing.T) {
	bar := validBar("2024-06-03", "AAPL")
	bar.Date = Date{}

	batch := &Batch{Source: "yahoo", Shape: ShapeOHLCV, Bars: []Bar{bar}}

	err := newTestValidator().Validate(batch)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}

	if len(vErr.Violations) != 1 || vErr.Violations[0].Column != "date" {
		t.Errorf("violations = %+v, want one date violation", vErr.Violations)
	}
}

func TestValidate_NonFiniteValueIsHard(t *testing.T) {
	point := Point{
		Date:       MustParseDate("2024-06-03"),
		Identifier: "PET.RWTC.D",
		Value:      floatPtr(math.NaN()),
	}

	batch := &Batch{Source: "eia", Shape: ShapeObservation, Points: []Point{point}}

	err := newTestValidator().Validate(batch)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}

	bar := validBar("2024-06-03", "AAPL")
	bar.High = floatPtr(math.Inf(1))

	barBatch := &Batch{Source: "yahoo", Shape: ShapeOHLCV, Bars: []Bar{bar}}

	if err := newTestValidator().Validate(barBatch); !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v for +Inf bar, want *ValidationError", err)
	}
}

func TestValidate_MissingIdentifierIsHard(t *testing.T) {
	// An empty identifier would create a phantom watermark entry.
	point := Point{Date: MustParseDate("2024-06-03"), Identifier: "  ", Value: floatPtr(1.0)}

	batch := &Batch{Source: "fred", Shape: ShapeObservation, Points: []Point{point}}

	err := newTestValidator().Validate(batch)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}

	if vErr.Violations[0].Column != "series_id" {
		t.Errorf("violation column = %s, want series_id", vErr.Violations[0].Column)
	}
}

func TestValidate_MissingMetricIsHard(t *testing.T) {
	point := Point{Date: MustParseDate("2024-06-03"), Identifier: "OCC", Metric: "", Value: floatPtr(42.0)}

	batch := &Batch{Source: "occ", Shape: ShapeMetric, Points: []Point{point}}

	err := newTestValidator().Validate(batch)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}

	if vErr.Violations[0].Column != "metric" {
		t.Errorf("violation column = %s, want metric", vErr.Violations[0].Column)
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	bad := Bar{Symbol: "", Open: floatPtr(math.NaN())}

	batch := &Batch{
		Source: "yahoo",
		Shape:  ShapeOHLCV,
		Bars:   []Bar{bad, validBar("2024-06-03", "AAPL"), bad},
	}

	err := newTestValidator().Validate(batch)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}

	// Each bad row carries three violations: zero date, empty symbol, NaN open.
	if len(vErr.Violations) != 6 {
		t.Errorf("violation count = %d, want 6 (all rows reported, not first-error-only)", len(vErr.Violations))
	}
}

func TestValidationError_MessageTruncation(t *testing.T) {
	violations := make([]Violation, 12)
	for i := range violations {
		violations[i] = Violation{Row: i, Column: "value", Reason: "value is not a finite number"}
	}

	vErr := &ValidationError{Source: "occ", Violations: violations}

	msg := vErr.Error()
	if msg == "" {
		t.Fatal("Error() returned empty message")
	}

	// The message caps rendered violations but reports the true count.
	if want := "12 violation(s)"; !strings.Contains(msg, want) {
		t.Errorf("Error() = %q, want it to contain %q", msg, want)
	}

	if want := "and 7 more"; !strings.Contains(msg, want) {
		t.Errorf("Error() = %q, want it to contain %q", msg, want)
	}
}
