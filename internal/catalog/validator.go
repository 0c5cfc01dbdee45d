package catalog

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// maxReportedViolations caps how many violations a ValidationError renders in
// its message. The full list is always carried on the error value.
const maxReportedViolations = 5

type (
	// Violation pinpoints one hard validation failure inside a batch.
	Violation struct {
		// Row is the zero-based index of the offending row, or -1 when the
		// violation applies to the batch as a whole.
		Row int

		// Column names the offending column ("date", "close", ...), empty
		// for batch-level violations.
		Column string

		// Reason is a short human-readable explanation.
		Reason string
	}

	// ValidationError reports every hard violation found in one batch.
	// Soft findings (null values in well-typed columns) never appear here;
	// they are logged and the batch passes.
	ValidationError struct {
		Source     string
		Violations []Violation
	}

	// Validator checks fetched batches against the schema registry before
	// they reach the staging or bronze layers.
	//
	// Hard violations reject the batch: a shape that does not match the
	// source's schema, an unparseable or missing date, a non-finite numeric
	// value, or an empty identifier or metric key. Null values in non-key
	// columns are soft: counted, logged at WARN, and accepted. An empty
	// batch passes as a no-op.
	Validator struct {
		logger *slog.Logger
	}
)

// Error lists the source, the violation count, and the first few violations.
func (e *ValidationError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "validation failed for source %s: %d violation(s)", e.Source, len(e.Violations))

	for i, v := range e.Violations {
		if i == maxReportedViolations {
			fmt.Fprintf(&b, "; and %d more", len(e.Violations)-maxReportedViolations)
			break
		}

		b.WriteString("; ")

		if v.Row >= 0 {
			fmt.Fprintf(&b, "row %d ", v.Row)
		}

		if v.Column != "" {
			fmt.Fprintf(&b, "column %s: ", v.Column)
		}

		b.WriteString(v.Reason)
	}

	return b.String()
}

// NewValidator creates a Validator. The logger is required: soft violations
// are reported through it rather than through the error return.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate checks a batch against its source's registered schema.
//
// Returns nil for a valid batch (including an empty one), ErrUnknownSource
// when the batch names an unregistered source, and a *ValidationError
// carrying every hard violation otherwise.
func (v *Validator) Validate(batch *Batch) error {
	// An empty batch is a no-op success: nothing to check, nothing to commit.
	if batch.Empty() {
		return nil
	}

	schema, err := Lookup(batch.Source)
	if err != nil {
		return err
	}

	if batch.Shape != schema.Shape {
		return &ValidationError{
			Source: batch.Source,
			Violations: []Violation{{
				Row:    -1,
				Reason: fmt.Sprintf("batch shape %q does not match schema shape %q", batch.Shape, schema.Shape),
			}},
		}
	}

	var (
		violations []Violation
		nulls      int
	)

	switch schema.Shape {
	case ShapeOHLCV:
		if len(batch.Points) > 0 {
			violations = append(violations, Violation{Row: -1, Reason: "ohlcv batch must not carry points"})
		}

		for i, bar := range batch.Bars {
			violations = appendRowViolations(violations, i, bar.Date, bar.Symbol, schema)
			nulls += countBarNulls(&violations, i, bar)
		}

	case ShapeObservation, ShapeMetric:
		if len(batch.Bars) > 0 {
			violations = append(violations, Violation{Row: -1, Reason: "long-format batch must not carry bars"})
		}

		for i, p := range batch.Points {
			violations = appendRowViolations(violations, i, p.Date, p.Identifier, schema)

			if schema.Shape == ShapeMetric && strings.TrimSpace(p.Metric) == "" {
				violations = append(violations, Violation{Row: i, Column: "metric", Reason: "missing metric key"})
			}

			if p.Value == nil {
				nulls++
			} else if !isFinite(*p.Value) {
				violations = append(violations, Violation{Row: i, Column: "value", Reason: "value is not a finite number"})
			}
		}
	}

	if nulls > 0 {
		v.logger.Warn("batch contains null values",
			slog.String("source", batch.Source),
			slog.Int("null_values", nulls),
			slog.Int("rows", batch.Len()),
		)
	}

	if len(violations) > 0 {
		return &ValidationError{Source: batch.Source, Violations: violations}
	}

	v.logger.Debug("batch validated",
		slog.String("source", batch.Source),
		slog.Int("rows", batch.Len()),
	)

	return nil
}

// appendRowViolations checks the two key columns every row must carry:
// a real date and a non-empty identifier.
func appendRowViolations(violations []Violation, row int, date Date, identifier string, schema Schema) []Violation {
	if date.IsZero() {
		violations = append(violations, Violation{
			Row:    row,
			Column: schema.DateColumn,
			Reason: "missing or unparseable date",
		})
	}

	if strings.TrimSpace(identifier) == "" {
		violations = append(violations, Violation{
			Row:    row,
			Column: schema.IdentifierColumn,
			Reason: "missing identifier",
		})
	}

	return violations
}

// countBarNulls counts nil value fields on a bar and records hard violations
// for any non-finite present value. Nil fields are soft: upstream feeds
// legitimately omit quotes for halted or unlisted days.
func countBarNulls(violations *[]Violation, row int, bar Bar) int {
	nulls := 0

	fields := []struct {
		name  string
		value *float64
	}{
		{"open", bar.Open},
		{"high", bar.High},
		{"low", bar.Low},
		{"close", bar.Close},
	}

	for _, f := range fields {
		if f.value == nil {
			nulls++
			continue
		}

		if !isFinite(*f.value) {
			*violations = append(*violations, Violation{Row: row, Column: f.name, Reason: "value is not a finite number"})
		}
	}

	if bar.Volume == nil {
		nulls++
	}

	return nulls
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
