// Package catalog defines the source schema registry and the typed batch
// records that flow through every stage of the ingestion pipeline.
//
// Upstream payloads are decoded into Bar or Point rows at the source
// boundary, so by the time a Batch reaches validation its shape is already
// a closed, typed contract rather than a loosely-keyed table.
package catalog

import (
	"time"
)

type (
	// Shape identifies the column layout a source produces. Every source in
	// the registry declares exactly one shape, and a fetched batch must carry
	// the matching row kind (Bars for ShapeOHLCV, Points otherwise).
	Shape string

	// Bar is one OHLCV row from a market data source.
	//
	// Value fields are pointers so that missing quotes survive the trip from
	// the upstream payload into validation without being coerced to zero.
	// A nil field is a null, counted as a soft violation; a present field
	// must hold a finite number.
	Bar struct {
		// Date is the trading day the bar describes.
		Date Date

		// Symbol is the instrument identifier (e.g. "AAPL").
		Symbol string

		Open   *float64
		High   *float64
		Low    *float64
		Close  *float64
		Volume *int64
	}

	// Point is one long-format row: a single scalar observation for an
	// identifier on a date.
	Point struct {
		// Date is the observation day.
		Date Date

		// Identifier is the series or symbol key watermarks are tracked by
		// (e.g. FRED series id "DGS10", or "USDA_NET_FARM_INCOME").
		Identifier string

		// Metric qualifies the identifier for ShapeMetric sources
		// (e.g. "OCC_Options_Equity_Volume"). Empty for ShapeObservation.
		Metric string

		Value *float64
	}

	// Batch is the unit of work handed from a source fetch to the validator,
	// the incremental filter, and finally the staging and bronze writers.
	// Exactly one of Bars or Points is populated, matching Shape.
	Batch struct {
		// Source is the registry key of the producing source.
		Source string

		// Shape declares which row slice carries the data.
		Shape Shape

		Bars   []Bar
		Points []Point

		// FetchedAt records when the fetch completed, in UTC.
		FetchedAt time.Time
	}
)

const (
	// ShapeOHLCV is the wide price-bar layout:
	// date, symbol, open, high, low, close, volume.
	ShapeOHLCV Shape = "ohlcv"

	// ShapeObservation is the two-column series layout:
	// date, series_id, value.
	ShapeObservation Shape = "observation"

	// ShapeMetric is the long layout with a metric qualifier:
	// date, symbol, metric, value.
	ShapeMetric Shape = "metric"
)

// ValidShapes returns all shapes a registered source may declare.
func ValidShapes() []Shape {
	return []Shape{ShapeOHLCV, ShapeObservation, ShapeMetric}
}

// IsValid checks whether the shape is a member of the closed shape set.
func (s Shape) IsValid() bool {
	switch s {
	case ShapeOHLCV, ShapeObservation, ShapeMetric:
		return true
	default:
		return false
	}
}

// String returns the string representation of the shape.
func (s Shape) String() string {
	return string(s)
}

// Len returns the number of rows in the batch, regardless of shape.
func (b *Batch) Len() int {
	if b.Shape == ShapeOHLCV {
		return len(b.Bars)
	}

	return len(b.Points)
}

// Empty reports whether the batch carries no rows. An empty batch is a valid
// no-op everywhere in the pipeline, not an error.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// Identifiers returns the distinct identifiers present in the batch, in
// first-seen order.
func (b *Batch) Identifiers() []string {
	seen := make(map[string]struct{}, 16)
	ids := make([]string, 0, 16)

	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if b.Shape == ShapeOHLCV {
		for _, bar := range b.Bars {
			add(bar.Symbol)
		}
	} else {
		for _, p := range b.Points {
			add(p.Identifier)
		}
	}

	return ids
}
