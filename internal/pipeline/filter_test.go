package pipeline

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func closeAt(v float64) *float64 {
	return &v
}

func TestFilterNew_KeepsOnlyRowsAfterWatermark(t *testing.T) {
	batch := &catalog.Batch{
		Source: "yahoo",
		Shape:  catalog.ShapeOHLCV,
		Bars: []catalog.Bar{
			{Date: catalog.MustParseDate("2024-05-30"), Symbol: "AAPL", Close: closeAt(99)},
			{Date: catalog.MustParseDate("2024-06-01"), Symbol: "AAPL", Close: closeAt(100)},
			{Date: catalog.MustParseDate("2024-06-03"), Symbol: "AAPL", Close: closeAt(101)},
		},
	}

	watermarks := map[string]catalog.Date{
		"AAPL": catalog.MustParseDate("2024-06-01"),
	}

	delta := FilterNew(batch, watermarks, discard())

	// Rows before and exactly at the watermark are dropped; only the
	// strictly newer row survives.
	require.Len(t, delta.Bars, 1)
	assert.Equal(t, "2024-06-03", delta.Bars[0].Date.String())

	assert.Len(t, batch.Bars, 3, "input batch must not be mutated")
}

func TestFilterNew_IndependentPerIdentifier(t *testing.T) {
	value := 1.0

	batch := &catalog.Batch{
		Source: "fred",
		Shape:  catalog.ShapeObservation,
		Points: []catalog.Point{
			{Date: catalog.MustParseDate("2020-01-01"), Identifier: "CAUGHT_UP", Value: &value},
			{Date: catalog.MustParseDate("2020-01-01"), Identifier: "LAGGING", Value: &value},
			{Date: catalog.MustParseDate("2024-01-01"), Identifier: "CAUGHT_UP", Value: &value},
			{Date: catalog.MustParseDate("2024-01-01"), Identifier: "LAGGING", Value: &value},
		},
	}

	watermarks := map[string]catalog.Date{
		"CAUGHT_UP": catalog.MustParseDate("2023-12-31"),
		"LAGGING":   catalog.MustParseDate("2019-12-31"),
	}

	delta := FilterNew(batch, watermarks, discard())

	// CAUGHT_UP keeps only its 2024 row; LAGGING keeps both of its rows.
	require.Len(t, delta.Points, 3)

	kept := map[string]int{}
	for _, p := range delta.Points {
		kept[p.Identifier]++
	}

	assert.Equal(t, 1, kept["CAUGHT_UP"])
	assert.Equal(t, 2, kept["LAGGING"])
}

func TestFilterNew_NoWatermarkKeepsEverything(t *testing.T) {
	value := 1.0

	batch := &catalog.Batch{
		Source: "fred",
		Shape:  catalog.ShapeObservation,
		Points: []catalog.Point{
			{Date: catalog.MustParseDate("1950-01-01"), Identifier: "NEW_SERIES", Value: &value},
			{Date: catalog.MustParseDate("2024-01-01"), Identifier: "NEW_SERIES", Value: &value},
		},
	}

	delta := FilterNew(batch, map[string]catalog.Date{}, discard())

	assert.Equal(t, batch.Len(), delta.Len(), "a first run keeps the full raw fetch")
}

func TestFilterNew_IdempotentOnSecondRun(t *testing.T) {
	batch := &catalog.Batch{
		Source: "yahoo",
		Shape:  catalog.ShapeOHLCV,
		Bars: []catalog.Bar{
			{Date: catalog.MustParseDate("2024-06-01"), Symbol: "AAPL", Close: closeAt(100)},
			{Date: catalog.MustParseDate("2024-06-03"), Symbol: "AAPL", Close: closeAt(101)},
		},
	}

	// Simulate the second run: watermarks now sit at the batch maxima.
	watermarks := map[string]catalog.Date{
		"AAPL": catalog.MustParseDate("2024-06-03"),
	}

	delta := FilterNew(batch, watermarks, discard())
	assert.True(t, delta.Empty(), "re-running with no new upstream data must yield an empty delta")
}

func TestPrepareRequests(t *testing.T) {
	symbols := []Symbol{
		{Identifier: "AAPL", Source: "yahoo", SeriesStart: "2010-01-01"},
		{Identifier: "MSFT", Source: "Yahoo", SeriesStart: ""},
		{Identifier: "DGS10", Source: "fred", SeriesStart: "2000/06/15"},
		{Identifier: "  ", Source: "yahoo"},                            // dropped: empty key
		{Identifier: "GHOST", Source: "nowhere"},                       // dropped: unknown source
		{Identifier: "BKR", Source: "bkr"},                             // dropped: direct source
		{Identifier: "T10Y2Y", Source: "fred", SeriesStart: "someday"}, // malformed start falls back
	}

	defaults := func(source string) catalog.Date {
		if source == "yahoo" {
			return catalog.MustParseDate("1990-01-01")
		}

		return catalog.MustParseDate("1900-01-01")
	}

	requests := PrepareRequests(symbols, defaults, discard())

	require.Len(t, requests, 2)

	yahoo := requests["yahoo"]
	assert.Equal(t, []string{"AAPL", "MSFT"}, yahoo.Identifiers)
	assert.Equal(t, "1990-01-01", yahoo.Start.String())
	assert.Equal(t, "2010-01-01", yahoo.StartDates["AAPL"].String())
	assert.Equal(t, "2010-01-01", yahoo.StartFor("AAPL").String())
	assert.Equal(t, "1990-01-01", yahoo.StartFor("MSFT").String())

	fred := requests["fred"]
	assert.Equal(t, []string{"DGS10", "T10Y2Y"}, fred.Identifiers)
	assert.Equal(t, "2000-06-15", fred.StartDates["DGS10"].String(), "slashed dates normalize to ISO")
	assert.Equal(t, "1900-01-01", fred.StartFor("T10Y2Y").String(), "malformed start falls back to the source default")
}
