package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/fetch"
)

const (
	occBaseURL = "https://www.theocc.com"

	// occSymbol keys every OCC point; the individual series are told apart
	// by metric.
	occSymbol = "OCC"
)

// occHistoryFloor is the earliest day the OCC volume API serves.
var occHistoryFloor = catalog.MustParseDate("2008-01-01")

// OCC fetches daily options and futures volume totals from the OCC
// historical volume API. It is a direct source: one request covers every
// series it publishes.
type OCC struct {
	client   *http.Client
	executor *fetch.Executor
	logger   *slog.Logger

	baseURL string
}

var _ Source = (*OCC)(nil)

// occResponse mirrors the volume payload.
type occResponse struct {
	Records []struct {
		Date          string   `json:"date"`
		EquityVolume  *float64 `json:"equity_volume"`
		IndexVolume   *float64 `json:"index_volume"`
		FuturesVolume *float64 `json:"futures_volume"`
	} `json:"records"`
}

// NewOCC creates the OCC volume source.
func NewOCC(client *http.Client, executor *fetch.Executor, logger *slog.Logger) *OCC {
	return &OCC{
		client:   client,
		executor: executor,
		logger:   logger,
		baseURL:  occBaseURL,
	}
}

// Name returns the registry name of the source.
func (o *OCC) Name() string {
	return "occ"
}

// Fetch downloads daily volume from the requested start, floored at the
// earliest history the API serves.
func (o *OCC) Fetch(ctx context.Context, req Request) (catalog.Batch, error) {
	start := req.Start
	if start.IsZero() || start.Before(occHistoryFloor) {
		start = occHistoryFloor
	}

	q := url.Values{}
	q.Set("reportDateFrom", start.String())
	q.Set("format", "json")

	endpoint := fmt.Sprintf("%s/api/historical-volume?%s", o.baseURL, q.Encode())

	batch, err := getJSON(ctx, o.executor, o.client, o.Name(), endpoint, decodeVolume)
	if err != nil {
		return catalog.Batch{}, err
	}

	o.logger.Debug("occ fetch complete", slog.Int("rows", batch.Len()))

	return batch, nil
}

// decodeVolume converts one volume payload into points, one per series per
// day.
func decodeVolume(body io.Reader) (catalog.Batch, error) {
	var payload occResponse

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return catalog.Batch{}, fetch.NewError("occ", fetch.CategoryUnknown,
			fmt.Errorf("decoding volume payload: %w", err))
	}

	points := make([]catalog.Point, 0, 3*len(payload.Records))

	for _, rec := range payload.Records {
		date, err := catalog.ParseDate(rec.Date)
		if err != nil {
			return catalog.Batch{}, fetch.NewError("occ", fetch.CategoryUnknown, err)
		}

		points = append(points,
			catalog.Point{Date: date, Identifier: occSymbol, Metric: "OCC_Options_Equity_Volume", Value: rec.EquityVolume},
			catalog.Point{Date: date, Identifier: occSymbol, Metric: "OCC_Options_Index_Volume", Value: rec.IndexVolume},
			catalog.Point{Date: date, Identifier: occSymbol, Metric: "OCC_Futures_Volume", Value: rec.FuturesVolume},
		)
	}

	return catalog.Batch{
		Source:    "occ",
		Shape:     catalog.ShapeMetric,
		Points:    points,
		FetchedAt: time.Now().UTC(),
	}, nil
}
