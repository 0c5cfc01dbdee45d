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
	"github.com/macrosync-io/macrosync/internal/config"
	"github.com/macrosync-io/macrosync/internal/fetch"
)

const eiaBaseURL = "https://api.eia.gov"

// EIA fetches energy series from the EIA v2 seriesid API, one request per
// series.
type EIA struct {
	client   *http.Client
	executor *fetch.Executor
	token    string
	logger   *slog.Logger

	baseURL string
}

var _ Source = (*EIA)(nil)

// seriesResponse mirrors the v2 seriesid payload. Periods arrive in several
// granularities (daily, monthly, annual) depending on the series.
type seriesResponse struct {
	Response struct {
		Data []struct {
			Period string   `json:"period"`
			Value  *float64 `json:"value"`
		} `json:"data"`
	} `json:"response"`
}

// NewEIA creates the EIA source. The token is required; a missing token is a
// configuration error surfaced at construction.
func NewEIA(client *http.Client, executor *fetch.Executor, token string, logger *slog.Logger) (*EIA, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrMissingCredential, config.EnvEIAToken)
	}

	return &EIA{
		client:   client,
		executor: executor,
		token:    token,
		logger:   logger,
		baseURL:  eiaBaseURL,
	}, nil
}

// Name returns the registry name of the source.
func (e *EIA) Name() string {
	return "eia"
}

// Fetch downloads every requested series from its own series start.
func (e *EIA) Fetch(ctx context.Context, req Request) (catalog.Batch, error) {
	batch := catalog.Batch{Source: e.Name(), Shape: catalog.ShapeObservation}

	for _, series := range req.Identifiers {
		points, err := e.fetchSeries(ctx, series, req.StartFor(series))
		if err != nil {
			return catalog.Batch{}, fmt.Errorf("series %s: %w", series, err)
		}

		batch.Points = append(batch.Points, points...)
	}

	batch.FetchedAt = time.Now().UTC()

	e.logger.Debug("eia fetch complete",
		slog.Int("series", len(req.Identifiers)),
		slog.Int("observations", len(batch.Points)),
	)

	return batch, nil
}

func (e *EIA) fetchSeries(ctx context.Context, series string, start catalog.Date) ([]catalog.Point, error) {
	q := url.Values{}
	q.Set("api_key", e.token)
	q.Set("start", start.String())

	endpoint := fmt.Sprintf("%s/v2/seriesid/%s?%s", e.baseURL, url.PathEscape(series), q.Encode())

	batch, err := getJSON(ctx, e.executor, e.client, e.Name(), endpoint, func(body io.Reader) (catalog.Batch, error) {
		return decodeSeries(series, body)
	})
	if err != nil {
		return nil, err
	}

	return batch.Points, nil
}

// decodeSeries converts one seriesid payload into points, filtering rows
// whose period cannot be read as a day, month or year.
func decodeSeries(series string, body io.Reader) (catalog.Batch, error) {
	var payload seriesResponse

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return catalog.Batch{}, fetch.NewError("eia", fetch.CategoryUnknown,
			fmt.Errorf("decoding series payload: %w", err))
	}

	points := make([]catalog.Point, 0, len(payload.Response.Data))

	for _, row := range payload.Response.Data {
		date, err := parsePeriod(row.Period)
		if err != nil {
			return catalog.Batch{}, fetch.NewError("eia", fetch.CategoryUnknown,
				fmt.Errorf("series %s: %w", series, err))
		}

		points = append(points, catalog.Point{Date: date, Identifier: series, Value: row.Value})
	}

	return catalog.Batch{Source: "eia", Shape: catalog.ShapeObservation, Points: points}, nil
}

// parsePeriod normalizes the EIA period granularities onto a calendar day:
// monthly periods land on the first of the month, annual on January 1st.
func parsePeriod(period string) (catalog.Date, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, period); err == nil {
			return catalog.DateOf(t), nil
		}
	}

	return catalog.Date{}, fmt.Errorf("unrecognized period %q", period)
}
