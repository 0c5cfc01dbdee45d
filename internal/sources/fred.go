package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/config"
	"github.com/macrosync-io/macrosync/internal/fetch"
)

const fredBaseURL = "https://api.stlouisfed.org"

// FRED fetches economic series observations from the St. Louis Fed FRED API,
// one request per series.
type FRED struct {
	client   *http.Client
	executor *fetch.Executor
	apiKey   string
	logger   *slog.Logger

	baseURL string
}

var _ Source = (*FRED)(nil)

// observationsResponse mirrors the observations payload. FRED renders a
// missing observation as the literal string ".", which becomes a null.
type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// NewFRED creates the FRED source. The API key is required; a missing key is
// a configuration error surfaced at construction, before any fetch runs.
func NewFRED(client *http.Client, executor *fetch.Executor, apiKey string, logger *slog.Logger) (*FRED, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrMissingCredential, config.EnvFredAPIKey)
	}

	return &FRED{
		client:   client,
		executor: executor,
		apiKey:   apiKey,
		logger:   logger,
		baseURL:  fredBaseURL,
	}, nil
}

// Name returns the registry name of the source.
func (f *FRED) Name() string {
	return "fred"
}

// Fetch downloads observations for every requested series, each from its own
// series start.
func (f *FRED) Fetch(ctx context.Context, req Request) (catalog.Batch, error) {
	batch := catalog.Batch{Source: f.Name(), Shape: catalog.ShapeObservation}

	for _, series := range req.Identifiers {
		points, err := f.fetchSeries(ctx, series, req.StartFor(series))
		if err != nil {
			return catalog.Batch{}, fmt.Errorf("series %s: %w", series, err)
		}

		batch.Points = append(batch.Points, points...)
	}

	batch.FetchedAt = time.Now().UTC()

	f.logger.Debug("fred fetch complete",
		slog.Int("series", len(req.Identifiers)),
		slog.Int("observations", len(batch.Points)),
	)

	return batch, nil
}

func (f *FRED) fetchSeries(ctx context.Context, series string, start catalog.Date) ([]catalog.Point, error) {
	q := url.Values{}
	q.Set("series_id", series)
	q.Set("api_key", f.apiKey)
	q.Set("file_type", "json")
	q.Set("observation_start", start.String())

	endpoint := fmt.Sprintf("%s/fred/series/observations?%s", f.baseURL, q.Encode())

	batch, err := getJSON(ctx, f.executor, f.client, f.Name(), endpoint, func(body io.Reader) (catalog.Batch, error) {
		return decodeObservations(series, body)
	})
	if err != nil {
		return nil, err
	}

	return batch.Points, nil
}

// decodeObservations converts one observations payload into points.
func decodeObservations(series string, body io.Reader) (catalog.Batch, error) {
	var payload observationsResponse

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return catalog.Batch{}, fetch.NewError("fred", fetch.CategoryUnknown,
			fmt.Errorf("decoding observations payload: %w", err))
	}

	points := make([]catalog.Point, 0, len(payload.Observations))

	for _, obs := range payload.Observations {
		date, err := catalog.ParseDate(obs.Date)
		if err != nil {
			return catalog.Batch{}, fetch.NewError("fred", fetch.CategoryUnknown,
				fmt.Errorf("observation for %s: %w", series, err))
		}

		point := catalog.Point{Date: date, Identifier: series}

		if obs.Value != "." {
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err != nil {
				return catalog.Batch{}, fetch.NewError("fred", fetch.CategoryUnknown,
					fmt.Errorf("observation %s for %s: %w", obs.Date, series, err))
			}

			point.Value = &v
		}

		points = append(points, point)
	}

	return catalog.Batch{Source: "fred", Shape: catalog.ShapeObservation, Points: points}, nil
}
