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
	yahooBaseURL = "https://query1.finance.yahoo.com"

	// yahooProgressEvery controls how often Fetch logs a progress line when
	// walking a long symbol list.
	yahooProgressEvery = 10
)

// Yahoo fetches daily OHLCV bars from the Yahoo Finance v8 chart API, one
// request per symbol.
type Yahoo struct {
	client   *http.Client
	executor *fetch.Executor
	logger   *slog.Logger

	// baseURL is overridden by tests; production uses yahooBaseURL.
	baseURL string
}

// Compile-time check that Yahoo implements Source.
var _ Source = (*Yahoo)(nil)

// chartResponse mirrors the subset of the v8 chart payload the pipeline
// consumes. Quote arrays use pointer elements because Yahoo emits JSON nulls
// for halted or unlisted days.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewYahoo creates the Yahoo Finance source.
func NewYahoo(client *http.Client, executor *fetch.Executor, logger *slog.Logger) *Yahoo {
	return &Yahoo{
		client:   client,
		executor: executor,
		logger:   logger,
		baseURL:  yahooBaseURL,
	}
}

// Name returns the registry name of the source.
func (y *Yahoo) Name() string {
	return "yahoo"
}

// Fetch downloads daily bars for every requested symbol, each symbol from its
// own series start. Bars whose value fields are all null are dropped: Yahoo
// pads ranges with fully-empty days that carry no information.
func (y *Yahoo) Fetch(ctx context.Context, req Request) (catalog.Batch, error) {
	batch := catalog.Batch{Source: y.Name(), Shape: catalog.ShapeOHLCV}

	for i, symbol := range req.Identifiers {
		part, err := y.fetchSymbol(ctx, symbol, req.StartFor(symbol), req.End)
		if err != nil {
			return catalog.Batch{}, fmt.Errorf("symbol %s: %w", symbol, err)
		}

		batch.Bars = append(batch.Bars, part...)

		if (i+1)%yahooProgressEvery == 0 {
			y.logger.Info("yahoo fetch progress",
				slog.Int("symbols_done", i+1),
				slog.Int("symbols_total", len(req.Identifiers)),
				slog.Int("bars", len(batch.Bars)),
			)
		}
	}

	batch.FetchedAt = time.Now().UTC()

	return batch, nil
}

// fetchSymbol issues one chart request and decodes it into bars.
func (y *Yahoo) fetchSymbol(ctx context.Context, symbol string, start, end catalog.Date) ([]catalog.Bar, error) {
	if end.IsZero() {
		end = catalog.DateOf(time.Now())
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Time().Unix()))
	// period2 is exclusive upstream; include the end day itself.
	q.Set("period2", fmt.Sprintf("%d", end.AddDays(1).Time().Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), q.Encode())

	batch, err := getJSON(ctx, y.executor, y.client, y.Name(), endpoint, func(body io.Reader) (catalog.Batch, error) {
		return decodeChart(symbol, body)
	})
	if err != nil {
		return nil, err
	}

	return batch.Bars, nil
}

// decodeChart converts one chart payload into bars for a symbol.
func decodeChart(symbol string, body io.Reader) (catalog.Batch, error) {
	var payload chartResponse

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return catalog.Batch{}, fetch.NewError("yahoo", fetch.CategoryUnknown,
			fmt.Errorf("decoding chart payload: %w", err))
	}

	if e := payload.Chart.Error; e != nil {
		return catalog.Batch{}, fetch.NewError("yahoo", fetch.CategoryClientError,
			fmt.Errorf("chart API error %s: %s", e.Code, e.Description))
	}

	// An empty result set is "no data", not a failure.
	if len(payload.Chart.Result) == 0 {
		return catalog.Batch{Source: "yahoo", Shape: catalog.ShapeOHLCV}, nil
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return catalog.Batch{Source: "yahoo", Shape: catalog.ShapeOHLCV}, nil
	}

	quote := result.Indicators.Quote[0]
	bars := make([]catalog.Bar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		bar := catalog.Bar{
			Date:   catalog.DateOf(time.Unix(ts, 0)),
			Symbol: symbol,
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: at(quote.Volume, i),
		}

		if bar.Open == nil && bar.High == nil && bar.Low == nil && bar.Close == nil && bar.Volume == nil {
			continue
		}

		bars = append(bars, bar)
	}

	return catalog.Batch{Source: "yahoo", Shape: catalog.ShapeOHLCV, Bars: bars}, nil
}

// at indexes a quote array. Yahoo occasionally ships quote arrays shorter
// than the timestamp list; an out-of-range read is a null.
func at[T any](values []*T, i int) *T {
	if i >= len(values) {
		return nil
	}

	return values[i]
}
