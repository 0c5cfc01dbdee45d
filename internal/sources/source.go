// Package sources implements the fetch collaborators for every registered
// external source.
//
// Each source turns its upstream payloads into a typed catalog.Batch at the
// boundary, reports failures as fetch.Error values carrying a structured
// category, and returns an empty batch rather than an error when the
// upstream simply has nothing new. HTTP sources run every request through a
// shared fetch.Executor, so the rate-limit and retry discipline sits as
// close to the wire as possible.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/fetch"
)

// browserUserAgent is sent on scraped-spreadsheet downloads. Several of the
// publishing sites reject the Go default agent outright.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type (
	// Request carries everything a source needs for one fetch: the
	// identifier subset assigned to it (empty for direct sources) and the
	// date range to cover.
	Request struct {
		// Identifiers is the identifier subset for identifier-driven
		// sources. Direct sources ignore it.
		Identifiers []string

		// StartDates maps identifiers to their individual series starts.
		// Identifiers absent from the map fall back to Start.
		StartDates map[string]catalog.Date

		// Start is the default series start for this source.
		Start catalog.Date

		// End bounds the fetch. Zero means "through today".
		End catalog.Date
	}

	// Source is the fetch contract every collaborator implements. Fetch
	// must return an empty batch, not an error, when no new data is
	// available, and must only fail after its internal retries are
	// exhausted, with a structured fetch.Error in the chain.
	Source interface {
		Name() string
		Fetch(ctx context.Context, req Request) (catalog.Batch, error)
	}
)

// StartFor resolves the series start for one identifier.
func (r Request) StartFor(identifier string) catalog.Date {
	if d, ok := r.StartDates[identifier]; ok && !d.IsZero() {
		return d
	}

	return r.Start
}

// getJSON issues one GET through the executor's rate-limit and retry
// discipline and decodes the body with decode. The decode function receives
// the body of a 200 response; any other status becomes a categorized
// fetch.Error before decode runs.
func getJSON(ctx context.Context, e *fetch.Executor, client *http.Client, source, url string, decode func(io.Reader) (catalog.Batch, error)) (catalog.Batch, error) {
	op := func(ctx context.Context) (catalog.Batch, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return catalog.Batch{}, fetch.NewError(source, fetch.CategoryUnknown, err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", browserUserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return catalog.Batch{}, fetch.TransportError(source, err)
		}

		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return catalog.Batch{}, fetch.StatusError(source, resp.StatusCode,
				fmt.Errorf("unexpected status %s", resp.Status))
		}

		return decode(resp.Body)
	}

	return e.Do(ctx, source, op)
}
