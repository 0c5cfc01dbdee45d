package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/macrosync-io/macrosync/internal/catalog"
	"github.com/macrosync-io/macrosync/internal/fetch"
)

// spreadsheetPoliteInterval spaces out requests against the publishing
// sites. These are small government and industry pages with no published
// rate contract, so the limiter errs well on the slow side.
const spreadsheetPoliteInterval = 2 * time.Second

type (
	// WorkbookReader decodes a downloaded workbook into raw rows of cells.
	// The sheet argument selects a sheet for formats that have them and is
	// ignored otherwise.
	WorkbookReader interface {
		Read(r io.Reader, sheet string) ([][]string, error)
	}

	// RowFunc transforms the raw rows of one workbook into long-format
	// points. Each scraped source supplies its own transform; everything
	// else about the scrape is shared.
	RowFunc func(rows [][]string) ([]catalog.Point, error)

	// SheetSpec parameterizes one scraped-spreadsheet source: where the
	// workbook lives, how to find it, and how to turn its rows into points.
	SheetSpec struct {
		// Source is the registry name.
		Source string

		// PageURL is the index page scraped for the workbook link. Empty
		// means FileURL is fetched directly.
		PageURL string

		// LinkPattern locates the workbook link on the index page. When the
		// pattern has a capture group the group is the link, otherwise the
		// whole match is. Relative links resolve against PageURL.
		LinkPattern *regexp.Regexp

		// FileURL is the workbook location when no page scrape is needed.
		FileURL string

		// Sheet selects the sheet to read, for formats that have sheets.
		Sheet string

		// Rows is the per-source row transform.
		Rows RowFunc
	}

	// Spreadsheet is the generic scraped-spreadsheet source: locate the
	// workbook, download it with a browser User-Agent, decode it, and run
	// the configured row transform.
	Spreadsheet struct {
		spec    SheetSpec
		client  *http.Client
		reader  WorkbookReader
		limiter *rate.Limiter
		logger  *slog.Logger
	}

	// CSVWorkbook reads workbooks published as (or exported to) CSV. It
	// ignores the sheet argument: a CSV file is its only sheet.
	CSVWorkbook struct{}
)

var _ Source = (*Spreadsheet)(nil)

var _ WorkbookReader = CSVWorkbook{}

// Read decodes CSV rows. Rows may have varying cell counts; the transforms
// deal with ragged tables themselves.
func (CSVWorkbook) Read(r io.Reader, _ string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv workbook: %w", err)
	}

	return rows, nil
}

// NewSpreadsheet creates a scraped-spreadsheet source from its spec.
func NewSpreadsheet(spec SheetSpec, client *http.Client, reader WorkbookReader, logger *slog.Logger) *Spreadsheet {
	return &Spreadsheet{
		spec:    spec,
		client:  client,
		reader:  reader,
		limiter: rate.NewLimiter(rate.Every(spreadsheetPoliteInterval), 1),
		logger:  logger,
	}
}

// Name returns the registry name of the source.
func (s *Spreadsheet) Name() string {
	return s.spec.Source
}

// Fetch locates and downloads the workbook, decodes it, runs the row
// transform, and trims rows older than the requested start. Spreadsheet
// sources are direct: the identifier list is ignored.
func (s *Spreadsheet) Fetch(ctx context.Context, req Request) (catalog.Batch, error) {
	fileURL := s.spec.FileURL

	if s.spec.PageURL != "" {
		located, err := s.locateWorkbook(ctx)
		if err != nil {
			return catalog.Batch{}, err
		}

		fileURL = located
	}

	s.logger.Debug("downloading workbook",
		slog.String("source", s.spec.Source),
		slog.String("url", fileURL),
	)

	body, err := s.get(ctx, fileURL)
	if err != nil {
		return catalog.Batch{}, err
	}

	defer func() {
		_ = body.Close()
	}()

	rows, err := s.reader.Read(body, s.spec.Sheet)
	if err != nil {
		return catalog.Batch{}, fetch.NewError(s.spec.Source, fetch.CategoryUnknown, err)
	}

	points, err := s.spec.Rows(rows)
	if err != nil {
		return catalog.Batch{}, fetch.NewError(s.spec.Source, fetch.CategoryUnknown, err)
	}

	kept := points[:0]

	for _, p := range points {
		if req.Start.IsZero() || !p.Date.Before(req.Start) {
			kept = append(kept, p)
		}
	}

	return catalog.Batch{
		Source:    s.spec.Source,
		Shape:     catalog.ShapeMetric,
		Points:    kept,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// locateWorkbook fetches the index page and extracts the workbook link.
func (s *Spreadsheet) locateWorkbook(ctx context.Context) (string, error) {
	body, err := s.get(ctx, s.spec.PageURL)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = body.Close()
	}()

	page, err := io.ReadAll(body)
	if err != nil {
		return "", fetch.TransportError(s.spec.Source, err)
	}

	match := s.spec.LinkPattern.FindSubmatch(page)
	if match == nil {
		return "", fetch.NewError(s.spec.Source, fetch.CategoryUnknown,
			fmt.Errorf("no workbook link matching %q on %s", s.spec.LinkPattern, s.spec.PageURL))
	}

	link := string(match[0])
	if len(match) > 1 {
		link = string(match[1])
	}

	base, err := url.Parse(s.spec.PageURL)
	if err != nil {
		return "", fetch.NewError(s.spec.Source, fetch.CategoryUnknown, err)
	}

	resolved, err := base.Parse(link)
	if err != nil {
		return "", fetch.NewError(s.spec.Source, fetch.CategoryUnknown,
			fmt.Errorf("resolving workbook link %q: %w", link, err))
	}

	return resolved.String(), nil
}

// get issues one polite GET with a browser User-Agent and returns the body
// of a 200 response.
func (s *Spreadsheet) get(ctx context.Context, u string) (io.ReadCloser, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fetch.NewError(s.spec.Source, fetch.CategoryUnknown, err)
	}

	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fetch.TransportError(s.spec.Source, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		return nil, fetch.StatusError(s.spec.Source, resp.StatusCode,
			fmt.Errorf("unexpected status %s for %s", resp.Status, u))
	}

	return resp.Body, nil
}

// meltRows melts a dated table into long format: the first column is the
// date, every remaining header column becomes one metric per data row. Rows
// whose first cell does not parse as a date are skipped, which drops title
// and footnote rows without per-source preamble handling.
func meltRows(symbol, metricPrefix string, parseDate func(string) (catalog.Date, error), rows [][]string) ([]catalog.Point, error) {
	if len(rows) < 2 {
		return nil, nil
	}

	header := rows[0]

	var points []catalog.Point

	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}

		date, err := parseDate(strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}

		for col := 1; col < len(row) && col < len(header); col++ {
			cell := strings.TrimSpace(row[col])
			name := strings.TrimSpace(header[col])

			if name == "" {
				continue
			}

			point := catalog.Point{
				Date:       date,
				Identifier: symbol,
				Metric:     metricPrefix + metricName(name),
			}

			if cell != "" {
				v, err := parseNumber(cell)
				if err != nil {
					return nil, fmt.Errorf("column %q on %s: %w", name, date, err)
				}

				point.Value = &v
			}

			points = append(points, point)
		}
	}

	return points, nil
}

// metricName normalizes a header cell into a metric key: spaces collapse to
// single underscores, everything else passes through.
func metricName(name string) string {
	return strings.Join(strings.Fields(name), "_")
}

// parseNumber reads a spreadsheet numeric cell, tolerating thousands
// separators and accounting-style parentheses for negatives.
func parseNumber(cell string) (float64, error) {
	cleaned := strings.ReplaceAll(cell, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable number %q", cell)
	}

	if negative {
		v = -v
	}

	return v, nil
}

// parseSheetDate reads the date layouts the scraped workbooks use.
func parseSheetDate(cell string) (catalog.Date, error) {
	for _, layout := range []string{"2006-01-02", "1/2/2006", "1/2/06", "Jan-06", "Jan 2006", "2006-01"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return catalog.DateOf(t), nil
		}
	}

	return catalog.Date{}, fmt.Errorf("unparseable date %q", cell)
}
