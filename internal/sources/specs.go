package sources

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

// usdaYearFloor and usdaYearCeiling bound what counts as a year cell when
// scanning the USDA workbook for its year-header row.
const (
	usdaYearFloor   = 1900
	usdaYearCeiling = 2100
)

// BKRSpec describes the Baker Hughes North America rig count workbook,
// linked from the rig count landing page.
func BKRSpec() SheetSpec {
	return SheetSpec{
		Source:      "bkr",
		PageURL:     "https://rigcount.bakerhughes.com/na-rig-count",
		LinkPattern: regexp.MustCompile(`(?i)href="([^"]*rig[^"]*count[^"]*\.xls[xb]?)"`),
		Sheet:       "US Count",
		Rows: func(rows [][]string) ([]catalog.Point, error) {
			return meltRows("BKR", "BKR_", parseSheetDate, rows)
		},
	}
}

// FINRASpec describes the FINRA monthly margin statistics workbook.
func FINRASpec() SheetSpec {
	return SheetSpec{
		Source:      "finra",
		PageURL:     "https://www.finra.org/investors/learn-to-invest/advanced-investing/margin-statistics",
		LinkPattern: regexp.MustCompile(`(?i)href="([^"]*margin[^"]*\.xlsx?)"`),
		Sheet:       "Margin Statistics",
		Rows: func(rows [][]string) ([]catalog.Point, error) {
			return meltRows("FINRA", "FINRA_", parseSheetDate, rows)
		},
	}
}

// SilverblattSpec describes the S&P Dow Jones Indices earnings estimate
// workbook. The file sits at a stable URL, so no page scrape is needed.
func SilverblattSpec() SheetSpec {
	return SheetSpec{
		Source:  "silverblatt",
		FileURL: "https://www.spglobal.com/spdji/en/documents/additional-material/sp-500-eps-est.xlsx",
		Sheet:   "QUARTERLY DATA",
		Rows: func(rows [][]string) ([]catalog.Point, error) {
			return meltRows("SPX", "SPX_", parseSheetDate, rows)
		},
	}
}

// USDASpec describes the USDA ERS farm income workbook. Its layout is years
// across the columns rather than dates down the rows, so it carries its own
// row transform instead of the shared melt.
func USDASpec() SheetSpec {
	return SheetSpec{
		Source:      "usda",
		PageURL:     "https://www.ers.usda.gov/data-products/farm-income-and-wealth-statistics/",
		LinkPattern: regexp.MustCompile(`(?i)href="([^"]*income[^"]*\.xlsx?)"`),
		Sheet:       "US farm income",
		Rows:        usdaRows,
	}
}

// usdaRows extracts annual net farm income from the USDA workbook.
//
// The workbook lays years across the columns. The transform finds the
// year-header row (the first row where at least two cells parse as
// plausible years), then melts the "net farm income" line across it, one
// point per year dated January 1st. Lines mentioning "cash" are skipped:
// net cash income is a different series the pipeline does not track.
func usdaRows(rows [][]string) ([]catalog.Point, error) {
	years := map[int]int{}

	rowIdx := 0

	for i, row := range rows {
		candidate := map[int]int{}

		for col, cell := range row {
			if y, ok := parseYear(cell); ok {
				candidate[col] = y
			}
		}

		if len(candidate) >= 2 {
			years = candidate
			rowIdx = i

			break
		}
	}

	if len(years) == 0 {
		return nil, fmt.Errorf("no year header row in workbook (%d rows scanned)", len(rows))
	}

	var points []catalog.Point

	for _, row := range rows[rowIdx+1:] {
		if len(row) == 0 {
			continue
		}

		label := strings.ToLower(strings.TrimSpace(row[0]))
		if !strings.Contains(label, "net farm income") || strings.Contains(label, "cash") {
			continue
		}

		cols := make([]int, 0, len(years))
		for col := range years {
			cols = append(cols, col)
		}

		sort.Ints(cols)

		for _, col := range cols {
			year := years[col]

			if col >= len(row) {
				continue
			}

			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}

			v, err := parseNumber(cell)
			if err != nil {
				return nil, fmt.Errorf("net farm income for %d: %w", year, err)
			}

			points = append(points, catalog.Point{
				Date:       catalog.NewDate(year, 1, 1),
				Identifier: "USDA_NET_FARM_INCOME",
				Metric:     "USDA_Net_Farm_Income",
				Value:      &v,
			})
		}

		break
	}

	return points, nil
}

// parseYear reads a cell as a plausible calendar year. USDA marks forecast
// years with a trailing "F", which still counts.
func parseYear(cell string) (int, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(cell), "F")

	y, err := strconv.Atoi(trimmed)
	if err != nil || y < usdaYearFloor || y > usdaYearCeiling {
		return 0, false
	}

	return y, true
}
