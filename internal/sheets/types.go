package sheets

// Tab titles of the published report.
const (
	TabSummary    = "Summary"
	TabFlags      = "Flags"
	TabAllocation = "MMP Allocation"
)

// Tab is one worksheet of the published report.
type Tab struct {
	Title  string
	Values [][]any
	// CurrencyColumns and PercentColumns are zero-based column indexes.
	CurrencyColumns []int64
	PercentColumns  []int64
	// HeaderColor is the background of the first row, as 0-1 RGB.
	HeaderColor [3]float64
}

// Header colors match the exported workbook: pink summary, yellow flags and
// lavender allocation headers.
var (
	summaryHeaderColor    = [3]float64{1.0, 0.82, 0.86}
	flagsHeaderColor      = [3]float64{1.0, 1.0, 0.8}
	allocationHeaderColor = [3]float64{0.9, 0.9, 0.98}
)
