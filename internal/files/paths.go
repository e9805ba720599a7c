package files

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PeriodLayout formats a report period, e.g. 2025_04.
const PeriodLayout = "2006_01"

// Period returns the report period of a journal date.
func Period(t time.Time) string {
	return t.Format(PeriodLayout)
}

// ReportPaths are the output locations for one period.
type ReportPaths struct {
	Dir           string
	InvoiceReport string
	MMPAllocation string
}

// NewReportPaths builds <root>/<period>/Invoice_Report_<period>.xlsx and its
// MMP allocation sibling.
func NewReportPaths(root, period string) ReportPaths {
	dir := filepath.Join(root, period)
	return ReportPaths{
		Dir:           dir,
		InvoiceReport: filepath.Join(dir, fmt.Sprintf("Invoice_Report_%s.xlsx", period)),
		MMPAllocation: filepath.Join(dir, fmt.Sprintf("MMP_Reclass_Allocations_%s.xlsx", period)),
	}
}

// EnsureDir creates the period folder.
func (p ReportPaths) EnsureDir() error {
	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", p.Dir, err)
	}
	return nil
}
