package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RowWarning is a non-fatal data-quality problem tied to one invoice line.
type RowWarning struct {
	Err       error
	InvoiceID string
	Row       int
}

// Report is the outcome of one processing run.
type Report struct {
	GeneratedAt time.Time
	// Totals maps category to its total.
	Totals map[string]CategoryTotal
	// Allocation is nil when the allocation stage failed; see AllocationErr.
	Allocation    *Allocation
	AllocationErr error
	SourceFile    string
	// Period is the export month, formatted YYYY_MM.
	Period    string
	RunID     string
	Lines     []InvoiceLine
	Reference []MMPReferenceRow
	Warnings  []RowWarning
}

// GrandTotal sums every category total.
func (r *Report) GrandTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range r.Totals {
		sum = sum.Add(t.TotalAmount)
	}
	return sum
}

// FlagCounts returns the number of lines carrying each flag kind.
func (r *Report) FlagCounts() map[FlagKind]int {
	counts := make(map[FlagKind]int)
	for _, line := range r.Lines {
		for kind := range line.Flags {
			counts[kind]++
		}
	}
	return counts
}

// LabelMMPReclass labels the summary row carrying the Subset allocation.
const LabelMMPReclass = "Total MMP Reclass"

// SummaryRow is one line of the exported category summary.
type SummaryRow struct {
	Label string
	Total decimal.Decimal
	Count int
}

// SummaryRows returns one row per category sorted by name, followed by the
// Total MMP Reclass row when the allocation succeeded.
func (r *Report) SummaryRows() []SummaryRow {
	totals := SortedTotals(r.Totals)
	rows := make([]SummaryRow, 0, len(totals)+1)
	for _, t := range totals {
		rows = append(rows, SummaryRow{Label: t.Category, Total: t.TotalAmount, Count: t.LineCount})
	}
	if r.Allocation != nil {
		rows = append(rows, SummaryRow{Label: LabelMMPReclass, Total: r.Allocation.SubsetAmount})
	}
	return rows
}
