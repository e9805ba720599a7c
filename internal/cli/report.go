package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/Veraticus/invoice-report/internal/service"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// maxWarnings caps how many row warnings are printed; the rest are counted.
const maxWarnings = 10

// FormatMoney renders an amount as "$1,234.56" or "-$50.00".
func FormatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.Round(2).IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

// FormatPercent renders a fraction such as 0.6 as "60.00%".
func FormatPercent(d decimal.Decimal) string {
	return d.Shift(2).StringFixed(2) + "%"
}

// table renders rows under a bold header. Columns listed in right are
// right-aligned.
type table struct {
	header []string
	rows   [][]string
	right  map[int]bool
}

func newTable(header ...string) *table {
	return &table{header: header, right: make(map[int]bool)}
}

func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) String() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}

	var b strings.Builder
	b.WriteString(t.line(t.header, widths, TableHeaderStyle))
	b.WriteByte('\n')
	for _, row := range t.rows {
		b.WriteString(t.line(row, widths, lipgloss.NewStyle()))
		b.WriteByte('\n')
	}
	return b.String()
}

func (t *table) line(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		var c string
		if i < len(cells) {
			c = cells[i]
		}
		pad := strings.Repeat(" ", w-lipgloss.Width(c))
		if t.right[i] {
			c = pad + c
		} else {
			c += pad
		}
		parts[i] = TableCellStyle.Render(style.Render(c))
	}
	return strings.TrimRight(strings.Join(parts, ""), " ")
}

// RenderCategorySummary renders the per-category totals, the Total MMP
// Reclass line when present and the grand total.
func RenderCategorySummary(report *model.Report) string {
	t := newTable("Category", "Lines", "Total").alignRight(1, 2)
	for _, row := range report.SummaryRows() {
		count := ""
		if row.Label != model.LabelMMPReclass {
			count = fmt.Sprintf("%d", row.Count)
		}
		t.add(row.Label, count, FormatMoney(row.Total))
	}
	t.add(BoldStyle.Render("Grand Total"), fmt.Sprintf("%d", len(report.Lines)), BoldStyle.Render(FormatMoney(report.GrandTotal())))

	return FormatTitle("Category Summary") + "\n" + t.String()
}

// RenderFlagSummary renders the count of flagged lines per flag kind.
func RenderFlagSummary(report *model.Report) string {
	counts := report.FlagCounts()
	if len(counts) == 0 {
		return FormatSuccess("No anomalies flagged") + "\n"
	}

	kinds := make([]model.FlagKind, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var b strings.Builder
	flagged := len(model.FlaggedLines(report.Lines))
	b.WriteString(FormatWarning(fmt.Sprintf("%d of %d lines flagged", flagged, len(report.Lines))))
	b.WriteByte('\n')
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  %s %s\n", SubtleStyle.Render(string(kind)+":"), fmt.Sprintf("%d", counts[kind]))
	}
	return b.String()
}

// RenderAllocation renders the MMP allocation, or the reason it is missing.
func RenderAllocation(report *model.Report) string {
	title := FormatTitle("MMP Allocation") + "\n"
	a := report.Allocation
	if a == nil {
		reason := "no allocation was produced"
		if report.AllocationErr != nil {
			reason = report.AllocationErr.Error()
		}
		return title + FormatError("Allocation unavailable: "+reason) + "\n"
	}

	t := newTable("State", "Contract", "% of Payments", "Amount").alignRight(2, 3)
	for _, r := range a.Results {
		t.add(r.State, string(r.Contract), FormatPercent(r.PctOfPayments), FormatMoney(r.AllocatedAmount))
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(t.String())
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Allocated total:"), FormatMoney(a.ChartsTotal))
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Anchor amount:"), FormatMoney(a.AnchorAmount))
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Adjusted:"), FormatMoney(a.AdjustedAmount))
	if !a.Remainder.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Rounding remainder:"), FormatMoney(a.Remainder))
	}
	return b.String()
}

// RenderWarnings lists row warnings, truncated after the first few.
func RenderWarnings(warnings []model.RowWarning) string {
	if len(warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(FormatWarning(fmt.Sprintf("%d row warnings", len(warnings))))
	b.WriteByte('\n')
	for i, w := range warnings {
		if i == maxWarnings {
			b.WriteString(SubtleStyle.Render(fmt.Sprintf("  ... and %d more", len(warnings)-maxWarnings)))
			b.WriteByte('\n')
			break
		}
		fmt.Fprintf(&b, "  row %d (%s): %v\n", w.Row, w.InvoiceID, w.Err)
	}
	return b.String()
}

// RenderReport renders everything printed after a run.
func RenderReport(report *model.Report) string {
	sections := []string{
		RenderCategorySummary(report),
		RenderFlagSummary(report),
		RenderAllocation(report),
	}
	if w := RenderWarnings(report.Warnings); w != "" {
		sections = append(sections, w)
	}
	return strings.Join(sections, "\n")
}

// RenderRunList renders archived run headlines.
func RenderRunList(runs []service.RunSummary) string {
	if len(runs) == 0 {
		return FormatInfo("No archived runs") + "\n"
	}

	t := newTable("ID", "Created", "Period", "Lines", "Flagged", "Grand Total", "MMP Reclass").alignRight(3, 4, 5, 6)
	for _, r := range runs {
		reclass := FormatMoney(r.SubsetAmount)
		if r.AllocationErr != "" {
			reclass = ErrorStyle.Render("failed")
		}
		t.add(
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Period,
			fmt.Sprintf("%d", r.LineCount),
			fmt.Sprintf("%d", r.FlaggedCount),
			FormatMoney(r.GrandTotal),
			reclass,
		)
	}
	return FormatTitle("Archived Runs") + "\n" + t.String()
}

// RenderArchivedRun renders one run loaded from the archive.
func RenderArchivedRun(run *service.ArchivedRun) string {
	var b strings.Builder

	header := fmt.Sprintf("%s %s\n%s %s\n%s %s\n%s %s",
		SubtleStyle.Render("Period:"), run.Period,
		SubtleStyle.Render("Source:"), run.SourceFile,
		SubtleStyle.Render("Created:"), run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		SubtleStyle.Render("Lines:"), fmt.Sprintf("%d (%d flagged, %d warnings)", run.LineCount, run.FlaggedCount, run.WarningCount),
	)
	b.WriteString(RenderBox(FolderIcon+" Run "+run.ID, header))
	b.WriteString("\n\n")

	totals := newTable("Category", "Lines", "Total").alignRight(1, 2)
	for _, total := range run.Totals {
		totals.add(total.Category, fmt.Sprintf("%d", total.LineCount), FormatMoney(total.TotalAmount))
	}
	totals.add(BoldStyle.Render("Grand Total"), fmt.Sprintf("%d", run.LineCount), BoldStyle.Render(FormatMoney(run.GrandTotal)))
	b.WriteString(FormatTitle("Category Summary"))
	b.WriteByte('\n')
	b.WriteString(totals.String())
	b.WriteByte('\n')

	if run.AllocationErr != "" {
		b.WriteString(FormatError("Allocation unavailable: " + run.AllocationErr))
		b.WriteByte('\n')
	} else if len(run.Allocations) > 0 {
		alloc := newTable("State", "Contract", "% of Payments", "Amount").alignRight(2, 3)
		for _, r := range run.Allocations {
			alloc.add(r.State, string(r.Contract), FormatPercent(r.PctOfPayments), FormatMoney(r.AllocatedAmount))
		}
		b.WriteString(FormatTitle("MMP Allocation"))
		b.WriteByte('\n')
		b.WriteString(alloc.String())
		fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Adjusted:"), FormatMoney(run.Adjusted))
	}

	if len(run.Flagged) > 0 {
		flagged := newTable("Row", "Invoice", "Source", "Contract", "Amount", "Flags").alignRight(0, 4)
		for _, line := range run.Flagged {
			flagged.add(fmt.Sprintf("%d", line.Row), line.InvoiceID, string(line.Source), string(line.Contract), FormatMoney(line.Amount), line.Flags.String())
		}
		b.WriteByte('\n')
		b.WriteString(FormatTitle("Flagged Lines"))
		b.WriteByte('\n')
		b.WriteString(flagged.String())
	}

	return b.String()
}
