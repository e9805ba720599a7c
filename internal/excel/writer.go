package excel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/invoice-report/internal/files"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/xuri/excelize/v2"
)

// Output sheet names.
const (
	SheetSummary    = "Summary"
	SheetFullData   = "Full Data"
	SheetFlags      = "Flags"
	SheetAllocation = "MMP Allocation"
)

// Header and row fills.
const (
	colorSummaryHeader    = "#FFD1DC"
	colorDataHeader       = "#CCFFCC"
	colorFlagsHeader      = "#FFFFCC"
	colorAllocationHeader = "#E6E6FA"
	colorTotalRow         = "#D9D9D9"
	colorSubsetRow        = "#FFFACD"
)

const (
	currencyFormat = "$#,##0.00"
	maxColWidth    = 50.0
)

// LineHeader is the column layout of the Full Data and Flags sheets.
var LineHeader = []string{
	"Row", "Journal Date", "Invoice", "Source", "Contract",
	"Line Descr", "Amount", "AP Amount", "Category", "Flags",
}

// ReportWriter writes the invoice report and MMP allocation workbooks under
// <root>/<period>/. It implements service.ReportWriter.
type ReportWriter struct {
	root string
}

// NewReportWriter creates a writer rooted at the processed reports folder.
func NewReportWriter(root string) *ReportWriter {
	return &ReportWriter{root: root}
}

// Name identifies the writer in logs and errors.
func (w *ReportWriter) Name() string {
	return "xlsx"
}

// Paths returns where a report for period is written.
func (w *ReportWriter) Paths(period string) files.ReportPaths {
	return files.NewReportPaths(w.root, period)
}

// Write saves both workbooks. The MMP workbook is skipped when the
// allocation failed.
func (w *ReportWriter) Write(ctx context.Context, report *model.Report) error {
	if report.Period == "" {
		return fmt.Errorf("report has no period")
	}

	paths := w.Paths(report.Period)
	if err := paths.EnsureDir(); err != nil {
		return err
	}

	if report.Allocation != nil {
		if err := WriteAllocation(paths.MMPAllocation, report); err != nil {
			return err
		}
		slog.Info("Saved MMP allocation file", "path", paths.MMPAllocation)
	} else {
		slog.Warn("MMP allocation file not written", "error", report.AllocationErr)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := WriteInvoiceReport(paths.InvoiceReport, report); err != nil {
		return err
	}
	slog.Info("Saved main report file", "path", paths.InvoiceReport)

	return nil
}

// styles holds the style IDs shared by the sheets of one workbook.
type styles struct {
	headers  map[string]int
	currency int
	date     int
	percent  int
}

func newStyles(f *excelize.File, headerColors ...string) (*styles, error) {
	s := &styles{headers: make(map[string]int, len(headerColors))}

	for _, color := range headerColors {
		id, err := f.NewStyle(headerStyle(color))
		if err != nil {
			return nil, fmt.Errorf("failed to create header style: %w", err)
		}
		s.headers[color] = id
	}

	var err error
	if s.currency, err = f.NewStyle(&excelize.Style{CustomNumFmt: stringPtr(currencyFormat)}); err != nil {
		return nil, fmt.Errorf("failed to create currency style: %w", err)
	}
	if s.date, err = f.NewStyle(&excelize.Style{NumFmt: 14}); err != nil {
		return nil, fmt.Errorf("failed to create date style: %w", err)
	}
	if s.percent, err = f.NewStyle(&excelize.Style{NumFmt: 10, Alignment: &excelize.Alignment{Horizontal: "center"}}); err != nil {
		return nil, fmt.Errorf("failed to create percent style: %w", err)
	}
	return s, nil
}

func headerStyle(color string) *excelize.Style {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	return &excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    border,
	}
}

// WriteInvoiceReport writes the Summary, Full Data and Flags sheets.
func WriteInvoiceReport(path string, report *model.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	st, err := newStyles(f, colorSummaryHeader, colorDataHeader, colorFlagsHeader)
	if err != nil {
		return err
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSummarySheet(f, st, report); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetFullData); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	if err := writeLineSheet(f, st, SheetFullData, colorDataHeader, report.Lines); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetFlags); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	if err := writeLineSheet(f, st, SheetFlags, colorFlagsHeader, model.FlaggedLines(report.Lines)); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, st *styles, report *model.Report) error {
	header := []string{"Category", "Lines", "Total"}
	widths := newWidths(header)

	if err := writeHeader(f, SheetSummary, header, st.headers[colorSummaryHeader]); err != nil {
		return err
	}

	rows := report.SummaryRows()
	for i, row := range rows {
		r := i + 2
		values := []any{row.Label, row.Count, row.Total.InexactFloat64()}
		if row.Label == model.LabelMMPReclass {
			values[1] = nil
		}
		if err := setRow(f, SheetSummary, r, values); err != nil {
			return err
		}
		widths.observe(0, row.Label)
		widths.observe(2, row.Total.StringFixed(2))
	}

	if len(rows) > 0 {
		if err := f.SetCellStyle(SheetSummary, "C2", fmt.Sprintf("C%d", len(rows)+1), st.currency); err != nil {
			return fmt.Errorf("failed to style summary: %w", err)
		}
	}
	return widths.apply(f, SheetSummary)
}

func writeLineSheet(f *excelize.File, st *styles, sheet, headerColor string, lines []model.InvoiceLine) error {
	widths := newWidths(LineHeader)

	if err := writeHeader(f, sheet, LineHeader, st.headers[headerColor]); err != nil {
		return err
	}

	for i, line := range lines {
		values := []any{
			line.Row,
			line.JournalDate,
			line.InvoiceID,
			string(line.Source),
			string(line.Contract),
			line.LineDescr,
			line.Amount.InexactFloat64(),
			line.APAmount.InexactFloat64(),
			line.Category,
			line.Flags.String(),
		}
		if err := setRow(f, sheet, i+2, values); err != nil {
			return err
		}

		widths.observe(1, "2006-01-02")
		widths.observe(2, line.InvoiceID)
		widths.observe(5, line.LineDescr)
		widths.observe(6, line.Amount.StringFixed(2))
		widths.observe(7, line.APAmount.StringFixed(2))
		widths.observe(8, line.Category)
		widths.observe(9, line.Flags.String())
	}

	if len(lines) > 0 {
		last := len(lines) + 1
		if err := f.SetCellStyle(sheet, "B2", fmt.Sprintf("B%d", last), st.date); err != nil {
			return fmt.Errorf("failed to style %s: %w", sheet, err)
		}
		if err := f.SetCellStyle(sheet, "G2", fmt.Sprintf("H%d", last), st.currency); err != nil {
			return fmt.Errorf("failed to style %s: %w", sheet, err)
		}
	}
	return widths.apply(f, sheet)
}

// WriteAllocation writes the MMP workbook: the reference rows with their
// Payment Allocation, the anchor row in gray, the Subset row in yellow, an
// Unallocated row when the percentages leave part of the total uncovered and a
// trailing Adjusted row.
func WriteAllocation(path string, report *model.Report) error {
	alloc := report.Allocation
	if alloc == nil {
		return fmt.Errorf("report has no allocation")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	st, err := newStyles(f, colorAllocationHeader)
	if err != nil {
		return err
	}
	grayMoney, grayPct, err := rowStyles(f, colorTotalRow)
	if err != nil {
		return err
	}
	yellowMoney, yellowPct, err := rowStyles(f, colorSubsetRow)
	if err != nil {
		return err
	}

	const sheet = SheetAllocation
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := []string{"State", "Contract", "% of Payments", "Payment Allocation"}
	widths := newWidths(header)
	if err := writeHeader(f, sheet, header, st.headers[colorAllocationHeader]); err != nil {
		return err
	}

	byKey := make(map[string]model.AllocationResult, len(alloc.Results))
	for _, res := range alloc.Results {
		byKey[allocationKey(res.State, res.Contract)] = res
	}

	r := 2
	for _, ref := range report.Reference {
		amount := byKey[allocationKey(ref.State, ref.Contract)].AllocatedAmount
		moneyStyle, pctStyle := st.currency, st.percent
		switch {
		case ref.IsTotal():
			amount = alloc.AnchorAmount
			moneyStyle, pctStyle = grayMoney, grayPct
		case ref.IsSubset():
			amount = alloc.SubsetAmount
			moneyStyle, pctStyle = yellowMoney, yellowPct
		}

		var pct any
		if ref.PctOfPayments.Valid {
			pct = ref.PctOfPayments.Decimal.InexactFloat64()
		}
		if err := setRow(f, sheet, r, []any{ref.State, string(ref.Contract), pct, amount.InexactFloat64()}); err != nil {
			return err
		}
		if err := styleCell(f, sheet, 3, r, pctStyle); err != nil {
			return err
		}
		if err := styleCell(f, sheet, 4, r, moneyStyle); err != nil {
			return err
		}
		widths.observe(0, ref.State)
		widths.observe(3, amount.StringFixed(2))
		r++
	}

	if !alloc.Unallocated.IsZero() {
		if err := setRow(f, sheet, r, []any{model.StateUnallocated, nil, nil, alloc.Unallocated.InexactFloat64()}); err != nil {
			return err
		}
		if err := styleCell(f, sheet, 4, r, st.currency); err != nil {
			return err
		}
		widths.observe(0, model.StateUnallocated)
		r++
	}

	if err := setRow(f, sheet, r, []any{model.StateAdjusted, nil, nil, alloc.AdjustedAmount.InexactFloat64()}); err != nil {
		return err
	}
	if err := styleCell(f, sheet, 4, r, st.currency); err != nil {
		return err
	}
	if err := widths.apply(f, sheet); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func allocationKey(state string, contract model.Contract) string {
	return strings.ToUpper(strings.TrimSpace(state)) + "|" + strings.TrimSpace(string(contract))
}

func rowStyles(f *excelize.File, color string) (money, pct int, err error) {
	fill := excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	money, err = f.NewStyle(&excelize.Style{Fill: fill, CustomNumFmt: stringPtr(currencyFormat)})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create row style: %w", err)
	}
	pct, err = f.NewStyle(&excelize.Style{Fill: fill, NumFmt: 10, Alignment: &excelize.Alignment{Horizontal: "center"}})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create row style: %w", err)
	}
	return money, pct, nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleCell(f *excelize.File, sheet string, col, row, style int) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, name, name, style)
}

// widths tracks the widest value per column, capped at maxColWidth.
type widths []float64

func newWidths(header []string) widths {
	w := make(widths, len(header))
	for i, h := range header {
		w.observe(i, h)
	}
	return w
}

func (w widths) observe(col int, value string) {
	if col < len(w) {
		w[col] = max(w[col], min(float64(len(value)+2), maxColWidth))
	}
}

func (w widths) apply(f *excelize.File, sheet string) error {
	for i, width := range w {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size %s column %s: %w", sheet, col, err)
		}
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
