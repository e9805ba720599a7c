package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/invoice-report/internal/allocation"
	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/Veraticus/invoice-report/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var exportHeader = []any{"Journal Date", "Invoice", "Source", "Contract", "Line Descr", "Amount", "AP Amount"}

// writeWorkbook saves rows to a single-sheet workbook and returns its path.
func writeWorkbook(t *testing.T, name string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func exportRows(data ...[]any) [][]any {
	rows := [][]any{{"PeopleSoft Invoice Export - April 2025"}, exportHeader}
	return append(rows, data...)
}

func TestReadInvoiceExport(t *testing.T) {
	april := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	path := writeWorkbook(t, "export.xlsx", exportRows(
		[]any{april, "INV-1", "AP2", 1111, "Chart review", 100.25, 100.25},
		[]any{april, "INV-2", "COR", 1111, "Coupa", -50, nil},
		[]any{april, "INV-3", "AP2", 3333, "Other contract", 10, 10},
		[]any{april, "INV-4", "AP2", 2222, "MSG Chart Expense", 99, 99},
		[]any{},
		[]any{april, "INV-5", "COR", "2222", "Misc", "$1,234.50", nil},
		[]any{"05/01/2025", "INV-6", "AP2", 2222, "Late", "(12.00)", 0},
	))

	export, err := ReadInvoiceExport(path, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "2025_04", export.Period)
	assert.Equal(t, 6, export.Rows)
	require.Len(t, export.Lines, 4)

	first := export.Lines[0]
	assert.Equal(t, "INV-1", first.InvoiceID)
	assert.Equal(t, model.SourceAP2, first.Source)
	assert.Equal(t, model.Contract1111, first.Contract)
	assert.Equal(t, "100.25", first.Amount.String())
	assert.Equal(t, "100.25", first.APAmount.String())
	assert.True(t, first.JournalDate.Equal(april))
	assert.Equal(t, 3, first.Row)

	assert.Equal(t, "-50", export.Lines[1].Amount.String())
	assert.True(t, export.Lines[1].APAmount.IsZero())

	assert.Equal(t, "INV-5", export.Lines[2].InvoiceID)
	assert.Equal(t, "1234.5", export.Lines[2].Amount.String())
	assert.Equal(t, 8, export.Lines[2].Row)

	assert.Equal(t, "-12", export.Lines[3].Amount.String())
	assert.Equal(t, time.May, export.Lines[3].JournalDate.Month())
}

func TestReadInvoiceExport_Errors(t *testing.T) {
	april := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)

	t.Run("missing column", func(t *testing.T) {
		path := writeWorkbook(t, "export.xlsx", [][]any{
			{"banner"},
			{"Journal Date", "Invoice", "Source", "Amount"},
		})
		_, err := ReadInvoiceExport(path, DefaultOptions())
		require.ErrorIs(t, err, common.ErrMissingColumn)
		assert.Contains(t, err.Error(), "Contract")
		assert.Contains(t, err.Error(), "Line Descr")
	})

	t.Run("bad amount names the row", func(t *testing.T) {
		path := writeWorkbook(t, "export.xlsx", exportRows(
			[]any{april, "INV-1", "AP2", 1111, "ok", 1, 1},
			[]any{april, "INV-2", "AP2", 1111, "bad", "n/a", 1},
		))
		_, err := ReadInvoiceExport(path, DefaultOptions())
		require.ErrorIs(t, err, common.ErrInvalidRow)

		var rowErr *common.RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 4, rowErr.Row)
		assert.Equal(t, "INV-2", rowErr.InvoiceID)
	})

	t.Run("bad date", func(t *testing.T) {
		path := writeWorkbook(t, "export.xlsx", exportRows(
			[]any{"yesterday", "INV-1", "AP2", 1111, "ok", 1, 1},
		))
		_, err := ReadInvoiceExport(path, DefaultOptions())
		assert.ErrorIs(t, err, common.ErrInvalidRow)
	})

	t.Run("nothing left after filtering", func(t *testing.T) {
		path := writeWorkbook(t, "export.xlsx", exportRows(
			[]any{april, "INV-1", "AP2", 4444, "other", 1, 1},
		))
		export, err := ReadInvoiceExport(path, DefaultOptions())
		require.ErrorIs(t, err, common.ErrNoInvoiceData)
		assert.Equal(t, "2025_04", export.Period)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadInvoiceExport(filepath.Join(t.TempDir(), "nope.xlsx"), DefaultOptions())
		assert.Error(t, err)
	})
}

func TestReadInvoiceExport_FooterAndFilteredRows(t *testing.T) {
	april := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	path := writeWorkbook(t, "export.xlsx", exportRows(
		[]any{"n/a", "INV-0", "AP2", 3333, "Other contract", 10, 10},
		[]any{april, "INV-1", "AP2", 1111, "Chart review", 100.25, 100.25},
		[]any{"", "", "", "", "Grand Total", 100.25, 100.25},
	))

	export, err := ReadInvoiceExport(path, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "2025_04", export.Period)
	assert.Equal(t, 2, export.Rows)
	require.Len(t, export.Lines, 1)
	assert.Equal(t, "INV-1", export.Lines[0].InvoiceID)
}

func TestReadInvoiceExport_TextAmountsKeepPrecision(t *testing.T) {
	april := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	path := writeWorkbook(t, "export.xlsx", exportRows(
		[]any{april, "INV-1", "AP2", 1111, "Chart review", "1234567890123.456789", "$9,007,199,254,740,993.01"},
	))

	export, err := ReadInvoiceExport(path, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, export.Lines, 1)
	assert.Equal(t, "1234567890123.456789", export.Lines[0].Amount.String())
	assert.Equal(t, "9007199254740993.01", export.Lines[0].APAmount.String())
}

func TestReadReference(t *testing.T) {
	path := writeWorkbook(t, "ref.xlsx", [][]any{
		{"State", "Contract", "% of Payments"},
		{"CA", 1111, 0.6},
		{"NY", "1111", "30%"},
		{"Total", nil, 1},
		{"MMP", "Subset", 0.1},
		{"Adjusted", nil, nil},
		{"TX", 1111, "tbd"},
	})

	refs, err := ReadReference(path)
	require.NoError(t, err)
	require.Len(t, refs, 5)

	assert.Equal(t, "CA", refs[0].State)
	assert.Equal(t, model.Contract1111, refs[0].Contract)
	assert.Equal(t, "0.6", refs[0].PctOfPayments.Decimal.String())
	assert.Equal(t, 2, refs[0].Row)

	assert.Equal(t, "0.3", refs[1].PctOfPayments.Decimal.String())
	assert.True(t, refs[2].IsTotal())
	assert.True(t, refs[3].IsSubset())

	assert.Equal(t, "TX", refs[4].State)
	assert.False(t, refs[4].PctOfPayments.Valid)
	assert.Equal(t, 7, refs[4].Row)
}

func TestReadReference_MissingColumn(t *testing.T) {
	path := writeWorkbook(t, "ref.xlsx", [][]any{{"State", "Contract"}})
	_, err := ReadReference(path)
	assert.ErrorIs(t, err, common.ErrMissingColumn)
}

func testReport(t *testing.T) *model.Report {
	t.Helper()

	lines := testutil.NewLineBuilder(t).
		AddInvoice("INV-1", model.SourceAP2, model.Contract1111, "100.00").
		AddInvoice("INV-1", model.SourceAP2, model.Contract1111, "100.00").
		AddInvoice("INV-2", model.SourceAP2, model.Contract1111, "-150.00").
		Build()
	for i := range lines {
		lines[i].Category = model.CategoryChartsAndCoding
	}
	lines[0].Flags.Add(model.FlagDuplicate)
	lines[1].Flags.Add(model.FlagDuplicate)

	refs := testutil.ReferenceTable()
	alloc, err := allocation.New(allocation.DefaultConfig()).AllocateTotal(testutil.Dec("50.00"), refs)
	require.NoError(t, err)

	return &model.Report{
		Period:    "2025_04",
		Lines:     lines,
		Reference: refs,
		Totals: map[string]model.CategoryTotal{
			model.CategoryChartsAndCoding: {Category: model.CategoryChartsAndCoding, TotalAmount: testutil.Dec("50.00"), LineCount: 3},
		},
		Allocation: alloc,
	}
}

func rawRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return rows
}

func TestReportWriter_Write(t *testing.T) {
	root := t.TempDir()
	w := NewReportWriter(root)
	report := testReport(t)

	require.NoError(t, w.Write(context.Background(), report))
	assert.Equal(t, "xlsx", w.Name())

	paths := w.Paths("2025_04")
	assert.Equal(t, filepath.Join(root, "2025_04", "Invoice_Report_2025_04.xlsx"), paths.InvoiceReport)

	f, err := excelize.OpenFile(paths.InvoiceReport)
	require.NoError(t, err)
	assert.Equal(t, []string{SheetSummary, SheetFullData, SheetFlags}, f.GetSheetList())
	headerStyle, err := f.GetCellStyle(SheetSummary, "A1")
	require.NoError(t, err)
	assert.NotZero(t, headerStyle)
	require.NoError(t, f.Close())

	summary := rawRows(t, paths.InvoiceReport, SheetSummary)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"Category", "Lines", "Total"}, summary[0])
	assert.Equal(t, []string{model.CategoryChartsAndCoding, "3", "50"}, summary[1])
	assert.Equal(t, model.LabelMMPReclass, summary[2][0])
	assert.Equal(t, "5", summary[2][2])

	full := rawRows(t, paths.InvoiceReport, SheetFullData)
	assert.Len(t, full, 4)
	assert.Equal(t, LineHeader, full[0])

	flags := rawRows(t, paths.InvoiceReport, SheetFlags)
	require.Len(t, flags, 3)
	assert.Equal(t, "INV-1", flags[1][2])
	assert.Equal(t, "Duplicate", flags[1][9])

	mmp := rawRows(t, paths.MMPAllocation, SheetAllocation)
	require.Len(t, mmp, 6)
	assert.Equal(t, []string{"State", "Contract", "% of Payments", "Payment Allocation"}, mmp[0])
	assert.Equal(t, []string{"CA", "1111", "0.6", "30"}, mmp[1])
	assert.Equal(t, []string{"NY", "1111", "0.3", "15"}, mmp[2])
	assert.Equal(t, "50", mmp[3][3])
	assert.Equal(t, "5", mmp[4][3])
	assert.Equal(t, model.StateAdjusted, mmp[5][0])
	assert.Equal(t, "45", mmp[5][3])
}

func TestReportWriter_WriteUnallocated(t *testing.T) {
	report := testReport(t)
	report.Reference = []model.MMPReferenceRow{
		testutil.RefRow("CA", model.Contract1111, "0.60"),
		testutil.RefRow("NY", model.Contract1111, "0.40"),
		testutil.RefRow("Total", "", "1.00"),
		testutil.RefRow("MMP", model.ContractSubset, "0.10"),
	}
	alloc, err := allocation.New(allocation.DefaultConfig()).AllocateTotal(testutil.Dec("50.00"), report.Reference)
	require.NoError(t, err)
	report.Allocation = alloc

	path := filepath.Join(t.TempDir(), "mmp.xlsx")
	require.NoError(t, WriteAllocation(path, report))

	mmp := rawRows(t, path, SheetAllocation)
	require.Len(t, mmp, 7)
	assert.Equal(t, "20", mmp[2][3])
	assert.Equal(t, "5", mmp[4][3])
	assert.Equal(t, model.StateUnallocated, mmp[5][0])
	assert.Equal(t, "-5", mmp[5][3])
	assert.Equal(t, model.StateAdjusted, mmp[6][0])
}

func TestReportWriter_WriteWithoutAllocation(t *testing.T) {
	root := t.TempDir()
	w := NewReportWriter(root)
	report := testReport(t)
	report.Allocation = nil
	report.AllocationErr = common.ErrMissingCategory

	require.NoError(t, w.Write(context.Background(), report))

	paths := w.Paths(report.Period)
	_, err := os.Stat(paths.InvoiceReport)
	require.NoError(t, err)
	_, err = os.Stat(paths.MMPAllocation)
	assert.True(t, os.IsNotExist(err))

	summary := rawRows(t, paths.InvoiceReport, SheetSummary)
	assert.Len(t, summary, 2)
}

func TestReportWriter_RequiresPeriod(t *testing.T) {
	report := testReport(t)
	report.Period = ""
	assert.Error(t, NewReportWriter(t.TempDir()).Write(context.Background(), report))
}

func TestParseHelpers(t *testing.T) {
	text := map[string]string{
		"100":                 "100",
		"-0.01":               "-0.01",
		"$1,000.10":           "1000.1",
		"(5)":                 "-5",
		"1.5E+3":              "1500",
		"1234567890123.45678": "1234567890123.45678",
	}
	for in, want := range text {
		got, err := parseAmount(in, true)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	got, err := parseAmount("33.329999999999998", false)
	require.NoError(t, err)
	assert.Equal(t, "33.33", got.String())

	_, err = parseAmount("", true)
	assert.Error(t, err)
	_, err = parseAmount("$5", false)
	assert.Error(t, err)

	assert.Equal(t, "1111", normalizeCode("1111.0"))
	assert.Equal(t, "Subset", normalizeCode(" Subset "))

	pct := parsePercent("12.5%")
	require.True(t, pct.Valid)
	assert.Equal(t, "0.125", pct.Decimal.String())
	assert.False(t, parsePercent("").Valid)

	d, err := parseDate("45777")
	require.NoError(t, err)
	assert.Equal(t, "2025-04-30", d.Format("2006-01-02"))
}
