// Package excel reads the PeopleSoft invoice export and the MMP reference
// workbook, and writes the processed report workbooks.
package excel

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/files"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Export column headers.
const (
	ColJournalDate = "Journal Date"
	ColInvoice     = "Invoice"
	ColSource      = "Source"
	ColContract    = "Contract"
	ColLineDescr   = "Line Descr"
	ColAmount      = "Amount"
	ColAPAmount    = "AP Amount"
)

// Reference table column headers.
const (
	ColState         = "State"
	ColPctOfPayments = "% of Payments"
)

// Options control which export rows are kept.
type Options struct {
	// Sheet defaults to the first sheet of the workbook.
	Sheet                string
	RequiredContracts    []model.Contract
	ExcludedDescriptions []string
}

// DefaultOptions keeps contracts 1111 and 2222 and drops the MSG chart
// expense lines.
func DefaultOptions() Options {
	return Options{
		RequiredContracts:    []model.Contract{model.Contract1111, model.Contract2222},
		ExcludedDescriptions: []string{"MSG Chart Expense", "MSG Misc Chart Expense"},
	}
}

// Export is a loaded invoice export.
type Export struct {
	Path string
	// Period is taken from the first row whose journal date parses.
	Period string
	Lines  []model.InvoiceLine
	// Rows is the number of data rows before filtering.
	Rows int
}

// ReadInvoiceExport loads the export at path. The first row is a banner and
// the second holds the column headers. Footer rows without an invoice, source
// or contract are skipped. Rows outside the required contracts or with an
// excluded description are dropped before any of their cells are parsed. A
// kept row whose amount or date cannot be parsed fails the load with a
// *common.RowError.
func ReadInvoiceExport(path string, opts Options) (*Export, error) {
	ws, err := openSheet(path, opts.Sheet)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ws.Close() }()

	rows := ws.rows
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s has no header row", common.ErrMissingColumn, path)
	}

	cols, err := locateColumns(rows[1], ColJournalDate, ColInvoice, ColSource, ColContract, ColLineDescr, ColAmount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	apCol, hasAP := findColumn(rows[1], ColAPAmount)

	contracts := make(map[model.Contract]bool, len(opts.RequiredContracts))
	for _, c := range opts.RequiredContracts {
		contracts[model.Contract(normalizeCode(string(c)))] = true
	}
	excluded := make(map[string]bool, len(opts.ExcludedDescriptions))
	for _, d := range opts.ExcludedDescriptions {
		excluded[strings.TrimSpace(d)] = true
	}

	export := &Export{Path: path}
	for i := 2; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) || isFooter(row, cols) {
			continue
		}
		rowNum := i + 1
		export.Rows++

		line := model.InvoiceLine{
			InvoiceID: cell(row, cols[ColInvoice]),
			Source:    model.Source(cell(row, cols[ColSource])),
			Contract:  model.Contract(normalizeCode(cell(row, cols[ColContract]))),
			LineDescr: cell(row, cols[ColLineDescr]),
			Row:       rowNum,
		}

		date, dateErr := parseDate(cell(row, cols[ColJournalDate]))
		if dateErr == nil && export.Period == "" {
			export.Period = files.Period(date)
		}

		if len(contracts) > 0 && !contracts[line.Contract] {
			continue
		}
		if excluded[line.LineDescr] {
			continue
		}

		if dateErr != nil {
			return nil, rowError(rowNum, line.InvoiceID, ColJournalDate, dateErr)
		}
		line.JournalDate = date

		line.Amount, err = parseAmount(cell(row, cols[ColAmount]), ws.isText(cols[ColAmount], rowNum))
		if err != nil {
			return nil, rowError(rowNum, line.InvoiceID, ColAmount, err)
		}
		if hasAP {
			if raw := cell(row, apCol); raw != "" {
				line.APAmount, err = parseAmount(raw, ws.isText(apCol, rowNum))
				if err != nil {
					return nil, rowError(rowNum, line.InvoiceID, ColAPAmount, err)
				}
			}
		}

		export.Lines = append(export.Lines, line)
	}

	slog.Info("Loaded invoice export",
		"file", path,
		"period", export.Period,
		"rows", export.Rows,
		"kept", len(export.Lines))

	if len(export.Lines) == 0 {
		return export, fmt.Errorf("%w: %s", common.ErrNoInvoiceData, path)
	}
	return export, nil
}

// isFooter reports whether row carries none of the identifying columns, as
// the totals lines PeopleSoft appends to an export do.
func isFooter(row []string, cols map[string]int) bool {
	return cell(row, cols[ColInvoice]) == "" &&
		cell(row, cols[ColSource]) == "" &&
		cell(row, cols[ColContract]) == ""
}

// ReadReference loads the MMP reference table. The first row holds the
// headers. Empty or non-numeric percentages are kept as invalid NullDecimals
// so the allocator can reject the table with the offending row. Output-only
// Adjusted rows are skipped.
func ReadReference(path string) ([]model.MMPReferenceRow, error) {
	rows, err := readRows(path, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no header row", common.ErrMissingColumn, path)
	}

	cols, err := locateColumns(rows[0], ColState, ColContract, ColPctOfPayments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var refs []model.MMPReferenceRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}

		ref := model.MMPReferenceRow{
			State:         cell(row, cols[ColState]),
			Contract:      model.Contract(normalizeCode(cell(row, cols[ColContract]))),
			PctOfPayments: parsePercent(cell(row, cols[ColPctOfPayments])),
			Row:           i + 1,
		}
		if ref.IsAdjusted() {
			continue
		}
		if !ref.PctOfPayments.Valid {
			slog.Warn("Reference row has no usable percentage", "row", ref.Row, "state", ref.State)
		}
		refs = append(refs, ref)
	}

	slog.Info("Loaded MMP reference table", "file", path, "rows", len(refs))
	return refs, nil
}

// worksheet is an open sheet with its raw cell values. Raw values keep dates
// as serial numbers and amounts unformatted.
type worksheet struct {
	f    *excelize.File
	name string
	rows [][]string
}

// openSheet reads a sheet, the first one when name is empty.
func openSheet(path, name string) (*worksheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if name == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, fmt.Errorf("%s has no sheets", path)
		}
		name = sheets[0]
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", name, path, err)
	}
	return &worksheet{f: f, name: name, rows: rows}, nil
}

func (s *worksheet) Close() error {
	return s.f.Close()
}

// isText reports whether the cell at the 0-based col of the 1-based row is
// stored as a string rather than a number.
func (s *worksheet) isText(col, row int) bool {
	ref, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return true
	}
	kind, err := s.f.GetCellType(s.name, ref)
	if err != nil {
		return true
	}
	return kind != excelize.CellTypeNumber && kind != excelize.CellTypeUnset
}

func readRows(path, name string) ([][]string, error) {
	ws, err := openSheet(path, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ws.Close() }()
	return ws.rows, nil
}

func findColumn(header []string, name string) (int, bool) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, true
		}
	}
	return 0, false
}

func locateColumns(header []string, names ...string) (map[string]int, error) {
	cols := make(map[string]int, len(names))
	var missing []string
	for _, name := range names {
		idx, ok := findColumn(header, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, nil
}

// cell returns the trimmed value at idx; GetRows trims trailing empty cells.
func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rowError(row int, invoiceID, column string, err error) error {
	return &common.RowError{
		Err:       fmt.Errorf("%w: %s: %v", common.ErrInvalidRow, column, err),
		InvoiceID: invoiceID,
		Row:       row,
	}
}

// normalizeCode renders numeric contract cells ("1111", "1111.0") as integers.
func normalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// parseAmount accepts raw numbers as well as formatted text such as
// "$1,234.56" or "(50.00)". Text is parsed exactly; numeric cells hold IEEE
// doubles, whose shortest float repr drops binary noise such as
// 33.329999999999998.
func parseAmount(s string, text bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	if !text {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %q", s)
		}
		return decimal.NewFromFloat(f), nil
	}

	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func parsePercent(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}

	scale := decimal.NewFromInt(1)
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		scale = decimal.New(1, -2)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(f).Mul(scale))
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
	"02-Jan-2006",
	time.RFC3339,
}

// parseDate accepts an Excel serial date or one of the common text layouts.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
