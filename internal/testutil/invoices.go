// Package testutil provides fixtures for invoice lines and MMP reference tables.
//
// Example:
//
//	lines := testutil.NewLineBuilder(t).
//		Add(model.SourceAP2, model.Contract1111, "100.00").
//		Add(model.SourceCOR, model.Contract2222, "-12.50").
//		Build()
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
)

// JournalDate is the journal date used by fixture lines.
var JournalDate = time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Line returns an invoice line with the given source, contract and amount.
func Line(source model.Source, contract model.Contract, amount string) model.InvoiceLine {
	amt := Dec(amount)
	return model.InvoiceLine{
		JournalDate: JournalDate,
		Source:      source,
		Contract:    contract,
		Amount:      amt,
		APAmount:    amt,
		LineDescr:   "Chart retrieval",
	}
}

// LineBuilder accumulates fixture lines with unique invoice IDs and row numbers.
type LineBuilder struct {
	t     *testing.T
	lines []model.InvoiceLine
}

// NewLineBuilder creates an empty builder.
func NewLineBuilder(t *testing.T) *LineBuilder {
	t.Helper()
	return &LineBuilder{t: t}
}

// Add appends a line with a generated invoice ID.
func (b *LineBuilder) Add(source model.Source, contract model.Contract, amount string) *LineBuilder {
	return b.AddInvoice(fmt.Sprintf("INV-%04d", len(b.lines)+1), source, contract, amount)
}

// AddInvoice appends a line with an explicit invoice ID.
func (b *LineBuilder) AddInvoice(invoiceID string, source model.Source, contract model.Contract, amount string) *LineBuilder {
	b.t.Helper()
	line := Line(source, contract, amount)
	line.InvoiceID = invoiceID
	line.Row = len(b.lines) + 3 // banner and header rows precede the data
	b.lines = append(b.lines, line)
	return b
}

// Build returns a copy of the accumulated lines.
func (b *LineBuilder) Build() []model.InvoiceLine {
	out := make([]model.InvoiceLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// RefRow builds a reference row. An empty pct yields a null percentage.
func RefRow(state string, contract model.Contract, pct string) model.MMPReferenceRow {
	row := model.MMPReferenceRow{State: state, Contract: contract}
	if pct != "" {
		row.PctOfPayments = decimal.NewNullDecimal(Dec(pct))
	}
	return row
}

// ReferenceTable returns the sample MMP reference table:
// CA 60%, NY 30%, the Total anchor at 100% and a 10% Subset row.
func ReferenceTable() []model.MMPReferenceRow {
	rows := []model.MMPReferenceRow{
		RefRow("CA", model.Contract1111, "0.60"),
		RefRow("NY", model.Contract1111, "0.30"),
		RefRow(model.StateTotal, "", "1.00"),
		RefRow("MMP", model.ContractSubset, "0.10"),
	}
	for i := range rows {
		rows[i].Row = i + 2
	}
	return rows
}
