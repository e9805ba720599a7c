package sheets

import (
	"github.com/Veraticus/invoice-report/internal/model"
)

// FlagsHeader is the column layout of the Flags tab.
var FlagsHeader = []any{
	"Row", "Journal Date", "Invoice", "Source", "Contract",
	"Line Descr", "Amount", "AP Amount", "Category", "Flags",
}

// PrepareTabs lays the report out as the three published tabs. Amounts are
// written as fixed two-place strings so USER_ENTERED parses them exactly.
func PrepareTabs(report *model.Report) []Tab {
	return []Tab{
		prepareSummary(report),
		prepareFlags(report),
		prepareAllocation(report),
	}
}

func prepareSummary(report *model.Report) Tab {
	rows := report.SummaryRows()
	values := make([][]any, 0, len(rows)+3)
	values = append(values, []any{"Category", "Lines", "Total"})

	for _, row := range rows {
		count := any(row.Count)
		if row.Label == model.LabelMMPReclass {
			count = ""
		}
		values = append(values, []any{row.Label, count, row.Total.StringFixed(2)})
	}

	values = append(values,
		[]any{},
		[]any{"Grand Total", len(report.Lines), report.GrandTotal().StringFixed(2)},
	)

	return Tab{
		Title:           TabSummary,
		Values:          values,
		CurrencyColumns: []int64{2},
		HeaderColor:     summaryHeaderColor,
	}
}

func prepareFlags(report *model.Report) Tab {
	flagged := model.FlaggedLines(report.Lines)
	values := make([][]any, 0, len(flagged)+1)
	values = append(values, FlagsHeader)

	for _, line := range flagged {
		values = append(values, []any{
			line.Row,
			line.JournalDate.Format("2006-01-02"),
			line.InvoiceID,
			string(line.Source),
			string(line.Contract),
			line.LineDescr,
			line.Amount.StringFixed(2),
			line.APAmount.StringFixed(2),
			line.Category,
			line.Flags.String(),
		})
	}

	return Tab{
		Title:           TabFlags,
		Values:          values,
		CurrencyColumns: []int64{6, 7},
		HeaderColor:     flagsHeaderColor,
	}
}

func prepareAllocation(report *model.Report) Tab {
	tab := Tab{
		Title:           TabAllocation,
		Values:          [][]any{{"State", "Contract", "% of Payments", "Payment Allocation"}},
		CurrencyColumns: []int64{3},
		PercentColumns:  []int64{2},
		HeaderColor:     allocationHeaderColor,
	}

	alloc := report.Allocation
	if alloc == nil {
		reason := "no allocation"
		if report.AllocationErr != nil {
			reason = report.AllocationErr.Error()
		}
		tab.Values = append(tab.Values, []any{"Allocation unavailable", reason})
		return tab
	}

	for _, r := range alloc.Results {
		tab.Values = append(tab.Values, []any{
			r.State,
			string(r.Contract),
			r.PctOfPayments.String(),
			r.AllocatedAmount.StringFixed(2),
		})
	}

	tab.Values = append(tab.Values,
		[]any{},
		[]any{"Allocated Total", "", "", alloc.ChartsTotal.StringFixed(2)},
		[]any{model.StateTotal, "", "", alloc.AnchorAmount.StringFixed(2)},
		[]any{"Adjusted", "", "", alloc.AdjustedAmount.StringFixed(2)},
	)
	return tab
}
