// Package aggregate sums invoice amounts per category.
package aggregate

import (
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
)

// Aggregate sums Amount (not APAmount) by category. Lines without a category
// are counted under model.CategoryUnclassified. Empty input yields an empty map.
func Aggregate(lines []model.InvoiceLine) map[string]model.CategoryTotal {
	totals := make(map[string]model.CategoryTotal)

	for _, line := range lines {
		category := line.Category
		if category == "" {
			category = model.CategoryUnclassified
		}

		total, ok := totals[category]
		if !ok {
			total = model.CategoryTotal{Category: category, TotalAmount: decimal.Zero}
		}
		total.TotalAmount = total.TotalAmount.Add(line.Amount)
		total.LineCount++
		totals[category] = total
	}

	return totals
}

// Total returns the total for category, or false if no line has it.
func Total(totals map[string]model.CategoryTotal, category string) (decimal.Decimal, bool) {
	t, ok := totals[category]
	if !ok {
		return decimal.Zero, false
	}
	return t.TotalAmount, true
}
