package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Invoice categories assigned by the default rule table.
const (
	CategoryChartsAndCoding   = "Charts & Coding"
	CategoryMiscExpense       = "Misc. exp."
	Category1111CoupaReversal = "1111 Coupa Reversal"
	Category1111CoupaPending  = "1111 Coupa Pending"
	Category2222CoupaReversal = "2222 Coupa Reversal"
	Category2222CoupaPending  = "2222 Coupa Pending"
	CategoryUnclassified      = "Unclassified"
)

// CategoryTotal is the sum of line amounts for one category.
type CategoryTotal struct {
	Category    string
	TotalAmount decimal.Decimal
	LineCount   int
}

// SortedTotals returns the totals ordered by category name.
func SortedTotals(totals map[string]CategoryTotal) []CategoryTotal {
	sorted := make([]CategoryTotal, 0, len(totals))
	for _, total := range totals {
		sorted = append(sorted, total)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Category < sorted[j].Category
	})
	return sorted
}
