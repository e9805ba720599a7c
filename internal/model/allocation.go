package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Reference table markers.
const (
	// StateTotal marks the informational anchor row of the reference table.
	StateTotal = "Total"
	// StateSubset is the state name under which the Subset allocation is reported.
	StateSubset = "Subset"
	// StateAdjusted is the output-only row holding the anchor minus Subset amount.
	StateAdjusted = "Adjusted"
	// StateUnallocated labels the part of the total the state percentages
	// leave uncovered.
	StateUnallocated = "Unallocated"
)

// MMPReferenceRow is one row of the MMP reclass reference table.
type MMPReferenceRow struct {
	State         string
	Contract      Contract
	PctOfPayments decimal.NullDecimal
	Row           int // 1-based row in the reference workbook, 0 when unknown
}

// IsTotal reports whether the row is the "Total" anchor.
func (r MMPReferenceRow) IsTotal() bool {
	return strings.EqualFold(strings.TrimSpace(r.State), StateTotal)
}

// IsAdjusted reports whether the row is the output-only Adjusted placeholder.
func (r MMPReferenceRow) IsAdjusted() bool {
	return strings.EqualFold(strings.TrimSpace(r.State), StateAdjusted)
}

// IsSubset reports whether the row is the Subset reconciliation row.
func (r MMPReferenceRow) IsSubset() bool {
	return r.Contract.IsSubset()
}

// AllocationResult is the amount allocated to one reference row.
type AllocationResult struct {
	State           string
	Contract        Contract
	PctOfPayments   decimal.Decimal
	AllocatedAmount decimal.Decimal
}

// Allocation is the full outcome of an MMP reclass allocation.
type Allocation struct {
	ChartsTotal decimal.Decimal
	// SubsetAmount is the portion held out from per-state distribution.
	SubsetAmount decimal.Decimal
	// AnchorAmount is total × the anchor row's percentage; informational only.
	AnchorAmount decimal.Decimal
	// AdjustedAmount is AnchorAmount minus SubsetAmount.
	AdjustedAmount decimal.Decimal
	// Remainder is the rounding residual added to the last state row.
	Remainder decimal.Decimal
	// Unallocated is the residual too large to be rounding, reported as its
	// own result line. Zero when the percentages cover the total.
	Unallocated decimal.Decimal
	// Results holds the per-state rows sorted by state, then the Unallocated
	// line when there is one, then the Subset line.
	Results []AllocationResult
}

// Sum returns the sum of every allocated amount, Subset line included.
func (a *Allocation) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range a.Results {
		sum = sum.Add(r.AllocatedAmount)
	}
	return sum
}
