// Package allocation splits a category total across states and contracts
// using the percentages of the MMP reclass reference table.
package allocation

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Veraticus/invoice-report/internal/aggregate"
	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
)

// Config controls the allocator.
type Config struct {
	// Category is the category whose total is allocated.
	Category string
	// Places is the currency precision allocations are rounded to.
	Places int32
}

// DefaultConfig allocates the "Charts & Coding" total to the cent.
func DefaultConfig() Config {
	return Config{
		Category: model.CategoryChartsAndCoding,
		Places:   2,
	}
}

// Allocator computes MMP reclass allocations.
type Allocator struct {
	config Config
}

// New creates an allocator.
func New(config Config) *Allocator {
	if config.Category == "" {
		config.Category = model.CategoryChartsAndCoding
	}
	if config.Places < 0 {
		config.Places = 2
	}
	return &Allocator{config: config}
}

// Allocate looks up the configured category in totals and distributes it.
// It fails with common.ErrMissingCategory when the category is absent.
func (a *Allocator) Allocate(totals map[string]model.CategoryTotal, refs []model.MMPReferenceRow) (*model.Allocation, error) {
	total, ok := aggregate.Total(totals, a.config.Category)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no invoice lines to allocate", common.ErrMissingCategory, a.config.Category)
	}
	return a.AllocateTotal(total, refs)
}

// AllocateTotal distributes total across the reference rows.
//
// The Subset row's share is rounded first and held out as its own "Subset"
// line. Every other non-anchor row receives total × pct rounded half away
// from zero. Rows are ordered by state then contract, and the residual between
// the distributed amount (total − Subset) and the rounded state amounts is
// added to the last row. A residual too large to be rounding becomes an
// "Unallocated" line instead. Either way the results sum to total exactly.
func (a *Allocator) AllocateTotal(total decimal.Decimal, refs []model.MMPReferenceRow) (*model.Allocation, error) {
	table, err := Validate(refs)
	if err != nil {
		return nil, err
	}

	places := a.config.Places
	subsetPct := table.Subset.PctOfPayments.Decimal
	subsetShare := total.Mul(subsetPct).Round(places)
	distributed := total.Sub(subsetShare)

	results := make([]model.AllocationResult, 0, len(table.States)+1)
	allocated := decimal.Zero
	for _, row := range table.States {
		pct := row.PctOfPayments.Decimal
		amount := total.Mul(pct).Round(places)
		allocated = allocated.Add(amount)
		results = append(results, model.AllocationResult{
			State:           strings.TrimSpace(row.State),
			Contract:        row.Contract,
			PctOfPayments:   pct,
			AllocatedAmount: amount,
		})
	}

	// A residual within a cent per row is rounding and is folded into the
	// last row. Anything larger means the percentages do not cover the
	// distributed amount, and it is reported on its own line.
	remainder := distributed.Sub(allocated)
	tolerance := decimal.New(1, -places).Mul(decimal.NewFromInt(int64(len(results) + 1)))
	unallocated := decimal.Zero
	switch {
	case remainder.Abs().GreaterThan(tolerance):
		unallocated, remainder = remainder, decimal.Zero
		slog.Warn("Reference percentages do not cover the distributed total",
			"distributed", distributed.StringFixed(places),
			"allocated", allocated.StringFixed(places),
			"unallocated", unallocated.StringFixed(places))
		results = append(results, model.AllocationResult{
			State:           model.StateUnallocated,
			PctOfPayments:   decimal.Zero,
			AllocatedAmount: unallocated,
		})
	case len(results) > 0:
		last := &results[len(results)-1]
		last.AllocatedAmount = last.AllocatedAmount.Add(remainder)
	default:
		subsetShare = subsetShare.Add(remainder)
	}

	results = append(results, model.AllocationResult{
		State:           model.StateSubset,
		Contract:        model.ContractSubset,
		PctOfPayments:   subsetPct,
		AllocatedAmount: subsetShare,
	})

	anchor := total.Mul(table.Anchor.PctOfPayments.Decimal).Round(places)

	return &model.Allocation{
		ChartsTotal:    total,
		SubsetAmount:   subsetShare,
		AnchorAmount:   anchor,
		AdjustedAmount: anchor.Sub(subsetShare),
		Remainder:      remainder,
		Unallocated:    unallocated,
		Results:        results,
	}, nil
}

// Table is a validated reference table.
type Table struct {
	Anchor model.MMPReferenceRow
	Subset model.MMPReferenceRow
	// States holds every other row, sorted by state then contract.
	States []model.MMPReferenceRow
}

// Validate checks the reference table's structural invariants: exactly one
// "Total" anchor, exactly one Subset row, a numeric percentage in [0,1] on
// every row, a state name on every state row and no repeated (state, contract)
// pair. Violations wrap common.ErrInvalidReferenceTable.
func Validate(refs []model.MMPReferenceRow) (*Table, error) {
	var (
		anchors []model.MMPReferenceRow
		subsets []model.MMPReferenceRow
		table   Table
	)
	seen := make(map[string]model.MMPReferenceRow)
	one := decimal.NewFromInt(1)

	for _, row := range refs {
		if !row.PctOfPayments.Valid {
			return nil, invalidRow(row, "missing or non-numeric percentage")
		}
		pct := row.PctOfPayments.Decimal
		if pct.IsNegative() || pct.GreaterThan(one) {
			return nil, invalidRow(row, fmt.Sprintf("percentage %s outside [0,1]", pct))
		}

		switch {
		case row.IsTotal() && row.IsSubset():
			return nil, invalidRow(row, "row is both the Total anchor and the Subset row")
		case row.IsTotal():
			anchors = append(anchors, row)
		case row.IsSubset():
			subsets = append(subsets, row)
		default:
			if strings.TrimSpace(row.State) == "" {
				return nil, invalidRow(row, "missing state")
			}
			key := strings.ToUpper(strings.TrimSpace(row.State)) + "|" + strings.TrimSpace(string(row.Contract))
			if first, dup := seen[key]; dup {
				return nil, invalidRow(row, fmt.Sprintf("duplicates reference row %d", first.Row))
			}
			seen[key] = row
			table.States = append(table.States, row)
		}
	}

	if err := exactlyOne(anchors, "Total anchor"); err != nil {
		return nil, err
	}
	if err := exactlyOne(subsets, "Subset"); err != nil {
		return nil, err
	}

	table.Anchor = anchors[0]
	table.Subset = subsets[0]

	sort.SliceStable(table.States, func(i, j int) bool {
		si := strings.TrimSpace(table.States[i].State)
		sj := strings.TrimSpace(table.States[j].State)
		if si != sj {
			return si < sj
		}
		return strings.TrimSpace(string(table.States[i].Contract)) < strings.TrimSpace(string(table.States[j].Contract))
	})

	return &table, nil
}

func exactlyOne(rows []model.MMPReferenceRow, what string) error {
	switch len(rows) {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: no %s row", common.ErrInvalidReferenceTable, what)
	default:
		return &common.ReferenceRowError{
			Row:      rows[1].Row,
			State:    rows[1].State,
			Contract: string(rows[1].Contract),
			Err:      fmt.Errorf("%w: %d %s rows (first at row %d)", common.ErrInvalidReferenceTable, len(rows), what, rows[0].Row),
		}
	}
}

func invalidRow(row model.MMPReferenceRow, reason string) error {
	return &common.ReferenceRowError{
		Row:      row.Row,
		State:    row.State,
		Contract: string(row.Contract),
		Err:      fmt.Errorf("%w: %s", common.ErrInvalidReferenceTable, reason),
	}
}
