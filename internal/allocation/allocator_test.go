package allocation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/Veraticus/invoice-report/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func totalsOf(category, amount string) map[string]model.CategoryTotal {
	return map[string]model.CategoryTotal{
		category: {Category: category, TotalAmount: testutil.Dec(amount), LineCount: 1},
	}
}

func amounts(a *model.Allocation) map[string]string {
	out := make(map[string]string, len(a.Results))
	for _, r := range a.Results {
		out[r.State] = r.AllocatedAmount.StringFixed(2)
	}
	return out
}

func TestAllocate_ReferenceExample(t *testing.T) {
	alloc, err := New(DefaultConfig()).Allocate(
		totalsOf(model.CategoryChartsAndCoding, "50.00"),
		testutil.ReferenceTable(),
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"CA":     "30.00",
		"NY":     "15.00",
		"Subset": "5.00",
	}, amounts(alloc))
	assert.True(t, alloc.Sum().Equal(testutil.Dec("50.00")))
	assert.True(t, alloc.SubsetAmount.Equal(testutil.Dec("5.00")))
	assert.True(t, alloc.AnchorAmount.Equal(testutil.Dec("50.00")))
	assert.True(t, alloc.AdjustedAmount.Equal(testutil.Dec("45.00")))
	assert.True(t, alloc.Remainder.IsZero())

	// States come first in name order, the Subset line last.
	require.Len(t, alloc.Results, 3)
	assert.Equal(t, "CA", alloc.Results[0].State)
	assert.Equal(t, "NY", alloc.Results[1].State)
	assert.Equal(t, model.StateSubset, alloc.Results[2].State)
	assert.Equal(t, model.ContractSubset, alloc.Results[2].Contract)
}

func TestAllocate_RemainderGoesToLastState(t *testing.T) {
	refs := []model.MMPReferenceRow{
		testutil.RefRow("TX", model.Contract1111, "0.3"),
		testutil.RefRow("AZ", model.Contract1111, "0.3"),
		testutil.RefRow("OH", model.Contract2222, "0.3"),
		testutil.RefRow("Total", "", "1"),
		testutil.RefRow("MMP", model.ContractSubset, "0.1"),
	}

	alloc, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("100.05"), refs)
	require.NoError(t, err)

	// 100.05 × 0.3 = 30.015 → 30.02 (half up); subset 10.005 → 10.01.
	// Distributed = 90.04, rounded states = 90.06, remainder -0.02 lands on TX.
	assert.Equal(t, map[string]string{
		"AZ":     "30.02",
		"OH":     "30.02",
		"TX":     "30.00",
		"Subset": "10.01",
	}, amounts(alloc))
	assert.True(t, alloc.Remainder.Equal(testutil.Dec("-0.02")))
	assert.True(t, alloc.Unallocated.IsZero())
	assert.True(t, alloc.Sum().Equal(testutil.Dec("100.05")))
}

func TestAllocate_OrderOfReferenceRowsDoesNotMatter(t *testing.T) {
	refs := []model.MMPReferenceRow{
		testutil.RefRow("B", model.Contract1111, "0.3333"),
		testutil.RefRow("C", model.Contract1111, "0.3333"),
		testutil.RefRow("A", model.Contract1111, "0.3334"),
		testutil.RefRow("Total", "", "1"),
		testutil.RefRow("MMP", model.ContractSubset, "0"),
	}
	reversed := make([]model.MMPReferenceRow, len(refs))
	for i := range refs {
		reversed[len(refs)-1-i] = refs[i]
	}

	a1, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("1000.01"), refs)
	require.NoError(t, err)
	a2, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("1000.01"), reversed)
	require.NoError(t, err)

	assert.Equal(t, amounts(a1), amounts(a2))
}

func TestAllocate_ReconcilesForRandomTables(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		states := 1 + rng.Intn(12)
		refs := []model.MMPReferenceRow{
			testutil.RefRow("Total", "", "1.00"),
			testutil.RefRow("MMP", model.ContractSubset, decimal.New(rng.Int63n(3000), -4).String()),
		}
		for s := 0; s < states; s++ {
			pct := decimal.New(rng.Int63n(10000), -4)
			refs = append(refs, testutil.RefRow(fmt.Sprintf("S%02d", s), model.Contract1111, pct.String()))
		}
		total := decimal.New(rng.Int63n(100_000_000)-20_000_000, -2)

		alloc, err := New(DefaultConfig()).AllocateTotal(total, refs)
		require.NoError(t, err)
		assert.True(t, alloc.Sum().Equal(total), "iteration %d: sum %s != total %s", iter, alloc.Sum(), total)
		for _, r := range alloc.Results {
			assert.True(t, r.AllocatedAmount.Equal(r.AllocatedAmount.Round(2)), "not rounded to cents: %s", r.AllocatedAmount)
		}
	}
}

func TestAllocate_PercentagesAreNotNormalized(t *testing.T) {
	refs := []model.MMPReferenceRow{
		testutil.RefRow("CA", model.Contract1111, "0.20"),
		testutil.RefRow("NY", model.Contract1111, "0.20"),
		testutil.RefRow("Total", "", "0.50"),
		testutil.RefRow("MMP", model.ContractSubset, "0.10"),
	}

	alloc, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("100"), refs)
	require.NoError(t, err)

	assert.Equal(t, "20.00", amounts(alloc)["CA"])
	assert.Equal(t, "10.00", amounts(alloc)["Subset"])
	// Anchor is informational: 100 × 0.50, not a divisor.
	assert.True(t, alloc.AnchorAmount.Equal(testutil.Dec("50")))
	assert.True(t, alloc.AdjustedAmount.Equal(testutil.Dec("40")))
	// The uncovered 50.00 is its own line; NY keeps its share.
	assert.Equal(t, "20.00", amounts(alloc)["NY"])
	assert.Equal(t, "50.00", amounts(alloc)[model.StateUnallocated])
	assert.True(t, alloc.Unallocated.Equal(testutil.Dec("50")))
	assert.True(t, alloc.Remainder.IsZero())
	assert.True(t, alloc.Sum().Equal(testutil.Dec("100")))
}

func TestAllocate_OvercoveredStatesKeepTheirShare(t *testing.T) {
	refs := []model.MMPReferenceRow{
		testutil.RefRow("CA", model.Contract1111, "0.60"),
		testutil.RefRow("NY", model.Contract1111, "0.40"),
		testutil.RefRow("Total", "", "1.00"),
		testutil.RefRow("MMP", model.ContractSubset, "0.10"),
	}

	alloc, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("50.00"), refs)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"CA":                   "30.00",
		"NY":                   "20.00",
		model.StateUnallocated: "-5.00",
		"Subset":               "5.00",
	}, amounts(alloc))
	assert.True(t, alloc.Unallocated.Equal(testutil.Dec("-5")))
	assert.True(t, alloc.Sum().Equal(testutil.Dec("50.00")))

	// The Unallocated line sits between the states and the Subset line.
	require.Len(t, alloc.Results, 4)
	assert.Equal(t, model.StateUnallocated, alloc.Results[2].State)
	assert.Equal(t, model.StateSubset, alloc.Results[3].State)
}

func TestAllocate_NegativeTotal(t *testing.T) {
	alloc, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("-50.00"), testutil.ReferenceTable())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"CA":     "-30.00",
		"NY":     "-15.00",
		"Subset": "-5.00",
	}, amounts(alloc))
}

func TestAllocate_OnlySubsetAndAnchor(t *testing.T) {
	refs := []model.MMPReferenceRow{
		testutil.RefRow("Total", "", "1"),
		testutil.RefRow("MMP", model.ContractSubset, "0.25"),
	}

	alloc, err := New(DefaultConfig()).AllocateTotal(testutil.Dec("80"), refs)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		model.StateUnallocated: "60.00",
		"Subset":               "20.00",
	}, amounts(alloc))
	assert.True(t, alloc.Sum().Equal(testutil.Dec("80")))
}

func TestAllocate_MissingCategory(t *testing.T) {
	_, err := New(DefaultConfig()).Allocate(
		totalsOf(model.CategoryMiscExpense, "10"),
		testutil.ReferenceTable(),
	)
	require.ErrorIs(t, err, common.ErrMissingCategory)
	assert.Contains(t, err.Error(), model.CategoryChartsAndCoding)

	_, err = New(DefaultConfig()).Allocate(map[string]model.CategoryTotal{}, testutil.ReferenceTable())
	assert.ErrorIs(t, err, common.ErrMissingCategory)
}

func TestAllocate_ConfiguredCategory(t *testing.T) {
	a := New(Config{Category: model.CategoryMiscExpense, Places: 2})
	alloc, err := a.Allocate(totalsOf(model.CategoryMiscExpense, "10"), testutil.ReferenceTable())
	require.NoError(t, err)
	assert.True(t, alloc.Sum().Equal(testutil.Dec("10")))
}

func TestValidate_InvalidTables(t *testing.T) {
	base := testutil.ReferenceTable

	tests := []struct {
		name    string
		refs    func() []model.MMPReferenceRow
		wantRow int
	}{
		{
			name: "missing anchor",
			refs: func() []model.MMPReferenceRow {
				return removeState(base(), "Total")
			},
		},
		{
			name: "duplicate anchor",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				dup := testutil.RefRow(" total ", "", "1.00")
				dup.Row = 9
				return append(rows, dup)
			},
			wantRow: 9,
		},
		{
			name: "missing subset",
			refs: func() []model.MMPReferenceRow {
				return removeState(base(), "MMP")
			},
		},
		{
			name: "duplicate subset",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				dup := testutil.RefRow("MMP2", "subset", "0.05")
				dup.Row = 11
				return append(rows, dup)
			},
			wantRow: 11,
		},
		{
			name: "null percentage",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				rows[1].PctOfPayments = decimal.NullDecimal{}
				return rows
			},
			wantRow: 3,
		},
		{
			name: "percentage above one",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				rows[0].PctOfPayments = decimal.NewNullDecimal(testutil.Dec("60"))
				return rows
			},
			wantRow: 2,
		},
		{
			name: "negative percentage",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				rows[0].PctOfPayments = decimal.NewNullDecimal(testutil.Dec("-0.1"))
				return rows
			},
			wantRow: 2,
		},
		{
			name: "repeated state and contract",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				dup := testutil.RefRow("ca", model.Contract1111, "0.01")
				dup.Row = 20
				return append(rows, dup)
			},
			wantRow: 20,
		},
		{
			name: "blank state",
			refs: func() []model.MMPReferenceRow {
				rows := base()
				blank := testutil.RefRow("  ", model.Contract2222, "0.01")
				blank.Row = 21
				return append(rows, blank)
			},
			wantRow: 21,
		},
		{
			name: "empty table",
			refs: func() []model.MMPReferenceRow { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.refs())
			require.ErrorIs(t, err, common.ErrInvalidReferenceTable)

			_, err = New(DefaultConfig()).AllocateTotal(testutil.Dec("50"), tt.refs())
			require.ErrorIs(t, err, common.ErrInvalidReferenceTable)

			if tt.wantRow > 0 {
				var refErr *common.ReferenceRowError
				require.ErrorAs(t, err, &refErr)
				assert.Equal(t, tt.wantRow, refErr.Row)
			}
		})
	}
}

func TestValidate_SameStateDifferentContracts(t *testing.T) {
	refs := append(testutil.ReferenceTable(), testutil.RefRow("CA", model.Contract2222, "0.00"))

	table, err := Validate(refs)
	require.NoError(t, err)
	require.Len(t, table.States, 3)
	assert.Equal(t, model.Contract1111, table.States[0].Contract)
	assert.Equal(t, model.Contract2222, table.States[1].Contract)
	assert.Equal(t, "NY", table.States[2].State)
}

func removeState(rows []model.MMPReferenceRow, state string) []model.MMPReferenceRow {
	out := rows[:0]
	for _, r := range rows {
		if r.State != state {
			out = append(out, r)
		}
	}
	return out
}
