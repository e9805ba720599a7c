package anomaly

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// divisionPrecision is the number of decimal places kept by statistical divisions.
const divisionPrecision = 16

// CategoryStats summarizes the amount distribution of one category.
type CategoryStats struct {
	Category string
	Mean     decimal.Decimal
	// StdDev is the sample standard deviation, rounded for display.
	StdDev decimal.Decimal
	// Threshold is the absolute amount above which lines were flagged
	// (percentile method only).
	Threshold decimal.Decimal
	Count     int
}

// mean returns the arithmetic mean of amounts.
func mean(amounts []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, amounts...).
		DivRound(decimal.NewFromInt(int64(len(amounts))), divisionPrecision)
}

// sampleVariance returns Σ(x-mean)² / (n-1). It is zero for fewer than two values.
func sampleVariance(amounts []decimal.Decimal, m decimal.Decimal) decimal.Decimal {
	if len(amounts) < 2 {
		return decimal.Zero
	}
	sumSq := decimal.Zero
	for _, a := range amounts {
		dev := a.Sub(m)
		sumSq = sumSq.Add(dev.Mul(dev))
	}
	return sumSq.DivRound(decimal.NewFromInt(int64(len(amounts)-1)), divisionPrecision)
}

// stdDevOutliers flags indexes whose amount lies strictly beyond mean ± k·σ.
// The comparison is done on squares, (x-mean)² > k²·σ², so it stays exact.
func stdDevOutliers(amounts []decimal.Decimal, k decimal.Decimal) (CategoryStats, []int) {
	m := mean(amounts)
	variance := sampleVariance(amounts, m)

	stats := CategoryStats{
		Count:  len(amounts),
		Mean:   m.Round(2),
		StdDev: decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())).Round(2),
	}

	if variance.IsZero() {
		return stats, nil
	}

	limit := k.Mul(k).Mul(variance)

	var flagged []int
	for i, a := range amounts {
		dev := a.Sub(m)
		if dev.Mul(dev).GreaterThan(limit) {
			flagged = append(flagged, i)
		}
	}
	return stats, flagged
}

// quantile returns the q-quantile of sorted values using linear interpolation
// between closest ranks.
func quantile(sorted []decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	if len(sorted) == 0 {
		return decimal.Zero
	}
	pos := q.Mul(decimal.NewFromInt(int64(len(sorted) - 1)))
	lo := pos.Floor()
	loIdx := int(lo.IntPart())
	if loIdx >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos.Sub(lo)
	return sorted[loIdx].Add(sorted[loIdx+1].Sub(sorted[loIdx]).Mul(frac))
}

// percentileOutliers flags indexes whose absolute amount exceeds the q-quantile
// of absolute amounts.
func percentileOutliers(amounts []decimal.Decimal, q decimal.Decimal) (CategoryStats, []int) {
	abs := make([]decimal.Decimal, len(amounts))
	for i, a := range amounts {
		abs[i] = a.Abs()
	}
	sorted := make([]decimal.Decimal, len(abs))
	copy(sorted, abs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	threshold := quantile(sorted, q)
	m := mean(amounts)

	stats := CategoryStats{
		Count:     len(amounts),
		Mean:      m.Round(2),
		StdDev:    decimal.NewFromFloat(math.Sqrt(sampleVariance(amounts, m).InexactFloat64())).Round(2),
		Threshold: threshold.Round(2),
	}

	var flagged []int
	for i, a := range abs {
		if a.GreaterThan(threshold) {
			flagged = append(flagged, i)
		}
	}
	return stats, flagged
}
