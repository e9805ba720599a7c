// Package anomaly flags duplicate and statistically outlying invoice lines.
//
// Detection runs in two phases over the fully materialized batch: a grouping
// pass builds the duplicate-key and category indexes, then an analysis pass
// flags members of each group. No flag is final before the whole batch has
// been indexed.
package anomaly

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
)

// Method selects the outlier test.
type Method string

const (
	// MethodStdDev flags amounts outside mean ± k standard deviations.
	MethodStdDev Method = "stddev"
	// MethodPercentile flags absolute amounts above a quantile of the category.
	MethodPercentile Method = "percentile"
)

// Config controls outlier detection.
type Config struct {
	Method Method
	// K is the number of standard deviations for MethodStdDev.
	K decimal.Decimal
	// Percentile is the quantile in (0,1) for MethodPercentile.
	Percentile decimal.Decimal
	// MinSampleSize exempts categories with fewer lines from outlier testing.
	MinSampleSize int
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{
		Method:        MethodStdDev,
		K:             decimal.NewFromInt(3),
		Percentile:    decimal.RequireFromString("0.99"),
		MinSampleSize: 2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Method {
	case MethodStdDev:
		if !c.K.IsPositive() {
			return fmt.Errorf("outlier k must be positive, got %s", c.K)
		}
	case MethodPercentile:
		if !c.Percentile.IsPositive() || c.Percentile.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("outlier percentile must be in (0,1), got %s", c.Percentile)
		}
	default:
		return fmt.Errorf("unknown outlier method %q", c.Method)
	}
	if c.MinSampleSize < 1 {
		return fmt.Errorf("minimum sample size must be at least 1, got %d", c.MinSampleSize)
	}
	return nil
}

// Detector flags anomalies on classified invoice lines.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given configuration.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{config: config}, nil
}

// Summary describes what a detection pass found.
type Summary struct {
	// Categories holds the outlier statistics of every tested category.
	Categories map[string]CategoryStats
	Duplicates int
	Outliers   int
	// Flagged counts lines carrying at least one flag.
	Flagged int
}

// duplicateKey identifies lines that are considered the same invoice charge.
type duplicateKey struct {
	invoiceID string
	source    model.Source
	contract  model.Contract
	amount    string
}

func keyOf(line model.InvoiceLine) duplicateKey {
	return duplicateKey{
		invoiceID: strings.TrimSpace(line.InvoiceID),
		source:    model.Source(strings.ToUpper(strings.TrimSpace(string(line.Source)))),
		contract:  model.Contract(strings.TrimSpace(string(line.Contract))),
		// String drops trailing zeros, so 100 and 100.00 share a key.
		amount: line.Amount.String(),
	}
}

// index is the result of the grouping pass.
type index struct {
	duplicates map[duplicateKey][]int
	categories map[string][]int
}

func buildIndex(lines []model.InvoiceLine) index {
	idx := index{
		duplicates: make(map[duplicateKey][]int),
		categories: make(map[string][]int),
	}
	for i, line := range lines {
		k := keyOf(line)
		idx.duplicates[k] = append(idx.duplicates[k], i)
		idx.categories[line.Category] = append(idx.categories[line.Category], i)
	}
	return idx
}

// Detect adds Duplicate and Outlier flags to lines in place. It never changes
// a line's category or amount.
func (d *Detector) Detect(lines []model.InvoiceLine) Summary {
	idx := buildIndex(lines)

	summary := Summary{Categories: make(map[string]CategoryStats)}

	for _, members := range idx.duplicates {
		if len(members) < 2 {
			continue
		}
		for _, i := range members {
			lines[i].Flags.Add(model.FlagDuplicate)
			summary.Duplicates++
		}
	}

	categories := make([]string, 0, len(idx.categories))
	for category := range idx.categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		members := idx.categories[category]
		if len(members) < d.config.MinSampleSize {
			slog.Debug("Category below minimum sample size, skipping outlier test",
				"category", category,
				"lines", len(members),
				"min_sample_size", d.config.MinSampleSize)
			continue
		}

		amounts := make([]decimal.Decimal, len(members))
		for j, i := range members {
			amounts[j] = lines[i].Amount
		}

		stats, outliers := d.outliers(amounts)
		stats.Category = category
		summary.Categories[category] = stats

		for _, j := range outliers {
			lines[members[j]].Flags.Add(model.FlagOutlier)
			summary.Outliers++
		}
	}

	for _, line := range lines {
		if line.IsFlagged() {
			summary.Flagged++
		}
	}

	return summary
}

func (d *Detector) outliers(amounts []decimal.Decimal) (CategoryStats, []int) {
	if d.config.Method == MethodPercentile {
		return percentileOutliers(amounts, d.config.Percentile)
	}
	return stdDevOutliers(amounts, d.config.K)
}
