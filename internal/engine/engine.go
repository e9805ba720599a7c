// Package engine runs the invoice processing pipeline: classification,
// anomaly detection, aggregation and MMP allocation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/invoice-report/internal/aggregate"
	"github.com/Veraticus/invoice-report/internal/allocation"
	"github.com/Veraticus/invoice-report/internal/anomaly"
	"github.com/Veraticus/invoice-report/internal/classification"
	"github.com/Veraticus/invoice-report/internal/model"
)

// Engine orchestrates one processing run.
type Engine struct {
	classifier Classifier
	detector   Detector
	allocator  Allocator
	now        func() time.Time
}

// Config holds configuration options for the engine.
type Config struct {
	Rules      []classification.Rule
	Anomaly    anomaly.Config
	Allocation allocation.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Rules:      classification.DefaultRules(),
		Anomaly:    anomaly.DefaultConfig(),
		Allocation: allocation.DefaultConfig(),
	}
}

// New creates an engine from configuration.
func New(config Config) (*Engine, error) {
	rules := config.Rules
	if len(rules) == 0 {
		rules = classification.DefaultRules()
	}
	classifier, err := classification.NewClassifier(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid classification rules: %w", err)
	}

	detector, err := anomaly.NewDetector(config.Anomaly)
	if err != nil {
		return nil, fmt.Errorf("invalid anomaly settings: %w", err)
	}

	return NewWithComponents(classifier, detector, allocation.New(config.Allocation)), nil
}

// NewWithComponents creates an engine with explicit stage implementations.
func NewWithComponents(classifier Classifier, detector Detector, allocator Allocator) *Engine {
	return &Engine{
		classifier: classifier,
		detector:   detector,
		allocator:  allocator,
		now:        time.Now,
	}
}

// Input is everything a run consumes.
type Input struct {
	// ReferenceErr is set when the reference table could not be loaded. It
	// fails the allocation stage only.
	ReferenceErr error
	SourceFile   string
	Period       string
	RunID        string
	Lines        []model.InvoiceLine
	Reference    []model.MMPReferenceRow
}

// Process runs every stage over the full batch. A failed allocation is
// recorded on the report rather than returned, so invoice reporting can still
// proceed. Only cancellation aborts the run.
func (e *Engine) Process(ctx context.Context, in Input) (*model.Report, error) {
	lines := make([]model.InvoiceLine, len(in.Lines))
	copy(lines, in.Lines)
	for i := range lines {
		lines[i].Category = ""
		lines[i].Flags = nil
	}

	report := &model.Report{
		GeneratedAt: e.now(),
		SourceFile:  in.SourceFile,
		Period:      in.Period,
		RunID:       in.RunID,
		Lines:       lines,
		Reference:   in.Reference,
	}

	slog.Info("Processing invoice lines", "lines", len(lines), "source", in.SourceFile)

	// Classify
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Warnings = e.classifier.ClassifyAll(lines)
	logCategoryCounts(lines)
	if len(report.Warnings) > 0 {
		slog.Warn("Some invoice lines matched no rule", "unclassified", len(report.Warnings))
	}

	// Detect
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary := e.detector.Detect(lines)
	slog.Info("Flagged items",
		"duplicates", summary.Duplicates,
		"outliers", summary.Outliers,
		"flagged", summary.Flagged)

	// Aggregate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Totals = aggregate.Aggregate(lines)
	for _, total := range model.SortedTotals(report.Totals) {
		slog.Info("Category total",
			"category", total.Category,
			"lines", total.LineCount,
			"total", total.TotalAmount.StringFixed(2))
	}

	// Allocate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.ReferenceErr != nil {
		report.AllocationErr = fmt.Errorf("reference table unavailable: %w", in.ReferenceErr)
	} else {
		report.Allocation, report.AllocationErr = e.allocator.Allocate(report.Totals, in.Reference)
	}

	if report.AllocationErr != nil {
		slog.Warn("MMP allocation skipped", "error", report.AllocationErr)
	} else {
		slog.Info("MMP allocation complete",
			"charts_total", report.Allocation.ChartsTotal.StringFixed(2),
			"subset", report.Allocation.SubsetAmount.StringFixed(2),
			"adjusted", report.Allocation.AdjustedAmount.StringFixed(2),
			"rows", len(report.Allocation.Results))
	}

	return report, nil
}

func logCategoryCounts(lines []model.InvoiceLine) {
	counts := classification.Counts(lines)
	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		slog.Debug("Category count", "category", category, "lines", counts[category])
	}
}
