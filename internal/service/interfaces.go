// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
)

// ReportWriter publishes a processed run somewhere: a workbook, a
// spreadsheet, the run archive.
type ReportWriter interface {
	// Name identifies the writer in logs and errors.
	Name() string
	Write(ctx context.Context, report *model.Report) error
}

// RunFilter defines filtering options for archived run queries.
type RunFilter struct {
	Period string
	Limit  int
}

// RunSummary is the archived headline of one run.
type RunSummary struct {
	CreatedAt     time.Time
	ID            string
	Period        string
	SourceFile    string
	AllocationErr string
	GrandTotal    decimal.Decimal
	ChartsTotal   decimal.Decimal
	SubsetAmount  decimal.Decimal
	Adjusted      decimal.Decimal
	LineCount     int
	FlaggedCount  int
	WarningCount  int
}

// ArchivedRun is a run loaded back from the archive.
type ArchivedRun struct {
	Totals      []model.CategoryTotal
	Allocations []model.AllocationResult
	Flagged     []model.InvoiceLine
	RunSummary
}

// RunArchive persists processed runs.
type RunArchive interface {
	ReportWriter
	SaveRun(ctx context.Context, report *model.Report) error
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)
	GetRun(ctx context.Context, id string) (*ArchivedRun, error)
	Migrate(ctx context.Context) error
	Close() error
}
