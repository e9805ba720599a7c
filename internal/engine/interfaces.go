package engine

import (
	"github.com/Veraticus/invoice-report/internal/anomaly"
	"github.com/Veraticus/invoice-report/internal/model"
)

// Classifier assigns categories to invoice lines.
type Classifier interface {
	ClassifyAll(lines []model.InvoiceLine) []model.RowWarning
}

// Detector flags anomalous invoice lines.
type Detector interface {
	Detect(lines []model.InvoiceLine) anomaly.Summary
}

// Allocator computes the MMP reclass allocation from category totals.
type Allocator interface {
	Allocate(totals map[string]model.CategoryTotal, refs []model.MMPReferenceRow) (*model.Allocation, error)
}
