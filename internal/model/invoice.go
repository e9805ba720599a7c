// Package model defines the core domain models used throughout the application.
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source is the ledger source code of an invoice line.
type Source string

// Known ledger sources.
const (
	SourceAP2 Source = "AP2"
	SourceCOR Source = "COR"
)

// Contract identifies the contract an invoice line or reference row belongs to.
type Contract string

// Known contracts. ContractSubset only appears in the MMP reference table.
const (
	Contract1111   Contract = "1111"
	Contract2222   Contract = "2222"
	ContractSubset Contract = "Subset"
)

// IsSubset reports whether c is the reference table's Subset marker.
func (c Contract) IsSubset() bool {
	return strings.EqualFold(strings.TrimSpace(string(c)), string(ContractSubset))
}

// FlagKind is the kind of anomaly raised against an invoice line.
type FlagKind string

// Anomaly flags.
const (
	FlagDuplicate FlagKind = "Duplicate"
	FlagOutlier   FlagKind = "Outlier"
)

// FlagSet is an additive set of anomaly flags.
type FlagSet map[FlagKind]struct{}

// Add inserts kind into the set, allocating it if needed.
func (s *FlagSet) Add(kind FlagKind) {
	if *s == nil {
		*s = make(FlagSet)
	}
	(*s)[kind] = struct{}{}
}

// Has reports whether kind is present.
func (s FlagSet) Has(kind FlagKind) bool {
	_, ok := s[kind]
	return ok
}

// Kinds returns the flags in stable (alphabetical) order.
func (s FlagSet) Kinds() []FlagKind {
	kinds := make([]FlagKind, 0, len(s))
	for k := range s {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// String renders the flags as a comma separated list, e.g. "Duplicate, Outlier".
func (s FlagSet) String() string {
	kinds := s.Kinds()
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// InvoiceLine is a single row of the monthly invoice export.
// Category and Flags are assigned by the classifier and the anomaly detector.
type InvoiceLine struct {
	JournalDate time.Time
	Amount      decimal.Decimal
	APAmount    decimal.Decimal
	Flags       FlagSet
	InvoiceID   string
	Source      Source
	Contract    Contract
	LineDescr   string
	Category    string
	Row         int // 1-based row in the source export, 0 when unknown
}

// IsFlagged reports whether the line carries any anomaly flag.
func (l InvoiceLine) IsFlagged() bool {
	return len(l.Flags) > 0
}

// FlaggedLines returns the lines carrying at least one flag, in input order.
func FlaggedLines(lines []InvoiceLine) []InvoiceLine {
	var flagged []InvoiceLine
	for _, line := range lines {
		if line.IsFlagged() {
			flagged = append(flagged, line)
		}
	}
	return flagged
}
