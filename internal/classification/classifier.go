package classification

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/model"
)

type pair struct {
	source   model.Source
	contract model.Contract
}

// Classifier assigns categories from a rule table.
// It holds no per-run state and is safe for concurrent use.
type Classifier struct {
	table map[Key]string
	// signed records pairs whose rules depend on the amount sign.
	signed map[pair]bool
}

// NewClassifier builds a classifier from rules. A (source, contract) pair may
// either have a single SignAny rule or sign-specific rules, not both.
func NewClassifier(rules []Rule) (*Classifier, error) {
	c := &Classifier{
		table:  make(map[Key]string, len(rules)),
		signed: make(map[pair]bool),
	}

	for i, rule := range rules {
		if rule.Category == "" {
			return nil, fmt.Errorf("rule %d: empty category", i+1)
		}
		switch rule.Sign {
		case SignAny, SignNegative, SignNonNegative:
		default:
			return nil, fmt.Errorf("rule %d: unknown amount sign %q", i+1, rule.Sign)
		}

		key := rule.key()
		p := pair{source: key.Source, contract: key.Contract}
		isSigned := key.Sign != SignAny

		if existing, seen := c.signed[p]; seen && existing != isSigned {
			return nil, fmt.Errorf("rule %d: %s/%s mixes sign-independent and sign-specific rules", i+1, key.Source, key.Contract)
		}
		if existing, ok := c.table[key]; ok && existing != rule.Category {
			return nil, fmt.Errorf("rule %d: %s/%s/%s already maps to %q", i+1, key.Source, key.Contract, key.Sign, existing)
		}

		c.signed[p] = isSigned
		c.table[key] = rule.Category
	}

	return c, nil
}

// NewDefaultClassifier returns a classifier over DefaultRules.
func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("default rules are invalid: %v", err))
	}
	return c
}

// Classify returns the category for a line. Lines outside the rule table get
// model.CategoryUnclassified together with an error wrapping common.ErrUnclassifiedRow.
func (c *Classifier) Classify(line model.InvoiceLine) (string, error) {
	p := pair{source: normalizeSource(line.Source), contract: normalizeContract(line.Contract)}

	signed, known := c.signed[p]
	if known {
		sign := SignAny
		if signed {
			sign = signOf(line.Amount)
		}
		if category, ok := c.table[Key{Source: p.source, Contract: p.contract, Sign: sign}]; ok {
			return category, nil
		}
	}

	return model.CategoryUnclassified, &common.RowError{
		Row:       line.Row,
		InvoiceID: line.InvoiceID,
		Err:       fmt.Errorf("%w: no rule for source %q contract %q", common.ErrUnclassifiedRow, line.Source, line.Contract),
	}
}

// ClassifyAll sets Category on every line and returns a warning for each
// unclassified one. No line is dropped.
func (c *Classifier) ClassifyAll(lines []model.InvoiceLine) []model.RowWarning {
	var warnings []model.RowWarning

	for i := range lines {
		category, err := c.Classify(lines[i])
		lines[i].Category = category
		if err != nil {
			warnings = append(warnings, model.RowWarning{
				Row:       lines[i].Row,
				InvoiceID: lines[i].InvoiceID,
				Err:       err,
			})
			slog.Warn("Unclassified invoice line",
				"row", lines[i].Row,
				"invoice", lines[i].InvoiceID,
				"source", lines[i].Source,
				"contract", lines[i].Contract)
		}
	}

	return warnings
}

// Counts returns the number of lines per category.
func Counts(lines []model.InvoiceLine) map[string]int {
	counts := make(map[string]int)
	for _, line := range lines {
		counts[line.Category]++
	}
	return counts
}
