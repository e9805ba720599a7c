// Package classification assigns business categories to invoice lines.
package classification

import (
	"fmt"
	"strings"

	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/shopspring/decimal"
)

// Sign is the amount-sign bucket a rule applies to.
type Sign string

const (
	// SignAny matches every amount.
	SignAny Sign = "any"
	// SignNegative matches amounts below zero.
	SignNegative Sign = "negative"
	// SignNonNegative matches zero and positive amounts.
	SignNonNegative Sign = "non-negative"
)

// ParseSign converts a configuration value to a Sign. Empty means SignAny.
func ParseSign(s string) (Sign, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return SignAny, nil
	case "negative", "neg", "<0":
		return SignNegative, nil
	case "non-negative", "nonnegative", "positive", ">=0":
		return SignNonNegative, nil
	default:
		return "", fmt.Errorf("unknown amount sign %q", s)
	}
}

// signOf returns the sign bucket of an amount. Zero is non-negative.
func signOf(amount decimal.Decimal) Sign {
	if amount.IsNegative() {
		return SignNegative
	}
	return SignNonNegative
}

// Rule maps a (source, contract, sign) combination to a category.
type Rule struct {
	Source   model.Source
	Contract model.Contract
	Sign     Sign
	Category string
}

// Key is the composite lookup key of the rule table.
type Key struct {
	Source   model.Source
	Contract model.Contract
	Sign     Sign
}

func (r Rule) key() Key {
	return Key{
		Source:   normalizeSource(r.Source),
		Contract: normalizeContract(r.Contract),
		Sign:     r.Sign,
	}
}

// DefaultRules returns the standard invoice categorization table.
func DefaultRules() []Rule {
	return []Rule{
		{Source: model.SourceAP2, Contract: model.Contract1111, Sign: SignAny, Category: model.CategoryChartsAndCoding},
		{Source: model.SourceAP2, Contract: model.Contract2222, Sign: SignAny, Category: model.CategoryMiscExpense},
		{Source: model.SourceCOR, Contract: model.Contract1111, Sign: SignNegative, Category: model.Category1111CoupaReversal},
		{Source: model.SourceCOR, Contract: model.Contract1111, Sign: SignNonNegative, Category: model.Category1111CoupaPending},
		{Source: model.SourceCOR, Contract: model.Contract2222, Sign: SignNegative, Category: model.Category2222CoupaReversal},
		{Source: model.SourceCOR, Contract: model.Contract2222, Sign: SignNonNegative, Category: model.Category2222CoupaPending},
	}
}

func normalizeSource(s model.Source) model.Source {
	return model.Source(strings.ToUpper(strings.TrimSpace(string(s))))
}

func normalizeContract(c model.Contract) model.Contract {
	return model.Contract(strings.TrimSpace(string(c)))
}
