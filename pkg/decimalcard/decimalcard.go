// Package decimalcard parses FHIR cardinality bounds. ElementDefinition.max
// is either the literal "*" or a non-negative integer encoded as a decimal
// string; shopspring/decimal gives exact, non-floating-point comparisons
// for the "base.max parses to >1" classification rule.
package decimalcard

import "github.com/shopspring/decimal"

// Max represents a parsed ElementDefinition.max value.
type Max struct {
	Unbounded bool
	Value     decimal.Decimal
}

// ParseMax parses a max cardinality string. "*" yields an unbounded Max.
// An unparseable value yields Max{} and ok=false; callers should treat that
// the same as "no base.max", per the classifier's tolerant behaviour.
func ParseMax(s string) (Max, bool) {
	if s == "*" {
		return Max{Unbounded: true}, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Max{}, false
	}
	return Max{Value: d}, true
}

// GreaterThanOne reports whether a parsed max exceeds 1 (unbounded always
// does).
func (m Max) GreaterThanOne() bool {
	if m.Unbounded {
		return true
	}
	return m.Value.GreaterThan(decimal.NewFromInt(1))
}

// IsArray reports whether the given base.max string classifies its element
// as an array per the engine's array-kind rule.
func IsArray(baseMax string) bool {
	m, ok := ParseMax(baseMax)
	return ok && m.GreaterThanOne()
}
