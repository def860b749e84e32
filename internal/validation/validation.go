package validation

import "github.com/shopspring/decimal"

// Criterion is one named pass/fail fact about an input
type Criterion struct {
	Name      string `json:"name"`
	Satisfied bool   `json:"satisfied"`
}

// Set is an ordered collection of rules evaluated together
type Set []Rule

// Predefined rule sets for the client's forms
var (
	NameRules     = Set{Required(), NoDigit(), NoSpecialChar()}
	EmailRules    = Set{Required(), Email()}
	PasswordRules = Set{Required(), MinLength(8), HasSpecialChar()}
	AmountRules   = Set{Required(), MinValue(decimal.New(1, -2))}
)

// Valid is the logical AND of every rule in the set
func (s Set) Valid(value string) bool {
	return AllSatisfied(s.Criteria(value))
}

// Criteria reports each rule's outcome in set order
func (s Set) Criteria(value string) []Criterion {
	out := make([]Criterion, 0, len(s))
	for _, r := range s {
		out = append(out, Criterion{Name: r.Description, Satisfied: r.Test(value)})
	}
	return out
}

// Failures returns the rules value does not satisfy
func (s Set) Failures(value string) []Rule {
	var out []Rule
	for _, r := range s {
		if !r.Test(value) {
			out = append(out, r)
		}
	}
	return out
}

// AllSatisfied reports whether every criterion passed
func AllSatisfied(criteria []Criterion) bool {
	for _, c := range criteria {
		if !c.Satisfied {
			return false
		}
	}
	return true
}
