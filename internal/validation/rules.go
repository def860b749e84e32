// Package validation gates user input before any network call. Rules are
// pure predicates over a string; a Set of rules yields both an aggregate
// pass/fail and a per-rule breakdown for live feedback.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Kind selects the predicate a Rule evaluates
type Kind uint8

const (
	KindRequired Kind = iota + 1
	KindEmail
	KindMinLength
	KindHasSpecialChar
	KindNoSpecialChar
	KindNoDigit
	KindMinValue
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Rule is a named predicate. Length and Value hold the parameter of
// MinLength and MinValue respectively.
type Rule struct {
	Kind        Kind
	Length      int
	Value       decimal.Decimal
	Description string
}

// Required is satisfied by any input that is not blank after trimming
func Required() Rule {
	return Rule{Kind: KindRequired, Description: "Required"}
}

// Email is satisfied by a single-@ local@domain address without whitespace
func Email() Rule {
	return Rule{Kind: KindEmail, Description: "Valid email address"}
}

// MinLength is satisfied by inputs of at least n characters
func MinLength(n int) Rule {
	return Rule{Kind: KindMinLength, Length: n, Description: fmt.Sprintf("Minimum %d characters", n)}
}

// HasSpecialChar requires a character other than a letter, digit or space
func HasSpecialChar() Rule {
	return Rule{Kind: KindHasSpecialChar, Description: "Special character"}
}

// NoSpecialChar allows only letters, digits and whitespace
func NoSpecialChar() Rule {
	return Rule{Kind: KindNoSpecialChar, Description: "Letters, numbers and spaces only"}
}

// NoDigit rejects any decimal digit
func NoDigit() Rule {
	return Rule{Kind: KindNoDigit, Description: "No digits"}
}

// MinValue requires a finite number greater than or equal to n
func MinValue(n decimal.Decimal) Rule {
	return Rule{Kind: KindMinValue, Value: n, Description: "At least " + n.String()}
}

// Test evaluates the rule. Empty input satisfies every rule except Required,
// so optional fields stay valid until something is typed.
func (r Rule) Test(value string) bool {
	if r.Kind == KindRequired {
		return strings.TrimSpace(value) != ""
	}
	if value == "" {
		return true
	}
	switch r.Kind {
	case KindEmail:
		return emailPattern.MatchString(value)
	case KindMinLength:
		return len([]rune(value)) >= r.Length
	case KindHasSpecialChar:
		return hasSpecial(value)
	case KindNoSpecialChar:
		return !hasSpecial(value)
	case KindNoDigit:
		return strings.IndexFunc(value, isDigit) < 0
	case KindMinValue:
		n, err := ParseNumber(value)
		return err == nil && n.GreaterThanOrEqual(r.Value)
	default:
		return false
	}
}

// maxScale bounds the fractional digits ParseNumber accepts
const maxScale = 20

// ErrNotANumber is returned for input that is not a plain decimal number
var ErrNotANumber = errors.New("not a decimal number")

// ParseNumber parses a plain decimal number, ignoring surrounding spaces.
// Exponent notation and more than maxScale fractional digits are refused
// before any arithmetic rescales the value.
func ParseNumber(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if strings.ContainsAny(value, "eE") {
		return decimal.Zero, ErrNotANumber
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, ErrNotANumber
	}
	if d.Exponent() < -maxScale {
		return decimal.Zero, ErrNotANumber
	}
	return d, nil
}

func hasSpecial(value string) bool {
	for _, r := range value {
		if !isASCIILetter(r) && !isDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
