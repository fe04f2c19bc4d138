// Package core provides the savings ledger data model as consumed by the client.
//
// This file contains amount parsing. Amounts are positive magnitudes; the sign
// of a transaction comes from its type.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input into a positive amount.
//
// It accepts both dot (1500.5) and comma (1500,5) decimal separators.
// Grouping separators are not accepted: "150.000" is one hundred fifty.
// Returns a validation error for empty, malformed, zero or negative input.
//
// Examples:
//
//	ParseAmount("50000")   -> 50000, nil
//	ParseAmount("12,50")   -> 12.5, nil
//	ParseAmount("")        -> error (amount is required)
//	ParseAmount("-3")      -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Validation("parse amount", "amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, Validation("parse amount", "amount must be a positive number")
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case !unicode.IsDigit(r):
			return decimal.Zero, Validation("parse amount", "amount must be a number")
		}
	}
	if dots > 1 || s == "." {
		return decimal.Zero, Validation("parse amount", "amount must be a number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Validation("parse amount", "amount must be a number")
	}
	if !d.IsPositive() {
		return decimal.Zero, Validation("parse amount", "amount must be greater than zero")
	}
	return d, nil
}
