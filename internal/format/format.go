// Package format renders amounts and dates the way Indonesian users read
// them: "Rp 150.000", "+ 50.000", "1/3/2024".
package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"frintab/internal/core"
)

var printer = message.NewPrinter(language.Indonesian)

// Number groups thousands with "." and separates up to three decimals
// with ",".
func Number(d decimal.Decimal) string {
	neg := d.IsNegative()
	d = d.Abs().Round(3)
	whole := d.Truncate(0)

	s := printer.Sprintf("%d", whole.IntPart())
	if frac := d.Sub(whole); !frac.IsZero() {
		s += "," + strings.TrimPrefix(frac.String(), "0.")
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Money prefixes the currency.
func Money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-Rp " + Number(d.Abs())
	}
	return "Rp " + Number(d)
}

// Signed shows a transaction amount with its direction.
func Signed(tx core.Transaction) string {
	sign := "+"
	if tx.Type == core.Expense {
		sign = "-"
	}
	return sign + " " + Number(tx.Amount)
}

// Date is day/month/year without padding.
func Date(t time.Time) string {
	return t.Format("2/1/2006")
}
