// Package format renders monetary amounts for document views. Amounts are
// stored as plain numbers; the en-IN lakh/crore grouping is display-only.
package format

import (
	"fmt"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var enIN = message.NewPrinter(language.MustParse("en-IN"))

// INR formats an amount with the rupee sign and Indian digit grouping:
// INR(100000) == "₹1,00,000.00".
func INR(amount float64) string {
	return enIN.Sprintf("₹%v", number.Decimal(amount,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2)))
}

// INRCompact renders a short dashboard form: lakhs above 1,00,000,
// thousands above 1,000, the raw amount below that.
func INRCompact(amount float64) string {
	switch {
	case amount >= 100000:
		return fmt.Sprintf("₹%.1fL", amount/100000)
	case amount >= 1000:
		return fmt.Sprintf("₹%.1fK", amount/1000)
	default:
		return "₹" + strconv.FormatFloat(amount, 'f', -1, 64)
	}
}
