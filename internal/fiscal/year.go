// Package fiscal derives April-to-March financial year keys and formats
// sequential document numbers.
package fiscal

import (
	"fmt"
	"time"
)

// YearKey returns the financial year key for a date, e.g. "FY25-26" for
// any date from 2025-04-01 through 2026-03-31.
func YearKey(t time.Time) string {
	startYear := t.Year()
	if t.Month() < time.April {
		startYear--
	}
	return fmt.Sprintf("FY%02d-%02d", startYear%100, (startYear+1)%100)
}

// Pad zero-pads n to the given width: Pad(7, 4) == "0007".
func Pad(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// BillNumber formats a bill number from a year key and an issued sequence
// value: "FY25-26-0007".
func BillNumber(yearKey string, issued int64) string {
	return fmt.Sprintf("%s-%s", yearKey, Pad(issued, 4))
}

// ChallanDisplayNumber formats the rendered form of a challan number:
// "FY25-26/0007". The stored challan number is the plain integer string.
func ChallanDisplayNumber(yearKey string, issued int64) string {
	return fmt.Sprintf("%s/%s", yearKey, Pad(issued, 4))
}
