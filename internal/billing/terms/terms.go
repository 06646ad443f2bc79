// Package terms resolves invoice due dates from payment-terms configuration.
package terms

import (
	"regexp"
	"strconv"
	"time"
)

// Code is a symbolic payment-terms identifier.
type Code string

const (
	DueOnReceipt Code = "DUE_ON_RECEIPT"
	Net7         Code = "NET_7"
	Net15        Code = "NET_15"
	Net30        Code = "NET_30"
	Net45        Code = "NET_45"
	Net60        Code = "NET_60"
)

var dayOffsets = map[Code]int{
	DueOnReceipt: 0,
	Net7:         7,
	Net15:        15,
	Net30:        30,
	Net45:        45,
	Net60:        60,
}

var embeddedDays = regexp.MustCompile(`\d{1,3}`)

// ResolveDueDate computes a due date from the issue date and the company's
// terms configuration. Priority: an explicit day count wins outright, then a
// known terms code, then the first integer embedded in a free-text terms
// string ("Payment due within 30 days"). With no configuration the invoice
// is due on the issue date; there is no implicit non-zero default.
//
// The issue date is truncated to midnight before adding days so repeated
// offset additions never drift across day boundaries.
func ResolveDueDate(issued time.Time, termsValue string, explicitDays *int) time.Time {
	days := 0
	switch {
	case explicitDays != nil:
		days = *explicitDays
	default:
		if offset, ok := dayOffsets[Code(termsValue)]; ok {
			days = offset
		} else if termsValue != "" {
			if match := embeddedDays.FindString(termsValue); match != "" {
				if n, err := strconv.Atoi(match); err == nil {
					days = n
				}
			}
		}
	}

	midnight := time.Date(issued.Year(), issued.Month(), issued.Day(), 0, 0, 0, 0, issued.Location())
	return midnight.AddDate(0, 0, days)
}
