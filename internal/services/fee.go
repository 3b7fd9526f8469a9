package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillableMinutes rounds the stay up to whole minutes. Zero or negative
// durations, e.g. from clock skew between readers, bill one minute.
func BillableMinutes(entryTime, exitTime time.Time) int64 {
	d := exitTime.Sub(entryTime)
	if d <= 0 {
		return 1
	}
	minutes := int64(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	return minutes
}

// Fee is BillableMinutes times ratePerMinute.
func Fee(entryTime, exitTime time.Time, ratePerMinute decimal.Decimal) decimal.Decimal {
	return ratePerMinute.Mul(decimal.NewFromInt(BillableMinutes(entryTime, exitTime)))
}
