package pricing

import (
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// roundMoney applies spec §4.1's shared arithmetic rule: round
// half-away-from-zero to currency precision, then return the result still
// in major units (callers convert to minor units at the invoice layer).
func roundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return types.RoundToCurrency(amount, currency)
}

// clampNonNegative implements "negative line totals are clamped to zero
// except for explicit credits", spec §4.1.
func clampNonNegative(amount decimal.Decimal) decimal.Decimal {
	return types.ClampNonNegative(amount)
}

// daysInWindow counts whole days in [start, end) at midnight in the given
// location, DST-aware — grounded on
// vidinfra-flexprice/internal/domain/proration/calculator.go's
// daysInDurationWithDST.
func daysInWindow(start, end time.Time, loc *time.Location) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	if !startDay.Before(endDay) {
		return 0
	}
	days := 0
	for cur := startDay; cur.Before(endDay); cur = cur.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// ProrationCoefficient computes days_in_active_window/days_in_full_period
// per spec §4.1, in the subscription's timezone. activeStart/activeEnd is
// the sub-window actually active within [periodStart, periodEnd).
func ProrationCoefficient(periodStart, periodEnd, activeStart, activeEnd time.Time, timezone string) decimal.Decimal {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	totalDays := daysInWindow(periodStart, periodEnd, loc)
	if totalDays <= 0 {
		return decimal.Zero
	}
	activeDays := daysInWindow(activeStart, activeEnd, loc)
	if activeDays < 0 {
		activeDays = 0
	}
	if activeDays > totalDays {
		activeDays = totalDays
	}
	return decimal.NewFromInt(int64(activeDays)).Div(decimal.NewFromInt(int64(totalDays)))
}

// isFullPeriod reports whether activeStart/activeEnd cover the whole
// period, so callers can skip proration when it is a no-op.
func isFullPeriod(periodStart, periodEnd, activeStart, activeEnd time.Time) bool {
	return !activeStart.After(periodStart) && !activeEnd.Before(periodEnd)
}
