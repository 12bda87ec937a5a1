package subscription

import (
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestAdvancePeriod_MonthlyAnchorClampsToShortMonth(t *testing.T) {
	// billing_start_date on the 31st: the monthly cycle into February must
	// clamp to the 29th in a leap year, not overflow into March.
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	periodStart, periodEnd := AdvancePeriod(start, 31, types.BillingPeriodMonthly, 0)
	assert.Equal(t, start, periodStart)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), periodEnd)

	cycle1Start, cycle1End := AdvancePeriod(start, 31, types.BillingPeriodMonthly, 1)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), cycle1Start)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), cycle1End)
}

func TestAdvancePeriod_MonthlyAnchorClampsToNonLeapFebruary(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	_, periodEnd := AdvancePeriod(start, 31, types.BillingPeriodMonthly, 0)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), periodEnd)
}

func TestAdvancePeriod_QuarterlyAdvancesThreeMonths(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	_, periodEnd := AdvancePeriod(start, 31, types.BillingPeriodQuarterly, 0)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), periodEnd)
}

func TestAdvancePeriod_AnnualPreservesAnchorDay(t *testing.T) {
	start := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	_, periodEnd := AdvancePeriod(start, 29, types.BillingPeriodAnnual, 0)
	// 2025 isn't a leap year: the annual cycle clamps back to the 28th.
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), periodEnd)
}

func TestAnchorBaseline_MidMonthActivationBacksUpToPriorAnchor(t *testing.T) {
	// activation on the 10th against a day-1 anchor: the baseline is the
	// 1st of the same month, giving a short first cycle proration
	// denominator, spec §8 S2.
	billingStart := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	baseline := AnchorBaseline(billingStart, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), baseline)
}

func TestAnchorBaseline_ActivationOnAnchorDayIsItsOwnBaseline(t *testing.T) {
	billingStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	baseline := AnchorBaseline(billingStart, 1)
	assert.Equal(t, billingStart, baseline)
}

func TestAnchorBaseline_AnchorAheadOfActivationBacksUpAMonth(t *testing.T) {
	// activation on Jan 10 against anchor day 20: the 20th hasn't occurred
	// yet this month, so the baseline is the prior month's 20th.
	billingStart := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	baseline := AnchorBaseline(billingStart, 20)
	assert.Equal(t, time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC), baseline)
}
