package pricing

import (
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

// S1: simple monthly recurring, no proration.
func TestEvaluateRecurring_SimpleMonthly(t *testing.T) {
	loc := mustLoc(t, "UTC")
	billingStart := time.Date(2024, 1, 15, 0, 0, 0, 0, loc)

	start, end := subscription.AdvancePeriod(billingStart, 15, types.BillingPeriodMonthly, 0)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, loc), end)

	comp := &price.PriceComponent{
		Name:          "base",
		BillingPeriod: types.BillingPeriodMonthly,
		Fee: price.Fee{
			Kind: types.FeeKindRecurring,
			Recurring: &price.RecurringFee{
				Amount:      decimal.NewFromFloat(10.00),
				Quantity:    decimal.NewFromInt(1),
				Cadence:     types.CadenceForever,
				BillingType: types.BillingTypeAdvance,
			},
		},
	}

	in := Input{
		Subscription: SubscriptionDetails{
			CurrentPeriod: Period{Start: start, End: end},
			CycleIndex:    0,
			Currency:      "usd",
			Timezone:      "UTC",
		},
		Component: comp,
	}

	result, err := EvaluateFee(in)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, int64(1000), result.Lines[0].AmountTotal)
	assert.False(t, result.Lines[0].IsProrated)

	// Second invoice, cycle 1: full period, same total.
	start2, end2 := subscription.AdvancePeriod(billingStart, 15, types.BillingPeriodMonthly, 1)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, loc), start2)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, loc), end2)

	in.Subscription.CurrentPeriod = Period{Start: start2, End: end2}
	in.Subscription.CycleIndex = 1
	result2, err := EvaluateFee(in)
	require.NoError(t, err)
	require.Len(t, result2.Lines, 1)
	assert.Equal(t, int64(1000), result2.Lines[0].AmountTotal)
	assert.False(t, result2.Lines[0].IsProrated)
}

// S2: prorated first period.
func TestEvaluateRecurring_ProratedFirstPeriod(t *testing.T) {
	loc := mustLoc(t, "UTC")
	billingStart := time.Date(2024, 1, 10, 0, 0, 0, 0, loc)

	start, end := subscription.AdvancePeriod(billingStart, 1, types.BillingPeriodMonthly, 0)
	assert.Equal(t, billingStart, start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, loc), end)

	baseline := subscription.AnchorBaseline(billingStart, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), baseline)

	comp := &price.PriceComponent{
		Name:          "base",
		BillingPeriod: types.BillingPeriodMonthly,
		Fee: price.Fee{
			Kind: types.FeeKindRecurring,
			Recurring: &price.RecurringFee{
				Amount:      decimal.NewFromFloat(10.00),
				Quantity:    decimal.NewFromInt(1),
				Cadence:     types.CadenceForever,
				BillingType: types.BillingTypeAdvance,
			},
		},
	}

	in := Input{
		Subscription: SubscriptionDetails{
			CurrentPeriod:   Period{Start: start, End: end},
			CycleIndex:      0,
			Currency:        "usd",
			Timezone:        "UTC",
			FullPeriodStart: baseline,
		},
		Component: comp,
	}

	result, err := EvaluateFee(in)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, int64(710), result.Lines[0].AmountTotal)
	assert.True(t, result.Lines[0].IsProrated)
}

// S3: tiered usage.
func TestEvaluateTieredUsage(t *testing.T) {
	upTo := int64(1000)
	comp := &price.PriceComponent{
		Name:          "api_calls",
		BillingPeriod: types.BillingPeriodMonthly,
		Fee: price.Fee{
			Kind: types.FeeKindUsageBased,
			UsageBased: &price.UsageBasedFee{
				Model:    types.UsageModelTiered,
				MetricID: "metric_1",
				Tiered: &price.TieredModel{
					Tiers: []price.Tier{
						{FirstUnit: 0, UpTo: &upTo, Rate: decimal.Zero},
						{FirstUnit: upTo, UpTo: nil, Rate: decimal.NewFromFloat(0.02)},
					},
				},
			},
		},
	}

	in := Input{
		Subscription: SubscriptionDetails{
			CurrentPeriod: Period{
				Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			},
			Currency: "usd",
			Timezone: "UTC",
		},
		Component: comp,
		Usage: &UsageData{
			Data: []UsageDatum{{Value: decimal.NewFromInt(1500)}},
		},
	}

	result, err := EvaluateFee(in)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, int64(1000), result.Lines[0].AmountTotal)
}

func TestTierContains_BoundaryStaysInLowerTier(t *testing.T) {
	upTo := int64(1000)
	tier := price.Tier{FirstUnit: 0, UpTo: &upTo}
	assert.True(t, tier.Contains(999))
	assert.False(t, tier.Contains(1000))
}

func TestEvaluateOneTime_AdvanceFiresOnlyAtCycleZero(t *testing.T) {
	comp := &price.PriceComponent{
		Name: "setup_fee",
		Fee: price.Fee{
			Kind: types.FeeKindOneTime,
			OneTime: &price.OneTimeFee{
				Amount:      decimal.NewFromInt(50),
				BillingType: types.BillingTypeAdvance,
			},
		},
	}
	period := Period{Start: time.Now(), End: time.Now().AddDate(0, 1, 0)}

	in := Input{
		Subscription: SubscriptionDetails{CurrentPeriod: period, CycleIndex: 0, Currency: "usd"},
		Component:    comp,
	}
	result, err := EvaluateFee(in)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, int64(5000), result.Lines[0].AmountTotal)

	in.Subscription.CycleIndex = 1
	result2, err := EvaluateFee(in)
	require.NoError(t, err)
	assert.Empty(t, result2.Lines)
}
