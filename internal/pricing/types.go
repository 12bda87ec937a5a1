// Package pricing is the pure price-component evaluator, spec §4.1. It
// takes no DB/network dependency: every exported Evaluate* function is a
// deterministic function of its inputs, matching the teacher's proration
// calculator shape in
// vidinfra-flexprice/internal/domain/proration/calculator.go (itself a
// pure function of ProrationParams) generalized across all six fee
// variants.
package pricing

import (
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/shopspring/decimal"
)

// Period is a half-open billing window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// SubscriptionDetails is the subset of subscription state the evaluator
// needs, spec §4.1.
type SubscriptionDetails struct {
	CurrentPeriod Period
	CycleIndex    int64
	Currency      string
	Timezone      string
	// FullPeriodStart is the anchor-aligned start of the billing cycle
	// CurrentPeriod belongs to — equal to CurrentPeriod.Start except for
	// a short first cycle, where it is the anchor occurrence on or
	// before CurrentPeriod.Start. It is the denominator baseline for
	// first-cycle proration (spec §8 S2: "22 days of 31", the 31 being
	// the full anchor-to-anchor month, not the short 22-day window
	// itself). Callers that leave it zero get CurrentPeriod.Start, which
	// is correct whenever the cycle is already a full period.
	FullPeriodStart time.Time
}

// UsageDatum is one aggregated usage row for a usage-based fee, spec
// §4.5. Dimensions is populated only for Matrix aggregation.
type UsageDatum struct {
	Value      decimal.Decimal
	Dimensions map[string]string
}

// UsageData is the result of fetch_usage for one metric over one period,
// spec §4.5.
type UsageData struct {
	Data   []UsageDatum
	Period Period
}

// Total sums every datum's value — the common case for non-Matrix usage
// models.
func (u UsageData) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range u.Data {
		total = total.Add(d.Value)
	}
	return total
}

// Overrides carries the optional per-evaluation overrides spec §4.1
// mentions (e.g. a forced unit count for capacity purchases).
type Overrides struct {
	ForcedQuantity *decimal.Decimal
	SlotCount      *int64
}

// SlotEvent is the slot count in effect from EffectiveAt on, derived from
// the subscription's slot-transactions ledger, spec §4.1 SlotBased "sourced from
// slot-transactions ledger ... prorates slot deltas within a period".
type SlotEvent struct {
	EffectiveAt time.Time
	Count       int64 // running total after this event, not a delta
}

// Input bundles everything one EvaluateFee call needs.
type Input struct {
	Subscription SubscriptionDetails
	Component    *price.PriceComponent
	Overrides    Overrides
	Usage        *UsageData
	SlotEvents   []SlotEvent
}

// Result is zero, one, or more LineItems produced by evaluating a fee,
// spec §4.1.
type Result struct {
	Lines []invoice.LineItem
}

func newResult(lines ...invoice.LineItem) Result {
	return Result{Lines: lines}
}
