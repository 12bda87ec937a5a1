package pricing

import (
	"fmt"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// EvaluateFee dispatches to the variant-specific evaluator named by
// in.Component.Fee.Kind, spec §4.1.
func EvaluateFee(in Input) (Result, error) {
	fee := in.Component.Fee
	switch fee.Kind {
	case types.FeeKindOneTime:
		return evaluateOneTime(in)
	case types.FeeKindRecurring:
		return evaluateRecurring(in)
	case types.FeeKindRate:
		return evaluateRate(in)
	case types.FeeKindSlotBased:
		return evaluateSlotBased(in)
	case types.FeeKindCapacity:
		return evaluateCapacity(in)
	case types.FeeKindUsageBased:
		return evaluateUsageBased(in)
	default:
		return Result{}, ierr.NewErrorf("unknown fee kind %q", fee.Kind).Mark(ierr.ErrValidation)
	}
}

func newLine(name string, period Period, amount decimal.Decimal, currency string, prorated bool) invoice.LineItem {
	minor := types.ToMinorUnits(amount, currency)
	return invoice.LineItem{
		LocalID:        types.NewID(),
		Name:           name,
		AmountSubtotal: minor,
		TaxableAmount:  minor,
		AmountTotal:    minor,
		StartDate:      period.Start,
		EndDate:        period.End,
		IsProrated:     prorated,
	}
}

// evaluateOneTime emits a line only on the cycle matching its billing
// type: Advance fires at cycle_index 0, Arrear at cycle_index 1, spec
// §4.1.
func evaluateOneTime(in Input) (Result, error) {
	f := in.Component.Fee.OneTime
	if f == nil {
		return Result{}, ierr.NewError("one_time fee missing variant data").Mark(ierr.ErrValidation)
	}
	wantCycle := int64(0)
	if f.BillingType == types.BillingTypeArrear {
		wantCycle = 1
	}
	if in.Subscription.CycleIndex != wantCycle {
		return Result{}, nil
	}
	amount := roundMoney(f.Amount, in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(amount), in.Subscription.Currency, false)), nil
}

// evaluateRecurring emits a line every cycle the cadence allows,
// prorating when the first cycle is shorter than a full period, spec
// §4.1.
func evaluateRecurring(in Input) (Result, error) {
	f := in.Component.Fee.Recurring
	if f == nil {
		return Result{}, ierr.NewError("recurring fee missing variant data").Mark(ierr.ErrValidation)
	}
	if f.Cadence == types.CadenceCommitted {
		if f.CommittedCycles == nil {
			return Result{}, ierr.NewError("committed cadence requires committed_cycles").Mark(ierr.ErrValidation)
		}
		if in.Subscription.CycleIndex >= int64(*f.CommittedCycles) {
			return Result{}, nil
		}
	}
	// Forever and Custom cadences bill every cycle; spec §9 leaves
	// Custom's exact schedule unresolved (DESIGN.md decision: treat it as
	// Forever until a schedule representation is added).

	full := f.Amount.Mul(f.Quantity)
	period := in.Subscription.CurrentPeriod
	prorated := false
	amount := full
	if in.Overrides.ForcedQuantity != nil {
		amount = f.Amount.Mul(*in.Overrides.ForcedQuantity)
	}

	coeff := decimal.NewFromInt(1)
	baselineStart := in.Subscription.FullPeriodStart
	if baselineStart.IsZero() {
		baselineStart = period.Start
	}
	if !baselineStart.Equal(period.Start) {
		// Short first cycle: the full-period denominator runs from the
		// anchor occurrence before activation, not from activation
		// itself (spec §8 S2).
		coeff = ProrationCoefficient(baselineStart, period.End, period.Start, period.End, in.Subscription.Timezone)
		prorated = true
	}
	amount = amount.Mul(coeff)
	amount = roundMoney(amount, in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, period, clampNonNegative(amount), in.Subscription.Currency, prorated)), nil
}

// evaluateRate resolves a single price or a term-based table keyed by
// billing period, emitting one line, spec §4.1.
func evaluateRate(in Input) (Result, error) {
	f := in.Component.Fee.Rate
	if f == nil {
		return Result{}, ierr.NewError("rate fee missing variant data").Mark(ierr.ErrValidation)
	}
	rate, ok := f.PriceFor(in.Component.BillingPeriod)
	if !ok {
		return Result{}, ierr.NewErrorf("no rate configured for billing period %q", in.Component.BillingPeriod).Mark(ierr.ErrValidation)
	}
	amount := roundMoney(rate, in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(amount), in.Subscription.Currency, false)), nil
}

// evaluateSlotBased bills slots × unit_price for the slot count in
// effect, applying the configured minimum-slot floor and prorating each
// slot-count segment within the period by the fraction of the period it
// was in effect, spec §4.1.
func evaluateSlotBased(in Input) (Result, error) {
	f := in.Component.Fee.SlotBased
	if f == nil {
		return Result{}, ierr.NewError("slot_based fee missing variant data").Mark(ierr.ErrValidation)
	}
	period := in.Subscription.CurrentPeriod

	segments := slotSegments(in.SlotEvents, period)
	if len(segments) == 0 {
		count := f.MinSlots
		if in.Overrides.SlotCount != nil {
			count = *in.Overrides.SlotCount
		}
		if count < f.MinSlots {
			count = f.MinSlots
		}
		amount := roundMoney(f.UnitPrice.Mul(decimal.NewFromInt(count)), in.Subscription.Currency)
		return newResult(newLine(in.Component.Name, period, clampNonNegative(amount), in.Subscription.Currency, false)), nil
	}

	total := decimal.Zero
	prorated := len(segments) > 1
	for _, seg := range segments {
		count := seg.count
		if count < f.MinSlots {
			count = f.MinSlots
		}
		coeff := ProrationCoefficient(period.Start, period.End, seg.start, seg.end, in.Subscription.Timezone)
		total = total.Add(f.UnitPrice.Mul(decimal.NewFromInt(count)).Mul(coeff))
	}
	amount := roundMoney(total, in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, period, clampNonNegative(amount), in.Subscription.Currency, prorated)), nil
}

// evaluateCapacity bills a commit fee plus per-unit overage above a
// threshold, using metered usage, spec §4.1.
func evaluateCapacity(in Input) (Result, error) {
	f := in.Component.Fee.Capacity
	if f == nil {
		return Result{}, ierr.NewError("capacity fee missing variant data").Mark(ierr.ErrValidation)
	}
	if in.Usage == nil {
		return Result{}, ierr.NewError("capacity fee requires usage data").Mark(ierr.ErrValidation)
	}
	used := in.Usage.Total()
	overageUnits := used.Sub(f.ThresholdUnits)
	lines := []invoice.LineItem{
		newLine(fmt.Sprintf("%s (commitment)", in.Component.Name), in.Subscription.CurrentPeriod, roundMoney(f.CommitFee, in.Subscription.Currency), in.Subscription.Currency, false),
	}
	if overageUnits.GreaterThan(decimal.Zero) {
		overageAmount := roundMoney(overageUnits.Mul(f.OveragePricePerUnit), in.Subscription.Currency)
		lines = append(lines, newLine(fmt.Sprintf("%s (overage)", in.Component.Name), in.Subscription.CurrentPeriod, clampNonNegative(overageAmount), in.Subscription.Currency, false))
	}
	return newResult(lines...), nil
}
