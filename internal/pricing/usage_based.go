package pricing

import (
	"fmt"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// evaluateUsageBased dispatches across the five usage models, spec §4.1.
func evaluateUsageBased(in Input) (Result, error) {
	f := in.Component.Fee.UsageBased
	if f == nil {
		return Result{}, ierr.NewError("usage_based fee missing variant data").Mark(ierr.ErrValidation)
	}
	if in.Usage == nil {
		return Result{}, ierr.NewError("usage_based fee requires usage data").Mark(ierr.ErrValidation)
	}

	switch f.Model {
	case types.UsageModelPerUnit:
		return evaluatePerUnit(in, f)
	case types.UsageModelTiered:
		return evaluateTiered(in, f)
	case types.UsageModelVolume:
		return evaluateVolume(in, f)
	case types.UsageModelPackage:
		return evaluatePackage(in, f)
	case types.UsageModelMatrix:
		return evaluateMatrix(in, f)
	default:
		return Result{}, ierr.NewErrorf("unknown usage model %q", f.Model).Mark(ierr.ErrValidation)
	}
}

// evaluatePerUnit implements "usage × price", spec §4.1.
func evaluatePerUnit(in Input, f *price.UsageBasedFee) (Result, error) {
	if f.PerUnit == nil {
		return Result{}, ierr.NewError("per_unit usage model missing config").Mark(ierr.ErrValidation)
	}
	used := in.Usage.Total()
	amount := roundMoney(used.Mul(f.PerUnit.Price), in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(amount), in.Subscription.Currency, false)), nil
}

// sortedTiers returns tiers ordered by FirstUnit ascending.
func sortedTiers(tiers []price.Tier) []price.Tier {
	out := make([]price.Tier, len(tiers))
	copy(out, tiers)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].FirstUnit < out[j-1].FirstUnit; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

// evaluateTiered accumulates cost per tier with optional per-tier
// flat_fee/flat_cap, rounding usage upward per evaluation when block_size
// is set, spec §4.1.
func evaluateTiered(in Input, f *price.UsageBasedFee) (Result, error) {
	if f.Tiered == nil {
		return Result{}, ierr.NewError("tiered usage model missing config").Mark(ierr.ErrValidation)
	}
	used := in.Usage.Total()
	if f.Tiered.BlockSize != nil && *f.Tiered.BlockSize > 0 {
		blocks := ceilDiv(used.Round(0).IntPart(), *f.Tiered.BlockSize)
		used = decimal.NewFromInt(blocks * *f.Tiered.BlockSize)
	}

	total := decimal.Zero
	remaining := used
	for _, tier := range sortedTiers(f.Tiered.Tiers) {
		tierCapacity := tierWidth(tier)
		unitsInTier := remaining
		if tierCapacity != nil && unitsInTier.GreaterThan(*tierCapacity) {
			unitsInTier = *tierCapacity
		}
		if unitsInTier.LessThanOrEqual(decimal.Zero) {
			continue
		}
		tierCost := unitsInTier.Mul(tier.Rate)
		if tier.FlatFee != nil {
			tierCost = tierCost.Add(*tier.FlatFee)
		}
		if tier.FlatCap != nil && tierCost.GreaterThan(*tier.FlatCap) {
			tierCost = *tier.FlatCap
		}
		total = total.Add(tierCost)
		remaining = remaining.Sub(unitsInTier)
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
	}
	amount := roundMoney(total, in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(amount), in.Subscription.Currency, false)), nil
}

// tierWidth returns the number of units a tier spans, or nil if unbounded.
func tierWidth(t price.Tier) *decimal.Decimal {
	if t.UpTo == nil {
		return nil
	}
	width := decimal.NewFromInt(*t.UpTo - t.FirstUnit)
	return &width
}

// evaluateVolume finds the single tier containing the total usage and
// applies its rate + flat_fee, capped by flat_cap, spec §4.1.
func evaluateVolume(in Input, f *price.UsageBasedFee) (Result, error) {
	if f.Volume == nil {
		return Result{}, ierr.NewError("volume usage model missing config").Mark(ierr.ErrValidation)
	}
	used := in.Usage.Total()
	usedUnits := used.Round(0).IntPart()

	tiers := sortedTiers(f.Volume.Tiers)
	var matched *price.Tier
	for i, tier := range tiers {
		if tier.Contains(usedUnits) {
			matched = &tiers[i]
			break
		}
	}
	if matched == nil {
		return newResult(), nil
	}
	total := used.Mul(matched.Rate)
	if matched.FlatFee != nil {
		total = total.Add(*matched.FlatFee)
	}
	if matched.FlatCap != nil && total.GreaterThan(*matched.FlatCap) {
		total = *matched.FlatCap
	}
	amount := roundMoney(total, in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(amount), in.Subscription.Currency, false)), nil
}

// evaluatePackage bills ceil(usage / block_size) × price, spec §4.1.
func evaluatePackage(in Input, f *price.UsageBasedFee) (Result, error) {
	if f.Package == nil || f.Package.BlockSize <= 0 {
		return Result{}, ierr.NewError("package usage model missing config").Mark(ierr.ErrValidation)
	}
	used := in.Usage.Total().Round(0).IntPart()
	packages := ceilDiv(used, f.Package.BlockSize)
	amount := roundMoney(decimal.NewFromInt(packages).Mul(f.Package.Price), in.Subscription.Currency)
	return newResult(newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(amount), in.Subscription.Currency, false)), nil
}

// evaluateMatrix looks up (dim1,dim2) -> rate and emits a sub-line per
// matrix cell with non-zero usage, spec §4.1.
func evaluateMatrix(in Input, f *price.UsageBasedFee) (Result, error) {
	if f.Matrix == nil {
		return Result{}, ierr.NewError("matrix usage model missing config").Mark(ierr.ErrValidation)
	}
	byDims := map[[2]string]decimal.Decimal{}
	for _, d := range in.Usage.Data {
		key := [2]string{d.Dimensions["dim1"], d.Dimensions["dim2"]}
		byDims[key] = byDims[key].Add(d.Value)
	}

	var subLines []invoice.LineItem
	total := decimal.Zero
	for _, cell := range f.Matrix.Cells {
		value, ok := byDims[[2]string{cell.Dim1, cell.Dim2}]
		if !ok || value.IsZero() {
			continue
		}
		cellAmount := roundMoney(value.Mul(cell.Rate), in.Subscription.Currency)
		total = total.Add(cellAmount)
		sub := newLine(fmt.Sprintf("%s (%s/%s)", in.Component.Name, cell.Dim1, cell.Dim2), in.Subscription.CurrentPeriod, clampNonNegative(cellAmount), in.Subscription.Currency, false)
		subLines = append(subLines, sub)
	}

	line := newLine(in.Component.Name, in.Subscription.CurrentPeriod, clampNonNegative(roundMoney(total, in.Subscription.Currency)), in.Subscription.Currency, false)
	line.SubLines = subLines
	return newResult(line), nil
}
