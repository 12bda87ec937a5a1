// Package price models the fee sum-type a PriceComponent evaluates, spec
// §4.1. Grounded on vidinfra-flexprice/internal/domain/price/model.go's
// Price struct (PriceTier, PriceTransform) but generalized from flexprice's
// single BillingModel enum into the richer per-variant fee tree spec §4.1
// requires (OneTime / Recurring / Rate / SlotBased / Capacity / UsageBased),
// following spec §9's "arena of entities keyed by typed ids" guidance: a
// Fee is a plain value embedded in its owning PriceComponent, not a pointer
// graph, so it serializes straight to the JSONB column spec §6 calls for.
package price

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// Tier is one row of a tiered/volume pricing table, spec §4.1.
// FirstUnit is inclusive; the boundary unit equal to the next tier's
// FirstUnit-1 stays in the lower tier (spec §8 boundary behavior).
type Tier struct {
	FirstUnit int64            `json:"first_unit"`
	UpTo      *int64           `json:"up_to,omitempty"` // nil means unbounded
	Rate      decimal.Decimal  `json:"rate"`
	FlatFee   *decimal.Decimal `json:"flat_fee,omitempty"`
	FlatCap   *decimal.Decimal `json:"flat_cap,omitempty"`
}

// Contains reports whether usage unit u belongs to this tier.
func (t Tier) Contains(u int64) bool {
	if u < t.FirstUnit {
		return false
	}
	return t.UpTo == nil || u < *t.UpTo
}

type OneTimeFee struct {
	Amount      decimal.Decimal    `json:"amount"`
	BillingType types.BillingType  `json:"billing_type"`
}

type RecurringFee struct {
	Amount    decimal.Decimal         `json:"amount"`
	Quantity  decimal.Decimal         `json:"quantity"`
	Cadence   types.RecurringCadence  `json:"cadence"`
	// CommittedCycles is the number of cycles a Committed cadence emits for.
	CommittedCycles *int               `json:"committed_cycles,omitempty"`
	BillingType     types.BillingType  `json:"billing_type"`
}

// RateFee is either a single flat price or a table keyed by billing period,
// spec §4.1 "Rate(pricing): either a single price or a term-based table
// keyed by billing period".
type RateFee struct {
	Single *decimal.Decimal                         `json:"single,omitempty"`
	Terms  map[types.BillingPeriod]decimal.Decimal  `json:"terms,omitempty"`
}

// PriceFor resolves the rate applicable to the given billing period.
func (r RateFee) PriceFor(period types.BillingPeriod) (decimal.Decimal, bool) {
	if r.Single != nil {
		return *r.Single, true
	}
	if p, ok := r.Terms[period]; ok {
		return p, true
	}
	return decimal.Zero, false
}

type SlotBasedFee struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
	MinSlots  int64           `json:"min_slots"`
}

type CapacityFee struct {
	CommitFee           decimal.Decimal `json:"commit_fee"`
	ThresholdUnits      decimal.Decimal `json:"threshold_units"`
	OveragePricePerUnit decimal.Decimal `json:"overage_price_per_unit"`
	MetricID            string          `json:"metric_id"`
}

type PerUnitModel struct {
	Price decimal.Decimal `json:"price"`
}

type TieredModel struct {
	Tiers     []Tier `json:"tiers"`
	BlockSize *int64 `json:"block_size,omitempty"`
}

type VolumeModel struct {
	Tiers []Tier `json:"tiers"`
}

type PackageModel struct {
	BlockSize int64           `json:"block_size"`
	Price     decimal.Decimal `json:"price"`
}

type MatrixCell struct {
	Dim1 string          `json:"dim1"`
	Dim2 string          `json:"dim2"`
	Rate decimal.Decimal `json:"rate"`
}

type MatrixModel struct {
	Cells []MatrixCell `json:"cells"`
}

// UsageBasedFee is the metered-fee variant, spec §4.1.
type UsageBasedFee struct {
	Model    types.UsageModel `json:"model"`
	MetricID string           `json:"metric_id"`

	PerUnit *PerUnitModel `json:"per_unit,omitempty"`
	Tiered  *TieredModel  `json:"tiered,omitempty"`
	Volume  *VolumeModel  `json:"volume,omitempty"`
	Package *PackageModel `json:"package,omitempty"`
	Matrix  *MatrixModel  `json:"matrix,omitempty"`
}

// Fee is the sum type discriminated by Kind; exactly one variant field is
// non-nil for a given Kind.
type Fee struct {
	Kind types.FeeKind `json:"kind"`

	OneTime    *OneTimeFee    `json:"one_time,omitempty"`
	Recurring  *RecurringFee  `json:"recurring,omitempty"`
	Rate       *RateFee       `json:"rate,omitempty"`
	SlotBased  *SlotBasedFee  `json:"slot_based,omitempty"`
	Capacity   *CapacityFee   `json:"capacity,omitempty"`
	UsageBased *UsageBasedFee `json:"usage_based,omitempty"`
}

// PriceComponent is one fee within a plan version, spec §3.
type PriceComponent struct {
	ID            string              `db:"id" json:"id"`
	PlanVersionID string              `db:"plan_version_id" json:"plan_version_id"`
	Name          string              `db:"name" json:"name"`
	Currency      string              `db:"currency" json:"currency"`
	BillingPeriod types.BillingPeriod `db:"billing_period" json:"billing_period"`
	Fee           Fee                 `db:"fee" json:"fee"`

	types.BaseModel
}

// Repository persists price components scoped to a plan version.
type Repository interface {
	Create(ctx context.Context, p *PriceComponent) error
	ListByPlanVersion(ctx context.Context, planVersionID string) ([]*PriceComponent, error)
}
