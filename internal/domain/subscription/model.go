// Package subscription models a customer's live attachment to a plan
// version and its billing-period state machine, spec §3/§4.2. Grounded on
// vidinfra-flexprice/internal/domain/subscription/model.go's field set
// (BillingAnchor, CurrentPeriodStart/End, PauseStatus, CommitmentAmount)
// but rebuilt against plain repository methods instead of ent's
// FromEntList/GetSubscriptionFromEnt conversion helpers, since no ent code
// generation can run in this exercise.
package subscription

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription is the billable relationship between a customer and a plan
// version, spec §3.
type Subscription struct {
	ID              string `db:"id" json:"id"`
	CustomerID      string `db:"customer_id" json:"customer_id"`
	PlanVersionID   string `db:"plan_version_id" json:"plan_version_id"`
	// TrialingPlanID, when set, is the plan version pricing resolves to
	// while Status is TrialActive (spec §4.2 "effective-plan resolution").
	// PlanVersionID itself is never rewritten during a trial.
	TrialingPlanID *string `db:"trialing_plan_id" json:"trialing_plan_id,omitempty"`

	BillingStartDate time.Time                `db:"billing_start_date" json:"billing_start_date"`
	BillingDayAnchor int                       `db:"billing_day_anchor" json:"billing_day_anchor"`
	NetTermsDays     int                       `db:"net_terms_days" json:"net_terms_days"`
	EffectivePeriod  types.BillingPeriod       `db:"effective_billing_period" json:"effective_billing_period"`

	Status types.SubscriptionStatus `db:"status" json:"status"`

	CurrentPeriodStart time.Time  `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CycleIndex         int64      `db:"cycle_index" json:"cycle_index"`

	ActivatedAt        *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	CanceledAt         *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	// CommitmentAmount/OverageFactor back Capacity-fee components that
	// need a per-subscription commit override (spec §4.1 Capacity).
	CommitmentAmount *decimal.Decimal `db:"commitment_amount" json:"commitment_amount,omitempty"`
	OverageFactor    *decimal.Decimal `db:"overage_factor" json:"overage_factor,omitempty"`

	types.BaseModel
}

// EffectivePlanVersionID returns the plan version pricing should resolve
// against right now: the trialing override while on trial, otherwise the
// subscription's own plan version (spec §4.2).
func (s *Subscription) EffectivePlanVersionID() string {
	if s.Status == types.SubscriptionStatusTrialActive && s.TrialingPlanID != nil {
		return *s.TrialingPlanID
	}
	return s.PlanVersionID
}

// AdvancePeriod computes the next (start, end) pair deterministically from
// BillingStartDate/BillingDayAnchor/EffectivePeriod for cycle cycleIndex,
// per spec §4.2 "Period advancement": add the cycle's month count to
// billing_start_date, then snap the day to billing_day_anchor, clamping to
// the last day of the resulting month.
// The first cycle's start is billing_start_date itself, even when that
// date falls mid-month relative to the anchor (spec §8 S2's 2024-01-10
// activation with anchor 1); every later cycle's start is the prior
// cycle's anchor-snapped end, so it is always already aligned.
func AdvancePeriod(billingStart time.Time, anchor int, period types.BillingPeriod, cycleIndex int64) (start, end time.Time) {
	months := period.MonthsIn()
	end = addMonthsSnapToAnchor(billingStart, int(cycleIndex+1)*months, anchor)
	if cycleIndex == 0 {
		start = billingStart
		return start, end
	}
	start = addMonthsSnapToAnchor(billingStart, int(cycleIndex)*months, anchor)
	return start, end
}

// AnchorBaseline returns the anchor occurrence on or before billingStart,
// the proration denominator baseline for a short first cycle (spec §8
// S2). For cycle_index > 0 this is unused since the period is already
// full; FullPeriodStart should only be set from this for cycle 0.
func AnchorBaseline(billingStart time.Time, anchor int) time.Time {
	candidate := addMonthsSnapToAnchor(billingStart, 0, anchor)
	if candidate.After(billingStart) {
		candidate = addMonthsSnapToAnchor(billingStart, -1, anchor)
	}
	return candidate
}

func addMonthsSnapToAnchor(base time.Time, months int, anchor int) time.Time {
	y, m, _ := base.Date()
	loc := base.Location()
	totalMonths := int(m) - 1 + months
	targetYear := y + totalMonths/12
	targetMonth := time.Month(totalMonths%12 + 1)
	if totalMonths%12 < 0 {
		targetYear--
		targetMonth += 12
	}
	lastDay := lastDayOfMonth(targetYear, targetMonth)
	day := anchor
	if day > lastDay {
		day = lastDay
	}
	return time.Date(targetYear, targetMonth, day, base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), loc)
}

func lastDayOfMonth(year int, month time.Month) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.AddDate(0, 0, -1)
	return lastOfThis.Day()
}

// SubscriptionComponent is a per-subscription materialized copy of one
// plan-version price component: a committed-value snapshot so plan-version
// edits never retroactively change billed amounts, spec §3.
type SubscriptionComponent struct {
	ID                string           `db:"id" json:"id"`
	SubscriptionID    string           `db:"subscription_id" json:"subscription_id"`
	PriceComponentID  string           `db:"price_component_id" json:"price_component_id"`
	Name              string           `db:"name" json:"name"`
	// CommittedFeeJSON is the frozen price.Fee JSON snapshot taken at
	// subscription-create time.
	CommittedFeeJSON  []byte           `db:"committed_fee" json:"committed_fee"`
	OverrideQuantity  *decimal.Decimal `db:"override_quantity" json:"override_quantity,omitempty"`

	types.BaseModel
}

// SubscriptionAddOn is a per-subscription extra charge outside the plan's
// own price components, spec §3.
type SubscriptionAddOn struct {
	ID             string          `db:"id" json:"id"`
	SubscriptionID string          `db:"subscription_id" json:"subscription_id"`
	Name           string          `db:"name" json:"name"`
	CommittedFeeJSON []byte        `db:"committed_fee" json:"committed_fee"`

	types.BaseModel
}

// SlotTransaction records a slot-count delta for a SlotBased fee, the
// source of truth AdvanceSlots / the pricing evaluator read from (spec
// §4.1 "sourced from slot-transactions ledger").
type SlotTransaction struct {
	ID                 string    `db:"id" json:"id"`
	SubscriptionID     string    `db:"subscription_id" json:"subscription_id"`
	SubscriptionAddOnID *string  `db:"subscription_addon_id" json:"subscription_addon_id,omitempty"`
	Delta              int64     `db:"delta" json:"delta"`
	EffectiveAt        time.Time `db:"effective_at" json:"effective_at"`

	types.BaseModel
}

// Repository persists subscriptions and their owned line-item snapshots.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// GetForUpdate selects the row FOR UPDATE inside the caller's
	// transaction, serializing concurrent lifecycle transitions on the
	// same subscription the way invoicingentity.Repository.LockForFinalization
	// and ledger.Repository's balance lock do for their own rows.
	GetForUpdate(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	// ListDuePeriodBoundary returns Active/PendingCancellation
	// subscriptions whose current_period_end has passed, for the
	// scheduler's period-advancement task (spec §4.2 row 5).
	ListDuePeriodBoundary(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)
	// ListDueTrialExpiry returns TrialActive subscriptions whose trial
	// has ended, for the scheduler's trial-expiry task.
	ListDueTrialExpiry(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)
	// ListDueActivation returns PendingActivation subscriptions whose
	// billing_start_date has been reached.
	ListDueActivation(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)

	ListComponents(ctx context.Context, subscriptionID string) ([]*SubscriptionComponent, error)
	CreateComponent(ctx context.Context, c *SubscriptionComponent) error
	ListAddOns(ctx context.Context, subscriptionID string) ([]*SubscriptionAddOn, error)
	CreateAddOn(ctx context.Context, a *SubscriptionAddOn) error

	AppendSlotTransaction(ctx context.Context, t *SlotTransaction) error
	// CurrentSlotCount sums slot transactions effective at or before
	// asOf, floored at the component's configured MinSlots by the
	// caller.
	CurrentSlotCount(ctx context.Context, subscriptionID string, asOf time.Time) (int64, error)
	// ListSlotTransactions returns transactions effective within
	// [from, to], ordered by EffectiveAt, the per-segment proration
	// input the pricing evaluator's SlotEvents feed from (spec §4.1
	// "sourced from slot-transactions ledger").
	ListSlotTransactions(ctx context.Context, subscriptionID string, from, to time.Time) ([]*SlotTransaction, error)
}
