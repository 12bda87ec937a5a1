// Package coupon models discounts applied to a subscription's invoices,
// spec §4.4. Grounded on
// vidinfra-flexprice/internal/domain/coupon/model.go's IsValid/ApplyDiscount
// pair, generalized to track the recurring-value depletion and
// applied-cycle-count spec §4.4 requires for the "applies to the first N
// invoices" case.
package coupon

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// Coupon is the reusable discount definition.
type Coupon struct {
	ID             string             `db:"id" json:"id"`
	Code           string             `db:"code" json:"code"`
	Name           string             `db:"name" json:"name"`
	DiscountKind   types.DiscountKind `db:"discount_kind" json:"discount_kind"`
	PercentageOff  *decimal.Decimal   `db:"percentage_off" json:"percentage_off,omitempty"`
	FixedAmount    *decimal.Decimal   `db:"fixed_amount" json:"fixed_amount,omitempty"`
	FixedCurrency  *string            `db:"fixed_currency" json:"fixed_currency,omitempty"`
	// AppliesOnce marks a Fixed coupon that is spent down across invoices
	// until its FixedAmount is exhausted, rather than reapplied in full
	// each cycle.
	AppliesOnce bool `db:"applies_once" json:"applies_once"`
	// RecurringValue caps the number of invoices a coupon discounts; nil
	// means it applies for the life of the subscription.
	RecurringValue  *int32     `db:"recurring_value" json:"recurring_value,omitempty"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RedemptionLimit *int32     `db:"redemption_limit" json:"redemption_limit,omitempty"`
	RedeemedCount   int32      `db:"redeemed_count" json:"redeemed_count"`
	Reusable        bool       `db:"reusable" json:"reusable"`
	Archived        bool       `db:"archived" json:"archived"`

	types.BaseModel
}

// IsRedeemable reports whether the coupon can still be attached to a new
// subscription at instant now.
func (c *Coupon) IsRedeemable(now time.Time) bool {
	if c.Archived {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.RedemptionLimit != nil && c.RedeemedCount >= *c.RedemptionLimit {
		return false
	}
	return true
}

// AppliedCoupon is a coupon attached to one subscription, spec §3.
type AppliedCoupon struct {
	ID             string           `db:"id" json:"id"`
	CouponID       string           `db:"coupon_id" json:"coupon_id"`
	SubscriptionID string           `db:"subscription_id" json:"subscription_id"`
	CustomerID     string           `db:"customer_id" json:"customer_id"`
	IsActive       bool             `db:"is_active" json:"is_active"`
	AppliedAmount  *decimal.Decimal `db:"applied_amount" json:"applied_amount,omitempty"`
	AppliedCount   int32            `db:"applied_count" json:"applied_count"`
	LastAppliedAt  *time.Time       `db:"last_applied_at" json:"last_applied_at,omitempty"`

	types.BaseModel
}

// IsEligible implements the spec §4.4 eligibility predicate for one
// invoice build: active, unexpired as of invoiceDate, under its
// recurring-value cap, and — for an applies-once Fixed coupon — not yet
// fully consumed.
func (a *AppliedCoupon) IsEligible(c *Coupon, invoiceDate time.Time) bool {
	if !a.IsActive {
		return false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(invoiceDate) {
		return false
	}
	if c.RecurringValue != nil && a.AppliedCount >= *c.RecurringValue {
		return false
	}
	if c.DiscountKind == types.DiscountFixed && c.AppliesOnce && c.FixedAmount != nil {
		if a.AppliedAmount != nil && a.AppliedAmount.GreaterThanOrEqual(*c.FixedAmount) {
			return false
		}
	}
	return true
}

// DiscountResult is the amount removed from a pre-discount invoice total,
// in invoice currency.
type DiscountResult struct {
	AmountOff decimal.Decimal
}

// ApplyDiscount computes the discount for a single invoice's remaining
// taxable subtotal. remainingFixed is the Fixed coupon's amount still
// owed in invoice currency after any FX conversion (spec §4.4 "converted
// via the nearest historical FX row"); callers pass subtotal unchanged
// for a Percentage coupon.
func ApplyDiscount(c *Coupon, subtotal decimal.Decimal, remainingFixed decimal.Decimal) DiscountResult {
	switch c.DiscountKind {
	case types.DiscountPercentage:
		if c.PercentageOff == nil {
			return DiscountResult{AmountOff: decimal.Zero}
		}
		amount := subtotal.Mul(*c.PercentageOff).Div(decimal.NewFromInt(100))
		return DiscountResult{AmountOff: types.ClampNonNegative(amount)}
	case types.DiscountFixed:
		amount := remainingFixed
		if amount.GreaterThan(subtotal) {
			amount = subtotal
		}
		return DiscountResult{AmountOff: types.ClampNonNegative(amount)}
	default:
		return DiscountResult{AmountOff: decimal.Zero}
	}
}

// Repository persists coupons and their per-subscription applications.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	IncrementRedeemedCount(ctx context.Context, id string) error

	Apply(ctx context.Context, a *AppliedCoupon) error
	ListActiveForSubscription(ctx context.Context, subscriptionID string) ([]*AppliedCoupon, error)
	// RecordApplication persists the post-invoice applied_amount,
	// applied_count, last_applied_at, deactivating a now-exhausted coupon,
	// inside the same transaction as invoice finalization.
	RecordApplication(ctx context.Context, a *AppliedCoupon) error
}
