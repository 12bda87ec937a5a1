package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/coupon"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type CouponRepository struct {
	db *postgres.DB
}

func NewCouponRepository(db *postgres.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

const couponColumns = `id, code, name, discount_kind, percentage_off, fixed_amount, fixed_currency,
	applies_once, recurring_value, expires_at, redemption_limit, redeemed_count, reusable, archived,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		c.ID, c.Code, c.Name, c.DiscountKind, c.PercentageOff, c.FixedAmount, c.FixedCurrency,
		c.AppliesOnce, c.RecurringValue, c.ExpiresAt, c.RedemptionLimit, c.RedeemedCount, c.Reusable, c.Archived,
		types.GetTenantID(ctx), c.Status, c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting coupon").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&c); err != nil {
		return nil, mapNotFound(err, "coupon")
	}
	return &c, nil
}

func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, code, types.GetTenantID(ctx)).StructScan(&c); err != nil {
		return nil, mapNotFound(err, "coupon")
	}
	return &c, nil
}

func (r *CouponRepository) IncrementRedeemedCount(ctx context.Context, id string) error {
	query := `UPDATE coupons SET redeemed_count = redeemed_count + 1, updated_at = now() WHERE id = $1 AND tenant_id = $2`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query, id, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("incrementing coupon redemption count").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("coupon %s not found", id).Mark(ierr.ErrNotFound)
	}
	return nil
}

const appliedCouponColumns = `id, coupon_id, subscription_id, customer_id, is_active, applied_amount,
	applied_count, last_applied_at, tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *CouponRepository) Apply(ctx context.Context, a *coupon.AppliedCoupon) error {
	query := `
		INSERT INTO applied_coupons (` + appliedCouponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		a.ID, a.CouponID, a.SubscriptionID, a.CustomerID, a.IsActive, a.AppliedAmount,
		a.AppliedCount, a.LastAppliedAt, types.GetTenantID(ctx), a.Status, a.CreatedAt, a.UpdatedAt, a.CreatedBy, a.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("applying coupon").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *CouponRepository) ListActiveForSubscription(ctx context.Context, subscriptionID string) ([]*coupon.AppliedCoupon, error) {
	query := `SELECT ` + appliedCouponColumns + ` FROM applied_coupons WHERE subscription_id = $1 AND is_active = true AND tenant_id = $2`
	var rows []coupon.AppliedCoupon
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, subscriptionID, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing applied coupons").Mark(ierr.ErrSystem)
	}
	out := make([]*coupon.AppliedCoupon, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (r *CouponRepository) RecordApplication(ctx context.Context, a *coupon.AppliedCoupon) error {
	query := `
		UPDATE applied_coupons SET
			is_active = $1, applied_amount = $2, applied_count = $3, last_applied_at = $4, updated_at = now()
		WHERE id = $5 AND tenant_id = $6`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query,
		a.IsActive, a.AppliedAmount, a.AppliedCount, a.LastAppliedAt, a.ID, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("recording coupon application").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("applied coupon %s not found", a.ID).Mark(ierr.ErrNotFound)
	}
	return nil
}
