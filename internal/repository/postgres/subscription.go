package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type SubscriptionRepository struct {
	db *postgres.DB
}

func NewSubscriptionRepository(db *postgres.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, customer_id, plan_version_id, trialing_plan_id,
			billing_start_date, billing_day_anchor, net_terms_days, effective_billing_period, status,
			current_period_start, current_period_end, cycle_index, activated_at, canceled_at, cancellation_reason,
			commitment_amount, overage_factor, tenant_id, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		s.ID, s.CustomerID, s.PlanVersionID, s.TrialingPlanID,
		s.BillingStartDate, s.BillingDayAnchor, s.NetTermsDays, s.EffectivePeriod, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CycleIndex, s.ActivatedAt, s.CanceledAt, s.CancellationReason,
		s.CommitmentAmount, s.OverageFactor, types.GetTenantID(ctx), s.CreatedAt, s.UpdatedAt, s.CreatedBy, s.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting subscription").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var s subscription.Subscription
	query := `
		SELECT id, customer_id, plan_version_id, trialing_plan_id,
			billing_start_date, billing_day_anchor, net_terms_days, effective_billing_period, status,
			current_period_start, current_period_end, cycle_index, activated_at, canceled_at, cancellation_reason,
			commitment_amount, overage_factor, tenant_id, created_at, updated_at, created_by, updated_by
		FROM subscriptions WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&s); err != nil {
		return nil, mapNotFound(err, "subscription")
	}
	return &s, nil
}

// GetForUpdate must run inside the caller's transaction: the row lock only
// holds for the lifetime of that transaction, per postgres.DB.WithTx.
func (r *SubscriptionRepository) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	var s subscription.Subscription
	query := `
		SELECT id, customer_id, plan_version_id, trialing_plan_id,
			billing_start_date, billing_day_anchor, net_terms_days, effective_billing_period, status,
			current_period_start, current_period_end, cycle_index, activated_at, canceled_at, cancellation_reason,
			commitment_amount, overage_factor, tenant_id, created_at, updated_at, created_by, updated_by
		FROM subscriptions WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&s); err != nil {
		return nil, mapNotFound(err, "subscription")
	}
	return &s, nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			trialing_plan_id = $1, status = $2, current_period_start = $3, current_period_end = $4,
			cycle_index = $5, activated_at = $6, canceled_at = $7, cancellation_reason = $8,
			commitment_amount = $9, overage_factor = $10, updated_at = now()
		WHERE id = $11 AND tenant_id = $12`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query,
		s.TrialingPlanID, s.Status, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.CycleIndex, s.ActivatedAt, s.CanceledAt, s.CancellationReason,
		s.CommitmentAmount, s.OverageFactor, s.ID, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("updating subscription").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("subscription %s not found", s.ID).Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *SubscriptionRepository) listScoped(ctx context.Context, query string, args ...any) ([]*subscription.Subscription, error) {
	var rows []subscription.Subscription
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, args...); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing subscriptions").Mark(ierr.ErrSystem)
	}
	out := make([]*subscription.Subscription, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

const subscriptionSelectColumns = `id, customer_id, plan_version_id, trialing_plan_id,
	billing_start_date, billing_day_anchor, net_terms_days, effective_billing_period, status,
	current_period_start, current_period_end, cycle_index, activated_at, canceled_at, cancellation_reason,
	commitment_amount, overage_factor, tenant_id, created_at, updated_at, created_by, updated_by`

func (r *SubscriptionRepository) ListDuePeriodBoundary(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionSelectColumns + ` FROM subscriptions
		WHERE status IN ($1, $2) AND current_period_end <= $3
		ORDER BY current_period_end LIMIT $4`
	return r.listScoped(ctx, query, types.SubscriptionStatusActive, types.SubscriptionStatusPendingCancellation, asOf, limit)
}

// ListDueTrialExpiry looks up plan_versions to resolve each trialing
// subscription's trial end (activated_at + trial_duration_days), since
// the subscription row itself stores no denormalized trial-end column.
func (r *SubscriptionRepository) ListDueTrialExpiry(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionSelectColumns + ` FROM subscriptions s
		WHERE s.status = $1 AND s.activated_at IS NOT NULL
			AND EXISTS (
				SELECT 1 FROM plan_versions pv
				WHERE pv.id = COALESCE(s.trialing_plan_id, s.plan_version_id)
					AND pv.trial_duration_days IS NOT NULL
					AND s.activated_at + (pv.trial_duration_days || ' days')::interval <= $2)
		ORDER BY s.activated_at LIMIT $3`
	return r.listScoped(ctx, query, types.SubscriptionStatusTrialActive, asOf, limit)
}

func (r *SubscriptionRepository) ListDueActivation(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionSelectColumns + ` FROM subscriptions
		WHERE status = $1 AND billing_start_date <= $2
		ORDER BY billing_start_date LIMIT $3`
	return r.listScoped(ctx, query, types.SubscriptionStatusPendingActivation, asOf, limit)
}

const subscriptionComponentColumns = `id, subscription_id, price_component_id, name, committed_fee, override_quantity,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *SubscriptionRepository) ListComponents(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionComponent, error) {
	query := `SELECT ` + subscriptionComponentColumns + ` FROM subscription_components WHERE subscription_id = $1 AND tenant_id = $2`
	var rows []subscription.SubscriptionComponent
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, subscriptionID, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing subscription components").Mark(ierr.ErrSystem)
	}
	out := make([]*subscription.SubscriptionComponent, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (r *SubscriptionRepository) CreateComponent(ctx context.Context, c *subscription.SubscriptionComponent) error {
	query := `
		INSERT INTO subscription_components (` + subscriptionComponentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		c.ID, c.SubscriptionID, c.PriceComponentID, c.Name, c.CommittedFeeJSON, c.OverrideQuantity,
		types.GetTenantID(ctx), c.Status, c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting subscription component").Mark(ierr.ErrSystem)
	}
	return nil
}

const subscriptionAddOnColumns = `id, subscription_id, name, committed_fee,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *SubscriptionRepository) ListAddOns(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionAddOn, error) {
	query := `SELECT ` + subscriptionAddOnColumns + ` FROM subscription_addons WHERE subscription_id = $1 AND tenant_id = $2`
	var rows []subscription.SubscriptionAddOn
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, subscriptionID, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing subscription add-ons").Mark(ierr.ErrSystem)
	}
	out := make([]*subscription.SubscriptionAddOn, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (r *SubscriptionRepository) CreateAddOn(ctx context.Context, a *subscription.SubscriptionAddOn) error {
	query := `
		INSERT INTO subscription_addons (` + subscriptionAddOnColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		a.ID, a.SubscriptionID, a.Name, a.CommittedFeeJSON,
		types.GetTenantID(ctx), a.Status, a.CreatedAt, a.UpdatedAt, a.CreatedBy, a.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting subscription add-on").Mark(ierr.ErrSystem)
	}
	return nil
}

const slotTransactionColumns = `id, subscription_id, subscription_addon_id, delta, effective_at,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *SubscriptionRepository) AppendSlotTransaction(ctx context.Context, t *subscription.SlotTransaction) error {
	query := `
		INSERT INTO slot_transactions (` + slotTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		t.ID, t.SubscriptionID, t.SubscriptionAddOnID, t.Delta, t.EffectiveAt,
		types.GetTenantID(ctx), t.Status, t.CreatedAt, t.UpdatedAt, t.CreatedBy, t.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("appending slot transaction").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *SubscriptionRepository) CurrentSlotCount(ctx context.Context, subscriptionID string, asOf time.Time) (int64, error) {
	var total *int64
	query := `SELECT SUM(delta) FROM slot_transactions WHERE subscription_id = $1 AND effective_at <= $2 AND tenant_id = $3`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, subscriptionID, asOf, types.GetTenantID(ctx)).Scan(&total); err != nil {
		return 0, ierr.WithError(err).WithMessage("summing slot transactions").Mark(ierr.ErrSystem)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *SubscriptionRepository) ListSlotTransactions(ctx context.Context, subscriptionID string, from, to time.Time) ([]*subscription.SlotTransaction, error) {
	query := `
		SELECT ` + slotTransactionColumns + ` FROM slot_transactions
		WHERE subscription_id = $1 AND effective_at >= $2 AND effective_at <= $3 AND tenant_id = $4
		ORDER BY effective_at`
	var rows []subscription.SlotTransaction
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, subscriptionID, from, to, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing slot transactions").Mark(ierr.ErrSystem)
	}
	out := make([]*subscription.SlotTransaction, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}
