package postgres

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type PlanRepository struct {
	db *postgres.DB
}

func NewPlanRepository(db *postgres.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, product_family_id, code, name, description, plan_status,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *PlanRepository) CreatePlan(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		p.ID, p.ProductFamilyID, p.Code, p.Name, p.Description, p.PlanStatus,
		types.GetTenantID(ctx), p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting plan").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *PlanRepository) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&p); err != nil {
		return nil, mapNotFound(err, "plan")
	}
	return &p, nil
}

func (r *PlanRepository) GetPlanByCode(ctx context.Context, code string) (*plan.Plan, error) {
	var p plan.Plan
	query := `SELECT ` + planColumns + ` FROM plans WHERE code = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, code, types.GetTenantID(ctx)).StructScan(&p); err != nil {
		return nil, mapNotFound(err, "plan")
	}
	return &p, nil
}

const planVersionColumns = `id, plan_id, version, currency, billing_period, billing_type,
	trial_duration_days, net_terms_days, is_draft, published_at,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *PlanRepository) CreateVersion(ctx context.Context, v *plan.PlanVersion) error {
	query := `
		INSERT INTO plan_versions (` + planVersionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		v.ID, v.PlanID, v.Version, v.Currency, v.BillingPeriod, v.BillingType,
		v.TrialDurationDays, v.NetTermsDays, v.IsDraft, v.PublishedAt,
		types.GetTenantID(ctx), v.Status, v.CreatedAt, v.UpdatedAt, v.CreatedBy, v.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting plan version").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *PlanRepository) GetVersion(ctx context.Context, id string) (*plan.PlanVersion, error) {
	var v plan.PlanVersion
	query := `SELECT ` + planVersionColumns + ` FROM plan_versions WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&v); err != nil {
		return nil, mapNotFound(err, "plan version")
	}
	return &v, nil
}

func (r *PlanRepository) LatestPublishedVersion(ctx context.Context, planID string) (*plan.PlanVersion, error) {
	var v plan.PlanVersion
	query := `
		SELECT ` + planVersionColumns + ` FROM plan_versions
		WHERE plan_id = $1 AND tenant_id = $2 AND is_draft = false
		ORDER BY version DESC LIMIT 1`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, planID, types.GetTenantID(ctx)).StructScan(&v); err != nil {
		return nil, mapNotFound(err, "published plan version")
	}
	return &v, nil
}
