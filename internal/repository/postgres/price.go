package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type PriceComponentRepository struct {
	db *postgres.DB
}

func NewPriceComponentRepository(db *postgres.DB) *PriceComponentRepository {
	return &PriceComponentRepository{db: db}
}

type priceComponentRow struct {
	ID            string `db:"id"`
	PlanVersionID string `db:"plan_version_id"`
	Name          string `db:"name"`
	Currency      string `db:"currency"`
	BillingPeriod string `db:"billing_period"`
	Fee           jsonCol[price.Fee] `db:"fee"`
	types.BaseModel
}

func (row *priceComponentRow) toDomain() *price.PriceComponent {
	return &price.PriceComponent{
		ID:            row.ID,
		PlanVersionID: row.PlanVersionID,
		Name:          row.Name,
		Currency:      row.Currency,
		BillingPeriod: types.BillingPeriod(row.BillingPeriod),
		Fee:           row.Fee.Val,
		BaseModel:     row.BaseModel,
	}
}

const priceComponentColumns = `id, plan_version_id, name, currency, billing_period, fee,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *PriceComponentRepository) Create(ctx context.Context, p *price.PriceComponent) error {
	query := `
		INSERT INTO price_components (` + priceComponentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		p.ID, p.PlanVersionID, p.Name, p.Currency, p.BillingPeriod, jsonCol[price.Fee]{Val: p.Fee},
		types.GetTenantID(ctx), p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting price component").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *PriceComponentRepository) ListByPlanVersion(ctx context.Context, planVersionID string) ([]*price.PriceComponent, error) {
	query := `SELECT ` + priceComponentColumns + ` FROM price_components WHERE plan_version_id = $1 AND tenant_id = $2 ORDER BY created_at`
	var rows []priceComponentRow
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, planVersionID, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing price components").Mark(ierr.ErrSystem)
	}
	out := make([]*price.PriceComponent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
