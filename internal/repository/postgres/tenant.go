package postgres

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/tenant"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/lib/pq"
)

type TenantRepository struct {
	db *postgres.DB
}

func NewTenantRepository(db *postgres.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	query := `
		INSERT INTO tenants (id, organization_id, slug, reporting_currency, available_currencies, environment, status, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		t.ID, t.OrganizationID, t.Slug, t.ReportingCurrency, pq.Array(t.AvailableCurrencies), t.Environment,
		t.Status, t.CreatedAt, t.UpdatedAt, t.CreatedBy, t.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting tenant").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *TenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var row tenantRow
	query := `SELECT id, organization_id, slug, reporting_currency, available_currencies, environment, status, created_at, updated_at, created_by, updated_by FROM tenants WHERE id = $1`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		return nil, mapNotFound(err, "tenant")
	}
	return row.toDomain(), nil
}

func (r *TenantRepository) GetBySlug(ctx context.Context, organizationID, slug string) (*tenant.Tenant, error) {
	var row tenantRow
	query := `SELECT id, organization_id, slug, reporting_currency, available_currencies, environment, status, created_at, updated_at, created_by, updated_by FROM tenants WHERE organization_id = $1 AND slug = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, organizationID, slug).StructScan(&row); err != nil {
		return nil, mapNotFound(err, "tenant")
	}
	return row.toDomain(), nil
}

func (r *TenantRepository) Archive(ctx context.Context, id string) error {
	query := `UPDATE tenants SET status = $1, updated_at = now() WHERE id = $2`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query, types.StatusArchived, id)
	if err != nil {
		return ierr.WithError(err).WithMessage("archiving tenant").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("tenant %s not found", id).Mark(ierr.ErrNotFound)
	}
	return nil
}

// tenantRow mirrors tenant.Tenant with pq.Array-compatible scanning for the
// available_currencies text[] column.
type tenantRow struct {
	ID                  string         `db:"id"`
	OrganizationID      string         `db:"organization_id"`
	Slug                string         `db:"slug"`
	ReportingCurrency   string         `db:"reporting_currency"`
	AvailableCurrencies pq.StringArray `db:"available_currencies"`
	Environment         string         `db:"environment"`
	types.BaseModel
}

func (row *tenantRow) toDomain() *tenant.Tenant {
	return &tenant.Tenant{
		ID:                  row.ID,
		OrganizationID:      row.OrganizationID,
		Slug:                row.Slug,
		ReportingCurrency:   row.ReportingCurrency,
		AvailableCurrencies: []string(row.AvailableCurrencies),
		Environment:         tenant.Environment(row.Environment),
		BaseModel:           row.BaseModel,
	}
}
