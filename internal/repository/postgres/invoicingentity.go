package postgres

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoicingentity"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type InvoicingEntityRepository struct {
	db *postgres.DB
}

func NewInvoicingEntityRepository(db *postgres.DB) *InvoicingEntityRepository {
	return &InvoicingEntityRepository{db: db}
}

const invoicingEntityColumns = `id, name, address, currency, footer, number_pattern, next_invoice_number,
	grace_period_hours, net_terms_days, tenant_id, created_at, updated_at, created_by, updated_by`

func (r *InvoicingEntityRepository) Get(ctx context.Context, id string) (*invoicingentity.InvoicingEntity, error) {
	var e invoicingentity.InvoicingEntity
	query := `SELECT ` + invoicingEntityColumns + ` FROM invoicing_entities WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&e); err != nil {
		return nil, mapNotFound(err, "invoicing entity")
	}
	return &e, nil
}

// LockForFinalization must run inside the caller's transaction: the
// invoicing-entity row lock and the number reservation below both rely on
// r.db.Exec(ctx) resolving to that same open tx, per postgres.DB.WithTx.
func (r *InvoicingEntityRepository) LockForFinalization(ctx context.Context, id string) (*invoicingentity.InvoicingEntity, error) {
	var e invoicingentity.InvoicingEntity
	query := `SELECT ` + invoicingEntityColumns + ` FROM invoicing_entities WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&e); err != nil {
		return nil, mapNotFound(err, "invoicing entity")
	}
	return &e, nil
}

func (r *InvoicingEntityRepository) ReserveNextNumber(ctx context.Context, id string) (int64, error) {
	var reserved int64
	query := `
		UPDATE invoicing_entities SET next_invoice_number = next_invoice_number + 1, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING next_invoice_number - 1`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).Scan(&reserved); err != nil {
		return 0, mapNotFound(err, "invoicing entity")
	}
	return reserved, nil
}
