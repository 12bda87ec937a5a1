package postgres

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type CustomerRepository struct {
	db *postgres.DB
}

func NewCustomerRepository(db *postgres.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id, alias, name, billing_address, shipping_address, currency, invoicing_entity_id,
	balance_cents, bank_account_id, vat_number, custom_vat_rate, timezone, default_payment_method_id,
	charge_automatically, tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		c.ID, c.Alias, c.Name, c.BillingAddress, c.ShippingAddress, c.Currency, c.InvoicingEntityID,
		c.BalanceCents, c.BankAccountID, c.VATNumber, c.CustomVATRate, c.Timezone, c.DefaultPaymentMethodID,
		c.ChargeAutomatically, types.GetTenantID(ctx), c.Status, c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting customer").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&c); err != nil {
		return nil, mapNotFound(err, "customer")
	}
	return &c, nil
}

func (r *CustomerRepository) GetByAlias(ctx context.Context, alias string) (*customer.Customer, error) {
	var c customer.Customer
	query := `SELECT ` + customerColumns + ` FROM customers WHERE alias = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, alias, types.GetTenantID(ctx)).StructScan(&c); err != nil {
		return nil, mapNotFound(err, "customer")
	}
	return &c, nil
}

func (r *CustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	query := `
		UPDATE customers SET
			alias = $1, name = $2, billing_address = $3, shipping_address = $4, currency = $5,
			invoicing_entity_id = $6, balance_cents = $7, bank_account_id = $8, vat_number = $9,
			custom_vat_rate = $10, timezone = $11, default_payment_method_id = $12,
			charge_automatically = $13, updated_at = now()
		WHERE id = $14 AND tenant_id = $15`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query,
		c.Alias, c.Name, c.BillingAddress, c.ShippingAddress, c.Currency, c.InvoicingEntityID,
		c.BalanceCents, c.BankAccountID, c.VATNumber, c.CustomVATRate, c.Timezone, c.DefaultPaymentMethodID,
		c.ChargeAutomatically, c.ID, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("updating customer").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("customer %s not found", c.ID).Mark(ierr.ErrNotFound)
	}
	return nil
}
