// Package customer models the billable party within a tenant, spec §3.
package customer

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// Customer carries the invariant balance_cents >= 0 (enforced by the
// ledger package, never mutated directly here — see internal/domain/ledger).
type Customer struct {
	ID                string  `db:"id" json:"id"`
	Alias             *string `db:"alias" json:"alias,omitempty"`
	Name              string  `db:"name" json:"name"`
	BillingAddress    *string `db:"billing_address" json:"billing_address,omitempty"`
	ShippingAddress   *string `db:"shipping_address" json:"shipping_address,omitempty"`
	Currency          string  `db:"currency" json:"currency"`
	InvoicingEntityID string  `db:"invoicing_entity_id" json:"invoicing_entity_id"`
	BalanceCents      int64   `db:"balance_cents" json:"balance_cents"`
	BankAccountID     *string `db:"bank_account_id" json:"bank_account_id,omitempty"`
	VATNumber         *string `db:"vat_number" json:"vat_number,omitempty"`
	CustomVATRate     *string `db:"custom_vat_rate" json:"custom_vat_rate,omitempty"`
	Timezone          string  `db:"timezone" json:"timezone"`

	// DefaultPaymentMethodID, when set and ChargeAutomatically is true, triggers a
	// PaymentRequest on invoice finalization (spec §4.3 "Payment trigger").
	DefaultPaymentMethodID *string `db:"default_payment_method_id" json:"default_payment_method_id,omitempty"`
	ChargeAutomatically    bool    `db:"charge_automatically" json:"charge_automatically"`

	types.BaseModel
}

// Repository persists customers, scoped per-tenant by every method.
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	Get(ctx context.Context, id string) (*Customer, error)
	GetByAlias(ctx context.Context, alias string) (*Customer, error)
	Update(ctx context.Context, c *Customer) error
}
