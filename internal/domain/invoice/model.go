// Package invoice models a customer bill and its frozen-at-finalization
// line items, spec §3/§4.3. Grounded on
// vidinfra-flexprice/internal/repository/postgres/wallet.go's
// FOR-UPDATE-then-mutate pattern, which the finalization flow in
// internal/invoicesvc reuses for the invoicing-entity row lock.
package invoice

import (
	"time"

	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// LineItem is one priced line on an invoice, spec §3.
type LineItem struct {
	LocalID         string     `json:"local_id"`
	Name            string     `json:"name"`
	AmountSubtotal  int64      `json:"amount_subtotal"`
	TaxRate         *string    `json:"tax_rate,omitempty"`
	TaxableAmount   int64      `json:"taxable_amount"`
	TaxAmount       int64      `json:"tax_amount"`
	AmountTotal     int64      `json:"amount_total"`
	Quantity        *string    `json:"quantity,omitempty"`
	UnitPrice       *string    `json:"unit_price,omitempty"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	SubLines        []LineItem `json:"sub_lines,omitempty"`
	IsProrated      bool       `json:"is_prorated"`
	Description     *string    `json:"description,omitempty"`
}

// Invoice is a customer bill, spec §3.
type Invoice struct {
	ID                string              `db:"id" json:"id"`
	CustomerID        string              `db:"customer_id" json:"customer_id"`
	SubscriptionID    *string             `db:"subscription_id" json:"subscription_id,omitempty"`
	InvoicingEntityID string              `db:"invoicing_entity_id" json:"invoicing_entity_id"`
	Status            types.InvoiceStatus `db:"status" json:"status"`
	InvoiceNumber     *string             `db:"invoice_number" json:"invoice_number,omitempty"`
	InvoiceDate       time.Time           `db:"invoice_date" json:"invoice_date"`
	DueDate           *time.Time          `db:"due_date" json:"due_date,omitempty"`
	Currency          string              `db:"currency" json:"currency"`

	LineItems          []LineItem `db:"line_items" json:"line_items"`
	AppliedCreditsCents int64     `db:"applied_credits_cents" json:"applied_credits_cents"`
	TaxAmountCents      int64     `db:"tax_amount_cents" json:"tax_amount_cents"`
	SubtotalCents       int64     `db:"subtotal_cents" json:"subtotal_cents"`
	TotalCents          int64     `db:"total_cents" json:"total_cents"`

	Issued         bool       `db:"issued" json:"issued"`
	IssueAttempts  int        `db:"issue_attempts" json:"issue_attempts"`
	LastIssueError *string    `db:"last_issue_error" json:"last_issue_error,omitempty"`
	PDFDocumentID  *string    `db:"pdf_document_id" json:"pdf_document_id,omitempty"`
	DataUpdatedAt  *time.Time `db:"data_updated_at" json:"data_updated_at,omitempty"`

	types.BaseModel
}

// Balances reports whether the stored totals satisfy the invariant
// subtotal - applied_credits + tax = total, spec §3.
func (inv *Invoice) Balances() bool {
	return inv.SubtotalCents-inv.AppliedCreditsCents+inv.TaxAmountCents == inv.TotalCents
}

// Repository persists invoices and the invoice-number finalization step.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	// ListDraftsPastGracePeriod returns Draft invoices whose invoice_date
	// plus the invoicing entity's grace_period_hours has elapsed, for the
	// scheduler's Draft->Pending transition task.
	ListDraftsPastGracePeriod(ctx context.Context, asOf time.Time, limit int) ([]*Invoice, error)
	// ListPendingForFinalization returns Pending invoices ready to
	// finalize.
	ListPendingForFinalization(ctx context.Context, asOf time.Time, limit int) ([]*Invoice, error)
	// FinalizeIfDraftOrPending performs the guarded status transition
	// spec §4.3 relies on for exactly-once finalization: it only applies
	// when the row's current status is still Draft or Pending.
	FinalizeIfDraftOrPending(ctx context.Context, id string, number string, dataUpdatedAt time.Time) (bool, error)
	// ListFinalizedAwaitingPayment returns Finalized invoices with a
	// positive outstanding balance and issue_attempts below limit, for
	// the scheduler's payment-retry task (spec §4.6 "bounded retries with
	// exponential backoff" applied at the invoice-issuance level, not
	// just inside the PGMQ worker).
	ListFinalizedAwaitingPayment(ctx context.Context, maxAttempts, limit int) ([]*Invoice, error)
	// IncrementIssueAttempts records one more issuance attempt against an
	// invoice, storing the error message on failure so the scheduler and
	// operators can see why a payment retry hasn't converged.
	IncrementIssueAttempts(ctx context.Context, id string, errMsg *string) error
}
