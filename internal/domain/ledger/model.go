// Package ledger is the append-only customer balance ledger, spec §3
// "CustomerBalanceTx / PendingTx". Grounded directly on
// vidinfra-flexprice/internal/repository/postgres/wallet.go's
// processWalletOperation: lock the owning row with SELECT ... FOR UPDATE,
// compute the new balance, reject a debit that would go negative, then
// insert a ledger row carrying balance_before/balance_after. This package
// defines the domain types and the contract; the postgres implementation
// (internal/repository/postgres/ledger.go) carries out the FOR UPDATE
// transaction.
package ledger

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type TxKind string

const (
	TxKindCredit TxKind = "credit"
	TxKindDebit  TxKind = "debit"
)

// CustomerBalanceTx is one append-only entry in a customer's balance
// ledger. BalanceCentsAfter always equals the customer's balance
// immediately after this row was inserted — the invariant spec §3 names
// ("the latest row's balance_cents_after equals the customer's current
// balance").
type CustomerBalanceTx struct {
	ID                string  `db:"id" json:"id"`
	CustomerID        string  `db:"customer_id" json:"customer_id"`
	Kind              TxKind  `db:"kind" json:"kind"`
	AmountCents       int64   `db:"amount_cents" json:"amount_cents"`
	BalanceCentsBefore int64  `db:"balance_cents_before" json:"balance_cents_before"`
	BalanceCentsAfter  int64  `db:"balance_cents_after" json:"balance_cents_after"`
	// ReferenceInvoiceID links a debit to the invoice it paid down, when
	// applicable (spec §4.3 "apply pending customer-balance debits").
	ReferenceInvoiceID *string `db:"reference_invoice_id" json:"reference_invoice_id,omitempty"`

	types.BaseModel
}

// PendingTx is a balance mutation staged during draft-invoice computation
// but not yet committed — it becomes a CustomerBalanceTx only once the
// invoice finalizes (spec §4.3 step 4).
type PendingTx struct {
	ID          string `db:"id" json:"id"`
	CustomerID  string `db:"customer_id" json:"customer_id"`
	Kind        TxKind `db:"kind" json:"kind"`
	AmountCents int64  `db:"amount_cents" json:"amount_cents"`
	InvoiceID   string `db:"invoice_id" json:"invoice_id"`

	types.BaseModel
}

// Repository appends ledger rows under a row lock on the owning customer,
// enforcing balance_cents >= 0 for debits (spec §3 "NegativeCustomerBalanceError").
type Repository interface {
	// Credit increases the customer's balance and appends a
	// CustomerBalanceTx row, all under a FOR UPDATE lock on the customer
	// row, within the caller's transaction.
	Credit(ctx context.Context, customerID string, amountCents int64, refInvoiceID *string) (*CustomerBalanceTx, error)
	// Debit decreases the customer's balance, rejecting the operation
	// (without mutating anything) if it would drive the balance below
	// zero.
	Debit(ctx context.Context, customerID string, amountCents int64, refInvoiceID *string) (*CustomerBalanceTx, error)
	ListForCustomer(ctx context.Context, customerID string, limit int) ([]*CustomerBalanceTx, error)

	StagePending(ctx context.Context, p *PendingTx) error
	ListPendingForInvoice(ctx context.Context, invoiceID string) ([]*PendingTx, error)
	// CommitPending replays a staged PendingTx into a real
	// CustomerBalanceTx at finalization time and deletes the pending row,
	// within the same transaction as the rest of spec §4.3 step 4.
	CommitPending(ctx context.Context, p *PendingTx) (*CustomerBalanceTx, error)
}
