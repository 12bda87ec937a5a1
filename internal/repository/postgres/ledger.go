package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/ledger"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type LedgerRepository struct {
	db *postgres.DB
}

func NewLedgerRepository(db *postgres.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// lockCustomerBalance selects a customer's balance_cents FOR UPDATE,
// grounded on vidinfra-flexprice/internal/repository/postgres/wallet.go's
// processWalletOperation: lock the owning row, compute the new balance,
// reject a debit that would go negative, all within the caller's
// transaction. Callers of Credit/Debit are expected to already be inside
// a postgres.DB.WithTx block; the FOR UPDATE lock only holds for the
// life of that transaction.
func (r *LedgerRepository) lockCustomerBalance(ctx context.Context, customerID string) (int64, error) {
	var balance int64
	query := `SELECT balance_cents FROM customers WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, customerID, types.GetTenantID(ctx)).Scan(&balance); err != nil {
		return 0, mapNotFound(err, "customer")
	}
	return balance, nil
}

func (r *LedgerRepository) writeBalance(ctx context.Context, customerID string, newBalance int64) error {
	_, err := r.db.Exec(ctx).ExecContext(ctx, `UPDATE customers SET balance_cents = $1, updated_at = now() WHERE id = $2 AND tenant_id = $3`,
		newBalance, customerID, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("writing customer balance").Mark(ierr.ErrSystem)
	}
	return nil
}

const balanceTxColumns = `id, customer_id, kind, amount_cents, balance_cents_before, balance_cents_after,
	reference_invoice_id, tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *LedgerRepository) insertTx(ctx context.Context, tx *ledger.CustomerBalanceTx) error {
	query := `
		INSERT INTO customer_balance_txs (` + balanceTxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		tx.ID, tx.CustomerID, tx.Kind, tx.AmountCents, tx.BalanceCentsBefore, tx.BalanceCentsAfter,
		tx.ReferenceInvoiceID, types.GetTenantID(ctx), tx.Status, tx.CreatedAt, tx.UpdatedAt, tx.CreatedBy, tx.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting ledger row").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *LedgerRepository) Credit(ctx context.Context, customerID string, amountCents int64, refInvoiceID *string) (*ledger.CustomerBalanceTx, error) {
	before, err := r.lockCustomerBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	after := before + amountCents
	if err := r.writeBalance(ctx, customerID, after); err != nil {
		return nil, err
	}
	row := &ledger.CustomerBalanceTx{
		ID: types.NewID(), CustomerID: customerID, Kind: ledger.TxKindCredit, AmountCents: amountCents,
		BalanceCentsBefore: before, BalanceCentsAfter: after, ReferenceInvoiceID: refInvoiceID,
	}
	row.TenantID = types.GetTenantID(ctx)
	row.Status = types.StatusPublished
	if err := r.insertTx(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *LedgerRepository) Debit(ctx context.Context, customerID string, amountCents int64, refInvoiceID *string) (*ledger.CustomerBalanceTx, error) {
	before, err := r.lockCustomerBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	after := before - amountCents
	if after < 0 {
		return nil, ierr.NewErrorf("debit of %d would drive customer %s balance negative (currently %d)", amountCents, customerID, before).
			Mark(ierr.ErrInsufficientFunds)
	}
	if err := r.writeBalance(ctx, customerID, after); err != nil {
		return nil, err
	}
	row := &ledger.CustomerBalanceTx{
		ID: types.NewID(), CustomerID: customerID, Kind: ledger.TxKindDebit, AmountCents: amountCents,
		BalanceCentsBefore: before, BalanceCentsAfter: after, ReferenceInvoiceID: refInvoiceID,
	}
	row.TenantID = types.GetTenantID(ctx)
	row.Status = types.StatusPublished
	if err := r.insertTx(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *LedgerRepository) ListForCustomer(ctx context.Context, customerID string, limit int) ([]*ledger.CustomerBalanceTx, error) {
	query := `SELECT ` + balanceTxColumns + ` FROM customer_balance_txs WHERE customer_id = $1 AND tenant_id = $2 ORDER BY created_at DESC LIMIT $3`
	var rows []ledger.CustomerBalanceTx
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, customerID, types.GetTenantID(ctx), limit); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing customer ledger").Mark(ierr.ErrSystem)
	}
	out := make([]*ledger.CustomerBalanceTx, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

const pendingTxColumns = `id, customer_id, kind, amount_cents, invoice_id,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *LedgerRepository) StagePending(ctx context.Context, p *ledger.PendingTx) error {
	query := `
		INSERT INTO pending_txs (` + pendingTxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		p.ID, p.CustomerID, p.Kind, p.AmountCents, p.InvoiceID,
		types.GetTenantID(ctx), p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("staging pending ledger tx").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *LedgerRepository) ListPendingForInvoice(ctx context.Context, invoiceID string) ([]*ledger.PendingTx, error) {
	query := `SELECT ` + pendingTxColumns + ` FROM pending_txs WHERE invoice_id = $1 AND tenant_id = $2`
	var rows []ledger.PendingTx
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, invoiceID, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing pending ledger txs").Mark(ierr.ErrSystem)
	}
	out := make([]*ledger.PendingTx, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (r *LedgerRepository) CommitPending(ctx context.Context, p *ledger.PendingTx) (*ledger.CustomerBalanceTx, error) {
	var committed *ledger.CustomerBalanceTx
	var err error
	switch p.Kind {
	case ledger.TxKindCredit:
		committed, err = r.Credit(ctx, p.CustomerID, p.AmountCents, &p.InvoiceID)
	default:
		committed, err = r.Debit(ctx, p.CustomerID, p.AmountCents, &p.InvoiceID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := r.db.Exec(ctx).ExecContext(ctx, `DELETE FROM pending_txs WHERE id = $1 AND tenant_id = $2`, p.ID, types.GetTenantID(ctx)); err != nil {
		return nil, ierr.WithError(err).WithMessage("deleting committed pending tx").Mark(ierr.ErrSystem)
	}
	return committed, nil
}
