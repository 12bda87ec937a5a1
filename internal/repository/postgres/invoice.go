package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type InvoiceRepository struct {
	db *postgres.DB
}

func NewInvoiceRepository(db *postgres.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// invoiceRow carries the line_items jsonb column through jsonCol, since
// []invoice.LineItem has no Scanner/Valuer of its own.
type invoiceRow struct {
	ID                  string                       `db:"id"`
	CustomerID          string                       `db:"customer_id"`
	SubscriptionID      *string                      `db:"subscription_id"`
	InvoicingEntityID   string                       `db:"invoicing_entity_id"`
	Status              string                       `db:"status"`
	InvoiceNumber       *string                      `db:"invoice_number"`
	InvoiceDate         time.Time                    `db:"invoice_date"`
	DueDate             *time.Time                   `db:"due_date"`
	Currency            string                       `db:"currency"`
	LineItems           jsonCol[[]invoice.LineItem]  `db:"line_items"`
	AppliedCreditsCents int64                        `db:"applied_credits_cents"`
	TaxAmountCents      int64                        `db:"tax_amount_cents"`
	SubtotalCents       int64                        `db:"subtotal_cents"`
	TotalCents          int64                        `db:"total_cents"`
	Issued              bool                         `db:"issued"`
	IssueAttempts       int                          `db:"issue_attempts"`
	LastIssueError      *string                      `db:"last_issue_error"`
	PDFDocumentID       *string                      `db:"pdf_document_id"`
	DataUpdatedAt       *time.Time                   `db:"data_updated_at"`
	types.BaseModel
}

func (row *invoiceRow) toDomain() *invoice.Invoice {
	return &invoice.Invoice{
		ID:                  row.ID,
		CustomerID:          row.CustomerID,
		SubscriptionID:      row.SubscriptionID,
		InvoicingEntityID:   row.InvoicingEntityID,
		Status:              types.InvoiceStatus(row.Status),
		InvoiceNumber:       row.InvoiceNumber,
		InvoiceDate:         row.InvoiceDate,
		DueDate:             row.DueDate,
		Currency:            row.Currency,
		LineItems:           row.LineItems.Val,
		AppliedCreditsCents: row.AppliedCreditsCents,
		TaxAmountCents:      row.TaxAmountCents,
		SubtotalCents:       row.SubtotalCents,
		TotalCents:          row.TotalCents,
		Issued:              row.Issued,
		IssueAttempts:       row.IssueAttempts,
		LastIssueError:      row.LastIssueError,
		PDFDocumentID:       row.PDFDocumentID,
		DataUpdatedAt:       row.DataUpdatedAt,
		BaseModel:           row.BaseModel,
	}
}

const invoiceColumns = `id, customer_id, subscription_id, invoicing_entity_id, status, invoice_number,
	invoice_date, due_date, currency, line_items, applied_credits_cents, tax_amount_cents, subtotal_cents,
	total_cents, issued, issue_attempts, last_issue_error, pdf_document_id, data_updated_at,
	tenant_id, created_at, updated_at, created_by, updated_by`

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		inv.ID, inv.CustomerID, inv.SubscriptionID, inv.InvoicingEntityID, inv.Status, inv.InvoiceNumber,
		inv.InvoiceDate, inv.DueDate, inv.Currency, jsonCol[[]invoice.LineItem]{Val: inv.LineItems},
		inv.AppliedCreditsCents, inv.TaxAmountCents, inv.SubtotalCents, inv.TotalCents,
		inv.Issued, inv.IssueAttempts, inv.LastIssueError, inv.PDFDocumentID, inv.DataUpdatedAt,
		types.GetTenantID(ctx), inv.CreatedAt, inv.UpdatedAt, inv.CreatedBy, inv.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting invoice").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	var row invoiceRow
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&row); err != nil {
		return nil, mapNotFound(err, "invoice")
	}
	return row.toDomain(), nil
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices SET
			status = $1, invoice_number = $2, due_date = $3, line_items = $4,
			applied_credits_cents = $5, tax_amount_cents = $6, subtotal_cents = $7, total_cents = $8,
			issued = $9, issue_attempts = $10, last_issue_error = $11, pdf_document_id = $12,
			data_updated_at = $13, updated_at = now()
		WHERE id = $14 AND tenant_id = $15`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query,
		inv.Status, inv.InvoiceNumber, inv.DueDate, jsonCol[[]invoice.LineItem]{Val: inv.LineItems},
		inv.AppliedCreditsCents, inv.TaxAmountCents, inv.SubtotalCents, inv.TotalCents,
		inv.Issued, inv.IssueAttempts, inv.LastIssueError, inv.PDFDocumentID,
		inv.DataUpdatedAt, inv.ID, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("updating invoice").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("invoice %s not found", inv.ID).Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...any) ([]*invoice.Invoice, error) {
	var rows []invoiceRow
	if err := sqlx.SelectContext(ctx, r.db.Exec(ctx), &rows, query, args...); err != nil {
		return nil, ierr.WithError(err).WithMessage("listing invoices").Mark(ierr.ErrSystem)
	}
	out := make([]*invoice.Invoice, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *InvoiceRepository) ListDraftsPastGracePeriod(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + ` FROM invoices i
		WHERE i.status = $1 AND i.tenant_id = $2
			AND i.invoice_date + ((SELECT ie.grace_period_hours FROM invoicing_entities ie
				WHERE ie.id = i.invoicing_entity_id) || ' hours')::interval <= $3
		ORDER BY i.invoice_date LIMIT $4`
	return r.list(ctx, query, types.InvoiceStatusDraft, types.GetTenantID(ctx), asOf, limit)
}

func (r *InvoiceRepository) ListPendingForFinalization(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = $1 AND tenant_id = $2 AND invoice_date <= $3
		ORDER BY invoice_date LIMIT $4`
	return r.list(ctx, query, types.InvoiceStatusPending, types.GetTenantID(ctx), asOf, limit)
}

// FinalizeIfDraftOrPending applies the finalization transition only when
// the row hasn't already left Draft/Pending, so a redelivered or
// concurrently-triggered finalization call is a no-op rather than a
// double-charge, spec §4.3's exactly-once finalization guarantee.
func (r *InvoiceRepository) FinalizeIfDraftOrPending(ctx context.Context, id string, number string, dataUpdatedAt time.Time) (bool, error) {
	query := `
		UPDATE invoices SET status = $1, invoice_number = $2, data_updated_at = $3, updated_at = now()
		WHERE id = $4 AND tenant_id = $5 AND status IN ($6, $7)`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query,
		types.InvoiceStatusFinalized, number, dataUpdatedAt, id, types.GetTenantID(ctx),
		types.InvoiceStatusDraft, types.InvoiceStatusPending)
	if err != nil {
		return false, ierr.WithError(err).WithMessage("finalizing invoice").Mark(ierr.ErrSystem)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *InvoiceRepository) ListFinalizedAwaitingPayment(ctx context.Context, maxAttempts, limit int) ([]*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = $1 AND tenant_id = $2 AND issue_attempts < $3
			AND (total_cents - applied_credits_cents) > 0
		ORDER BY invoice_date LIMIT $4`
	return r.list(ctx, query, types.InvoiceStatusFinalized, types.GetTenantID(ctx), maxAttempts, limit)
}

func (r *InvoiceRepository) IncrementIssueAttempts(ctx context.Context, id string, errMsg *string) error {
	query := `
		UPDATE invoices SET issue_attempts = issue_attempts + 1, last_issue_error = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3`
	res, err := r.db.Exec(ctx).ExecContext(ctx, query, errMsg, id, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).WithMessage("incrementing invoice issue attempts").Mark(ierr.ErrSystem)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	return nil
}
