// Package invoicingentity models the per-tenant legal seller that owns an
// invoice numbering sequence, spec §3.
package invoicingentity

import (
	"context"
	"fmt"
	"strings"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type InvoicingEntity struct {
	ID                string `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	Address           string `db:"address" json:"address"`
	Currency          string `db:"currency" json:"currency"`
	Footer            string `db:"footer" json:"footer"`
	NumberPattern     string `db:"number_pattern" json:"number_pattern"` // e.g. "INV-{YYYY}-{SEQ:06d}"
	NextInvoiceNumber int64  `db:"next_invoice_number" json:"next_invoice_number"`
	GracePeriodHours  int    `db:"grace_period_hours" json:"grace_period_hours"`
	NetTermsDays      int    `db:"net_terms_days" json:"net_terms_days"`

	types.BaseModel
}

// FormatInvoiceNumber renders seq (the counter value reserved for this
// invoice) through the entity's pattern. Supports the {YYYY} and
// {SEQ:0Nd} placeholders used throughout the seed scenarios.
func FormatInvoiceNumber(pattern string, year int, seq int64) string {
	out := strings.ReplaceAll(pattern, "{YYYY}", fmt.Sprintf("%04d", year))
	// {SEQ:06d} -> zero-padded sequence
	for _, width := range []int{4, 5, 6, 7, 8} {
		token := fmt.Sprintf("{SEQ:0%dd}", width)
		if strings.Contains(out, token) {
			out = strings.ReplaceAll(out, token, fmt.Sprintf("%0*d", width, seq))
		}
	}
	out = strings.ReplaceAll(out, "{SEQ}", fmt.Sprintf("%d", seq))
	return out
}

// Repository persists invoicing entities. ReserveNextNumber must be called
// with a row lock already held by the caller's transaction (spec §4.3 step
// 1-2: "Lock the invoicing entity row ... Allocate the next invoice number
// ... in the same transaction").
type Repository interface {
	Get(ctx context.Context, id string) (*InvoicingEntity, error)
	// LockForFinalization selects the row FOR UPDATE inside the caller's
	// transaction and returns the current state.
	LockForFinalization(ctx context.Context, id string) (*InvoicingEntity, error)
	// ReserveNextNumber increments next_invoice_number and returns the
	// value reserved for this invoice, atomically within the same
	// transaction as LockForFinalization.
	ReserveNextNumber(ctx context.Context, id string) (int64, error)
}
