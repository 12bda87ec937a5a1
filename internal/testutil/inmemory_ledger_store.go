package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/ledger"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// InMemoryLedgerRepository fakes the customer-balance ledger, enforcing the
// same balance_cents >= 0 invariant the Postgres implementation enforces
// under a FOR UPDATE lock (here a plain mutex), spec §3.
type InMemoryLedgerRepository struct {
	mu       sync.Mutex
	balances map[string]int64
	pending  map[string]*ledger.PendingTx
	history  map[string][]*ledger.CustomerBalanceTx
}

func NewInMemoryLedgerRepository() *InMemoryLedgerRepository {
	return &InMemoryLedgerRepository{
		balances: make(map[string]int64),
		pending:  make(map[string]*ledger.PendingTx),
		history:  make(map[string][]*ledger.CustomerBalanceTx),
	}
}

// SeedBalance lets a test set a customer's starting balance without
// going through Credit.
func (r *InMemoryLedgerRepository) SeedBalance(customerID string, cents int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[customerID] = cents
}

func (r *InMemoryLedgerRepository) Credit(ctx context.Context, customerID string, amountCents int64, refInvoiceID *string) (*ledger.CustomerBalanceTx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.balances[customerID]
	after := before + amountCents
	r.balances[customerID] = after
	tx := &ledger.CustomerBalanceTx{
		ID: types.NewID(), CustomerID: customerID, Kind: ledger.TxKindCredit,
		AmountCents: amountCents, BalanceCentsBefore: before, BalanceCentsAfter: after,
		ReferenceInvoiceID: refInvoiceID,
	}
	r.history[customerID] = append(r.history[customerID], tx)
	return tx, nil
}

func (r *InMemoryLedgerRepository) Debit(ctx context.Context, customerID string, amountCents int64, refInvoiceID *string) (*ledger.CustomerBalanceTx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.balances[customerID]
	after := before - amountCents
	if after < 0 {
		return nil, ierr.NewErrorf("debit of %d would drive customer %s balance negative", amountCents, customerID).Mark(ierr.ErrValidation)
	}
	r.balances[customerID] = after
	tx := &ledger.CustomerBalanceTx{
		ID: types.NewID(), CustomerID: customerID, Kind: ledger.TxKindDebit,
		AmountCents: amountCents, BalanceCentsBefore: before, BalanceCentsAfter: after,
		ReferenceInvoiceID: refInvoiceID,
	}
	r.history[customerID] = append(r.history[customerID], tx)
	return tx, nil
}

func (r *InMemoryLedgerRepository) ListForCustomer(ctx context.Context, customerID string, limit int) ([]*ledger.CustomerBalanceTx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hist := r.history[customerID]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return hist, nil
}

func (r *InMemoryLedgerRepository) StagePending(ctx context.Context, p *ledger.PendingTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[p.ID] = p
	return nil
}

func (r *InMemoryLedgerRepository) ListPendingForInvoice(ctx context.Context, invoiceID string) ([]*ledger.PendingTx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.PendingTx
	for _, p := range r.pending {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *InMemoryLedgerRepository) CommitPending(ctx context.Context, p *ledger.PendingTx) (*ledger.CustomerBalanceTx, error) {
	r.mu.Lock()
	before := r.balances[p.CustomerID]
	var after int64
	switch p.Kind {
	case ledger.TxKindDebit:
		after = before - p.AmountCents
		if after < 0 {
			r.mu.Unlock()
			return nil, ierr.NewErrorf("committing pending debit would drive customer %s balance negative", p.CustomerID).Mark(ierr.ErrValidation)
		}
	default:
		after = before + p.AmountCents
	}
	r.balances[p.CustomerID] = after
	tx := &ledger.CustomerBalanceTx{
		ID: types.NewID(), CustomerID: p.CustomerID, Kind: p.Kind,
		AmountCents: p.AmountCents, BalanceCentsBefore: before, BalanceCentsAfter: after,
		ReferenceInvoiceID: &p.InvoiceID,
	}
	r.history[p.CustomerID] = append(r.history[p.CustomerID], tx)
	delete(r.pending, p.ID)
	r.mu.Unlock()
	return tx, nil
}
