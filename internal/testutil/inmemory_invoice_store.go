package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type InMemoryInvoiceRepository struct {
	mu    sync.RWMutex
	store map[string]*invoice.Invoice
}

func NewInMemoryInvoiceRepository() *InMemoryInvoiceRepository {
	return &InMemoryInvoiceRepository{store: make(map[string]*invoice.Invoice)}
}

func (r *InMemoryInvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.store[inv.ID] = &cp
	return nil
}

func (r *InMemoryInvoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.store[id]
	if !ok {
		return nil, ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (r *InMemoryInvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[inv.ID]; !ok {
		return ierr.NewErrorf("invoice %s not found", inv.ID).Mark(ierr.ErrNotFound)
	}
	cp := *inv
	r.store[inv.ID] = &cp
	return nil
}

func (r *InMemoryInvoiceRepository) ListDraftsPastGracePeriod(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*invoice.Invoice
	for _, inv := range r.store {
		if inv.Status != types.InvoiceStatusDraft {
			continue
		}
		if !inv.InvoiceDate.After(asOf) {
			cp := *inv
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *InMemoryInvoiceRepository) ListPendingForFinalization(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*invoice.Invoice
	for _, inv := range r.store {
		if inv.Status != types.InvoiceStatusPending {
			continue
		}
		cp := *inv
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *InMemoryInvoiceRepository) FinalizeIfDraftOrPending(ctx context.Context, id string, number string, dataUpdatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.store[id]
	if !ok {
		return false, ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	if inv.Status != types.InvoiceStatusDraft && inv.Status != types.InvoiceStatusPending {
		return false, nil
	}
	inv.Status = types.InvoiceStatusFinalized
	inv.InvoiceNumber = &number
	inv.DataUpdatedAt = &dataUpdatedAt
	return true, nil
}

func (r *InMemoryInvoiceRepository) ListFinalizedAwaitingPayment(ctx context.Context, maxAttempts, limit int) ([]*invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*invoice.Invoice
	for _, inv := range r.store {
		if inv.Status != types.InvoiceStatusFinalized {
			continue
		}
		if inv.TotalCents-inv.AppliedCreditsCents <= 0 {
			continue
		}
		if inv.IssueAttempts >= maxAttempts {
			continue
		}
		cp := *inv
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *InMemoryInvoiceRepository) IncrementIssueAttempts(ctx context.Context, id string, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.store[id]
	if !ok {
		return ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	inv.IssueAttempts++
	inv.LastIssueError = errMsg
	return nil
}
