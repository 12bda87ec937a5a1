package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoicingentity"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

// InMemoryInvoicingEntityRepository fakes the invoicing-entity row lock
// with a plain mutex instead of SELECT ... FOR UPDATE — sufficient for a
// single-process test, not a substitute for the Postgres row lock spec
// §4.3 relies on for concurrent finalizers.
type InMemoryInvoicingEntityRepository struct {
	mu       sync.Mutex
	entities map[string]*invoicingentity.InvoicingEntity
}

func NewInMemoryInvoicingEntityRepository() *InMemoryInvoicingEntityRepository {
	return &InMemoryInvoicingEntityRepository{entities: make(map[string]*invoicingentity.InvoicingEntity)}
}

func (r *InMemoryInvoicingEntityRepository) Seed(e *invoicingentity.InvoicingEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.ID] = e
}

func (r *InMemoryInvoicingEntityRepository) Get(ctx context.Context, id string) (*invoicingentity.InvoicingEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return nil, ierr.NewErrorf("invoicing entity %s not found", id).Mark(ierr.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (r *InMemoryInvoicingEntityRepository) LockForFinalization(ctx context.Context, id string) (*invoicingentity.InvoicingEntity, error) {
	return r.Get(ctx, id)
}

func (r *InMemoryInvoicingEntityRepository) ReserveNextNumber(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return 0, ierr.NewErrorf("invoicing entity %s not found", id).Mark(ierr.ErrNotFound)
	}
	seq := e.NextInvoiceNumber
	e.NextInvoiceNumber++
	return seq, nil
}
