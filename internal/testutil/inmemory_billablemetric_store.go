package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

type InMemoryBillableMetricRepository struct {
	mu    sync.RWMutex
	store map[string]*billablemetric.BillableMetric
}

func NewInMemoryBillableMetricRepository() *InMemoryBillableMetricRepository {
	return &InMemoryBillableMetricRepository{store: make(map[string]*billablemetric.BillableMetric)}
}

func (r *InMemoryBillableMetricRepository) Create(ctx context.Context, m *billablemetric.BillableMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[m.ID] = m
	return nil
}

func (r *InMemoryBillableMetricRepository) Get(ctx context.Context, id string) (*billablemetric.BillableMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.store[id]
	if !ok {
		return nil, ierr.NewErrorf("billable metric %s not found", id).Mark(ierr.ErrNotFound)
	}
	return m, nil
}

func (r *InMemoryBillableMetricRepository) GetByCode(ctx context.Context, code string) (*billablemetric.BillableMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.store {
		if m.Code == code {
			return m, nil
		}
	}
	return nil, ierr.NewErrorf("billable metric with code %s not found", code).Mark(ierr.ErrNotFound)
}

func (r *InMemoryBillableMetricRepository) IsReferencedByActiveSubscription(ctx context.Context, id string) (bool, error) {
	return false, nil
}
