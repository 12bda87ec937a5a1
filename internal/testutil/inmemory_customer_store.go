package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

type InMemoryCustomerRepository struct {
	mu    sync.RWMutex
	store map[string]*customer.Customer
}

func NewInMemoryCustomerRepository() *InMemoryCustomerRepository {
	return &InMemoryCustomerRepository{store: make(map[string]*customer.Customer)}
}

func (r *InMemoryCustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[c.ID] = c
	return nil
}

func (r *InMemoryCustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.store[id]
	if !ok {
		return nil, ierr.NewErrorf("customer %s not found", id).Mark(ierr.ErrNotFound)
	}
	return c, nil
}

func (r *InMemoryCustomerRepository) GetByAlias(ctx context.Context, alias string) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.store {
		if c.Alias != nil && *c.Alias == alias {
			return c, nil
		}
	}
	return nil, ierr.NewErrorf("customer with alias %s not found", alias).Mark(ierr.ErrNotFound)
}

func (r *InMemoryCustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[c.ID]; !ok {
		return ierr.NewErrorf("customer %s not found", c.ID).Mark(ierr.ErrNotFound)
	}
	r.store[c.ID] = c
	return nil
}
