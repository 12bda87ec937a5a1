package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/coupon"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

type InMemoryCouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]*coupon.Coupon
	applied map[string]*coupon.AppliedCoupon
}

func NewInMemoryCouponRepository() *InMemoryCouponRepository {
	return &InMemoryCouponRepository{
		coupons: make(map[string]*coupon.Coupon),
		applied: make(map[string]*coupon.AppliedCoupon),
	}
}

func (r *InMemoryCouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[c.ID] = c
	return nil
}

func (r *InMemoryCouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[id]
	if !ok {
		return nil, ierr.NewErrorf("coupon %s not found", id).Mark(ierr.ErrNotFound)
	}
	return c, nil
}

func (r *InMemoryCouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.coupons {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, ierr.NewErrorf("coupon with code %s not found", code).Mark(ierr.ErrNotFound)
}

func (r *InMemoryCouponRepository) IncrementRedeemedCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return ierr.NewErrorf("coupon %s not found", id).Mark(ierr.ErrNotFound)
	}
	c.RedeemedCount++
	return nil
}

func (r *InMemoryCouponRepository) Apply(ctx context.Context, a *coupon.AppliedCoupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[a.ID] = a
	return nil
}

func (r *InMemoryCouponRepository) ListActiveForSubscription(ctx context.Context, subscriptionID string) ([]*coupon.AppliedCoupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*coupon.AppliedCoupon
	for _, a := range r.applied {
		if a.SubscriptionID == subscriptionID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *InMemoryCouponRepository) RecordApplication(ctx context.Context, a *coupon.AppliedCoupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.applied[a.ID]; !ok {
		return ierr.NewErrorf("applied coupon %s not found", a.ID).Mark(ierr.ErrNotFound)
	}
	r.applied[a.ID] = a
	return nil
}
