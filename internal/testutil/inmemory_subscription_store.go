package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type InMemorySubscriptionRepository struct {
	mu            sync.RWMutex
	store         map[string]*subscription.Subscription
	components    map[string][]*subscription.SubscriptionComponent
	addons        map[string][]*subscription.SubscriptionAddOn
	slotTxs       map[string][]*subscription.SlotTransaction
}

func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		store:      make(map[string]*subscription.Subscription),
		components: make(map[string][]*subscription.SubscriptionComponent),
		addons:     make(map[string][]*subscription.SubscriptionAddOn),
		slotTxs:    make(map[string][]*subscription.SlotTransaction),
	}
}

func (r *InMemorySubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.store[s.ID]; exists {
		return ierr.NewErrorf("subscription %s already exists", s.ID).Mark(ierr.ErrDuplicateValue)
	}
	cp := *s
	r.store[s.ID] = &cp
	return nil
}

func (r *InMemorySubscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.store[id]
	if !ok {
		return nil, ierr.NewErrorf("subscription %s not found", id).Mark(ierr.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

// GetForUpdate has no real locking to do over a mutex-guarded map; it
// returns the same snapshot as Get, satisfying subscription.Repository.
func (r *InMemorySubscriptionRepository) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	return r.Get(ctx, id)
}

func (r *InMemorySubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[s.ID]; !ok {
		return ierr.NewErrorf("subscription %s not found", s.ID).Mark(ierr.ErrNotFound)
	}
	cp := *s
	r.store[s.ID] = &cp
	return nil
}

func (r *InMemorySubscriptionRepository) ListDuePeriodBoundary(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*subscription.Subscription
	for _, s := range r.store {
		if s.CurrentPeriodEnd != nil && !s.CurrentPeriodEnd.After(asOf) {
			cp := *s
			out = append(out, &cp)
			if len(out) >= limit && limit > 0 {
				break
			}
		}
	}
	return out, nil
}

// ListDueTrialExpiry is a documented simplification of the postgres
// implementation's plan_versions join: this in-memory store has no access
// to trial_duration_days, so callers that need trial-expiry coverage
// should seed trial cases through subscriptionsvc.Service.ExpireTrial
// directly rather than through this list.
func (r *InMemorySubscriptionRepository) ListDueTrialExpiry(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	return nil, nil
}

func (r *InMemorySubscriptionRepository) ListDueActivation(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*subscription.Subscription
	for _, s := range r.store {
		if s.Status != types.SubscriptionStatusPendingActivation {
			continue
		}
		if s.BillingStartDate.After(asOf) {
			continue
		}
		cp := *s
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *InMemorySubscriptionRepository) ListComponents(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionComponent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.components[subscriptionID], nil
}

func (r *InMemorySubscriptionRepository) CreateComponent(ctx context.Context, c *subscription.SubscriptionComponent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[c.SubscriptionID] = append(r.components[c.SubscriptionID], c)
	return nil
}

func (r *InMemorySubscriptionRepository) ListAddOns(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionAddOn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addons[subscriptionID], nil
}

func (r *InMemorySubscriptionRepository) CreateAddOn(ctx context.Context, a *subscription.SubscriptionAddOn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addons[a.SubscriptionID] = append(r.addons[a.SubscriptionID], a)
	return nil
}

func (r *InMemorySubscriptionRepository) AppendSlotTransaction(ctx context.Context, t *subscription.SlotTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotTxs[t.SubscriptionID] = append(r.slotTxs[t.SubscriptionID], t)
	return nil
}

func (r *InMemorySubscriptionRepository) CurrentSlotCount(ctx context.Context, subscriptionID string, asOf time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, t := range r.slotTxs[subscriptionID] {
		if !t.EffectiveAt.After(asOf) {
			total += t.Delta
		}
	}
	return total, nil
}

func (r *InMemorySubscriptionRepository) ListSlotTransactions(ctx context.Context, subscriptionID string, from, to time.Time) ([]*subscription.SlotTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*subscription.SlotTransaction
	for _, t := range r.slotTxs[subscriptionID] {
		if t.EffectiveAt.Before(from) || t.EffectiveAt.After(to) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveAt.Before(out[j].EffectiveAt) })
	return out, nil
}
