package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

type InMemoryPlanRepository struct {
	mu       sync.RWMutex
	plans    map[string]*plan.Plan
	versions map[string]*plan.PlanVersion
}

func NewInMemoryPlanRepository() *InMemoryPlanRepository {
	return &InMemoryPlanRepository{
		plans:    make(map[string]*plan.Plan),
		versions: make(map[string]*plan.PlanVersion),
	}
}

func (r *InMemoryPlanRepository) CreatePlan(ctx context.Context, p *plan.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = p
	return nil
}

func (r *InMemoryPlanRepository) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, ierr.NewErrorf("plan %s not found", id).Mark(ierr.ErrNotFound)
	}
	return p, nil
}

func (r *InMemoryPlanRepository) GetPlanByCode(ctx context.Context, code string) (*plan.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plans {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, ierr.NewErrorf("plan with code %s not found", code).Mark(ierr.ErrNotFound)
}

func (r *InMemoryPlanRepository) CreateVersion(ctx context.Context, v *plan.PlanVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[v.ID] = v
	return nil
}

func (r *InMemoryPlanRepository) GetVersion(ctx context.Context, id string) (*plan.PlanVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[id]
	if !ok {
		return nil, ierr.NewErrorf("plan version %s not found", id).Mark(ierr.ErrNotFound)
	}
	return v, nil
}

func (r *InMemoryPlanRepository) LatestPublishedVersion(ctx context.Context, planID string) (*plan.PlanVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *plan.PlanVersion
	for _, v := range r.versions {
		if v.PlanID != planID || v.IsDraft {
			continue
		}
		if latest == nil || v.Version > latest.Version {
			latest = v
		}
	}
	if latest == nil {
		return nil, ierr.NewErrorf("no published version for plan %s", planID).Mark(ierr.ErrNotFound)
	}
	return latest, nil
}
