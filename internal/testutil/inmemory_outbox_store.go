package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/outbox"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type InMemoryOutboxRepository struct {
	mu   sync.RWMutex
	rows map[string]*outbox.Row
}

func NewInMemoryOutboxRepository() *InMemoryOutboxRepository {
	return &InMemoryOutboxRepository{rows: make(map[string]*outbox.Row)}
}

func (r *InMemoryOutboxRepository) Append(ctx context.Context, row *outbox.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *InMemoryOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var claimed []*outbox.Row
	for _, row := range r.rows {
		if row.Status != types.OutboxStatusPending {
			continue
		}
		row.Status = types.OutboxStatusProcessing
		row.ProcessingAttempts++
		claimed = append(claimed, row)
		if limit > 0 && len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (r *InMemoryOutboxRepository) MarkCompleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ierr.NewErrorf("outbox row %s not found", id).Mark(ierr.ErrNotFound)
	}
	row.Status = types.OutboxStatusCompleted
	return nil
}

func (r *InMemoryOutboxRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ierr.NewErrorf("outbox row %s not found", id).Mark(ierr.ErrNotFound)
	}
	row.Status = types.OutboxStatusFailed
	row.Error = &errMsg
	return nil
}

// AllRows is a test helper exposing the current snapshot for assertions.
func (r *InMemoryOutboxRepository) AllRows() []*outbox.Row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*outbox.Row, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out
}
