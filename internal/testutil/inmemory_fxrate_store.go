package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/fxrate"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

type InMemoryFXRateRepository struct {
	mu   sync.RWMutex
	rows []*fxrate.HistoricalRatesFromUsd
}

func NewInMemoryFXRateRepository() *InMemoryFXRateRepository {
	return &InMemoryFXRateRepository{}
}

func (r *InMemoryFXRateRepository) Upsert(ctx context.Context, row *fxrate.HistoricalRatesFromUsd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rows {
		if existing.Date.Equal(row.Date) {
			r.rows[i] = row
			return nil
		}
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *InMemoryFXRateRepository) NearestOnOrBefore(ctx context.Context, date time.Time) (*fxrate.HistoricalRatesFromUsd, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *fxrate.HistoricalRatesFromUsd
	for _, row := range r.rows {
		if row.Date.After(date) {
			continue
		}
		if best == nil || row.Date.After(best.Date) {
			best = row
		}
	}
	if best == nil {
		return nil, ierr.NewErrorf("no FX rate row on or before %s", date).Mark(ierr.ErrNotFound)
	}
	return best, nil
}

// sortedDates is a test helper for assertions that want deterministic
// iteration order.
func (r *InMemoryFXRateRepository) sortedDates() []time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dates := make([]time.Time, 0, len(r.rows))
	for _, row := range r.rows {
		dates = append(dates, row.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
