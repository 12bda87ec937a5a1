package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
)

// FakeAdvisoryLocker stands in for postgres.DB.WithAdvisoryLock in tests:
// a plain in-process mutex set keyed by LockKey, good enough to exercise
// "only one caller runs fn at a time per key" without a live connection.
type FakeAdvisoryLocker struct {
	locks sync.Mutex
	held  map[postgres.LockKey]bool
}

func NewFakeAdvisoryLocker() *FakeAdvisoryLocker {
	return &FakeAdvisoryLocker{held: make(map[postgres.LockKey]bool)}
}

func (f *FakeAdvisoryLocker) WithAdvisoryLock(ctx context.Context, key postgres.LockKey, fn func(ctx context.Context) error) (bool, error) {
	f.locks.Lock()
	if f.held[key] {
		f.locks.Unlock()
		return false, nil
	}
	f.held[key] = true
	f.locks.Unlock()

	defer func() {
		f.locks.Lock()
		delete(f.held, key)
		f.locks.Unlock()
	}()

	return true, fn(ctx)
}
