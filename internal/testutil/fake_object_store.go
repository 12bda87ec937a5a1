package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

// FakeObjectStore is an in-process objectstore.Store backed by a map.
type FakeObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{objects: make(map[string][]byte)}
}

func (f *FakeObjectStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.objects[path] = cp
	return "etag-" + path, nil
}

func (f *FakeObjectStore) Get(ctx context.Context, path string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, ierr.NewErrorf("object %s not found", path).Mark(ierr.ErrNotFound)
	}
	return data, nil
}
