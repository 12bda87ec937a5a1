// Package testutil provides in-memory fakes for this module's Repository
// interfaces, grounded on
// vidinfra-flexprice/internal/testutil/inmemory_*_store.go's
// map+sync.RWMutex shape.
package testutil

import "context"

// NoopTxRunner runs fn directly against the incoming context, satisfying
// postgres.IClient without a live database connection — the seam
// vidinfra-flexprice/internal/postgres/client.go's IClient interface
// exists for.
type NoopTxRunner struct{}

func (NoopTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
