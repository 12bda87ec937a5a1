package dispatcher

import (
	"context"
	"testing"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/outbox"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/testutil"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnce_DispatchesRowToTargetQueue(t *testing.T) {
	outboxes := testutil.NewInMemoryOutboxRepository()
	require.NoError(t, outboxes.Append(context.Background(), &outbox.Row{
		ID: "ob_1", EventType: types.EventInvoiceFinalized, TenantID: "tenant_1",
		ResourceID: "inv_1", Status: types.OutboxStatusPending, Payload: []byte(`{"invoice_id":"inv_1"}`),
	}))

	pdfQueue := testutil.NewFakeQueue(types.QueuePDFRender)
	registry := Registry{types.QueuePDFRender: pdfQueue}
	d := New(outboxes, registry, testutil.NewFakeAdvisoryLocker(), 10, logger.NewTest())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := pdfQueue.AllMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ob_1", msgs[0].Headers["outbox_id"])

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.OutboxStatusCompleted, rows[0].Status)
}

func TestRunOnce_UnregisteredQueue_MarksFailed(t *testing.T) {
	outboxes := testutil.NewInMemoryOutboxRepository()
	require.NoError(t, outboxes.Append(context.Background(), &outbox.Row{
		ID: "ob_2", EventType: types.EventQuoteAccepted, TenantID: "tenant_1",
		ResourceID: "quote_1", Status: types.OutboxStatusPending, Payload: []byte(`{}`),
	}))

	d := New(outboxes, Registry{}, testutil.NewFakeAdvisoryLocker(), 10, logger.NewTest())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.OutboxStatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].Error)
}

func TestRunOnce_LockHeld_SkipsTick(t *testing.T) {
	outboxes := testutil.NewInMemoryOutboxRepository()
	require.NoError(t, outboxes.Append(context.Background(), &outbox.Row{
		ID: "ob_3", EventType: types.EventInvoiceFinalized, TenantID: "tenant_1",
		ResourceID: "inv_3", Status: types.OutboxStatusPending, Payload: []byte(`{}`),
	}))

	locker := testutil.NewFakeAdvisoryLocker()
	d := New(outboxes, Registry{types.QueuePDFRender: testutil.NewFakeQueue(types.QueuePDFRender)}, locker, 10, logger.NewTest())

	// Hold the lock externally to simulate a concurrent dispatcher instance.
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = locker.WithAdvisoryLock(context.Background(), 2000, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.OutboxStatusPending, rows[0].Status)
}
