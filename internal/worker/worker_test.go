package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/pgmq"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/testutil"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SuccessfulHandler_ArchivesAuditableQueueMessage(t *testing.T) {
	queue := testutil.NewFakeQueue(types.QueuePDFRender)
	_, err := queue.Send(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)

	var processed int32
	pool := NewPool(logger.NewTest())
	pool.Register(queue, func(ctx context.Context, msg *pgmq.Message) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{BatchSize: 10, PollInterval: 10 * time.Millisecond, MaxReadCount: 5})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(queue.AllMessages()) == 0
	}, time.Second, 5*time.Millisecond)

	archived, err := queue.ListArchived(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestPool_SuccessfulHandler_DeletesNonAuditableQueueMessage(t *testing.T) {
	// webhook_out isn't auditable (spec §8 S6: "PGMQ row deleted" on a
	// successful webhook delivery), so success must delete, not archive.
	queue := testutil.NewFakeQueue(types.QueueWebhookOut)
	_, err := queue.Send(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)

	var processed int32
	pool := NewPool(logger.NewTest())
	pool.Register(queue, func(ctx context.Context, msg *pgmq.Message) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{BatchSize: 10, PollInterval: 10 * time.Millisecond, MaxReadCount: 5})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(queue.AllMessages()) == 0
	}, time.Second, 5*time.Millisecond)

	archived, err := queue.ListArchived(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestProcessOne_PoisonedMessage_ArchivesWithoutCallingHandler(t *testing.T) {
	queue := testutil.NewFakeQueue(types.QueueWebhookOut)
	_, err := queue.Send(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)
	msgs, err := queue.Read(context.Background(), 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msgs[0].ReadCount = 10

	var handlerCalled bool
	w := &queueWorker{
		queue: queue,
		handler: func(ctx context.Context, msg *pgmq.Message) error {
			handlerCalled = true
			return nil
		},
		cfg: QueueConfig{MaxReadCount: 5},
		log: logger.NewTest(),
	}
	w.processOne(context.Background(), msgs[0])

	assert.False(t, handlerCalled)
	assert.Empty(t, queue.AllMessages())
}
