// Package worker polls PGMQ queue tables with visibility-timeout
// semantics and fans each message out to its registered handler, spec
// §4.6 component G. Grounded on
// vidinfra-flexprice/internal/pubsub/router/router.go's goroutine-per-topic
// handler-registration idiom, generalized from Watermill's ack/nack to
// PGMQ's delete/archive primitives.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/pgmq"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
)

// Handler processes one claimed message. An error leaves the message in
// place for redelivery once its visibility timeout expires; success either
// archives or deletes it, depending on the queue's auditability
// (types.QueueName.IsAuditable).
type Handler func(ctx context.Context, msg *pgmq.Message) error

// QueueConfig tunes one queue's poll loop, spec §4.6 / PGMQConfig.
type QueueConfig struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	MaxReadCount      int
}

// Pool runs one poll loop per registered queue.
type Pool struct {
	log *logger.Logger

	mu      sync.Mutex
	workers []*queueWorker
}

func NewPool(log *logger.Logger) *Pool {
	return &Pool{log: log}
}

// Register wires a queue to the handler that processes its messages. Must
// be called before Start.
func (p *Pool) Register(queue pgmq.Queue, handler Handler, cfg QueueConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, &queueWorker{queue: queue, handler: handler, cfg: cfg, log: p.log})
}

// Start launches one goroutine per registered queue. It returns
// immediately; call Stop (cancel ctx) to wind every loop down.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		go w.run(ctx)
	}
}

type queueWorker struct {
	queue   pgmq.Queue
	handler Handler
	cfg     QueueConfig
	log     *logger.Logger
}

func (w *queueWorker) run(ctx context.Context) {
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce claims one batch and processes every message serially — the
// teacher's router processes each Watermill message on its own goroutine,
// but PGMQ's per-message visibility timeout already gives safe
// concurrent redelivery, so a single worker goroutine keeps per-queue
// ordering simple; queue-level parallelism comes from running more
// worker processes, not more goroutines per process.
func (w *queueWorker) pollOnce(ctx context.Context) {
	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	msgs, err := w.queue.Read(ctx, batchSize, w.cfg.VisibilityTimeout)
	if err != nil {
		w.log.Errorw("queue read failed", "queue", w.queue.Name(), "error", err)
		return
	}

	for _, msg := range msgs {
		w.processOne(ctx, msg)
	}
}

func (w *queueWorker) processOne(ctx context.Context, msg *pgmq.Message) {
	if pgmq.IsPoisoned(msg, w.cfg.MaxReadCount) {
		w.log.Warnw("archiving poisoned message", "queue", w.queue.Name(), "msg_id", msg.MsgID, "read_count", msg.ReadCount)
		if err := w.queue.Archive(ctx, msg.MsgID); err != nil {
			w.log.Errorw("failed to archive poisoned message", "queue", w.queue.Name(), "msg_id", msg.MsgID, "error", err)
		}
		return
	}

	// One bounded retry burst within this poll tick; a handler that keeps
	// failing past maxElapsedTime is left in the queue for the next tick
	// (and eventually the next poison-pill check), matching spec §7's
	// "Worker errors are recorded ... exceeding max_read_count archives
	// with poison-pill" rather than blocking the whole poll loop on one
	// stuck message.
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		return w.handler(ctx, msg)
	}, backoff.WithContext(b, ctx))

	if err != nil {
		w.log.Errorw("handler failed", "queue", w.queue.Name(), "msg_id", msg.MsgID, "error", err)
		return
	}

	if w.queue.Name().IsAuditable() {
		if archiveErr := w.queue.Archive(ctx, msg.MsgID); archiveErr != nil {
			w.log.Errorw("failed to archive processed message", "queue", w.queue.Name(), "msg_id", msg.MsgID, "error", archiveErr)
		}
		return
	}
	if delErr := w.queue.Delete(ctx, msg.MsgID); delErr != nil {
		w.log.Errorw("failed to delete processed message", "queue", w.queue.Name(), "msg_id", msg.MsgID, "error", delErr)
	}
}

// QueueConfigFrom builds a QueueConfig from the process-wide PGMQ tunables.
func QueueConfigFrom(batchSize int, visibilityTimeout, pollInterval time.Duration, maxReadCount int) QueueConfig {
	return QueueConfig{
		BatchSize:         batchSize,
		VisibilityTimeout: visibilityTimeout,
		PollInterval:      pollInterval,
		MaxReadCount:      maxReadCount,
	}
}
