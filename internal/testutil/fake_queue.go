package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/pgmq"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// FakeQueue is an in-process pgmq.Queue, good enough for dispatcher and
// worker tests: messages live in a slice, Read just returns the head
// ones without a real visibility timeout, Delete/Archive pop by ID.
type FakeQueue struct {
	mu       sync.Mutex
	name     types.QueueName
	nextID   int64
	messages []*pgmq.Message
	archived []*pgmq.Message
}

func NewFakeQueue(name types.QueueName) *FakeQueue {
	return &FakeQueue{name: name}
}

func (q *FakeQueue) Name() types.QueueName { return q.name }

func (q *FakeQueue) Send(ctx context.Context, body []byte, headers map[string]string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.messages = append(q.messages, &pgmq.Message{
		MsgID: q.nextID, EnqueuedAt: time.Time{}, Body: body, Headers: headers,
	})
	return q.nextID, nil
}

func (q *FakeQueue) Read(ctx context.Context, qty int, visibilityTimeout time.Duration) ([]*pgmq.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*pgmq.Message
	for _, m := range q.messages {
		if len(out) >= qty {
			break
		}
		m.ReadCount++
		out = append(out, m)
	}
	return out, nil
}

func (q *FakeQueue) Delete(ctx context.Context, msgID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.MsgID == msgID {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return ierr.NewErrorf("message %d not found", msgID).Mark(ierr.ErrNotFound)
}

func (q *FakeQueue) Archive(ctx context.Context, msgID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.MsgID == msgID {
			q.archived = append(q.archived, m)
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return ierr.NewErrorf("message %d not found", msgID).Mark(ierr.ErrNotFound)
}

func (q *FakeQueue) ListArchived(ctx context.Context, limit int) ([]*pgmq.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.archived) {
		limit = len(q.archived)
	}
	return q.archived[:limit], nil
}

// AllMessages is a test helper snapshot of the live (unarchived) queue.
func (q *FakeQueue) AllMessages() []*pgmq.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*pgmq.Message, len(q.messages))
	copy(out, q.messages)
	return out
}
