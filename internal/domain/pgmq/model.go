// Package pgmq models the per-queue message tables the worker runtime
// reads from, spec §4.6. No example repo in the retrieval pack uses
// pgmq.rs/pg_message_queue directly; the read/archive/delete contract here
// is grounded on the claim/ack shape of
// vidinfra-flexprice/internal/kafka/consumer.go's MessageConsumer and on
// distributed-lock/src/locks/postgres_lock.rs's single-connection advisory
// lock discipline (see internal/postgres/advisorylock.go), generalized
// into a plain SQL queue since PGMQ itself is a Postgres extension, not a
// Go library.
package pgmq

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// Message is one row read from a queue table.
type Message struct {
	MsgID      int64             `db:"msg_id" json:"msg_id"`
	EnqueuedAt time.Time         `db:"enqueued_at" json:"enqueued_at"`
	ReadCount  int               `db:"read_ct" json:"read_ct"`
	VT         time.Time         `db:"vt" json:"vt"`
	Body       []byte            `db:"message" json:"message"`
	Headers    map[string]string `db:"headers" json:"headers,omitempty"`
}

// Queue is the contract a single PGMQ-style queue table satisfies: send,
// read-with-visibility-timeout, delete, archive, and poison-pill handling
// via MaxReadCount, spec §4.6.
type Queue interface {
	Name() types.QueueName
	// Send enqueues a new message with the given JSON body and headers.
	Send(ctx context.Context, body []byte, headers map[string]string) (msgID int64, err error)
	// Read claims up to qty messages, atomically incrementing read_ct and
	// setting vt = now + visibilityTimeout on each.
	Read(ctx context.Context, qty int, visibilityTimeout time.Duration) ([]*Message, error)
	// Delete permanently removes a successfully processed, non-auditable
	// message.
	Delete(ctx context.Context, msgID int64) error
	// Archive moves a message to the queue's archive table — used both
	// for auditable completions and for poison-pill retirement once
	// read_ct exceeds maxReadCount.
	Archive(ctx context.Context, msgID int64) error
	// ListArchived returns archived messages for inspection/replay
	// tooling.
	ListArchived(ctx context.Context, limit int) ([]*Message, error)
}

// IsPoisoned reports whether a message has been redelivered past the
// configured retry ceiling, spec §4.6 "archives it with a poison-pill
// marker rather than replaying indefinitely".
func IsPoisoned(m *Message, maxReadCount int) bool {
	return m.ReadCount > maxReadCount
}
