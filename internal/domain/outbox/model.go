// Package outbox models the transactional outbox rows every mutating
// operation appends inside its own DB transaction, spec §4.6. Grounded on
// the claim/ack idiom of
// vidinfra-flexprice/internal/kafka/consumer.go's MessageConsumer, here
// applied to Postgres rows instead of a Kafka topic per spec §9's explicit
// "prefer outbox+PGMQ over in-process pub/sub" redesign note (see
// SPEC_FULL.md §13).
package outbox

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// Row is one outbox entry. TenantID + ResourceID scope it; Payload is the
// JSON event body the dispatcher republishes onto a PGMQ queue.
type Row struct {
	ID                     string                  `db:"id" json:"id"`
	EventType              types.OutboxEventType   `db:"event_type" json:"event_type"`
	TenantID               string                  `db:"tenant_id" json:"tenant_id"`
	ResourceID             string                  `db:"resource_id" json:"resource_id"`
	Status                 types.OutboxStatus      `db:"status" json:"status"`
	Payload                []byte                  `db:"payload" json:"payload,omitempty"`
	ProcessingAttempts     int                     `db:"processing_attempts" json:"processing_attempts"`
	ProcessingStartedAt    *time.Time              `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt  *time.Time              `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	Error                  *string                 `db:"error" json:"error,omitempty"`
	CreatedAt              time.Time               `db:"created_at" json:"created_at"`
}

// TargetQueue maps an event type to the PGMQ queue its side effect runs
// on, spec §4.6 "Handlers".
func (r *Row) TargetQueue() types.QueueName {
	switch r.EventType {
	case types.EventInvoiceFinalized:
		return types.QueuePDFRender
	case types.EventPaymentRequested:
		return types.QueuePaymentRequest
	case types.EventQuoteAccepted:
		return types.QueueQuoteConversion
	case types.EventBillableMetricCreated:
		return types.QueueBillableMetricSync
	default:
		return types.QueueWebhookOut
	}
}

// Repository persists and claims outbox rows.
type Repository interface {
	Append(ctx context.Context, r *Row) error
	// ClaimPending transitions up to limit Pending rows to Processing and
	// returns them, for the dispatcher (spec §4.6 "claims up to N Pending
	// rows, transitions them to Processing").
	ClaimPending(ctx context.Context, limit int) ([]*Row, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}
