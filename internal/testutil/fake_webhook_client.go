package testutil

import (
	"context"
	"sync"
)

// FakeWebhookClient records delivered events in-process and, per
// FailOnce, can script a failure for the first attempt at a
// given event ID — spec §8 S6's "fails once then succeeds".
type FakeWebhookClient struct {
	mu         sync.Mutex
	Delivered  []DeliveredWebhook
	FailOnce   map[string]bool
	failed     map[string]bool
}

type DeliveredWebhook struct {
	TenantID  string
	EventID   string
	EventType string
	Payload   map[string]any
}

func NewFakeWebhookClient() *FakeWebhookClient {
	return &FakeWebhookClient{FailOnce: make(map[string]bool), failed: make(map[string]bool)}
}

func (f *FakeWebhookClient) Deliver(ctx context.Context, tenantID, eventID, eventType string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailOnce[eventID] && !f.failed[eventID] {
		f.failed[eventID] = true
		return errTransientDeliveryFailure
	}

	f.Delivered = append(f.Delivered, DeliveredWebhook{TenantID: tenantID, EventID: eventID, EventType: eventType, Payload: payload})
	return nil
}

var errTransientDeliveryFailure = fakeDeliveryError("simulated transient webhook delivery failure")

type fakeDeliveryError string

func (e fakeDeliveryError) Error() string { return string(e) }
