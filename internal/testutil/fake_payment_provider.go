package testutil

import (
	"context"
	"sync"

	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/payment"
)

// FakePaymentProvider is an in-process payment.Provider: CreatePaymentIntent
// results are scripted per TransactionID so tests can exercise a
// fails-once-then-succeeds retry sequence (spec §8 S6).
type FakePaymentProvider struct {
	mu       sync.Mutex
	Results  map[string][]PaymentIntentOutcome
	Payments []payment.PaymentIntentRequest
}

type PaymentIntentOutcome struct {
	Result *payment.PaymentIntentResult
	Err    error
}

func NewFakePaymentProvider() *FakePaymentProvider {
	return &FakePaymentProvider{Results: make(map[string][]PaymentIntentOutcome)}
}

// ScriptOutcomes queues a sequence of outcomes returned on successive
// CreatePaymentIntent calls carrying this transaction ID.
func (f *FakePaymentProvider) ScriptOutcomes(transactionID string, outcomes ...PaymentIntentOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[transactionID] = outcomes
}

func (f *FakePaymentProvider) CreateSetupIntent(ctx context.Context, customerID string) (*payment.SetupIntentResult, error) {
	return &payment.SetupIntentResult{ID: "seti_fake", Status: "succeeded"}, nil
}

func (f *FakePaymentProvider) CreatePaymentIntent(ctx context.Context, req payment.PaymentIntentRequest) (*payment.PaymentIntentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Payments = append(f.Payments, req)

	queue := f.Results[req.TransactionID]
	if len(queue) == 0 {
		return &payment.PaymentIntentResult{ID: "pi_" + req.TransactionID, Status: "succeeded"}, nil
	}
	next := queue[0]
	f.Results[req.TransactionID] = queue[1:]
	return next.Result, next.Err
}

func (f *FakePaymentProvider) GetPaymentMethod(ctx context.Context, paymentMethodID string) (*payment.PaymentMethodResult, error) {
	return &payment.PaymentMethodResult{ID: paymentMethodID, Type: "card", Brand: "visa", Last4: "4242"}, nil
}

func (f *FakePaymentProvider) ParseWebhookEvent(payload []byte, signature, webhookSecret string) (*payment.WebhookEvent, error) {
	if signature == "" {
		return nil, ierr.NewError("missing signature").Mark(ierr.ErrValidation)
	}
	return &payment.WebhookEvent{ID: "evt_fake", Type: "payment_intent.succeeded", Raw: payload}, nil
}
