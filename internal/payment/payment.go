// Package payment is the PaymentProvider collaborator, spec §6: "create
// setup intent, create payment intent with idempotency key, fetch payment
// method, handle webhooks. Idempotency key = transaction_id." Grounded on
// vidinfra-flexprice/internal/integration/stripe/payment.go's use of
// stripe-go/v82's typed client (V1PaymentIntents/V1SetupIntents/
// V1PaymentMethods) and webhook.ConstructEventWithOptions, narrowed to the
// four operations the core actually drives from invoicesvc/worker instead
// of the teacher's full checkout-session/customer-sync surface (API-layer
// concerns this core doesn't own).
package payment

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SetupIntentResult is the subset of a Stripe SetupIntent callers need.
type SetupIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// PaymentIntentRequest asks the provider to charge a customer's saved
// payment method off-session, spec §4.3's "Payment trigger".
type PaymentIntentRequest struct {
	AmountMinorUnits int64
	Currency         string
	CustomerID       string // provider-side customer ID
	PaymentMethodID  string
	TransactionID    string // idempotency key, spec §6
	Metadata         map[string]string
}

// PaymentIntentResult is the subset of a Stripe PaymentIntent callers need.
type PaymentIntentResult struct {
	ID               string
	Status           string
	RequiresAction   bool
	LastPaymentError string
}

// PaymentMethodResult is the subset of a Stripe PaymentMethod callers need.
type PaymentMethodResult struct {
	ID    string
	Type  string
	Brand string
	Last4 string
}

// WebhookEvent is a verified inbound event, trimmed to what handlers need.
type WebhookEvent struct {
	ID   string
	Type string
	Raw  []byte
}

// Provider is the capability trait spec §9's "Heterogeneous service
// registries" redesign note asks for: an explicit interface with one real
// implementation (Stripe) and a fake for tests, rather than a dyn-Trait
// registry.
type Provider interface {
	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntentResult, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntentResult, error)
	GetPaymentMethod(ctx context.Context, paymentMethodID string) (*PaymentMethodResult, error)
	ParseWebhookEvent(payload []byte, signature, webhookSecret string) (*WebhookEvent, error)
}

// StripeProvider implements Provider against the real Stripe API.
type StripeProvider struct {
	client         *stripe.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
}

// NewStripeProvider builds a Provider from a decrypted Stripe secret key
// (internal/secrets.Service decrypts it before this call) and the
// connect/read timeouts. The timeouts are only stored on the provider: the
// Stripe client is built with stripe-go's default backends and does not
// apply them to its HTTP calls.
func NewStripeProvider(secretKey string, connectTimeout, readTimeout time.Duration) *StripeProvider {
	return &StripeProvider{
		client:         stripe.NewClient(secretKey, nil),
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
	}
}

func (p *StripeProvider) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntentResult, error) {
	params := &stripe.SetupIntentCreateParams{
		Customer: stripe.String(customerID),
		Usage:    stripe.String("off_session"),
	}
	si, err := p.client.V1SetupIntents.Create(ctx, params)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("creating stripe setup intent").Mark(ierr.ErrPaymentProvider)
	}
	return &SetupIntentResult{ID: si.ID, ClientSecret: si.ClientSecret, Status: string(si.Status)}, nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntentResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.AmountMinorUnits),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Metadata:      req.Metadata,
	}
	params.IdempotencyKey = stripe.String(req.TransactionID)

	pi, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok {
			return nil, ierr.WithError(err).
				WithMessage("stripe payment intent creation failed").
				WithHint(stripeErr.Msg).
				Mark(ierr.ErrPaymentProvider)
		}
		return nil, ierr.WithError(err).WithMessage("creating stripe payment intent").Mark(ierr.ErrPaymentProvider)
	}

	result := &PaymentIntentResult{ID: pi.ID, Status: string(pi.Status)}
	if pi.Status == stripe.PaymentIntentStatusRequiresAction {
		result.RequiresAction = true
	}
	if pi.LastPaymentError != nil {
		result.LastPaymentError = pi.LastPaymentError.Msg
	}
	return result, nil
}

func (p *StripeProvider) GetPaymentMethod(ctx context.Context, paymentMethodID string) (*PaymentMethodResult, error) {
	pm, err := p.client.V1PaymentMethods.Retrieve(ctx, paymentMethodID, nil)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("fetching stripe payment method").Mark(ierr.ErrPaymentProvider)
	}
	result := &PaymentMethodResult{ID: pm.ID, Type: string(pm.Type)}
	if pm.Card != nil {
		result.Brand = string(pm.Card.Brand)
		result.Last4 = pm.Card.Last4
	}
	return result, nil
}

func (p *StripeProvider) ParseWebhookEvent(payload []byte, signature, webhookSecret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("verifying stripe webhook signature").Mark(ierr.ErrValidation)
	}
	return &WebhookEvent{ID: event.ID, Type: string(event.Type), Raw: payload}, nil
}
