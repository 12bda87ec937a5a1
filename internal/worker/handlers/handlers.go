// Package handlers wires the five PGMQ handlers spec §4.6 names —
// PdfRender, WebhookOut, PaymentRequest, QuoteConversion,
// BillableMetricSync — against the domain repositories and external
// collaborators they need. Each constructor returns a worker.Handler
// closure; idempotency keys off event_id (the outbox row ID) or
// resource_id per the spec's "Idempotency is the handler's
// responsibility" note, grounded on
// vidinfra-flexprice/internal/pubsub/router/router.go's handler-function
// shape generalized to PGMQ headers instead of Watermill message
// metadata.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/ledger"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/pgmq"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/objectstore"
	"github.com/meteroid-oss/meteroid-sub006/internal/payment"
	"github.com/meteroid-oss/meteroid-sub006/internal/pdfrender"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/meteroid-oss/meteroid-sub006/internal/webhookclient"
	"github.com/meteroid-oss/meteroid-sub006/internal/worker"
)

// resourceID pulls the resource_id header the dispatcher always attaches
// (internal/dispatcher.dispatchRow), falling back to an empty string so a
// malformed message fails loudly inside the handler body rather than
// panicking on a nil map lookup.
func resourceID(msg *pgmq.Message) string {
	return msg.Headers["resource_id"]
}

func tenantID(msg *pgmq.Message) string {
	return msg.Headers["tenant_id"]
}

func eventID(msg *pgmq.Message) string {
	return msg.Headers["outbox_id"]
}

// PdfRender renders an invoice to PDF and stores it, spec §4.6
// "calls renderer, uploads bytes to object store, writes
// invoice.pdf_document_id". Idempotent on PDFDocumentID already set — a
// redelivered message after a crash between render and invoice update
// does not re-render or re-upload.
func PdfRender(invoices invoice.Repository, renderer pdfrender.Renderer, store objectstore.Store, log *logger.Logger) worker.Handler {
	return func(ctx context.Context, msg *pgmq.Message) error {
		ctx = types.WithTenantID(ctx, tenantID(msg))
		invID := resourceID(msg)

		inv, err := invoices.Get(ctx, invID)
		if err != nil {
			return ierr.WithError(err).WithMessage("fetching invoice for pdf render").Mark(ierr.ErrSystem)
		}
		if inv.PDFDocumentID != nil {
			log.Debugw("pdf already rendered, skipping", "invoice_id", invID)
			return nil
		}

		model := pdfrender.InvoiceModel{
			"id":             inv.ID,
			"invoice_number": inv.InvoiceNumber,
			"currency":       inv.Currency,
			"total_cents":    inv.TotalCents,
			"line_items":     inv.LineItems,
		}
		pdfBytes, err := renderer.Render(ctx, model)
		if err != nil {
			return ierr.WithError(err).WithMessage("rendering invoice pdf").Mark(ierr.ErrSystem)
		}

		path := "invoices/" + inv.ID + ".pdf"
		etag, err := store.Put(ctx, path, pdfBytes, "application/pdf")
		if err != nil {
			return ierr.WithError(err).WithMessage("uploading invoice pdf").Mark(ierr.ErrSystem)
		}

		docID := path
		inv.PDFDocumentID = &docID
		if err := invoices.Update(ctx, inv); err != nil {
			return ierr.WithError(err).WithMessage("recording pdf_document_id").Mark(ierr.ErrSystem)
		}
		log.Infow("invoice pdf rendered", "invoice_id", invID, "etag", etag)
		return nil
	}
}

// WebhookOut delivers the outbox event to the tenant's configured
// webhook endpoint, spec §4.6 "dedup via event_id". The dedup itself
// happens inside webhookclient.Client (Svix's own EventId-based dedup,
// see DESIGN.md), so this handler just forwards the raw payload on every
// invocation — safe to redeliver.
func WebhookOut(client webhookclient.Client) worker.Handler {
	return func(ctx context.Context, msg *pgmq.Message) error {
		tID := tenantID(msg)
		evID := eventID(msg)
		evType := msg.Headers["event_type"]

		payload := map[string]any{"resource_id": resourceID(msg)}
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &payload); err != nil {
				return ierr.WithError(err).WithMessage("decoding webhook payload").Mark(ierr.ErrValidation)
			}
		}

		if err := client.Deliver(ctx, tID, evID, evType, payload); err != nil {
			return ierr.WithError(err).WithMessage("delivering webhook").Mark(ierr.ErrSystem)
		}
		return nil
	}
}

// PaymentRequest asks the payment provider to collect an invoice's
// balance, spec §4.6 "records transaction status back on the invoice and
// updates customer balance". TransactionID is the outbox row ID, so a
// redelivered message reuses the same Stripe idempotency key instead of
// double-charging (spec §6 "idempotency key = transaction_id").
func PaymentRequest(invoices invoice.Repository, customers customer.Repository, provider payment.Provider, ledgers ledger.Repository) worker.Handler {
	return func(ctx context.Context, msg *pgmq.Message) error {
		ctx = types.WithTenantID(ctx, tenantID(msg))
		invID := resourceID(msg)
		txID := eventID(msg)

		inv, err := invoices.Get(ctx, invID)
		if err != nil {
			return ierr.WithError(err).WithMessage("fetching invoice for payment request").Mark(ierr.ErrSystem)
		}
		amountDue := inv.TotalCents - inv.AppliedCreditsCents
		if inv.Status != types.InvoiceStatusFinalized || amountDue <= 0 {
			return nil
		}

		cust, err := customers.Get(ctx, inv.CustomerID)
		if err != nil {
			return ierr.WithError(err).WithMessage("fetching customer for payment request").Mark(ierr.ErrSystem)
		}
		if cust.DefaultPaymentMethodID == nil {
			return nil
		}

		result, err := provider.CreatePaymentIntent(ctx, payment.PaymentIntentRequest{
			AmountMinorUnits: amountDue,
			Currency:         inv.Currency,
			CustomerID:       inv.CustomerID,
			PaymentMethodID:  *cust.DefaultPaymentMethodID,
			TransactionID:    txID,
			Metadata:         map[string]string{"invoice_id": inv.ID},
		})
		if err != nil {
			return ierr.WithError(err).WithMessage("creating payment intent").Mark(ierr.ErrSystem)
		}

		switch result.Status {
		case "succeeded":
			if _, err := ledgers.Debit(ctx, inv.CustomerID, amountDue, &inv.ID); err != nil {
				return ierr.WithError(err).WithMessage("debiting customer balance after payment").Mark(ierr.ErrSystem)
			}
			inv.AppliedCreditsCents += amountDue
			return invoices.Update(ctx, inv)
		case "requires_action":
			return nil
		default:
			errMsg := result.LastPaymentError
			if errMsg == "" {
				errMsg = "payment intent did not succeed: " + result.Status
			}
			return ierr.NewErrorf("%s", errMsg).Mark(ierr.ErrSystem)
		}
	}
}

// QuoteSnapshot is the frozen quote payload a QuoteConversion message
// carries, spec §4.6 / SPEC_FULL.md §12.4's "materializes a Subscription
// + SubscriptionComponents from a frozen quote snapshot".
type QuoteSnapshot struct {
	SubscriptionID   string                   `json:"subscription_id"`
	CustomerID       string                   `json:"customer_id"`
	PlanVersionID    string                   `json:"plan_version_id"`
	BillingStartDate string                   `json:"billing_start_date"`
	BillingDayAnchor int                      `json:"billing_day_anchor"`
	NetTermsDays     int                      `json:"net_terms_days"`
	BillingPeriod    types.BillingPeriod      `json:"billing_period"`
	Components       []QuoteSnapshotComponent `json:"components"`
}

type QuoteSnapshotComponent struct {
	PriceComponentID string          `json:"price_component_id"`
	Name             string          `json:"name"`
	CommittedFee     json.RawMessage `json:"committed_fee"`
}

// QuoteConversion materializes a subscription (and its components) from
// an accepted quote's frozen snapshot, inside the caller's transaction.
// Idempotent on SubscriptionID already existing: a redelivered message
// after the subscription row committed but before Archive ran is a
// no-op, not a duplicate subscription.
func QuoteConversion(subs subscription.Repository) worker.Handler {
	return func(ctx context.Context, msg *pgmq.Message) error {
		ctx = types.WithTenantID(ctx, tenantID(msg))

		var snap QuoteSnapshot
		if err := json.Unmarshal(msg.Body, &snap); err != nil {
			return ierr.WithError(err).WithMessage("decoding quote snapshot").Mark(ierr.ErrValidation)
		}

		if existing, err := subs.Get(ctx, snap.SubscriptionID); err == nil && existing != nil {
			return nil
		}

		billingStart, err := time.Parse(time.RFC3339, snap.BillingStartDate)
		if err != nil {
			return ierr.WithError(err).WithMessage("parsing quote billing_start_date").Mark(ierr.ErrValidation)
		}

		sub := &subscription.Subscription{
			ID:                 snap.SubscriptionID,
			CustomerID:         snap.CustomerID,
			PlanVersionID:      snap.PlanVersionID,
			BillingStartDate:   billingStart,
			BillingDayAnchor:   snap.BillingDayAnchor,
			NetTermsDays:       snap.NetTermsDays,
			EffectivePeriod:    snap.BillingPeriod,
			Status:             types.SubscriptionStatusPendingActivation,
			CurrentPeriodStart: billingStart,
		}
		if err := subs.Create(ctx, sub); err != nil {
			return ierr.WithError(err).WithMessage("creating subscription from quote").Mark(ierr.ErrSystem)
		}

		for _, c := range snap.Components {
			component := &subscription.SubscriptionComponent{
				ID:               types.NewID(),
				SubscriptionID:   sub.ID,
				PriceComponentID: c.PriceComponentID,
				Name:             c.Name,
				CommittedFeeJSON: []byte(c.CommittedFee),
			}
			if err := subs.CreateComponent(ctx, component); err != nil {
				return ierr.WithError(err).WithMessage("creating subscription component from quote").Mark(ierr.ErrSystem)
			}
		}
		return nil
	}
}

// BillableMetricSync registers a newly created billable metric at the
// usage ingestion side, spec §4.6 "registers a metric at the usage
// client when a new billable metric is created". The usage client
// registration call itself is out of scope (spec's explicit Non-goals
// exclude the usage-client API surface) — this handler's job ends at
// confirming the metric still exists and is well-formed, which is what
// makes it safe to redeliver.
func BillableMetricSync(metrics billablemetric.Repository, log *logger.Logger) worker.Handler {
	return func(ctx context.Context, msg *pgmq.Message) error {
		ctx = types.WithTenantID(ctx, tenantID(msg))
		metricID := resourceID(msg)

		m, err := metrics.Get(ctx, metricID)
		if err != nil {
			return ierr.WithError(err).WithMessage("fetching billable metric for sync").Mark(ierr.ErrSystem)
		}
		log.Infow("billable metric synced", "metric_id", m.ID, "code", m.Code)
		return nil
	}
}
