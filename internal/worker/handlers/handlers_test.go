package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/pgmq"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/payment"
	"github.com/meteroid-oss/meteroid-sub006/internal/testutil"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headers(tenantID, resourceID, outboxID, eventType string) map[string]string {
	return map[string]string{
		"tenant_id":   tenantID,
		"resource_id": resourceID,
		"outbox_id":   outboxID,
		"event_type":  eventType,
	}
}

func TestPdfRender_RendersUploadsAndRecordsDocumentID(t *testing.T) {
	invoices := testutil.NewInMemoryInvoiceRepository()
	require.NoError(t, invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_1", CustomerID: "cust_1", Status: types.InvoiceStatusFinalized, Currency: "usd", TotalCents: 1000,
	}))
	renderer := testutil.NewFakePDFRenderer()
	store := testutil.NewFakeObjectStore()

	handler := PdfRender(invoices, renderer, store, logger.NewTest())
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_1", "ob_1", "invoice.finalized")}
	require.NoError(t, handler(context.Background(), msg))

	updated, err := invoices.Get(context.Background(), "inv_1")
	require.NoError(t, err)
	require.NotNil(t, updated.PDFDocumentID)
	assert.Equal(t, "invoices/inv_1.pdf", *updated.PDFDocumentID)

	stored, err := store.Get(context.Background(), "invoices/inv_1.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestPdfRender_AlreadyRendered_IsNoOp(t *testing.T) {
	invoices := testutil.NewInMemoryInvoiceRepository()
	docID := "invoices/inv_2.pdf"
	require.NoError(t, invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_2", Status: types.InvoiceStatusFinalized, PDFDocumentID: &docID,
	}))
	renderer := testutil.NewFakePDFRenderer()
	store := testutil.NewFakeObjectStore()

	handler := PdfRender(invoices, renderer, store, logger.NewTest())
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_2", "ob_2", "invoice.finalized")}
	require.NoError(t, handler(context.Background(), msg))

	_, err := store.Get(context.Background(), "invoices/inv_2.pdf")
	assert.Error(t, err, "nothing should have been uploaded for an already-rendered invoice")
}

func TestWebhookOut_DeliversDecodedPayload(t *testing.T) {
	client := testutil.NewFakeWebhookClient()
	handler := WebhookOut(client)

	body, err := json.Marshal(map[string]any{"invoice_id": "inv_1"})
	require.NoError(t, err)
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_1", "ob_3", "invoice.finalized"), Body: body}
	require.NoError(t, handler(context.Background(), msg))

	require.Len(t, client.Delivered, 1)
	assert.Equal(t, "ob_3", client.Delivered[0].EventID)
	assert.Equal(t, "invoice.finalized", client.Delivered[0].EventType)
	assert.Equal(t, "inv_1", client.Delivered[0].Payload["invoice_id"])
}

func TestWebhookOut_FailsOnceThenSucceeds(t *testing.T) {
	client := testutil.NewFakeWebhookClient()
	client.FailOnce["ob_4"] = true
	handler := WebhookOut(client)
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_1", "ob_4", "invoice.finalized")}

	require.Error(t, handler(context.Background(), msg))
	require.NoError(t, handler(context.Background(), msg))
	assert.Len(t, client.Delivered, 1)
}

func TestPaymentRequest_SuccessfulCharge_DebitsLedgerAndAppliesCredit(t *testing.T) {
	invoices := testutil.NewInMemoryInvoiceRepository()
	require.NoError(t, invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_3", CustomerID: "cust_1", Status: types.InvoiceStatusFinalized, Currency: "usd", TotalCents: 5000,
	}))
	customers := testutil.NewInMemoryCustomerRepository()
	pm := "pm_123"
	require.NoError(t, customers.Create(context.Background(), &customer.Customer{
		ID: "cust_1", Currency: "usd", DefaultPaymentMethodID: &pm, ChargeAutomatically: true,
	}))
	ledgerRepo := testutil.NewInMemoryLedgerRepository()
	ledgerRepo.SeedBalance("cust_1", 5000)
	provider := testutil.NewFakePaymentProvider()

	handler := PaymentRequest(invoices, customers, provider, ledgerRepo)
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_3", "ob_5", "payment.requested")}
	require.NoError(t, handler(context.Background(), msg))

	require.Len(t, provider.Payments, 1)
	assert.Equal(t, "ob_5", provider.Payments[0].TransactionID)

	updated, err := invoices.Get(context.Background(), "inv_3")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), updated.AppliedCreditsCents)

	hist, err := ledgerRepo.ListForCustomer(context.Background(), "cust_1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(5000), hist[0].AmountCents)
}

func TestPaymentRequest_NoDefaultPaymentMethod_SkipsWithoutError(t *testing.T) {
	invoices := testutil.NewInMemoryInvoiceRepository()
	require.NoError(t, invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_4", CustomerID: "cust_2", Status: types.InvoiceStatusFinalized, TotalCents: 2500,
	}))
	customers := testutil.NewInMemoryCustomerRepository()
	require.NoError(t, customers.Create(context.Background(), &customer.Customer{ID: "cust_2", Currency: "usd"}))
	provider := testutil.NewFakePaymentProvider()

	handler := PaymentRequest(invoices, customers, provider, testutil.NewInMemoryLedgerRepository())
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_4", "ob_6", "payment.requested")}
	require.NoError(t, handler(context.Background(), msg))
	assert.Empty(t, provider.Payments)
}

func TestPaymentRequest_DeclinedPayment_ReturnsError(t *testing.T) {
	invoices := testutil.NewInMemoryInvoiceRepository()
	require.NoError(t, invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_5", CustomerID: "cust_3", Status: types.InvoiceStatusFinalized, TotalCents: 1500,
	}))
	customers := testutil.NewInMemoryCustomerRepository()
	pm := "pm_456"
	require.NoError(t, customers.Create(context.Background(), &customer.Customer{ID: "cust_3", Currency: "usd", DefaultPaymentMethodID: &pm}))
	provider := testutil.NewFakePaymentProvider()
	provider.ScriptOutcomes("ob_7", testutil.PaymentIntentOutcome{
		Result: &payment.PaymentIntentResult{ID: "pi_x", Status: "failed", LastPaymentError: "card declined"},
	})

	handler := PaymentRequest(invoices, customers, provider, testutil.NewInMemoryLedgerRepository())
	msg := &pgmq.Message{Headers: headers("tenant_1", "inv_5", "ob_7", "payment.requested")}
	assert.Error(t, handler(context.Background(), msg))
}

func TestQuoteConversion_MaterializesSubscriptionAndComponents(t *testing.T) {
	subs := testutil.NewInMemorySubscriptionRepository()
	handler := QuoteConversion(subs)

	snap := QuoteSnapshot{
		SubscriptionID:   "sub_1",
		CustomerID:       "cust_1",
		PlanVersionID:    "plv_1",
		BillingStartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		BillingDayAnchor: 1,
		NetTermsDays:     30,
		BillingPeriod:    types.BillingPeriodMonthly,
		Components: []QuoteSnapshotComponent{
			{PriceComponentID: "pc_1", Name: "seats", CommittedFee: json.RawMessage(`{"type":"flat"}`)},
		},
	}
	body, err := json.Marshal(snap)
	require.NoError(t, err)

	msg := &pgmq.Message{Headers: headers("tenant_1", "sub_1", "ob_8", "quote.accepted"), Body: body}
	require.NoError(t, handler(context.Background(), msg))

	created, err := subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "cust_1", created.CustomerID)

	components, err := subs.ListComponents(context.Background(), "sub_1")
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "seats", components[0].Name)

	// Redelivery is a no-op, not a duplicate-subscription error.
	require.NoError(t, handler(context.Background(), msg))
	componentsAfterRetry, err := subs.ListComponents(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Len(t, componentsAfterRetry, 1)
}
