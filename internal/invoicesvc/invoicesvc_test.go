package invoicesvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/coupon"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoicingentity"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/testutil"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	svc       *Service
	subs      *testutil.InMemorySubscriptionRepository
	plans     *testutil.InMemoryPlanRepository
	customers *testutil.InMemoryCustomerRepository
	entities  *testutil.InMemoryInvoicingEntityRepository
	invoices  *testutil.InMemoryInvoiceRepository
	coupons   *testutil.InMemoryCouponRepository
	ledger    *testutil.InMemoryLedgerRepository
	outboxes  *testutil.InMemoryOutboxRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		svc: nil,
		subs:      testutil.NewInMemorySubscriptionRepository(),
		plans:     testutil.NewInMemoryPlanRepository(),
		customers: testutil.NewInMemoryCustomerRepository(),
		entities:  testutil.NewInMemoryInvoicingEntityRepository(),
		invoices:  testutil.NewInMemoryInvoiceRepository(),
		coupons:   testutil.NewInMemoryCouponRepository(),
		ledger:    testutil.NewInMemoryLedgerRepository(),
		outboxes:  testutil.NewInMemoryOutboxRepository(),
	}
}

func (h *harness) build() {
	h.svc = New(
		testutil.NoopTxRunner{},
		h.subs,
		h.plans,
		h.customers,
		h.entities,
		h.invoices,
		h.coupons,
		h.ledger,
		testutil.NewInMemoryFXRateRepository(),
		testutil.NewInMemoryBillableMetricRepository(),
		h.outboxes,
		testutil.NewFakeUsageClient(),
		logger.NewTest(),
	)
}

func ctxTenant() context.Context {
	return types.WithTenantID(context.Background(), "tenant_1")
}

func mustMarshalFee(t *testing.T, fee price.Fee) []byte {
	t.Helper()
	raw, err := json.Marshal(fee)
	require.NoError(t, err)
	return raw
}

// seedBasicSubscription wires a monthly subscription on a one-component
// recurring $100 plan, billed in full periods (no proration), with a
// 30-day net-terms invoicing entity.
func (h *harness) seedBasicSubscription(t *testing.T) (*subscription.Subscription, *customer.Customer, *invoicingentity.InvoicingEntity) {
	t.Helper()
	ctx := ctxTenant()

	version := &plan.PlanVersion{
		ID: "pv_1", PlanID: "plan_1", Currency: "usd",
		BillingPeriod: types.BillingPeriodMonthly, NetTermsDays: 30,
	}
	require.NoError(t, h.plans.CreateVersion(ctx, version))

	entity := &invoicingentity.InvoicingEntity{
		ID: "ie_1", Name: "Acme Inc", Currency: "usd",
		NumberPattern: "INV-{YYYY}-{SEQ:06d}", NextInvoiceNumber: 1,
		GracePeriodHours: 24, NetTermsDays: 30,
	}
	h.entities.Seed(entity)

	cust := &customer.Customer{
		ID: "cust_1", Name: "Widgets Co", Currency: "usd",
		InvoicingEntityID: "ie_1", Timezone: "UTC",
	}
	require.NoError(t, h.customers.Create(ctx, cust))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	sub := &subscription.Subscription{
		ID: "sub_1", CustomerID: "cust_1", PlanVersionID: "pv_1",
		Status: types.SubscriptionStatusActive,
		BillingStartDate: start, BillingDayAnchor: 1,
		EffectivePeriod: types.BillingPeriodMonthly,
		CurrentPeriodStart: start, CurrentPeriodEnd: &end,
		CycleIndex: 0,
	}
	require.NoError(t, h.subs.Create(ctx, sub))

	component := &subscription.SubscriptionComponent{
		ID: "comp_1", SubscriptionID: "sub_1", PriceComponentID: "pc_1", Name: "Platform fee",
		CommittedFeeJSON: mustMarshalFee(t, price.Fee{
			Kind: types.FeeKindRecurring,
			Recurring: &price.RecurringFee{
				Amount: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
				Cadence: types.CadenceForever, BillingType: types.BillingTypeAdvance,
			},
		}),
	}
	require.NoError(t, h.subs.CreateComponent(ctx, component))

	return sub, cust, entity
}

func TestBuildDraft_RecurringFee_FullPeriodNoProration(t *testing.T) {
	h := newHarness(t)
	h.seedBasicSubscription(t)
	h.build()
	ctx := ctxTenant()

	inv, err := h.svc.BuildDraft(ctx, "sub_1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), inv.SubtotalCents)
	assert.Equal(t, int64(10000), inv.TotalCents)
	assert.Equal(t, int64(0), inv.AppliedCreditsCents)
	assert.Equal(t, types.InvoiceStatusDraft, inv.Status)
	assert.True(t, inv.Balances())
}

func TestBuildDraft_PercentageCoupon_DiscountsSubtotal(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTenant()
	h.seedBasicSubscription(t)
	h.build()

	pctOff := decimal.NewFromInt(10)
	require.NoError(t, h.coupons.Create(ctx, &coupon.Coupon{
		ID: "coup_1", Code: "TENOFF", DiscountKind: types.DiscountPercentage,
		PercentageOff: &pctOff,
	}))
	require.NoError(t, h.coupons.Apply(ctx, &coupon.AppliedCoupon{
		ID: "ac_1", CouponID: "coup_1", SubscriptionID: "sub_1", CustomerID: "cust_1",
		IsActive: true,
	}))

	inv, err := h.svc.BuildDraft(ctx, "sub_1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(9000), inv.SubtotalCents)
	assert.Equal(t, int64(9000), inv.TotalCents)
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, int64(-1000), inv.LineItems[1].AmountTotal)
}

func TestBuildDraft_CustomerBalance_CreditCappedAtSubtotal(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTenant()
	_, cust, _ := h.seedBasicSubscription(t)
	cust.BalanceCents = 50000
	require.NoError(t, h.customers.Update(ctx, cust))
	h.build()

	inv, err := h.svc.BuildDraft(ctx, "sub_1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), inv.AppliedCreditsCents)
	assert.Equal(t, int64(0), inv.TotalCents)

	pending, err := h.ledger.ListPendingForInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(10000), pending[0].AmountCents)
}

func TestFinalize_AssignsNumberAndOutboxRow(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTenant()
	h.seedBasicSubscription(t)
	h.build()

	inv, err := h.svc.BuildDraft(ctx, "sub_1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	now := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	ok, err := h.svc.Finalize(ctx, inv.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	updated, err := h.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusFinalized, updated.Status)
	require.NotNil(t, updated.InvoiceNumber)
	assert.Equal(t, "INV-2024-000001", *updated.InvoiceNumber)

	rows := h.outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.EventInvoiceFinalized, rows[0].EventType)

	// Exactly-once: a second Finalize call on the same invoice is a no-op.
	ok, err = h.svc.Finalize(ctx, inv.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, h.outboxes.AllRows(), 1)
}

func TestFinalize_CouponRecurringValueExhausted_Deactivates(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTenant()
	h.seedBasicSubscription(t)
	h.build()

	pctOff := decimal.NewFromInt(10)
	recurring := int32(1)
	require.NoError(t, h.coupons.Create(ctx, &coupon.Coupon{
		ID: "coup_1", Code: "ONEOFF", DiscountKind: types.DiscountPercentage,
		PercentageOff: &pctOff, RecurringValue: &recurring,
	}))
	require.NoError(t, h.coupons.Apply(ctx, &coupon.AppliedCoupon{
		ID: "ac_1", CouponID: "coup_1", SubscriptionID: "sub_1", CustomerID: "cust_1",
		IsActive: true,
	}))

	inv, err := h.svc.BuildDraft(ctx, "sub_1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	ok, err := h.svc.Finalize(ctx, inv.ID, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	applied, err := h.coupons.ListActiveForSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Len(t, applied, 0, "coupon should deactivate once applied_count reaches recurring_value")
}

func TestFinalize_ChargeAutomatically_EnqueuesPaymentRequest(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTenant()
	_, cust, _ := h.seedBasicSubscription(t)
	pm := "pm_123"
	cust.DefaultPaymentMethodID = &pm
	cust.ChargeAutomatically = true
	require.NoError(t, h.customers.Update(ctx, cust))
	h.build()

	inv, err := h.svc.BuildDraft(ctx, "sub_1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	ok, err := h.svc.Finalize(ctx, inv.ID, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	var sawPaymentRequest bool
	for _, row := range h.outboxes.AllRows() {
		if row.EventType == types.EventPaymentRequested {
			sawPaymentRequest = true
		}
	}
	assert.True(t, sawPaymentRequest)
}
