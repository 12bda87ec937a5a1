package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/config"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/invoicesvc"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/subscriptionsvc"
	"github.com/meteroid-oss/meteroid-sub006/internal/testutil"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	subs      *testutil.InMemorySubscriptionRepository
	customers *testutil.InMemoryCustomerRepository
	invoices  *testutil.InMemoryInvoiceRepository
	plans     *testutil.InMemoryPlanRepository
	entities  *testutil.InMemoryInvoicingEntityRepository
	coupons   *testutil.InMemoryCouponRepository
	ledger    *testutil.InMemoryLedgerRepository
	outboxes  *testutil.InMemoryOutboxRepository
	fxRates   *testutil.InMemoryFXRateRepository
	locker    *testutil.FakeAdvisoryLocker
	fx        *testutil.FakeFXProvider

	sched *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		subs:      testutil.NewInMemorySubscriptionRepository(),
		customers: testutil.NewInMemoryCustomerRepository(),
		invoices:  testutil.NewInMemoryInvoiceRepository(),
		plans:     testutil.NewInMemoryPlanRepository(),
		entities:  testutil.NewInMemoryInvoicingEntityRepository(),
		coupons:   testutil.NewInMemoryCouponRepository(),
		ledger:    testutil.NewInMemoryLedgerRepository(),
		outboxes:  testutil.NewInMemoryOutboxRepository(),
		fxRates:   testutil.NewInMemoryFXRateRepository(),
		locker:    testutil.NewFakeAdvisoryLocker(),
		fx:        testutil.NewFakeFXProvider(map[string]decimal.Decimal{"EUR": decimal.NewFromFloat(0.9)}),
	}

	subSvc := subscriptionsvc.New(testutil.NoopTxRunner{}, h.subs, h.plans, h.outboxes, logger.NewTest())
	invSvc := invoicesvc.New(
		testutil.NoopTxRunner{}, h.subs, h.plans, h.customers, h.entities, h.invoices,
		h.coupons, h.ledger, h.fxRates, testutil.NewInMemoryBillableMetricRepository(),
		h.outboxes, testutil.NewFakeUsageClient(), logger.NewTest(),
	)

	h.sched = New(h.locker, h.subs, h.customers, h.invoices, subSvc, invSvc, h.fx, h.fxRates, 50, 5, logger.NewTest())
	return h
}

func TestRefreshFX_UpsertsTodaysRates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.refreshFX(context.Background()))

	row, err := h.fxRates.NearestOnOrBefore(context.Background(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.Rates["EUR"].Equal(decimal.NewFromFloat(0.9)))
	assert.True(t, row.Rates["USD"].Equal(decimal.NewFromInt(1)))
}

func TestRetryPayments_RequeuesOutstandingFinalizedInvoice(t *testing.T) {
	h := newHarness(t)
	pm := "pm_1"
	require.NoError(t, h.customers.Create(context.Background(), &customer.Customer{
		ID: "cust_1", Currency: "usd", ChargeAutomatically: true, DefaultPaymentMethodID: &pm,
	}))
	require.NoError(t, h.invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_1", CustomerID: "cust_1", Status: types.InvoiceStatusFinalized,
		Currency: "usd", TotalCents: 2000, IssueAttempts: 1,
	}))

	require.NoError(t, h.sched.retryPayments(context.Background()))

	rows := h.outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.EventPaymentRequested, rows[0].EventType)
	assert.Equal(t, "inv_1", rows[0].ResourceID)
}

func TestRetryPayments_ExhaustedAttempts_SkipsInvoice(t *testing.T) {
	h := newHarness(t)
	pm := "pm_1"
	require.NoError(t, h.customers.Create(context.Background(), &customer.Customer{
		ID: "cust_2", Currency: "usd", ChargeAutomatically: true, DefaultPaymentMethodID: &pm,
	}))
	require.NoError(t, h.invoices.Create(context.Background(), &invoice.Invoice{
		ID: "inv_2", CustomerID: "cust_2", Status: types.InvoiceStatusFinalized,
		Currency: "usd", TotalCents: 2000, IssueAttempts: 5,
	}))

	require.NoError(t, h.sched.retryPayments(context.Background()))

	rows := h.outboxes.AllRows()
	assert.Empty(t, rows)
}

func TestAdvanceSubscriptions_ActivatesDueSubscription(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.plans.CreateVersion(context.Background(), &plan.PlanVersion{
		ID: "plv_1", PlanID: "plan_1", Version: 1, Currency: "usd",
		BillingPeriod: types.BillingPeriodMonthly, BillingType: types.BillingTypeAdvance,
		NetTermsDays: 0,
	}))

	sub := &subscription.Subscription{
		ID: "sub_1", CustomerID: "cust_1", PlanVersionID: "plv_1",
		Status: types.SubscriptionStatusPendingActivation, BillingStartDate: time.Now().Add(-time.Hour),
		BillingDayAnchor: 1, EffectivePeriod: types.BillingPeriodMonthly,
	}
	require.NoError(t, h.subs.Create(context.Background(), sub))

	require.NoError(t, h.sched.advanceSubscriptions(context.Background()))

	updated, err := h.subs.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.NotEqual(t, types.SubscriptionStatusPendingActivation, updated.Status)
}

func TestStart_RegistersAllConfiguredCronEntries(t *testing.T) {
	h := newHarness(t)
	cfg := config.SchedulerConfig{
		AdvanceSubscriptionsCron: "@every 1h",
		FinalizeInvoicesCron:     "@every 1h",
		RetryPaymentsCron:        "@every 1h",
		CleanupCheckoutsCron:     "@every 1h",
		RefreshFXCron:            "@every 1h",
	}
	require.NoError(t, h.sched.Start(cfg))
	defer h.sched.Stop()
	assert.Len(t, h.sched.cron.Entries(), 5)
}
