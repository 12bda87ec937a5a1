package subscriptionsvc

import (
	"context"
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/testutil"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *testutil.InMemorySubscriptionRepository, *testutil.InMemoryPlanRepository, *testutil.InMemoryOutboxRepository) {
	t.Helper()
	subs := testutil.NewInMemorySubscriptionRepository()
	plans := testutil.NewInMemoryPlanRepository()
	outboxes := testutil.NewInMemoryOutboxRepository()
	svc := New(testutil.NoopTxRunner{}, subs, plans, outboxes, logger.NewTest())
	return svc, subs, plans, outboxes
}

func ctxWithTenant() context.Context {
	return types.WithTenantID(context.Background(), "tenant_1")
}

func TestActivate_NoTrial_GoesActive(t *testing.T) {
	svc, subs, plans, outboxes := newTestService(t)
	ctx := ctxWithTenant()

	version := &plan.PlanVersion{ID: "pv_1", PlanID: "plan_1", BillingPeriod: types.BillingPeriodMonthly}
	require.NoError(t, plans.CreateVersion(ctx, version))

	sub := &subscription.Subscription{
		ID:               "sub_1",
		PlanVersionID:    "pv_1",
		BillingStartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		BillingDayAnchor: 15,
		EffectivePeriod:  types.BillingPeriodMonthly,
		Status:           types.SubscriptionStatusPendingActivation,
	}
	require.NoError(t, subs.Create(ctx, sub))

	err := svc.Activate(ctx, "sub_1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, updated.Status)
	assert.Equal(t, int64(0), updated.CycleIndex)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *updated.CurrentPeriodEnd)

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.EventSubscriptionCreated, rows[0].EventType)
}

func TestActivate_WithTrial_GoesTrialActive(t *testing.T) {
	svc, subs, plans, _ := newTestService(t)
	ctx := ctxWithTenant()

	trialDays := int32(14)
	version := &plan.PlanVersion{ID: "pv_1", PlanID: "plan_1", TrialDurationDays: &trialDays}
	require.NoError(t, plans.CreateVersion(ctx, version))

	sub := &subscription.Subscription{
		ID:               "sub_1",
		PlanVersionID:    "pv_1",
		BillingStartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		BillingDayAnchor: 15,
		EffectivePeriod:  types.BillingPeriodMonthly,
		Status:           types.SubscriptionStatusPendingActivation,
	}
	require.NoError(t, subs.Create(ctx, sub))

	require.NoError(t, svc.Activate(ctx, "sub_1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusTrialActive, updated.Status)
}

func TestExpireTrial_WithPaymentMethod_GoesActiveAndClearsTrialingPlan(t *testing.T) {
	svc, subs, _, _ := newTestService(t)
	ctx := ctxWithTenant()

	trialingPlan := "pv_trial"
	sub := &subscription.Subscription{
		ID:             "sub_1",
		PlanVersionID:  "pv_1",
		TrialingPlanID: &trialingPlan,
		Status:         types.SubscriptionStatusTrialActive,
	}
	require.NoError(t, subs.Create(ctx, sub))

	require.NoError(t, svc.ExpireTrial(ctx, "sub_1", true))

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, updated.Status)
	assert.Nil(t, updated.TrialingPlanID)
}

func TestExpireTrial_NoPaymentMethod_GoesTrialExpired(t *testing.T) {
	svc, subs, _, outboxes := newTestService(t)
	ctx := ctxWithTenant()

	sub := &subscription.Subscription{ID: "sub_1", Status: types.SubscriptionStatusTrialActive}
	require.NoError(t, subs.Create(ctx, sub))

	require.NoError(t, svc.ExpireTrial(ctx, "sub_1", false))

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusTrialExpired, updated.Status)

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.EventTrialExpired, rows[0].EventType)
}

func TestRequestCancellation_EndOfBillingPeriod_GoesPendingCancellation(t *testing.T) {
	svc, subs, _, _ := newTestService(t)
	ctx := ctxWithTenant()

	sub := &subscription.Subscription{ID: "sub_1", Status: types.SubscriptionStatusActive}
	require.NoError(t, subs.Create(ctx, sub))

	now := time.Now()
	require.NoError(t, svc.RequestCancellation(ctx, "sub_1", types.CancelEndOfBillingPeriod, now, nil, now))

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPendingCancellation, updated.Status)
}

func TestRequestCancellation_PastDate_CancelsImmediately(t *testing.T) {
	svc, subs, _, outboxes := newTestService(t)
	ctx := ctxWithTenant()

	sub := &subscription.Subscription{ID: "sub_1", Status: types.SubscriptionStatusActive}
	require.NoError(t, subs.Create(ctx, sub))

	now := time.Now()
	past := now.Add(-time.Hour)
	reason := "customer request"
	require.NoError(t, svc.RequestCancellation(ctx, "sub_1", types.CancelAtDate, past, &reason, now))

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, updated.Status)
	require.NotNil(t, updated.CanceledAt)

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.EventSubscriptionCancelled, rows[0].EventType)
}

func TestAdvancePeriodBoundary_Active_AdvancesCycle(t *testing.T) {
	svc, subs, _, _ := newTestService(t)
	ctx := ctxWithTenant()

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	sub := &subscription.Subscription{
		ID:                 "sub_1",
		Status:             types.SubscriptionStatusActive,
		BillingStartDate:   start,
		BillingDayAnchor:   15,
		EffectivePeriod:    types.BillingPeriodMonthly,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   &end,
		CycleIndex:         0,
	}
	require.NoError(t, subs.Create(ctx, sub))

	stillActive, err := svc.AdvancePeriodBoundary(ctx, "sub_1", end)
	require.NoError(t, err)
	assert.True(t, stillActive)

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.CycleIndex)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), updated.CurrentPeriodStart)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *updated.CurrentPeriodEnd)
}

func TestAdvancePeriodBoundary_PendingCancellation_FinalizesCancellation(t *testing.T) {
	svc, subs, _, outboxes := newTestService(t)
	ctx := ctxWithTenant()

	sub := &subscription.Subscription{ID: "sub_1", Status: types.SubscriptionStatusPendingCancellation}
	require.NoError(t, subs.Create(ctx, sub))

	stillActive, err := svc.AdvancePeriodBoundary(ctx, "sub_1", time.Now())
	require.NoError(t, err)
	assert.False(t, stillActive)

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, updated.Status)

	rows := outboxes.AllRows()
	require.Len(t, rows, 1)
	assert.Equal(t, types.EventSubscriptionCancelled, rows[0].EventType)
}

func TestPause_SuspendsFromAnyState(t *testing.T) {
	svc, subs, _, _ := newTestService(t)
	ctx := ctxWithTenant()

	sub := &subscription.Subscription{ID: "sub_1", Status: types.SubscriptionStatusActive}
	require.NoError(t, subs.Create(ctx, sub))

	require.NoError(t, svc.Pause(ctx, "sub_1"))

	updated, err := subs.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPaused, updated.Status)
}
