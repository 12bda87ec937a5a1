// Package scheduler runs the periodic tasks spec §4.2/§4.3/§5 describe as
// "coordinated by Postgres advisory locks for single-firing across
// replicas": advancing due subscriptions, finalizing pending invoices,
// retrying failed payments, refreshing FX rates, and cleaning up expired
// checkout sessions. Grounded on
// vidinfra-flexprice/internal/temporal/workflows/billing_workflow.go's set
// of periodic billing tasks, reimplemented against robfig/cron instead of
// Temporal per spec §9's outbox-over-orchestration redesign note (the
// scheduler only needs "run this on a cadence, skip if another replica
// already is", not a durable workflow engine).
package scheduler

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/config"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/fxrate"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/fxprovider"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/invoicesvc"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/subscriptionsvc"
	"github.com/robfig/cron"
)

// AdvisoryLocker is the same single-connection advisory-lock seam
// internal/dispatcher narrows from postgres.DB, here giving every cron
// task its own lock key so a slow subscription-advancement tick never
// blocks the FX refresh tick on another replica.
type AdvisoryLocker interface {
	WithAdvisoryLock(ctx context.Context, key postgres.LockKey, fn func(ctx context.Context) error) (ran bool, err error)
}

// Scheduler owns one cron loop with one entry per periodic task.
type Scheduler struct {
	cron   *cron.Cron
	locker AdvisoryLocker

	subs      subscription.Repository
	customers customer.Repository
	invoices  invoice.Repository

	subscriptionSvc *subscriptionsvc.Service
	invoiceSvc      *invoicesvc.Service

	fxProvider fxprovider.Provider
	fxRates    fxrate.Repository

	batchSize     int
	maxIssueRetry int

	log *logger.Logger
}

func New(
	locker AdvisoryLocker,
	subs subscription.Repository,
	customers customer.Repository,
	invoices invoice.Repository,
	subscriptionSvc *subscriptionsvc.Service,
	invoiceSvc *invoicesvc.Service,
	fxProvider fxprovider.Provider,
	fxRates fxrate.Repository,
	batchSize, maxIssueRetry int,
	log *logger.Logger,
) *Scheduler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxIssueRetry <= 0 {
		maxIssueRetry = 5
	}
	return &Scheduler{
		cron:            cron.New(),
		locker:          locker,
		subs:            subs,
		customers:       customers,
		invoices:        invoices,
		subscriptionSvc: subscriptionSvc,
		invoiceSvc:      invoiceSvc,
		fxProvider:      fxProvider,
		fxRates:         fxRates,
		batchSize:       batchSize,
		maxIssueRetry:   maxIssueRetry,
		log:             log,
	}
}

// Start registers every cron entry from cfg and starts the loop. Each
// entry's own WithAdvisoryLock call (inside the task function) is what
// actually guarantees single-firing across replicas — robfig/cron itself
// runs independently, uncoordinated, in every process.
func (s *Scheduler) Start(cfg config.SchedulerConfig) error {
	entries := []struct {
		spec string
		job  func()
	}{
		{cfg.AdvanceSubscriptionsCron, s.runTask("advance_subscriptions", postgres.LockKeyAdvanceSubscriptions, s.advanceSubscriptions)},
		{cfg.FinalizeInvoicesCron, s.runTask("finalize_invoices", postgres.LockKeyFinalizeInvoices, s.finalizeInvoices)},
		{cfg.RetryPaymentsCron, s.runTask("retry_payments", postgres.LockKeyRetryPayments, s.retryPayments)},
		{cfg.CleanupCheckoutsCron, s.runTask("cleanup_checkouts", postgres.LockKeyCleanupCheckouts, s.cleanupCheckouts)},
		{cfg.RefreshFXCron, s.runTask("refresh_fx", postgres.LockKeyRefreshFX, s.refreshFX)},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if err := s.cron.AddFunc(e.spec, e.job); err != nil {
			return ierr.WithError(err).WithMessage("registering cron entry").Mark(ierr.ErrInitialization)
		}
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// runTask wraps a task body in its advisory lock and structured logging,
// the same claim/skip shape internal/dispatcher uses for its own lock.
func (s *Scheduler) runTask(name string, key postgres.LockKey, fn func(ctx context.Context) error) func() {
	return func() {
		ctx := context.Background()
		ran, err := s.locker.WithAdvisoryLock(ctx, key, fn)
		if err != nil {
			s.log.Errorw("scheduler task failed", "task", name, "error", err)
			return
		}
		if !ran {
			s.log.Debugw("scheduler task skipped, lock held elsewhere", "task", name)
		}
	}
}

// advanceSubscriptions runs the due period-boundary, trial-expiry, and
// activation transitions, spec §4.2 rows 1/3/5.
func (s *Scheduler) advanceSubscriptions(ctx context.Context) error {
	now := time.Now()

	due, err := s.subs.ListDuePeriodBoundary(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	for _, sub := range due {
		if _, err := s.subscriptionSvc.AdvancePeriodBoundary(ctx, sub.ID, now); err != nil {
			s.log.Errorw("advancing subscription period failed", "subscription_id", sub.ID, "error", err)
		}
	}

	trialing, err := s.subs.ListDueTrialExpiry(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	for _, sub := range trialing {
		hasPaymentMethod := false
		if cust, cerr := s.customers.Get(ctx, sub.CustomerID); cerr == nil {
			hasPaymentMethod = cust.DefaultPaymentMethodID != nil
		}
		if err := s.subscriptionSvc.ExpireTrial(ctx, sub.ID, hasPaymentMethod); err != nil {
			s.log.Errorw("expiring trial failed", "subscription_id", sub.ID, "error", err)
		}
	}

	activating, err := s.subs.ListDueActivation(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	for _, sub := range activating {
		if err := s.subscriptionSvc.Activate(ctx, sub.ID, now); err != nil {
			s.log.Errorw("activating subscription failed", "subscription_id", sub.ID, "error", err)
		}
	}
	return nil
}

// finalizeInvoices moves Draft invoices past their grace period to
// Pending, then finalizes every Pending invoice ready to go, spec §4.3
// "Grace period" and "Finalization".
func (s *Scheduler) finalizeInvoices(ctx context.Context) error {
	now := time.Now()

	if _, err := s.invoiceSvc.TransitionDraftsPastGracePeriod(ctx, now, s.batchSize); err != nil {
		return err
	}

	pending, err := s.invoices.ListPendingForFinalization(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	for _, inv := range pending {
		if _, err := s.invoiceSvc.Finalize(ctx, inv.ID, now); err != nil {
			s.log.Errorw("finalizing invoice failed", "invoice_id", inv.ID, "error", err)
		}
	}
	return nil
}

// retryPayments re-requests payment for Finalized invoices still carrying
// an outstanding balance whose issue_attempts hasn't exhausted the retry
// ceiling, spec §4.6 "bounded retries with exponential backoff" — here
// applied at the invoice level (re-enqueue), not inside a single PGMQ
// handler invocation.
func (s *Scheduler) retryPayments(ctx context.Context) error {
	due, err := s.invoices.ListFinalizedAwaitingPayment(ctx, s.maxIssueRetry, s.batchSize)
	if err != nil {
		return err
	}
	for _, inv := range due {
		cust, err := s.customers.Get(ctx, inv.CustomerID)
		if err != nil {
			s.log.Errorw("fetching customer for payment retry failed", "invoice_id", inv.ID, "error", err)
			continue
		}
		if !cust.ChargeAutomatically || cust.DefaultPaymentMethodID == nil {
			continue
		}
		if err := s.invoiceSvc.RequestPaymentRetry(ctx, inv.ID); err != nil {
			_ = s.invoices.IncrementIssueAttempts(ctx, inv.ID, strPtr(err.Error()))
			s.log.Errorw("requeueing payment request failed", "invoice_id", inv.ID, "error", err)
		}
	}
	return nil
}

// cleanupCheckouts is registered per config.SchedulerConfig's
// cleanup_checkouts_cron entry, spec §4.6/§5's task list, but this core
// doesn't model checkout sessions as a domain type — that surface belongs
// to the API layer's own Stripe Checkout integration (out of scope per
// spec.md's Non-goals: "the OAuth connector flows"). The cron entry stays
// wired so operators see every configured cadence actually firing; the
// body is a documented no-op rather than invented domain state.
func (s *Scheduler) cleanupCheckouts(ctx context.Context) error {
	s.log.Debugw("cleanup_checkouts fired: no checkout-session domain model in this core, nothing to do")
	return nil
}

// refreshFX fetches today's USD-relative rate table and upserts it, spec
// §3 "refreshed periodically".
func (s *Scheduler) refreshFX(ctx context.Context) error {
	rates, err := s.fxProvider.FetchRates(ctx)
	if err != nil {
		return err
	}
	row := &fxrate.HistoricalRatesFromUsd{
		Date:  time.Now().Truncate(24 * time.Hour),
		Rates: rates,
	}
	return s.fxRates.Upsert(ctx, row)
}

func strPtr(s string) *string { return &s }
