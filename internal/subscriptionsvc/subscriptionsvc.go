// Package subscriptionsvc drives the subscription lifecycle state machine,
// spec §4.2. Grounded on
// vidinfra-flexprice/internal/service/subscription.go's service-layer
// shape (constructor takes repositories + logger, methods are one state
// transition each) but rebuilt against this module's plain Repository
// interfaces instead of ent client calls.
package subscriptionsvc

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/outbox"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// Service implements the transitions in spec §4.2's state table.
type Service struct {
	db       postgres.IClient
	subs     subscription.Repository
	plans    plan.Repository
	outboxes outbox.Repository
	log      *logger.Logger
}

func New(db postgres.IClient, subs subscription.Repository, plans plan.Repository, outboxes outbox.Repository, log *logger.Logger) *Service {
	return &Service{db: db, subs: subs, plans: plans, outboxes: outboxes, log: log}
}

// Activate transitions PendingActivation -> TrialActive (if a trial is
// configured on the plan version) or Active, spec §4.2 row 1.
func (s *Service) Activate(ctx context.Context, subscriptionID string, now time.Time) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != types.SubscriptionStatusPendingActivation {
			return ierr.NewErrorf("subscription %s is not pending activation", subscriptionID).Mark(ierr.ErrValidation)
		}

		version, err := s.plans.GetVersion(ctx, sub.PlanVersionID)
		if err != nil {
			return err
		}

		sub.ActivatedAt = &now
		start, end := subscription.AdvancePeriod(sub.BillingStartDate, sub.BillingDayAnchor, sub.EffectivePeriod, 0)
		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = &end
		sub.CycleIndex = 0

		if version.TrialDurationDays != nil && *version.TrialDurationDays > 0 {
			sub.Status = types.SubscriptionStatusTrialActive
		} else {
			sub.Status = types.SubscriptionStatusActive
		}

		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		return s.appendEvent(ctx, types.EventSubscriptionCreated, sub.ID)
	})
}

// ExpireTrial transitions TrialActive -> Active (if a payment method is on
// file) or TrialExpired, spec §4.2 row 2/3.
func (s *Service) ExpireTrial(ctx context.Context, subscriptionID string, hasPaymentMethod bool) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != types.SubscriptionStatusTrialActive {
			return ierr.NewErrorf("subscription %s is not trialing", subscriptionID).Mark(ierr.ErrValidation)
		}

		if hasPaymentMethod {
			// Auto-convert to the paying plan: TrialingPlanID served
			// pricing during the trial, the subscription's own
			// plan_version_id becomes authoritative again now that it is
			// no longer trialing (spec §4.2 "Effective-plan resolution").
			sub.Status = types.SubscriptionStatusActive
			sub.TrialingPlanID = nil
			if err := s.subs.Update(ctx, sub); err != nil {
				return err
			}
			return nil
		}

		sub.Status = types.SubscriptionStatusTrialExpired
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		return s.appendEvent(ctx, types.EventTrialExpired, sub.ID)
	})
}

// RequestCancellation applies spec §4.2's two cancel rows: EndOfBillingPeriod
// schedules a PendingCancellation, a past-or-now date cancels immediately.
func (s *Service) RequestCancellation(ctx context.Context, subscriptionID string, timing types.CancellationTiming, at time.Time, reason *string, now time.Time) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != types.SubscriptionStatusActive {
			return ierr.NewErrorf("subscription %s is not active", subscriptionID).Mark(ierr.ErrValidation)
		}

		sub.CancellationReason = reason

		if timing == types.CancelEndOfBillingPeriod {
			sub.Status = types.SubscriptionStatusPendingCancellation
			return s.subs.Update(ctx, sub)
		}

		// CancelAtDate with at <= now: cancel immediately, spec §4.2 row 4.
		if !at.After(now) {
			sub.Status = types.SubscriptionStatusCancelled
			sub.CanceledAt = &now
			if err := s.subs.Update(ctx, sub); err != nil {
				return err
			}
			return s.appendEvent(ctx, types.EventSubscriptionCancelled, sub.ID)
		}

		sub.Status = types.SubscriptionStatusPendingCancellation
		return s.subs.Update(ctx, sub)
	})
}

// AdvancePeriodBoundary handles the period-boundary row: Active advances to
// its next cycle; PendingCancellation finalizes into Cancelled, spec §4.2
// row 5. Returns true if the subscription is still live (so the caller
// should build a draft invoice for the new cycle).
func (s *Service) AdvancePeriodBoundary(ctx context.Context, subscriptionID string, now time.Time) (stillActive bool, err error) {
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		sub, getErr := s.subs.GetForUpdate(ctx, subscriptionID)
		if getErr != nil {
			return getErr
		}

		switch sub.Status {
		case types.SubscriptionStatusPendingCancellation:
			sub.Status = types.SubscriptionStatusCancelled
			sub.CanceledAt = &now
			if updErr := s.subs.Update(ctx, sub); updErr != nil {
				return updErr
			}
			stillActive = false
			return s.appendEvent(ctx, types.EventSubscriptionCancelled, sub.ID)

		case types.SubscriptionStatusActive:
			sub.CycleIndex++
			start, end := subscription.AdvancePeriod(sub.BillingStartDate, sub.BillingDayAnchor, sub.EffectivePeriod, sub.CycleIndex)
			sub.CurrentPeriodStart = start
			sub.CurrentPeriodEnd = &end
			stillActive = true
			return s.subs.Update(ctx, sub)

		default:
			return ierr.NewErrorf("subscription %s is not due for period advancement", subscriptionID).Mark(ierr.ErrValidation)
		}
	})
	return stillActive, err
}

// Pause suspends invoice generation regardless of the current state (spec
// §4.2's wildcard "pause" row).
func (s *Service) Pause(ctx context.Context, subscriptionID string) error {
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		sub.Status = types.SubscriptionStatusPaused
		return s.subs.Update(ctx, sub)
	})
}

func (s *Service) appendEvent(ctx context.Context, eventType types.OutboxEventType, resourceID string) error {
	row := &outbox.Row{
		ID:         types.NewID(),
		EventType:  eventType,
		TenantID:   types.GetTenantID(ctx),
		ResourceID: resourceID,
		Status:     types.OutboxStatusPending,
	}
	return s.outboxes.Append(ctx, row)
}
