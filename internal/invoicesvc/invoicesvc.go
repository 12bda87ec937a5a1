// Package invoicesvc builds and finalizes invoices, spec §4.3. It wires
// internal/pricing's pure evaluator together with usage fetch_usage, coupon
// application, and the customer-balance ledger, following the same
// postgres.IClient-dependency shape internal/subscriptionsvc established.
package invoicesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/coupon"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/fxrate"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoicingentity"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/ledger"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/outbox"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/pricing"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/meteroid-oss/meteroid-sub006/internal/usage"
	"github.com/shopspring/decimal"
)

// couponDescriptionPrefix tags a coupon-discount line item with the
// AppliedCoupon.ID it came from, so Finalize can find the coupons to
// bookkeep without re-deriving them from potentially-drifted state.
const couponDescriptionPrefix = "coupon:"

// Service computes draft invoices and drives them through the grace
// period into finalization, spec §4.3.
type Service struct {
	db                postgres.IClient
	subs              subscription.Repository
	plans             plan.Repository
	customers         customer.Repository
	invoicingEntities invoicingentity.Repository
	invoices          invoice.Repository
	coupons           coupon.Repository
	ledger            ledger.Repository
	fx                fxrate.Repository
	metrics           billablemetric.Repository
	outboxes          outbox.Repository
	usageClient       usage.Client
	log               *logger.Logger
}

func New(
	db postgres.IClient,
	subs subscription.Repository,
	plans plan.Repository,
	customers customer.Repository,
	invoicingEntities invoicingentity.Repository,
	invoices invoice.Repository,
	coupons coupon.Repository,
	ledgerRepo ledger.Repository,
	fx fxrate.Repository,
	metrics billablemetric.Repository,
	outboxes outbox.Repository,
	usageClient usage.Client,
	log *logger.Logger,
) *Service {
	return &Service{
		db:                db,
		subs:              subs,
		plans:             plans,
		customers:         customers,
		invoicingEntities: invoicingEntities,
		invoices:          invoices,
		coupons:           coupons,
		ledger:            ledgerRepo,
		fx:                fx,
		metrics:           metrics,
		outboxes:          outboxes,
		usageClient:       usageClient,
		log:               log,
	}
}

// BuildDraft computes and persists the Draft invoice for one (subscription,
// invoice_date) pair, spec §4.3 "Draft creation" steps 1-4. Safe to call
// again for the same still-Draft invoice during the grace period to pick up
// late usage (spec §4.3 "last-minute usage can still adjust amounts") —
// callers pass the existing invoice's ID via refreshID to update in place
// instead of creating a duplicate.
func (s *Service) BuildDraft(ctx context.Context, subscriptionID string, invoiceDate time.Time, refreshID *string) (*invoice.Invoice, error) {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.CurrentPeriodEnd == nil {
		return nil, ierr.NewErrorf("subscription %s has no current period", subscriptionID).Mark(ierr.ErrValidation)
	}
	version, err := s.plans.GetVersion(ctx, sub.EffectivePlanVersionID())
	if err != nil {
		return nil, err
	}
	cust, err := s.customers.Get(ctx, sub.CustomerID)
	if err != nil {
		return nil, err
	}
	entity, err := s.invoicingEntities.Get(ctx, cust.InvoicingEntityID)
	if err != nil {
		return nil, err
	}

	inv, creditCents, err := s.computeInvoice(ctx, sub, version, cust, entity, invoiceDate)
	if err != nil {
		return nil, err
	}

	if refreshID != nil {
		inv.ID = *refreshID
		if err := s.invoices.Update(ctx, inv); err != nil {
			return nil, err
		}
	} else {
		if err := s.invoices.Create(ctx, inv); err != nil {
			return nil, err
		}
	}

	if creditCents > 0 {
		pending := &ledger.PendingTx{
			ID:          types.NewID(),
			CustomerID:  cust.ID,
			Kind:        ledger.TxKindDebit,
			AmountCents: creditCents,
			InvoiceID:   inv.ID,
			BaseModel:   types.BaseModel{TenantID: types.GetTenantID(ctx), Status: types.StatusPublished, CreatedAt: invoiceDate, UpdatedAt: invoiceDate},
		}
		if err := s.ledger.StagePending(ctx, pending); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// computeInvoice is the pure(ish) computation behind BuildDraft: price
// components via internal/pricing, coupon discounts via internal/domain/coupon,
// tax, and the customer-balance credit preview (spec §4.3 steps 1-4). It
// touches repositories (usage, metrics, FX, coupons) but never mutates
// anything — callers persist the result.
func (s *Service) computeInvoice(
	ctx context.Context,
	sub *subscription.Subscription,
	version *plan.PlanVersion,
	cust *customer.Customer,
	entity *invoicingentity.InvoicingEntity,
	invoiceDate time.Time,
) (*invoice.Invoice, int64, error) {
	period := pricing.Period{Start: sub.CurrentPeriodStart, End: *sub.CurrentPeriodEnd}
	fullStart := period.Start
	if sub.CycleIndex == 0 {
		fullStart = subscription.AnchorBaseline(sub.BillingStartDate, sub.BillingDayAnchor)
	}
	details := pricing.SubscriptionDetails{
		CurrentPeriod:   period,
		CycleIndex:      sub.CycleIndex,
		Currency:        version.Currency,
		Timezone:        cust.Timezone,
		FullPeriodStart: fullStart,
	}

	lines, err := s.evaluateComponents(ctx, sub, version, details, period)
	if err != nil {
		return nil, 0, err
	}
	addOnLines, err := s.evaluateAddOns(ctx, sub, version, details)
	if err != nil {
		return nil, 0, err
	}
	lines = append(lines, addOnLines...)

	var subtotal int64
	for _, l := range lines {
		subtotal += l.AmountSubtotal
	}

	discountLines, discountTotal, err := s.applyCoupons(ctx, sub.ID, version.Currency, subtotal, invoiceDate)
	if err != nil {
		return nil, 0, err
	}
	lines = append(lines, discountLines...)

	taxableSubtotal := subtotal - discountTotal
	if taxableSubtotal < 0 {
		taxableSubtotal = 0
	}
	taxCents := computeTax(taxableSubtotal, cust.CustomVATRate, version.Currency)

	preCreditTotal := taxableSubtotal + taxCents
	creditApplied := cust.BalanceCents
	if creditApplied > preCreditTotal {
		creditApplied = preCreditTotal
	}
	if creditApplied < 0 {
		creditApplied = 0
	}
	totalCents := preCreditTotal - creditApplied

	dueDate := invoiceDate.AddDate(0, 0, int(version.NetTermsDays))
	inv := &invoice.Invoice{
		ID:                  types.NewID(),
		CustomerID:          cust.ID,
		SubscriptionID:      &sub.ID,
		InvoicingEntityID:   entity.ID,
		Status:              types.InvoiceStatusDraft,
		InvoiceDate:         invoiceDate,
		DueDate:             &dueDate,
		Currency:            version.Currency,
		LineItems:           lines,
		AppliedCreditsCents: creditApplied,
		TaxAmountCents:      taxCents,
		SubtotalCents:       taxableSubtotal,
		TotalCents:          totalCents,
		BaseModel:           types.BaseModel{TenantID: types.GetTenantID(ctx), Status: types.StatusPublished, CreatedAt: invoiceDate, UpdatedAt: invoiceDate},
	}
	return inv, creditApplied, nil
}

func (s *Service) evaluateComponents(ctx context.Context, sub *subscription.Subscription, version *plan.PlanVersion, details pricing.SubscriptionDetails, period pricing.Period) ([]invoice.LineItem, error) {
	components, err := s.subs.ListComponents(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	var lines []invoice.LineItem
	for _, c := range components {
		fee, err := decodeFee(c.CommittedFeeJSON)
		if err != nil {
			return nil, err
		}
		input := pricing.Input{
			Subscription: details,
			Component: &price.PriceComponent{
				Name:          c.Name,
				Currency:      version.Currency,
				BillingPeriod: version.BillingPeriod,
				Fee:           fee,
			},
			Overrides: pricing.Overrides{ForcedQuantity: c.OverrideQuantity},
		}
		if err := s.attachUsageInputs(ctx, sub, &fee, &input, period); err != nil {
			return nil, err
		}
		result, err := pricing.EvaluateFee(input)
		if err != nil {
			return nil, err
		}
		lines = append(lines, result.Lines...)
	}
	return lines, nil
}

func (s *Service) evaluateAddOns(ctx context.Context, sub *subscription.Subscription, version *plan.PlanVersion, details pricing.SubscriptionDetails) ([]invoice.LineItem, error) {
	addOns, err := s.subs.ListAddOns(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	var lines []invoice.LineItem
	for _, a := range addOns {
		fee, err := decodeFee(a.CommittedFeeJSON)
		if err != nil {
			return nil, err
		}
		input := pricing.Input{
			Subscription: details,
			Component: &price.PriceComponent{
				Name:          a.Name,
				Currency:      version.Currency,
				BillingPeriod: version.BillingPeriod,
				Fee:           fee,
			},
		}
		result, err := pricing.EvaluateFee(input)
		if err != nil {
			return nil, err
		}
		lines = append(lines, result.Lines...)
	}
	return lines, nil
}

// attachUsageInputs resolves the usage/slot data a fee variant needs
// before it can be evaluated — UsageBased and Capacity read aggregated
// usage, SlotBased reads the slot-transaction ledger as running-total
// events (spec §4.1).
func (s *Service) attachUsageInputs(ctx context.Context, sub *subscription.Subscription, fee *price.Fee, input *pricing.Input, period pricing.Period) error {
	tenantID := types.GetTenantID(ctx)
	switch fee.Kind {
	case types.FeeKindUsageBased:
		if fee.UsageBased == nil {
			return nil
		}
		metric, err := s.metrics.Get(ctx, fee.UsageBased.MetricID)
		if err != nil {
			return err
		}
		data, err := s.usageClient.FetchUsage(ctx, tenantID, sub.CustomerID, metric, period)
		if err != nil {
			return err
		}
		input.Usage = &data
	case types.FeeKindCapacity:
		if fee.Capacity == nil {
			return nil
		}
		metric, err := s.metrics.Get(ctx, fee.Capacity.MetricID)
		if err != nil {
			return err
		}
		data, err := s.usageClient.FetchUsage(ctx, tenantID, sub.CustomerID, metric, period)
		if err != nil {
			return err
		}
		input.Usage = &data
	case types.FeeKindSlotBased:
		startCount, err := s.subs.CurrentSlotCount(ctx, sub.ID, period.Start)
		if err != nil {
			return err
		}
		txs, err := s.subs.ListSlotTransactions(ctx, sub.ID, period.Start, period.End)
		if err != nil {
			return err
		}
		running := startCount
		events := make([]pricing.SlotEvent, 0, len(txs)+1)
		events = append(events, pricing.SlotEvent{EffectiveAt: period.Start, Count: running})
		for _, t := range txs {
			running += t.Delta
			events = append(events, pricing.SlotEvent{EffectiveAt: t.EffectiveAt, Count: running})
		}
		input.SlotEvents = events
	}
	return nil
}

func decodeFee(raw []byte) (price.Fee, error) {
	var fee price.Fee
	if err := json.Unmarshal(raw, &fee); err != nil {
		return price.Fee{}, ierr.WithError(err).WithMessage("decoding committed fee snapshot").Mark(ierr.ErrValidation)
	}
	return fee, nil
}

// applyCoupons implements spec §4.4: eligibility, deterministic
// creation-time ordering, percentage-off-original / fixed-off-remaining
// application, and FX conversion for a Fixed coupon in a foreign
// currency. It returns synthetic negative line items (frozen into the
// invoice at draft time, spec §4.3) plus the total discount in minor
// units.
func (s *Service) applyCoupons(ctx context.Context, subscriptionID, invoiceCurrency string, subtotalMinor int64, invoiceDate time.Time) ([]invoice.LineItem, int64, error) {
	applied, err := s.coupons.ListActiveForSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].CreatedAt.Before(applied[j].CreatedAt) })

	original := types.FromMinorUnits(subtotalMinor, invoiceCurrency)
	remaining := original
	var lines []invoice.LineItem
	var discountTotal int64

	for _, ac := range applied {
		c, err := s.coupons.Get(ctx, ac.CouponID)
		if err != nil {
			return nil, 0, err
		}
		if !ac.IsEligible(c, invoiceDate) {
			continue
		}
		var result coupon.DiscountResult
		switch c.DiscountKind {
		case types.DiscountPercentage:
			result = coupon.ApplyDiscount(c, original, decimal.Zero)
		case types.DiscountFixed:
			remainingFixed, err := s.remainingFixedAmount(ctx, c, ac, invoiceCurrency, invoiceDate)
			if err != nil {
				return nil, 0, err
			}
			result = coupon.ApplyDiscount(c, remaining, remainingFixed)
		default:
			continue
		}
		if result.AmountOff.IsZero() {
			continue
		}
		remaining = remaining.Sub(result.AmountOff)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		minorOff := types.ToMinorUnits(result.AmountOff, invoiceCurrency)
		discountTotal += minorOff
		desc := couponDescriptionPrefix + ac.ID
		lines = append(lines, invoice.LineItem{
			LocalID:        types.NewID(),
			Name:           fmt.Sprintf("Coupon: %s", c.Name),
			AmountSubtotal: -minorOff,
			TaxableAmount:  -minorOff,
			AmountTotal:    -minorOff,
			StartDate:      invoiceDate,
			EndDate:        invoiceDate,
			Description:    &desc,
		})
	}
	return lines, discountTotal, nil
}

// remainingFixedAmount converts a Fixed coupon's configured amount into
// invoice currency (once, via the FX row nearest-but-not-after
// invoiceDate — "never recomputed later", spec §4.4) and nets out what an
// applies-once coupon has already spent.
func (s *Service) remainingFixedAmount(ctx context.Context, c *coupon.Coupon, ac *coupon.AppliedCoupon, invoiceCurrency string, invoiceDate time.Time) (decimal.Decimal, error) {
	if c.FixedAmount == nil {
		return decimal.Zero, nil
	}
	fixedCurrency := invoiceCurrency
	if c.FixedCurrency != nil {
		fixedCurrency = *c.FixedCurrency
	}
	amount := *c.FixedAmount
	if fixedCurrency != invoiceCurrency {
		rates, err := s.fx.NearestOnOrBefore(ctx, invoiceDate)
		if err != nil {
			return decimal.Zero, err
		}
		converted, ok := rates.Convert(amount, fixedCurrency, invoiceCurrency)
		if !ok {
			return decimal.Zero, ierr.NewErrorf("no FX rate from %s to %s on or before %s", fixedCurrency, invoiceCurrency, invoiceDate).Mark(ierr.ErrValidation)
		}
		amount = converted
	}
	if c.AppliesOnce && ac.AppliedAmount != nil {
		amount = amount.Sub(*ac.AppliedAmount)
		if amount.IsNegative() {
			amount = decimal.Zero
		}
	}
	return amount, nil
}

// computeTax applies the customer's custom VAT rate (a percentage, e.g.
// "20") against the taxable subtotal. No rate on file means untaxed —
// invoicing-entity-level default tax tables are an Open Question spec §9
// leaves to a future jurisdiction-rules module.
func computeTax(taxableSubtotalMinor int64, customVATRate *string, currency string) int64 {
	if customVATRate == nil {
		return 0
	}
	rate, err := decimal.NewFromString(*customVATRate)
	if err != nil || rate.IsZero() {
		return 0
	}
	amount := decimal.NewFromInt(taxableSubtotalMinor).Mul(rate).Div(decimal.NewFromInt(100))
	return amount.Round(0).IntPart()
}

// TransitionDraftsPastGracePeriod moves every Draft invoice whose grace
// period has elapsed to Pending, spec §4.3 "Grace period".
func (s *Service) TransitionDraftsPastGracePeriod(ctx context.Context, asOf time.Time, limit int) (int, error) {
	drafts, err := s.invoices.ListDraftsPastGracePeriod(ctx, asOf, limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, inv := range drafts {
		inv.Status = types.InvoiceStatusPending
		if err := s.invoices.Update(ctx, inv); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Finalize runs spec §4.3's transactional finalization: lock the
// invoicing entity, reserve the next number, freeze amounts (already
// computed at draft time), commit pending balance debits, bookkeep
// coupons, append the InvoiceFinalized outbox row, and enqueue a payment
// request when the customer auto-charges. Returns false, nil if the
// invoice was already finalized by a previous or racing call — the
// exactly-once guarantee spec §4.3 calls for.
func (s *Service) Finalize(ctx context.Context, invoiceID string, now time.Time) (bool, error) {
	var finalized bool
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != types.InvoiceStatusDraft && inv.Status != types.InvoiceStatusPending {
			return nil
		}

		entity, err := s.invoicingEntities.LockForFinalization(ctx, inv.InvoicingEntityID)
		if err != nil {
			return err
		}
		seq, err := s.invoicingEntities.ReserveNextNumber(ctx, entity.ID)
		if err != nil {
			return err
		}
		number := invoicingentity.FormatInvoiceNumber(entity.NumberPattern, inv.InvoiceDate.Year(), seq)

		ok, err := s.invoices.FinalizeIfDraftOrPending(ctx, inv.ID, number, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		finalized = true

		pendings, err := s.ledger.ListPendingForInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		for _, p := range pendings {
			if _, err := s.ledger.CommitPending(ctx, p); err != nil {
				return err
			}
		}

		if inv.SubscriptionID != nil {
			if err := s.recordCouponApplications(ctx, *inv.SubscriptionID, inv, now); err != nil {
				return err
			}
		}

		if err := s.appendOutbox(ctx, types.EventInvoiceFinalized, inv.ID); err != nil {
			return err
		}

		cust, err := s.customers.Get(ctx, inv.CustomerID)
		if err != nil {
			return err
		}
		if cust.ChargeAutomatically && cust.DefaultPaymentMethodID != nil {
			if err := s.appendOutbox(ctx, types.EventPaymentRequested, inv.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return finalized, err
}

// recordCouponApplications matches the frozen coupon-discount line items
// back to their AppliedCoupon rows (via the couponDescriptionPrefix tag)
// and persists applied_count/applied_amount, deactivating exhausted
// coupons, spec §4.3 step 5.
func (s *Service) recordCouponApplications(ctx context.Context, subscriptionID string, inv *invoice.Invoice, now time.Time) error {
	if len(inv.LineItems) == 0 {
		return nil
	}
	applied, err := s.coupons.ListActiveForSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	byID := make(map[string]*coupon.AppliedCoupon, len(applied))
	for _, ac := range applied {
		byID[ac.ID] = ac
	}
	for _, line := range inv.LineItems {
		if line.Description == nil || len(*line.Description) <= len(couponDescriptionPrefix) {
			continue
		}
		if (*line.Description)[:len(couponDescriptionPrefix)] != couponDescriptionPrefix {
			continue
		}
		appliedCouponID := (*line.Description)[len(couponDescriptionPrefix):]
		ac, ok := byID[appliedCouponID]
		if !ok {
			continue
		}
		c, err := s.coupons.Get(ctx, ac.CouponID)
		if err != nil {
			return err
		}
		discount := types.FromMinorUnits(-line.AmountTotal, inv.Currency)
		ac.AppliedCount++
		if ac.AppliedAmount == nil {
			ac.AppliedAmount = &discount
		} else {
			sum := ac.AppliedAmount.Add(discount)
			ac.AppliedAmount = &sum
		}
		ac.LastAppliedAt = &now
		if c.DiscountKind == types.DiscountFixed && c.AppliesOnce && c.FixedAmount != nil && ac.AppliedAmount.GreaterThanOrEqual(*c.FixedAmount) {
			ac.IsActive = false
		}
		if c.RecurringValue != nil && ac.AppliedCount >= *c.RecurringValue {
			ac.IsActive = false
		}
		if err := s.coupons.RecordApplication(ctx, ac); err != nil {
			return err
		}
	}
	return nil
}

// RequestPaymentRetry re-enqueues a PaymentRequested outbox row for an
// already-finalized invoice still carrying a balance, spec §4.6's
// at-least-once delivery model applied at the scheduler level: a prior
// PaymentRequest attempt that never succeeded (card declined, PGMQ
// message exhausted its poison-pill ceiling) gets a fresh dispatch rather
// than being stuck until a human intervenes.
func (s *Service) RequestPaymentRetry(ctx context.Context, invoiceID string) error {
	return s.appendOutbox(ctx, types.EventPaymentRequested, invoiceID)
}

func (s *Service) appendOutbox(ctx context.Context, eventType types.OutboxEventType, resourceID string) error {
	row := &outbox.Row{
		ID:         types.NewID(),
		EventType:  eventType,
		TenantID:   types.GetTenantID(ctx),
		ResourceID: resourceID,
		Status:     types.OutboxStatusPending,
		CreatedAt:  time.Now(),
	}
	return s.outboxes.Append(ctx, row)
}
