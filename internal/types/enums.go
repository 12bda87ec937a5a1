package types

// SubscriptionStatus is the lifecycle state of a subscription, spec §4.2.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingActivation  SubscriptionStatus = "pending_activation"
	SubscriptionStatusTrialActive        SubscriptionStatus = "trial_active"
	SubscriptionStatusActive             SubscriptionStatus = "active"
	SubscriptionStatusTrialExpired       SubscriptionStatus = "trial_expired"
	SubscriptionStatusPaused             SubscriptionStatus = "paused"
	SubscriptionStatusPendingCancellation SubscriptionStatus = "pending_cancellation"
	SubscriptionStatusCancelled          SubscriptionStatus = "cancelled"
	SubscriptionStatusEnded              SubscriptionStatus = "ended"
)

// BillingPeriod is the cadence at which a subscription cycles, spec §4.2.
type BillingPeriod string

const (
	BillingPeriodMonthly   BillingPeriod = "monthly"
	BillingPeriodQuarterly BillingPeriod = "quarterly"
	BillingPeriodAnnual    BillingPeriod = "annual"
)

// MonthsIn returns the number of calendar months a billing period spans.
func (p BillingPeriod) MonthsIn() int {
	switch p {
	case BillingPeriodMonthly:
		return 1
	case BillingPeriodQuarterly:
		return 3
	case BillingPeriodAnnual:
		return 12
	default:
		return 1
	}
}

// RecurringCadence governs how long a Recurring fee keeps emitting lines,
// spec §4.1.
type RecurringCadence string

const (
	CadenceCommitted RecurringCadence = "committed" // emits for a fixed number of cycles
	CadenceForever   RecurringCadence = "forever"   // emits every cycle for the subscription's life
	CadenceCustom    RecurringCadence = "custom"     // emits per a custom schedule
)

// BillingType distinguishes Advance (billed at period start) from Arrear
// (billed at period end), per the GLOSSARY.
type BillingType string

const (
	BillingTypeAdvance BillingType = "advance"
	BillingTypeArrear  BillingType = "arrear"
)

// FeeKind is the sum-type discriminant for a PriceComponent's fee, spec §4.1.
type FeeKind string

const (
	FeeKindOneTime    FeeKind = "one_time"
	FeeKindRecurring  FeeKind = "recurring"
	FeeKindRate       FeeKind = "rate"
	FeeKindSlotBased  FeeKind = "slot_based"
	FeeKindCapacity   FeeKind = "capacity"
	FeeKindUsageBased FeeKind = "usage_based"
)

// UsageModel selects the metered-pricing math within a UsageBased fee.
type UsageModel string

const (
	UsageModelPerUnit UsageModel = "per_unit"
	UsageModelTiered  UsageModel = "tiered"
	UsageModelVolume  UsageModel = "volume"
	UsageModelPackage UsageModel = "package"
	UsageModelMatrix  UsageModel = "matrix"
)

// AggregationType is the billable-metric aggregation function, spec §3.
type AggregationType string

const (
	AggregationSum           AggregationType = "sum"
	AggregationCount         AggregationType = "count"
	AggregationCountDistinct AggregationType = "count_distinct"
	AggregationMax           AggregationType = "max"
	AggregationMin           AggregationType = "min"
	AggregationMean          AggregationType = "mean"
	AggregationLatest        AggregationType = "latest"
)

// InvoiceStatus is the invoice lifecycle, spec §3/§4.3.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusFinalized     InvoiceStatus = "finalized"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

// DiscountKind is the coupon discount sum-type, spec §4.4.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// CancellationTiming distinguishes an end-of-period cancel from an
// immediate/backdated one, spec §4.2.
type CancellationTiming string

const (
	CancelEndOfBillingPeriod CancellationTiming = "end_of_billing_period"
	CancelAtDate             CancellationTiming = "at_date"
)

// OutboxStatus is the transactional outbox row state, spec §3/§4.6.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEventType enumerates the domain events the core can emit, spec §4.6.
type OutboxEventType string

const (
	EventInvoiceFinalized  OutboxEventType = "invoice.finalized"
	EventInvoiceVoided     OutboxEventType = "invoice.voided"
	EventSubscriptionCreated OutboxEventType = "subscription.created"
	EventTrialExpired      OutboxEventType = "subscription.trial_expired"
	EventSubscriptionCancelled OutboxEventType = "subscription.cancelled"
	EventPaymentRequested  OutboxEventType = "payment.requested"
	EventPaymentSucceeded  OutboxEventType = "payment.succeeded"
	EventPaymentFailed     OutboxEventType = "payment.failed"
	EventBillableMetricCreated OutboxEventType = "billable_metric.created"
	EventQuoteAccepted     OutboxEventType = "quote.accepted"
)

// QueueName is a PGMQ queue identifier, spec §4.6.
type QueueName string

const (
	QueuePDFRender      QueueName = "pdf_render"
	QueueWebhookOut     QueueName = "webhook_out"
	QueuePaymentRequest QueueName = "payment_request"
	QueueCRMSync        QueueName = "crm_sync"
	QueueQuoteConversion QueueName = "quote_conversion"
	QueueBillableMetricSync QueueName = "billable_metric_sync"
)

// IsAuditable reports whether a successfully processed message on this
// queue should be archived rather than deleted outright, spec §4.6's
// "those are either archived (for auditable events) or deleted". PDF
// rendering, payment requests, and quote conversion leave a durable
// business artifact worth keeping a trail of; webhook delivery and
// billable-metric sync are transient notifications, matching scenario
// S6's "PGMQ row deleted" on a successful webhook_out delivery.
func (q QueueName) IsAuditable() bool {
	switch q {
	case QueuePDFRender, QueuePaymentRequest, QueueQuoteConversion:
		return true
	default:
		return false
	}
}

// ErrorKind is the stable taxonomy spec §7 requires for every user-visible
// failure.
type ErrorKind string

const (
	ErrorKindInvalidArgument ErrorKind = "invalid_argument"
	ErrorKindNotFound        ErrorKind = "not_found"
	ErrorKindDuplicateValue  ErrorKind = "duplicate_value"
	ErrorKindInsufficientFunds ErrorKind = "insufficient_funds"
	ErrorKindPaymentProvider ErrorKind = "payment_provider_error"
	ErrorKindConcurrencyConflict ErrorKind = "concurrency_conflict"
	ErrorKindInitialization  ErrorKind = "initialization"
	ErrorKindInternal        ErrorKind = "internal"
)
