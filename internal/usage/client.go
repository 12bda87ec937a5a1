package usage

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/pricing"
)

// Client is the fetch_usage contract §4.5 exposes to the pricing layer.
// The pricing package itself stays pure and never imports this package —
// internal/subscriptionsvc/invoicesvc call Client and hand the result in
// as a pricing.UsageData value.
type Client interface {
	FetchUsage(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error)
}

// Ingestor validates and routes raw events to the raw Kafka topic, spec
// §4.5.
type Ingestor interface {
	Ingest(ctx context.Context, ev Event) error
}

// Preprocessor consumes the raw topic, resolves each event's billable
// metric, and writes to the preprocessed store with the dedupe key
// applied, spec §4.5.
type Preprocessor interface {
	Process(ctx context.Context, ev Event, metricID string) error
}

// Store is the preprocessed-event columnar store contract (ClickHouse in
// this implementation).
type Store interface {
	Write(ctx context.Context, pe PreprocessedEvent) error
	// Aggregate runs one of the seven aggregation functions over
	// [period.Start, period.End) for the given metric/customer, spec
	// §4.5.
	Aggregate(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error)
	// LatestValueBefore supports the Latest aggregation's carry-forward
	// rule: "when no value exists in the window, the latest value up to
	// start".
	LatestValueBefore(ctx context.Context, tenantID, customerID, metricID string, before time.Time) (*pricing.UsageDatum, bool, error)
}

type client struct {
	store Store
}

// NewClient adapts a Store into the pricing-facing Client contract.
func NewClient(store Store) Client {
	return &client{store: store}
}

func (c *client) FetchUsage(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	data, err := c.store.Aggregate(ctx, tenantID, customerID, metric, period)
	if err != nil {
		return pricing.UsageData{}, err
	}
	if metric.AggregationType == "latest" && len(data.Data) == 0 {
		// Carry-forward: no value in the window, fall back to the
		// latest value at or before the window start, spec §4.5.
		latest, ok, err := c.store.LatestValueBefore(ctx, tenantID, customerID, metric.ID, period.Start)
		if err != nil {
			return pricing.UsageData{}, err
		}
		if ok {
			data.Data = []pricing.UsageDatum{*latest}
		}
	}
	return data, nil
}
