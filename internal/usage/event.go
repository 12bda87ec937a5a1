// Package usage implements the metering pipeline's ingestion contract and
// the fetch_usage aggregation query contract spec §4.5 defines. Ingestion
// routing is grounded on vidinfra-flexprice/internal/kafka/consumer.go's
// Watermill/Sarama MessageConsumer; aggregation is grounded on
// vidinfra-flexprice/internal/events/stores/clickhouse/aggregators.go's
// per-AggregationType query builders.
package usage

import (
	"time"
)

// Event is one raw usage event, spec §4.5.
type Event struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	Code           string            `json:"code"`
	CustomerID     *string           `json:"customer_id,omitempty"`
	CustomerAlias  *string           `json:"customer_alias,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Properties     map[string]string `json:"properties"`
	AllowBackfilling bool            `json:"allow_backfilling"`
}

// PreprocessedEvent is an Event enriched with its resolved billable metric,
// written to the de-duplicating preprocessed store, spec §4.5.
type PreprocessedEvent struct {
	Event
	BillableMetricID string `json:"billable_metric_id"`
	// DedupeKey is (tenant, code, metric, customer, day, timestamp, id)
	// per spec §4.5, computed by BuildDedupeKey.
	DedupeKey string `json:"dedupe_key"`
}

// BuildDedupeKey builds the preprocessed-store de-duplication key, spec
// §4.5: "de-duplicates on (tenant, code, metric, customer, day,
// timestamp, id)".
func BuildDedupeKey(tenantID, code, metricID, customerID string, ts time.Time, id string) string {
	day := ts.UTC().Format("2006-01-02")
	return tenantID + "|" + code + "|" + metricID + "|" + customerID + "|" + day + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + id
}
