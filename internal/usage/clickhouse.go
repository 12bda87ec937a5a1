package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/meteroid-oss/meteroid-sub006/internal/config"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/pricing"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
)

// ClickHouseStore is the columnar store backing raw + preprocessed usage
// events, spec §4.5. Query shapes are grounded on
// vidinfra-flexprice/internal/events/stores/clickhouse/aggregators.go's
// per-AggregationType GetQuery builders.
type ClickHouseStore struct {
	conn clickhouse.Conn
	log  *logger.Logger
}

func NewClickHouseStore(cfg *config.ClickHouseConfig, log *logger.Logger) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(cfg.GetClientOptions())
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to open clickhouse connection").Mark(ierr.ErrInitialization)
	}
	return &ClickHouseStore{conn: conn, log: log}, nil
}

func (s *ClickHouseStore) Write(ctx context.Context, pe PreprocessedEvent) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO usage_events_preprocessed
			(id, tenant_id, code, billable_metric_id, customer_id, timestamp, properties, dedupe_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pe.ID, pe.TenantID, pe.Code, pe.BillableMetricID, derefOr(pe.CustomerID, ""), pe.Timestamp, pe.Properties, pe.DedupeKey,
	)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to write preprocessed usage event").Mark(ierr.ErrSystem)
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func formatCH(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// Aggregate runs the aggregation matching metric.AggregationType over
// [period.Start, period.End), spec §4.5. A metric with a segmentation
// matrix is grouped by its two dimensions instead.
func (s *ClickHouseStore) Aggregate(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	if metric.SegmentationMatrix != nil {
		return s.aggregateMatrix(ctx, tenantID, customerID, metric, period)
	}
	switch metric.AggregationType {
	case types.AggregationSum, types.AggregationMax, types.AggregationMin, types.AggregationMean:
		return s.aggregateScalar(ctx, tenantID, customerID, metric, period)
	case types.AggregationCount:
		return s.aggregateCount(ctx, tenantID, customerID, metric, period)
	case types.AggregationCountDistinct:
		return s.aggregateCountDistinct(ctx, tenantID, customerID, metric, period)
	case types.AggregationLatest:
		return s.aggregateLatest(ctx, tenantID, customerID, metric, period)
	default:
		return pricing.UsageData{}, ierr.NewErrorf("unsupported aggregation type %q", metric.AggregationType).Mark(ierr.ErrValidation)
	}
}

func (s *ClickHouseStore) chFunc(agg types.AggregationType) string {
	switch agg {
	case types.AggregationSum:
		return "sum"
	case types.AggregationMax:
		return "max"
	case types.AggregationMin:
		return "min"
	case types.AggregationMean:
		return "avg"
	default:
		return "sum"
	}
}

func (s *ClickHouseStore) aggregateScalar(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	key := "value"
	if metric.AggregationKey != nil {
		key = *metric.AggregationKey
	}
	query := fmt.Sprintf(`
		SELECT %s(JSONExtractFloat(properties, '%s'))
		FROM usage_events_preprocessed
		WHERE tenant_id = '%s' AND billable_metric_id = '%s' AND customer_id = '%s'
			AND timestamp >= toDateTime64('%s', 3) AND timestamp < toDateTime64('%s', 3)
	`, s.chFunc(metric.AggregationType), key, tenantID, metric.ID, customerID, formatCH(period.Start), formatCH(period.End))

	var value float64
	if err := s.conn.QueryRow(ctx, query).Scan(&value); err != nil {
		return pricing.UsageData{}, ierr.WithError(err).WithHint("usage aggregation query failed").Mark(ierr.ErrSystem)
	}
	return pricing.UsageData{
		Data:   []pricing.UsageDatum{{Value: decimal.NewFromFloat(value)}},
		Period: period,
	}, nil
}

func (s *ClickHouseStore) aggregateCount(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	query := fmt.Sprintf(`
		SELECT count(*)
		FROM usage_events_preprocessed
		WHERE tenant_id = '%s' AND billable_metric_id = '%s' AND customer_id = '%s'
			AND timestamp >= toDateTime64('%s', 3) AND timestamp < toDateTime64('%s', 3)
	`, tenantID, metric.ID, customerID, formatCH(period.Start), formatCH(period.End))

	var count uint64
	if err := s.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return pricing.UsageData{}, ierr.WithError(err).WithHint("usage count query failed").Mark(ierr.ErrSystem)
	}
	return pricing.UsageData{Data: []pricing.UsageDatum{{Value: decimal.NewFromInt(int64(count))}}, Period: period}, nil
}

func (s *ClickHouseStore) aggregateCountDistinct(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	if metric.AggregationKey == nil {
		return pricing.UsageData{}, ierr.NewError("count_distinct requires aggregation_key").Mark(ierr.ErrValidation)
	}
	query := fmt.Sprintf(`
		SELECT uniqExact(JSONExtractString(properties, '%s'))
		FROM usage_events_preprocessed
		WHERE tenant_id = '%s' AND billable_metric_id = '%s' AND customer_id = '%s'
			AND timestamp >= toDateTime64('%s', 3) AND timestamp < toDateTime64('%s', 3)
	`, *metric.AggregationKey, tenantID, metric.ID, customerID, formatCH(period.Start), formatCH(period.End))

	var count uint64
	if err := s.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return pricing.UsageData{}, ierr.WithError(err).WithHint("usage count_distinct query failed").Mark(ierr.ErrSystem)
	}
	return pricing.UsageData{Data: []pricing.UsageDatum{{Value: decimal.NewFromInt(int64(count))}}, Period: period}, nil
}

// aggregateLatest returns the single highest-timestamp value in the
// window, spec §4.5; the carry-forward fallback lives in Client.FetchUsage.
func (s *ClickHouseStore) aggregateLatest(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	key := "value"
	if metric.AggregationKey != nil {
		key = *metric.AggregationKey
	}
	query := fmt.Sprintf(`
		SELECT argMax(JSONExtractFloat(properties, '%s'), timestamp)
		FROM usage_events_preprocessed
		WHERE tenant_id = '%s' AND billable_metric_id = '%s' AND customer_id = '%s'
			AND timestamp >= toDateTime64('%s', 3) AND timestamp < toDateTime64('%s', 3)
	`, key, tenantID, metric.ID, customerID, formatCH(period.Start), formatCH(period.End))

	var value float64
	if err := s.conn.QueryRow(ctx, query).Scan(&value); err != nil {
		return pricing.UsageData{Data: nil, Period: period}, nil
	}
	return pricing.UsageData{Data: []pricing.UsageDatum{{Value: decimal.NewFromFloat(value)}}, Period: period}, nil
}

func (s *ClickHouseStore) LatestValueBefore(ctx context.Context, tenantID, customerID, metricID string, before time.Time) (*pricing.UsageDatum, bool, error) {
	query := fmt.Sprintf(`
		SELECT argMax(JSONExtractFloat(properties, 'value'), timestamp)
		FROM usage_events_preprocessed
		WHERE tenant_id = '%s' AND billable_metric_id = '%s' AND customer_id = '%s'
			AND timestamp < toDateTime64('%s', 3)
	`, tenantID, metricID, customerID, formatCH(before))

	var value float64
	if err := s.conn.QueryRow(ctx, query).Scan(&value); err != nil {
		return nil, false, nil
	}
	return &pricing.UsageDatum{Value: decimal.NewFromFloat(value)}, true, nil
}

// aggregateMatrix groups by the metric's two configured dimensions, spec
// §4.5 "Matrix aggregation".
func (s *ClickHouseStore) aggregateMatrix(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	m := metric.SegmentationMatrix
	query := fmt.Sprintf(`
		SELECT
			JSONExtractString(properties, '%s') AS dim1,
			JSONExtractString(properties, '%s') AS dim2,
			sum(JSONExtractFloat(properties, 'value')) AS total
		FROM usage_events_preprocessed
		WHERE tenant_id = '%s' AND billable_metric_id = '%s' AND customer_id = '%s'
			AND timestamp >= toDateTime64('%s', 3) AND timestamp < toDateTime64('%s', 3)
		GROUP BY dim1, dim2
	`, m.GroupByDim1, m.GroupByDim2, tenantID, metric.ID, customerID, formatCH(period.Start), formatCH(period.End))

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return pricing.UsageData{}, ierr.WithError(err).WithHint("matrix usage query failed").Mark(ierr.ErrSystem)
	}
	defer rows.Close()

	var data []pricing.UsageDatum
	for rows.Next() {
		var dim1, dim2 string
		var total float64
		if err := rows.Scan(&dim1, &dim2, &total); err != nil {
			return pricing.UsageData{}, ierr.WithError(err).WithHint("failed to scan matrix usage row").Mark(ierr.ErrSystem)
		}
		data = append(data, pricing.UsageDatum{
			Value:      decimal.NewFromFloat(total),
			Dimensions: map[string]string{"dim1": dim1, "dim2": dim2},
		})
	}
	return pricing.UsageData{Data: data, Period: period}, nil
}
