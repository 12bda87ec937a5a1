package usage

import (
	"context"
	"testing"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/pricing"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDedupeKey_StableAcrossCalls(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	k1 := BuildDedupeKey("tenant_1", "api_calls", "metric_1", "cust_1", ts, "evt_1")
	k2 := BuildDedupeKey("tenant_1", "api_calls", "metric_1", "cust_1", ts, "evt_1")
	assert.Equal(t, k1, k2)

	k3 := BuildDedupeKey("tenant_1", "api_calls", "metric_1", "cust_1", ts, "evt_2")
	assert.NotEqual(t, k1, k3)
}

type fakeStore struct {
	aggregateResult pricing.UsageData
	latestValue     *pricing.UsageDatum
	hasLatest       bool
	written         []PreprocessedEvent
}

func (f *fakeStore) Write(ctx context.Context, pe PreprocessedEvent) error {
	f.written = append(f.written, pe)
	return nil
}

func (f *fakeStore) Aggregate(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	return f.aggregateResult, nil
}

func (f *fakeStore) LatestValueBefore(ctx context.Context, tenantID, customerID, metricID string, before time.Time) (*pricing.UsageDatum, bool, error) {
	return f.latestValue, f.hasLatest, nil
}

// Latest aggregation with no value in the window carries forward the prior
// value, spec §4.5.
func TestClient_FetchUsage_LatestCarriesForwardWhenWindowEmpty(t *testing.T) {
	store := &fakeStore{
		aggregateResult: pricing.UsageData{},
		latestValue:     &pricing.UsageDatum{Value: decimal.NewFromInt(42)},
		hasLatest:       true,
	}
	client := NewClient(store)

	metric := &billablemetric.BillableMetric{ID: "metric_1", AggregationType: types.AggregationLatest}
	period := pricing.Period{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	result, err := client.FetchUsage(context.Background(), "tenant_1", "cust_1", metric, period)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.True(t, result.Data[0].Value.Equal(decimal.NewFromInt(42)))
}

func TestClient_FetchUsage_LatestNoCarryForwardWhenNothingPrior(t *testing.T) {
	store := &fakeStore{aggregateResult: pricing.UsageData{}, hasLatest: false}
	client := NewClient(store)

	metric := &billablemetric.BillableMetric{ID: "metric_1", AggregationType: types.AggregationLatest}
	period := pricing.Period{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	result, err := client.FetchUsage(context.Background(), "tenant_1", "cust_1", metric, period)
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestClient_FetchUsage_SumPassesThroughDirectly(t *testing.T) {
	store := &fakeStore{
		aggregateResult: pricing.UsageData{Data: []pricing.UsageDatum{{Value: decimal.NewFromInt(1500)}}},
	}
	client := NewClient(store)

	metric := &billablemetric.BillableMetric{ID: "metric_1", AggregationType: types.AggregationSum}
	period := pricing.Period{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	result, err := client.FetchUsage(context.Background(), "tenant_1", "cust_1", metric, period)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.True(t, result.Data[0].Value.Equal(decimal.NewFromInt(1500)))
}

func TestKafkaIngestor_RejectsEventMissingCustomerIdentity(t *testing.T) {
	ingestor := NewKafkaIngestor(nil, "usage.raw", nil)
	ev := Event{ID: "evt_1", TenantID: "tenant_1", Code: "api_calls", Timestamp: time.Now()}
	err := ingestor.Ingest(context.Background(), ev)
	require.Error(t, err)
}

func TestKafkaPreprocessor_WritesWithDedupeKey(t *testing.T) {
	store := &fakeStore{}
	pre := NewKafkaPreprocessor(nil, store, nil)

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{ID: "evt_1", TenantID: "tenant_1", Code: "api_calls", Timestamp: ts}

	err := pre.Process(context.Background(), ev, "metric_1")
	require.NoError(t, err)
	require.Len(t, store.written, 1)
	assert.Equal(t, "metric_1", store.written[0].BillableMetricID)
	assert.Equal(t, BuildDedupeKey("tenant_1", "api_calls", "metric_1", "", ts, "evt_1"), store.written[0].DedupeKey)
}
