package testutil

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/pricing"
)

// FakeUsageClient returns a fixed pricing.UsageData per metric ID,
// standing in for usage.Client in invoicesvc tests so they never touch
// ClickHouse.
type FakeUsageClient struct {
	ByMetricID map[string]pricing.UsageData
}

func NewFakeUsageClient() *FakeUsageClient {
	return &FakeUsageClient{ByMetricID: make(map[string]pricing.UsageData)}
}

func (f *FakeUsageClient) FetchUsage(ctx context.Context, tenantID, customerID string, metric *billablemetric.BillableMetric, period pricing.Period) (pricing.UsageData, error) {
	data, ok := f.ByMetricID[metric.ID]
	if !ok {
		return pricing.UsageData{Period: period}, nil
	}
	return data, nil
}
