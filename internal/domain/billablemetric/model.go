// Package billablemetric models the metric a usage-based fee is computed
// against, spec §3.
package billablemetric

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// SegmentationMatrix describes the two dimensions a Matrix usage model
// groups by, spec §4.1/§4.5.
type SegmentationMatrix struct {
	GroupByDim1 string `json:"group_by_dim1"`
	GroupByDim2 string `json:"group_by_dim2"`
}

type BillableMetric struct {
	ID                      string                      `db:"id" json:"id"`
	ProductFamilyID         string                      `db:"product_family_id" json:"product_family_id"`
	Code                    string                      `db:"code" json:"code"`
	Name                    string                      `db:"name" json:"name"`
	AggregationType         types.AggregationType       `db:"aggregation_type" json:"aggregation_type"`
	AggregationKey          *string                     `db:"aggregation_key" json:"aggregation_key,omitempty"`
	UnitConversionFactor    *float64                    `db:"unit_conversion_factor" json:"unit_conversion_factor,omitempty"`
	UnitConversionRounding  *string                     `db:"unit_conversion_rounding" json:"unit_conversion_rounding,omitempty"`
	SegmentationMatrix      *SegmentationMatrix         `db:"segmentation_matrix" json:"segmentation_matrix,omitempty"`
	UsageGroupKey           *string                     `db:"usage_group_key" json:"usage_group_key,omitempty"`

	types.BaseModel
}

// Repository persists billable metrics. Immutability once referenced by an
// active subscription (spec §3) is enforced by the service layer, not here.
type Repository interface {
	Create(ctx context.Context, m *BillableMetric) error
	Get(ctx context.Context, id string) (*BillableMetric, error)
	GetByCode(ctx context.Context, code string) (*BillableMetric, error)
	IsReferencedByActiveSubscription(ctx context.Context, id string) (bool, error)
}
