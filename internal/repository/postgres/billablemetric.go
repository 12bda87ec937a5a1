package postgres

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

type BillableMetricRepository struct {
	db *postgres.DB
}

func NewBillableMetricRepository(db *postgres.DB) *BillableMetricRepository {
	return &BillableMetricRepository{db: db}
}

type billableMetricRow struct {
	ID                     string                                        `db:"id"`
	ProductFamilyID        string                                        `db:"product_family_id"`
	Code                   string                                        `db:"code"`
	Name                   string                                        `db:"name"`
	AggregationType        types.AggregationType                         `db:"aggregation_type"`
	AggregationKey         *string                                       `db:"aggregation_key"`
	UnitConversionFactor   *float64                                      `db:"unit_conversion_factor"`
	UnitConversionRounding *string                                       `db:"unit_conversion_rounding"`
	SegmentationMatrix     jsonCol[*billablemetric.SegmentationMatrix]   `db:"segmentation_matrix"`
	UsageGroupKey          *string                                       `db:"usage_group_key"`
	types.BaseModel
}

func (row *billableMetricRow) toDomain() *billablemetric.BillableMetric {
	return &billablemetric.BillableMetric{
		ID:                     row.ID,
		ProductFamilyID:        row.ProductFamilyID,
		Code:                   row.Code,
		Name:                   row.Name,
		AggregationType:        row.AggregationType,
		AggregationKey:         row.AggregationKey,
		UnitConversionFactor:   row.UnitConversionFactor,
		UnitConversionRounding: row.UnitConversionRounding,
		SegmentationMatrix:     row.SegmentationMatrix.Val,
		UsageGroupKey:          row.UsageGroupKey,
		BaseModel:              row.BaseModel,
	}
}

const billableMetricColumns = `id, product_family_id, code, name, aggregation_type, aggregation_key,
	unit_conversion_factor, unit_conversion_rounding, segmentation_matrix, usage_group_key,
	tenant_id, created_at, updated_at, created_by, updated_by`

func (r *BillableMetricRepository) Create(ctx context.Context, m *billablemetric.BillableMetric) error {
	query := `
		INSERT INTO billable_metrics (` + billableMetricColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query,
		m.ID, m.ProductFamilyID, m.Code, m.Name, m.AggregationType, m.AggregationKey,
		m.UnitConversionFactor, m.UnitConversionRounding, jsonCol[*billablemetric.SegmentationMatrix]{Val: m.SegmentationMatrix}, m.UsageGroupKey,
		types.GetTenantID(ctx), m.CreatedAt, m.UpdatedAt, m.CreatedBy, m.UpdatedBy)
	if err != nil {
		return ierr.WithError(err).WithMessage("inserting billable metric").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *BillableMetricRepository) Get(ctx context.Context, id string) (*billablemetric.BillableMetric, error) {
	var row billableMetricRow
	query := `SELECT ` + billableMetricColumns + ` FROM billable_metrics WHERE id = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, id, types.GetTenantID(ctx)).StructScan(&row); err != nil {
		return nil, mapNotFound(err, "billable metric")
	}
	return row.toDomain(), nil
}

func (r *BillableMetricRepository) GetByCode(ctx context.Context, code string) (*billablemetric.BillableMetric, error) {
	var row billableMetricRow
	query := `SELECT ` + billableMetricColumns + ` FROM billable_metrics WHERE code = $1 AND tenant_id = $2`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, code, types.GetTenantID(ctx)).StructScan(&row); err != nil {
		return nil, mapNotFound(err, "billable metric")
	}
	return row.toDomain(), nil
}

// IsReferencedByActiveSubscription checks the frozen committed_fee JSON
// snapshot on each active subscription's components for this metric's id,
// since a PriceComponent's usage_based.metric_id lives inside the fee
// JSONB column rather than a dedicated foreign key (price.UsageBasedFee).
func (r *BillableMetricRepository) IsReferencedByActiveSubscription(ctx context.Context, id string) (bool, error) {
	var referenced bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM subscription_components sc
			JOIN subscriptions s ON s.id = sc.subscription_id
			WHERE s.tenant_id = $1 AND s.status IN ($2, $3, $4)
				AND sc.committed_fee::jsonb -> 'usage_based' ->> 'metric_id' = $5
		)`
	err := r.db.Exec(ctx).QueryRowxContext(ctx, query, types.GetTenantID(ctx),
		types.SubscriptionStatusTrialActive, types.SubscriptionStatusActive, types.SubscriptionStatusPendingActivation, id).Scan(&referenced)
	if err != nil {
		return false, ierr.WithError(err).WithMessage("checking billable metric references").Mark(ierr.ErrSystem)
	}
	return referenced, nil
}
