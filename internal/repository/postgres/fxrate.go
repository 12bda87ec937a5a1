package postgres

import (
	"context"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/domain/fxrate"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/shopspring/decimal"
)

type FXRateRepository struct {
	db *postgres.DB
}

func NewFXRateRepository(db *postgres.DB) *FXRateRepository {
	return &FXRateRepository{db: db}
}

type fxRateRow struct {
	Date  time.Time                         `db:"date"`
	Rates jsonCol[map[string]decimal.Decimal] `db:"rates"`
}

func (row *fxRateRow) toDomain() *fxrate.HistoricalRatesFromUsd {
	return &fxrate.HistoricalRatesFromUsd{Date: row.Date, Rates: row.Rates.Val}
}

func (r *FXRateRepository) Upsert(ctx context.Context, row *fxrate.HistoricalRatesFromUsd) error {
	query := `
		INSERT INTO historical_rates_from_usd (date, rates)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET rates = EXCLUDED.rates`
	_, err := r.db.Exec(ctx).ExecContext(ctx, query, row.Date, jsonCol[map[string]decimal.Decimal]{Val: row.Rates})
	if err != nil {
		return ierr.WithError(err).WithMessage("upserting fx rate row").Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *FXRateRepository) NearestOnOrBefore(ctx context.Context, date time.Time) (*fxrate.HistoricalRatesFromUsd, error) {
	var row fxRateRow
	query := `
		SELECT date, rates FROM historical_rates_from_usd
		WHERE date <= $1
		ORDER BY date DESC LIMIT 1`
	if err := r.db.Exec(ctx).QueryRowxContext(ctx, query, date).StructScan(&row); err != nil {
		return nil, mapNotFound(err, "fx rate row")
	}
	return row.toDomain(), nil
}
