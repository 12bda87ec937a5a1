// Package fxrate models the daily USD-based conversion table fixed-amount
// coupons and multi-currency invoices resolve against, spec §3.
package fxrate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// HistoricalRatesFromUsd is one day's snapshot of currency_code -> rate
// relative to USD. At most one row exists per Date.
type HistoricalRatesFromUsd struct {
	Date  time.Time                  `db:"date" json:"date"`
	Rates map[string]decimal.Decimal `db:"rates" json:"rates"`
}

// Convert converts amount from one currency to another using this day's
// USD-relative rates. Converting through USD mirrors how the rates are
// stored (always USD-denominated per spec §3).
func (h HistoricalRatesFromUsd) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	if from == to {
		return amount, true
	}
	fromRate, ok := h.Rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, false
	}
	toRate, ok := h.Rates[to]
	if !ok {
		return decimal.Zero, false
	}
	usd := amount.Div(fromRate)
	return usd.Mul(toRate), true
}

// Repository resolves the historical rate row nearest-but-not-after a
// given date, spec §3 "row at the nearest earlier date supplies
// conversion at any date".
type Repository interface {
	Upsert(ctx context.Context, r *HistoricalRatesFromUsd) error
	NearestOnOrBefore(ctx context.Context, date time.Time) (*HistoricalRatesFromUsd, error)
}
