package testutil

import (
	"context"

	"github.com/shopspring/decimal"
)

// FakeFXProvider returns a fixed rate table plus USD=1 (as
// fxprovider's FetchRates always adds), standing in for the external FX
// API in tests.
type FakeFXProvider struct {
	Rates map[string]decimal.Decimal
	Err   error
}

func NewFakeFXProvider(rates map[string]decimal.Decimal) *FakeFXProvider {
	return &FakeFXProvider{Rates: rates}
}

func (f *FakeFXProvider) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]decimal.Decimal, len(f.Rates)+1)
	for k, v := range f.Rates {
		out[k] = v
	}
	out["USD"] = decimal.NewFromInt(1)
	return out, nil
}
