package types

import "github.com/shopspring/decimal"

// currencyPrecision holds the number of decimal digits a currency's minor
// unit represents. Absent currencies default to 2 (the common case).
// Grounded on flexprice's internal/types/currency.go symbol table, extended
// with precision since spec §3 requires "dates are calendar dates; unit
// prices use fixed-point decimal with precision 8" but totals are rounded
// to the currency's own minor-unit precision before conversion to cents.
var currencyPrecision = map[string]int32{
	"usd": 2, "eur": 2, "gbp": 2, "aud": 2, "cad": 2, "chf": 2,
	"sek": 2, "nzd": 2, "hkd": 2, "sgd": 2, "cny": 2, "inr": 2,
	"brl": 2, "rub": 2, "mxn": 2, "try": 2, "zar": 2, "myr": 2,
	"jpy": 0, "krw": 0,
}

// UnitPricePrecision is the fixed-point precision spec §3 mandates for unit
// prices prior to rounding the final monetary result.
const UnitPricePrecision = 8

// GetCurrencySymbol returns the display symbol for a lowercase ISO 4217 code.
func GetCurrencySymbol(code string) string {
	switch code {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	case "jpy":
		return "¥"
	default:
		return code
	}
}

// GetCurrencyPrecision returns the number of minor-unit decimal digits for
// a currency, defaulting to 2.
func GetCurrencyPrecision(code string) int32 {
	if p, ok := currencyPrecision[code]; ok {
		return p
	}
	return 2
}

// RoundToCurrency rounds a decimal amount half-away-from-zero to the
// currency's precision, per spec §4.1 "Shared arithmetic rules".
func RoundToCurrency(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(GetCurrencyPrecision(code))
}

// ToMinorUnits converts a currency-precision decimal amount (e.g. "10.00"
// USD) into an integer count of minor units (1000 cents), per spec §3.
func ToMinorUnits(amount decimal.Decimal, code string) int64 {
	precision := GetCurrencyPrecision(code)
	scaled := amount.Shift(precision)
	return scaled.Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, code string) decimal.Decimal {
	precision := GetCurrencyPrecision(code)
	return decimal.NewFromInt(minor).Shift(-precision)
}

// ClampNonNegative implements the spec §4.1 rule that negative line totals
// are clamped to zero except for explicit credits.
func ClampNonNegative(amount decimal.Decimal) decimal.Decimal {
	if amount.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return amount
}
