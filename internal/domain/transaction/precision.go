package transaction

import (
	"github.com/shopspring/decimal"

	"txcalc/internal/core/types"
)

// Precision holds the rounding configuration of computed fields.
type Precision struct {
	// Amount is the number of fractional digits for currency amounts.
	Amount int32
	// Rate is the number of fractional digits for unit rates.
	Rate int32
	// Qty is the number of fractional digits for quantities.
	Qty int32
	// Percent is the number of fractional digits for percentages.
	Percent int32
	// ConversionRate is the number of fractional digits for exchange rates.
	ConversionRate int32
	// RoundingFraction is the smallest currency fraction the rounded total
	// snaps to (1 for whole units, 0.05 for cash rounding).
	RoundingFraction decimal.Decimal
}

// DefaultPrecision mirrors the framework's system defaults.
func DefaultPrecision() Precision {
	return Precision{
		Amount:           2,
		Rate:             2,
		Qty:              6,
		Percent:          6,
		ConversionRate:   9,
		RoundingFraction: types.One,
	}
}

// inclusiveTolerance is the largest grand total drift absorbed into the
// last charge row after backing inclusive taxes out of item rates.
func (p Precision) inclusiveTolerance() decimal.Decimal {
	return decimal.New(5, -p.Amount)
}

func (p Precision) amount(d decimal.Decimal) decimal.Decimal  { return types.Flt(d, p.Amount) }
func (p Precision) rate(d decimal.Decimal) decimal.Decimal    { return types.Flt(d, p.Rate) }
func (p Precision) qty(d decimal.Decimal) decimal.Decimal     { return types.Flt(d, p.Qty) }
func (p Precision) percent(d decimal.Decimal) decimal.Decimal { return types.Flt(d, p.Percent) }
