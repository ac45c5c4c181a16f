package transaction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/types"
)

// inclusiveFractions returns, for one line, the cumulated fraction of all
// inclusive percentage charges and the inclusive per-unit amount of
// "On Item Quantity" charges.
func inclusiveFractions(doc *Document, l *Line) (cumulated, perQty decimal.Decimal) {
	type fraction struct{ own, grand decimal.Decimal }
	rows := make([]fraction, len(doc.Taxes))

	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		var own, qty decimal.Decimal
		if t.IncludedInPrintRate {
			rate := taxRate(t, l.ItemTaxRate)
			ref := int(t.RowID) - 1
			switch t.ChargeType {
			case ChargeOnNetTotal:
				own = types.Fraction(rate)
			case ChargeOnPreviousRowAmount:
				if ref >= 0 && ref < i {
					own = types.Fraction(rate).Mul(rows[ref].own)
				}
			case ChargeOnPreviousRowTotal:
				if ref >= 0 && ref < i {
					own = types.Fraction(rate).Mul(rows[ref].grand)
				}
			case ChargeOnItemQuantity:
				qty = rate
			}
			if t.IsDeduct() {
				own = own.Neg()
				qty = qty.Neg()
			}
		}
		rows[i].own = own
		if i == 0 {
			rows[i].grand = one.Add(own)
		} else {
			rows[i].grand = rows[i-1].grand.Add(own)
		}
		cumulated = cumulated.Add(own)
		perQty = perQty.Add(qty)
	}
	return cumulated, perQty
}

func (c *Calculator) cumulatedInclusiveFraction(doc *Document, l *Line) decimal.Decimal {
	f, _ := inclusiveFractions(doc, l)
	return f
}

// determineExclusiveRate backs inclusive charges out of each line's amount
// to get the net amount the charges are computed on.
func (c *Calculator) determineExclusiveRate(doc *Document) {
	anyInclusive := doc.HasInclusiveTax()
	for i := range doc.Items {
		l := &doc.Items[i]
		cumulated, perQty := inclusiveFractions(doc, l)
		l.CumulatedTaxFraction = cumulated
		l.TaxExclusiveRate = c.prec.rate(l.Rate.Sub(perQty).Div(one.Add(cumulated)))

		if !anyInclusive || (cumulated.IsZero() && perQty.IsZero()) {
			continue
		}
		amount := l.Amount.Sub(perQty.Mul(l.Qty))
		l.NetAmount = c.prec.amount(amount.Div(one.Add(cumulated)))
		if l.Qty.IsZero() {
			l.NetRate = decimal.Zero
		} else {
			l.NetRate = c.prec.rate(l.NetAmount.Div(l.Qty))
		}
	}
}

// RateFromTaxInclusiveRate back-solves the rate of row from an edited rate
// including taxes. Only "On Net Total" charges can be inverted; actual
// charges and rows excluded from item tax are ignored, any other charge
// type rejects the edit.
func (c *Calculator) RateFromTaxInclusiveRate(doc *Document, row int) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}

	var taxFraction, inclusiveFraction decimal.Decimal
	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		if t.ChargeType == ChargeActual || bool(t.ExcludeFromItemTaxAmount) || t.IsValuationOnly() {
			continue
		}
		if t.ChargeType != ChargeOnNetTotal {
			return apperror.NewBusinessRule(apperror.CodeCannotInvertRate,
				fmt.Sprintf("Tax inclusive rate cannot be used with charge type '%s' (row #%d).", t.ChargeType, i+1)).
				WithDetail("row", i+1).
				WithDetail("charge_type", string(t.ChargeType))
		}
		f := types.Fraction(taxRate(t, l.ItemTaxRate))
		if t.IsDeduct() {
			f = f.Neg()
		}
		taxFraction = taxFraction.Add(f)
		if t.IncludedInPrintRate {
			inclusiveFraction = inclusiveFraction.Add(f)
		}
	}

	divisor := one.Add(taxFraction)
	if divisor.IsZero() {
		return apperror.NewBusinessRule(apperror.CodeCannotInvertRate,
			"Tax inclusive rate cannot be inverted: charges cancel the rate out.")
	}
	l.Rate = c.prec.rate(l.TaxInclusiveRate.Div(divisor).Mul(one.Add(inclusiveFraction)))
	return c.DeriveDiscountFromRate(doc, row)
}

// adjustInclusiveDrift absorbs a small grand total drift caused by backing
// inclusive taxes out of rounded line amounts into the last charge row.
func (c *Calculator) adjustInclusiveDrift(doc *Document, discountApplied bool) {
	if len(doc.Taxes) == 0 || !doc.HasInclusiveTax() {
		return
	}
	var nonInclusive decimal.Decimal
	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		if !t.IncludedInPrintRate {
			nonInclusive = nonInclusive.Add(t.Effect(t.TaxAmountAfterDiscountAmount))
		}
	}
	last := &doc.Taxes[len(doc.Taxes)-1]
	diff := doc.Total.Add(nonInclusive).Sub(last.Total)
	if discountApplied {
		diff = diff.Sub(doc.DiscountAmount)
	}
	diff = c.prec.amount(diff)
	if diff.IsZero() || diff.Abs().GreaterThan(c.prec.inclusiveTolerance()) || last.IsValuationOnly() {
		return
	}

	delta := diff
	if last.IsDeduct() {
		delta = diff.Neg()
	}
	if !last.ChargeType.IsDistributed() {
		last.TaxAmount = last.TaxAmount.Add(delta)
	}
	last.TaxAmountAfterDiscountAmount = last.TaxAmountAfterDiscountAmount.Add(delta)
	last.Total = last.Total.Add(diff)
	c.setChargeBaseAmounts(doc, last)
}
