package transaction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/types"
)

// Line rules. Each method works on the given working copy and touches one
// line; document totals are left to Calculate.

// UpdateStockQty recomputes stock quantity and net weight of row.
func (c *Calculator) UpdateStockQty(doc *Document, row int) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}
	c.updateStockQty(l)
	return nil
}

func (c *Calculator) updateStockQty(l *Line) {
	l.Qty = c.prec.qty(l.Qty)
	l.ConversionFactor = types.Flt(l.ConversionFactor, c.prec.ConversionRate)
	l.StockQty = c.prec.qty(l.Qty.Mul(l.ConversionFactor))
	l.NetWeight = c.prec.qty(l.NetWeightPerUnit.Mul(l.StockQty))
}

// ApplyDiscount makes basis the authoritative discount of row and re-derives
// the other representation and the rate.
func (c *Calculator) ApplyDiscount(doc *Document, row int, basis DiscountBasis) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}
	l.DiscountBasis = basis
	return c.ApplyPriceListRate(doc, row)
}

// ApplyPriceListRate derives the rate of row from its price list rate,
// margin and authoritative discount.
func (c *Calculator) ApplyPriceListRate(doc *Document, row int) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}
	l.BasePriceListRate = c.prec.rate(l.PriceListRate.Mul(doc.ConversionRate))
	if l.PriceListRate.IsZero() {
		return nil
	}

	l.RateWithMargin = c.rateWithMargin(l)
	base := l.PriceListRate
	if !l.RateWithMargin.IsZero() {
		base = l.RateWithMargin
	}

	if l.DiscountBasis == BasisAmount {
		l.DiscountPercentage = c.prec.percent(l.DiscountAmount.Div(base).Mul(types.Hundred))
	} else {
		l.DiscountAmount = c.prec.rate(types.Percent(base, l.DiscountPercentage))
	}
	l.Rate = c.prec.rate(base.Sub(l.DiscountAmount))
	return nil
}

// rateWithMargin returns the price list rate of l raised by its margin, or
// zero when the line has no margin.
func (c *Calculator) rateWithMargin(l *Line) decimal.Decimal {
	if l.MarginRateOrAmount.IsZero() {
		return decimal.Zero
	}
	switch l.MarginType {
	case MarginAmount:
		return c.prec.rate(l.PriceListRate.Add(l.MarginRateOrAmount))
	case MarginPercentage:
		return c.prec.rate(l.PriceListRate.Add(types.Percent(l.PriceListRate, l.MarginRateOrAmount)))
	}
	return decimal.Zero
}

// fillPriceListRates derives the rate of price-listed lines that carry no
// rate or whose discount percentage and amount disagree.
func (c *Calculator) fillPriceListRates(doc *Document) {
	for i := range doc.Items {
		l := &doc.Items[i]
		if l.PriceListRate.IsZero() {
			continue
		}
		if l.Rate.IsZero() || !c.discountAgrees(l) {
			_ = c.ApplyPriceListRate(doc, i)
		}
	}
}

// discountAgrees reports whether the discount percentage of l yields its
// discount amount, within one unit of rate precision.
func (c *Calculator) discountAgrees(l *Line) bool {
	base := l.PriceListRate
	if m := c.rateWithMargin(l); !m.IsZero() {
		base = m
	}
	diff := types.Percent(base, l.DiscountPercentage).Sub(l.DiscountAmount).Abs()
	return diff.LessThanOrEqual(decimal.New(1, -c.prec.Rate))
}

// DeriveDiscountFromRate recomputes the discount (or margin, when the rate is
// above the price list rate) after a direct rate edit.
func (c *Calculator) DeriveDiscountFromRate(doc *Document, row int) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}
	l.Rate = c.prec.rate(l.Rate)
	plr := l.PriceListRate
	if plr.IsZero() {
		l.DiscountPercentage = decimal.Zero
		l.DiscountAmount = decimal.Zero
		return nil
	}

	if l.Rate.GreaterThan(plr) {
		l.DiscountPercentage = decimal.Zero
		l.DiscountAmount = decimal.Zero
		if l.MarginType == MarginPercentage {
			l.MarginRateOrAmount = c.prec.percent(l.Rate.Sub(plr).Div(plr).Mul(types.Hundred))
		} else {
			l.MarginType = MarginAmount
			l.MarginRateOrAmount = c.prec.rate(l.Rate.Sub(plr))
		}
		l.RateWithMargin = l.Rate
	} else {
		l.MarginType = MarginNone
		l.MarginRateOrAmount = decimal.Zero
		l.RateWithMargin = decimal.Zero
		l.DiscountAmount = c.prec.rate(plr.Sub(l.Rate))
		l.DiscountPercentage = c.prec.percent(l.DiscountAmount.Div(plr).Mul(types.Hundred))
	}
	l.DiscountBasis = BasisPercentage
	return nil
}

// RateFromAmount derives the rate of row from an edited amount.
func (c *Calculator) RateFromAmount(doc *Document, row int) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}
	if l.Qty.IsZero() {
		return apperror.NewValidation(fmt.Sprintf("Row #%d: Set a quantity before editing the amount.", row+1)).
			WithDetail("row", row+1).
			WithDetail("field", string(FieldAmount))
	}
	l.Rate = c.prec.rate(l.Amount.Div(l.Qty))
	return c.DeriveDiscountFromRate(doc, row)
}

// RateFromTaxExclusiveRate derives the rate of row from an edited rate
// excluding inclusive taxes.
func (c *Calculator) RateFromTaxExclusiveRate(doc *Document, row int) error {
	l, err := doc.LineAt(row)
	if err != nil {
		return err
	}
	fraction := c.cumulatedInclusiveFraction(doc, l)
	l.Rate = c.prec.rate(l.TaxExclusiveRate.Mul(one.Add(fraction)))
	return c.DeriveDiscountFromRate(doc, row)
}

// ConvertChargeFromBase derives the document currency amount of a charge row
// from its company currency amount.
func (c *Calculator) ConvertChargeFromBase(doc *Document, row int) error {
	t, err := doc.ChargeAt(row)
	if err != nil {
		return err
	}
	if doc.ConversionRate.IsPositive() {
		t.TaxAmount = c.prec.amount(t.BaseTaxAmount.Div(doc.ConversionRate))
	}
	return nil
}

// taxRate returns the rate of charge t for a line, honouring the line's item
// tax map override for the row's account.
func taxRate(t *Charge, itemTaxRate types.RateMap) decimal.Decimal {
	if itemTaxRate != nil && t.AccountHead != "" {
		if r, ok := itemTaxRate[t.AccountHead]; ok {
			return r
		}
	}
	return t.Rate
}
