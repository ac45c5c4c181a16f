package transaction

import (
	"github.com/shopspring/decimal"

	"txcalc/internal/core/types"
)

// itemShare is the contribution of one charge row to the line being walked.
type itemShare struct {
	// amount is the row's tax amount for the current line.
	amount decimal.Decimal
	// grand is the line's running total after this row.
	grand decimal.Decimal
}

// calculateTaxes walks the charge rows once per line, in row order, so a
// previous-row reference always reads a finalized value.
func (c *Calculator) calculateTaxes(doc *Document) {
	n := len(doc.Items)
	shares := make([]itemShare, len(doc.Taxes))
	remaining := make([]decimal.Decimal, len(doc.Taxes))

	var totalWeight decimal.Decimal
	for i := range doc.Items {
		totalWeight = totalWeight.Add(doc.Items[i].NetWeight)
	}

	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		t.TaxAmountAfterDiscountAmount = decimal.Zero
		switch {
		case t.ChargeType == "":
			t.TaxAmount = decimal.Zero
		case t.ChargeType.IsDistributed():
			t.TaxAmount = c.prec.amount(t.TaxAmount)
			remaining[i] = t.TaxAmount
		default:
			t.TaxAmount = decimal.Zero
		}
	}

	for li := range doc.Items {
		l := &doc.Items[li]
		l.ItemTaxes = decimal.Zero

		for ti := range doc.Taxes {
			t := &doc.Taxes[ti]
			current := c.currentTaxAmount(doc, l, t, ti, shares, totalWeight)

			if t.ChargeType.IsDistributed() {
				remaining[ti] = remaining[ti].Sub(current)
				if li == n-1 {
					current = current.Add(remaining[ti])
				}
			} else {
				t.TaxAmount = t.TaxAmount.Add(current)
			}
			t.TaxAmountAfterDiscountAmount = t.TaxAmountAfterDiscountAmount.Add(current)

			effect := t.Effect(current)
			shares[ti].amount = current
			if ti == 0 {
				shares[ti].grand = l.NetAmount.Add(effect)
			} else {
				shares[ti].grand = shares[ti-1].grand.Add(effect)
			}
			if !t.ChargeType.IsDistributed() && !bool(t.ExcludeFromItemTaxAmount) {
				l.ItemTaxes = l.ItemTaxes.Add(effect)
			}
		}

		l.ItemTaxes = c.prec.amount(l.ItemTaxes)
		l.TaxInclusiveAmount = c.prec.amount(l.NetAmount.Add(l.ItemTaxes))
		if l.Qty.IsZero() {
			l.TaxInclusiveRate = l.TaxInclusiveAmount
		} else {
			l.TaxInclusiveRate = c.prec.rate(l.TaxInclusiveAmount.Div(l.Qty))
		}
	}

	running := doc.NetTotal
	for ti := range doc.Taxes {
		t := &doc.Taxes[ti]
		if !t.ChargeType.IsDistributed() {
			t.TaxAmount = c.prec.amount(t.TaxAmount)
		}
		t.TaxAmountAfterDiscountAmount = c.prec.amount(t.TaxAmountAfterDiscountAmount)
		running = c.prec.amount(running.Add(t.Effect(t.TaxAmountAfterDiscountAmount)))
		t.Total = running
		c.setChargeBaseAmounts(doc, t)
	}
}

// currentTaxAmount is the amount charge t (at position ti) puts on line l.
func (c *Calculator) currentTaxAmount(doc *Document, l *Line, t *Charge, ti int,
	shares []itemShare, totalWeight decimal.Decimal) decimal.Decimal {
	rate := taxRate(t, l.ItemTaxRate)
	ref := int(t.RowID) - 1
	validRef := ref >= 0 && ref < ti

	switch t.ChargeType {
	case ChargeActual:
		return c.distribute(t.TaxAmount, l.NetAmount, doc.NetTotal)
	case ChargeWeightedDistribution:
		if totalWeight.IsPositive() {
			return c.distribute(t.TaxAmount, l.NetWeight, totalWeight)
		}
		return c.distribute(t.TaxAmount, l.NetAmount, doc.NetTotal)
	case ChargeOnNetTotal:
		return types.Percent(l.NetAmount, rate)
	case ChargeOnPreviousRowAmount:
		if validRef {
			return types.Percent(shares[ref].amount, rate)
		}
	case ChargeOnPreviousRowTotal:
		if validRef {
			return types.Percent(shares[ref].grand, rate)
		}
	case ChargeOnItemQuantity:
		return rate.Mul(l.Qty)
	case ChargeManual:
		key := l.Name
		if key == "" {
			key = l.ItemCode
		}
		return t.ManualDistribution[key]
	}
	return decimal.Zero
}

// distribute returns the share of total proportional to part/whole.
func (c *Calculator) distribute(total, part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return c.prec.amount(total.Mul(part).Div(whole))
}

// setChargeBaseAmounts fills the company currency twins of a charge row.
// With calculate_tax_on_company_currency the base amount of distributed
// rows is the source value and is left alone.
func (c *Calculator) setChargeBaseAmounts(doc *Document, t *Charge) {
	cr := doc.ConversionRate
	if !(bool(doc.CalculateTaxOnCompanyCurrency) && t.ChargeType.IsDistributed()) {
		t.BaseTaxAmount = c.prec.amount(t.TaxAmount.Mul(cr))
	}
	t.BaseTaxAmountAfterDiscountAmount = c.prec.amount(t.TaxAmountAfterDiscountAmount.Mul(cr))
	t.BaseTotal = c.prec.amount(t.Total.Mul(cr))
}
