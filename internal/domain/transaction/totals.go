package transaction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/types"
)

func (c *Calculator) calculateItemValues(doc *Document) {
	cr := doc.ConversionRate
	for i := range doc.Items {
		l := &doc.Items[i]
		c.updateStockQty(l)
		l.Rate = c.prec.rate(l.Rate)
		l.Amount = c.prec.amount(l.Rate.Mul(l.Qty))
		l.NetRate = l.Rate
		l.NetAmount = l.Amount

		l.BasePriceListRate = c.prec.rate(l.PriceListRate.Mul(cr))
		l.BaseRate = c.prec.rate(l.Rate.Mul(cr))
		l.BaseAmount = c.prec.amount(l.Amount.Mul(cr))
	}
}

func (c *Calculator) calculateNetTotal(doc *Document) {
	cr := doc.ConversionRate
	var total, baseTotal, net, baseNet, qty, weight decimal.Decimal
	for i := range doc.Items {
		l := &doc.Items[i]
		l.BaseNetRate = c.prec.rate(l.NetRate.Mul(cr))
		l.BaseNetAmount = c.prec.amount(l.NetAmount.Mul(cr))

		total = total.Add(l.Amount)
		baseTotal = baseTotal.Add(l.BaseAmount)
		net = net.Add(l.NetAmount)
		baseNet = baseNet.Add(l.BaseNetAmount)
		qty = qty.Add(l.Qty)
		weight = weight.Add(l.NetWeight)
	}
	doc.Total = c.prec.amount(total)
	doc.BaseTotal = c.prec.amount(baseTotal)
	doc.NetTotal = c.prec.amount(net)
	doc.BaseNetTotal = c.prec.amount(baseNet)
	doc.TotalQty = c.prec.qty(qty)
	doc.TotalNetWeight = c.prec.qty(weight)
}

func (c *Calculator) calculateTotals(doc *Document) {
	if n := len(doc.Taxes); n > 0 {
		doc.GrandTotal = doc.Taxes[n-1].Total
	} else {
		doc.GrandTotal = doc.NetTotal
	}
	doc.TotalTaxesAndCharges = c.prec.amount(doc.GrandTotal.Sub(doc.NetTotal))

	var added, deducted decimal.Decimal
	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		if t.IsValuationOnly() {
			continue
		}
		if t.IsDeduct() {
			deducted = deducted.Add(t.TaxAmountAfterDiscountAmount)
		} else {
			added = added.Add(t.TaxAmountAfterDiscountAmount)
		}
	}
	doc.TaxesAndChargesAdded = c.prec.amount(added)
	doc.TaxesAndChargesDeducted = c.prec.amount(deducted)
}

// applyAdditionalDiscount spreads the document discount over line net
// amounts and re-runs the charges. A non-zero percentage is authoritative.
func (c *Calculator) applyAdditionalDiscount(doc *Document) {
	on := doc.ApplyDiscountOn
	if on == "" {
		on = DiscountOnGrandTotal
	}
	if !doc.AdditionalDiscountPercentage.IsZero() {
		base := doc.GrandTotal
		if on == DiscountOnNetTotal {
			base = doc.NetTotal
		}
		doc.DiscountAmount = types.Percent(base, doc.AdditionalDiscountPercentage)
	}
	doc.DiscountAmount = c.prec.amount(doc.DiscountAmount)
	if doc.DiscountAmount.IsZero() || len(doc.Items) == 0 {
		return
	}

	total := c.totalForDiscount(doc, on)
	if total.IsZero() {
		return
	}

	last := len(doc.Items) - 1
	var net decimal.Decimal
	for i := range doc.Items {
		l := &doc.Items[i]
		share := doc.DiscountAmount.Mul(l.NetAmount).Div(total)
		l.NetAmount = c.prec.amount(l.NetAmount.Sub(share))
		net = net.Add(l.NetAmount)

		if i == last && (on == DiscountOnNetTotal || len(doc.Taxes) == 0 || total.Equal(doc.NetTotal)) {
			loss := c.prec.amount(doc.NetTotal.Sub(net).Sub(doc.DiscountAmount))
			l.NetAmount = c.prec.amount(l.NetAmount.Add(loss))
		}
		if l.Qty.IsZero() {
			l.NetRate = decimal.Zero
		} else {
			l.NetRate = c.prec.rate(l.NetAmount.Div(l.Qty))
		}
	}
	c.calculateTaxesAndTotals(doc, true)
}

// totalForDiscount is the total the discount is proportioned against:
// the net total, or the grand total without fixed-amount charges.
func (c *Calculator) totalForDiscount(doc *Document, on DiscountOn) decimal.Decimal {
	if on == DiscountOnNetTotal {
		return doc.NetTotal
	}
	fixed := make(map[int]decimal.Decimal, len(doc.Taxes))
	var totalFixed decimal.Decimal
	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		switch {
		case t.ChargeType.IsDistributed(), t.ChargeType == ChargeOnItemQuantity, t.ChargeType == ChargeManual:
			amount := t.Effect(t.TaxAmount)
			fixed[i+1] = amount
			totalFixed = totalFixed.Add(amount)
		case t.ChargeType.IsPreviousRow():
			if ref, ok := fixed[int(t.RowID)]; ok {
				amount := types.Percent(ref, t.Rate)
				fixed[i+1] = amount
				totalFixed = totalFixed.Add(amount)
			}
		}
	}
	return c.prec.amount(doc.GrandTotal.Sub(totalFixed))
}

// setRoundedTotal rounds the grand total to the smallest currency fraction.
// The difference is kept in rounding_adjustment and nowhere else.
func (c *Calculator) setRoundedTotal(doc *Document) {
	if doc.DisableRoundedTotal {
		doc.RoundedTotal = doc.GrandTotal
		doc.RoundingAdjustment = decimal.Zero
		return
	}
	doc.RoundedTotal = c.prec.amount(types.RoundToFraction(doc.GrandTotal, c.prec.RoundingFraction))
	doc.RoundingAdjustment = c.prec.amount(doc.RoundedTotal.Sub(doc.GrandTotal))
}

func (c *Calculator) setBaseTotals(doc *Document) {
	cr := doc.ConversionRate
	doc.BaseGrandTotal = c.prec.amount(doc.GrandTotal.Mul(cr))
	doc.BaseTotalTaxesAndCharges = c.prec.amount(doc.TotalTaxesAndCharges.Mul(cr))
	doc.BaseTaxesAndChargesAdded = c.prec.amount(doc.TaxesAndChargesAdded.Mul(cr))
	doc.BaseTaxesAndChargesDeducted = c.prec.amount(doc.TaxesAndChargesDeducted.Mul(cr))
	doc.BaseDiscountAmount = c.prec.amount(doc.DiscountAmount.Mul(cr))
	doc.BaseRoundedTotal = c.prec.amount(doc.RoundedTotal.Mul(cr))
	doc.BaseRoundingAdjustment = c.prec.amount(doc.BaseRoundedTotal.Sub(doc.BaseGrandTotal))
}

// calculatePaymentSchedule splits the payable total by invoice portion.
// When the portions add up to 100 the last row takes the remainder.
func (c *Calculator) calculatePaymentSchedule(doc *Document) {
	rows := doc.PaymentSchedule
	if len(rows) == 0 {
		return
	}
	payable := doc.RoundedTotal
	var portions, allocated decimal.Decimal
	for i := range rows {
		portions = portions.Add(rows[i].InvoicePortion)
	}
	complete := portions.Equal(types.Hundred)

	for i := range rows {
		r := &rows[i]
		amount := c.prec.amount(types.Percent(payable, r.InvoicePortion))
		if i == len(rows)-1 && complete {
			amount = c.prec.amount(payable.Sub(allocated))
		}
		allocated = allocated.Add(amount)
		r.PaymentAmount = amount
		r.BasePaymentAmount = c.prec.amount(amount.Mul(doc.ConversionRate))
	}
}

// ValidatePaymentSchedule checks the schedule covers the whole payable total.
func ValidatePaymentSchedule(doc *Document) error {
	if len(doc.PaymentSchedule) == 0 {
		return nil
	}
	var portions decimal.Decimal
	for i := range doc.PaymentSchedule {
		portions = portions.Add(doc.PaymentSchedule[i].InvoicePortion)
	}
	if !portions.Equal(types.Hundred) {
		return apperror.NewValidation(
			fmt.Sprintf("Total invoice portion in the payment schedule must be 100, got %s.", portions.String())).
			WithDetail("field", string(FieldInvoicePortion))
	}
	return nil
}
