package transaction

import (
	"fmt"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/types"
)

var one = types.One

// Calculator recalculates transaction documents. It holds no document
// state and is safe for concurrent use.
type Calculator struct {
	prec Precision
}

// NewCalculator creates a calculator with the given rounding configuration.
func NewCalculator(prec Precision) *Calculator {
	if prec.RoundingFraction.IsZero() {
		prec.RoundingFraction = one
	}
	return &Calculator{prec: prec}
}

// Precision returns the rounding configuration.
func (c *Calculator) Precision() Precision {
	return c.prec
}

// Recalculate returns a recalculated copy of doc. doc itself is not modified.
func (c *Calculator) Recalculate(doc *Document, p Policy) (*Document, error) {
	work := doc.Clone()
	if err := c.Calculate(work, p); err != nil {
		return nil, err
	}
	return work, nil
}

// Calculate recalculates a working copy in place: price list rates, line
// values, charges, totals, additional discount, rounding, company currency
// twins and the payment schedule. Every pass restarts from line rates and quantities, so
// repeated calls give identical results.
//
// On error the working copy is left partially updated and must be dropped.
func (c *Calculator) Calculate(doc *Document, p Policy) error {
	if err := doc.CanModify(); err != nil {
		return err
	}
	EnforceCurrency(doc)
	if err := validateCurrency(doc); err != nil {
		return err
	}
	if err := ValidateLines(doc, p); err != nil {
		return err
	}
	if !p.Taxable && len(doc.Taxes) > 0 {
		return apperror.NewValidation(fmt.Sprintf("%s does not support taxes and charges.", doc.DocType)).
			WithDetail("table", string(TableTaxes))
	}
	if err := ValidateCharges(doc); err != nil {
		return err
	}

	if doc.CalculateTaxOnCompanyCurrency {
		for i := range doc.Taxes {
			if doc.Taxes[i].ChargeType.IsDistributed() {
				_ = c.ConvertChargeFromBase(doc, i)
			}
		}
	}

	if p.Pricing {
		c.fillPriceListRates(doc)
	}
	c.calculateTaxesAndTotals(doc, false)
	c.applyAdditionalDiscount(doc)
	c.setRoundedTotal(doc)
	c.setBaseTotals(doc)
	if p.PaymentSchedule {
		c.calculatePaymentSchedule(doc)
	}
	return nil
}

func (c *Calculator) calculateTaxesAndTotals(doc *Document, discountApplied bool) {
	if !discountApplied {
		c.calculateItemValues(doc)
		c.determineExclusiveRate(doc)
	}
	c.calculateNetTotal(doc)
	c.calculateTaxes(doc)
	c.adjustInclusiveDrift(doc, discountApplied)
	c.calculateTotals(doc)
}
