package transaction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/apperror"
)

// EnforceCurrency re-applies the conversion rate identities:
// the document rate is 1 in company currency, the price list rate is 1 in
// company currency and follows the document rate when both currencies match.
func EnforceCurrency(doc *Document) {
	if doc.Currency == "" || doc.Currency == doc.CompanyCurrency {
		doc.ConversionRate = one
	}
	if doc.PriceListCurrency == "" {
		return
	}
	if doc.PriceListCurrency == doc.CompanyCurrency {
		doc.PLCConversionRate = one
	} else if doc.PriceListCurrency == doc.Currency {
		doc.PLCConversionRate = doc.ConversionRate
	}
}

func validateCurrency(doc *Document) error {
	if !doc.ConversionRate.IsPositive() {
		return apperror.NewValidation(
			fmt.Sprintf("Exchange rate from %s to %s must be greater than 0.", doc.Currency, doc.CompanyCurrency)).
			WithDetail("field", string(FieldConversionRate))
	}
	if doc.PriceListCurrency != "" && doc.PLCConversionRate.IsNegative() {
		return apperror.NewValidation("Price list exchange rate cannot be negative.").
			WithDetail("field", string(FieldPLCConversionRate))
	}
	return nil
}

// ValidateLines checks quantities against the document type's return policy.
func ValidateLines(doc *Document, p Policy) error {
	for i := range doc.Items {
		l := &doc.Items[i]
		if l.Qty.IsNegative() && !(p.AllowReturns && bool(doc.IsReturn)) {
			return apperror.NewValidation(
				fmt.Sprintf("Row #%d: Quantity cannot be negative for %s.", i+1, doc.DocType)).
				WithDetail("row", i+1).
				WithDetail("field", string(FieldQty))
		}
		if l.ConversionFactor.IsNegative() {
			return apperror.NewValidation(
				fmt.Sprintf("Row #%d: UOM conversion factor cannot be negative.", i+1)).
				WithDetail("row", i+1).
				WithDetail("field", string(FieldConversionFactor))
		}
	}
	return nil
}

// ValidateCharges runs the row rules and the inclusive rules on every charge row.
func ValidateCharges(doc *Document) error {
	for i := range doc.Taxes {
		if err := ValidateChargeRow(doc, i); err != nil {
			return err
		}
		if err := ValidateInclusiveTax(doc, i); err != nil {
			return err
		}
	}
	return nil
}

// ValidateChargeRow checks the charge type and the previous-row reference of row i.
func ValidateChargeRow(doc *Document, i int) error {
	t := &doc.Taxes[i]
	idx := i + 1

	if t.ChargeType == "" {
		if !t.Rate.IsZero() || !t.TaxAmount.IsZero() || t.RowID != 0 {
			return apperror.NewChargeRow(idx, fmt.Sprintf("Row #%d: Please select Charge Type first.", idx))
		}
		return nil
	}
	if !t.ChargeType.Valid() {
		return apperror.NewChargeRow(idx, fmt.Sprintf("Row #%d: Unknown charge type %q.", idx, t.ChargeType))
	}
	if !t.ChargeType.IsPreviousRow() {
		if t.RowID != 0 {
			return apperror.NewChargeRow(idx,
				fmt.Sprintf("Row #%d: Can refer row only if the charge type is 'On Previous Row Amount' or 'Previous Row Total'.", idx))
		}
		return nil
	}
	if i == 0 {
		return apperror.NewChargeRow(idx,
			"Cannot select charge type as 'On Previous Row Amount' or 'On Previous Row Total' for first row.")
	}
	ref := int(t.RowID)
	if ref <= 0 {
		return apperror.NewChargeRow(idx, fmt.Sprintf("Row #%d: Please specify a valid Row ID for %s.", idx, t.ChargeType))
	}
	if ref >= idx {
		return apperror.NewChargeRow(idx,
			fmt.Sprintf("Row #%d: Cannot refer row number greater than or equal to current row number for this Charge type.", idx)).
			WithDetail("row_id", ref)
	}
	return nil
}

// RepairChargeRow validates row i and, when it is invalid, clears the
// offending value the way the form does: the reference, or the charge type
// on a first row. The validation error is returned either way.
func RepairChargeRow(doc *Document, i int) error {
	if i < 0 || i >= len(doc.Taxes) {
		return rowError(TableTaxes, i, len(doc.Taxes))
	}
	err := ValidateChargeRow(doc, i)
	if err == nil {
		return nil
	}

	t := &doc.Taxes[i]
	switch {
	case t.ChargeType == "" || !t.ChargeType.Valid():
		t.ChargeType = ""
		t.RowID = 0
		t.Rate = decimal.Zero
		t.TaxAmount = decimal.Zero
	case !t.ChargeType.IsPreviousRow():
		t.RowID = 0
	case i == 0:
		t.ChargeType = ""
		t.RowID = 0
	default:
		t.RowID = 0
	}
	return err
}

// ValidateInclusiveTax checks that an inclusive row only depends on
// inclusive rows and has a per-unit rate.
func ValidateInclusiveTax(doc *Document, i int) error {
	t := &doc.Taxes[i]
	if !t.IncludedInPrintRate {
		return nil
	}
	idx := i + 1
	inclusiveError := func(msg string) error {
		return apperror.NewBusinessRule(apperror.CodeInclusiveTax, msg).
			WithDetail("row", idx).
			WithDetail("charge_type", string(t.ChargeType))
	}

	if !t.ChargeType.CanBeInclusive() {
		return inclusiveError(fmt.Sprintf("Charge of type '%s' cannot be included in Item Rate or Paid Amount.", t.ChargeType))
	}
	switch t.ChargeType {
	case ChargeOnPreviousRowAmount:
		ref := int(t.RowID)
		if ref > 0 && ref < idx && !bool(doc.Taxes[ref-1].IncludedInPrintRate) {
			return inclusiveError(fmt.Sprintf(
				"Row #%d: Referenced row #%d must be included in Item Rate for this row to be inclusive.", idx, ref))
		}
	case ChargeOnPreviousRowTotal:
		ref := int(t.RowID)
		for j := 0; j < ref && j < i; j++ {
			if !doc.Taxes[j].IncludedInPrintRate {
				return inclusiveError(fmt.Sprintf(
					"Row #%d: Rows 1 to %d must be included in Item Rate for this row to be inclusive.", idx, ref))
			}
		}
	}
	if t.Category == CategoryValuation {
		return inclusiveError("Valuation type charges can not be marked as Inclusive.")
	}
	return nil
}
