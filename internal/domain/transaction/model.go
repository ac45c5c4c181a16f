// Package transaction holds the transaction document model and the
// recalculation engine: line items, charge rows, document totals.
//
// Every calculation step works on a working copy of the document; callers
// own the canonical copy and decide when to commit a result.
package transaction

import (
	"github.com/shopspring/decimal"

	"txcalc/internal/core/entity"
	"txcalc/internal/core/types"
)

// ChargeType governs how a charge row's amount is derived.
type ChargeType string

const (
	ChargeActual               ChargeType = "Actual"
	ChargeOnNetTotal           ChargeType = "On Net Total"
	ChargeOnPreviousRowAmount  ChargeType = "On Previous Row Amount"
	ChargeOnPreviousRowTotal   ChargeType = "On Previous Row Total"
	ChargeOnItemQuantity       ChargeType = "On Item Quantity"
	ChargeManual               ChargeType = "Manual"
	ChargeWeightedDistribution ChargeType = "Weighted Distribution"
)

// Valid reports whether c is a known charge type.
func (c ChargeType) Valid() bool {
	switch c {
	case ChargeActual, ChargeOnNetTotal, ChargeOnPreviousRowAmount, ChargeOnPreviousRowTotal,
		ChargeOnItemQuantity, ChargeManual, ChargeWeightedDistribution:
		return true
	}
	return false
}

// IsPreviousRow reports whether the row references an earlier row.
func (c ChargeType) IsPreviousRow() bool {
	return c == ChargeOnPreviousRowAmount || c == ChargeOnPreviousRowTotal
}

// IsDistributed reports whether the amount is user supplied and spread over lines.
func (c ChargeType) IsDistributed() bool {
	return c == ChargeActual || c == ChargeWeightedDistribution
}

// CanBeInclusive reports whether the type has a per-unit rate that can be
// backed out of an item rate.
func (c ChargeType) CanBeInclusive() bool {
	return c != ChargeActual && c != ChargeManual && c != ChargeWeightedDistribution
}

// AddDeduct is the sign of a charge row.
type AddDeduct string

const (
	Add    AddDeduct = "Add"
	Deduct AddDeduct = "Deduct"
)

// Category controls whether a charge affects the grand total, valuation or both.
type Category string

const (
	CategoryTotal             Category = "Total"
	CategoryValuation         Category = "Valuation"
	CategoryValuationAndTotal Category = "Valuation and Total"
)

// DiscountOn selects the total an additional discount is applied on.
type DiscountOn string

const (
	DiscountOnGrandTotal DiscountOn = "Grand Total"
	DiscountOnNetTotal   DiscountOn = "Net Total"
)

// DiscountBasis records which line discount representation is authoritative.
type DiscountBasis string

const (
	BasisPercentage DiscountBasis = "Percentage"
	BasisAmount     DiscountBasis = "Amount"
)

// MarginType of a line priced above its price list rate.
type MarginType string

const (
	MarginNone       MarginType = ""
	MarginAmount     MarginType = "Amount"
	MarginPercentage MarginType = "Percentage"
)

// Document is a transaction document: header, line items, charge rows and
// payment schedule. JSON keys follow the framework's field names.
type Document struct {
	entity.Document

	CompanyCurrency string      `json:"company_currency,omitempty"`
	PostingDate     string      `json:"posting_date,omitempty"`
	TransactionDate string      `json:"transaction_date,omitempty"`
	Customer        string      `json:"customer,omitempty"`
	Supplier        string      `json:"supplier,omitempty"`
	IsReturn        types.Check `json:"is_return"`
	Status          string      `json:"status,omitempty"`
	Remarks         string      `json:"remarks,omitempty"`

	Currency          string          `json:"currency,omitempty"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
	SellingPriceList  string          `json:"selling_price_list,omitempty"`
	BuyingPriceList   string          `json:"buying_price_list,omitempty"`
	PriceListCurrency string          `json:"price_list_currency,omitempty"`
	PLCConversionRate decimal.Decimal `json:"plc_conversion_rate"`
	IgnorePricingRule types.Check     `json:"ignore_pricing_rule"`

	TaxesAndCharges               string      `json:"taxes_and_charges,omitempty"`
	CalculateTaxOnCompanyCurrency types.Check `json:"calculate_tax_on_company_currency"`

	ApplyDiscountOn              DiscountOn      `json:"apply_discount_on,omitempty"`
	AdditionalDiscountPercentage decimal.Decimal `json:"additional_discount_percentage"`
	DiscountAmount               decimal.Decimal `json:"discount_amount"`
	BaseDiscountAmount           decimal.Decimal `json:"base_discount_amount"`
	DisableRoundedTotal          types.Check     `json:"disable_rounded_total"`
	PaymentTermsTemplate         string          `json:"payment_terms_template,omitempty"`

	TotalQty                    decimal.Decimal `json:"total_qty"`
	TotalNetWeight              decimal.Decimal `json:"total_net_weight"`
	Total                       decimal.Decimal `json:"total"`
	BaseTotal                   decimal.Decimal `json:"base_total"`
	NetTotal                    decimal.Decimal `json:"net_total"`
	BaseNetTotal                decimal.Decimal `json:"base_net_total"`
	TaxesAndChargesAdded        decimal.Decimal `json:"taxes_and_charges_added"`
	BaseTaxesAndChargesAdded    decimal.Decimal `json:"base_taxes_and_charges_added"`
	TaxesAndChargesDeducted     decimal.Decimal `json:"taxes_and_charges_deducted"`
	BaseTaxesAndChargesDeducted decimal.Decimal `json:"base_taxes_and_charges_deducted"`
	TotalTaxesAndCharges        decimal.Decimal `json:"total_taxes_and_charges"`
	BaseTotalTaxesAndCharges    decimal.Decimal `json:"base_total_taxes_and_charges"`
	GrandTotal                  decimal.Decimal `json:"grand_total"`
	BaseGrandTotal              decimal.Decimal `json:"base_grand_total"`
	RoundingAdjustment          decimal.Decimal `json:"rounding_adjustment"`
	BaseRoundingAdjustment      decimal.Decimal `json:"base_rounding_adjustment"`
	RoundedTotal                decimal.Decimal `json:"rounded_total"`
	BaseRoundedTotal            decimal.Decimal `json:"base_rounded_total"`

	Items           []Line       `json:"items"`
	Taxes           []Charge     `json:"taxes"`
	PaymentSchedule []PaymentRow `json:"payment_schedule,omitempty"`
}

// Line is a line item. It has no identity outside its parent document.
type Line struct {
	Name      string `json:"name,omitempty"`
	Idx       int    `json:"idx"`
	ItemCode  string `json:"item_code,omitempty"`
	ItemName  string `json:"item_name,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`

	Qty              decimal.Decimal `json:"qty"`
	UOM              string          `json:"uom,omitempty"`
	StockUOM         string          `json:"stock_uom,omitempty"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	StockQty         decimal.Decimal `json:"stock_qty"`

	PriceListRate      decimal.Decimal `json:"price_list_rate"`
	BasePriceListRate  decimal.Decimal `json:"base_price_list_rate"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	DiscountBasis      DiscountBasis   `json:"discount_basis,omitempty"`
	MarginType         MarginType      `json:"margin_type,omitempty"`
	MarginRateOrAmount decimal.Decimal `json:"margin_rate_or_amount"`
	RateWithMargin     decimal.Decimal `json:"rate_with_margin"`

	Rate          decimal.Decimal `json:"rate"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	Amount        decimal.Decimal `json:"amount"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	NetRate       decimal.Decimal `json:"net_rate"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	BaseNetRate   decimal.Decimal `json:"base_net_rate"`
	BaseNetAmount decimal.Decimal `json:"base_net_amount"`

	ItemTaxTemplate      string          `json:"item_tax_template,omitempty"`
	ItemTaxRate          types.RateMap   `json:"item_tax_rate"`
	CumulatedTaxFraction decimal.Decimal `json:"cumulated_tax_fraction"`
	TaxExclusiveRate     decimal.Decimal `json:"tax_exclusive_rate"`
	ItemTaxes            decimal.Decimal `json:"item_taxes"`
	TaxInclusiveAmount   decimal.Decimal `json:"tax_inclusive_amount"`
	TaxInclusiveRate     decimal.Decimal `json:"tax_inclusive_rate"`

	WeightUOM        string          `json:"weight_uom,omitempty"`
	NetWeightPerUnit decimal.Decimal `json:"net_weight_per_unit"`
	NetWeight        decimal.Decimal `json:"net_weight"`
}

// Charge is a tax or fee row. Row order matters for previous-row references.
type Charge struct {
	Name                     string          `json:"name,omitempty"`
	Idx                      int             `json:"idx"`
	ChargeType               ChargeType      `json:"charge_type"`
	AccountHead              string          `json:"account_head,omitempty"`
	Description              string          `json:"description,omitempty"`
	RowID                    types.RowRef    `json:"row_id"`
	Rate                     decimal.Decimal `json:"rate"`
	IncludedInPrintRate      types.Check     `json:"included_in_print_rate"`
	ExcludeFromItemTaxAmount types.Check     `json:"exclude_from_item_tax_amount"`
	AddDeductTax             AddDeduct       `json:"add_deduct_tax,omitempty"`
	Category                 Category        `json:"category,omitempty"`
	ManualDistribution       types.RateMap   `json:"manual_distribution_detail"`

	TaxAmount                        decimal.Decimal `json:"tax_amount"`
	BaseTaxAmount                    decimal.Decimal `json:"base_tax_amount"`
	TaxAmountAfterDiscountAmount     decimal.Decimal `json:"tax_amount_after_discount_amount"`
	BaseTaxAmountAfterDiscountAmount decimal.Decimal `json:"base_tax_amount_after_discount_amount"`
	Total                            decimal.Decimal `json:"total"`
	BaseTotal                        decimal.Decimal `json:"base_total"`
}

// IsDeduct reports whether the row reduces the running total.
func (c *Charge) IsDeduct() bool {
	return c.AddDeductTax == Deduct
}

// IsValuationOnly reports whether the row is excluded from the grand total.
func (c *Charge) IsValuationOnly() bool {
	return c.Category == CategoryValuation
}

// Effect returns the signed contribution of amount to the running total.
func (c *Charge) Effect(amount decimal.Decimal) decimal.Decimal {
	if c.IsValuationOnly() {
		return decimal.Zero
	}
	if c.IsDeduct() {
		return amount.Neg()
	}
	return amount
}

// PaymentRow is a payment schedule row.
type PaymentRow struct {
	Name              string          `json:"name,omitempty"`
	Idx               int             `json:"idx"`
	PaymentTerm       string          `json:"payment_term,omitempty"`
	DueDate           string          `json:"due_date,omitempty"`
	InvoicePortion    decimal.Decimal `json:"invoice_portion"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	BasePaymentAmount decimal.Decimal `json:"base_payment_amount"`
}

// Clone returns a deep copy of the document. Decimals are immutable values
// and are shared; slices and maps are copied.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.Items != nil {
		out.Items = make([]Line, len(d.Items))
		for i, l := range d.Items {
			l.ItemTaxRate = l.ItemTaxRate.Clone()
			out.Items[i] = l
		}
	}
	if d.Taxes != nil {
		out.Taxes = make([]Charge, len(d.Taxes))
		for i, t := range d.Taxes {
			t.ManualDistribution = t.ManualDistribution.Clone()
			out.Taxes[i] = t
		}
	}
	if d.PaymentSchedule != nil {
		out.PaymentSchedule = append([]PaymentRow(nil), d.PaymentSchedule...)
	}
	return &out
}

// Renumber resets idx on every child row to its 1-based position.
func (d *Document) Renumber() {
	for i := range d.Items {
		d.Items[i].Idx = i + 1
	}
	for i := range d.Taxes {
		d.Taxes[i].Idx = i + 1
	}
	for i := range d.PaymentSchedule {
		d.PaymentSchedule[i].Idx = i + 1
	}
}

// PriceList returns the price list for the given side of the business.
func (d *Document) PriceList(buying bool) string {
	if buying {
		return d.BuyingPriceList
	}
	return d.SellingPriceList
}

// Date returns the posting date, falling back to the transaction date.
func (d *Document) Date() string {
	if d.TransactionDate != "" {
		return d.TransactionDate
	}
	return d.PostingDate
}

// HasInclusiveTax reports whether any charge row is included in the item rate.
func (d *Document) HasInclusiveTax() bool {
	for i := range d.Taxes {
		if d.Taxes[i].IncludedInPrintRate {
			return true
		}
	}
	return false
}
