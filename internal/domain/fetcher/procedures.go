package fetcher

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/entity"
	"txcalc/internal/core/types"
	"txcalc/internal/domain/transaction"
)

// Remote procedure names.
const (
	MethodItemDetails      = "erpnext.stock.get_item_details.get_item_details"
	MethodConversionFactor = "erpnext.stock.get_item_details.get_conversion_factor"
	MethodWeightPerUnit    = "erpnext.stock.get_item_details.get_weight_per_unit"
	MethodApplyPriceList   = "erpnext.stock.get_item_details.apply_price_list"
	MethodItemTaxMap       = "erpnext.stock.get_item_details.get_item_tax_map"
	MethodExchangeRate     = "erpnext.setup.utils.get_exchange_rate"
	MethodTaxesTemplate    = "erpnext.controllers.transaction_controller.get_taxes_and_charges"
	MethodPaymentTerms     = "erpnext.accounts.doctype.payment_terms_template.payment_terms_template.get_payment_terms"
	MethodMapDocument      = "frappe.model.mapper.make_mapped_doc"
)

// ItemArgs is the line context sent with item detail and price list requests.
type ItemArgs struct {
	DocType           string          `json:"doctype"`
	Name              string          `json:"name,omitempty"`
	ChildDocname      string          `json:"child_docname,omitempty"`
	ItemCode          string          `json:"item_code"`
	Company           string          `json:"company,omitempty"`
	Customer          string          `json:"customer,omitempty"`
	Supplier          string          `json:"supplier,omitempty"`
	Currency          string          `json:"currency,omitempty"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
	PriceList         string          `json:"price_list,omitempty"`
	PriceListCurrency string          `json:"price_list_currency,omitempty"`
	PLCConversionRate decimal.Decimal `json:"plc_conversion_rate"`
	TransactionDate   string          `json:"transaction_date,omitempty"`
	IgnorePricingRule types.Check     `json:"ignore_pricing_rule"`
	IsReturn          types.Check     `json:"is_return"`
	Qty               decimal.Decimal `json:"qty"`
	UOM               string          `json:"uom,omitempty"`
	StockUOM          string          `json:"stock_uom,omitempty"`
	ConversionFactor  decimal.Decimal `json:"conversion_factor"`
	Warehouse         string          `json:"warehouse,omitempty"`
	PriceListRate     decimal.Decimal `json:"price_list_rate"`
}

// NewItemArgs builds the request context for a line.
func NewItemArgs(doc *transaction.Document, l *transaction.Line, buying bool) ItemArgs {
	return ItemArgs{
		DocType:           doc.DocType,
		Name:              doc.Name,
		ChildDocname:      l.Name,
		ItemCode:          l.ItemCode,
		Company:           doc.Company,
		Customer:          doc.Customer,
		Supplier:          doc.Supplier,
		Currency:          doc.Currency,
		ConversionRate:    doc.ConversionRate,
		PriceList:         doc.PriceList(buying),
		PriceListCurrency: doc.PriceListCurrency,
		PLCConversionRate: doc.PLCConversionRate,
		TransactionDate:   doc.Date(),
		IgnorePricingRule: doc.IgnorePricingRule,
		IsReturn:          doc.IsReturn,
		Qty:               l.Qty,
		UOM:               l.UOM,
		StockUOM:          l.StockUOM,
		ConversionFactor:  l.ConversionFactor,
		Warehouse:         l.Warehouse,
		PriceListRate:     l.PriceListRate,
	}
}

// ItemDetails returns the item defaults for a line: rate, uom, conversion
// factor, tax template and whatever else the server knows about the item.
func (c *Client) ItemDetails(ctx context.Context, args ItemArgs) (entity.Values, error) {
	var out entity.Values
	err := c.Call(ctx, MethodItemDetails, map[string]any{"args": args}, &out)
	return out, err
}

// ConversionFactor returns the factor converting uom into the item's stock uom.
func (c *Client) ConversionFactor(ctx context.Context, itemCode, uom string) (decimal.Decimal, error) {
	var out struct {
		ConversionFactor json.Number `json:"conversion_factor"`
	}
	if err := c.Call(ctx, MethodConversionFactor, map[string]any{
		"item_code": itemCode,
		"uom":       uom,
	}, &out); err != nil {
		return decimal.Zero, err
	}
	return types.ToDecimal(out.ConversionFactor)
}

// WeightPerUnit returns the item's net weight in weightUOM.
func (c *Client) WeightPerUnit(ctx context.Context, itemCode, weightUOM string) (decimal.Decimal, error) {
	var out any
	if err := c.Call(ctx, MethodWeightPerUnit, map[string]any{
		"item_code":  itemCode,
		"weight_uom": weightUOM,
	}, &out); err != nil {
		return decimal.Zero, err
	}
	return types.ToDecimal(out)
}

// ExchangeRate returns the rate converting from into to on date.
func (c *Client) ExchangeRate(ctx context.Context, date, from, to string, buying bool) (decimal.Decimal, error) {
	side := "for_selling"
	if buying {
		side = "for_buying"
	}
	var out any
	if err := c.Call(ctx, MethodExchangeRate, map[string]any{
		"transaction_date": date,
		"from_currency":    from,
		"to_currency":      to,
		"args":             side,
	}, &out); err != nil {
		return decimal.Zero, err
	}
	return types.ToDecimal(out)
}

// PriceListResult is the answer of apply_price_list.
type PriceListResult struct {
	Parent   entity.Values   `json:"parent"`
	Children []entity.Values `json:"children"`
}

// ApplyPriceList fetches price list rates for every line of the document.
func (c *Client) ApplyPriceList(ctx context.Context, doc *transaction.Document, buying bool) (PriceListResult, error) {
	items := make([]ItemArgs, 0, len(doc.Items))
	for i := range doc.Items {
		if doc.Items[i].ItemCode == "" {
			continue
		}
		items = append(items, NewItemArgs(doc, &doc.Items[i], buying))
	}

	header := NewItemArgs(doc, &transaction.Line{}, buying)
	args := map[string]any{
		"doctype":             header.DocType,
		"name":                header.Name,
		"company":             header.Company,
		"currency":            header.Currency,
		"conversion_rate":     header.ConversionRate,
		"price_list":          header.PriceList,
		"price_list_currency": header.PriceListCurrency,
		"plc_conversion_rate": header.PLCConversionRate,
		"transaction_date":    header.TransactionDate,
		"ignore_pricing_rule": header.IgnorePricingRule,
		"items":               items,
	}

	var out PriceListResult
	err := c.Call(ctx, MethodApplyPriceList, map[string]any{"args": args}, &out)
	return out, err
}

// ItemTaxMap returns the per-account rates of an item tax template.
func (c *Client) ItemTaxMap(ctx context.Context, template, company, date string) (types.RateMap, error) {
	var out any
	if err := c.Call(ctx, MethodItemTaxMap, map[string]any{
		"item_tax_template": template,
		"company":           company,
		"transaction_date":  date,
		"as_json":           1,
	}, &out); err != nil {
		return nil, err
	}

	switch m := out.(type) {
	case nil:
		return nil, nil
	case string:
		if m == "" {
			return nil, nil
		}
		return types.ParseRateMap([]byte(m))
	default:
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		return types.ParseRateMap(raw)
	}
}

// TaxesTemplate returns the charge rows of a taxes and charges template.
func (c *Client) TaxesTemplate(ctx context.Context, masterDocType, masterName string) ([]entity.Values, error) {
	var out []entity.Values
	err := c.Call(ctx, MethodTaxesTemplate, map[string]any{
		"master_doctype": masterDocType,
		"master_name":    masterName,
	}, &out)
	return out, err
}

// PaymentTerms returns the payment schedule rows of a terms template.
func (c *Client) PaymentTerms(ctx context.Context, template, postingDate string, grandTotal decimal.Decimal) ([]entity.Values, error) {
	var out []entity.Values
	err := c.Call(ctx, MethodPaymentTerms, map[string]any{
		"terms_template": template,
		"posting_date":   postingDate,
		"grand_total":    grandTotal,
	}, &out)
	return out, err
}

// MapDocument asks the server to build a draft from a submitted source
// document with the given mapper method.
func (c *Client) MapDocument(ctx context.Context, method, sourceName string) (*transaction.Document, error) {
	var out transaction.Document
	if err := c.Call(ctx, MethodMapDocument, map[string]any{
		"method":      method,
		"source_name": sourceName,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
