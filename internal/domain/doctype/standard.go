package doctype

// Document type names.
const (
	Quotation        = "Quotation"
	SalesOrder       = "Sales Order"
	DeliveryNote     = "Delivery Note"
	SalesInvoice     = "Sales Invoice"
	MaterialRequest  = "Material Request"
	PurchaseOrder    = "Purchase Order"
	PurchaseReceipt  = "Purchase Receipt"
	PurchaseInvoice  = "Purchase Invoice"
	StockEntry       = "Stock Entry"
	salesTaxTemplate = "Sales Taxes and Charges Template"
	buyTaxTemplate   = "Purchase Taxes and Charges Template"
)

var (
	sellingDoc = Capabilities{LineItems: true, Pricing: true, Taxes: true}
	buyingDoc  = Capabilities{LineItems: true, Pricing: true, Taxes: true}
)

func with(c Capabilities, schedule, returns bool) Capabilities {
	c.PaymentSchedule = schedule
	c.Returns = returns
	return c
}

// Standard returns a registry with the standard selling, buying and stock
// document types.
func Standard() *Registry {
	r := NewRegistry()

	r.MustRegister(DocType{
		Name: Quotation, Side: Selling, Prefix: "QTN", TaxTemplate: salesTaxTemplate,
		Capabilities: with(sellingDoc, true, false),
		Mappings: map[string]string{
			SalesOrder: "erpnext.selling.doctype.quotation.quotation.make_sales_order",
		},
	})
	r.MustRegister(DocType{
		Name: SalesOrder, Side: Selling, Prefix: "SO", TaxTemplate: salesTaxTemplate,
		Capabilities: with(sellingDoc, true, false),
		Mappings: map[string]string{
			DeliveryNote:    "erpnext.selling.doctype.sales_order.sales_order.make_delivery_note",
			SalesInvoice:    "erpnext.selling.doctype.sales_order.sales_order.make_sales_invoice",
			MaterialRequest: "erpnext.selling.doctype.sales_order.sales_order.make_material_request",
		},
	})
	r.MustRegister(DocType{
		Name: DeliveryNote, Side: Selling, Prefix: "DN", TaxTemplate: salesTaxTemplate,
		Capabilities: with(sellingDoc, false, true),
		Mappings: map[string]string{
			SalesInvoice: "erpnext.stock.doctype.delivery_note.delivery_note.make_sales_invoice",
		},
	})
	r.MustRegister(DocType{
		Name: SalesInvoice, Side: Selling, Prefix: "SINV", TaxTemplate: salesTaxTemplate,
		Capabilities: with(sellingDoc, true, true),
		Mappings: map[string]string{
			DeliveryNote: "erpnext.accounts.doctype.sales_invoice.sales_invoice.make_delivery_note",
		},
	})
	r.MustRegister(DocType{
		Name: MaterialRequest, Side: Buying, Prefix: "MR",
		Capabilities: Capabilities{LineItems: true},
		Mappings: map[string]string{
			PurchaseOrder: "erpnext.stock.doctype.material_request.material_request.make_purchase_order",
			StockEntry:    "erpnext.stock.doctype.material_request.material_request.make_stock_entry",
		},
	})
	r.MustRegister(DocType{
		Name: PurchaseOrder, Side: Buying, Prefix: "PO", TaxTemplate: buyTaxTemplate,
		Capabilities: with(buyingDoc, true, false),
		Mappings: map[string]string{
			PurchaseReceipt: "erpnext.buying.doctype.purchase_order.purchase_order.make_purchase_receipt",
			PurchaseInvoice: "erpnext.buying.doctype.purchase_order.purchase_order.make_purchase_invoice",
		},
	})
	r.MustRegister(DocType{
		Name: PurchaseReceipt, Side: Buying, Prefix: "PREC", TaxTemplate: buyTaxTemplate,
		Capabilities: with(buyingDoc, false, true),
		Mappings: map[string]string{
			PurchaseInvoice: "erpnext.stock.doctype.purchase_receipt.purchase_receipt.make_purchase_invoice",
		},
	})
	r.MustRegister(DocType{
		Name: PurchaseInvoice, Side: Buying, Prefix: "PINV", TaxTemplate: buyTaxTemplate,
		Capabilities: with(buyingDoc, true, true),
		Mappings: map[string]string{
			PurchaseReceipt: "erpnext.accounts.doctype.purchase_invoice.purchase_invoice.make_purchase_receipt",
		},
	})
	r.MustRegister(DocType{
		Name: StockEntry, Side: Stock, Prefix: "STE",
		Capabilities: Capabilities{LineItems: true},
	})

	return r
}
