package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/domain/transaction"
)

type call struct {
	method string
	args   map[string]any
}

// fakeInvoker answers with canned messages keyed by method.
type fakeInvoker struct {
	messages map[string]string
	exc      map[string]string
	err      error
	calls    []call
}

func (f *fakeInvoker) Invoke(_ context.Context, method string, args map[string]any) (Response, error) {
	f.calls = append(f.calls, call{method: method, args: args})
	if f.err != nil {
		return Response{}, f.err
	}
	if exc, ok := f.exc[method]; ok {
		raw, _ := json.Marshal(exc)
		return Response{Exc: raw}, nil
	}
	return Response{Message: json.RawMessage(f.messages[method])}, nil
}

func TestResponse_Failed(t *testing.T) {
	tests := []struct {
		exc  string
		want bool
	}{
		{exc: "", want: false},
		{exc: "null", want: false},
		{exc: "0", want: false},
		{exc: `""`, want: false},
		{exc: `"Traceback...\nfrappe.exceptions.ValidationError: Item not found"`, want: true},
		{exc: `["Traceback"]`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.exc, func(t *testing.T) {
			assert.Equal(t, tt.want, Response{Exc: json.RawMessage(tt.exc)}.Failed())
		})
	}

	r := Response{Exc: json.RawMessage(`"Traceback...\nfrappe.exceptions.ValidationError: Item not found"`)}
	assert.Equal(t, "frappe.exceptions.ValidationError: Item not found", r.ExcMessage())
}

func TestCall_Errors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		c := New(&fakeInvoker{err: errors.New("connection refused")})
		err := c.Call(context.Background(), MethodItemDetails, nil, nil)
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeRemoteCall))
	})

	t.Run("server exception", func(t *testing.T) {
		c := New(&fakeInvoker{exc: map[string]string{MethodConversionFactor: "UOM Box not found"}})
		_, err := c.ConversionFactor(context.Background(), "WIDGET", "Box")
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeRemoteCall))
		assert.Contains(t, err.Error(), "UOM Box not found")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := New(InvokerFunc(func(ctx context.Context, _ string, _ map[string]any) (Response, error) {
			return Response{}, ctx.Err()
		}))
		err := c.Call(ctx, MethodItemDetails, nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestProcedures(t *testing.T) {
	inv := &fakeInvoker{messages: map[string]string{
		MethodConversionFactor: `{"conversion_factor": 12}`,
		MethodWeightPerUnit:    `0.25`,
		MethodExchangeRate:     `1.0825`,
		MethodItemTaxMap:       `"{\"VAT - A\": 7.5}"`,
		MethodItemDetails:      `{"price_list_rate": 120.50, "uom": "Box", "has_batch_no": 0}`,
		MethodTaxesTemplate:    `[{"charge_type": "On Net Total", "account_head": "VAT - A", "rate": 5}]`,
		MethodPaymentTerms:     `[{"payment_term": "Advance", "invoice_portion": 30}, {"payment_term": "Net 30", "invoice_portion": 70}]`,
		MethodApplyPriceList:   `{"parent": {"plc_conversion_rate": 1}, "children": [{"child_docname": "r1", "price_list_rate": 99}]}`,
		MethodMapDocument:      `{"doctype": "Delivery Note", "name": "new-delivery-note-1", "items": [{"item_code": "A", "qty": 2, "rate": 10}]}`,
	}}
	c := New(inv)
	ctx := context.Background()

	cf, err := c.ConversionFactor(ctx, "WIDGET", "Box")
	require.NoError(t, err)
	assert.True(t, cf.Equal(decimal.NewFromInt(12)))

	w, err := c.WeightPerUnit(ctx, "WIDGET", "Kg")
	require.NoError(t, err)
	assert.Equal(t, "0.25", w.String())

	rate, err := c.ExchangeRate(ctx, "2026-10-01", "EUR", "USD", true)
	require.NoError(t, err)
	assert.Equal(t, "1.0825", rate.String())
	assert.Equal(t, "for_buying", inv.calls[len(inv.calls)-1].args["args"])

	taxMap, err := c.ItemTaxMap(ctx, "Reduced", "Acme", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, "7.5", taxMap["VAT - A"].String())

	details, err := c.ItemDetails(ctx, ItemArgs{ItemCode: "WIDGET"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("120.50"), details["price_list_rate"])
	assert.Equal(t, "Box", details.GetString("uom"))

	rows, err := c.TaxesTemplate(ctx, "Sales Taxes and Charges Template", "VAT 5%")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "VAT - A", rows[0].GetString("account_head"))

	terms, err := c.PaymentTerms(ctx, "30/70", "2026-10-01", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Len(t, terms, 2)

	doc := &transaction.Document{
		Document: entity.Document{DocType: "Sales Invoice", Name: "new-sales-invoice-1"},
		Items:    []transaction.Line{{Name: "r1", ItemCode: "A"}, {Name: "r2"}},
	}
	pl, err := c.ApplyPriceList(ctx, doc, false)
	require.NoError(t, err)
	require.Len(t, pl.Children, 1)
	assert.Equal(t, "r1", pl.Children[0].GetString("child_docname"))
	sent := inv.calls[len(inv.calls)-1].args["args"].(map[string]any)
	assert.Len(t, sent["items"], 1)

	mapped, err := c.MapDocument(ctx, "erpnext.selling.doctype.sales_order.sales_order.make_delivery_note", "SO-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, "Delivery Note", mapped.DocType)
	require.Len(t, mapped.Items, 1)
	assert.True(t, mapped.Items[0].Qty.Equal(decimal.NewFromInt(2)))
}

func TestNewItemArgs(t *testing.T) {
	doc := &transaction.Document{
		Document:         entity.Document{DocType: "Purchase Order", Company: "Acme"},
		Supplier:         "Globex",
		BuyingPriceList:  "Standard Buying",
		SellingPriceList: "Standard Selling",
		PostingDate:      "2026-10-02",
	}
	l := &transaction.Line{Name: "r1", ItemCode: "WIDGET", UOM: "Box"}

	args := NewItemArgs(doc, l, true)
	assert.Equal(t, "Standard Buying", args.PriceList)
	assert.Equal(t, "2026-10-02", args.TransactionDate)
	assert.Equal(t, "r1", args.ChildDocname)
	assert.Equal(t, "Globex", args.Supplier)
}
