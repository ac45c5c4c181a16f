package transaction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
)

func TestParseField(t *testing.T) {
	f, err := ParseField("items.qty")
	require.NoError(t, err)
	assert.Equal(t, FieldQty, f)
	assert.Equal(t, TableItems, f.Table())
	assert.Equal(t, "qty", f.Column())
	assert.Equal(t, KindDecimal, f.Kind())

	_, err = ParseField("items.colour")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	assert.True(t, FieldRemarks.AllowOnSubmit())
	assert.False(t, FieldQty.AllowOnSubmit())
	assert.True(t, FieldTaxesRemove.IsRowEvent())
	assert.Equal(t, NewField(TableTaxes, "row_id"), FieldRowID)
}

func TestSetField(t *testing.T) {
	doc := newInvoice(Line{Qty: dec("1")})
	doc.Taxes = []Charge{onNetTotal("5")}

	require.NoError(t, SetField(doc, FieldQty, 0, json.Number("2.5")))
	require.NoError(t, SetField(doc, FieldRowID, 0, "1"))
	require.NoError(t, SetField(doc, FieldIncludedInPrintRate, 0, 1))
	require.NoError(t, SetField(doc, FieldItemTaxRate, 0, `{"VAT - A": 7}`))
	require.NoError(t, SetField(doc, FieldApplyDiscountOn, 0, "Net Total"))

	assertDec(t, "2.5", doc.Items[0].Qty, "qty")
	assert.EqualValues(t, 1, doc.Taxes[0].RowID)
	assert.True(t, bool(doc.Taxes[0].IncludedInPrintRate))
	assertDec(t, "7", doc.Items[0].ItemTaxRate["VAT - A"], "item_tax_rate")
	assert.Equal(t, DiscountOnNetTotal, doc.ApplyDiscountOn)

	err := SetField(doc, FieldQty, 0, "lots")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	err = SetField(doc, FieldRate, 3, "1")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestRowEvents(t *testing.T) {
	doc := newInvoice(Line{Name: "r1", Qty: dec("1")})

	require.NoError(t, SetField(doc, FieldItemsAdd, 0, entity.Values{"item_code": "WIDGET", "qty": "3", "colour": "red"}))
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "WIDGET", doc.Items[1].ItemCode)
	assert.Equal(t, 2, doc.Items[1].Idx)
	assert.NotEmpty(t, doc.Items[1].Name)
	assertDec(t, "1", doc.Items[1].ConversionFactor, "conversion_factor")

	require.NoError(t, SetField(doc, FieldItemsRemove, 0, 0))
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "WIDGET", doc.Items[0].ItemCode)
	assert.Equal(t, 1, doc.Items[0].Idx)

	require.NoError(t, SetField(doc, FieldTaxesAdd, 0, nil))
	require.Len(t, doc.Taxes, 1)
	assert.Equal(t, Add, doc.Taxes[0].AddDeductTax)

	require.Error(t, SetField(doc, FieldTaxesRemove, 0, 5))
}

func TestMergeLine_IgnoresUnknownKeys(t *testing.T) {
	doc := newInvoice(Line{Name: "r1", Qty: dec("1")})
	values := entity.Values{
		"price_list_rate":     json.Number("120.5"),
		"uom":                 "Box",
		"conversion_factor":   json.Number("12"),
		"item_tax_rate":       `{"VAT - A": 10}`,
		"has_batch_no":        json.Number("0"),
		"projected_qty":       json.Number("42"),
		"discount_percentage": json.Number("5"),
	}

	applied, err := MergeLine(doc, 0, values)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]Field{FieldPriceListRate, FieldUOM, FieldConversionFactor, FieldItemTaxRate, FieldDiscountPercentage},
		applied)
	l := doc.Items[0]
	assertDec(t, "120.5", l.PriceListRate, "price_list_rate")
	assertDec(t, "12", l.ConversionFactor, "conversion_factor")
	assert.Equal(t, "Box", l.UOM)

	applied, err = MergeHeader(doc, entity.Values{"conversion_rate": json.Number("1.25"), "qty": "9"})
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldConversionRate}, applied)
	assertDec(t, "1", doc.Items[0].Qty, "qty")
}

func TestDocumentJSON(t *testing.T) {
	payload := `{
		"name": "new-sales-invoice-1",
		"doctype": "Sales Invoice",
		"docstatus": 0,
		"currency": "USD",
		"conversion_rate": 1,
		"disable_rounded_total": "1",
		"items": [{"item_code": "A", "qty": 2, "rate": "3.5", "item_tax_rate": "{\"VAT - A\": 5}"}],
		"taxes": [{"charge_type": "On Previous Row Total", "row_id": "1", "included_in_print_rate": 0}]
	}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(payload), &doc))
	assert.True(t, bool(doc.DisableRoundedTotal))
	assert.EqualValues(t, 1, doc.Taxes[0].RowID)
	assertDec(t, "5", doc.Items[0].ItemTaxRate["VAT - A"], "item_tax_rate")

	clone := doc.Clone()
	clone.Items[0].ItemTaxRate["VAT - A"] = dec("9")
	clone.Items[0].Qty = dec("7")
	assertDec(t, "5", doc.Items[0].ItemTaxRate["VAT - A"], "original item_tax_rate")
	assertDec(t, "2", doc.Items[0].Qty, "original qty")
}
