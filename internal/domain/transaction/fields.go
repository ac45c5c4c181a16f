package transaction

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/core/id"
	"txcalc/internal/core/types"
)

// Table identifies the part of a document a field lives in.
type Table string

const (
	TableHeader          Table = ""
	TableItems           Table = "items"
	TableTaxes           Table = "taxes"
	TablePaymentSchedule Table = "payment_schedule"
)

// Field is a known, table-qualified field name such as "currency" or
// "items.qty". Row add/remove events are fields too ("items_add").
type Field string

// Header fields.
const (
	FieldCompany                       Field = "company"
	FieldCompanyCurrency               Field = "company_currency"
	FieldPostingDate                   Field = "posting_date"
	FieldTransactionDate               Field = "transaction_date"
	FieldCustomer                      Field = "customer"
	FieldSupplier                      Field = "supplier"
	FieldIsReturn                      Field = "is_return"
	FieldStatus                        Field = "status"
	FieldRemarks                       Field = "remarks"
	FieldCurrency                      Field = "currency"
	FieldConversionRate                Field = "conversion_rate"
	FieldSellingPriceList              Field = "selling_price_list"
	FieldBuyingPriceList               Field = "buying_price_list"
	FieldPriceListCurrency             Field = "price_list_currency"
	FieldPLCConversionRate             Field = "plc_conversion_rate"
	FieldIgnorePricingRule             Field = "ignore_pricing_rule"
	FieldTaxesAndCharges               Field = "taxes_and_charges"
	FieldCalculateTaxOnCompanyCurrency Field = "calculate_tax_on_company_currency"
	FieldApplyDiscountOn               Field = "apply_discount_on"
	FieldAdditionalDiscountPercentage  Field = "additional_discount_percentage"
	FieldDiscountAmount                Field = "discount_amount"
	FieldDisableRoundedTotal           Field = "disable_rounded_total"
	FieldPaymentTermsTemplate          Field = "payment_terms_template"
)

// Line item fields.
const (
	FieldItemCode           Field = "items.item_code"
	FieldItemName           Field = "items.item_name"
	FieldWarehouse          Field = "items.warehouse"
	FieldQty                Field = "items.qty"
	FieldUOM                Field = "items.uom"
	FieldStockUOM           Field = "items.stock_uom"
	FieldConversionFactor   Field = "items.conversion_factor"
	FieldPriceListRate      Field = "items.price_list_rate"
	FieldDiscountPercentage Field = "items.discount_percentage"
	FieldLineDiscountAmount Field = "items.discount_amount"
	FieldMarginType         Field = "items.margin_type"
	FieldMarginRateOrAmount Field = "items.margin_rate_or_amount"
	FieldRate               Field = "items.rate"
	FieldAmount             Field = "items.amount"
	FieldItemTaxTemplate    Field = "items.item_tax_template"
	FieldItemTaxRate        Field = "items.item_tax_rate"
	FieldTaxInclusiveRate   Field = "items.tax_inclusive_rate"
	FieldTaxExclusiveRate   Field = "items.tax_exclusive_rate"
	FieldNetWeightPerUnit   Field = "items.net_weight_per_unit"
	FieldWeightUOM          Field = "items.weight_uom"
)

// Charge row fields.
const (
	FieldChargeType               Field = "taxes.charge_type"
	FieldAccountHead              Field = "taxes.account_head"
	FieldChargeDescription        Field = "taxes.description"
	FieldRowID                    Field = "taxes.row_id"
	FieldChargeRate               Field = "taxes.rate"
	FieldTaxAmount                Field = "taxes.tax_amount"
	FieldBaseTaxAmount            Field = "taxes.base_tax_amount"
	FieldIncludedInPrintRate      Field = "taxes.included_in_print_rate"
	FieldExcludeFromItemTaxAmount Field = "taxes.exclude_from_item_tax_amount"
	FieldAddDeductTax             Field = "taxes.add_deduct_tax"
	FieldCategory                 Field = "taxes.category"
	FieldManualDistribution       Field = "taxes.manual_distribution_detail"
)

// Payment schedule fields.
const (
	FieldPaymentTerm    Field = "payment_schedule.payment_term"
	FieldDueDate        Field = "payment_schedule.due_date"
	FieldInvoicePortion Field = "payment_schedule.invoice_portion"
)

// Row events.
const (
	FieldItemsAdd       Field = "items_add"
	FieldItemsRemove    Field = "items_remove"
	FieldTaxesAdd       Field = "taxes_add"
	FieldTaxesRemove    Field = "taxes_remove"
	FieldScheduleAdd    Field = "payment_schedule_add"
	FieldScheduleRemove Field = "payment_schedule_remove"
)

// Kind is the value kind of a field.
type Kind int

const (
	KindString Kind = iota
	KindDecimal
	KindCheck
	KindInt
	KindRateMap
	KindRowAdd
	KindRowRemove
)

type setFunc func(doc *Document, row int, v any) error

type fieldSpec struct {
	table Table
	kind  Kind
	set   setFunc
	// allowOnSubmit marks fields editable on submitted documents.
	allowOnSubmit bool
}

// NewField builds the qualified field for a table column.
func NewField(table Table, name string) Field {
	if table == TableHeader {
		return Field(name)
	}
	return Field(string(table) + "." + name)
}

// ParseField resolves a qualified name into a known field.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if _, ok := fieldTable[f]; !ok {
		return "", apperror.NewValidation(fmt.Sprintf("unknown field %q", s)).
			WithDetail("field", s)
	}
	return f, nil
}

// Known reports whether the field exists in the field table.
func (f Field) Known() bool {
	_, ok := fieldTable[f]
	return ok
}

// Table returns the table the field lives in.
func (f Field) Table() Table {
	return fieldTable[f].table
}

// Kind returns the value kind of the field.
func (f Field) Kind() Kind {
	return fieldTable[f].kind
}

// Column returns the unqualified column name.
func (f Field) Column() string {
	s := string(f)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// IsRowEvent reports whether the field is a row add or remove event.
func (f Field) IsRowEvent() bool {
	k := f.Kind()
	return f.Known() && (k == KindRowAdd || k == KindRowRemove)
}

// AllowOnSubmit reports whether the field may be edited after submission.
func (f Field) AllowOnSubmit() bool {
	return fieldTable[f].allowOnSubmit
}

// Fields returns every known field in stable order.
func Fields() []Field {
	out := make([]Field, 0, len(fieldTable))
	for f := range fieldTable {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetField writes v into field f of the given row (ignored for header fields).
// Row events add a row (v holds initial values) or remove row.
func SetField(doc *Document, f Field, row int, v any) error {
	spec, ok := fieldTable[f]
	if !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown field %q", f)).WithDetail("field", string(f))
	}
	if err := spec.set(doc, row, v); err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return apperror.NewValidation(fmt.Sprintf("invalid value for %s: %v", f, err)).
			WithDetail("field", string(f)).
			WithCause(err)
	}
	return nil
}

// MergeHeader applies remote values onto header fields. Keys that are not
// header fields are ignored. It returns the fields that were applied.
func MergeHeader(doc *Document, values entity.Values) ([]Field, error) {
	return merge(doc, TableHeader, 0, values)
}

// MergeLine applies remote values onto line row. Keys that are not line
// fields are ignored.
func MergeLine(doc *Document, row int, values entity.Values) ([]Field, error) {
	return merge(doc, TableItems, row, values)
}

func merge(doc *Document, table Table, row int, values entity.Values) ([]Field, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var applied []Field
	for _, k := range keys {
		f := NewField(table, k)
		spec, ok := fieldTable[f]
		if !ok || spec.table != table || spec.kind == KindRowAdd || spec.kind == KindRowRemove {
			continue
		}
		if err := SetField(doc, f, row, values[k]); err != nil {
			return applied, err
		}
		applied = append(applied, f)
	}
	return applied, nil
}

// --- setters ---

func rowError(table Table, row, n int) error {
	return apperror.NewValidation(fmt.Sprintf("row %d does not exist in %s", row+1, table)).
		WithDetail("table", string(table)).
		WithDetail("row", row+1).
		WithDetail("rows", n)
}

// LineAt returns the items row or a validation error.
func (d *Document) LineAt(row int) (*Line, error) {
	if row < 0 || row >= len(d.Items) {
		return nil, rowError(TableItems, row, len(d.Items))
	}
	return &d.Items[row], nil
}

// ChargeAt returns the taxes row or a validation error.
func (d *Document) ChargeAt(row int) (*Charge, error) {
	if row < 0 || row >= len(d.Taxes) {
		return nil, rowError(TableTaxes, row, len(d.Taxes))
	}
	return &d.Taxes[row], nil
}

func (d *Document) ScheduleRowAt(row int) (*PaymentRow, error) {
	if row < 0 || row >= len(d.PaymentSchedule) {
		return nil, rowError(TablePaymentSchedule, row, len(d.PaymentSchedule))
	}
	return &d.PaymentSchedule[row], nil
}

type converter[T any] func(any) (T, error)

func toDecimal(v any) (decimal.Decimal, error) { return types.ToDecimal(v) }
func toString(v any) (string, error)           { return types.ToString(v) }

func toCheck(v any) (types.Check, error) {
	b, err := types.ToBool(v)
	return types.Check(b), err
}

func toRowRef(v any) (types.RowRef, error) {
	n, err := types.ToInt(v)
	return types.RowRef(n), err
}

func toRateMap(v any) (types.RateMap, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case types.RateMap:
		return x.Clone(), nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		return types.ParseRateMap([]byte(x))
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return types.ParseRateMap(data)
	case entity.Values:
		return toRateMap(map[string]any(x))
	}
	return nil, fmt.Errorf("cannot convert %T to rate map", v)
}

func stringAs[T ~string](v any) (T, error) {
	s, err := types.ToString(v)
	return T(s), err
}

func headerField[T any](conv converter[T], get func(*Document) *T) setFunc {
	return func(doc *Document, _ int, v any) error {
		x, err := conv(v)
		if err != nil {
			return err
		}
		*get(doc) = x
		return nil
	}
}

func itemField[T any](conv converter[T], get func(*Line) *T) setFunc {
	return func(doc *Document, row int, v any) error {
		l, err := doc.LineAt(row)
		if err != nil {
			return err
		}
		x, err := conv(v)
		if err != nil {
			return err
		}
		*get(l) = x
		return nil
	}
}

func taxField[T any](conv converter[T], get func(*Charge) *T) setFunc {
	return func(doc *Document, row int, v any) error {
		c, err := doc.ChargeAt(row)
		if err != nil {
			return err
		}
		x, err := conv(v)
		if err != nil {
			return err
		}
		*get(c) = x
		return nil
	}
}

func scheduleField[T any](conv converter[T], get func(*PaymentRow) *T) setFunc {
	return func(doc *Document, row int, v any) error {
		r, err := doc.ScheduleRowAt(row)
		if err != nil {
			return err
		}
		x, err := conv(v)
		if err != nil {
			return err
		}
		*get(r) = x
		return nil
	}
}

func valuesOf(v any) (entity.Values, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case entity.Values:
		return x, nil
	case map[string]any:
		return x, nil
	}
	return nil, fmt.Errorf("row values must be an object, got %T", v)
}

func addRow(table Table) setFunc {
	return func(doc *Document, _ int, v any) error {
		values, err := valuesOf(v)
		if err != nil {
			return err
		}
		row := 0
		switch table {
		case TableItems:
			doc.Items = append(doc.Items, Line{Name: id.RowName(), ConversionFactor: types.One})
			row = len(doc.Items) - 1
		case TableTaxes:
			doc.Taxes = append(doc.Taxes, Charge{Name: id.RowName(), AddDeductTax: Add, Category: CategoryTotal})
			row = len(doc.Taxes) - 1
		case TablePaymentSchedule:
			doc.PaymentSchedule = append(doc.PaymentSchedule, PaymentRow{Name: id.RowName()})
			row = len(doc.PaymentSchedule) - 1
		}
		doc.Renumber()
		_, err = merge(doc, table, row, values)
		return err
	}
}

func removeRow(table Table) setFunc {
	return func(doc *Document, _ int, v any) error {
		row, err := types.ToInt(v)
		if err != nil {
			return err
		}
		switch table {
		case TableItems:
			if _, err := doc.LineAt(row); err != nil {
				return err
			}
			doc.Items = append(doc.Items[:row], doc.Items[row+1:]...)
		case TableTaxes:
			if _, err := doc.ChargeAt(row); err != nil {
				return err
			}
			doc.Taxes = append(doc.Taxes[:row], doc.Taxes[row+1:]...)
		case TablePaymentSchedule:
			if _, err := doc.ScheduleRowAt(row); err != nil {
				return err
			}
			doc.PaymentSchedule = append(doc.PaymentSchedule[:row], doc.PaymentSchedule[row+1:]...)
		}
		doc.Renumber()
		return nil
	}
}

// fieldTable is filled in init: row events merge through the table itself.
var fieldTable map[Field]fieldSpec

func init() {
	fieldTable = map[Field]fieldSpec{
		FieldCompany:                       {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.Company })},
		FieldCompanyCurrency:               {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.CompanyCurrency })},
		FieldPostingDate:                   {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.PostingDate })},
		FieldTransactionDate:               {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.TransactionDate })},
		FieldCustomer:                      {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.Customer })},
		FieldSupplier:                      {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.Supplier })},
		FieldIsReturn:                      {kind: KindCheck, set: headerField(toCheck, func(d *Document) *types.Check { return &d.IsReturn })},
		FieldStatus:                        {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.Status }), allowOnSubmit: true},
		FieldRemarks:                       {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.Remarks }), allowOnSubmit: true},
		FieldCurrency:                      {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.Currency })},
		FieldConversionRate:                {kind: KindDecimal, set: headerField(toDecimal, func(d *Document) *decimal.Decimal { return &d.ConversionRate })},
		FieldSellingPriceList:              {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.SellingPriceList })},
		FieldBuyingPriceList:               {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.BuyingPriceList })},
		FieldPriceListCurrency:             {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.PriceListCurrency })},
		FieldPLCConversionRate:             {kind: KindDecimal, set: headerField(toDecimal, func(d *Document) *decimal.Decimal { return &d.PLCConversionRate })},
		FieldIgnorePricingRule:             {kind: KindCheck, set: headerField(toCheck, func(d *Document) *types.Check { return &d.IgnorePricingRule })},
		FieldTaxesAndCharges:               {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.TaxesAndCharges })},
		FieldCalculateTaxOnCompanyCurrency: {kind: KindCheck, set: headerField(toCheck, func(d *Document) *types.Check { return &d.CalculateTaxOnCompanyCurrency })},
		FieldApplyDiscountOn:               {kind: KindString, set: headerField(stringAs[DiscountOn], func(d *Document) *DiscountOn { return &d.ApplyDiscountOn })},
		FieldAdditionalDiscountPercentage:  {kind: KindDecimal, set: headerField(toDecimal, func(d *Document) *decimal.Decimal { return &d.AdditionalDiscountPercentage })},
		FieldDiscountAmount:                {kind: KindDecimal, set: headerField(toDecimal, func(d *Document) *decimal.Decimal { return &d.DiscountAmount })},
		FieldDisableRoundedTotal:           {kind: KindCheck, set: headerField(toCheck, func(d *Document) *types.Check { return &d.DisableRoundedTotal })},
		FieldPaymentTermsTemplate:          {kind: KindString, set: headerField(toString, func(d *Document) *string { return &d.PaymentTermsTemplate })},

		FieldItemCode:           {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.ItemCode })},
		FieldItemName:           {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.ItemName })},
		FieldWarehouse:          {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.Warehouse })},
		FieldQty:                {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.Qty })},
		FieldUOM:                {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.UOM })},
		FieldStockUOM:           {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.StockUOM })},
		FieldConversionFactor:   {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.ConversionFactor })},
		FieldPriceListRate:      {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.PriceListRate })},
		FieldDiscountPercentage: {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.DiscountPercentage })},
		FieldLineDiscountAmount: {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.DiscountAmount })},
		FieldMarginType:         {table: TableItems, kind: KindString, set: itemField(stringAs[MarginType], func(l *Line) *MarginType { return &l.MarginType })},
		FieldMarginRateOrAmount: {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.MarginRateOrAmount })},
		FieldRate:               {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.Rate })},
		FieldAmount:             {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.Amount })},
		FieldItemTaxTemplate:    {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.ItemTaxTemplate })},
		FieldItemTaxRate:        {table: TableItems, kind: KindRateMap, set: itemField(toRateMap, func(l *Line) *types.RateMap { return &l.ItemTaxRate })},
		FieldTaxInclusiveRate:   {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.TaxInclusiveRate })},
		FieldTaxExclusiveRate:   {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.TaxExclusiveRate })},
		FieldNetWeightPerUnit:   {table: TableItems, kind: KindDecimal, set: itemField(toDecimal, func(l *Line) *decimal.Decimal { return &l.NetWeightPerUnit })},
		FieldWeightUOM:          {table: TableItems, kind: KindString, set: itemField(toString, func(l *Line) *string { return &l.WeightUOM })},

		FieldChargeType:               {table: TableTaxes, kind: KindString, set: taxField(stringAs[ChargeType], func(c *Charge) *ChargeType { return &c.ChargeType })},
		FieldAccountHead:              {table: TableTaxes, kind: KindString, set: taxField(toString, func(c *Charge) *string { return &c.AccountHead })},
		FieldChargeDescription:        {table: TableTaxes, kind: KindString, set: taxField(toString, func(c *Charge) *string { return &c.Description })},
		FieldRowID:                    {table: TableTaxes, kind: KindInt, set: taxField(toRowRef, func(c *Charge) *types.RowRef { return &c.RowID })},
		FieldChargeRate:               {table: TableTaxes, kind: KindDecimal, set: taxField(toDecimal, func(c *Charge) *decimal.Decimal { return &c.Rate })},
		FieldTaxAmount:                {table: TableTaxes, kind: KindDecimal, set: taxField(toDecimal, func(c *Charge) *decimal.Decimal { return &c.TaxAmount })},
		FieldBaseTaxAmount:            {table: TableTaxes, kind: KindDecimal, set: taxField(toDecimal, func(c *Charge) *decimal.Decimal { return &c.BaseTaxAmount })},
		FieldIncludedInPrintRate:      {table: TableTaxes, kind: KindCheck, set: taxField(toCheck, func(c *Charge) *types.Check { return &c.IncludedInPrintRate })},
		FieldExcludeFromItemTaxAmount: {table: TableTaxes, kind: KindCheck, set: taxField(toCheck, func(c *Charge) *types.Check { return &c.ExcludeFromItemTaxAmount })},
		FieldAddDeductTax:             {table: TableTaxes, kind: KindString, set: taxField(stringAs[AddDeduct], func(c *Charge) *AddDeduct { return &c.AddDeductTax })},
		FieldCategory:                 {table: TableTaxes, kind: KindString, set: taxField(stringAs[Category], func(c *Charge) *Category { return &c.Category })},
		FieldManualDistribution:       {table: TableTaxes, kind: KindRateMap, set: taxField(toRateMap, func(c *Charge) *types.RateMap { return &c.ManualDistribution })},

		FieldPaymentTerm:    {table: TablePaymentSchedule, kind: KindString, set: scheduleField(toString, func(r *PaymentRow) *string { return &r.PaymentTerm })},
		FieldDueDate:        {table: TablePaymentSchedule, kind: KindString, set: scheduleField(toString, func(r *PaymentRow) *string { return &r.DueDate })},
		FieldInvoicePortion: {table: TablePaymentSchedule, kind: KindDecimal, set: scheduleField(toDecimal, func(r *PaymentRow) *decimal.Decimal { return &r.InvoicePortion })},

		FieldItemsAdd:       {table: TableItems, kind: KindRowAdd, set: addRow(TableItems)},
		FieldItemsRemove:    {table: TableItems, kind: KindRowRemove, set: removeRow(TableItems)},
		FieldTaxesAdd:       {table: TableTaxes, kind: KindRowAdd, set: addRow(TableTaxes)},
		FieldTaxesRemove:    {table: TableTaxes, kind: KindRowRemove, set: removeRow(TableTaxes)},
		FieldScheduleAdd:    {table: TablePaymentSchedule, kind: KindRowAdd, set: addRow(TablePaymentSchedule)},
		FieldScheduleRemove: {table: TablePaymentSchedule, kind: KindRowRemove, set: removeRow(TablePaymentSchedule)},
	}
}
