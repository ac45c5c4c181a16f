package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/core/numerator"
	"txcalc/internal/domain"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/handlers"
	"txcalc/internal/domain/transaction"
	"txcalc/internal/infrastructure/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

// noRemote fails every call, as a server that knows nothing.
var noRemote = fetcher.InvokerFunc(func(_ context.Context, method string, _ map[string]any) (fetcher.Response, error) {
	return fetcher.Response{}, errors.New("unexpected call to " + method)
})

func newManager(t *testing.T, inv fetcher.Invoker, cfg Config) (*Manager, *memory.Store) {
	t.Helper()
	types := doctype.Standard()
	reg := dispatch.NewRegistry()
	f := fetcher.New(inv)
	require.NoError(t, handlers.Register(reg, types, f))

	store := memory.New()
	m := NewManager(Deps{
		Types:     types,
		Registry:  reg,
		Calc:      transaction.NewCalculator(transaction.DefaultPrecision()),
		Fetcher:   f,
		Store:     store,
		Numerator: numerator.NewMemory(),
	}, cfg)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, store
}

func invoice(lines ...transaction.Line) *transaction.Document {
	for i := range lines {
		if lines[i].ConversionFactor.IsZero() {
			lines[i].ConversionFactor = decimal.NewFromInt(1)
		}
	}
	return &transaction.Document{
		Document:        entity.NewDocument(doctype.SalesInvoice, "Acme"),
		CompanyCurrency: "USD",
		Currency:        "USD",
		PostingDate:     "2026-10-01",
		Items:           lines,
	}
}

func TestController_ApplyEdit(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, noRemote, Config{})

	c, err := m.Open(ctx, invoice(transaction.Line{Qty: dec("10"), PriceListRate: dec("100")}))
	require.NoError(t, err)

	doc, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldDiscountPercentage, Value: "10"})
	require.NoError(t, err)
	assertDec(t, "90", doc.Items[0].Rate, "rate")
	assertDec(t, "900", doc.GrandTotal, "grand_total")

	doc, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldTaxesAdd, Value: entity.Values{
		"charge_type": "On Net Total", "account_head": "VAT - A", "rate": "5",
	}})
	require.NoError(t, err)
	assertDec(t, "945", doc.GrandTotal, "grand_total")

	doc, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldQty, Value: "20"})
	require.NoError(t, err)
	assertDec(t, "1890", doc.GrandTotal, "grand_total")
	assertDec(t, "10", doc.Items[0].DiscountPercentage, "discount_percentage")

	_, version := c.Snapshot()
	assert.Equal(t, int64(3), version)
}

func TestController_ApplyEdit_Errors(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, noRemote, Config{})
	c, err := m.Open(ctx, invoice(transaction.Line{Qty: dec("1"), Rate: dec("10")}))
	require.NoError(t, err)

	t.Run("unknown field changes nothing", func(t *testing.T) {
		_, before := c.Snapshot()
		_, err := c.ApplyEdit(ctx, Edit{Field: "items.colour", Value: "red"})
		require.Error(t, err)
		assert.True(t, apperror.IsValidation(err))
		_, after := c.Snapshot()
		assert.Equal(t, before, after)
	})

	t.Run("invalid value changes nothing", func(t *testing.T) {
		_, before := c.Snapshot()
		_, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldQty, Value: "many"})
		require.Error(t, err)
		_, after := c.Snapshot()
		assert.Equal(t, before, after)
	})

	t.Run("failed recalculation keeps the edit", func(t *testing.T) {
		doc, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldQty, Value: "-1"})
		require.Error(t, err)
		assert.True(t, apperror.IsValidation(err))
		require.NotNil(t, doc)
		assertDec(t, "-1", doc.Items[0].Qty, "qty")
	})
}

func TestController_SaveAndSubmit(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, noRemote, Config{})

	var submitted []string
	m.Hooks().OnBeforeSave(func(_ context.Context, doc *transaction.Document) error {
		if doc.Customer == "" {
			return apperror.NewValidation("Customer is mandatory.")
		}
		return nil
	})
	m.Hooks().OnAfterSubmit(func(_ context.Context, doc *transaction.Document) error {
		submitted = append(submitted, doc.Name)
		return nil
	})

	c, err := m.Open(ctx, invoice(transaction.Line{Qty: dec("2"), Rate: dec("50")}))
	require.NoError(t, err)

	_, err = c.Save(ctx)
	require.Error(t, err)
	list, err := store.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.TotalCount)

	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldCustomer, Value: "Globex"})
	require.NoError(t, err)
	doc, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SINV-2026-00001", doc.Name)

	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldScheduleAdd, Value: entity.Values{"invoice_portion": 60}})
	require.NoError(t, err)
	_, err = c.Submit(ctx)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldInvoicePortion, Row: 0, Value: "100"})
	require.NoError(t, err)
	doc, err = c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.Submitted, doc.DocStatus)
	assert.Equal(t, "SINV-2026-00001", doc.Name)
	assertDec(t, "100", doc.PaymentSchedule[0].PaymentAmount, "payment_amount")
	assert.Equal(t, []string{"SINV-2026-00001"}, submitted)

	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldQty, Value: "3"})
	assert.True(t, apperror.HasCode(err, apperror.CodeDocumentSubmitted))

	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldRemarks, Value: "paid by wire"})
	require.NoError(t, err)
	_, err = c.Save(ctx)
	require.NoError(t, err)

	stored, err := store.Get(ctx, doctype.SalesInvoice, "SINV-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, "paid by wire", stored.Remarks)
	assert.Equal(t, entity.Submitted, stored.DocStatus)

	loaded, err := m.Load(ctx, doctype.SalesInvoice, "SINV-2026-00001")
	require.NoError(t, err)
	snap, _ := loaded.Snapshot()
	assertDec(t, "100", snap.GrandTotal, "grand_total")
}

// gatedConversion answers conversion factor calls once the gate of the
// requested uom is closed.
type gatedConversion struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	facts map[string]string
}

func (g *gatedConversion) gate(uom string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gates[uom]
}

func (g *gatedConversion) Invoke(_ context.Context, method string, args map[string]any) (fetcher.Response, error) {
	if method != fetcher.MethodConversionFactor {
		return fetcher.Response{}, errors.New("unexpected call to " + method)
	}
	uom, _ := args["uom"].(string)
	<-g.gate(uom)
	msg, ok := g.facts[uom]
	if !ok {
		exc, _ := json.Marshal("frappe.exceptions.ValidationError: UOM " + uom + " not found")
		return fetcher.Response{Exc: exc}, nil
	}
	return fetcher.Response{Message: json.RawMessage(`{"conversion_factor": ` + msg + `}`)}, nil
}

func openWidget(t *testing.T, m *Manager) *Controller {
	t.Helper()
	c, err := m.Open(context.Background(), invoice(transaction.Line{ItemCode: "WIDGET", UOM: "Nos", Qty: dec("3"), Rate: dec("10")}))
	require.NoError(t, err)
	return c
}

func TestController_FetchResult(t *testing.T) {
	ctx := context.Background()
	g := &gatedConversion{
		gates: map[string]chan struct{}{"Box": make(chan struct{})},
		facts: map[string]string{"Box": "12"},
	}
	m, _ := newManager(t, g, Config{})
	c := openWidget(t, m)

	doc, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldUOM, Value: "Box"})
	require.NoError(t, err)
	assertDec(t, "1", doc.Items[0].ConversionFactor, "conversion_factor")
	assert.Equal(t, 1, c.Pending())

	close(g.gates["Box"])
	require.NoError(t, c.Settle(ctx))

	doc, _ = c.Snapshot()
	assertDec(t, "12", doc.Items[0].ConversionFactor, "conversion_factor")
	assertDec(t, "36", doc.Items[0].StockQty, "stock_qty")
	assert.Empty(t, c.Messages())
}

func TestController_StaleFetchIsDropped(t *testing.T) {
	ctx := context.Background()
	g := &gatedConversion{
		gates: map[string]chan struct{}{"Pallet": make(chan struct{}), "Box": make(chan struct{})},
		facts: map[string]string{"Pallet": "5", "Box": "12"},
	}
	m, _ := newManager(t, g, Config{})
	c := openWidget(t, m)

	_, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldUOM, Value: "Pallet"})
	require.NoError(t, err)
	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldUOM, Value: "Box"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Pending())

	close(g.gates["Box"])
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)
	close(g.gates["Pallet"])
	require.NoError(t, c.Settle(ctx))

	doc, _ := c.Snapshot()
	assert.Equal(t, "Box", doc.Items[0].UOM)
	assertDec(t, "12", doc.Items[0].ConversionFactor, "conversion_factor")
}

func TestController_FetchFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	closed := make(chan struct{})
	close(closed)
	g := &gatedConversion{gates: map[string]chan struct{}{"Crate": closed}}
	m, _ := newManager(t, g, Config{})
	c := openWidget(t, m)

	_, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldUOM, Value: "Crate"})
	require.NoError(t, err)
	require.NoError(t, c.Settle(ctx))

	doc, _ := c.Snapshot()
	assert.Equal(t, "Crate", doc.Items[0].UOM)
	assertDec(t, "1", doc.Items[0].ConversionFactor, "conversion_factor")
	require.Len(t, c.Messages(), 1)
	assert.Contains(t, c.Messages()[0], "UOM Crate not found")
}

func TestController_SettleAndClose(t *testing.T) {
	ctx := context.Background()
	inv := fetcher.InvokerFunc(func(ctx context.Context, _ string, _ map[string]any) (fetcher.Response, error) {
		<-ctx.Done()
		return fetcher.Response{}, ctx.Err()
	})
	m, _ := newManager(t, inv, Config{})
	c := openWidget(t, m)

	_, err := c.ApplyEdit(ctx, Edit{Field: transaction.FieldUOM, Value: "Box"})
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Settle(short), context.DeadlineExceeded)

	require.NoError(t, m.Close(c.ID()))
	require.NoError(t, c.Settle(ctx))
	assert.Empty(t, c.Messages())

	_, err = c.ApplyEdit(ctx, Edit{Field: transaction.FieldQty, Value: "1"})
	assert.True(t, apperror.IsNotFound(err))
	_, err = m.Get(c.ID())
	assert.True(t, apperror.IsNotFound(err))
}

func TestManager_OpenMapped(t *testing.T) {
	ctx := context.Background()
	inv := fetcher.InvokerFunc(func(_ context.Context, method string, args map[string]any) (fetcher.Response, error) {
		if method != fetcher.MethodMapDocument {
			return fetcher.Response{}, errors.New("unexpected call to " + method)
		}
		return fetcher.Response{Message: json.RawMessage(`{
			"doctype": "Sales Order", "name": "` + args["source_name"].(string) + `", "docstatus": 1,
			"company": "Acme", "company_currency": "USD", "currency": "USD", "customer": "Globex",
			"posting_date": "2026-10-02",
			"items": [{"item_code": "WIDGET", "qty": 2, "rate": 50, "conversion_factor": 1}]
		}`)}, nil
	})
	m, store := newManager(t, inv, Config{})

	source := &transaction.Document{Document: entity.Document{
		Name: "SO-2026-00001", DocType: doctype.SalesOrder, DocStatus: entity.Submitted, Company: "Acme",
	}}
	require.NoError(t, store.Insert(ctx, source))
	draft := &transaction.Document{Document: entity.Document{
		Name: "SO-2026-00002", DocType: doctype.SalesOrder, Company: "Acme",
	}}
	require.NoError(t, store.Insert(ctx, draft))

	c, err := m.OpenMapped(ctx, doctype.SalesOrder, "SO-2026-00001", doctype.SalesInvoice)
	require.NoError(t, err)
	doc, _ := c.Snapshot()
	assert.Equal(t, doctype.SalesInvoice, doc.DocType)
	assert.Equal(t, entity.Draft, doc.DocStatus)
	assert.True(t, doc.IsNew())
	assert.NotEmpty(t, doc.Items[0].Name)
	assertDec(t, "100", doc.GrandTotal, "grand_total")

	_, err = m.OpenMapped(ctx, doctype.SalesOrder, "SO-2026-00002", doctype.SalesInvoice)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	_, err = m.OpenMapped(ctx, doctype.SalesInvoice, "SINV-2026-00001", doctype.Quotation)
	assert.Error(t, err)
}

func TestManager_Sessions(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, noRemote, Config{MaxSessions: 1})

	c, err := m.New(ctx, doctype.PurchaseOrder, "Acme")
	require.NoError(t, err)
	got, err := m.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, 1, m.Len())

	_, err = m.New(ctx, doctype.Quotation, "Acme")
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	_, err = m.New(ctx, "Timesheet", "Acme")
	assert.True(t, apperror.IsNotFound(err))

	_, err = m.Load(ctx, doctype.SalesInvoice, "SINV-2026-09999")
	assert.True(t, apperror.IsNotFound(err))

	require.NoError(t, m.Shutdown(ctx))
	assert.Zero(t, m.Len())
	assert.True(t, apperror.IsNotFound(m.Close(c.ID())))
}
