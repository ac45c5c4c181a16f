package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/transaction"
)

func newScope(t *testing.T, field transaction.Field) *Scope {
	t.Helper()
	types := doctype.Standard()
	dt, err := types.Get(doctype.SalesInvoice)
	require.NoError(t, err)

	doc := &transaction.Document{
		Document: entity.NewDocument(doctype.SalesInvoice, "Acme"),
		Items:    []transaction.Line{{Name: "r1", Qty: decimal.NewFromInt(1)}},
	}
	ev := Event{DocType: doctype.SalesInvoice, Field: field}
	return NewScope(doc, ev, dt, transaction.NewCalculator(transaction.DefaultPrecision()))
}

func setRemarks(text string) Handler {
	return func(_ context.Context, s *Scope) error {
		s.Doc.Remarks += text
		return nil
	}
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldQty, "first", setRemarks("a"))
	r.On(doctype.SalesInvoice, transaction.FieldQty, "second", setRemarks("b"))
	r.On(doctype.SalesOrder, transaction.FieldQty, "other doctype", setRemarks("x"))

	s := newScope(t, transaction.FieldQty)
	require.NoError(t, r.Dispatch(context.Background(), s))
	assert.Equal(t, "ab", s.Doc.Remarks)
	assert.Equal(t, []string{"first", "second"}, r.Handlers(doctype.SalesInvoice, transaction.FieldQty))
}

func TestDispatch_FailingHandlerAbortsOnlyItsOwnEffects(t *testing.T) {
	errBoom := apperror.NewValidation("boom")

	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldRate, "kept", setRemarks("a"))
	r.On(doctype.SalesInvoice, transaction.FieldRate, "failing", func(_ context.Context, s *Scope) error {
		s.Doc.Remarks += "lost"
		s.Doc.Items[0].Qty = decimal.NewFromInt(99)
		s.Fetch(Fetch{Field: transaction.FieldUOM, RowName: "r1"})
		s.Message("failing handler ran")
		return errBoom
	})
	r.On(doctype.SalesInvoice, transaction.FieldRate, "after", setRemarks("c"))
	r.On(doctype.SalesInvoice, transaction.FieldRate, "second failure", func(context.Context, *Scope) error {
		return errors.New("plain")
	})

	s := newScope(t, transaction.FieldRate)
	err := r.Dispatch(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "plain")
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, "ac", s.Doc.Remarks)
	assert.True(t, s.Doc.Items[0].Qty.Equal(decimal.NewFromInt(1)))
	assert.Empty(t, s.Fetches())
	assert.Equal(t, []string{"failing handler ran"}, s.Messages())
}

func TestDispatch_PartialKeepsEffects(t *testing.T) {
	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldIncludedInPrintRate, "revert", func(_ context.Context, s *Scope) error {
		s.Doc.Remarks = "reverted"
		return Partial(apperror.NewValidation("not allowed"))
	})

	s := newScope(t, transaction.FieldIncludedInPrintRate)
	err := r.Dispatch(context.Background(), s)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, "reverted", s.Doc.Remarks)
	assert.NoError(t, Partial(nil))
}

func TestDispatch_FetchesAndTrigger(t *testing.T) {
	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldUOM, "fetch conversion", func(_ context.Context, s *Scope) error {
		l, err := s.Line()
		if err != nil {
			return err
		}
		s.Fetch(Fetch{Field: s.Event.Field, RowName: l.Name, Method: "get_conversion_factor"})
		return s.Trigger(context.Background(), transaction.FieldQty)
	})
	r.On(doctype.SalesInvoice, transaction.FieldQty, "qty", setRemarks("qty"))

	s := newScope(t, transaction.FieldUOM)
	require.NoError(t, r.Dispatch(context.Background(), s))
	require.Len(t, s.Fetches(), 1)
	assert.Equal(t, "items.uom#r1", s.Fetches()[0].Key)
	assert.Equal(t, "qty", s.Doc.Remarks)
	assert.Equal(t, transaction.FieldUOM, s.Event.Field)
}

func TestTrigger_DepthLimit(t *testing.T) {
	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldQty, "loop", func(ctx context.Context, s *Scope) error {
		return s.Trigger(ctx, transaction.FieldQty)
	})

	s := newScope(t, transaction.FieldQty)
	err := r.Dispatch(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger depth exceeded")
}

func TestDispatch_CancelledContext(t *testing.T) {
	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldQty, "qty", setRemarks("qty"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newScope(t, transaction.FieldQty)
	err := r.Dispatch(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Doc.Remarks)
}

func TestVerify(t *testing.T) {
	types := doctype.Standard()

	t.Run("valid", func(t *testing.T) {
		r := NewRegistry()
		r.On(doctype.SalesInvoice, transaction.FieldQty, "qty", setRemarks(""))
		r.On(doctype.SalesInvoice, transaction.FieldInvoicePortion, "portion", setRemarks(""))
		assert.NoError(t, r.Verify(types))
	})

	tests := []struct {
		name    string
		docType string
		field   transaction.Field
	}{
		{name: "unknown doctype", docType: "Timesheet", field: transaction.FieldQty},
		{name: "unknown field", docType: doctype.SalesInvoice, field: "items.colour"},
		{name: "taxes on a stock entry", docType: doctype.StockEntry, field: transaction.FieldChargeRate},
		{name: "schedule on a delivery note", docType: doctype.DeliveryNote, field: transaction.FieldInvoicePortion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.On(tt.docType, tt.field, "broken", setRemarks(""))
			assert.Error(t, r.Verify(types))
		})
	}
}

func TestContinue(t *testing.T) {
	r := NewRegistry()
	r.On(doctype.SalesInvoice, transaction.FieldConversionFactor, "conversion_factor", setRemarks("cf"))

	t.Run("continuation can trigger handlers", func(t *testing.T) {
		s := newScope(t, transaction.FieldUOM)
		err := r.Continue(context.Background(), s, func(ctx context.Context, s *Scope) error {
			s.Doc.Items[0].ConversionFactor = decimal.NewFromInt(12)
			return s.Trigger(ctx, transaction.FieldConversionFactor)
		})
		require.NoError(t, err)
		assert.Equal(t, "cf", s.Doc.Remarks)
		assert.True(t, s.Doc.Items[0].ConversionFactor.Equal(decimal.NewFromInt(12)))
	})

	t.Run("failing continuation keeps the pre-call state", func(t *testing.T) {
		s := newScope(t, transaction.FieldUOM)
		err := r.Continue(context.Background(), s, func(_ context.Context, s *Scope) error {
			s.Doc.Items[0].ConversionFactor = decimal.NewFromInt(12)
			return apperror.NewValidation("bad factor")
		})
		require.Error(t, err)
		assert.True(t, s.Doc.Items[0].ConversionFactor.IsZero())
	})
}
