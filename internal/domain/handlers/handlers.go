// Package handlers holds the field change handlers of the transaction
// capability modules. Register wires them per document type according to
// the type's capabilities.
package handlers

import (
	"context"

	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/transaction"
)

// module registers the handlers of one capability for a document type.
type module func(r *dispatch.Registry, dt doctype.DocType, f *fetcher.Client)

// Register wires the handlers of every registered document type and
// verifies the result against the field table.
func Register(r *dispatch.Registry, types *doctype.Registry, f *fetcher.Client) error {
	for _, dt := range types.List() {
		for _, m := range modulesFor(dt) {
			m(r, dt, f)
		}
	}
	return r.Verify(types)
}

func modulesFor(dt doctype.DocType) []module {
	var mods []module
	if dt.LineItems {
		mods = append(mods, lineItems)
	}
	if dt.Pricing {
		mods = append(mods, pricing, currency, additionalDiscount)
	}
	if dt.Taxes {
		mods = append(mods, taxes)
	}
	if dt.PaymentSchedule {
		mods = append(mods, paymentSchedule)
	}
	return mods
}

type lineRule func(c *transaction.Calculator, doc *transaction.Document, row int) error

// onLine adapts a calculator line rule to a handler.
func onLine(rule lineRule) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		return rule(s.Calc, s.Doc, s.Event.Row)
	}
}

// trigger runs the handlers of another field on the same row.
func trigger(field transaction.Field) dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Scope) error {
		return s.Trigger(ctx, field)
	}
}
