package handlers

import (
	"context"

	"github.com/shopspring/decimal"

	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/transaction"
)

// pricing: price list rates, line discounts and margins.
func pricing(r *dispatch.Registry, dt doctype.DocType, f *fetcher.Client) {
	n := dt.Name
	applyPriceListRate := onLine((*transaction.Calculator).ApplyPriceListRate)

	r.On(n, transaction.FieldQty, "apply_price_list_rate", applyPriceListRate)
	r.On(n, transaction.FieldPriceListRate, "apply_price_list_rate", applyPriceListRate)
	r.On(n, transaction.FieldMarginType, "apply_margin", applyPriceListRate)
	r.On(n, transaction.FieldMarginRateOrAmount, "apply_margin", applyPriceListRate)
	r.On(n, transaction.FieldRate, "derive_discount", onLine((*transaction.Calculator).DeriveDiscountFromRate))
	r.On(n, transaction.FieldDiscountPercentage, "discount_percentage", discount(transaction.BasisPercentage))
	r.On(n, transaction.FieldLineDiscountAmount, "discount_amount", discount(transaction.BasisAmount))
	r.On(n, dt.PriceListField(), "apply_price_list", fetchPriceList(f))
}

func discount(basis transaction.DiscountBasis) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		return s.Calc.ApplyDiscount(s.Doc, s.Event.Row, basis)
	}
}

// fetchPriceList reprices every line from the document's price list.
func fetchPriceList(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		schedulePriceList(s, f)
		return nil
	}
}

func schedulePriceList(s *dispatch.Scope, f *fetcher.Client) {
	buying := s.Type.IsBuying()
	if s.Doc.PriceList(buying) == "" || len(s.Doc.Items) == 0 {
		return
	}

	snapshot := s.Doc.Clone()
	s.Fetch(dispatch.Fetch{
		Method: fetcher.MethodApplyPriceList,
		Field:  s.Type.PriceListField(),
		Call: func(ctx context.Context) (dispatch.Continuation, error) {
			res, err := f.ApplyPriceList(ctx, snapshot, buying)
			if err != nil {
				return nil, err
			}
			return func(_ context.Context, s *dispatch.Scope) error {
				return applyPriceList(s, res)
			}, nil
		},
	})
}

func applyPriceList(s *dispatch.Scope, res fetcher.PriceListResult) error {
	if _, err := transaction.MergeHeader(s.Doc, res.Parent); err != nil {
		return err
	}
	transaction.EnforceCurrency(s.Doc)

	for _, child := range res.Children {
		name := child.GetString("child_docname")
		if name == "" {
			name = child.GetString("name")
		}
		row := lineIndex(s.Doc, name)
		if row < 0 {
			continue
		}

		// The line keeps its own discount.
		values := child.Clone()
		delete(values, "discount_percentage")
		delete(values, "discount_amount")
		if _, err := transaction.MergeLine(s.Doc, row, values); err != nil {
			return err
		}
		if err := s.Calc.ApplyPriceListRate(s.Doc, row); err != nil {
			return err
		}
	}
	return nil
}

func lineIndex(doc *transaction.Document, name string) int {
	if name == "" {
		return -1
	}
	for i := range doc.Items {
		if doc.Items[i].Name == name {
			return i
		}
	}
	return -1
}

// currency: exchange rates and the currency identities.
func currency(r *dispatch.Registry, dt doctype.DocType, f *fetcher.Client) {
	n := dt.Name
	r.On(n, transaction.FieldCurrency, "get_exchange_rate", fetchExchangeRate(f))
	r.On(n, transaction.FieldConversionRate, "conversion_rate", conversionRate)
	r.On(n, transaction.FieldPriceListCurrency, "get_price_list_exchange_rate", fetchPriceListExchangeRate(f))
	r.On(n, transaction.FieldPLCConversionRate, "plc_conversion_rate", plcConversionRate(f))
}

func fetchExchangeRate(f *fetcher.Client) dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Scope) error {
		doc := s.Doc
		transaction.EnforceCurrency(doc)
		if doc.Currency == "" || doc.CompanyCurrency == "" || doc.Currency == doc.CompanyCurrency || doc.Date() == "" {
			return s.Trigger(ctx, transaction.FieldConversionRate)
		}

		date, from, to, buying := doc.Date(), doc.Currency, doc.CompanyCurrency, s.Type.IsBuying()
		s.Fetch(dispatch.Fetch{
			Method: fetcher.MethodExchangeRate,
			Field:  transaction.FieldCurrency,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				rate, err := f.ExchangeRate(ctx, date, from, to, buying)
				if err != nil {
					return nil, err
				}
				return func(ctx context.Context, s *dispatch.Scope) error {
					if s.Doc.Currency != from || !rate.IsPositive() {
						return nil
					}
					s.Doc.ConversionRate = rate
					return s.Trigger(ctx, transaction.FieldConversionRate)
				}, nil
			},
		})
		return nil
	}
}

func conversionRate(ctx context.Context, s *dispatch.Scope) error {
	doc := s.Doc
	transaction.EnforceCurrency(doc)
	if doc.PriceListCurrency != "" && doc.PriceListCurrency == doc.Currency {
		return s.Trigger(ctx, transaction.FieldPLCConversionRate)
	}
	return nil
}

func fetchPriceListExchangeRate(f *fetcher.Client) dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Scope) error {
		doc := s.Doc
		if doc.PriceListCurrency == "" || doc.PriceListCurrency == doc.CompanyCurrency ||
			bool(doc.IgnorePricingRule) || doc.Date() == "" {
			transaction.EnforceCurrency(doc)
			return s.Trigger(ctx, transaction.FieldPLCConversionRate)
		}

		date, from, to, buying := doc.Date(), doc.PriceListCurrency, doc.CompanyCurrency, s.Type.IsBuying()
		s.Fetch(dispatch.Fetch{
			Method: fetcher.MethodExchangeRate,
			Field:  transaction.FieldPriceListCurrency,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				rate, err := f.ExchangeRate(ctx, date, from, to, buying)
				if err != nil {
					return nil, err
				}
				return func(ctx context.Context, s *dispatch.Scope) error {
					if s.Doc.PriceListCurrency != from || !rate.IsPositive() {
						return nil
					}
					s.Doc.PLCConversionRate = rate
					return s.Trigger(ctx, transaction.FieldPLCConversionRate)
				}, nil
			},
		})
		return nil
	}
}

// plcConversionRate keeps the document rate in step with the price list
// rate when both share a currency, then reprices the lines.
func plcConversionRate(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		doc := s.Doc
		if doc.PriceListCurrency == doc.Currency && doc.Currency != doc.CompanyCurrency &&
			doc.PLCConversionRate.IsPositive() && !doc.PLCConversionRate.Equal(doc.ConversionRate) {
			doc.ConversionRate = doc.PLCConversionRate
		}
		transaction.EnforceCurrency(doc)
		schedulePriceList(s, f)
		return nil
	}
}

// additionalDiscount: document level discount, percentage or amount.
func additionalDiscount(r *dispatch.Registry, dt doctype.DocType, _ *fetcher.Client) {
	n := dt.Name
	r.On(n, transaction.FieldAdditionalDiscountPercentage, "additional_discount_percentage", func(_ context.Context, s *dispatch.Scope) error {
		if s.Doc.AdditionalDiscountPercentage.IsZero() {
			s.Doc.DiscountAmount = decimal.Zero
		}
		return nil
	})
	r.On(n, transaction.FieldDiscountAmount, "discount_amount", func(_ context.Context, s *dispatch.Scope) error {
		s.Doc.AdditionalDiscountPercentage = decimal.Zero
		return nil
	})
}
