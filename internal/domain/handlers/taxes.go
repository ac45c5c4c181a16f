package handlers

import (
	"context"
	"strings"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/transaction"
)

// taxes: charge rows, item tax templates and tax inclusive rates.
func taxes(r *dispatch.Registry, dt doctype.DocType, f *fetcher.Client) {
	n := dt.Name

	r.On(n, transaction.FieldItemTaxTemplate, "get_item_tax_map", fetchItemTaxMap(f))
	r.On(n, transaction.FieldTaxInclusiveRate, "rate_from_tax_inclusive_rate",
		onLine((*transaction.Calculator).RateFromTaxInclusiveRate))
	r.On(n, transaction.FieldTaxExclusiveRate, "rate_from_tax_exclusive_rate",
		onLine((*transaction.Calculator).RateFromTaxExclusiveRate))
	r.On(n, transaction.FieldTaxesAndCharges, "get_taxes_and_charges", fetchTaxesTemplate(f))

	for _, field := range []transaction.Field{
		transaction.FieldChargeType,
		transaction.FieldRowID,
		transaction.FieldChargeRate,
		transaction.FieldTaxAmount,
	} {
		r.On(n, field, "validate_taxes_and_charges", validateChargeRow)
	}
	r.On(n, transaction.FieldAccountHead, "account_head", accountHead)
	r.On(n, transaction.FieldIncludedInPrintRate, "validate_inclusive_tax", validateInclusiveTax)
	r.On(n, transaction.FieldCategory, "validate_inclusive_tax", validateInclusiveTax)
	r.On(n, transaction.FieldBaseTaxAmount, "tax_amount_from_base", func(_ context.Context, s *dispatch.Scope) error {
		return s.Calc.ConvertChargeFromBase(s.Doc, s.Event.Row)
	})
}

// validateChargeRow clears an invalid reference and reports it.
func validateChargeRow(_ context.Context, s *dispatch.Scope) error {
	return dispatch.Partial(transaction.RepairChargeRow(s.Doc, s.Event.Row))
}

// validateInclusiveTax unticks "included in print rate" on a row that
// cannot be inclusive and reports it.
func validateInclusiveTax(_ context.Context, s *dispatch.Scope) error {
	t, err := s.Charge()
	if err != nil {
		return err
	}
	if err := transaction.ValidateInclusiveTax(s.Doc, s.Event.Row); err != nil {
		t.IncludedInPrintRate = false
		return dispatch.Partial(err)
	}
	return nil
}

func accountHead(_ context.Context, s *dispatch.Scope) error {
	t, err := s.Charge()
	if err != nil {
		return err
	}
	if t.AccountHead == "" {
		return nil
	}
	if t.ChargeType == "" {
		t.AccountHead = ""
		return dispatch.Partial(apperror.NewChargeRow(s.Event.Row+1, "Please select Charge Type first."))
	}
	if t.Description == "" {
		t.Description = accountLabel(t.AccountHead)
	}
	return nil
}

// accountLabel strips the company abbreviation: "VAT 5% - AC" -> "VAT 5%".
func accountLabel(account string) string {
	parts := strings.Split(account, " - ")
	if len(parts) < 2 {
		return account
	}
	return strings.Join(parts[:len(parts)-1], " - ")
}

func fetchItemTaxMap(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		l, err := s.Line()
		if err != nil {
			return err
		}
		if l.ItemTaxTemplate == "" {
			l.ItemTaxRate = nil
			return nil
		}

		template, company, date := l.ItemTaxTemplate, s.Doc.Company, s.Doc.Date()
		s.Fetch(dispatch.Fetch{
			Method:  fetcher.MethodItemTaxMap,
			Field:   transaction.FieldItemTaxTemplate,
			RowName: l.Name,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				rates, err := f.ItemTaxMap(ctx, template, company, date)
				if err != nil {
					return nil, err
				}
				return func(_ context.Context, s *dispatch.Scope) error {
					l, err := s.Line()
					if err != nil {
						return err
					}
					if l.ItemTaxTemplate != template {
						return nil
					}
					l.ItemTaxRate = rates
					return nil
				}, nil
			},
		})
		return nil
	}
}

// fetchTaxesTemplate replaces the charge table with the rows of the
// selected taxes and charges template.
func fetchTaxesTemplate(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		name := s.Doc.TaxesAndCharges
		if name == "" {
			return nil
		}

		master := s.Type.TaxTemplate
		s.Fetch(dispatch.Fetch{
			Method: fetcher.MethodTaxesTemplate,
			Field:  transaction.FieldTaxesAndCharges,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				rows, err := f.TaxesTemplate(ctx, master, name)
				if err != nil {
					return nil, err
				}
				return func(_ context.Context, s *dispatch.Scope) error {
					if s.Doc.TaxesAndCharges != name {
						return nil
					}
					s.Doc.Taxes = nil
					for _, row := range rows {
						if err := transaction.SetField(s.Doc, transaction.FieldTaxesAdd, 0, row); err != nil {
							return err
						}
					}
					return nil
				}, nil
			},
		})
		return nil
	}
}

// paymentSchedule: payment terms templates.
func paymentSchedule(r *dispatch.Registry, dt doctype.DocType, f *fetcher.Client) {
	r.On(dt.Name, transaction.FieldPaymentTermsTemplate, "get_payment_terms", fetchPaymentTerms(f))
}

func fetchPaymentTerms(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		doc := s.Doc
		template := doc.PaymentTermsTemplate
		if template == "" {
			return nil
		}

		date := doc.Date()
		payable := doc.RoundedTotal
		if bool(doc.DisableRoundedTotal) || payable.IsZero() {
			payable = doc.GrandTotal
		}
		s.Fetch(dispatch.Fetch{
			Method: fetcher.MethodPaymentTerms,
			Field:  transaction.FieldPaymentTermsTemplate,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				rows, err := f.PaymentTerms(ctx, template, date, payable)
				if err != nil {
					return nil, err
				}
				return func(_ context.Context, s *dispatch.Scope) error {
					if s.Doc.PaymentTermsTemplate != template {
						return nil
					}
					s.Doc.PaymentSchedule = nil
					for _, row := range rows {
						if err := transaction.SetField(s.Doc, transaction.FieldScheduleAdd, 0, row); err != nil {
							return err
						}
					}
					return nil
				}, nil
			},
		})
		return nil
	}
}
