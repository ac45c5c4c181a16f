package handlers

import (
	"context"
	"slices"

	"txcalc/internal/core/entity"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/transaction"
)

// lineItems: quantities, units, weights and item details.
func lineItems(r *dispatch.Registry, dt doctype.DocType, f *fetcher.Client) {
	n := dt.Name
	updateStockQty := onLine((*transaction.Calculator).UpdateStockQty)

	r.On(n, transaction.FieldQty, "update_stock_qty", updateStockQty)
	r.On(n, transaction.FieldConversionFactor, "conversion_factor", trigger(transaction.FieldQty))
	r.On(n, transaction.FieldNetWeightPerUnit, "net_weight", updateStockQty)
	r.On(n, transaction.FieldAmount, "rate_from_amount", onLine((*transaction.Calculator).RateFromAmount))
	r.On(n, transaction.FieldUOM, "get_conversion_factor", fetchConversionFactor(f))
	r.On(n, transaction.FieldWeightUOM, "get_weight_per_unit", fetchWeightPerUnit(f))
	r.On(n, transaction.FieldItemCode, "get_item_details", fetchItemDetails(f))
	r.On(n, transaction.FieldItemsAdd, "new_line", newLine)
}

func newLine(ctx context.Context, s *dispatch.Scope) error {
	l, err := s.Line()
	if err != nil {
		return err
	}
	if l.ItemCode != "" {
		return s.Trigger(ctx, transaction.FieldItemCode)
	}
	return s.Calc.UpdateStockQty(s.Doc, s.Event.Row)
}

func fetchConversionFactor(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		l, err := s.Line()
		if err != nil {
			return err
		}
		if l.ItemCode == "" || l.UOM == "" {
			return nil
		}

		itemCode, uom := l.ItemCode, l.UOM
		s.Fetch(dispatch.Fetch{
			Method:  fetcher.MethodConversionFactor,
			Field:   transaction.FieldUOM,
			RowName: l.Name,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				cf, err := f.ConversionFactor(ctx, itemCode, uom)
				if err != nil {
					return nil, err
				}
				return func(ctx context.Context, s *dispatch.Scope) error {
					if err := transaction.SetField(s.Doc, transaction.FieldConversionFactor, s.Event.Row, cf); err != nil {
						return err
					}
					return s.Trigger(ctx, transaction.FieldConversionFactor)
				}, nil
			},
		})
		return nil
	}
}

func fetchWeightPerUnit(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		l, err := s.Line()
		if err != nil {
			return err
		}
		if l.ItemCode == "" || l.WeightUOM == "" {
			return nil
		}

		itemCode, weightUOM := l.ItemCode, l.WeightUOM
		s.Fetch(dispatch.Fetch{
			Method:   fetcher.MethodWeightPerUnit,
			Field:    transaction.FieldWeightUOM,
			RowName:  l.Name,
			Optional: true,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				w, err := f.WeightPerUnit(ctx, itemCode, weightUOM)
				if err != nil {
					return nil, err
				}
				return func(_ context.Context, s *dispatch.Scope) error {
					l, err := s.Line()
					if err != nil {
						return err
					}
					l.NetWeightPerUnit = w
					return s.Calc.UpdateStockQty(s.Doc, s.Event.Row)
				}, nil
			},
		})
		return nil
	}
}

func fetchItemDetails(f *fetcher.Client) dispatch.Handler {
	return func(_ context.Context, s *dispatch.Scope) error {
		l, err := s.Line()
		if err != nil {
			return err
		}
		if l.ItemCode == "" {
			return nil
		}

		args := fetcher.NewItemArgs(s.Doc, l, s.Type.IsBuying())
		s.Fetch(dispatch.Fetch{
			Method:  fetcher.MethodItemDetails,
			Field:   transaction.FieldItemCode,
			RowName: l.Name,
			Call: func(ctx context.Context) (dispatch.Continuation, error) {
				details, err := f.ItemDetails(ctx, args)
				if err != nil {
					return nil, err
				}
				return func(ctx context.Context, s *dispatch.Scope) error {
					return applyItemDetails(ctx, s, details)
				}, nil
			},
		})
		return nil
	}
}

// applyItemDetails merges item defaults into the event row and re-derives
// what depends on them.
func applyItemDetails(ctx context.Context, s *dispatch.Scope, details entity.Values) error {
	row := s.Event.Row
	applied, err := transaction.MergeLine(s.Doc, row, details)
	if err != nil {
		return err
	}
	if err := s.Calc.UpdateStockQty(s.Doc, row); err != nil {
		return err
	}
	if s.Type.Pricing {
		if err := s.Calc.ApplyPriceListRate(s.Doc, row); err != nil {
			return err
		}
	}

	if s.Type.Taxes && slices.Contains(applied, transaction.FieldItemTaxTemplate) && !slices.Contains(applied, transaction.FieldItemTaxRate) {
		return s.Trigger(ctx, transaction.FieldItemTaxTemplate)
	}
	return nil
}

