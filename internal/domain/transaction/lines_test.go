package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
)

func TestApplyDiscount_OneRepresentationIsAuthoritative(t *testing.T) {
	c := NewCalculator(DefaultPrecision())

	t.Run("percentage", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), PriceListRate: dec("250"), DiscountPercentage: dec("12"), DiscountAmount: dec("99")})
		require.NoError(t, c.ApplyDiscount(doc, 0, BasisPercentage))
		l := doc.Items[0]
		assertDec(t, "30", l.DiscountAmount, "discount_amount")
		assertDec(t, "220", l.Rate, "rate")
		assert.Equal(t, BasisPercentage, l.DiscountBasis)
	})

	t.Run("amount", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), PriceListRate: dec("250"), DiscountPercentage: dec("12"), DiscountAmount: dec("50")})
		require.NoError(t, c.ApplyDiscount(doc, 0, BasisAmount))
		l := doc.Items[0]
		assertDec(t, "20", l.DiscountPercentage, "discount_percentage")
		assertDec(t, "200", l.Rate, "rate")
	})

	t.Run("price list change keeps the authoritative side", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), PriceListRate: dec("100"), DiscountAmount: dec("15")})
		require.NoError(t, c.ApplyDiscount(doc, 0, BasisAmount))
		require.NoError(t, SetField(doc, FieldPriceListRate, 0, "300"))
		require.NoError(t, c.ApplyPriceListRate(doc, 0))
		l := doc.Items[0]
		assertDec(t, "15", l.DiscountAmount, "discount_amount")
		assertDec(t, "5", l.DiscountPercentage, "discount_percentage")
		assertDec(t, "285", l.Rate, "rate")
	})
}

func TestApplyPriceListRate_Margin(t *testing.T) {
	c := NewCalculator(DefaultPrecision())
	doc := newInvoice(Line{
		Qty: dec("1"), PriceListRate: dec("100"),
		MarginType: MarginPercentage, MarginRateOrAmount: dec("20"),
		DiscountPercentage: dec("10"),
	})
	require.NoError(t, c.ApplyPriceListRate(doc, 0))
	l := doc.Items[0]
	assertDec(t, "120", l.RateWithMargin, "rate_with_margin")
	assertDec(t, "12", l.DiscountAmount, "discount_amount")
	assertDec(t, "108", l.Rate, "rate")
}

func TestDeriveDiscountFromRate(t *testing.T) {
	c := NewCalculator(DefaultPrecision())

	t.Run("below price list", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), PriceListRate: dec("100"), Rate: dec("80")})
		require.NoError(t, c.DeriveDiscountFromRate(doc, 0))
		l := doc.Items[0]
		assertDec(t, "20", l.DiscountAmount, "discount_amount")
		assertDec(t, "20", l.DiscountPercentage, "discount_percentage")
		assert.Equal(t, MarginNone, l.MarginType)
	})

	t.Run("above price list records a margin", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), PriceListRate: dec("100"), Rate: dec("130"), DiscountPercentage: dec("5")})
		require.NoError(t, c.DeriveDiscountFromRate(doc, 0))
		l := doc.Items[0]
		assert.True(t, l.DiscountPercentage.IsZero())
		assert.True(t, l.DiscountAmount.IsZero())
		assert.Equal(t, MarginAmount, l.MarginType)
		assertDec(t, "30", l.MarginRateOrAmount, "margin_rate_or_amount")
	})

	t.Run("no price list rate", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), Rate: dec("130"), DiscountPercentage: dec("5")})
		require.NoError(t, c.DeriveDiscountFromRate(doc, 0))
		assert.True(t, doc.Items[0].DiscountPercentage.IsZero())
	})
}

func TestUpdateStockQty(t *testing.T) {
	c := NewCalculator(DefaultPrecision())
	doc := newInvoice(Line{Qty: dec("3"), ConversionFactor: dec("12"), NetWeightPerUnit: dec("0.25")})
	require.NoError(t, c.UpdateStockQty(doc, 0))
	assertDec(t, "36", doc.Items[0].StockQty, "stock_qty")
	assertDec(t, "9", doc.Items[0].NetWeight, "net_weight")

	err := c.UpdateStockQty(doc, 4)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestRateFromAmount(t *testing.T) {
	c := NewCalculator(DefaultPrecision())
	doc := newInvoice(Line{Qty: dec("4"), PriceListRate: dec("100"), Amount: dec("360")})
	require.NoError(t, c.RateFromAmount(doc, 0))
	assertDec(t, "90", doc.Items[0].Rate, "rate")
	assertDec(t, "10", doc.Items[0].DiscountPercentage, "discount_percentage")

	doc.Items[0].Qty = dec("0")
	require.Error(t, c.RateFromAmount(doc, 0))
}

func TestRateFromTaxInclusiveRate(t *testing.T) {
	c := NewCalculator(DefaultPrecision())

	t.Run("exclusive tax", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), TaxInclusiveRate: dec("110")})
		doc.Taxes = []Charge{onNetTotal("10")}
		require.NoError(t, c.RateFromTaxInclusiveRate(doc, 0))
		assertDec(t, "100", doc.Items[0].Rate, "rate")
	})

	t.Run("inclusive tax keeps the rate", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), TaxInclusiveRate: dec("110")})
		incl := onNetTotal("10")
		incl.IncludedInPrintRate = true
		doc.Taxes = []Charge{incl}
		require.NoError(t, c.RateFromTaxInclusiveRate(doc, 0))
		assertDec(t, "110", doc.Items[0].Rate, "rate")
	})

	t.Run("actual charges are ignored", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), TaxInclusiveRate: dec("120")})
		doc.Taxes = []Charge{
			onNetTotal("20"),
			{ChargeType: ChargeActual, TaxAmount: dec("5"), AddDeductTax: Add},
		}
		require.NoError(t, c.RateFromTaxInclusiveRate(doc, 0))
		assertDec(t, "100", doc.Items[0].Rate, "rate")
	})

	t.Run("round trip", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("2"), Rate: dec("100")})
		doc.Taxes = []Charge{onNetTotal("18")}
		doc.Renumber()
		out, err := c.Recalculate(doc, FullPolicy())
		require.NoError(t, err)
		assertDec(t, "118", out.Items[0].TaxInclusiveRate, "tax_inclusive_rate")

		require.NoError(t, SetField(out, FieldTaxInclusiveRate, 0, "236"))
		require.NoError(t, c.RateFromTaxInclusiveRate(out, 0))
		assertDec(t, "200", out.Items[0].Rate, "rate")
	})

	t.Run("non invertible charge rejects the edit", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), Rate: dec("50"), TaxInclusiveRate: dec("110")})
		doc.Taxes = []Charge{
			onNetTotal("10"),
			{ChargeType: ChargeOnPreviousRowAmount, RowID: 1, Rate: dec("10"), AddDeductTax: Add},
		}
		err := c.RateFromTaxInclusiveRate(doc, 0)
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeCannotInvertRate))
		assertDec(t, "50", doc.Items[0].Rate, "rate")
	})

	t.Run("weighted distribution rejects the edit", func(t *testing.T) {
		doc := newInvoice(Line{Qty: dec("1"), TaxInclusiveRate: dec("110")})
		doc.Taxes = []Charge{{ChargeType: ChargeWeightedDistribution, TaxAmount: dec("5")}}
		require.Error(t, c.RateFromTaxInclusiveRate(doc, 0))
	})
}

func TestRateFromTaxExclusiveRate(t *testing.T) {
	c := NewCalculator(DefaultPrecision())
	doc := newInvoice(Line{Qty: dec("1"), TaxExclusiveRate: dec("100")})
	incl := onNetTotal("5")
	incl.IncludedInPrintRate = true
	doc.Taxes = []Charge{incl}
	require.NoError(t, c.RateFromTaxExclusiveRate(doc, 0))
	assertDec(t, "105", doc.Items[0].Rate, "rate")
}

func TestConvertChargeFromBase(t *testing.T) {
	c := NewCalculator(DefaultPrecision())
	doc := newInvoice()
	doc.ConversionRate = dec("4")
	doc.Taxes = []Charge{{ChargeType: ChargeActual, BaseTaxAmount: dec("10")}}
	require.NoError(t, c.ConvertChargeFromBase(doc, 0))
	assertDec(t, "2.5", doc.Taxes[0].TaxAmount, "tax_amount")
}
