package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		discount *Discount
		taxRate  string
		discAmt  string
		final    string
		tax      string
		total    string
	}{
		{"no discount", "10000", nil, "0", "0", "10000", "0", "10000"},
		{"percentage", "10000", &Discount{DiscountPercentage, dec("10")}, "0", "1000", "9000", "0", "9000"},
		{"fixed", "10000", &Discount{DiscountFixed, dec("2500")}, "0", "2500", "7500", "0", "7500"},
		{"fixed clamped to subtotal", "1000", &Discount{DiscountFixed, dec("2500")}, "0", "1000", "0", "0", "0"},
		{"full percentage", "80", &Discount{DiscountPercentage, dec("100")}, "0", "80", "0", "0", "0"},
		{"percentage rounding", "99.99", &Discount{DiscountPercentage, dec("15")}, "0", "15", "84.99", "0", "84.99"},
		{"tax after discount", "13000", &Discount{DiscountPercentage, dec("10")}, "11", "1300", "11700", "1287", "12987"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(dec(tt.subtotal), tt.discount, dec(tt.taxRate))
			assert.True(t, dec(tt.discAmt).Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, dec(tt.final).Equal(got.Final), "final %s", got.Final)
			assert.True(t, dec(tt.tax).Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, dec(tt.total).Equal(got.Total), "total %s", got.Total)
			assert.True(t, got.Final.Equal(got.Subtotal.Sub(got.Discount)))
		})
	}
}

func TestDiscountValidate(t *testing.T) {
	assert.NoError(t, Discount{DiscountPercentage, dec("0")}.Validate())
	assert.ErrorIs(t, Discount{DiscountPercentage, dec("101")}.Validate(), ErrPercentageRange)
	assert.ErrorIs(t, Discount{DiscountPercentage, dec("-1")}.Validate(), ErrPercentageRange)
	assert.ErrorIs(t, Discount{DiscountFixed, dec("-1")}.Validate(), ErrNegativeDiscount)
	assert.ErrorIs(t, Discount{"coupon", dec("1")}.Validate(), ErrInvalidDiscountType)
}

func TestSetDiscountReplacesPrevious(t *testing.T) {
	c := New()
	_, err := c.Add(product(1, 10000, 5), nil)
	require.NoError(t, err)

	require.NoError(t, c.SetDiscount(Discount{DiscountPercentage, dec("10")}))
	require.NoError(t, c.SetDiscount(Discount{DiscountFixed, dec("2500")}))
	assert.True(t, dec("7500").Equal(c.Totals(decimal.Zero).Final))

	assert.Error(t, c.SetDiscount(Discount{DiscountPercentage, dec("150")}))
	assert.Equal(t, DiscountFixed, c.Discount().Type)

	c.ClearDiscount()
	assert.True(t, dec("10000").Equal(c.Totals(decimal.Zero).Final))
}
