package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var (
	ErrInvalidDiscountType = errors.New("invalid discount type")
	ErrPercentageRange     = errors.New("percentage must be 0-100")
	ErrNegativeDiscount    = errors.New("discount cannot be negative")
)

var hundred = decimal.NewFromInt(100)

// Discount is the single manual discount of a checkout
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func (d Discount) Validate() error {
	switch d.Type {
	case DiscountPercentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return ErrPercentageRange
		}
	case DiscountFixed:
		if d.Value.IsNegative() {
			return ErrNegativeDiscount
		}
	default:
		return ErrInvalidDiscountType
	}
	return nil
}

// Amount returns the discount for subtotal, clamped to [0, subtotal]
func (d Discount) Amount(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(d.Value).Div(hundred)
	case DiscountFixed:
		amount = d.Value
	default:
		return decimal.Zero
	}
	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Calculate final = subtotal - discount, tax = final * taxRate / 100, total = final + tax
func Calculate(subtotal decimal.Decimal, d *Discount, taxRate decimal.Decimal) Totals {
	t := Totals{Subtotal: subtotal.Round(2), Discount: decimal.Zero}
	if d != nil {
		t.Discount = d.Amount(t.Subtotal)
	}
	t.Final = t.Subtotal.Sub(t.Discount)
	t.Tax = decimal.Zero
	if taxRate.IsPositive() {
		t.Tax = t.Final.Mul(taxRate).Div(hundred).Round(2)
	}
	t.Total = t.Final.Add(t.Tax)
	return t
}
