package checkout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
)

var (
	ErrNoPayments         = errors.New("at least one payment is required")
	ErrInvalidPayment     = errors.New("payment amount must be greater than zero")
	ErrUnknownPaymentType = errors.New("unknown payment method")
)

// Payment is one tender applied to a sale
type Payment struct {
	Method    string          `json:"method" validate:"required,oneof=cash card transfer ewallet points"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=255"`
}

// PaymentMismatchError is returned when the tendered amount cannot settle the total
type PaymentMismatchError struct {
	Paid decimal.Decimal
	Due  decimal.Decimal
	Msg  string
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("%s: paid %s, due %s", e.Msg, e.Paid.StringFixed(2), e.Due.StringFixed(2))
}

// Settlement is the outcome of matching payments against a total
type Settlement struct {
	Paid   decimal.Decimal `json:"paid"`
	Change decimal.Decimal `json:"change"`
	Method string          `json:"method"`
	Points int64           `json:"points"`
}

func knownMethod(m string) bool {
	switch m {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer, domain.PaymentEwallet, domain.PaymentPoints:
		return true
	}
	return false
}

// Settle checks that payments cover total. Paying more than the total is only
// allowed up to the cash tendered, the excess is returned as change.
func Settle(total decimal.Decimal, payments []Payment) (Settlement, error) {
	var s Settlement
	if len(payments) == 0 {
		return s, ErrNoPayments
	}
	paid, cash := decimal.Zero, decimal.Zero
	methods := map[string]bool{}
	for _, p := range payments {
		if !knownMethod(p.Method) {
			return s, fmt.Errorf("%w: %q", ErrUnknownPaymentType, p.Method)
		}
		if !p.Amount.IsPositive() {
			return s, ErrInvalidPayment
		}
		paid = paid.Add(p.Amount)
		methods[p.Method] = true
		switch p.Method {
		case domain.PaymentCash:
			cash = cash.Add(p.Amount)
		case domain.PaymentPoints:
			s.Points += p.Amount.Ceil().IntPart()
		}
	}
	s.Paid = paid
	if paid.LessThan(total) {
		return s, &PaymentMismatchError{Paid: paid, Due: total, Msg: "payment insufficient"}
	}
	over := paid.Sub(total)
	if over.GreaterThan(cash) {
		return s, &PaymentMismatchError{Paid: paid, Due: total, Msg: "overpayment exceeds cash tendered"}
	}
	s.Change = over
	s.Method = domain.PaymentSplit
	if len(methods) == 1 {
		s.Method = payments[0].Method
	}
	return s, nil
}
