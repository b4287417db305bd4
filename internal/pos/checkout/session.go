package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/pos/cart"
)

// Session is the register state of one operator: the cart and the selected customer
type Session struct {
	OperatorID int64      `json:"operator_id,string"`
	CustomerID int64      `json:"customer_id,string"`
	Cart       *cart.Cart `json:"-"`
	// PendingKey is reused by every submit attempt of the same cart
	PendingKey string `json:"pending_key"`
}

func NewSession(operatorID int64) *Session {
	return &Session{OperatorID: operatorID, Cart: cart.New()}
}

// Reset empties the cart and forgets the customer
func (s *Session) Reset() {
	s.Cart.Clear()
	s.CustomerID = 0
	s.PendingKey = ""
}

// Draft is the persisted form of a session
type Draft struct {
	CustomerID int64         `json:"customer_id,string"`
	PendingKey string        `json:"pending_key"`
	Cart       cart.Snapshot `json:"cart"`
	SavedAt    time.Time     `json:"saved_at"`
}

func (s *Session) Draft() Draft {
	return Draft{CustomerID: s.CustomerID, PendingKey: s.PendingKey, Cart: s.Cart.Snapshot(), SavedAt: time.Now()}
}

func (s *Session) Restore(d Draft) {
	s.CustomerID = d.CustomerID
	s.PendingKey = d.PendingKey
	s.Cart.Restore(d.Cart)
}

// ProductLookup resolves catalog rows for cart lines
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetVariant(ctx context.Context, id int64) (*domain.ProductVariant, error)
}

// Line is a requested cart line
type Line struct {
	ProductID int64 `json:"product_id,string" validate:"required"`
	VariantID int64 `json:"variant_id,string"`
	Quantity  int   `json:"quantity" validate:"gt=0"`
}

// BuildSession fills a fresh session from requested lines and an optional discount
func BuildSession(ctx context.Context, lookup ProductLookup, operatorID, customerID int64, lines []Line, discount *cart.Discount) (*Session, error) {
	sess := NewSession(operatorID)
	sess.CustomerID = customerID
	for i, l := range lines {
		product, err := lookup.GetProduct(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("lines[%d]: %w", i, err)
		}
		var variant *domain.ProductVariant
		if l.VariantID != 0 {
			variant, err = lookup.GetVariant(ctx, l.VariantID)
			if err != nil {
				return nil, fmt.Errorf("lines[%d]: %w", i, err)
			}
		}
		item, err := sess.Cart.Add(product, variant)
		if err != nil {
			return nil, fmt.Errorf("lines[%d]: %w", i, err)
		}
		if l.Quantity > 1 {
			if err := sess.Cart.UpdateQuantity(item.ID, item.Quantity+l.Quantity-1); err != nil {
				return nil, fmt.Errorf("lines[%d]: %w", i, err)
			}
		}
	}
	if discount != nil {
		if err := sess.Cart.SetDiscount(*discount); err != nil {
			return nil, err
		}
	}
	return sess, nil
}
