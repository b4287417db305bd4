package cart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
)

var (
	ErrProductRequired   = errors.New("product is required")
	ErrVariantRequired   = errors.New("product has variants, a variant must be selected")
	ErrVariantMismatch   = errors.New("variant does not belong to product")
	ErrInvalidPrice      = errors.New("price must be greater than zero")
	ErrNegativeQuantity  = errors.New("quantity cannot be negative")
	ErrItemNotFound      = errors.New("item not in cart")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Item is one cart line. TotalPrice is kept equal to Quantity * UnitPrice.
type Item struct {
	ID                string          `json:"id"`
	ProductID         int64           `json:"product_id,string"`
	VariantID         int64           `json:"variant_id,string"`
	ProductName       string          `json:"product_name"`
	VariantName       string          `json:"variant_name"`
	Sku               string          `json:"sku"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	AvailableQuantity int             `json:"available_quantity"`
}

func (i *Item) recompute() {
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemID is the merge key of a product+variant line
func ItemID(productID, variantID int64) string {
	return fmt.Sprintf("%d-%d", productID, variantID)
}

// Cart holds the lines and the active discount of one checkout session
type Cart struct {
	mu       sync.Mutex
	items    []*Item
	discount *Discount
}

func New() *Cart {
	return &Cart{}
}

// Add puts one unit of the product (or its variant) in the cart, merging with an
// existing line for the same product+variant.
func (c *Cart) Add(product *domain.Product, variant *domain.ProductVariant) (*Item, error) {
	if product == nil || product.ID == 0 {
		return nil, ErrProductRequired
	}
	if product.HasVariants && variant == nil {
		return nil, ErrVariantRequired
	}
	if variant != nil && variant.ProductID != product.ID {
		return nil, ErrVariantMismatch
	}

	line := Item{
		ProductID:         product.ID,
		ProductName:       product.Name,
		Sku:               product.Sku,
		UnitPrice:         product.SellingPrice,
		AvailableQuantity: product.StockQuantity,
	}
	if variant != nil {
		line.VariantID = variant.ID
		line.VariantName = variant.Name
		line.Sku = variant.Sku
		line.UnitPrice = variant.SellingPrice
		line.AvailableQuantity = variant.StockQuantity
	}
	if !line.UnitPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}
	line.ID = ItemID(line.ProductID, line.VariantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.find(line.ID); existing != nil {
		if existing.Quantity+1 > line.AvailableQuantity {
			return nil, ErrInsufficientStock
		}
		existing.Quantity++
		existing.UnitPrice = line.UnitPrice
		existing.AvailableQuantity = line.AvailableQuantity
		existing.recompute()
		cp := *existing
		return &cp, nil
	}

	if line.AvailableQuantity < 1 {
		return nil, ErrInsufficientStock
	}
	line.Quantity = 1
	line.recompute()
	c.items = append(c.items, &line)
	cp := line
	return &cp, nil
}

// UpdateQuantity sets the quantity of a line, 0 removes it
func (c *Cart) UpdateQuantity(itemID string, qty int) error {
	if qty < 0 {
		return ErrNegativeQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.find(itemID)
	if item == nil {
		return ErrItemNotFound
	}
	if qty == 0 {
		c.remove(itemID)
		return nil
	}
	if qty > item.AvailableQuantity {
		return ErrInsufficientStock
	}
	item.Quantity = qty
	item.recompute()
	return nil
}

func (c *Cart) Remove(itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remove(itemID) {
		return ErrItemNotFound
	}
	return nil
}

// Clear drops every line and the discount
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.discount = nil
}

// Items returns a copy of the lines in insertion order
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, *it)
	}
	return out
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subtotal()
}

func (c *Cart) subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}

// SetDiscount replaces the active discount
func (c *Cart) SetDiscount(d Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discount = &d
	return nil
}

func (c *Cart) ClearDiscount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discount = nil
}

func (c *Cart) Discount() *Discount {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discount == nil {
		return nil
	}
	d := *c.discount
	return &d
}

// Totals computes subtotal, discount, tax and total with taxRate in percent
func (c *Cart) Totals(taxRate decimal.Decimal) Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Calculate(c.subtotal(), c.discount, taxRate)
}

// Snapshot is the serializable state of a cart, used for drafts
type Snapshot struct {
	Items    []Item    `json:"items"`
	Discount *Discount `json:"discount,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

func (c *Cart) Snapshot() Snapshot {
	return Snapshot{Items: c.Items(), Discount: c.Discount(), SavedAt: time.Now()}
}

// Restore replaces the cart content with a snapshot, line totals are recomputed
func (c *Cart) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]*Item, 0, len(s.Items))
	for i := range s.Items {
		it := s.Items[i]
		if it.Quantity <= 0 {
			continue
		}
		it.ID = ItemID(it.ProductID, it.VariantID)
		it.recompute()
		c.items = append(c.items, &it)
	}
	c.discount = nil
	if s.Discount != nil && s.Discount.Validate() == nil {
		d := *s.Discount
		c.discount = &d
	}
}

func (c *Cart) find(id string) *Item {
	for _, it := range c.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (c *Cart) remove(id string) bool {
	for i, it := range c.items {
		if it.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}
