package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

var (
	ErrNotEditable      = errors.New("purchase order can only be edited in draft")
	ErrNoItems          = errors.New("purchase order needs at least one item")
	ErrInvalidRate      = errors.New("exchange rate must be greater than 0")
	ErrSupplierNotFound = errors.New("supplier not found")
	ErrTotalMismatch    = errors.New("total amount does not match items")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrCarrierRequired  = errors.New("carrier is required")
	ErrShippingCost     = errors.New("shipping cost must be greater than or equal to 0")
	ErrShippingStatus   = errors.New("shipping status must be shipped or received")
)

// ItemForm is one ordered line
type ItemForm struct {
	ProductID int64           `json:"product_id,string" validate:"required"`
	VariantID int64           `json:"variant_id,string"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

// OrderForm carries the editable fields of a purchase order
type OrderForm struct {
	SupplierID       int64           `json:"supplier_id,string" validate:"required"`
	Currency         string          `json:"currency"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	Notes            string          `json:"notes" validate:"max=2000"`
	ExpectedDelivery *time.Time      `json:"expected_delivery"`
	Items            []ItemForm      `json:"items" validate:"dive"`
}

// ShippingForm is attached when a shipping agent takes the order
type ShippingForm struct {
	Carrier          string          `json:"carrier" validate:"required,max=100"`
	Agent            string          `json:"agent" validate:"max=100"`
	Cost             decimal.Decimal `json:"cost"`
	TrackingNumber   string          `json:"tracking_number" validate:"max=64"`
	EstimatedArrival *time.Time      `json:"estimated_arrival"`
}

type Service struct {
	repo  Repository
	retry *resilient.Client
	bus   *events.Bus
	now   func() time.Time
}

func NewService(repo Repository, retry *resilient.Client, bus *events.Bus) *Service {
	if retry == nil {
		retry = resilient.NewClient(resilient.DefaultPolicy)
	}
	return &Service{repo: repo, retry: retry, bus: bus, now: time.Now}
}

// NormalizeCurrency validates an ISO 4217 code, empty means USD
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD", nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// Recalculate refreshes line subtotals and the order total
func Recalculate(po *domain.PurchaseOrder) {
	total := decimal.Zero
	for i := range po.Items {
		it := &po.Items[i]
		it.Subtotal = it.CostPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		total = total.Add(it.Subtotal)
	}
	po.TotalAmount = total
}

// CheckTotal verifies TotalAmount equals the sum of quantity * cost price
func CheckTotal(po *domain.PurchaseOrder) error {
	total := decimal.Zero
	for _, it := range po.Items {
		total = total.Add(it.CostPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2))
	}
	if !total.Equal(po.TotalAmount) {
		return fmt.Errorf("%w: have %s, items sum to %s", ErrTotalMismatch, po.TotalAmount, total)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, repo Repository, po *domain.PurchaseOrder, form *OrderForm) error {
	if len(form.Items) == 0 {
		return ErrNoItems
	}
	for i, it := range form.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be greater than 0", i)
		}
		if it.CostPrice.IsNegative() {
			return fmt.Errorf("items[%d]: cost price must be greater than or equal to 0", i)
		}
	}
	code, err := NormalizeCurrency(form.Currency)
	if err != nil {
		return err
	}
	rate := form.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	ok, err := repo.SupplierExists(ctx, form.SupplierID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSupplierNotFound
	}

	po.SupplierID = form.SupplierID
	po.Currency = code
	po.ExchangeRate = rate
	po.Notes = strings.TrimSpace(form.Notes)
	po.ExpectedDelivery = form.ExpectedDelivery
	po.Items = po.Items[:0]
	for _, it := range form.Items {
		po.Items = append(po.Items, domain.PurchaseOrderItem{
			ID:              common.UUIDint64(),
			PurchaseOrderID: po.ID,
			ProductID:       it.ProductID,
			VariantID:       it.VariantID,
			Quantity:        it.Quantity,
			CostPrice:       it.CostPrice,
		})
	}
	Recalculate(po)
	return CheckTotal(po)
}

func (s *Service) nextNumber(ctx context.Context, repo Repository) (string, error) {
	prefix := "PO-" + s.now().Format("20060102") + "-"
	n, err := repo.CountNumbers(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, n+1), nil
}

// Create stores a new draft order
func (s *Service) Create(ctx context.Context, form *OrderForm) (*domain.PurchaseOrder, error) {
	var po *domain.PurchaseOrder
	err := s.retry.Do(ctx, "purchase.create", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			po = &domain.PurchaseOrder{ID: common.UUIDint64(), Status: string(StatusDraft)}
			if err := s.apply(ctx, repo, po, form); err != nil {
				return err
			}
			number, err := s.nextNumber(ctx, repo)
			if err != nil {
				return err
			}
			po.OrderNumber = number
			if err := repo.Create(ctx, po); err != nil {
				return err
			}
			return s.addEvent(ctx, repo, po.ID, "", StatusDraft, "created")
		})
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// Update replaces supplier, items, notes and delivery date of a draft
func (s *Service) Update(ctx context.Context, id int64, form *OrderForm) (*domain.PurchaseOrder, error) {
	var po *domain.PurchaseOrder
	err := s.retry.Do(ctx, "purchase.update", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			var err error
			po, err = repo.Get(ctx, id, true)
			if err != nil {
				return err
			}
			if Status(po.Status) != StatusDraft {
				return ErrNotEditable
			}
			if err := s.apply(ctx, repo, po, form); err != nil {
				return err
			}
			if err := repo.Save(ctx, po); err != nil {
				return err
			}
			return repo.ReplaceItems(ctx, po)
		})
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	return resilient.Call(ctx, s.retry, "purchase.get", resilient.Idempotent,
		func(ctx context.Context) (*domain.PurchaseOrder, error) {
			return s.repo.Get(ctx, id, false)
		})
}

func (s *Service) List(ctx context.Context, filter Filter) ([]domain.PurchaseOrder, int64, error) {
	var (
		rows  []domain.PurchaseOrder
		total int64
	)
	err := s.retry.Do(ctx, "purchase.list", resilient.Idempotent, func(ctx context.Context) error {
		var err error
		rows, total, err = s.repo.List(ctx, filter)
		return err
	})
	return rows, total, err
}

func (s *Service) Events(ctx context.Context, id int64) ([]domain.PurchaseOrderEvent, error) {
	return resilient.Call(ctx, s.retry, "purchase.events", resilient.Idempotent,
		func(ctx context.Context) ([]domain.PurchaseOrderEvent, error) {
			return s.repo.ListEvents(ctx, id)
		})
}

func (s *Service) addEvent(ctx context.Context, repo Repository, orderID int64, from, to Status, note string) error {
	return repo.AddEvent(ctx, &domain.PurchaseOrderEvent{
		ID:              common.UUIDint64(),
		PurchaseOrderID: orderID,
		FromStatus:      string(from),
		ToStatus:        string(to),
		Note:            note,
		OccurredAt:      s.now(),
	})
}

// moveTo checks the transition table, persists the new status and records the event
func (s *Service) moveTo(ctx context.Context, repo Repository, po *domain.PurchaseOrder, to Status, note string) error {
	from := Status(po.Status)
	if !from.CanTransition(to) {
		return &TransitionError{From: from, To: to}
	}
	if err := CheckTotal(po); err != nil {
		return err
	}
	po.Status = string(to)
	if err := repo.Save(ctx, po); err != nil {
		return err
	}
	zap.L().Info("purchase order status changed",
		zap.String("order_number", po.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("namespace", "purchase"))
	return s.addEvent(ctx, repo, po.ID, from, to, note)
}

// transition loads the order, runs fn inside one transaction and returns the updated order
func (s *Service) transition(ctx context.Context, op string, id int64, fn func(repo Repository, po *domain.PurchaseOrder) error) (*domain.PurchaseOrder, error) {
	var po *domain.PurchaseOrder
	err := s.retry.Do(ctx, op, resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			var err error
			po, err = repo.Get(ctx, id, true)
			if err != nil {
				return err
			}
			return fn(repo, po)
		})
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

func (s *Service) Send(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	return s.transition(ctx, "purchase.send", id, func(repo Repository, po *domain.PurchaseOrder) error {
		return s.moveTo(ctx, repo, po, StatusSent, "sent to supplier")
	})
}

func (s *Service) Confirm(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	return s.transition(ctx, "purchase.confirm", id, func(repo Repository, po *domain.PurchaseOrder) error {
		return s.moveTo(ctx, repo, po, StatusConfirmed, "confirmed by supplier")
	})
}

// AssignShipping attaches the shipping details and moves the order to shipping
func (s *Service) AssignShipping(ctx context.Context, id int64, form *ShippingForm) (*domain.PurchaseOrder, error) {
	if form == nil || strings.TrimSpace(form.Carrier) == "" {
		return nil, ErrCarrierRequired
	}
	if form.Cost.IsNegative() {
		return nil, ErrShippingCost
	}
	return s.transition(ctx, "purchase.assign_shipping", id, func(repo Repository, po *domain.PurchaseOrder) error {
		from := Status(po.Status)
		if from != StatusDraft && from != StatusSent && from != StatusConfirmed {
			return &TransitionError{From: from, To: StatusShipping}
		}
		info := po.Shipping
		if info == nil {
			info = &domain.ShippingInfo{ID: common.UUIDint64(), PurchaseOrderID: po.ID}
		}
		info.Carrier = strings.TrimSpace(form.Carrier)
		info.Agent = strings.TrimSpace(form.Agent)
		info.Cost = form.Cost
		info.TrackingNumber = strings.TrimSpace(form.TrackingNumber)
		info.EstimatedArrival = form.EstimatedArrival
		if err := repo.SaveShipping(ctx, info); err != nil {
			return err
		}
		po.Shipping = info
		return s.moveTo(ctx, repo, po, StatusShipping, "assigned to "+info.Carrier)
	})
}

// UpdateShippingStatus applies a shipping agent update, shipped or received
func (s *Service) UpdateShippingStatus(ctx context.Context, id int64, status string) (*domain.PurchaseOrder, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if to != StatusShipped && to != StatusReceived {
		return nil, ErrShippingStatus
	}
	var received []events.SaleLine
	po, err := s.transition(ctx, "purchase.shipping_status", id, func(repo Repository, po *domain.PurchaseOrder) error {
		if to == StatusShipped {
			return s.moveTo(ctx, repo, po, StatusShipped, "shipped")
		}
		if Status(po.Status) != StatusShipped {
			return &TransitionError{From: Status(po.Status), To: to}
		}
		var err error
		received, err = s.receive(ctx, repo, po, nil)
		return err
	})
	if err == nil && to == StatusReceived {
		s.publishReceived(po, received)
	}
	return po, err
}

// Receive books the goods of a sent order into stock. quantities maps item id to the
// received quantity, lines not present are taken as fully received.
func (s *Service) Receive(ctx context.Context, id int64, quantities map[int64]int) (*domain.PurchaseOrder, error) {
	var received []events.SaleLine
	po, err := s.transition(ctx, "purchase.receive", id, func(repo Repository, po *domain.PurchaseOrder) error {
		if Status(po.Status) != StatusSent {
			return &TransitionError{From: Status(po.Status), To: StatusReceived}
		}
		var err error
		received, err = s.receive(ctx, repo, po, quantities)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishReceived(po, received)
	return po, nil
}

func (s *Service) receive(ctx context.Context, repo Repository, po *domain.PurchaseOrder, quantities map[int64]int) ([]events.SaleLine, error) {
	known := make(map[int64]bool, len(po.Items))
	for _, it := range po.Items {
		known[it.ID] = true
	}
	for itemID, qty := range quantities {
		if !known[itemID] {
			return nil, fmt.Errorf("item %d does not belong to %s", itemID, po.OrderNumber)
		}
		if qty < 0 {
			return nil, fmt.Errorf("item %d: received quantity must be greater than or equal to 0", itemID)
		}
	}

	var lines []events.SaleLine
	for i := range po.Items {
		it := &po.Items[i]
		qty, ok := quantities[it.ID]
		if !ok {
			qty = it.Quantity
		}
		if qty > it.Quantity {
			return nil, fmt.Errorf("item %d: received %d exceeds ordered %d", it.ID, qty, it.Quantity)
		}
		it.ReceivedQuantity = qty
		if err := repo.SaveItem(ctx, it); err != nil {
			return nil, err
		}
		if qty == 0 {
			continue
		}
		cost := it.CostPrice.Mul(po.ExchangeRate).Round(2)
		if err := repo.ReceiveStock(ctx, it.ProductID, it.VariantID, qty, cost); err != nil {
			return nil, fmt.Errorf("item %d: update stock: %w", it.ID, err)
		}
		lines = append(lines, events.SaleLine{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: qty})
	}
	now := s.now()
	po.ReceivedAt = &now
	return lines, s.moveTo(ctx, repo, po, StatusReceived, "goods received")
}

func (s *Service) publishReceived(po *domain.PurchaseOrder, lines []events.SaleLine) {
	if s.bus == nil || po == nil {
		return
	}
	s.bus.Publish(events.TopicPurchaseReceived, events.PurchaseReceived{PurchaseOrderID: po.ID, Lines: lines})
}

// Cancel stops an order that has not reached a terminal state
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*domain.PurchaseOrder, error) {
	return s.transition(ctx, "purchase.cancel", id, func(repo Repository, po *domain.PurchaseOrder) error {
		po.CancelReason = strings.TrimSpace(reason)
		return s.moveTo(ctx, repo, po, StatusCancelled, po.CancelReason)
	})
}
