package events

import (
	"github.com/asaskevich/EventBus"
	"github.com/shopspring/decimal"
)

const (
	TopicSaleCompleted    = "sale.completed"
	TopicSaleRefunded     = "sale.refunded"
	TopicPurchaseReceived = "purchase.received"
)

type SaleLine struct {
	ProductID int64
	VariantID int64
	Quantity  int
}

type SaleCompleted struct {
	SaleID     int64
	ReceiptNo  string
	CustomerID int64
	Total      decimal.Decimal
	Lines      []SaleLine
}

type SaleRefunded struct {
	SaleID       int64
	CustomerID   int64
	PointsEarned int64
	Reason       string
}

type PurchaseReceived struct {
	PurchaseOrderID int64
	Lines           []SaleLine
}

// Bus is the in-process event bus shared by services
type Bus struct {
	bus EventBus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: EventBus.New()}
}

func (b *Bus) Publish(topic string, event interface{}) {
	b.bus.Publish(topic, event)
}

// Subscribe runs fn synchronously in the publisher's goroutine
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync runs fn in its own goroutine, serialized per handler
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.bus.SubscribeAsync(topic, fn, true)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Wait blocks until async handlers are done
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
