package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder stock ordered from a supplier. TotalAmount is always the sum of item subtotals.
type PurchaseOrder struct {
	ID               int64               `json:"id,string"`
	OrderNumber      string              `gorm:"size:32;uniqueIndex" json:"order_number"`
	SupplierID       int64               `gorm:"index" json:"supplier_id,string"`
	Currency         string              `gorm:"size:3" json:"currency"`
	ExchangeRate     decimal.Decimal     `gorm:"type:decimal(18,6)" json:"exchange_rate"`
	Status           string              `gorm:"size:16;index" json:"status"`
	Notes            string              `gorm:"type:text" json:"notes"`
	ExpectedDelivery *time.Time          `json:"expected_delivery"`
	TotalAmount      decimal.Decimal     `gorm:"type:decimal(12,2)" json:"total_amount"`
	CancelReason     string              `json:"cancel_reason"`
	ReceivedAt       *time.Time          `json:"received_at"`
	Items            []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderID" json:"items,omitempty"`
	Shipping         *ShippingInfo       `gorm:"foreignKey:PurchaseOrderID" json:"shipping,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func (PurchaseOrder) TableName() string {
	return "pos_purchase_order"
}

type PurchaseOrderItem struct {
	ID               int64           `json:"id,string"`
	PurchaseOrderID  int64           `gorm:"index" json:"purchase_order_id,string"`
	ProductID        int64           `gorm:"index" json:"product_id,string"`
	VariantID        int64           `json:"variant_id,string"`
	Quantity         int             `json:"quantity"`
	CostPrice        decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost_price"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	ReceivedQuantity int             `json:"received_quantity"`
}

func (PurchaseOrderItem) TableName() string {
	return "pos_purchase_order_item"
}

// ShippingInfo is attached by the shipping assignment action
type ShippingInfo struct {
	ID               int64           `json:"id,string"`
	PurchaseOrderID  int64           `gorm:"uniqueIndex" json:"purchase_order_id,string"`
	Carrier          string          `json:"carrier"`
	Agent            string          `json:"agent"`
	Cost             decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost"`
	TrackingNumber   string          `gorm:"size:64;index" json:"tracking_number"`
	EstimatedArrival *time.Time      `json:"estimated_arrival"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (ShippingInfo) TableName() string {
	return "pos_shipping_info"
}

// PurchaseOrderEvent audit row per status transition
type PurchaseOrderEvent struct {
	ID              int64     `json:"id,string"`
	PurchaseOrderID int64     `gorm:"index" json:"purchase_order_id,string"`
	FromStatus      string    `gorm:"size:16" json:"from_status"`
	ToStatus        string    `gorm:"size:16" json:"to_status"`
	Note            string    `json:"note"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (PurchaseOrderEvent) TableName() string {
	return "pos_purchase_order_event"
}
