package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale status
const (
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
)

// Payment methods
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentEwallet  = "ewallet"
	PaymentPoints   = "points"
	PaymentSplit    = "split"
)

// Sale is written once at checkout, afterwards only the status may change
type Sale struct {
	ID             int64           `json:"id,string"`
	ReceiptNo      string          `gorm:"size:32;uniqueIndex" json:"receipt_no"`
	IdempotencyKey string          `gorm:"size:64;uniqueIndex" json:"idempotency_key"`
	CustomerID     int64           `gorm:"index" json:"customer_id,string"` // 0 for walk-in
	OperatorID     int64           `gorm:"index" json:"operator_id,string"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	DiscountType   string          `gorm:"size:16" json:"discount_type"`
	DiscountValue  decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_value"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2)" json:"tax_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_amount"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(12,2)" json:"paid_amount"`
	ChangeAmount   decimal.Decimal `gorm:"type:decimal(12,2)" json:"change_amount"`
	PaymentMethod  string          `gorm:"size:16" json:"payment_method"`
	PointsEarned   int64           `json:"points_earned"`
	Status         string          `gorm:"size:16;index" json:"status"`
	Note           string          `json:"note"`
	RefundReason   string          `json:"refund_reason"`
	RefundedAt     *time.Time      `json:"refunded_at"`
	Items          []SaleItem      `gorm:"foreignKey:SaleID" json:"items,omitempty"`
	Payments       []SalePayment   `gorm:"foreignKey:SaleID" json:"payments,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Sale) TableName() string {
	return "pos_sale"
}

// SaleItem is a snapshot of a cart line at checkout time
type SaleItem struct {
	ID          int64           `json:"id,string"`
	SaleID      int64           `gorm:"index" json:"sale_id,string"`
	ProductID   int64           `gorm:"index" json:"product_id,string"`
	VariantID   int64           `json:"variant_id,string"`
	ProductName string          `json:"product_name"`
	VariantName string          `json:"variant_name"`
	Sku         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_price"`
}

func (SaleItem) TableName() string {
	return "pos_sale_item"
}

type SalePayment struct {
	ID        int64           `json:"id,string"`
	SaleID    int64           `gorm:"index" json:"sale_id,string"`
	Method    string          `gorm:"size:16" json:"method"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	Reference string          `json:"reference"`
}

func (SalePayment) TableName() string {
	return "pos_sale_payment"
}
