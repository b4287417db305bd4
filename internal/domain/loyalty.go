package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Point transaction types
const (
	PointsEarn   = "earn"
	PointsRedeem = "redeem"
	PointsAdjust = "adjust"
	PointsExpire = "expire"
)

// LoyaltyCustomer Points must equal the sum of the customer's PointTransaction rows,
// Tier is derived and only cached here for listing
type LoyaltyCustomer struct {
	ID         int64           `json:"id,string"`
	CustomerID int64           `gorm:"uniqueIndex" json:"customer_id,string"`
	Points     int64           `json:"points"`
	Tier       string          `gorm:"size:16;index" json:"tier"`
	TotalSpent decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_spent"`
	Orders     int             `json:"orders"`
	Status     string          `gorm:"size:16" json:"status"`
	JoinedAt   time.Time       `json:"joined_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (LoyaltyCustomer) TableName() string {
	return "loyalty_customer"
}

// PointTransaction signed ledger entry
type PointTransaction struct {
	ID         int64     `json:"id,string"`
	CustomerID int64     `gorm:"index" json:"customer_id,string"`
	Type       string    `gorm:"size:16" json:"type"`
	Points     int64     `json:"points"`
	Reference  string    `gorm:"size:64;index" json:"reference"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "loyalty_point_transaction"
}

// LoyaltyReward Stock < 0 means unlimited
type LoyaltyReward struct {
	ID          int64     `json:"id,string"`
	Name        string    `gorm:"size:100" json:"name"`
	Description string    `json:"description"`
	Points      int64     `json:"points"`
	Stock       int       `json:"stock"`
	Status      string    `gorm:"size:16" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (LoyaltyReward) TableName() string {
	return "loyalty_reward"
}

type Redemption struct {
	ID         int64     `json:"id,string"`
	CustomerID int64     `gorm:"index" json:"customer_id,string"`
	RewardID   int64     `gorm:"index" json:"reward_id,string"`
	Points     int64     `json:"points"`
	Status     string    `gorm:"size:16" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Redemption) TableName() string {
	return "loyalty_redemption"
}

// Campaign a message sent to every customer of a segment
type Campaign struct {
	ID          int64      `json:"id,string"`
	Name        string     `gorm:"size:100" json:"name"`
	Segment     string     `gorm:"size:16" json:"segment"` // all, vip, loyal, regular, new
	Message     string     `gorm:"type:text" json:"message"`
	Status      string     `gorm:"size:16" json:"status"` // draft, sending, sent
	SentCount   int        `json:"sent_count"`
	FailedCount int        `json:"failed_count"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "loyalty_campaign"
}
