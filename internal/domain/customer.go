package domain

import "time"

// Customer contact record, loyalty data lives in LoyaltyCustomer
type Customer struct {
	ID        int64     `json:"id,string" form:"id"`
	Name      string    `gorm:"index" json:"name" form:"name"`
	Company   string    `json:"company" form:"company"`
	Email     string    `json:"email" form:"email"`
	Mobile    string    `gorm:"index" json:"mobile" form:"mobile"`
	Phone     string    `json:"phone" form:"phone"`
	Address   string    `json:"address" form:"address"`
	City      string    `json:"city" form:"city"`
	Country   string    `json:"country" form:"country"`
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "pos_customer"
}
