package domain

import "time"

// Supplier a vendor that purchase orders are placed with
type Supplier struct {
	ID          int64     `json:"id,string" form:"id"`
	Code        string    `gorm:"size:32;uniqueIndex" json:"code" form:"code"`
	Name        string    `json:"name" form:"name"`
	ContactName string    `json:"contact_name" form:"contact_name"`
	Email       string    `json:"email" form:"email"`
	Phone       string    `json:"phone" form:"phone"`
	Currency    string    `gorm:"size:3" json:"currency" form:"currency"` // default PO currency
	Remark      string    `json:"remark" form:"remark"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns table name
func (Supplier) TableName() string {
	return "pos_supplier"
}
