package domain

import "time"

// MessageLog audit trail for every outbound SMS/email
type MessageLog struct {
	ID         int64     `json:"id,string" gorm:"primaryKey"`
	Channel    string    `json:"channel" gorm:"size:16"`        // "sms", "email"
	Recipient  string    `json:"recipient" gorm:"index"`        // phone number or email address
	Body       string    `json:"body" gorm:"type:text"`         // message text
	Reference  string    `json:"reference" gorm:"index"`        // e.g. "campaign:123", "sale:456"
	Status     string    `json:"status" gorm:"size:16"`         // "success", "failure"
	ErrorMsg   string    `json:"error_msg"`                     // error message if sending failed
	ExecutedAt time.Time `json:"executed_at"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name
func (MessageLog) TableName() string {
	return "pos_message_log"
}
