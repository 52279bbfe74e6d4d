package models

import "time"

// PaymentFailedAttempt is an append-only audit row for a declined or errored
// payment attempt. Never mutated.
type PaymentFailedAttempt struct {
	ID        string    `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID   string    `gorm:"column:order_id;type:varchar(64);not null;index" json:"order_id"`
	Reason    string    `gorm:"column:reason;type:varchar(255);not null" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (PaymentFailedAttempt) TableName() string { return "payment_failed_attempt" }
