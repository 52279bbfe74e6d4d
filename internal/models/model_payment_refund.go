package models

import (
	"time"

	"github.com/casamarket/checkout/pkg/types"
)

type PaymentRefundStatus string

const (
	PaymentRefundStatusApproved PaymentRefundStatus = "APPROVED"
	PaymentRefundStatusRejected PaymentRefundStatus = "REJECTED"
)

// PaymentRefund is a (possibly partial) refund against an approved
// transaction. The sum of APPROVED refunds never exceeds the transaction
// amount; the refund workflow enforces this before any gateway call.
type PaymentRefund struct {
	ID              string               `gorm:"column:id;primary_key;type:uuid" json:"id"`
	TransactionID   string               `gorm:"column:transaction_id;type:uuid;not null;index" json:"transaction_id"`
	Amount          int64                `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Reason          string               `gorm:"column:reason;type:varchar(255)" json:"reason"`
	Status          PaymentRefundStatus  `gorm:"column:status;type:varchar(16);not null" json:"status"`
	GatewayRefundID *string              `gorm:"column:gateway_refund_id;type:varchar(128)" json:"gateway_refund_id"`
	GatewayID       types.PaymentGateway `gorm:"column:gateway_id;type:varchar(32);not null" json:"gateway_id"`
	RequestedBy     string               `gorm:"column:requested_by;type:varchar(64)" json:"requested_by"`
	CreatedAt       time.Time            `json:"created_at"`
}

func (PaymentRefund) TableName() string { return "payment_refund" }
