package models

import (
	"time"

	"github.com/casamarket/checkout/pkg/types"

	"gorm.io/datatypes"
)

type WebhookLogStatus string

const (
	WebhookLogStatusReceived     WebhookLogStatus = "received"
	WebhookLogStatusHandled      WebhookLogStatus = "handled"
	WebhookLogStatusHandleFailed WebhookLogStatus = "handle_failed"
)

// WebhookLog is the audit trail of every received gateway callback, including
// duplicates and anomalies. Distinct from WebhookEvent, which only provides
// idempotence.
type WebhookLog struct {
	ID                   string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	GatewayID            types.PaymentGateway `gorm:"column:gateway_id;type:varchar(32);not null" json:"gateway_id"`
	TraceID              string               `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	GatewayTransactionID string               `gorm:"column:gateway_transaction_id;type:varchar(128)" json:"gateway_transaction_id"`
	Data                 datatypes.JSON       `gorm:"column:data;type:jsonb" json:"data"`
	Result               *datatypes.JSON      `gorm:"column:result;type:jsonb" json:"result"`
	Status               WebhookLogStatus     `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

func (WebhookLog) TableName() string { return "webhook_log" }
