package models

import (
	"time"

	"github.com/casamarket/checkout/pkg/types"
)

// WebhookEvent is the dedup ledger for gateway callbacks. A row existing for
// (gateway_id, event_id) means the event already produced its side effects.
// Insertion relies on the unique index and ON CONFLICT DO NOTHING so the
// seen-check and the write are one atomic statement, never a read-then-write.
type WebhookEvent struct {
	ID          string               `gorm:"column:id;primary_key;type:uuid" json:"id"`
	GatewayID   types.PaymentGateway `gorm:"column:gateway_id;type:varchar(32);not null;uniqueIndex:unique_gateway_event,priority:1" json:"gateway_id"`
	EventID     string               `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex:unique_gateway_event,priority:2" json:"event_id"`
	ProcessedAt time.Time            `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }
