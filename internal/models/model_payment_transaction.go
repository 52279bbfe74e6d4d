package models

import (
	"time"

	"github.com/casamarket/checkout/pkg/types"

	"gorm.io/datatypes"
)

// PaymentTransaction is one payment attempt against an order. A transaction is
// permanently bound to the gateway that created it; refunds and verification
// are routed through gateway_id, never re-derived from the method.
//
// Mutated by exactly two actors: the payment router (creation, synchronous
// verify) and the webhook reconciler (status transitions). Never deleted.
type PaymentTransaction struct {
	ID        string               `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID   string               `gorm:"column:order_id;type:varchar(64);not null;index:idx_order_id" json:"order_id"`
	Amount    int64                `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency  string               `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	MethodID  string               `gorm:"column:method_id;type:varchar(64);not null" json:"method_id"`
	GatewayID types.PaymentGateway `gorm:"column:gateway_id;type:varchar(32);not null;uniqueIndex:unique_gateway_gateway_tx,priority:1" json:"gateway_id"`
	// GatewayTransactionID is assigned by the processor; nil until the create
	// call has produced one.
	GatewayTransactionID *string             `gorm:"column:gateway_transaction_id;type:varchar(128);uniqueIndex:unique_gateway_gateway_tx,priority:2" json:"gateway_transaction_id"`
	Status               types.PaymentStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	// RawResponse is the gateway's response stored verbatim for audit. It is
	// opaque: nothing downstream parses it.
	RawResponse datatypes.JSON `gorm:"column:raw_response;type:jsonb" json:"raw_response"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transaction" }

// Active reports whether the transaction still blocks a new payment attempt
// for its order. At most one active attempt per order is allowed; any terminal
// status frees the order for a retry.
func (t *PaymentTransaction) Active() bool {
	if t == nil {
		return false
	}
	return !t.Status.IsTerminal()
}
