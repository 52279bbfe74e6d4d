package models

import "time"

// Inventory tracks owned and reserved stock per product. Available stock is
// derived as quantity - reserved and is never stored, so it cannot drift.
// Both counters are only touched through single-statement conditional updates
// that keep reserved >= 0 and quantity - reserved >= 0.
type Inventory struct {
	ProductID string    `gorm:"column:product_id;primary_key;type:varchar(64)" json:"product_id"`
	Quantity  int64     `gorm:"column:quantity;type:bigint;not null" json:"quantity"`
	Reserved  int64     `gorm:"column:reserved;type:bigint;not null;default:0" json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Inventory) TableName() string { return "inventory" }

func (i *Inventory) Available() int64 {
	if i == nil {
		return 0
	}
	return i.Quantity - i.Reserved
}

type InventoryMovementReason string

const (
	InventoryMovementReasonReserve InventoryMovementReason = "reserve"
	InventoryMovementReasonRelease InventoryMovementReason = "release"
)

// InventoryMovement is the append-only ledger of every stock mutation, keyed
// back to the order that caused it. Rows are never edited, so the current
// counters can always be reconstructed and audited.
type InventoryMovement struct {
	ID        string                  `gorm:"column:id;primary_key;type:uuid" json:"id"`
	ProductID string                  `gorm:"column:product_id;type:varchar(64);not null;index" json:"product_id"`
	Delta     int64                   `gorm:"column:delta;type:bigint;not null" json:"delta"`
	Reason    InventoryMovementReason `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	OrderID   string                  `gorm:"column:order_id;type:varchar(64);not null;index" json:"order_id"`
	CreatedAt time.Time               `json:"created_at"`
}

func (InventoryMovement) TableName() string { return "inventory_movement" }
