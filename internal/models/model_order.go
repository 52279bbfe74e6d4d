package models

import (
	"time"

	"github.com/casamarket/checkout/pkg/types"
)

// Order is owned by the storefront's order module; the payment subsystem only
// reads line items and updates the payment status through a narrow contract.
type Order struct {
	ID            string              `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	PaymentStatus types.PaymentStatus `gorm:"column:payment_status;type:varchar(16);not null;default:'PENDING'" json:"payment_status"`
	Items         []*OrderItem        `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID   string `gorm:"column:order_id;type:varchar(64);not null;index" json:"order_id"`
	ProductID string `gorm:"column:product_id;type:varchar(64);not null" json:"product_id"`
	Quantity  int64  `gorm:"column:quantity;type:bigint;not null" json:"quantity"`
	UnitPrice int64  `gorm:"column:unit_price;type:bigint;not null" json:"unit_price"`
}

func (OrderItem) TableName() string { return "order_item" }
