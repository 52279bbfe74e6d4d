package repo

import (
	"context"

	"github.com/casamarket/checkout/internal/models"

	"gorm.io/gorm"
)

type InventoryRepo struct {
	db *gorm.DB
}

func NewInventoryRepo(db *gorm.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// ReserveStock increments reserved only while enough stock is available, in
// a single statement so concurrent reservations for the same product cannot
// oversell.
func (r *InventoryRepo) ReserveStock(ctx context.Context, productID string, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Inventory{}).
		Where("product_id = ? AND quantity - reserved >= ?", productID, qty).
		Update("reserved", gorm.Expr("reserved + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseStock decrements reserved, guarded so the counter never goes
// negative.
func (r *InventoryRepo) ReleaseStock(ctx context.Context, productID string, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Inventory{}).
		Where("product_id = ? AND reserved >= ?", productID, qty).
		Update("reserved", gorm.Expr("reserved - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *InventoryRepo) AppendMovement(ctx context.Context, mv *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(mv).Error
}

// OutstandingReserved reconstructs the not-yet-released reservation per
// product for an order from the movement ledger. Reserve rows carry negative
// deltas, so the outstanding quantity is the negated sum.
func (r *InventoryRepo) OutstandingReserved(ctx context.Context, orderID string) (map[string]int64, error) {
	type row struct {
		ProductID string
		Total     int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Select("product_id, SUM(delta) AS total").
		Where("order_id = ?", orderID).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Total < 0 {
			out[r.ProductID] = -r.Total
		}
	}
	return out, nil
}
