package repo

import (
	"context"

	"github.com/casamarket/checkout/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepo struct {
	db *gorm.DB
}

func NewRefundRepo(db *gorm.DB) *RefundRepo { return &RefundRepo{db: db} }

func (r *RefundRepo) SumApproved(ctx context.Context, transactionID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRefund{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.PaymentRefundStatusApproved).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// CreateWithinBalance inserts the refund only while approved refunds plus the
// new amount stay within total. The parent transaction row is locked for the
// duration so two concurrent refunds cannot both pass the balance check; false
// means a competing refund consumed the balance first.
func (r *RefundRepo) CreateWithinBalance(ctx context.Context, refund *models.PaymentRefund, total int64) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lockedID string
		if err := tx.Model(&models.PaymentTransaction{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", refund.TransactionID).
			Select("id").
			Scan(&lockedID).Error; err != nil {
			return err
		}
		var refunded int64
		if err := tx.Model(&models.PaymentRefund{}).
			Where("transaction_id = ? AND status = ?", refund.TransactionID, models.PaymentRefundStatusApproved).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&refunded).Error; err != nil {
			return err
		}
		if refunded+refund.Amount > total {
			return nil
		}
		if err := tx.Create(refund).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
