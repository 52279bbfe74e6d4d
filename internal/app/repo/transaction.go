package repo

import (
	"context"
	"errors"

	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/types"

	"gorm.io/gorm"
)

type TransactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) *TransactionRepo { return &TransactionRepo{db: db} }

func (r *TransactionRepo) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepo) FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepo) FindActiveByOrder(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID,
			[]types.PaymentStatus{types.PaymentStatusPending, types.PaymentStatusApproved}).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepo) FindByGatewayTransactionID(ctx context.Context, gatewayID types.PaymentGateway, gatewayTxID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("gateway_id = ? AND gateway_transaction_id = ?", gatewayID, gatewayTxID).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateStatus is a conditional transition keyed on the expected prior
// status. Concurrent webhook deliveries for the same transaction serialize
// here: exactly one of them affects a row.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, id string, from, to types.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
