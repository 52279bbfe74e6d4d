package repo

import (
	"context"

	"github.com/casamarket/checkout/internal/models"

	"gorm.io/gorm"
)

type FailedAttemptRepo struct {
	db *gorm.DB
}

func NewFailedAttemptRepo(db *gorm.DB) *FailedAttemptRepo { return &FailedAttemptRepo{db: db} }

func (r *FailedAttemptRepo) Append(ctx context.Context, attempt *models.PaymentFailedAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}
