package repo

import (
	"context"

	"github.com/casamarket/checkout/internal/models"

	"gorm.io/gorm"
)

type WebhookLogRepo struct {
	db *gorm.DB
}

func NewWebhookLogRepo(db *gorm.DB) *WebhookLogRepo { return &WebhookLogRepo{db: db} }

func (r *WebhookLogRepo) Save(ctx context.Context, row *models.WebhookLog) error {
	return r.db.WithContext(ctx).Save(row).Error
}
