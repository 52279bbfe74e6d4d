package repo

import (
	"context"
	"time"

	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/tool"
	"github.com/casamarket/checkout/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepo struct {
	db *gorm.DB
}

func NewWebhookEventRepo(db *gorm.DB) *WebhookEventRepo { return &WebhookEventRepo{db: db} }

// InsertIfAbsent writes the dedup row with ON CONFLICT DO NOTHING so the
// seen-check and the insert are one statement. Returns false when the
// (gateway, event) pair already existed.
func (r *WebhookEventRepo) InsertIfAbsent(ctx context.Context, gatewayID types.PaymentGateway, eventID string) (bool, error) {
	row := &models.WebhookEvent{
		ID:          tool.GenerateUUIDV7(),
		GatewayID:   gatewayID,
		EventID:     eventID,
		ProcessedAt: time.Now(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_id"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
