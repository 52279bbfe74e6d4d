package webhooklog

import (
	"context"

	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/tool"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	db  Repository
	log *zap.SugaredLogger
}

type Repository interface {
	Save(ctx context.Context, row *models.WebhookLog) error
}

func New(db Repository, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a webhook audit row. Nil input is ignored.
func (s *Service) Save(ctx context.Context, row *models.WebhookLog) {
	go func() {
		if row == nil {
			return
		}
		if row.ID == "" {
			row.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(context.WithoutCancel(ctx), row); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(New),
)
