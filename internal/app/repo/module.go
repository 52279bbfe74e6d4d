package repo

import (
	"github.com/casamarket/checkout/internal/app/service/inventory"
	"github.com/casamarket/checkout/internal/app/service/reconciler"
	"github.com/casamarket/checkout/internal/app/service/refund"
	"github.com/casamarket/checkout/internal/app/service/router"
	"github.com/casamarket/checkout/internal/app/service/webhooklog"

	"go.uber.org/fx"
)

// Module binds the gorm repositories to the narrow interfaces each service
// declares. One concrete repo can back several consumers.
var Module = fx.Options(
	fx.Provide(NewTransactionRepo),
	fx.Provide(NewRefundRepo),
	fx.Provide(NewFailedAttemptRepo),
	fx.Provide(NewWebhookEventRepo),
	fx.Provide(NewInventoryRepo),
	fx.Provide(NewOrderRepo),
	fx.Provide(NewWebhookLogRepo),

	fx.Provide(func(r *TransactionRepo) router.TransactionRepository { return r }),
	fx.Provide(func(r *TransactionRepo) reconciler.TransactionRepository { return r }),
	fx.Provide(func(r *TransactionRepo) refund.TransactionRepository { return r }),
	fx.Provide(func(r *FailedAttemptRepo) router.FailedAttemptRepository { return r }),
	fx.Provide(func(r *RefundRepo) refund.RefundRepository { return r }),
	fx.Provide(func(r *WebhookEventRepo) reconciler.EventLedger { return r }),
	fx.Provide(func(r *InventoryRepo) inventory.Repository { return r }),
	fx.Provide(func(r *OrderRepo) inventory.OrderRepository { return r }),
	fx.Provide(func(r *OrderRepo) reconciler.OrderRepository { return r }),
	fx.Provide(func(r *WebhookLogRepo) webhooklog.Repository { return r }),
)
