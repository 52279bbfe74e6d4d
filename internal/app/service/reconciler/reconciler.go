package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/inventory"
	"github.com/casamarket/checkout/internal/app/service/webhooklog"
	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// EventLedger is the webhook dedup contract. InsertIfAbsent must be one
// atomic statement relying on the (gateway, event) unique constraint; false
// means the event was seen before.
type EventLedger interface {
	InsertIfAbsent(ctx context.Context, gatewayID types.PaymentGateway, eventID string) (bool, error)
}

type TransactionRepository interface {
	FindByGatewayTransactionID(ctx context.Context, gatewayID types.PaymentGateway, gatewayTxID string) (*models.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, id string, from, to types.PaymentStatus) (bool, error)
}

type OrderRepository interface {
	UpdatePaymentStatus(ctx context.Context, orderID string, status types.PaymentStatus) error
}

// Reconciler folds at-least-once, possibly duplicated, possibly out-of-order
// gateway callbacks into consistent transaction, order and inventory state.
// After the signature and dedup checks every failure is logged and
// acknowledged: a non-200 would only trigger provider retry storms.
type Reconciler struct {
	log      *zap.SugaredLogger
	adapters *gateway.Adapters
	events   EventLedger
	txs      TransactionRepository
	orders   OrderRepository
	inv      *inventory.Manager
	audit    *webhooklog.Service
}

func NewReconciler(log *zap.SugaredLogger, adapters *gateway.Adapters, events EventLedger, txs TransactionRepository, orders OrderRepository, inv *inventory.Manager, audit *webhooklog.Service) *Reconciler {
	return &Reconciler{log: log, adapters: adapters, events: events, txs: txs, orders: orders, inv: inv, audit: audit}
}

// HandleWebhook validates, deduplicates and applies one gateway callback.
// gateway.ErrBadSignature is the only error the HTTP layer turns into a
// non-200; anything else returned here is an internal fault that has already
// been logged.
func (r *Reconciler) HandleWebhook(ctx context.Context, gatewayID types.PaymentGateway, body []byte, signature string) error {
	adapter, ok := r.adapters.ByID(gatewayID)
	if !ok {
		return fmt.Errorf("unknown gateway %s", gatewayID)
	}

	payload, err := adapter.ParseWebhook(body, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrBadSignature) {
			logctx.FromCtx(ctx, r.log).Warnw("webhook_bad_signature", "gateway", gatewayID)
			return gateway.ErrBadSignature
		}
		// Authenticated but unparsable; acknowledge after logging.
		logctx.FromCtx(ctx, r.log).Errorw("webhook_parse_error", "gateway", gatewayID, "err", err)
		return nil
	}

	logRow := &models.WebhookLog{
		GatewayID:            gatewayID,
		TraceID:              traceIDFrom(ctx),
		GatewayTransactionID: payload.GatewayTransactionID,
		Data:                 datatypes.JSON(body),
		Status:               models.WebhookLogStatusReceived,
	}
	r.audit.Save(ctx, logRow)

	handleErr := r.apply(ctx, gatewayID, payload)

	result := map[string]any{"status": string(payload.Status)}
	status := models.WebhookLogStatusHandled
	if handleErr != nil {
		result["error"] = handleErr.Error()
		status = models.WebhookLogStatusHandleFailed
	}
	resBytes, _ := json.Marshal(result)
	r.audit.Save(ctx, &models.WebhookLog{
		GatewayID:            gatewayID,
		TraceID:              traceIDFrom(ctx),
		GatewayTransactionID: payload.GatewayTransactionID,
		Data:                 datatypes.JSON(body),
		Result:               lo.ToPtr(datatypes.JSON(resBytes)),
		Status:               status,
	})

	if handleErr != nil {
		logctx.FromCtx(ctx, r.log).Errorw("webhook_handle_error", "gateway", gatewayID, "err", handleErr)
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, gatewayID types.PaymentGateway, payload *gateway.WebhookPayload) error {
	log := logctx.FromCtx(ctx, r.log)

	fresh, err := r.events.InsertIfAbsent(ctx, gatewayID, payload.EventID)
	if err != nil {
		return fmt.Errorf("dedup insert: %w", err)
	}
	if !fresh {
		log.Infow("webhook_duplicate", "gateway", gatewayID, "event_id", payload.EventID)
		return nil
	}

	tx, err := r.txs.FindByGatewayTransactionID(ctx, gatewayID, payload.GatewayTransactionID)
	if err != nil {
		return fmt.Errorf("locate transaction: %w", err)
	}
	if tx == nil {
		// The creating side may not have committed yet; an out-of-band
		// reconciliation job picks these up from the log.
		log.Warnw("reconciliation_gap",
			"gateway", gatewayID,
			"gateway_transaction_id", payload.GatewayTransactionID,
			"event_id", payload.EventID,
		)
		return nil
	}

	if !CanTransition(tx.Status, payload.Status) {
		log.Warnw("anomalous_transition",
			"transaction_id", tx.ID,
			"from", tx.Status,
			"to", payload.Status,
		)
		return nil
	}

	applied, err := r.txs.UpdateStatus(ctx, tx.ID, tx.Status, payload.Status)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if !applied {
		// A concurrent delivery for the same transaction won the conditional
		// update; this one carries no remaining work.
		log.Infow("transition_lost_race", "transaction_id", tx.ID, "to", payload.Status)
		return nil
	}

	if err := r.orders.UpdatePaymentStatus(ctx, tx.OrderID, payload.Status); err != nil {
		log.Errorw("order_status_update_error", "order_id", tx.OrderID, "err", err)
	}

	switch payload.Status {
	case types.PaymentStatusApproved:
		if err := r.inv.Reserve(ctx, tx.OrderID); err != nil {
			return fmt.Errorf("reserve inventory: %w", err)
		}
	case types.PaymentStatusDeclined, types.PaymentStatusError:
		if err := r.inv.Release(ctx, tx.OrderID); err != nil {
			return fmt.Errorf("release inventory: %w", err)
		}
	}

	log.Infow("webhook_reconciled",
		"transaction_id", tx.ID,
		"order_id", tx.OrderID,
		"status", payload.Status,
	)
	return nil
}

func traceIDFrom(ctx context.Context) string {
	if tid, ok := ctx.Value("traceID").(string); ok {
		return tid
	}
	return ""
}

var Module = fx.Options(
	fx.Provide(NewReconciler),
)
