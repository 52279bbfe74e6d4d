package inventory

import (
	"context"
	"fmt"

	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/tool"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Repository is the atomic stock contract. Reserve/Release must be single
// conditional statements on the storage side, never a read-then-write across
// a round trip: the boolean result reports whether the guard held.
type Repository interface {
	// ReserveStock runs: reserved = reserved + qty WHERE quantity - reserved >= qty.
	ReserveStock(ctx context.Context, productID string, qty int64) (bool, error)
	// ReleaseStock runs: reserved = reserved - qty WHERE reserved >= qty.
	ReleaseStock(ctx context.Context, productID string, qty int64) (bool, error)
	AppendMovement(ctx context.Context, mv *models.InventoryMovement) error
	// OutstandingReserved reconstructs, per product, how much of an order's
	// reservation has not been released yet, from the movement ledger.
	OutstandingReserved(ctx context.Context, orderID string) (map[string]int64, error)
}

type OrderRepository interface {
	FindWithItems(ctx context.Context, orderID string) (*models.Order, error)
}

// Manager keeps order payment outcomes and stock counters consistent. Every
// counter mutation is paired with an append-only movement row so the current
// value can always be reconstructed.
type Manager struct {
	log    *zap.SugaredLogger
	repo   Repository
	orders OrderRepository
}

func NewManager(log *zap.SugaredLogger, repo Repository, orders OrderRepository) *Manager {
	return &Manager{log: log, repo: repo, orders: orders}
}

// Reserve holds stock for every line item of an approved order. A line item
// whose conditional update fails is not rolled up into an error: the payment
// is already approved and cannot be un-approved, so the gap is flagged for
// manual resolution instead.
func (m *Manager) Reserve(ctx context.Context, orderID string) error {
	order, err := m.orders.FindWithItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return fmt.Errorf("order %s not found", orderID)
	}

	log := logctx.FromCtx(ctx, m.log)
	for _, item := range order.Items {
		ok, err := m.repo.ReserveStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("reserve %s x%d: %w", item.ProductID, item.Quantity, err)
		}
		if !ok {
			log.Errorw("reconciliation_required",
				"order_id", orderID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
				"reason", "insufficient stock for approved payment",
			)
			continue
		}
		mv := &models.InventoryMovement{
			ID:        tool.GenerateUUIDV7(),
			ProductID: item.ProductID,
			Delta:     -item.Quantity,
			Reason:    models.InventoryMovementReasonReserve,
			OrderID:   orderID,
		}
		if err := m.repo.AppendMovement(ctx, mv); err != nil {
			log.Errorw("inventory_movement_append_error", "order_id", orderID, "product_id", item.ProductID, "err", err)
		}
	}
	return nil
}

// Release returns an order's outstanding reservation to available stock.
// Outstanding is computed from the movement ledger, which makes repeated
// release calls no-ops: there is nothing left to give back.
func (m *Manager) Release(ctx context.Context, orderID string) error {
	outstanding, err := m.repo.OutstandingReserved(ctx, orderID)
	if err != nil {
		return fmt.Errorf("outstanding reservation for %s: %w", orderID, err)
	}

	log := logctx.FromCtx(ctx, m.log)
	for productID, qty := range outstanding {
		if qty <= 0 {
			continue
		}
		ok, err := m.repo.ReleaseStock(ctx, productID, qty)
		if err != nil {
			return fmt.Errorf("release %s x%d: %w", productID, qty, err)
		}
		if !ok {
			log.Errorw("reconciliation_required",
				"order_id", orderID,
				"product_id", productID,
				"quantity", qty,
				"reason", "reserved counter below ledger outstanding",
			)
			continue
		}
		mv := &models.InventoryMovement{
			ID:        tool.GenerateUUIDV7(),
			ProductID: productID,
			Delta:     qty,
			Reason:    models.InventoryMovementReasonRelease,
			OrderID:   orderID,
		}
		if err := m.repo.AppendMovement(ctx, mv); err != nil {
			log.Errorw("inventory_movement_append_error", "order_id", orderID, "product_id", productID, "err", err)
		}
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewManager),
)
