package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/casamarket/checkout/internal/app/service/router"
	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/tool"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrNotRefundable means the transaction is not in a refundable state.
	ErrNotRefundable = errors.New("transaction is not refundable")
	// ErrExceedsBalance means approved refunds plus the requested amount
	// would exceed the transaction amount. Checked before any gateway call.
	ErrExceedsBalance = errors.New("refund exceeds remaining balance")
)

type TransactionRepository interface {
	FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, id string, from, to types.PaymentStatus) (bool, error)
}

type RefundRepository interface {
	SumApproved(ctx context.Context, transactionID string) (int64, error)
	// CreateWithinBalance atomically re-checks the approved sum and inserts
	// only while it stays within total; false means a concurrent refund
	// consumed the balance between the service-level check and the insert.
	CreateWithinBalance(ctx context.Context, refund *models.PaymentRefund, total int64) (bool, error)
}

type Request struct {
	TransactionID string
	// Amount of zero means refund the full remaining balance.
	Amount int64
	Reason string
	Actor  string
}

type Result struct {
	RefundID      string                     `json:"refund_id"`
	TransactionID string                     `json:"transaction_id"`
	Amount        int64                      `json:"amount"`
	Status        models.PaymentRefundStatus `json:"status"`
	// FullyRefunded is set when this refund exhausted the transaction.
	FullyRefunded bool `json:"fully_refunded"`
}

// Service validates and executes refunds against the owning gateway. A failed
// gateway call leaves no local state behind.
type Service struct {
	log     *zap.SugaredLogger
	txs     TransactionRepository
	refunds RefundRepository
	router  *router.Router
}

func NewService(log *zap.SugaredLogger, txs TransactionRepository, refunds RefundRepository, rt *router.Router) *Service {
	return &Service{log: log, txs: txs, refunds: refunds, router: rt}
}

func (s *Service) Refund(ctx context.Context, req *Request) (*Result, error) {
	tx, err := s.txs.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, router.ErrTransactionNotFound
	}
	if tx.Status != types.PaymentStatusApproved {
		return nil, fmt.Errorf("%w: status %s", ErrNotRefundable, tx.Status)
	}

	refunded, err := s.refunds.SumApproved(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("sum prior refunds: %w", err)
	}

	amount := req.Amount
	if amount <= 0 {
		amount = tx.Amount - refunded
	}
	if refunded+amount > tx.Amount {
		return nil, fmt.Errorf("%w: %d refunded, %d requested, %d total",
			ErrExceedsBalance, refunded, amount, tx.Amount)
	}

	gwRes, err := s.router.RefundViaGateway(ctx, tx, amount, req.Reason)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("refund_gateway_error", "transaction_id", tx.ID, "err", err)
		return nil, err
	}
	if !gwRes.Approved {
		return &Result{
			TransactionID: tx.ID,
			Amount:        amount,
			Status:        models.PaymentRefundStatusRejected,
		}, nil
	}

	row := &models.PaymentRefund{
		ID:            tool.GenerateUUIDV7(),
		TransactionID: tx.ID,
		Amount:        amount,
		Reason:        req.Reason,
		Status:        models.PaymentRefundStatusApproved,
		GatewayID:     tx.GatewayID,
		RequestedBy:   req.Actor,
	}
	if gwRes.RefundID != "" {
		row.GatewayRefundID = lo.ToPtr(gwRes.RefundID)
	}
	applied, err := s.refunds.CreateWithinBalance(ctx, row, tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("persist refund: %w", err)
	}
	if !applied {
		// The gateway already moved the money; flag for manual resolution.
		logctx.FromCtx(ctx, s.log).Errorw("reconciliation_required",
			"transaction_id", tx.ID,
			"gateway_refund_id", gwRes.RefundID,
			"amount", amount,
			"reason", "approved gateway refund lost the balance race",
		)
		return nil, ErrExceedsBalance
	}

	res := &Result{
		RefundID:      row.ID,
		TransactionID: tx.ID,
		Amount:        amount,
		Status:        models.PaymentRefundStatusApproved,
	}
	if refunded+amount == tx.Amount {
		applied, err := s.txs.UpdateStatus(ctx, tx.ID, types.PaymentStatusApproved, types.PaymentStatusRefunded)
		if err != nil {
			return nil, fmt.Errorf("mark refunded: %w", err)
		}
		res.FullyRefunded = applied
	}

	logctx.FromCtx(ctx, s.log).Infow("refund_processed",
		"transaction_id", tx.ID,
		"amount", amount,
		"actor", req.Actor,
		"fully_refunded", res.FullyRefunded,
	)
	return res, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
