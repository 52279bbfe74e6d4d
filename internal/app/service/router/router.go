package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/methods"
	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/tool"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrDuplicateAttempt means the order already has a PENDING or APPROVED
// transaction. At most one active payment attempt per order at a time.
var ErrDuplicateAttempt = errors.New("order already has an active payment attempt")

// ErrTransactionNotFound is returned by verify/refund pass-throughs.
var ErrTransactionNotFound = errors.New("transaction not found")

const (
	maxAttempts = 3
	backoffBase = 200 * time.Millisecond
)

// TransactionRepository is the router's narrow persistence contract.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	FindActiveByOrder(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	// UpdateStatus applies a conditional transition keyed on the expected
	// prior status; false means another writer got there first.
	UpdateStatus(ctx context.Context, id string, from, to types.PaymentStatus) (bool, error)
}

type FailedAttemptRepository interface {
	Append(ctx context.Context, attempt *models.PaymentFailedAttempt) error
}

type ProcessRequest struct {
	OrderID  string           `json:"order_id"`
	Amount   int64            `json:"amount"`
	Currency string           `json:"currency"`
	MethodID string           `json:"method_id"`
	Customer gateway.Customer `json:"customer"`

	Card            *gateway.CardData `json:"card,omitempty"`
	PSEBankCode     string            `json:"pse_bank_code,omitempty"`
	FinancingPlanID string            `json:"financing_plan_id,omitempty"`

	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type ProcessResponse struct {
	Success       bool                `json:"success"`
	TransactionID string              `json:"transaction_id"`
	Status        types.PaymentStatus `json:"status"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}

// Router routes payments to the adapter backing the requested method,
// bounded-retries transient failures and owns the per-gateway health and
// payment metrics. A transaction is permanently bound to the gateway that
// created it, so verify/refund resolve the adapter from the transaction row.
type Router struct {
	log      *zap.SugaredLogger
	registry *methods.Registry
	adapters *gateway.Adapters
	txs      TransactionRepository
	attempts FailedAttemptRepository
	metrics  *Metrics

	// sleep is swapped in tests to keep the retry loop instant.
	sleep func(time.Duration)

	healthMu    sync.Mutex
	healthSnaps []*HealthSnapshot
	healthAt    time.Time
}

func NewRouter(log *zap.SugaredLogger, registry *methods.Registry, adapters *gateway.Adapters, txs TransactionRepository, attempts FailedAttemptRepository, metrics *Metrics) *Router {
	return &Router{
		log:      log,
		registry: registry,
		adapters: adapters,
		txs:      txs,
		attempts: attempts,
		metrics:  metrics,
		sleep:    time.Sleep,
	}
}

func (r *Router) ProcessPayment(ctx context.Context, req *ProcessRequest) (*ProcessResponse, error) {
	method, err := r.registry.Resolve(req.MethodID)
	if err != nil {
		return nil, err
	}
	if method.Redirects() && req.ReturnURL == "" {
		return nil, &gateway.ValidationError{Msg: "return_url is required for redirect payment methods"}
	}

	if active, err := r.txs.FindActiveByOrder(ctx, req.OrderID); err != nil {
		return nil, fmt.Errorf("duplicate-attempt guard: %w", err)
	} else if active != nil {
		return nil, ErrDuplicateAttempt
	}

	adapter, ok := r.adapters.ByID(method.GatewayID)
	if !ok {
		return nil, fmt.Errorf("no adapter configured for gateway %s", method.GatewayID)
	}

	gwReq := &gateway.PaymentRequest{
		OrderID:         req.OrderID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Customer:        req.Customer,
		Category:        method.Category,
		Card:            req.Card,
		PSEBankCode:     req.PSEBankCode,
		FinancingPlanID: req.FinancingPlanID,
		ReturnURL:       req.ReturnURL,
		CancelURL:       req.CancelURL,
	}

	result, callErr := r.executeWithRetry(ctx, adapter, gwReq)

	tx := &models.PaymentTransaction{
		ID:        tool.GenerateUUIDV7(),
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		MethodID:  method.ID,
		GatewayID: method.GatewayID,
	}

	resp := &ProcessResponse{}
	switch {
	case callErr == nil:
		tx.Status = result.Status
		if result.TransactionID != "" {
			tx.GatewayTransactionID = lo.ToPtr(result.TransactionID)
		}
		if len(result.Raw) > 0 {
			tx.RawResponse = datatypes.JSON(result.Raw)
		}
		resp.Status = result.Status
		resp.RedirectURL = result.RedirectURL
		resp.Reason = result.Reason
		resp.Success = result.Status == types.PaymentStatusApproved || result.Status == types.PaymentStatusPending
	default:
		var declined *gateway.DeclinedError
		var invalid *gateway.ValidationError
		switch {
		case errors.As(callErr, &declined):
			tx.Status = types.PaymentStatusDeclined
			resp.Status = types.PaymentStatusDeclined
			resp.Reason = declined.Msg
		case errors.As(callErr, &invalid):
			// Nothing reached the network; surface without persisting.
			return nil, callErr
		default:
			tx.Status = types.PaymentStatusError
			resp.Status = types.PaymentStatusError
			resp.Reason = callErr.Error()
		}
	}

	if err := r.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	resp.TransactionID = tx.ID
	r.metrics.ObserveAttempt(method.GatewayID, tx.Status)

	if tx.Status == types.PaymentStatusDeclined || tx.Status == types.PaymentStatusError {
		attempt := &models.PaymentFailedAttempt{
			ID:      tool.GenerateUUIDV7(),
			OrderID: req.OrderID,
			Reason:  resp.Reason,
		}
		if err := r.attempts.Append(ctx, attempt); err != nil {
			logctx.FromCtx(ctx, r.log).Errorw("failed_attempt_append_error", "order_id", req.OrderID, "err", err)
		}
	}

	logctx.FromCtx(ctx, r.log).Infow("payment_processed",
		"order_id", req.OrderID,
		"gateway", method.GatewayID,
		"status", tx.Status,
		"transaction_id", tx.ID,
	)
	return resp, nil
}

// executeWithRetry performs up to maxAttempts create calls, backing off
// exponentially with jitter between attempts. Only network-classified errors
// are retried; declines and validation failures short-circuit.
func (r *Router) executeWithRetry(ctx context.Context, adapter gateway.Adapter, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := adapter.CreatePayment(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !gateway.IsRetryable(err) {
			return nil, err
		}
		if attempt < maxAttempts {
			delay := jitter(backoffBase << (attempt - 1))
			logctx.FromCtx(ctx, r.log).Warnw("gateway_call_retry",
				"gateway", adapter.ID(),
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"err", err,
			)
			r.metrics.ObserveRetry(adapter.ID())
			r.sleep(delay)
		}
	}
	return nil, lastErr
}

// jitter spreads a backoff delay over ±50% of its base value.
func jitter(d time.Duration) time.Duration {
	half := int64(d) / 2
	return time.Duration(half + rand.Int63n(int64(d)))
}

// VerifyPayment re-queries the owning gateway for the current status. While
// the transaction is still PENDING the synchronous answer is applied with a
// conditional update, so a concurrently delivered webhook cannot be
// overwritten.
func (r *Router) VerifyPayment(ctx context.Context, transactionID string) (types.PaymentStatus, error) {
	tx, err := r.txs.FindByID(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if tx == nil {
		return "", ErrTransactionNotFound
	}
	adapter, ok := r.adapters.ByID(tx.GatewayID)
	if !ok {
		return "", fmt.Errorf("no adapter configured for gateway %s", tx.GatewayID)
	}
	if tx.GatewayTransactionID == nil {
		return tx.Status, nil
	}

	status, err := adapter.VerifyPayment(ctx, *tx.GatewayTransactionID)
	if err != nil {
		return "", err
	}
	if tx.Status == types.PaymentStatusPending && status != types.PaymentStatusPending {
		applied, err := r.txs.UpdateStatus(ctx, tx.ID, types.PaymentStatusPending, status)
		if err != nil {
			return "", fmt.Errorf("apply verified status: %w", err)
		}
		if applied {
			return status, nil
		}
		// Lost the race against the reconciler; report what is stored now.
		if cur, err := r.txs.FindByID(ctx, tx.ID); err == nil && cur != nil {
			return cur.Status, nil
		}
	}
	if tx.Status != types.PaymentStatusPending {
		return tx.Status, nil
	}
	return status, nil
}

// RefundViaGateway is the pass-through used by the refund workflow; the
// adapter is resolved from the transaction's recorded gateway id.
func (r *Router) RefundViaGateway(ctx context.Context, tx *models.PaymentTransaction, amount int64, reason string) (*gateway.RefundResult, error) {
	adapter, ok := r.adapters.ByID(tx.GatewayID)
	if !ok {
		return nil, fmt.Errorf("no adapter configured for gateway %s", tx.GatewayID)
	}
	if tx.GatewayTransactionID == nil {
		return nil, fmt.Errorf("transaction %s has no gateway transaction id", tx.ID)
	}
	return adapter.Refund(ctx, *tx.GatewayTransactionID, amount, reason)
}
