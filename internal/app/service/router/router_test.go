package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/methods"
	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/config"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	id          types.PaymentGateway
	createCalls int

	createFn func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error)
	verifyFn func(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error)
	refundFn func(ctx context.Context, gatewayTxID string, amount int64, reason string) (*gateway.RefundResult, error)
	healthFn func(ctx context.Context) *gateway.HealthStatus
}

func (f *fakeAdapter) ID() types.PaymentGateway { return f.id }

func (f *fakeAdapter) CreatePayment(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	f.createCalls++
	return f.createFn(ctx, req)
}

func (f *fakeAdapter) VerifyPayment(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
	return f.verifyFn(ctx, gatewayTxID)
}

func (f *fakeAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, reason string) (*gateway.RefundResult, error) {
	return f.refundFn(ctx, gatewayTxID, amount, reason)
}

func (f *fakeAdapter) ParseWebhook(payload []byte, signature string) (*gateway.WebhookPayload, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) *gateway.HealthStatus {
	if f.healthFn != nil {
		return f.healthFn(ctx)
	}
	return &gateway.HealthStatus{Healthy: true}
}

type fakeTxRepo struct {
	mu   sync.Mutex
	byID map[string]*models.PaymentTransaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byID: map[string]*models.PaymentTransaction{}}
}

func (r *fakeTxRepo) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.byID[tx.ID] = &cp
	return nil
}

func (r *fakeTxRepo) FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *fakeTxRepo) FindActiveByOrder(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.byID {
		if tx.OrderID == orderID && tx.Active() {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTxRepo) UpdateStatus(ctx context.Context, id string, from, to types.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	return true, nil
}

type fakeAttempts struct {
	mu   sync.Mutex
	rows []*models.PaymentFailedAttempt
}

func (f *fakeAttempts) Append(ctx context.Context, attempt *models.PaymentFailedAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, attempt)
	return nil
}

func testMethodsConfig() *config.Config {
	return &config.Config{PaymentMethods: []*types.PaymentMethod{
		{ID: "card_wompi", Name: "Card", Category: types.PaymentMethodCategoryCard, GatewayID: types.PaymentGatewayWompi, Enabled: true},
		{ID: "pse_wompi", Name: "PSE", Category: types.PaymentMethodCategoryPSE, GatewayID: types.PaymentGatewayWompi, Enabled: true},
		{ID: "financing_addi", Name: "Addi", Category: types.PaymentMethodCategoryFinancing, GatewayID: types.PaymentGatewayAddi, Enabled: true},
		{ID: "card_legacy", Name: "Legacy", Category: types.PaymentMethodCategoryCard, GatewayID: types.PaymentGatewayPayU, Enabled: false},
	}}
}

type routerFixture struct {
	router   *Router
	wompi    *fakeAdapter
	addi     *fakeAdapter
	txs      *fakeTxRepo
	attempts *fakeAttempts
	metrics  *Metrics
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	f := &routerFixture{
		wompi:    &fakeAdapter{id: types.PaymentGatewayWompi},
		addi:     &fakeAdapter{id: types.PaymentGatewayAddi},
		txs:      newFakeTxRepo(),
		attempts: &fakeAttempts{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	registry := methods.NewRegistry(testMethodsConfig(), log)
	adapters := &gateway.Adapters{Wompi: f.wompi, Addi: f.addi}
	f.router = NewRouter(log, registry, adapters, f.txs, f.attempts, f.metrics)
	f.router.sleep = func(time.Duration) {}
	return f
}

func testProcessRequest() *ProcessRequest {
	return &ProcessRequest{
		OrderID:  "order-1",
		Amount:   250000,
		Currency: "COP",
		MethodID: "card_wompi",
		Customer: gateway.Customer{Email: "buyer@example.com"},
		Card:     &gateway.CardData{Number: "4242424242424242"},
	}
}

func TestProcessPayment_ApprovedCard(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		return &gateway.PaymentResult{TransactionID: "gw-1", Status: types.PaymentStatusApproved}, nil
	}

	resp, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, types.PaymentStatusApproved, resp.Status)
	require.NotEmpty(t, resp.TransactionID)

	tx, err := f.txs.FindByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, types.PaymentStatusApproved, tx.Status)
	require.Equal(t, types.PaymentGatewayWompi, tx.GatewayID)
	require.NotNil(t, tx.GatewayTransactionID)
	require.Equal(t, "gw-1", *tx.GatewayTransactionID)

	require.Empty(t, f.attempts.rows)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.attempts.WithLabelValues("wompi", "APPROVED")))
}

func TestProcessPayment_DeclineShortCircuits(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		return nil, &gateway.DeclinedError{Code: "INSUFFICIENT_FUNDS", Msg: "insufficient funds"}
	}

	resp, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, types.PaymentStatusDeclined, resp.Status)
	require.Equal(t, "insufficient funds", resp.Reason)
	require.Equal(t, 1, f.wompi.createCalls)

	tx, _ := f.txs.FindByID(context.Background(), resp.TransactionID)
	require.NotNil(t, tx)
	require.Equal(t, types.PaymentStatusDeclined, tx.Status)

	require.Len(t, f.attempts.rows, 1)
	require.Equal(t, "order-1", f.attempts.rows[0].OrderID)
}

func TestProcessPayment_RetriesTransientFailures(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		if f.wompi.createCalls < 3 {
			return nil, &gateway.NetworkError{Op: "wompi.create", Err: errors.New("connection reset")}
		}
		return &gateway.PaymentResult{TransactionID: "gw-2", Status: types.PaymentStatusApproved}, nil
	}

	resp, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 3, f.wompi.createCalls)
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.retries.WithLabelValues("wompi")))
}

func TestProcessPayment_AttemptBoundExhausted(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		return nil, &gateway.NetworkError{Op: "wompi.create", Err: errors.New("timeout")}
	}

	resp, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, types.PaymentStatusError, resp.Status)
	require.Equal(t, 3, f.wompi.createCalls)

	tx, _ := f.txs.FindByID(context.Background(), resp.TransactionID)
	require.NotNil(t, tx)
	require.Equal(t, types.PaymentStatusError, tx.Status)
	require.Nil(t, tx.GatewayTransactionID)
	require.Len(t, f.attempts.rows, 1)
}

func TestProcessPayment_ValidationFailureNotPersisted(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		return nil, &gateway.ValidationError{Msg: "amount below gateway minimum"}
	}

	_, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	var invalid *gateway.ValidationError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 1, f.wompi.createCalls)
	require.Empty(t, f.txs.byID)
	require.Empty(t, f.attempts.rows)
}

func TestProcessPayment_DuplicateAttemptGuard(t *testing.T) {
	f := newTestRouter(t)
	require.NoError(t, f.txs.Create(context.Background(), &models.PaymentTransaction{
		ID:      "existing",
		OrderID: "order-1",
		Status:  types.PaymentStatusPending,
	}))

	_, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	require.ErrorIs(t, err, ErrDuplicateAttempt)
	require.Equal(t, 0, f.wompi.createCalls)
}

func TestProcessPayment_TerminalOrderAllowsNewAttempt(t *testing.T) {
	f := newTestRouter(t)
	require.NoError(t, f.txs.Create(context.Background(), &models.PaymentTransaction{
		ID:      "declined-before",
		OrderID: "order-1",
		Status:  types.PaymentStatusDeclined,
	}))
	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		return &gateway.PaymentResult{TransactionID: "gw-3", Status: types.PaymentStatusApproved}, nil
	}

	resp, err := f.router.ProcessPayment(context.Background(), testProcessRequest())
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestProcessPayment_UnknownOrDisabledMethod(t *testing.T) {
	f := newTestRouter(t)

	req := testProcessRequest()
	req.MethodID = "no_such_method"
	_, err := f.router.ProcessPayment(context.Background(), req)
	require.ErrorIs(t, err, methods.ErrMethodUnavailable)

	req.MethodID = "card_legacy"
	_, err = f.router.ProcessPayment(context.Background(), req)
	require.ErrorIs(t, err, methods.ErrMethodUnavailable)
	require.Equal(t, 0, f.wompi.createCalls)
}

func TestProcessPayment_RedirectMethodRequiresReturnURL(t *testing.T) {
	f := newTestRouter(t)

	req := testProcessRequest()
	req.MethodID = "pse_wompi"
	req.PSEBankCode = "1007"
	req.Card = nil
	_, err := f.router.ProcessPayment(context.Background(), req)
	var invalid *gateway.ValidationError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 0, f.wompi.createCalls)

	f.wompi.createFn = func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
		return &gateway.PaymentResult{TransactionID: "gw-pse", Status: types.PaymentStatusPending, RedirectURL: "https://pse.example/pay"}, nil
	}
	req.ReturnURL = "https://shop.example/return"
	resp, err := f.router.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "https://pse.example/pay", resp.RedirectURL)
}

func TestVerifyPayment_ResolvesPendingTransaction(t *testing.T) {
	f := newTestRouter(t)
	gwID := "gw-pending"
	require.NoError(t, f.txs.Create(context.Background(), &models.PaymentTransaction{
		ID:                   "tx-1",
		OrderID:              "order-1",
		GatewayID:            types.PaymentGatewayWompi,
		GatewayTransactionID: &gwID,
		Status:               types.PaymentStatusPending,
	}))
	f.wompi.verifyFn = func(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
		require.Equal(t, gwID, gatewayTxID)
		return types.PaymentStatusApproved, nil
	}

	status, err := f.router.VerifyPayment(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusApproved, status)

	tx, _ := f.txs.FindByID(context.Background(), "tx-1")
	require.Equal(t, types.PaymentStatusApproved, tx.Status)
}

func TestVerifyPayment_TerminalStatusIsStable(t *testing.T) {
	f := newTestRouter(t)
	gwID := "gw-done"
	require.NoError(t, f.txs.Create(context.Background(), &models.PaymentTransaction{
		ID:                   "tx-2",
		OrderID:              "order-2",
		GatewayID:            types.PaymentGatewayWompi,
		GatewayTransactionID: &gwID,
		Status:               types.PaymentStatusDeclined,
	}))
	f.wompi.verifyFn = func(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
		return types.PaymentStatusApproved, nil
	}

	status, err := f.router.VerifyPayment(context.Background(), "tx-2")
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusDeclined, status)
}

func TestVerifyPayment_NotFound(t *testing.T) {
	f := newTestRouter(t)
	_, err := f.router.VerifyPayment(context.Background(), "missing")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestJitterBounds(t *testing.T) {
	base := 200 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := jitter(base)
		require.GreaterOrEqual(t, d, base/2)
		require.Less(t, d, base+base/2)
	}
}
