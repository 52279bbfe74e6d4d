package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/internal/app/service/inventory"
	"github.com/casamarket/checkout/internal/app/service/webhooklog"
	"github.com/casamarket/checkout/internal/models"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAdapter struct {
	id      types.PaymentGateway
	payload *gateway.WebhookPayload
	err     error
}

func (s *stubAdapter) ID() types.PaymentGateway { return s.id }

func (s *stubAdapter) CreatePayment(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAdapter) VerifyPayment(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
	return "", errors.New("not implemented")
}

func (s *stubAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, reason string) (*gateway.RefundResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAdapter) ParseWebhook(payload []byte, signature string) (*gateway.WebhookPayload, error) {
	return s.payload, s.err
}

func (s *stubAdapter) HealthCheck(ctx context.Context) *gateway.HealthStatus {
	return &gateway.HealthStatus{Healthy: true}
}

type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeLedger() *fakeLedger { return &fakeLedger{seen: map[string]bool{}} }

func (l *fakeLedger) InsertIfAbsent(ctx context.Context, gatewayID types.PaymentGateway, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := string(gatewayID) + "/" + eventID
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

type fakeTxRepo struct {
	mu   sync.Mutex
	byGw map[string]*models.PaymentTransaction
}

func newFakeTxRepo() *fakeTxRepo { return &fakeTxRepo{byGw: map[string]*models.PaymentTransaction{}} }

func (r *fakeTxRepo) put(tx *models.PaymentTransaction) {
	r.byGw[*tx.GatewayTransactionID] = tx
}

func (r *fakeTxRepo) FindByGatewayTransactionID(ctx context.Context, gatewayID types.PaymentGateway, gatewayTxID string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byGw[gatewayTxID]
	if !ok || tx.GatewayID != gatewayID {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *fakeTxRepo) UpdateStatus(ctx context.Context, id string, from, to types.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.byGw {
		if tx.ID == id && tx.Status == from {
			tx.Status = to
			return true, nil
		}
	}
	return false, nil
}

type fakeOrderStatusRepo struct {
	mu       sync.Mutex
	statuses map[string]types.PaymentStatus
}

func (r *fakeOrderStatusRepo) UpdatePaymentStatus(ctx context.Context, orderID string, status types.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses == nil {
		r.statuses = map[string]types.PaymentStatus{}
	}
	r.statuses[orderID] = status
	return nil
}

type fakeStockRepo struct {
	mu        sync.Mutex
	stock     map[string]*models.Inventory
	movements []*models.InventoryMovement
}

func newFakeStockRepo() *fakeStockRepo { return &fakeStockRepo{stock: map[string]*models.Inventory{}} }

func (r *fakeStockRepo) ReserveStock(ctx context.Context, productID string, qty int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.stock[productID]
	if !ok || inv.Quantity-inv.Reserved < qty {
		return false, nil
	}
	inv.Reserved += qty
	return true, nil
}

func (r *fakeStockRepo) ReleaseStock(ctx context.Context, productID string, qty int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.stock[productID]
	if !ok || inv.Reserved < qty {
		return false, nil
	}
	inv.Reserved -= qty
	return true, nil
}

func (r *fakeStockRepo) AppendMovement(ctx context.Context, mv *models.InventoryMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *mv
	r.movements = append(r.movements, &cp)
	return nil
}

func (r *fakeStockRepo) OutstandingReserved(ctx context.Context, orderID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, mv := range r.movements {
		if mv.OrderID == orderID {
			out[mv.ProductID] -= mv.Delta
		}
	}
	return out, nil
}

type fakeOrderItemsRepo struct {
	orders map[string]*models.Order
}

func (r *fakeOrderItemsRepo) FindWithItems(ctx context.Context, orderID string) (*models.Order, error) {
	return r.orders[orderID], nil
}

type fakeLogRepo struct {
	mu   sync.Mutex
	rows []*models.WebhookLog
}

func (r *fakeLogRepo) Save(ctx context.Context, row *models.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *fakeLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type reconcilerFixture struct {
	rec     *Reconciler
	adapter *stubAdapter
	ledger  *fakeLedger
	txs     *fakeTxRepo
	orders  *fakeOrderStatusRepo
	stock   *fakeStockRepo
	items   *fakeOrderItemsRepo
	logs    *fakeLogRepo
}

func newTestReconciler(t *testing.T) *reconcilerFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	f := &reconcilerFixture{
		adapter: &stubAdapter{id: types.PaymentGatewayWompi},
		ledger:  newFakeLedger(),
		txs:     newFakeTxRepo(),
		orders:  &fakeOrderStatusRepo{},
		stock:   newFakeStockRepo(),
		items:   &fakeOrderItemsRepo{orders: map[string]*models.Order{}},
		logs:    &fakeLogRepo{},
	}
	inv := inventory.NewManager(log, f.stock, f.items)
	audit := webhooklog.New(f.logs, log)
	f.rec = NewReconciler(log, &gateway.Adapters{Wompi: f.adapter}, f.ledger, f.txs, f.orders, inv, audit)
	return f
}

func (f *reconcilerFixture) seedPendingTx(orderID, gwTxID string) {
	f.txs.put(&models.PaymentTransaction{
		ID:                   "tx-" + gwTxID,
		OrderID:              orderID,
		GatewayID:            types.PaymentGatewayWompi,
		GatewayTransactionID: &gwTxID,
		Status:               types.PaymentStatusPending,
	})
}

func (f *reconcilerFixture) seedOrder(orderID, productID string, qty, stock int64) {
	f.items.orders[orderID] = &models.Order{
		ID:    orderID,
		Items: []*models.OrderItem{{OrderID: orderID, ProductID: productID, Quantity: qty}},
	}
	f.stock.stock[productID] = &models.Inventory{ProductID: productID, Quantity: stock}
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := newTestReconciler(t)
	f.adapter.err = gateway.ErrBadSignature

	err := f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "bad")
	require.ErrorIs(t, err, gateway.ErrBadSignature)
	require.Empty(t, f.ledger.seen)
}

func TestHandleWebhook_ParseErrorAcknowledged(t *testing.T) {
	f := newTestReconciler(t)
	f.adapter.err = errors.New("decode event: unexpected end of JSON input")

	err := f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{`), "sig")
	require.NoError(t, err)
	require.Empty(t, f.ledger.seen)
}

func TestHandleWebhook_ApprovedReservesStock(t *testing.T) {
	f := newTestReconciler(t)
	f.seedPendingTx("order-1", "gw-1")
	f.seedOrder("order-1", "p1", 2, 10)
	f.adapter.payload = &gateway.WebhookPayload{
		GatewayTransactionID: "gw-1",
		Status:               types.PaymentStatusApproved,
		EventID:              "evt-1",
	}

	err := f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig")
	require.NoError(t, err)

	tx, _ := f.txs.FindByGatewayTransactionID(context.Background(), types.PaymentGatewayWompi, "gw-1")
	require.Equal(t, types.PaymentStatusApproved, tx.Status)
	require.Equal(t, types.PaymentStatusApproved, f.orders.statuses["order-1"])
	require.Equal(t, int64(2), f.stock.stock["p1"].Reserved)
	require.Len(t, f.stock.movements, 1)
	require.Equal(t, models.InventoryMovementReasonReserve, f.stock.movements[0].Reason)

	require.Eventually(t, func() bool { return f.logs.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestHandleWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	f := newTestReconciler(t)
	f.seedPendingTx("order-1", "gw-1")
	f.seedOrder("order-1", "p1", 2, 10)
	f.adapter.payload = &gateway.WebhookPayload{
		GatewayTransactionID: "gw-1",
		Status:               types.PaymentStatusApproved,
		EventID:              "evt-1",
	}

	require.NoError(t, f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig"))
	require.NoError(t, f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig"))

	require.Equal(t, int64(2), f.stock.stock["p1"].Reserved)
	require.Len(t, f.stock.movements, 1)
}

func TestHandleWebhook_ConcurrentReplayReservesOnce(t *testing.T) {
	f := newTestReconciler(t)
	f.seedPendingTx("order-1", "gw-1")
	f.seedOrder("order-1", "p1", 2, 10)
	f.adapter.payload = &gateway.WebhookPayload{
		GatewayTransactionID: "gw-1",
		Status:               types.PaymentStatusApproved,
		EventID:              "evt-1",
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tx, _ := f.txs.FindByGatewayTransactionID(context.Background(), types.PaymentGatewayWompi, "gw-1")
	require.Equal(t, types.PaymentStatusApproved, tx.Status)
	require.Equal(t, int64(2), f.stock.stock["p1"].Reserved)
	require.Len(t, f.stock.movements, 1)
}

func TestHandleWebhook_ConcurrentDistinctEventsTransitionOnce(t *testing.T) {
	f := newTestReconciler(t)
	f.seedPendingTx("order-1", "gw-1")
	f.seedOrder("order-1", "p1", 2, 10)

	// Some providers re-deliver the same outcome under a fresh event id, so
	// the dedup ledger does not catch these; the conditional status update
	// must. Whichever delivery loses the transition carries no work.
	eventIDs := []string{"evt-a", "evt-b"}
	var wg sync.WaitGroup
	errs := make(chan error, len(eventIDs))
	for _, eventID := range eventIDs {
		wg.Add(1)
		go func(eventID string) {
			defer wg.Done()
			adapter := &stubAdapter{id: types.PaymentGatewayWompi, payload: &gateway.WebhookPayload{
				GatewayTransactionID: "gw-1",
				Status:               types.PaymentStatusApproved,
				EventID:              eventID,
			}}
			rec := NewReconciler(zap.NewNop().Sugar(), &gateway.Adapters{Wompi: adapter},
				f.ledger, f.txs, f.orders, inventory.NewManager(zap.NewNop().Sugar(), f.stock, f.items),
				webhooklog.New(f.logs, zap.NewNop().Sugar()))
			errs <- rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig")
		}(eventID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tx, _ := f.txs.FindByGatewayTransactionID(context.Background(), types.PaymentGatewayWompi, "gw-1")
	require.Equal(t, types.PaymentStatusApproved, tx.Status)
	require.Equal(t, int64(2), f.stock.stock["p1"].Reserved)
	require.Len(t, f.stock.movements, 1)
}

func TestHandleWebhook_IllegalTransitionIgnored(t *testing.T) {
	f := newTestReconciler(t)
	gwTxID := "gw-2"
	f.txs.put(&models.PaymentTransaction{
		ID:                   "tx-gw-2",
		OrderID:              "order-2",
		GatewayID:            types.PaymentGatewayWompi,
		GatewayTransactionID: &gwTxID,
		Status:               types.PaymentStatusDeclined,
	})
	f.adapter.payload = &gateway.WebhookPayload{
		GatewayTransactionID: "gw-2",
		Status:               types.PaymentStatusApproved,
		EventID:              "evt-2",
	}

	require.NoError(t, f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig"))

	tx, _ := f.txs.FindByGatewayTransactionID(context.Background(), types.PaymentGatewayWompi, "gw-2")
	require.Equal(t, types.PaymentStatusDeclined, tx.Status)
	require.Empty(t, f.orders.statuses)
}

func TestHandleWebhook_UnknownTransactionAcknowledged(t *testing.T) {
	f := newTestReconciler(t)
	f.adapter.payload = &gateway.WebhookPayload{
		GatewayTransactionID: "gw-unknown",
		Status:               types.PaymentStatusApproved,
		EventID:              "evt-3",
	}

	require.NoError(t, f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig"))
	require.Empty(t, f.orders.statuses)
}

func TestHandleWebhook_DeclinedReleasesReservation(t *testing.T) {
	f := newTestReconciler(t)
	f.seedPendingTx("order-3", "gw-3")
	f.seedOrder("order-3", "p1", 2, 10)
	// An earlier approval reserved this order's items.
	f.stock.stock["p1"].Reserved = 2
	f.stock.movements = append(f.stock.movements, &models.InventoryMovement{
		ProductID: "p1", Delta: -2, Reason: models.InventoryMovementReasonReserve, OrderID: "order-3",
	})
	f.adapter.payload = &gateway.WebhookPayload{
		GatewayTransactionID: "gw-3",
		Status:               types.PaymentStatusDeclined,
		EventID:              "evt-4",
	}

	require.NoError(t, f.rec.HandleWebhook(context.Background(), types.PaymentGatewayWompi, []byte(`{}`), "sig"))

	require.Equal(t, int64(0), f.stock.stock["p1"].Reserved)
	require.Equal(t, types.PaymentStatusDeclined, f.orders.statuses["order-3"])
}
