package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casamarket/checkout/pkg/types"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPayUCreatePayment_ApprovedCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments-api/4.0/service.cgi", r.URL.Path)
		_, _ = w.Write([]byte(`{"code":"SUCCESS","transactionResponse":{"transactionId":"payu-tx-1","state":"APPROVED","responseMessage":"APPROVED"}}`))
	}))
	defer srv.Close()

	a := NewPayUAdapter(newTestConfig(srv.URL), zap.NewNop().Sugar())
	res, err := a.CreatePayment(context.Background(), cardRequest())
	require.NoError(t, err)
	require.Equal(t, "payu-tx-1", res.TransactionID)
	require.Equal(t, types.PaymentStatusApproved, res.Status)
}

func TestPayUCreatePayment_CardOnly(t *testing.T) {
	a := NewPayUAdapter(newTestConfig("http://unreachable.invalid"), zap.NewNop().Sugar())

	req := cardRequest()
	req.Category = types.PaymentMethodCategoryPSE
	req.Card = nil

	_, err := a.CreatePayment(context.Background(), req)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestPayUCreatePayment_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"ERROR","error":"invalid apiLogin"}`))
	}))
	defer srv.Close()

	a := NewPayUAdapter(newTestConfig(srv.URL), zap.NewNop().Sugar())
	_, err := a.CreatePayment(context.Background(), cardRequest())
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestPayUParseWebhook(t *testing.T) {
	cfg := newTestConfig("http://unreachable.invalid")
	a := NewPayUAdapter(cfg, zap.NewNop().Sugar())

	body := []byte(`{"reference_sale":"order-1","transaction_id":"payu-tx-1","state_pol":"4"}`)
	payload, err := a.ParseWebhook(body, checksum(cfg.PayU.WebhookSecret, body))
	require.NoError(t, err)
	require.Equal(t, "payu-tx-1", payload.GatewayTransactionID)
	require.Equal(t, types.PaymentStatusApproved, payload.Status)
	require.Equal(t, fingerprint(body), payload.EventID)

	_, err = a.ParseWebhook(body, "bad")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestMapPayUState(t *testing.T) {
	cases := map[string]types.PaymentStatus{
		"APPROVED": types.PaymentStatusApproved,
		"DECLINED": types.PaymentStatusDeclined,
		"EXPIRED":  types.PaymentStatusDeclined,
		"PENDING":  types.PaymentStatusPending,
		"UNKNOWN":  types.PaymentStatusError,
	}
	for in, want := range cases {
		require.Equal(t, want, mapPayUState(in), "input %q", in)
	}
}

func TestPayUWebhookStateMapping(t *testing.T) {
	cfg := newTestConfig("http://unreachable.invalid")
	a := NewPayUAdapter(cfg, zap.NewNop().Sugar())

	cases := map[string]types.PaymentStatus{
		"4": types.PaymentStatusApproved,
		"6": types.PaymentStatusDeclined,
		"7": types.PaymentStatusPending,
		"5": types.PaymentStatusError,
	}
	for statePol, want := range cases {
		body := []byte(`{"transaction_id":"payu-tx-1","state_pol":"` + statePol + `"}`)
		payload, err := a.ParseWebhook(body, checksum(cfg.PayU.WebhookSecret, body))
		require.NoError(t, err)
		require.Equal(t, want, payload.Status, "state_pol %s", statePol)
	}
}
