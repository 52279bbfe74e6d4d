package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/casamarket/checkout/pkg/config"
	"github.com/casamarket/checkout/pkg/types"

	"go.uber.org/zap"
)

// AddiAdapter handles installment financing. Every application resolves
// asynchronously: the customer is redirected to the financing flow and the
// outcome arrives by webhook.
type AddiAdapter struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *zap.SugaredLogger
}

func NewAddiAdapter(cfg *config.Config, log *zap.SugaredLogger) *AddiAdapter {
	return &AddiAdapter{
		cfg:    cfg.Addi,
		client: &http.Client{Timeout: cfg.Addi.RequestTimeout},
		log:    log,
	}
}

func (a *AddiAdapter) ID() types.PaymentGateway { return types.PaymentGatewayAddi }

type addiApplicationResponse struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
	RedirectURL   string `json:"redirectUrl"`
	RejectReason  string `json:"rejectReason"`
}

func (a *AddiAdapter) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error) {
	if req.Amount < a.cfg.MinAmount {
		return nil, &ValidationError{Msg: fmt.Sprintf("amount %d below financing minimum %d", req.Amount, a.cfg.MinAmount)}
	}
	if req.Category != types.PaymentMethodCategoryFinancing {
		return nil, &ValidationError{Msg: fmt.Sprintf("method category %s not supported by addi", req.Category)}
	}
	if req.FinancingPlanID == "" {
		return nil, &ValidationError{Msg: "financing plan required"}
	}

	body := map[string]any{
		"orderId":     req.OrderID,
		"totalAmount": req.Amount,
		"currency":    req.Currency,
		"planId":      req.FinancingPlanID,
		"client": map[string]string{
			"email":          req.Customer.Email,
			"fullName":       req.Customer.Name,
			"cellphone":      req.Customer.Phone,
			"identification": req.Customer.Document,
		},
		"redirectionUrl": req.ReturnURL,
		"cancelUrl":      req.CancelURL,
	}

	var out addiApplicationResponse
	raw, err := doJSON(ctx, a.client, "addi.create", http.MethodPost,
		a.cfg.BaseURL+"/v1/online-applications", a.authHeaders(), body, &out)
	if err != nil {
		return nil, a.mapAPIError(err)
	}
	if out.Status == "REJECTED" {
		// Eligibility rejections come back synchronously.
		return nil, &DeclinedError{Code: "NOT_ELIGIBLE", Msg: out.RejectReason}
	}

	return &PaymentResult{
		TransactionID: out.ApplicationID,
		Status:        types.PaymentStatusPending,
		RedirectURL:   out.RedirectURL,
		Raw:           json.RawMessage(raw),
	}, nil
}

func (a *AddiAdapter) VerifyPayment(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
	var out addiApplicationResponse
	if _, err := doJSON(ctx, a.client, "addi.verify", http.MethodGet,
		a.cfg.BaseURL+"/v1/online-applications/"+gatewayTxID, a.authHeaders(), nil, &out); err != nil {
		return "", a.mapAPIError(err)
	}
	return mapAddiStatus(out.Status), nil
}

func (a *AddiAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, reason string) (*RefundResult, error) {
	body := map[string]any{
		"applicationId": gatewayTxID,
		"amount":        amount,
		"reason":        reason,
	}
	var out struct {
		RefundID string `json:"refundId"`
		Status   string `json:"status"`
	}
	raw, err := doJSON(ctx, a.client, "addi.refund", http.MethodPost,
		a.cfg.BaseURL+"/v1/refunds", a.authHeaders(), body, &out)
	if err != nil {
		return nil, a.mapAPIError(err)
	}
	return &RefundResult{
		RefundID: out.RefundID,
		Approved: out.Status == "APPROVED",
		Raw:      json.RawMessage(raw),
	}, nil
}

type addiEvent struct {
	EventID       string `json:"eventId"`
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
}

func (a *AddiAdapter) ParseWebhook(payload []byte, signature string) (*WebhookPayload, error) {
	if !verifySignature(a.cfg.WebhookSecret, payload, signature) {
		return nil, ErrBadSignature
	}
	var ev addiEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode addi event: %w", err)
	}
	eventID := ev.EventID
	if eventID == "" {
		eventID = fingerprint(payload)
	}
	return &WebhookPayload{
		GatewayTransactionID: ev.ApplicationID,
		Status:               mapAddiStatus(ev.Status),
		EventID:              eventID,
	}, nil
}

func (a *AddiAdapter) HealthCheck(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	_, err := doJSON(ctx, a.client, "addi.health", http.MethodGet,
		a.cfg.BaseURL+"/v1/health", a.authHeaders(), nil, nil)
	st := &HealthStatus{Healthy: err == nil, ResponseTime: time.Since(start)}
	if err != nil {
		st.Err = err.Error()
	}
	return st
}

func (a *AddiAdapter) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.PrivateKey}
}

func (a *AddiAdapter) mapAPIError(err error) error {
	ae, ok := err.(*apiError)
	if !ok {
		return err
	}
	var out struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal(ae.Body, &out); jsonErr == nil && out.Code != "" {
		if out.Code == "VALIDATION_ERROR" {
			return &ValidationError{Msg: out.Message}
		}
		return &DeclinedError{Code: out.Code, Msg: out.Message}
	}
	return &DeclinedError{Code: fmt.Sprintf("HTTP_%d", ae.StatusCode), Msg: "request rejected"}
}

func mapAddiStatus(s string) types.PaymentStatus {
	switch s {
	case "APPROVED":
		return types.PaymentStatusApproved
	case "REJECTED", "ABANDONED":
		return types.PaymentStatusDeclined
	case "PENDING", "IN_PROGRESS":
		return types.PaymentStatusPending
	default:
		return types.PaymentStatusError
	}
}
