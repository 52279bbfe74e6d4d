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

// PayUAdapter is the secondary card processor. Card only, synchronous
// authorization; its webhook confirms captures and chargebacks.
type PayUAdapter struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *zap.SugaredLogger
}

func NewPayUAdapter(cfg *config.Config, log *zap.SugaredLogger) *PayUAdapter {
	return &PayUAdapter{
		cfg:    cfg.PayU,
		client: &http.Client{Timeout: cfg.PayU.RequestTimeout},
		log:    log,
	}
}

func (a *PayUAdapter) ID() types.PaymentGateway { return types.PaymentGatewayPayU }

type payuTransactionResponse struct {
	Code                string `json:"code"`
	Error               string `json:"error"`
	TransactionResponse struct {
		OrderID         int64  `json:"orderId"`
		TransactionID   string `json:"transactionId"`
		State           string `json:"state"`
		ResponseCode    string `json:"responseCode"`
		ResponseMessage string `json:"responseMessage"`
	} `json:"transactionResponse"`
}

func (a *PayUAdapter) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error) {
	if req.Amount < a.cfg.MinAmount {
		return nil, &ValidationError{Msg: fmt.Sprintf("amount %d below gateway minimum %d", req.Amount, a.cfg.MinAmount)}
	}
	if req.Category != types.PaymentMethodCategoryCard {
		return nil, &ValidationError{Msg: fmt.Sprintf("method category %s not supported by payu", req.Category)}
	}
	if req.Card == nil {
		return nil, &ValidationError{Msg: "card payload required"}
	}

	body := map[string]any{
		"language": "es",
		"command":  "SUBMIT_TRANSACTION",
		"merchant": map[string]string{"apiKey": a.cfg.PrivateKey, "apiLogin": a.cfg.PublicKey},
		"transaction": map[string]any{
			"type":          "AUTHORIZATION_AND_CAPTURE",
			"paymentMethod": "VISA",
			"order": map[string]any{
				"referenceCode": req.OrderID,
				"additionalValues": map[string]any{
					"TX_VALUE": map[string]any{"value": req.Amount, "currency": req.Currency},
				},
				"buyer": map[string]string{
					"emailAddress": req.Customer.Email,
					"fullName":     req.Customer.Name,
					"dniNumber":    req.Customer.Document,
				},
			},
			"creditCard": map[string]string{
				"number":         req.Card.Number,
				"securityCode":   req.Card.CVC,
				"expirationDate": req.Card.ExpYear + "/" + req.Card.ExpMonth,
				"name":           req.Card.HolderName,
			},
		},
	}

	var out payuTransactionResponse
	raw, err := doJSON(ctx, a.client, "payu.create", http.MethodPost,
		a.cfg.BaseURL+"/payments-api/4.0/service.cgi", nil, body, &out)
	if err != nil {
		return nil, a.mapAPIError(err)
	}
	if out.Code == "ERROR" {
		return nil, &ValidationError{Msg: out.Error}
	}

	tr := out.TransactionResponse
	return &PaymentResult{
		TransactionID: tr.TransactionID,
		Status:        mapPayUState(tr.State),
		Reason:        tr.ResponseMessage,
		Raw:           json.RawMessage(raw),
	}, nil
}

func (a *PayUAdapter) VerifyPayment(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
	body := map[string]any{
		"command":  "TRANSACTION_RESPONSE_DETAIL",
		"merchant": map[string]string{"apiKey": a.cfg.PrivateKey, "apiLogin": a.cfg.PublicKey},
		"details":  map[string]string{"transactionId": gatewayTxID},
	}
	var out struct {
		Result struct {
			Payload struct {
				State string `json:"state"`
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := doJSON(ctx, a.client, "payu.verify", http.MethodPost,
		a.cfg.BaseURL+"/reports-api/4.0/service.cgi", nil, body, &out); err != nil {
		return "", a.mapAPIError(err)
	}
	return mapPayUState(out.Result.Payload.State), nil
}

func (a *PayUAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, reason string) (*RefundResult, error) {
	body := map[string]any{
		"command":  "SUBMIT_TRANSACTION",
		"merchant": map[string]string{"apiKey": a.cfg.PrivateKey, "apiLogin": a.cfg.PublicKey},
		"transaction": map[string]any{
			"type":                "REFUND",
			"parentTransactionId": gatewayTxID,
			"reason":              reason,
			"additionalValues":    map[string]any{"TX_VALUE": map[string]any{"value": amount}},
		},
	}
	var out payuTransactionResponse
	raw, err := doJSON(ctx, a.client, "payu.refund", http.MethodPost,
		a.cfg.BaseURL+"/payments-api/4.0/service.cgi", nil, body, &out)
	if err != nil {
		return nil, a.mapAPIError(err)
	}
	return &RefundResult{
		RefundID: out.TransactionResponse.TransactionID,
		Approved: out.TransactionResponse.State == "APPROVED",
		Raw:      json.RawMessage(raw),
	}, nil
}

type payuEvent struct {
	ReferenceSale string `json:"reference_sale"`
	TransactionID string `json:"transaction_id"`
	StatePol      string `json:"state_pol"`
}

func (a *PayUAdapter) ParseWebhook(payload []byte, signature string) (*WebhookPayload, error) {
	if !verifySignature(a.cfg.WebhookSecret, payload, signature) {
		return nil, ErrBadSignature
	}
	var ev payuEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode payu event: %w", err)
	}
	var status types.PaymentStatus
	switch ev.StatePol {
	case "4":
		status = types.PaymentStatusApproved
	case "6":
		status = types.PaymentStatusDeclined
	case "7":
		status = types.PaymentStatusPending
	default:
		status = types.PaymentStatusError
	}
	// PayU confirmations carry no event id; dedup on the payload fingerprint.
	return &WebhookPayload{
		GatewayTransactionID: ev.TransactionID,
		Status:               status,
		EventID:              fingerprint(payload),
	}, nil
}

func (a *PayUAdapter) HealthCheck(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	body := map[string]any{
		"command":  "PING",
		"merchant": map[string]string{"apiKey": a.cfg.PrivateKey, "apiLogin": a.cfg.PublicKey},
	}
	_, err := doJSON(ctx, a.client, "payu.health", http.MethodPost,
		a.cfg.BaseURL+"/payments-api/4.0/service.cgi", nil, body, nil)
	st := &HealthStatus{Healthy: err == nil, ResponseTime: time.Since(start)}
	if err != nil {
		st.Err = err.Error()
	}
	return st
}

func (a *PayUAdapter) mapAPIError(err error) error {
	ae, ok := err.(*apiError)
	if !ok {
		return err
	}
	var out payuTransactionResponse
	if jsonErr := json.Unmarshal(ae.Body, &out); jsonErr == nil && out.Error != "" {
		return &ValidationError{Msg: out.Error}
	}
	return &DeclinedError{Code: fmt.Sprintf("HTTP_%d", ae.StatusCode), Msg: "request rejected"}
}

func mapPayUState(s string) types.PaymentStatus {
	switch s {
	case "APPROVED":
		return types.PaymentStatusApproved
	case "DECLINED", "EXPIRED":
		return types.PaymentStatusDeclined
	case "PENDING":
		return types.PaymentStatusPending
	default:
		return types.PaymentStatusError
	}
}
