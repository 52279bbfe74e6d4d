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

// WompiAdapter is the primary processor: cards resolve synchronously, PSE and
// cash resolve asynchronously through a redirect plus webhook confirmation.
type WompiAdapter struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *zap.SugaredLogger
}

func NewWompiAdapter(cfg *config.Config, log *zap.SugaredLogger) *WompiAdapter {
	return &WompiAdapter{
		cfg:    cfg.Wompi,
		client: &http.Client{Timeout: cfg.Wompi.RequestTimeout},
		log:    log,
	}
}

func (a *WompiAdapter) ID() types.PaymentGateway { return types.PaymentGatewayWompi }

type wompiPaymentMethod struct {
	Type                     string `json:"type"`
	Number                   string `json:"number,omitempty"`
	ExpMonth                 string `json:"exp_month,omitempty"`
	ExpYear                  string `json:"exp_year,omitempty"`
	CVC                      string `json:"cvc,omitempty"`
	CardHolder               string `json:"card_holder,omitempty"`
	FinancialInstitutionCode string `json:"financial_institution_code,omitempty"`
	UserType                 int    `json:"user_type,omitempty"`
	UserLegalIDType          string `json:"user_legal_id_type,omitempty"`
	UserLegalID              string `json:"user_legal_id,omitempty"`
	PaymentDescription       string `json:"payment_description,omitempty"`
}

type wompiCreateRequest struct {
	AmountInCents int64              `json:"amount_in_cents"`
	Currency      string             `json:"currency"`
	Reference     string             `json:"reference"`
	CustomerEmail string             `json:"customer_email"`
	PaymentMethod wompiPaymentMethod `json:"payment_method"`
	RedirectURL   string             `json:"redirect_url,omitempty"`
}

type wompiTransaction struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	RedirectURL   string `json:"redirect_url"`
	PaymentMethod struct {
		Extra struct {
			AsyncPaymentURL string `json:"async_payment_url"`
		} `json:"extra"`
	} `json:"payment_method"`
}

type wompiEnvelope struct {
	Data  wompiTransaction `json:"data"`
	Error *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (a *WompiAdapter) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error) {
	if req.Amount < a.cfg.MinAmount {
		return nil, &ValidationError{Msg: fmt.Sprintf("amount %d below gateway minimum %d", req.Amount, a.cfg.MinAmount)}
	}

	body := wompiCreateRequest{
		AmountInCents: req.Amount,
		Currency:      req.Currency,
		Reference:     req.OrderID,
		CustomerEmail: req.Customer.Email,
		RedirectURL:   req.ReturnURL,
	}
	switch req.Category {
	case types.PaymentMethodCategoryCard:
		if req.Card == nil {
			return nil, &ValidationError{Msg: "card payload required"}
		}
		body.PaymentMethod = wompiPaymentMethod{
			Type:       "CARD",
			Number:     req.Card.Number,
			ExpMonth:   req.Card.ExpMonth,
			ExpYear:    req.Card.ExpYear,
			CVC:        req.Card.CVC,
			CardHolder: req.Card.HolderName,
		}
	case types.PaymentMethodCategoryPSE:
		if req.PSEBankCode == "" {
			return nil, &ValidationError{Msg: "pse bank code required"}
		}
		body.PaymentMethod = wompiPaymentMethod{
			Type:                     "PSE",
			FinancialInstitutionCode: req.PSEBankCode,
			UserType:                 0,
			UserLegalIDType:          "CC",
			UserLegalID:              req.Customer.Document,
			PaymentDescription:       "order " + req.OrderID,
		}
	case types.PaymentMethodCategoryCash:
		body.PaymentMethod = wompiPaymentMethod{Type: "BANCOLOMBIA_COLLECT", PaymentDescription: "order " + req.OrderID}
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("method category %s not supported by wompi", req.Category)}
	}

	var env wompiEnvelope
	raw, err := doJSON(ctx, a.client, "wompi.create", http.MethodPost, a.cfg.BaseURL+"/v1/transactions",
		a.authHeaders(), body, &env)
	if err != nil {
		return nil, a.mapAPIError("create", err)
	}

	res := &PaymentResult{
		TransactionID: env.Data.ID,
		Status:        mapWompiStatus(env.Data.Status),
		Reason:        env.Data.StatusMessage,
		Raw:           json.RawMessage(raw),
	}
	if url := env.Data.PaymentMethod.Extra.AsyncPaymentURL; url != "" {
		res.RedirectURL = url
	} else if res.Status == types.PaymentStatusPending {
		res.RedirectURL = env.Data.RedirectURL
	}
	return res, nil
}

func (a *WompiAdapter) VerifyPayment(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error) {
	var env wompiEnvelope
	if _, err := doJSON(ctx, a.client, "wompi.verify", http.MethodGet,
		a.cfg.BaseURL+"/v1/transactions/"+gatewayTxID, a.authHeaders(), nil, &env); err != nil {
		return "", a.mapAPIError("verify", err)
	}
	return mapWompiStatus(env.Data.Status), nil
}

type wompiRefundResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (a *WompiAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, reason string) (*RefundResult, error) {
	body := map[string]any{
		"transaction_id":  gatewayTxID,
		"amount_in_cents": amount,
		"reason":          reason,
	}
	var out wompiRefundResponse
	raw, err := doJSON(ctx, a.client, "wompi.refund", http.MethodPost,
		a.cfg.BaseURL+"/v1/refunds", a.authHeaders(), body, &out)
	if err != nil {
		return nil, a.mapAPIError("refund", err)
	}
	return &RefundResult{
		RefundID: out.Data.ID,
		Approved: out.Data.Status == "APPROVED",
		Raw:      json.RawMessage(raw),
	}, nil
}

type wompiEvent struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
}

// ParseWebhook authenticates and normalizes a Wompi event. The signature
// header carries the hex HMAC-SHA256 of the raw body under the event secret.
func (a *WompiAdapter) ParseWebhook(payload []byte, signature string) (*WebhookPayload, error) {
	if !verifySignature(a.cfg.WebhookSecret, payload, signature) {
		return nil, ErrBadSignature
	}
	var ev wompiEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode wompi event: %w", err)
	}
	eventID := ev.ID
	if eventID == "" {
		eventID = fingerprint(payload)
	}
	return &WebhookPayload{
		GatewayTransactionID: ev.Data.Transaction.ID,
		Status:               mapWompiStatus(ev.Data.Transaction.Status),
		EventID:              eventID,
	}, nil
}

func (a *WompiAdapter) HealthCheck(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	_, err := doJSON(ctx, a.client, "wompi.health", http.MethodGet,
		a.cfg.BaseURL+"/v1/merchants/"+a.cfg.PublicKey, nil, nil, nil)
	st := &HealthStatus{Healthy: err == nil, ResponseTime: time.Since(start)}
	if err != nil {
		st.Err = err.Error()
	}
	return st
}

func (a *WompiAdapter) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.PrivateKey}
}

// mapAPIError turns a provider 4xx into the canonical taxonomy. Network
// errors pass through untouched so the router can retry them.
func (a *WompiAdapter) mapAPIError(op string, err error) error {
	ae, ok := err.(*apiError)
	if !ok {
		return err
	}
	var env wompiEnvelope
	if jsonErr := json.Unmarshal(ae.Body, &env); jsonErr == nil && env.Error != nil {
		if env.Error.Type == "INPUT_VALIDATION_ERROR" {
			return &ValidationError{Msg: env.Error.Reason}
		}
		return &DeclinedError{Code: env.Error.Type, Msg: env.Error.Reason}
	}
	return &DeclinedError{Code: fmt.Sprintf("HTTP_%d", ae.StatusCode), Msg: op + " rejected"}
}

func mapWompiStatus(s string) types.PaymentStatus {
	switch s {
	case "APPROVED":
		return types.PaymentStatusApproved
	case "DECLINED", "VOIDED":
		return types.PaymentStatusDeclined
	case "PENDING":
		return types.PaymentStatusPending
	default:
		return types.PaymentStatusError
	}
}
