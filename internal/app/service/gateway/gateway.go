package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/casamarket/checkout/pkg/types"
)

// Customer identifies the paying customer towards the processor.
type Customer struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// CardData is the card payload for synchronous card payments. Never persisted.
type CardData struct {
	Number     string `json:"number"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holder_name"`
}

// PaymentRequest is the canonical create-payment request. Exactly one of the
// method-specific payloads is set, according to the method category.
type PaymentRequest struct {
	OrderID  string
	Amount   int64
	Currency string
	Customer Customer
	Category types.PaymentMethodCategory

	Card            *CardData
	PSEBankCode     string
	FinancingPlanID string

	ReturnURL string
	CancelURL string
}

// PaymentResult is the canonical outcome of a create call. Card payments
// resolve synchronously to APPROVED/DECLINED; redirect-based methods resolve
// to PENDING and carry the RedirectURL the customer must visit.
type PaymentResult struct {
	TransactionID string
	Status        types.PaymentStatus
	RedirectURL   string
	Reason        string
	// Raw is the provider response verbatim, stored for audit only.
	Raw json.RawMessage
}

type RefundResult struct {
	RefundID string
	Approved bool
	Raw      json.RawMessage
}

// WebhookPayload is the canonical shape of a parsed, authenticated callback.
type WebhookPayload struct {
	GatewayTransactionID string
	Status               types.PaymentStatus
	// EventID is the provider event id, or a payload fingerprint when the
	// provider does not send one. Dedup key together with the gateway id.
	EventID string
}

type HealthStatus struct {
	Healthy      bool
	ResponseTime time.Duration
	Err          string
}

// Adapter translates canonical payment operations into one provider's API and
// normalizes the responses back. All network calls honor ctx and the
// per-gateway timeouts from configuration.
type Adapter interface {
	ID() types.PaymentGateway
	CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error)
	VerifyPayment(ctx context.Context, gatewayTxID string) (types.PaymentStatus, error)
	Refund(ctx context.Context, gatewayTxID string, amount int64, reason string) (*RefundResult, error)
	ParseWebhook(payload []byte, signature string) (*WebhookPayload, error)
	HealthCheck(ctx context.Context) *HealthStatus
}

// Adapters is the closed set of configured gateways. Adding a processor means
// adding a field and wiring its constructor, not registering a string key at
// runtime.
type Adapters struct {
	Wompi Adapter
	PayU  Adapter
	Addi  Adapter
}

func (a *Adapters) ByID(id types.PaymentGateway) (Adapter, bool) {
	switch id {
	case types.PaymentGatewayWompi:
		return a.Wompi, a.Wompi != nil
	case types.PaymentGatewayPayU:
		return a.PayU, a.PayU != nil
	case types.PaymentGatewayAddi:
		return a.Addi, a.Addi != nil
	}
	return nil, false
}

func (a *Adapters) All() []Adapter {
	out := make([]Adapter, 0, 3)
	for _, ad := range []Adapter{a.Wompi, a.PayU, a.Addi} {
		if ad != nil {
			out = append(out, ad)
		}
	}
	return out
}
