package types

// PaymentGateway identifies an external payment processor.
type PaymentGateway string

const (
	PaymentGatewayWompi PaymentGateway = "wompi"
	PaymentGatewayPayU  PaymentGateway = "payu"
	PaymentGatewayAddi  PaymentGateway = "addi"
)

type PaymentMethodCategory string

const (
	PaymentMethodCategoryCard      PaymentMethodCategory = "card"
	PaymentMethodCategoryPSE       PaymentMethodCategory = "pse"
	PaymentMethodCategoryCash      PaymentMethodCategory = "cash"
	PaymentMethodCategoryFinancing PaymentMethodCategory = "financing"
)

// PaymentStatus is the canonical status vocabulary for a payment transaction.
// Gateway-specific vocabularies are mapped into this one by the adapters.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusDeclined PaymentStatus = "DECLINED"
	PaymentStatusError    PaymentStatus = "ERROR"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// IsTerminal reports whether no further automatic transition is permitted.
// APPROVED may still move to REFUNDED, but only through the refund workflow,
// never through a webhook.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusDeclined, PaymentStatusError, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentMethod is immutable reference data describing a checkout payment
// option. The catalog is loaded from configuration and owned by the method
// registry; the gateway binding is static, fallback never re-routes a method
// to a different gateway.
type PaymentMethod struct {
	ID             string                `json:"id" mapstructure:"id"`
	Name           string                `json:"name" mapstructure:"name"`
	Category       PaymentMethodCategory `json:"category" mapstructure:"category"`
	GatewayID      PaymentGateway        `json:"gateway_id" mapstructure:"gateway_id"`
	Enabled        bool                  `json:"enabled" mapstructure:"enabled"`
	FeePercentBps  int64                 `json:"fee_percent_bps" mapstructure:"fee_percent_bps"`
	FeeFixed       int64                 `json:"fee_fixed" mapstructure:"fee_fixed"`
	ProcessingTime string                `json:"processing_time" mapstructure:"processing_time"`
}

// Redirects reports whether the method resolves asynchronously through a
// redirect flow instead of a synchronous card authorization.
func (m *PaymentMethod) Redirects() bool {
	return m.Category == PaymentMethodCategoryPSE || m.Category == PaymentMethodCategoryFinancing
}
