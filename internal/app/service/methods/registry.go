package methods

import (
	"errors"

	"github.com/casamarket/checkout/pkg/config"
	"github.com/casamarket/checkout/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrMethodUnavailable means the requested payment method is unknown or
// disabled in the catalog.
var ErrMethodUnavailable = errors.New("payment method unknown or disabled")

// Registry serves the immutable payment-method catalog loaded from
// configuration.
type Registry struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewRegistry(cfg *config.Config, log *zap.SugaredLogger) *Registry {
	return &Registry{cfg: cfg, log: log}
}

// Resolve returns an enabled method by id.
func (r *Registry) Resolve(id string) (*types.PaymentMethod, error) {
	m := r.cfg.GetPaymentMethodByID(id)
	if m == nil || !m.Enabled {
		return nil, ErrMethodUnavailable
	}
	return m, nil
}

// Enabled lists the methods offered at checkout.
func (r *Registry) Enabled() []*types.PaymentMethod {
	out := make([]*types.PaymentMethod, 0, len(r.cfg.PaymentMethods))
	for _, m := range r.cfg.PaymentMethods {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Gateways returns the distinct gateways backing enabled methods.
func (r *Registry) Gateways() []types.PaymentGateway {
	seen := map[types.PaymentGateway]bool{}
	var out []types.PaymentGateway
	for _, m := range r.Enabled() {
		if !seen[m.GatewayID] {
			seen[m.GatewayID] = true
			out = append(out, m.GatewayID)
		}
	}
	return out
}

var Module = fx.Options(
	fx.Provide(NewRegistry),
)
