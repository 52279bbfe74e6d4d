package router

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.uber.org/fx"
)

func newDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// Module exposes the payment router via Fx.
var Module = fx.Options(
	fx.Provide(newDefaultMetrics),
	fx.Provide(NewRouter),
)
