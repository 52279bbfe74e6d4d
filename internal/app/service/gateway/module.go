package gateway

import "go.uber.org/fx"

func NewAdapters(wompi *WompiAdapter, payu *PayUAdapter, addi *AddiAdapter) *Adapters {
	return &Adapters{Wompi: wompi, PayU: payu, Addi: addi}
}

var Module = fx.Options(
	fx.Provide(NewWompiAdapter),
	fx.Provide(NewPayUAdapter),
	fx.Provide(NewAddiAdapter),
	fx.Provide(NewAdapters),
)
