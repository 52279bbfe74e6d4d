package router

import (
	"context"
	"sync"
	"time"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/pkg/logctx"
	"github.com/casamarket/checkout/pkg/types"
)

const (
	healthCheckTimeout = 3 * time.Second
	healthCacheTTL     = 30 * time.Second
)

// HealthSnapshot is one gateway's probe result.
type HealthSnapshot struct {
	GatewayID      types.PaymentGateway `json:"gateway_id"`
	Status         string               `json:"status"`
	ResponseTimeMs int64                `json:"response_time_ms"`
	Error          string               `json:"error,omitempty"`
	CheckedAt      time.Time            `json:"checked_at"`
}

// MethodInfo is a catalog entry optionally annotated with the live health of
// its backing gateway.
type MethodInfo struct {
	Method        *types.PaymentMethod `json:"method"`
	GatewayStatus string               `json:"gateway_status,omitempty"`
}

// GatewayHealth probes every configured gateway in parallel. A probe that
// fails, panics or times out is reported unhealthy, never surfaced as a
// router error. Snapshots are cached briefly so a burst of method listings
// does not hammer the providers.
func (r *Router) GatewayHealth(ctx context.Context) []*HealthSnapshot {
	r.healthMu.Lock()
	if r.healthSnaps != nil && time.Since(r.healthAt) < healthCacheTTL {
		snaps := r.healthSnaps
		r.healthMu.Unlock()
		return snaps
	}
	r.healthMu.Unlock()

	adapters := r.adapters.All()
	out := make([]*HealthSnapshot, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a gateway.Adapter) {
			defer wg.Done()
			out[i] = r.probe(ctx, a)
		}(i, a)
	}
	wg.Wait()

	r.healthMu.Lock()
	r.healthSnaps = out
	r.healthAt = time.Now()
	r.healthMu.Unlock()
	return out
}

func (r *Router) probe(ctx context.Context, a gateway.Adapter) (snap *HealthSnapshot) {
	snap = &HealthSnapshot{GatewayID: a.ID(), CheckedAt: time.Now()}
	defer func() {
		if rec := recover(); rec != nil {
			snap.Status = "unhealthy"
			snap.Error = "health check panicked"
			logctx.FromCtx(ctx, r.log).Errorw("gateway_health_panic", "gateway", a.ID(), "panic", rec)
		}
		r.metrics.ObserveHealth(snap.GatewayID, snap.Status == "healthy")
	}()

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	st := a.HealthCheck(ctx)
	snap.ResponseTimeMs = st.ResponseTime.Milliseconds()
	if st.Healthy {
		snap.Status = "healthy"
	} else {
		snap.Status = "unhealthy"
		snap.Error = st.Err
	}
	return snap
}

// AvailableMethods lists enabled methods; with health enabled each entry is
// annotated with its backing gateway's probe result.
func (r *Router) AvailableMethods(ctx context.Context, withHealth bool) []*MethodInfo {
	enabled := r.registry.Enabled()
	out := make([]*MethodInfo, 0, len(enabled))

	var byGateway map[types.PaymentGateway]string
	if withHealth {
		byGateway = make(map[types.PaymentGateway]string)
		for _, snap := range r.GatewayHealth(ctx) {
			byGateway[snap.GatewayID] = snap.Status
		}
	}
	for _, m := range enabled {
		info := &MethodInfo{Method: m}
		if withHealth {
			info.GatewayStatus = byGateway[m.GatewayID]
		}
		out = append(out, info)
	}
	return out
}
