package router

import (
	"context"
	"testing"
	"time"

	"github.com/casamarket/checkout/internal/app/service/gateway"
	"github.com/casamarket/checkout/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestGatewayHealth_ReportsPerGateway(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		return &gateway.HealthStatus{Healthy: true, ResponseTime: 42 * time.Millisecond}
	}
	f.addi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		return &gateway.HealthStatus{Healthy: false, Err: "connection refused"}
	}

	snaps := f.router.GatewayHealth(context.Background())
	require.Len(t, snaps, 2)

	byID := map[types.PaymentGateway]*HealthSnapshot{}
	for _, s := range snaps {
		byID[s.GatewayID] = s
	}
	require.Equal(t, "healthy", byID[types.PaymentGatewayWompi].Status)
	require.Equal(t, int64(42), byID[types.PaymentGatewayWompi].ResponseTimeMs)
	require.Equal(t, "unhealthy", byID[types.PaymentGatewayAddi].Status)
	require.Equal(t, "connection refused", byID[types.PaymentGatewayAddi].Error)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.healthy.WithLabelValues("wompi")))
	require.Equal(t, 0.0, testutil.ToFloat64(f.metrics.healthy.WithLabelValues("addi")))
}

func TestGatewayHealth_PanickingProbeIsUnhealthy(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		panic("probe blew up")
	}
	f.addi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		return &gateway.HealthStatus{Healthy: true}
	}

	snaps := f.router.GatewayHealth(context.Background())
	require.Len(t, snaps, 2)

	byID := map[types.PaymentGateway]*HealthSnapshot{}
	for _, s := range snaps {
		byID[s.GatewayID] = s
	}
	require.Equal(t, "unhealthy", byID[types.PaymentGatewayWompi].Status)
	require.Equal(t, "health check panicked", byID[types.PaymentGatewayWompi].Error)
	require.Equal(t, "healthy", byID[types.PaymentGatewayAddi].Status)
}

func TestGatewayHealth_SnapshotsAreCached(t *testing.T) {
	f := newTestRouter(t)
	probes := 0
	f.wompi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		probes++
		return &gateway.HealthStatus{Healthy: true}
	}
	f.addi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		return &gateway.HealthStatus{Healthy: true}
	}

	first := f.router.GatewayHealth(context.Background())
	second := f.router.GatewayHealth(context.Background())
	require.Equal(t, 1, probes)
	require.Equal(t, first, second)
}

func TestAvailableMethods(t *testing.T) {
	f := newTestRouter(t)

	infos := f.router.AvailableMethods(context.Background(), false)
	require.Len(t, infos, 3)
	for _, info := range infos {
		require.True(t, info.Method.Enabled)
		require.Empty(t, info.GatewayStatus)
	}
}

func TestAvailableMethods_WithHealth(t *testing.T) {
	f := newTestRouter(t)
	f.wompi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		return &gateway.HealthStatus{Healthy: true}
	}
	f.addi.healthFn = func(ctx context.Context) *gateway.HealthStatus {
		return &gateway.HealthStatus{Healthy: false, Err: "timeout"}
	}

	infos := f.router.AvailableMethods(context.Background(), true)
	require.Len(t, infos, 3)
	for _, info := range infos {
		switch info.Method.GatewayID {
		case types.PaymentGatewayWompi:
			require.Equal(t, "healthy", info.GatewayStatus)
		case types.PaymentGatewayAddi:
			require.Equal(t, "unhealthy", info.GatewayStatus)
		}
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveAttempt(types.PaymentGatewayWompi, types.PaymentStatusApproved)
	m.ObserveRetry(types.PaymentGatewayWompi)
	require.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("wompi", "APPROVED")))

	m.Reset()
	require.Equal(t, 0.0, testutil.ToFloat64(m.attempts.WithLabelValues("wompi", "APPROVED")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.retries.WithLabelValues("wompi")))
}
