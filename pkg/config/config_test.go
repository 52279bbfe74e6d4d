package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	require.Equal(t, EnvDev, c.Env)
	require.Equal(t, 8888, c.Server.Port)
	require.Equal(t, int64(1500), c.Wompi.MinAmount)
	require.Equal(t, 10*time.Second, c.PayU.RequestTimeout)
	require.Equal(t, 2*time.Second, c.Addi.HealthTimeout)
}

func TestGetPaymentMethodByID(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	require.Nil(t, c.GetPaymentMethodByID("does-not-exist"))
}
