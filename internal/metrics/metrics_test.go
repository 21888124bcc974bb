package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.GatewayRequest("tabby", "/checkout", "success", 10*time.Millisecond)
	m.GatewayRequest("tabby", "/checkout", "error", 10*time.Millisecond)
	m.OrderOperation("create", nil)
	m.OrderOperation("create", errors.New("boom"))
	m.PaymentTransition("tamara", "paid")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("tabby", "/checkout", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentTransitions.WithLabelValues("tamara", "paid")))

	n, err := testutil.GatherAndCount(reg, "gateway_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.HTTPRequest("GET", "/x", "200", time.Second)
		m.GatewayRequest("a", "b", "c", time.Second)
		m.PaymentTransition("a", "b")
		m.OrderOperation("a", nil)
		m.Webhook("a", "b")
	})
}
