package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/gateway"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/metrics"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{order.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", payment.ErrNotFound), http.StatusNotFound},
		{payment.ErrReferenceNotFound, http.StatusNotFound},
		{&order.ValidationError{Field: "items", Reason: "required"}, http.StatusUnprocessableEntity},
		{&gateway.UnsupportedError{Name: "paypal"}, http.StatusUnprocessableEntity},
		{&payment.RefundExceedsAmountError{}, http.StatusUnprocessableEntity},
		{payment.ErrMissingPaymentID, http.StatusUnprocessableEntity},
		{&product.InsufficientStockError{ProductID: "p1"}, http.StatusConflict},
		{order.ErrAlreadyPaid, http.StatusConflict},
		{order.ErrHasPayments, http.StatusConflict},
		{order.ErrNotCancellable, http.StatusConflict},
		{payment.ErrNotRefundable, http.StatusConflict},
		{payment.ErrNotPaid, http.StatusConflict},
		{payment.ErrOrderCancelled, http.StatusConflict},
		{&gateway.Error{Gateway: "tabby", Message: "rejected"}, http.StatusBadGateway},
		{&gateway.Error{Gateway: "tabby", Kind: gateway.ErrRefund}, http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), "%v", tc.err)
	}
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, Envelope) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestError_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stock", func(c *gin.Context) {
		Error(c, &product.InsufficientStockError{ProductID: "p1", Name: "Mouse", Requested: 3, Available: 1})
	})
	r.GET("/refund", func(c *gin.Context) {
		Error(c, &payment.RefundExceedsAmountError{Requested: decimal.NewFromInt(300), Available: decimal.NewFromInt(280)})
	})
	r.GET("/boom", func(c *gin.Context) { Error(c, errors.New("pq: connection refused")) })

	w, env := serve(r, httptest.NewRequest(http.MethodGet, "/stock", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "Mouse")
	assert.NotNil(t, env.Errors)

	w, env = serve(r, httptest.NewRequest(http.MethodGet, "/refund", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, map[string]any{"requested": "300.00", "available": "280.00"}, env.Errors)

	w, env = serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRequestID_PropagatesAndInjectsLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base := zap.NewNop()
	r := gin.New()
	r.Use(RequestID(base), Logger(base))
	var same bool
	r.GET("/x", func(c *gin.Context) {
		same = logging.FromContext(c.Request.Context(), base) == base
		OK(c, http.StatusOK, "ok", gin.H{"rid": c.GetString(ridKey)})
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w, env := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, map[string]any{"rid": "abc-123"}, env.Data)
	assert.False(t, same, "handler sees the request-scoped logger")

	w, _ = serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireUser(), func(c *gin.Context) { OK(c, http.StatusOK, "ok", UserID(c)) })

	w, env := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", " u1 ")
	w, env = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", env.Data)
}

func TestMetricsAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(Metrics(metrics.New(reg)), Recovery(zap.NewNop()))
	r.GET("/panic/:id", func(c *gin.Context) { panic("boom") })

	w, env := serve(r, httptest.NewRequest(http.MethodGet, "/panic/1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "http_requests_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			for _, l := range f.GetMetric()[0].GetLabel() {
				if l.GetName() == "route" {
					assert.Equal(t, "/panic/:id", l.GetValue())
				}
			}
		}
	}
	assert.True(t, found)
}
