// Package httpx holds the gin plumbing shared by the checkout handlers:
// middleware, the JSON envelope and the error to status mapping.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ordenes-checkout/internal/gateway"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

// Envelope is the body of every API response.
// swagger:model
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func Fail(c *gin.Context, status int, message string, errs any) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message, Errors: errs})
}

// Error writes err with the status Status picks. Server-side failures hide
// their detail from the client.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	status := Status(err)
	switch {
	case status >= 500 && status != http.StatusBadGateway:
		Fail(c, status, "Internal server error", nil)
	default:
		Fail(c, status, err.Error(), details(err))
	}
}

// Status maps domain errors to HTTP codes.
func Status(err error) int {
	var (
		stock *product.InsufficientStockError
		unsup *gateway.UnsupportedError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, payment.ErrReferenceNotFound),
		errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidOrderData),
		errors.As(err, &unsup),
		errors.Is(err, payment.ErrRefundExceedsAmount),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrMissingPaymentID),
		errors.Is(err, payment.ErrMethodsUnsupported),
		errors.Is(err, product.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stock),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrHasPayments),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrNotPending),
		errors.Is(err, payment.ErrOrderNotPending),
		errors.Is(err, payment.ErrOrderCancelled),
		errors.Is(err, payment.ErrNotRefundable),
		errors.Is(err, payment.ErrNotPaid):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func details(err error) any {
	var (
		ve    *order.ValidationError
		stock *product.InsufficientStockError
		re    *payment.RefundExceedsAmountError
		ge    *gateway.Error
	)
	switch {
	case errors.As(err, &ve):
		return map[string][]string{ve.Field: {ve.Reason}}
	case errors.As(err, &stock):
		return gin.H{"product_id": stock.ProductID, "requested": stock.Requested, "available": stock.Available}
	case errors.As(err, &re):
		return gin.H{"requested": re.Requested.StringFixed(2), "available": re.Available.StringFixed(2)}
	case errors.As(err, &ge):
		return gin.H{"gateway": ge.Gateway, "endpoint": ge.Endpoint}
	}
	return nil
}

// UserID is the authenticated caller, set by the upstream auth layer.
func UserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

// RequireUser rejects requests without a caller identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			Fail(c, http.StatusUnauthorized, "Unauthenticated", nil)
			return
		}
		c.Next()
	}
}

// WebhookTrusted reports whether the upstream layer verified the webhook
// signature.
func WebhookTrusted(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("X-Webhook-Verified"), "true")
}
