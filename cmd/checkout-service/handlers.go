package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/gateway"
	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
)

// swagger:model InitiatePaymentRequest
type initiatePaymentRequest struct {
	OrderID string `json:"order_id" binding:"required" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
}

// swagger:model RefundRequest
type refundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty" swaggertype:"string" example:"50.00"`
}

// swagger:model ValidateStockRequest
type validateStockRequest struct {
	Items []order.CreateOrderItem `json:"items" binding:"required,min=1,dive"`
}

type orderView struct {
	*order.Order
	Payments []payment.Payment `json:"payments"`
}

func bindFailed(c *gin.Context, err error) {
	httpx.Fail(c, http.StatusUnprocessableEntity, "Validation failed", gin.H{"body": []string{err.Error()}})
}

//
// ===== orders =====
//

// listOrdersHandler godoc
// @Summary      List the caller's orders
// @Tags         orders
// @Produce      json
// @Param        X-User-ID       header  string  true   "Caller id"
// @Param        status          query   string  false  "Order status"
// @Param        payment_status  query   string  false  "Payment status"
// @Param        limit           query   int     false  "Page size (max 100)"
// @Param        offset          query   int     false  "Offset"
// @Success      200  {object}  httpx.Envelope
// @Failure      422  {object}  httpx.Envelope
// @Router       /orders [get]
func listOrdersHandler(orders *order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		list, err := orders.ListOrders(c.Request.Context(), httpx.UserID(c), order.Filter{
			Status:        order.Status(c.Query("status")),
			PaymentStatus: order.PaymentStatus(c.Query("payment_status")),
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		if list == nil {
			list = []order.Order{}
		}
		httpx.OK(c, http.StatusOK, "Orders retrieved successfully", gin.H{
			"items":  list,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// createOrderHandler godoc
// @Summary      Create an order and reserve its stock
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  string                    true  "Caller id"
// @Param        body       body    order.CreateOrderRequest  true  "Order"
// @Success      201  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Failure      422  {object}  httpx.Envelope
// @Router       /orders [post]
func createOrderHandler(orders *order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}
		o, err := orders.CreateOrder(c.Request.Context(), httpx.UserID(c), req.Input())
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusCreated, "Order created successfully", o)
	}
}

// getOrderHandler godoc
// @Summary      Get an order with its payment attempts
// @Tags         orders
// @Produce      json
// @Param        X-User-ID  header  string  true  "Caller id"
// @Param        id         path    string  true  "Order id"
// @Success      200  {object}  httpx.Envelope
// @Failure      404  {object}  httpx.Envelope
// @Router       /orders/{id} [get]
func getOrderHandler(orders *order.Manager, payments *payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		o, err := orders.GetOrder(ctx, c.Param("id"), httpx.UserID(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		ps, err := payments.ListByOrder(ctx, o.ID, httpx.UserID(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		if ps == nil {
			ps = []payment.Payment{}
		}
		httpx.OK(c, http.StatusOK, "Order retrieved successfully", orderView{Order: o, Payments: ps})
	}
}

// updateOrderHandler godoc
// @Summary      Update notes and addresses of an unpaid order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  string                    true  "Caller id"
// @Param        id         path    string                    true  "Order id"
// @Param        body       body    order.UpdateOrderRequest  true  "Fields to change"
// @Success      200  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Router       /orders/{id} [put]
func updateOrderHandler(orders *order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.UpdateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}
		o, err := orders.UpdateOrder(c.Request.Context(), c.Param("id"), httpx.UserID(c), req.Input())
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Order updated successfully", o)
	}
}

// deleteOrderHandler godoc
// @Summary      Delete an order without payments
// @Tags         orders
// @Produce      json
// @Param        X-User-ID  header  string  true  "Caller id"
// @Param        id         path    string  true  "Order id"
// @Success      200  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Router       /orders/{id} [delete]
func deleteOrderHandler(orders *order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := orders.DeleteOrder(c.Request.Context(), c.Param("id"), httpx.UserID(c)); err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Order deleted successfully", nil)
	}
}

// cancelOrderHandler godoc
// @Summary      Cancel an order and restock its items
// @Tags         orders
// @Produce      json
// @Param        X-User-ID  header  string  true  "Caller id"
// @Param        id         path    string  true  "Order id"
// @Success      200  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Router       /orders/{id}/cancel [post]
func cancelOrderHandler(orders *order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.CancelOrder(c.Request.Context(), c.Param("id"), httpx.UserID(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Order cancelled successfully", o)
	}
}

// validateStockHandler godoc
// @Summary      Check stock for a list of items without reserving it
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        body  body  validateStockRequest  true  "Items"
// @Success      200  {object}  httpx.Envelope
// @Router       /stock/validate [post]
func validateStockHandler(orders *order.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}
		items := make([]order.ItemInput, len(req.Items))
		for i, it := range req.Items {
			items[i] = order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		ok, err := orders.ValidateStock(c.Request.Context(), items)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Stock checked", gin.H{"available": ok})
	}
}

//
// ===== payments =====
//

// initiatePaymentHandler godoc
// @Summary      Open a checkout session for a pending order
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  string                  true  "Caller id"
// @Param        body       body    initiatePaymentRequest  true  "Order"
// @Success      200  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Failure      502  {object}  httpx.Envelope
// @Router       /payments/initiate [post]
func initiatePaymentHandler(payments *payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req initiatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}
		res, err := payments.Initiate(c.Request.Context(), req.OrderID, httpx.UserID(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Payment initiated successfully", gin.H{
			"payment_url": res.PaymentURL,
			"payment_id":  res.Payment.PaymentID,
			"payment":     res.Payment,
		})
	}
}

// callbackHandler godoc
// @Summary      Buyer return from the gateway
// @Tags         payments
// @Produce      json
// @Param        gateway    path   string  true   "Gateway name"
// @Param        paymentId  query  string  false  "Payment id (MyFatoorah, Tabby)"
// @Param        order_id   query  string  false  "Payment id (Tamara)"
// @Success      200  {object}  httpx.Envelope
// @Failure      400  {object}  httpx.Envelope
// @Router       /payments/callback/{gateway} [get]
// @Router       /payments/callback/{gateway} [post]
func callbackHandler(payments *payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := payments.Callback(c.Request.Context(), c.Param("gateway"), callbackParams(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		if !p.IsPaid() {
			httpx.Fail(c, http.StatusBadRequest, "Payment failed or pending", gin.H{"payment_status": p.Status})
			return
		}
		httpx.OK(c, http.StatusOK, "Payment successful", p)
	}
}

// callbackParams merges query, form and JSON body fields; later sources win.
func callbackParams(c *gin.Context) map[string]string {
	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if c.Request.Method != http.MethodPost {
		return params
	}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err == nil {
			for k, v := range body {
				switch t := v.(type) {
				case string:
					params[k] = t
				case float64, json.Number, bool:
					params[k] = fmt.Sprint(t)
				}
			}
		}
		return params
	}
	if err := c.Request.ParseForm(); err == nil {
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	}
	return params
}

// webhookHandler godoc
// @Summary      Server-to-server gateway notification
// @Description  Always acknowledged; processing errors are logged.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        gateway             path    string  true   "Gateway name"
// @Param        X-Webhook-Verified  header  string  false  "true when the signature was checked upstream"
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /payments/webhook/{gateway} [post]
func webhookHandler(payments *payment.Orchestrator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err == nil {
			err = payments.HandleWebhook(c.Request.Context(), c.Param("gateway"), body, httpx.WebhookTrusted(c))
		}
		if err != nil {
			logging.FromContext(c.Request.Context(), log).Error("webhook rejected",
				zap.String("gateway", c.Param("gateway")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Webhook processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// capturePaymentHandler godoc
// @Summary      Capture a paid payment and complete its order
// @Tags         payments
// @Produce      json
// @Param        X-User-ID  header  string  true  "Caller id"
// @Param        id         path    string  true  "Payment id"
// @Success      200  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Failure      502  {object}  httpx.Envelope
// @Router       /payments/{id}/capture [post]
func capturePaymentHandler(orders *order.Manager, payments *payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := ownedPayment(c, orders, payments); err != nil {
			httpx.Error(c, err)
			return
		}
		p, err := payments.Capture(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Payment captured successfully", p)
	}
}

// refundPaymentHandler godoc
// @Summary      Refund a paid payment, fully or partially
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  string         true   "Caller id"
// @Param        id         path    string         true   "Payment id"
// @Param        body       body    refundRequest  false  "Amount (defaults to the full payment)"
// @Success      200  {object}  httpx.Envelope
// @Failure      409  {object}  httpx.Envelope
// @Failure      422  {object}  httpx.Envelope
// @Failure      502  {object}  httpx.Envelope
// @Router       /payments/{id}/refund [post]
func refundPaymentHandler(orders *order.Manager, payments *payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				bindFailed(c, err)
				return
			}
		}
		if _, err := ownedPayment(c, orders, payments); err != nil {
			httpx.Error(c, err)
			return
		}
		p, err := payments.Refund(c.Request.Context(), c.Param("id"), req.Amount)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Payment refunded successfully", p)
	}
}

// ownedPayment loads the payment in :id and checks the caller owns its order.
func ownedPayment(c *gin.Context, orders *order.Manager, payments *payment.Orchestrator) (*payment.Payment, error) {
	p, err := payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if _, err := orders.GetOrder(c.Request.Context(), p.OrderID, httpx.UserID(c)); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, payment.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// paymentMethodsHandler godoc
// @Summary      Payment options a gateway offers for an amount
// @Tags         payments
// @Produce      json
// @Param        gateway  path   string  true   "Gateway name"
// @Param        amount   query  string  true   "Order amount"
// @Param        phone    query  string  false  "Buyer phone (Tamara)"
// @Success      200  {object}  httpx.Envelope
// @Failure      422  {object}  httpx.Envelope
// @Router       /payments/methods/{gateway} [get]
func paymentMethodsHandler(payments *payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, err := decimal.NewFromString(c.Query("amount"))
		if err != nil || !amount.IsPositive() {
			httpx.Fail(c, http.StatusUnprocessableEntity, "Validation failed", gin.H{"amount": []string{"must be a positive number"}})
			return
		}
		methods, err := payments.PaymentMethods(c.Request.Context(), c.Param("gateway"), gateway.MethodsQuery{
			Amount: amount,
			Phone:  c.Query("phone"),
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, http.StatusOK, "Payment methods retrieved successfully", methods)
	}
}

// gatewaysHandler godoc
// @Summary      Names of the configured gateways
// @Tags         payments
// @Produce      json
// @Success      200  {object}  httpx.Envelope
// @Router       /gateways [get]
func gatewaysHandler(reg *gateway.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		httpx.OK(c, http.StatusOK, "Gateways retrieved successfully", reg.Available())
	}
}
