package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
)

// TamaraClient needs an explicit authorise before capture, and refunds and
// captures are addressed by the Tamara order id returned at checkout.
type TamaraClient struct {
	client
	currency string
}

var tamaraPaid = map[string]bool{
	"approved":       true,
	"authorised":     true,
	"fully_captured": true,
}

func NewTamara(cfg config.Gateway, d Deps) *TamaraClient {
	c := &TamaraClient{
		client:   newClient(Tamara, cfg, "https://api-sandbox.tamara.co", d),
		currency: cfg.Currency,
	}
	if c.currency == "" {
		c.currency = "SAR"
	}
	return c
}

func (c *TamaraClient) Name() string { return Tamara }

func (c *TamaraClient) Currency() string { return c.currency }

func (c *TamaraClient) countryCode() string {
	if c.cfg.TestMode {
		return "AE"
	}
	return "SA"
}

type tamaraMoney struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

func (c *TamaraClient) money(d decimal.Decimal) tamaraMoney {
	return tamaraMoney{Amount: number(d), Currency: c.currency}
}

func (c *TamaraClient) items(o *order.Order) []map[string]any {
	items := make([]map[string]any, len(o.Items))
	for i, it := range o.Items {
		name := it.ProductName
		if name == "" {
			name = "Product"
		}
		items[i] = map[string]any{
			"reference_id":    it.ProductID,
			"type":            "Physical",
			"name":            name,
			"sku":             "PROD-" + it.ProductID,
			"quantity":        it.Quantity,
			"unit_price":      c.money(it.UnitPrice),
			"discount_amount": c.money(decimal.Zero),
			"tax_amount":      c.money(decimal.Zero),
			"total_amount":    c.money(it.TotalPrice),
		}
	}
	return items
}

func (c *TamaraClient) address(a order.Address) map[string]string {
	return map[string]string{
		"first_name":   a.Name,
		"last_name":    a.Name,
		"line1":        a.Address,
		"line2":        "",
		"region":       a.Region,
		"postal_code":  a.Zip,
		"city":         a.City,
		"country_code": c.countryCode(),
		"phone_number": a.Phone,
	}
}

func (c *TamaraClient) CreateCheckoutSession(ctx context.Context, ck Checkout) (*Session, error) {
	o := ck.Order
	locale := "en_US"
	if c.cfg.Language == "ar" {
		locale = "ar_SA"
	}
	payload := map[string]any{
		"order_reference_id": o.OrderNumber,
		"order_number":       o.OrderNumber,
		"total_amount":       c.money(o.Total),
		"description":        "Order #" + o.OrderNumber,
		"country_code":       c.countryCode(),
		"payment_type":       "PAY_BY_INSTALMENTS",
		"locale":             locale,
		"items":              c.items(o),
		"consumer": map[string]string{
			"first_name":   ck.Buyer.Name,
			"last_name":    ck.Buyer.Name,
			"phone_number": ck.Buyer.Phone,
			"email":        ck.Buyer.Email,
		},
		"billing_address":  c.address(o.BillingAddress),
		"shipping_address": c.address(o.DeliveryAddress()),
		"tax_amount":       c.money(o.Tax),
		"shipping_amount":  c.money(o.Shipping),
		"discount": map[string]any{
			"name":   "Order discount",
			"amount": c.money(o.Discount),
		},
		"merchant_url": map[string]string{
			"success":      redirectURL(c.cfg.CallbackURL, Tamara, "success"),
			"cancel":       redirectURL(c.cfg.CallbackURL, Tamara, "cancel"),
			"failure":      redirectURL(c.cfg.CallbackURL, Tamara, "failure"),
			"notification": c.cfg.WebhookURL,
		},
	}
	var res struct {
		OrderID     string `json:"order_id"`
		CheckoutID  string `json:"checkout_id"`
		CheckoutURL string `json:"checkout_url"`
	}
	raw, err := c.do(ctx, call{method: http.MethodPost, path: "/checkout", label: "checkout", body: payload}, &res)
	if err != nil {
		return nil, err
	}
	if res.CheckoutURL == "" {
		return nil, &Error{Gateway: Tamara, Endpoint: "checkout", Message: "no checkout url in response"}
	}
	return &Session{PaymentURL: res.CheckoutURL, PaymentID: res.OrderID, Raw: raw}, nil
}

func (c *TamaraClient) VerifyPayment(ctx context.Context, paymentID string) (bool, error) {
	var res struct {
		Status string `json:"status"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/orders/" + url.PathEscape(paymentID), label: "orders.get"}, &res); err != nil {
		return false, err
	}
	return tamaraPaid[res.Status], nil
}

// CapturePayment authorises the Tamara order and then captures the full total.
func (c *TamaraClient) CapturePayment(ctx context.Context, cp Capture) (*Result, error) {
	var auth struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if _, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/orders/" + url.PathEscape(cp.PaymentID) + "/authorise",
		label:  "orders.authorise",
	}, &auth); err != nil {
		return nil, withKind(err, ErrCapture)
	}
	if auth.OrderID == "" {
		return nil, &Error{Gateway: Tamara, Endpoint: "orders.authorise", Kind: ErrCapture, Message: "Failed to authorize Tamara payment"}
	}

	o := cp.Order
	payload := map[string]any{
		"order_id":        cp.PaymentID,
		"total_amount":    c.money(o.Total),
		"tax_amount":      c.money(o.Tax),
		"shipping_amount": c.money(o.Shipping),
		"discount_amount": c.money(o.Discount),
		"items":           c.items(o),
		"shipping_info": map[string]string{
			"shipped_at":       time.Now().UTC().Format(time.RFC3339),
			"shipping_company": "checkout-service",
		},
	}
	var res struct {
		CaptureID string `json:"capture_id"`
		OrderID   string `json:"order_id"`
	}
	raw, err := c.do(ctx, call{method: http.MethodPost, path: "/payments/capture", label: "payments.capture", body: payload}, &res)
	if err != nil {
		return nil, withKind(err, ErrCapture)
	}
	if res.CaptureID == "" {
		return nil, &Error{Gateway: Tamara, Endpoint: "payments.capture", Kind: ErrCapture, Message: "no capture id in response"}
	}
	return &Result{ID: res.CaptureID, Status: auth.Status, Raw: raw}, nil
}

func (c *TamaraClient) RefundPayment(ctx context.Context, r Refund) (*Result, error) {
	payload := map[string]any{
		"order_id":     r.PaymentID,
		"total_amount": c.money(r.Amount),
		"comment":      "Refund for order #" + r.OrderNumber,
	}
	var res struct {
		RefundID string `json:"refund_id"`
	}
	raw, err := c.do(ctx, call{method: http.MethodPost, path: "/payments/refund", label: "payments.refund", body: payload}, &res)
	if err != nil {
		return nil, withKind(err, ErrRefund)
	}
	return &Result{ID: res.RefundID, Raw: raw}, nil
}

// PaymentMethods runs the payment options pre-check and returns the available
// labels, or an empty list when Tamara offers nothing for this buyer.
func (c *TamaraClient) PaymentMethods(ctx context.Context, q MethodsQuery) (json.RawMessage, error) {
	payload := map[string]any{
		"country":      c.countryCode(),
		"order_value":  c.money(q.Amount),
		"phone_number": q.Phone,
		"is_vip":       false,
	}
	var res struct {
		HasAvailablePaymentOptions bool            `json:"has_available_payment_options"`
		AvailablePaymentLabels     json.RawMessage `json:"available_payment_labels"`
	}
	if _, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/checkout/payment-options-pre-check",
		label:  "checkout.payment_options",
		body:   payload,
	}, &res); err != nil {
		return nil, err
	}
	if !res.HasAvailablePaymentOptions || len(res.AvailablePaymentLabels) == 0 {
		return json.RawMessage("[]"), nil
	}
	return res.AvailablePaymentLabels, nil
}

func (c *TamaraClient) HandleWebhook(ctx context.Context, payload []byte) error {
	logging.FromContext(ctx, c.log).Info("webhook received",
		zap.String("gateway", Tamara), zap.ByteString("payload", payload))
	return nil
}

// ParseWebhook returns the Tamara order id of an order notification.
func (c *TamaraClient) ParseWebhook(payload []byte) (string, error) {
	var w struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &w); err != nil {
		return "", fmt.Errorf("tamara webhook: %w", err)
	}
	if w.OrderID == "" {
		return "", fmt.Errorf("tamara webhook: missing order_id")
	}
	return w.OrderID, nil
}
