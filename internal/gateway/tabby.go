package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
)

// TabbyClient authorizes at checkout and captures later. Checkout returns a
// session id and a separate payment id; the payment id is the one every
// later call needs.
type TabbyClient struct {
	client
	currency string
}

const (
	tabbyAuthorized = "AUTHORIZED"
	tabbyClosed     = "CLOSED"
	tabbyRejected   = "rejected"
)

func NewTabby(cfg config.Gateway, d Deps) *TabbyClient {
	c := &TabbyClient{
		client:   newClient(Tabby, cfg, "https://api.tabby.ai/api/v2", d),
		currency: cfg.Currency,
	}
	if c.currency == "" {
		c.currency = "SAR"
	}
	return c
}

func (c *TabbyClient) Name() string { return Tabby }

func (c *TabbyClient) Currency() string { return c.currency }

type tabbyItem struct {
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	DiscountAmount string `json:"discount_amount"`
	ReferenceID    string `json:"reference_id"`
	Category       string `json:"category"`
}

func tabbyItems(o *order.Order) []tabbyItem {
	items := make([]tabbyItem, len(o.Items))
	for i, it := range o.Items {
		title := it.ProductName
		if title == "" {
			title = "Product"
		}
		items[i] = tabbyItem{
			Title:          title,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice.StringFixed(2),
			DiscountAmount: "0.00",
			ReferenceID:    it.ProductID,
			Category:       "product",
		}
	}
	return items
}

func (c *TabbyClient) CreateCheckoutSession(ctx context.Context, ck Checkout) (*Session, error) {
	o := ck.Order
	addr := o.DeliveryAddress()
	lang := c.cfg.Language
	if lang != "ar" {
		lang = "en"
	}
	registered := ck.Buyer.RegisteredSince
	if registered.IsZero() {
		registered = o.CreatedAt
	}
	payload := map[string]any{
		"payment": map[string]any{
			"amount":      o.Total.StringFixed(2),
			"currency":    c.currency,
			"description": "Order #" + o.OrderNumber,
			"buyer": map[string]any{
				"phone": ck.Buyer.Phone,
				"email": ck.Buyer.Email,
				"name":  ck.Buyer.Name,
				"dob":   ck.Buyer.DateOfBirth,
			},
			"shipping_address": map[string]string{
				"city":    addr.City,
				"address": addr.Address,
				"zip":     addr.Zip,
			},
			"order": map[string]any{
				"tax_amount":      o.Tax.StringFixed(2),
				"shipping_amount": o.Shipping.StringFixed(2),
				"discount_amount": o.Discount.StringFixed(2),
				"updated_at":      o.UpdatedAt.UTC().Format(time.RFC3339),
				"reference_id":    o.OrderNumber,
				"items":           tabbyItems(o),
			},
			"buyer_history": map[string]any{
				"registered_since":         registered.UTC().Format(time.RFC3339),
				"loyalty_level":            0,
				"is_phone_number_verified": ck.Buyer.Phone != "",
				"is_email_verified":        ck.Buyer.EmailVerified,
			},
		},
		"lang":          lang,
		"merchant_code": c.cfg.MerchantCode,
		"merchant_urls": map[string]string{
			"success": redirectURL(c.cfg.CallbackURL, Tabby, "success"),
			"cancel":  redirectURL(c.cfg.CallbackURL, Tabby, "cancel"),
			"failure": redirectURL(c.cfg.CallbackURL, Tabby, "failure"),
		},
	}

	var res struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Payment struct {
			ID string `json:"id"`
		} `json:"payment"`
		Configuration struct {
			AvailableProducts struct {
				Installments []struct {
					WebURL string `json:"web_url"`
				} `json:"installments"`
			} `json:"available_products"`
		} `json:"configuration"`
	}
	raw, err := c.do(ctx, call{method: http.MethodPost, path: "/checkout", label: "checkout", body: payload}, &res)
	if err != nil {
		return nil, err
	}
	if res.Status == tabbyRejected {
		return nil, &Error{Gateway: Tabby, Endpoint: "checkout", Message: "Tabby rejected the payment request"}
	}
	installments := res.Configuration.AvailableProducts.Installments
	if len(installments) == 0 || installments[0].WebURL == "" {
		return nil, &Error{Gateway: Tabby, Endpoint: "checkout", Message: "no payment url in response"}
	}
	id := res.Payment.ID
	if id == "" {
		id = res.ID
	}
	return &Session{PaymentURL: installments[0].WebURL, PaymentID: id, Raw: raw}, nil
}

func (c *TabbyClient) payment(ctx context.Context, paymentID string) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/payments/" + url.PathEscape(paymentID), label: "payments.get"}, &res)
	return res.Status, err
}

// VerifyPayment treats an authorized or already captured payment as paid.
func (c *TabbyClient) VerifyPayment(ctx context.Context, paymentID string) (bool, error) {
	status, err := c.payment(ctx, paymentID)
	if err != nil {
		return false, err
	}
	return status == tabbyAuthorized || status == tabbyClosed, nil
}

func (c *TabbyClient) CapturePayment(ctx context.Context, cp Capture) (*Result, error) {
	o := cp.Order
	payload := map[string]any{
		"amount":          o.Total.StringFixed(2),
		"tax_amount":      o.Tax.StringFixed(2),
		"shipping_amount": o.Shipping.StringFixed(2),
		"discount_amount": o.Discount.StringFixed(2),
		"created_at":      time.Now().UTC().Format(time.RFC3339),
		"items":           tabbyItems(o),
		"reference_id":    o.OrderNumber,
	}
	var res struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/payments/" + url.PathEscape(cp.PaymentID) + "/captures",
		label:  "payments.captures",
		body:   payload,
	}, &res)
	if err != nil {
		return nil, withKind(err, ErrCapture)
	}
	if res.Status != tabbyClosed {
		return nil, &Error{Gateway: Tabby, Endpoint: "payments.captures", Kind: ErrCapture,
			Message: fmt.Sprintf("Failed to capture Tabby payment (status %s)", res.Status)}
	}
	return &Result{ID: res.ID, Status: res.Status, Raw: raw}, nil
}

func (c *TabbyClient) RefundPayment(ctx context.Context, r Refund) (*Result, error) {
	var res struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/payments/" + url.PathEscape(r.PaymentID) + "/refunds",
		label:  "payments.refunds",
		body:   map[string]string{"amount": r.Amount.StringFixed(2), "reason": "Refund for order #" + r.OrderNumber},
	}, &res)
	if err != nil {
		return nil, withKind(err, ErrRefund)
	}
	return &Result{ID: res.ID, Status: res.Status, Raw: raw}, nil
}

func (c *TabbyClient) HandleWebhook(ctx context.Context, payload []byte) error {
	logging.FromContext(ctx, c.log).Info("webhook received",
		zap.String("gateway", Tabby), zap.ByteString("payload", payload))
	return nil
}

// ParseWebhook returns the payment id of a Tabby payment webhook.
func (c *TabbyClient) ParseWebhook(payload []byte) (string, error) {
	var w struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &w); err != nil {
		return "", fmt.Errorf("tabby webhook: %w", err)
	}
	if w.ID == "" {
		return "", fmt.Errorf("tabby webhook: missing id")
	}
	return w.ID, nil
}
