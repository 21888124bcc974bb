package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
)

// MyFatoorahClient captures automatically: a paid invoice needs no capture
// call. Checkout returns an InvoiceId while the callback carries a PaymentId,
// so it also resolves callback references.
type MyFatoorahClient struct {
	client
	currency string
}

const (
	myFatoorahPaid         = "Paid"
	myFatoorahMethodID     = 2
	myFatoorahKeyInvoiceID = "InvoiceId"
	myFatoorahKeyPaymentID = "PaymentId"
)

func NewMyFatoorah(cfg config.Gateway, d Deps) *MyFatoorahClient {
	c := &MyFatoorahClient{
		client:   newClient(MyFatoorah, cfg, "https://apitest.myfatoorah.com", d),
		currency: cfg.Currency,
	}
	if c.currency == "" {
		c.currency = "KWD"
	}
	c.errorText = myFatoorahErrorText
	return c
}

func (c *MyFatoorahClient) Name() string { return MyFatoorah }

// Currency is the ISO code amounts are sent in.
func (c *MyFatoorahClient) Currency() string { return c.currency }

// mfEnvelope wraps every MyFatoorah response.
type mfEnvelope struct {
	IsSuccess        bool            `json:"IsSuccess"`
	Message          string          `json:"Message"`
	ValidationErrors []mfFieldError  `json:"ValidationErrors"`
	Data             json.RawMessage `json:"Data"`
}

type mfFieldError struct {
	Name  string `json:"Name"`
	Error string `json:"Error"`
}

func myFatoorahErrorText(body []byte) string {
	var env mfEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return unknownError
	}
	return env.errorText()
}

func (e *mfEnvelope) errorText() string {
	if len(e.ValidationErrors) > 0 {
		parts := make([]string, 0, len(e.ValidationErrors))
		for _, v := range e.ValidationErrors {
			if v.Error != "" {
				parts = append(parts, v.Error)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return unknownError
}

// post calls a v2 endpoint, rejects IsSuccess=false and decodes Data into out.
func (c *MyFatoorahClient) post(ctx context.Context, endpoint string, body, out any) (json.RawMessage, error) {
	var env mfEnvelope
	raw, err := c.do(ctx, call{method: http.MethodPost, path: "/v2/" + endpoint, label: endpoint, body: body}, &env)
	if err != nil {
		return raw, err
	}
	if !env.IsSuccess {
		return raw, &Error{Gateway: MyFatoorah, Endpoint: endpoint, Status: http.StatusOK, Message: env.errorText()}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return raw, &Error{Gateway: MyFatoorah, Endpoint: endpoint, Message: "malformed response", Err: err}
		}
	}
	return raw, nil
}

// Invoice is the GetPaymentStatus detail.
type Invoice struct {
	InvoiceID         flexID `json:"InvoiceId"`
	InvoiceStatus     string `json:"InvoiceStatus"`
	InvoiceReference  string `json:"InvoiceReference"`
	CustomerReference string `json:"CustomerReference"`
	UserDefinedField  string `json:"UserDefinedField"`
}

func (c *MyFatoorahClient) CreateCheckoutSession(ctx context.Context, ck Checkout) (*Session, error) {
	o := ck.Order
	lang := c.cfg.Language
	if lang != "ar" {
		lang = "en"
	}
	payload := map[string]any{
		"PaymentMethodId":    myFatoorahMethodID,
		"CustomerName":       ck.Buyer.Name,
		"CustomerEmail":      ck.Buyer.Email,
		"CustomerMobile":     ck.Buyer.Phone,
		"InvoiceValue":       number(o.Total),
		"DisplayCurrencyIso": c.currency,
		"CallBackUrl":        c.cfg.CallbackURL,
		"ErrorUrl":           c.cfg.ErrorURL,
		"Language":           lang,
		"CustomerReference":  o.OrderNumber,
		"UserDefinedField":   o.ID,
	}
	var data struct {
		InvoiceID  flexID `json:"InvoiceId"`
		PaymentURL string `json:"PaymentURL"`
	}
	raw, err := c.post(ctx, "ExecutePayment", payload, &data)
	if err != nil {
		return nil, err
	}
	if data.PaymentURL == "" {
		return nil, &Error{Gateway: MyFatoorah, Endpoint: "ExecutePayment", Message: "no payment url in response"}
	}
	return &Session{PaymentURL: data.PaymentURL, PaymentID: string(data.InvoiceID), Raw: raw}, nil
}

// PaymentStatus returns the invoice detail for key, which is either an
// InvoiceId or a PaymentId depending on keyType.
func (c *MyFatoorahClient) PaymentStatus(ctx context.Context, key, keyType string) (*Invoice, json.RawMessage, error) {
	var st Invoice
	raw, err := c.post(ctx, "GetPaymentStatus", map[string]string{"Key": key, "KeyType": keyType}, &st)
	if err != nil {
		return nil, raw, err
	}
	return &st, raw, nil
}

// VerifyPayment checks the invoice id stored at checkout.
func (c *MyFatoorahClient) VerifyPayment(ctx context.Context, paymentID string) (bool, error) {
	st, _, err := c.PaymentStatus(ctx, paymentID, myFatoorahKeyInvoiceID)
	if err != nil {
		return false, err
	}
	return st.InvoiceStatus == myFatoorahPaid, nil
}

// ResolveReference maps a callback PaymentId to the order number sent as
// CustomerReference at checkout.
func (c *MyFatoorahClient) ResolveReference(ctx context.Context, callbackID string) (*Reference, error) {
	st, raw, err := c.PaymentStatus(ctx, callbackID, myFatoorahKeyPaymentID)
	if err != nil {
		return nil, err
	}
	return &Reference{
		OrderNumber: st.CustomerReference,
		PaymentID:   string(st.InvoiceID),
		Paid:        st.InvoiceStatus == myFatoorahPaid,
		Raw:         raw,
	}, nil
}

// CapturePayment confirms the invoice is paid; MyFatoorah has no capture step.
func (c *MyFatoorahClient) CapturePayment(ctx context.Context, cp Capture) (*Result, error) {
	st, raw, err := c.PaymentStatus(ctx, cp.PaymentID, myFatoorahKeyInvoiceID)
	if err != nil {
		return nil, err
	}
	if st.InvoiceStatus != myFatoorahPaid {
		return nil, &Error{Gateway: MyFatoorah, Endpoint: "GetPaymentStatus", Kind: ErrCapture,
			Message: fmt.Sprintf("invoice status is %s", st.InvoiceStatus)}
	}
	return &Result{ID: string(st.InvoiceID), Status: st.InvoiceStatus, Raw: raw}, nil
}

func (c *MyFatoorahClient) RefundPayment(ctx context.Context, r Refund) (*Result, error) {
	payload := map[string]any{
		"KeyType":                 myFatoorahKeyInvoiceID,
		"Key":                     r.PaymentID,
		"RefundChargeOnCustomer":  false,
		"ServiceChargeOnCustomer": false,
		"Amount":                  number(r.Amount),
		"Comment":                 "Refund for order #" + r.OrderNumber,
	}
	var data struct {
		RefundID        flexID `json:"RefundId"`
		RefundReference string `json:"RefundReference"`
	}
	raw, err := c.post(ctx, "MakeRefund", payload, &data)
	if err != nil {
		return nil, withKind(err, ErrRefund)
	}
	return &Result{ID: string(data.RefundID), Status: data.RefundReference, Raw: raw}, nil
}

// PaymentMethods lists the methods enabled for amount (InitiatePayment).
func (c *MyFatoorahClient) PaymentMethods(ctx context.Context, q MethodsQuery) (json.RawMessage, error) {
	var data struct {
		PaymentMethods json.RawMessage `json:"PaymentMethods"`
	}
	payload := map[string]any{"InvoiceAmount": number(q.Amount), "CurrencyIso": c.currency}
	if _, err := c.post(ctx, "InitiatePayment", payload, &data); err != nil {
		return nil, err
	}
	if len(data.PaymentMethods) == 0 {
		return json.RawMessage("[]"), nil
	}
	return data.PaymentMethods, nil
}

func (c *MyFatoorahClient) HandleWebhook(ctx context.Context, payload []byte) error {
	logging.FromContext(ctx, c.log).Info("webhook received",
		zap.String("gateway", MyFatoorah), zap.ByteString("payload", payload))
	return nil
}

// ParseWebhook returns the InvoiceId of a transaction status webhook.
func (c *MyFatoorahClient) ParseWebhook(payload []byte) (string, error) {
	var w struct {
		Data struct {
			InvoiceID flexID `json:"InvoiceId"`
		} `json:"Data"`
	}
	if err := json.Unmarshal(payload, &w); err != nil {
		return "", fmt.Errorf("myfatoorah webhook: %w", err)
	}
	if w.Data.InvoiceID == "" {
		return "", fmt.Errorf("myfatoorah webhook: missing Data.InvoiceId")
	}
	return string(w.Data.InvoiceID), nil
}

// withKind tags a gateway error with a more specific kind.
func withKind(err error, kind error) error {
	if gerr, ok := err.(*Error); ok && gerr.Kind == nil {
		gerr.Kind = kind
	}
	return err
}
