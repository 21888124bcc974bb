// Package payment drives checkout through the payment gateways and
// reconciles their answers into payment and order state.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/dedup"
	"github.com/MikeMC777/ordenes-checkout/internal/events"
	"github.com/MikeMC777/ordenes-checkout/internal/gateway"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/metrics"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

// Tx extends the order transaction with the payments table.
type Tx interface {
	order.Tx
	Payments() Repository
}

type Store interface {
	Tx
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Gateways resolves gateway clients by name.
type Gateways interface {
	Resolve(name string) (gateway.Gateway, error)
}

// CallbackIDParams are the query/form fields a provider may put the payment
// id in, in lookup order.
var CallbackIDParams = []string{"paymentId", "Id", "payment_id", "order_id", "orderId"}

// myFatoorahCallbackParams is the narrower set MyFatoorah uses.
var myFatoorahCallbackParams = []string{"paymentId", "Id"}

type Orchestrator struct {
	store    Store
	gateways Gateways
	orders   *order.Manager
	users    user.Repository
	dedup    dedup.Store
	dedupTTL time.Duration
	currency map[string]string
	events   events.Publisher
	log      *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithUsers(r user.Repository) Option    { return func(o *Orchestrator) { o.users = r } }
func WithEvents(p events.Publisher) Option  { return func(o *Orchestrator) { o.events = p } }
func WithLogger(l *zap.Logger) Option       { return func(o *Orchestrator) { o.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithDedup drops webhook deliveries already seen within ttl.
func WithDedup(s dedup.Store, ttl time.Duration) Option {
	return func(o *Orchestrator) { o.dedup, o.dedupTTL = s, ttl }
}

// WithCurrencies sets the currency recorded on payments per gateway.
func WithCurrencies(m map[string]string) Option {
	return func(o *Orchestrator) { o.currency = m }
}

func NewOrchestrator(store Store, gateways Gateways, orders *order.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		gateways: gateways,
		orders:   orders,
		dedupTTL: 24 * time.Hour,
		currency: map[string]string{},
		events:   events.Nop{},
		log:      zap.NewNop(),
		tracer:   otel.Tracer("checkout.payment"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InitiateResult is what the client needs to redirect the buyer.
type InitiateResult struct {
	Payment    *Payment `json:"payment"`
	PaymentURL string   `json:"payment_url"`
}

// Initiate opens a checkout session for a pending order and records a pending
// Payment. Each call is a new attempt with its own Payment row. Nothing is
// written when the gateway call fails.
func (m *Orchestrator) Initiate(ctx context.Context, orderID, userID string) (_ *InitiateResult, err error) {
	ctx, span := m.start(ctx, "payment.Initiate", attribute.String("order.id", orderID))
	defer func() { m.end(span, err) }()
	log := logging.FromContext(ctx, m.log)

	o, err := m.orders.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != order.PaymentPending || o.Status != order.StatusPending {
		return nil, ErrOrderNotPending
	}
	g, err := m.gateways.Resolve(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	session, err := g.CreateCheckoutSession(ctx, gateway.Checkout{Order: o, Buyer: m.buyer(ctx, o)})
	if err != nil {
		log.Error("checkout session failed",
			zap.String("order_id", o.ID), zap.String("gateway", g.Name()), zap.Error(err))
		return nil, err
	}

	now := m.now().UTC()
	p := &Payment{
		ID:              uuid.NewString(),
		OrderID:         o.ID,
		PaymentID:       session.PaymentID,
		Gateway:         g.Name(),
		Amount:          o.Total,
		Currency:        m.currencyFor(g),
		Status:          StatusPending,
		GatewayResponse: session.Raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.PaymentID == "" {
		p.PaymentID = "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	err = m.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Orders().GetForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if cur.PaymentStatus != order.PaymentPending || cur.Status != order.StatusPending {
			return ErrOrderNotPending
		}
		return tx.Payments().Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	m.metrics.PaymentTransition(p.Gateway, string(p.Status))
	log.Info("payment initiated",
		zap.String("order_id", o.ID),
		zap.String("gateway", p.Gateway),
		zap.String("payment_id", p.PaymentID),
	)
	return &InitiateResult{Payment: p, PaymentURL: session.PaymentURL}, nil
}

// Callback handles a buyer returning from the gateway. The payment id is taken
// from the first non-empty of the provider's callback parameters.
func (m *Orchestrator) Callback(ctx context.Context, gatewayName string, params map[string]string) (*Payment, error) {
	g, err := m.gateways.Resolve(gatewayName)
	if err != nil {
		return nil, err
	}
	keys := CallbackIDParams
	if g.Name() == gateway.MyFatoorah {
		keys = myFatoorahCallbackParams
	}
	var id string
	for _, k := range keys {
		if v := strings.TrimSpace(params[k]); v != "" {
			id = v
			break
		}
	}
	if id == "" {
		return nil, ErrMissingPaymentID
	}
	if _, ok := g.(gateway.ReferenceResolver); ok {
		return m.ReconcileByReference(ctx, g.Name(), id)
	}
	return m.Reconcile(ctx, g.Name(), id)
}

// Reconcile asks the gateway whether the payment was paid and applies the
// answer to the payment and its order atomically. Settled payments are
// returned unchanged, so repeated callbacks are harmless.
func (m *Orchestrator) Reconcile(ctx context.Context, gatewayName, paymentID string) (_ *Payment, err error) {
	ctx, span := m.start(ctx, "payment.Reconcile",
		attribute.String("gateway.name", gatewayName), attribute.String("payment.id", paymentID))
	defer func() { m.end(span, err) }()

	p, err := m.store.Payments().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if gatewayName != "" && !strings.EqualFold(p.Gateway, gatewayName) {
		return nil, ErrNotFound
	}
	if p.settled() {
		return p, nil
	}
	g, err := m.gateways.Resolve(p.Gateway)
	if err != nil {
		return nil, err
	}
	paid, err := g.VerifyPayment(ctx, p.PaymentID)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, p.ID, paid, "", nil)
}

// ReconcileByReference resolves a callback id that differs from the stored
// payment id: the gateway maps it to an order number, and the most recent
// payment of that order on this gateway is reconciled. The callback id is
// kept as the transaction id.
func (m *Orchestrator) ReconcileByReference(ctx context.Context, gatewayName, callbackID string) (_ *Payment, err error) {
	ctx, span := m.start(ctx, "payment.ReconcileByReference",
		attribute.String("gateway.name", gatewayName), attribute.String("callback.id", callbackID))
	defer func() { m.end(span, err) }()

	g, err := m.gateways.Resolve(gatewayName)
	if err != nil {
		return nil, err
	}
	rr, ok := g.(gateway.ReferenceResolver)
	if !ok {
		return m.Reconcile(ctx, g.Name(), callbackID)
	}
	ref, err := rr.ResolveReference(ctx, callbackID)
	if err != nil {
		return nil, err
	}
	if ref.OrderNumber == "" {
		return nil, ErrReferenceNotFound
	}
	o, err := m.orders.GetOrderByNumber(ctx, ref.OrderNumber)
	if err != nil {
		return nil, err
	}
	p, err := m.store.Payments().LatestForOrder(ctx, o.ID, g.Name())
	if err != nil {
		return nil, err
	}
	if p.settled() {
		return p, nil
	}
	return m.apply(ctx, p.ID, ref.Paid, callbackID, ref.Raw)
}

// apply moves a pending or failed payment to paid or failed together with its
// order.
func (m *Orchestrator) apply(ctx context.Context, id string, paid bool, transactionID string, detail json.RawMessage) (*Payment, error) {
	var (
		out     *Payment
		changed bool
		orphan  bool
	)
	err := m.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.Payments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = p
		if p.settled() {
			return nil
		}
		o, err := tx.Orders().GetForUpdate(ctx, p.OrderID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		if transactionID != "" {
			p.TransactionID = transactionID
		}
		if len(detail) > 0 {
			if err := p.MergeResponse("status", detail); err != nil {
				return err
			}
		}
		if paid {
			p.Status = StatusPaid
			p.PaidAt = &now
			// a cancelled order has released its stock and stays cancelled
			if o.Status == order.StatusCancelled {
				orphan = true
			} else if err := m.orders.UpdatePaymentStatus(ctx, tx, o, order.PaymentPaid, order.StatusProcessing); err != nil {
				return err
			}
		} else {
			p.Status = StatusFailed
			// another attempt may already have paid the order
			if !o.IsPaid() && o.PaymentStatus != order.PaymentRefunded {
				if err := m.orders.UpdatePaymentStatus(ctx, tx, o, order.PaymentFailed, ""); err != nil {
					return err
				}
			}
		}
		p.UpdatedAt = now
		changed = true
		return tx.Payments().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if orphan {
		logging.FromContext(ctx, m.log).Warn("payment settled for a cancelled order, refund required",
			zap.String("order_id", out.OrderID),
			zap.String("payment_id", out.PaymentID),
			zap.String("gateway", out.Gateway),
		)
	}
	if changed {
		m.afterTransition(ctx, out)
	}
	return out, nil
}

// Capture completes the order of a paid payment. The provider capture is
// best effort: auto-captured or already captured payments may reject it, and
// a rejection is logged without blocking completion.
func (m *Orchestrator) Capture(ctx context.Context, id string) (_ *Payment, err error) {
	ctx, span := m.start(ctx, "payment.Capture", attribute.String("payment.id", id))
	defer func() { m.end(span, err) }()
	log := logging.FromContext(ctx, m.log)

	p, err := m.store.Payments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsPaid() {
		return nil, ErrNotPaid
	}
	o, err := m.orders.GetOrder(ctx, p.OrderID, "")
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusCancelled {
		return nil, ErrOrderCancelled
	}
	g, err := m.gateways.Resolve(p.Gateway)
	if err != nil {
		return nil, err
	}
	res, cerr := g.CapturePayment(ctx, gateway.Capture{Order: o, PaymentID: p.PaymentID})
	if cerr != nil {
		log.Warn("provider capture failed, completing order",
			zap.String("payment_id", p.PaymentID), zap.String("gateway", p.Gateway), zap.Error(cerr))
		res = nil
	}

	var out *Payment
	err = m.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.Payments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsPaid() {
			return ErrNotPaid
		}
		o, err := tx.Orders().GetForUpdate(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if o.Status == order.StatusCancelled {
			return ErrOrderCancelled
		}
		if res != nil {
			if err := p.MergeResponse("capture", res); err != nil {
				return err
			}
		}
		p.UpdatedAt = m.now().UTC()
		if err := m.orders.UpdateOrderStatus(ctx, tx, o, order.StatusCompleted); err != nil {
			return err
		}
		out = p
		return tx.Payments().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Info("payment captured",
		zap.String("payment_id", out.PaymentID), zap.String("gateway", out.Gateway), zap.Bool("provider_capture", res != nil))
	m.publish(ctx, events.New(events.PaymentCaptured, out.OrderID, out))
	return out, nil
}

// Refund returns amount (the full payment when nil) through the gateway, then
// marks payment and order refunded and restores the stock unless the order
// was cancelled. Provider rejection leaves all state unchanged.
func (m *Orchestrator) Refund(ctx context.Context, id string, amount *decimal.Decimal) (_ *Payment, err error) {
	ctx, span := m.start(ctx, "payment.Refund", attribute.String("payment.id", id))
	defer func() { m.end(span, err) }()

	p, err := m.store.Payments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanBeRefunded() {
		return nil, ErrNotRefundable
	}
	amt := p.Amount
	if amount != nil {
		amt = *amount
	}
	if !amt.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amt.GreaterThan(p.Amount) {
		return nil, &RefundExceedsAmountError{Requested: amt, Available: p.Amount}
	}
	o, err := m.orders.GetOrder(ctx, p.OrderID, "")
	if err != nil {
		return nil, err
	}
	g, err := m.gateways.Resolve(p.Gateway)
	if err != nil {
		return nil, err
	}
	res, err := g.RefundPayment(ctx, gateway.Refund{
		PaymentID:   p.PaymentID,
		OrderNumber: o.OrderNumber,
		Amount:      amt,
		Currency:    p.Currency,
	})
	if err != nil {
		return nil, err
	}

	var out *Payment
	err = m.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.Payments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.CanBeRefunded() {
			return ErrNotRefundable
		}
		o, err := tx.Orders().GetForUpdate(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if err := p.MergeResponse("refund", map[string]any{
			"amount": amt.StringFixed(2),
			"result": res,
		}); err != nil {
			return err
		}
		p.Status = StatusRefunded
		p.UpdatedAt = m.now().UTC()
		if o.Status != order.StatusCancelled {
			if err := m.orders.RestoreStock(ctx, tx, o); err != nil {
				return err
			}
		}
		if err := m.orders.UpdatePaymentStatus(ctx, tx, o, order.PaymentRefunded, ""); err != nil {
			return err
		}
		out = p
		return tx.Payments().Update(ctx, p)
	})
	if err != nil {
		logging.FromContext(ctx, m.log).Error("refund accepted by gateway but not recorded",
			zap.String("payment_id", p.PaymentID), zap.String("gateway", p.Gateway), zap.Error(err))
		return nil, err
	}
	m.afterTransition(ctx, out)
	return out, nil
}

// HandleWebhook records a delivery with the gateway client. A trusted
// delivery whose payment id can be parsed is reconciled; processing errors
// are logged and swallowed. Only an unknown gateway is an error.
func (m *Orchestrator) HandleWebhook(ctx context.Context, gatewayName string, payload []byte, trusted bool) error {
	g, err := m.gateways.Resolve(gatewayName)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx, m.log).With(zap.String("gateway", g.Name()))

	if m.dedup != nil {
		first, err := m.dedup.FirstSeen(ctx, dedup.Key(g.Name(), payload), m.dedupTTL)
		switch {
		case err != nil:
			log.Warn("webhook dedup unavailable", zap.Error(err))
		case !first:
			log.Info("duplicate webhook ignored")
			m.metrics.Webhook(g.Name(), "duplicate")
			return nil
		}
	}

	if err := g.HandleWebhook(ctx, payload); err != nil {
		log.Error("webhook processing failed", zap.ByteString("payload", payload), zap.Error(err))
		m.metrics.Webhook(g.Name(), "error")
		return nil
	}

	wp, ok := g.(gateway.WebhookParser)
	if !trusted || !ok {
		m.metrics.Webhook(g.Name(), "logged")
		return nil
	}
	paymentID, err := wp.ParseWebhook(payload)
	if err != nil {
		log.Error("webhook payload not understood", zap.ByteString("payload", payload), zap.Error(err))
		m.metrics.Webhook(g.Name(), "error")
		return nil
	}
	p, err := m.Reconcile(ctx, g.Name(), paymentID)
	if err != nil {
		log.Error("webhook reconcile failed",
			zap.String("payment_id", paymentID), zap.ByteString("payload", payload), zap.Error(err))
		m.metrics.Webhook(g.Name(), "error")
		return nil
	}
	log.Info("webhook reconciled", zap.String("payment_id", paymentID), zap.String("status", string(p.Status)))
	m.metrics.Webhook(g.Name(), "reconciled")
	return nil
}

func (m *Orchestrator) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return m.store.Payments().GetByID(ctx, id)
}

// ListByOrder returns the payment attempts of an order owned by userID,
// newest first.
func (m *Orchestrator) ListByOrder(ctx context.Context, orderID, userID string) ([]Payment, error) {
	if _, err := m.orders.GetOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}
	return m.store.Payments().ListByOrder(ctx, orderID)
}

// PaymentMethods returns the options a gateway offers for the query.
func (m *Orchestrator) PaymentMethods(ctx context.Context, gatewayName string, q gateway.MethodsQuery) (json.RawMessage, error) {
	g, err := m.gateways.Resolve(gatewayName)
	if err != nil {
		return nil, err
	}
	ml, ok := g.(gateway.MethodLister)
	if !ok {
		return nil, fmt.Errorf("%s: %w", g.Name(), ErrMethodsUnsupported)
	}
	return ml.PaymentMethods(ctx, q)
}

func (m *Orchestrator) buyer(ctx context.Context, o *order.Order) gateway.Buyer {
	b := gateway.Buyer{
		Name:            o.BillingAddress.Name,
		Email:           o.BillingAddress.Email,
		Phone:           o.BillingAddress.Phone,
		RegisteredSince: o.CreatedAt,
	}
	if m.users == nil {
		return b
	}
	u, err := m.users.GetByID(ctx, o.UserID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logging.FromContext(ctx, m.log).Warn("buyer lookup failed", zap.String("user_id", o.UserID), zap.Error(err))
		}
		return b
	}
	if u.Name != "" {
		b.Name = u.Name
	}
	if u.Email != "" {
		b.Email = u.Email
	}
	if u.Phone != "" {
		b.Phone = u.Phone
	}
	b.DateOfBirth = u.DateOfBirth
	b.RegisteredSince = u.CreatedAt
	b.EmailVerified = u.EmailVerifiedAt != nil
	return b
}

func (m *Orchestrator) currencyFor(g gateway.Gateway) string {
	if c := m.currency[g.Name()]; c != "" {
		return c
	}
	if c, ok := g.(interface{ Currency() string }); ok {
		return c.Currency()
	}
	return "SAR"
}

func (m *Orchestrator) afterTransition(ctx context.Context, p *Payment) {
	m.metrics.PaymentTransition(p.Gateway, string(p.Status))
	logging.FromContext(ctx, m.log).Info("payment status updated",
		zap.String("payment_id", p.PaymentID),
		zap.String("gateway", p.Gateway),
		zap.String("order_id", p.OrderID),
		zap.String("status", string(p.Status)),
	)
	var typ string
	switch p.Status {
	case StatusPaid:
		typ = events.PaymentPaid
	case StatusFailed:
		typ = events.PaymentFailed
	case StatusRefunded:
		typ = events.PaymentRefunded
	default:
		return
	}
	m.publish(ctx, events.New(typ, p.OrderID, p))
}

func (m *Orchestrator) publish(ctx context.Context, evs ...events.Event) {
	if err := m.events.Publish(ctx, evs...); err != nil {
		logging.FromContext(ctx, m.log).Error("publish events failed", zap.Error(err))
	}
}

func (m *Orchestrator) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (m *Orchestrator) end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
