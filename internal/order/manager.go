package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/events"
	"github.com/MikeMC777/ordenes-checkout/internal/logging"
	"github.com/MikeMC777/ordenes-checkout/internal/metrics"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

// Tx is the set of repositories bound to one database transaction.
type Tx interface {
	Orders() Repository
	Stock() product.Ledger
}

// Store runs fn in a transaction: every write made through the Tx commits
// together or not at all. The embedded Tx reads outside of any transaction.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(Tx) error) error
}

// MethodValidator reports whether a payment method names a known gateway.
type MethodValidator interface {
	IsSupported(name string) bool
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateInput struct {
	Items           []ItemInput
	PaymentMethod   string
	BillingAddress  Address
	ShippingAddress *Address
	Notes           string
	Discount        decimal.Decimal
}

// UpdateInput carries the fields a customer may change; nil means unchanged.
type UpdateInput struct {
	Notes           *string
	BillingAddress  *Address
	ShippingAddress *Address
}

type Manager struct {
	store         Store
	pricing       Pricing
	methods       MethodValidator
	defaultMethod string
	users         user.Repository
	events        events.Publisher
	log           *zap.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

type Option func(*Manager)

func WithPricing(p Pricing) Option           { return func(m *Manager) { m.pricing = p } }
func WithUsers(r user.Repository) Option     { return func(m *Manager) { m.users = r } }
func WithEvents(p events.Publisher) Option   { return func(m *Manager) { m.events = p } }
func WithLogger(l *zap.Logger) Option        { return func(m *Manager) { m.log = l } }
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }
func WithDefaultMethod(name string) Option   { return func(m *Manager) { m.defaultMethod = name } }
func WithClock(now func() time.Time) Option  { return func(m *Manager) { m.now = now } }

func NewManager(store Store, methods MethodValidator, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		pricing: DefaultPricing(),
		methods: methods,
		events:  events.Nop{},
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

const createAttempts = 3

// CreateOrder prices the items at their current catalog price, reserves the
// stock and persists the order in one transaction. Nothing is written when
// any item cannot be reserved.
func (m *Manager) CreateOrder(ctx context.Context, userID string, in CreateInput) (*Order, error) {
	log := logging.FromContext(ctx, m.log)
	if err := m.validateCreate(ctx, userID, &in); err != nil {
		m.metrics.OrderOperation("create", err)
		return nil, err
	}

	var (
		created *Order
		err     error
	)
	for attempt := 0; attempt < createAttempts; attempt++ {
		created, err = m.createOnce(ctx, userID, in)
		if !errors.Is(err, ErrDuplicateNumber) {
			break
		}
		log.Warn("order number collision, retrying", zap.Int("attempt", attempt+1))
	}
	m.metrics.OrderOperation("create", err)
	if err != nil {
		log.Warn("create order failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	log.Info("order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("total", created.Total.StringFixed(2)),
	)
	m.publish(ctx, events.New(events.OrderCreated, created.ID, created))
	return created, nil
}

func (m *Manager) createOnce(ctx context.Context, userID string, in CreateInput) (*Order, error) {
	now := m.now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		OrderNumber:     NewOrderNumber(now),
		UserID:          userID,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		Notes:           in.Notes,
		BillingAddress:  in.BillingAddress,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := m.store.InTx(ctx, func(tx Tx) error {
		subtotal := decimal.Zero
		for _, li := range in.Items {
			p, err := tx.Stock().FindByID(ctx, li.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &ValidationError{Field: "items", Reason: fmt.Sprintf("product %s not found", li.ProductID)}
				}
				return err
			}
			if p.Stock < li.Quantity {
				return &product.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: li.Quantity, Available: p.Stock}
			}
			if err := tx.Stock().Decrement(ctx, p.ID, li.Quantity); err != nil {
				return err
			}
			it := NewItem(o.ID, p.ID, p.Name, li.Quantity, p.Price)
			it.ID = uuid.NewString()
			o.Items = append(o.Items, it)
			subtotal = subtotal.Add(it.TotalPrice)
		}
		o.applyTotals(m.pricing.Totals(subtotal, in.Discount))
		return tx.Orders().Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (m *Manager) validateCreate(ctx context.Context, userID string, in *CreateInput) error {
	if userID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Reason: "required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be greater than zero"}
		}
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = m.defaultMethod
	}
	if m.methods != nil && !m.methods.IsSupported(in.PaymentMethod) {
		return &ValidationError{Field: "payment_method", Reason: fmt.Sprintf("unsupported payment method %q", in.PaymentMethod)}
	}
	if err := validateAddress("billing_address", in.BillingAddress); err != nil {
		return err
	}
	if in.ShippingAddress != nil {
		if err := validateAddress("shipping_address", *in.ShippingAddress); err != nil {
			return err
		}
	}
	if m.users != nil {
		if _, err := m.users.GetByID(ctx, userID); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return &ValidationError{Field: "user_id", Reason: "unknown user"}
			}
			return err
		}
	}
	return nil
}

func validateAddress(field string, a Address) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return &ValidationError{Field: field + ".name", Reason: "required"}
	case strings.TrimSpace(a.Phone) == "":
		return &ValidationError{Field: field + ".phone", Reason: "required"}
	case strings.TrimSpace(a.City) == "":
		return &ValidationError{Field: field + ".city", Reason: "required"}
	case strings.TrimSpace(a.Address) == "":
		return &ValidationError{Field: field + ".address", Reason: "required"}
	}
	return nil
}

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXXXX; uniqueness is enforced by
// the orders.order_number constraint.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

func (o *Order) applyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.Tax = t.Tax
	o.Shipping = t.Shipping
	o.Discount = t.Discount
	o.Total = t.Total
}

// GetOrder returns the order when userID owns it. An empty userID skips the
// ownership check.
func (m *Manager) GetOrder(ctx context.Context, id, userID string) (*Order, error) {
	o, err := m.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(o, userID) {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *Manager) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	return m.store.Orders().GetByNumber(ctx, number)
}

func (m *Manager) ListOrders(ctx context.Context, userID string, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown order status"}
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, &ValidationError{Field: "payment_status", Reason: "unknown payment status"}
	}
	return m.store.Orders().ListByUser(ctx, userID, f)
}

// UpdateOrder changes notes and addresses of an order that is not paid yet.
func (m *Manager) UpdateOrder(ctx context.Context, id, userID string, in UpdateInput) (*Order, error) {
	if in.BillingAddress != nil {
		if err := validateAddress("billing_address", *in.BillingAddress); err != nil {
			return nil, err
		}
	}
	if in.ShippingAddress != nil {
		if err := validateAddress("shipping_address", *in.ShippingAddress); err != nil {
			return nil, err
		}
	}

	var out *Order
	err := m.store.InTx(ctx, func(tx Tx) error {
		o, err := m.lockOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if o.IsPaid() {
			return ErrAlreadyPaid
		}
		if in.Notes != nil {
			o.Notes = *in.Notes
		}
		if in.BillingAddress != nil {
			o.BillingAddress = *in.BillingAddress
		}
		if in.ShippingAddress != nil {
			o.ShippingAddress = in.ShippingAddress
		}
		o.UpdatedAt = m.now().UTC()
		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	m.metrics.OrderOperation("update", err)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, m.log).Info("order updated", zap.String("order_id", id))
	return out, nil
}

// DeleteOrder restores the reserved stock and soft-deletes an unpaid order
// that never had a payment attempt. A cancelled order already gave its stock
// back.
func (m *Manager) DeleteOrder(ctx context.Context, id, userID string) error {
	err := m.store.InTx(ctx, func(tx Tx) error {
		o, err := m.lockOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if o.IsPaid() {
			return ErrAlreadyPaid
		}
		has, err := tx.Orders().HasPayments(ctx, o.ID)
		if err != nil {
			return err
		}
		if has {
			return ErrHasPayments
		}
		if o.Status != StatusCancelled {
			if err := m.RestoreStock(ctx, tx, o); err != nil {
				return err
			}
		}
		if err := tx.Orders().DeleteItems(ctx, o.ID); err != nil {
			return err
		}
		return tx.Orders().SoftDelete(ctx, o.ID)
	})
	m.metrics.OrderOperation("delete", err)
	if err != nil {
		return err
	}
	logging.FromContext(ctx, m.log).Info("order deleted", zap.String("order_id", id))
	m.publish(ctx, events.New(events.OrderDeleted, id, map[string]string{"order_id": id}))
	return nil
}

// CancelOrder returns the reserved stock and marks the order cancelled with a
// failed payment status.
func (m *Manager) CancelOrder(ctx context.Context, id, userID string) (*Order, error) {
	var out *Order
	err := m.store.InTx(ctx, func(tx Tx) error {
		o, err := m.lockOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if !o.CanBeCancelled() {
			return ErrNotCancellable
		}
		if err := m.RestoreStock(ctx, tx, o); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.PaymentStatus = PaymentFailed
		o.UpdatedAt = m.now().UTC()
		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	m.metrics.OrderOperation("cancel", err)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, m.log).Info("order cancelled",
		zap.String("order_id", out.ID), zap.String("order_number", out.OrderNumber))
	m.publish(ctx, events.New(events.OrderCancelled, out.ID, out))
	return out, nil
}

// ValidateStock reports whether every requested product exists with enough
// stock. Quantities of repeated products are summed. It writes nothing.
func (m *Manager) ValidateStock(ctx context.Context, items []ItemInput) (bool, error) {
	want := make(map[string]int, len(items))
	for _, it := range items {
		want[it.ProductID] += it.Quantity
	}
	for id, qty := range want {
		p, err := m.store.Stock().FindByID(ctx, id)
		if errors.Is(err, product.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if p.Stock < qty {
			return false, nil
		}
	}
	return true, nil
}

// UpdateOrderStatus sets the fulfilment status inside tx.
func (m *Manager) UpdateOrderStatus(ctx context.Context, tx Tx, o *Order, s Status) error {
	if !s.Valid() {
		return &ValidationError{Field: "order_status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
	old := o.Status
	o.Status = s
	o.UpdatedAt = m.now().UTC()
	if err := tx.Orders().Update(ctx, o); err != nil {
		o.Status = old
		return err
	}
	logging.FromContext(ctx, m.log).Info("order status updated",
		zap.String("order_id", o.ID), zap.String("from", string(old)), zap.String("to", string(s)))
	return nil
}

// UpdatePaymentStatus sets the payment status, and optionally the fulfilment
// status, inside tx.
func (m *Manager) UpdatePaymentStatus(ctx context.Context, tx Tx, o *Order, ps PaymentStatus, s Status) error {
	if !ps.Valid() {
		return &ValidationError{Field: "payment_status", Reason: fmt.Sprintf("unknown status %q", ps)}
	}
	if s != "" && !s.Valid() {
		return &ValidationError{Field: "order_status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
	oldPS, oldS := o.PaymentStatus, o.Status
	o.PaymentStatus = ps
	if s != "" {
		o.Status = s
	}
	o.UpdatedAt = m.now().UTC()
	if err := tx.Orders().Update(ctx, o); err != nil {
		o.PaymentStatus, o.Status = oldPS, oldS
		return err
	}
	logging.FromContext(ctx, m.log).Info("order payment status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(oldPS)),
		zap.String("to", string(ps)),
		zap.String("order_status", string(o.Status)),
	)
	return nil
}

// RestoreStock gives every item's quantity back to the ledger inside tx.
func (m *Manager) RestoreStock(ctx context.Context, tx Tx, o *Order) error {
	for _, it := range o.Items {
		if err := tx.Stock().Increment(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restore stock for %s: %w", it.ProductID, err)
		}
	}
	return nil
}

func (m *Manager) lockOwned(ctx context.Context, tx Tx, id, userID string) (*Order, error) {
	o, err := tx.Orders().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(o, userID) {
		return nil, ErrNotFound
	}
	return o, nil
}

func owns(o *Order, userID string) bool {
	return userID == "" || o.UserID == userID
}

func (m *Manager) publish(ctx context.Context, evs ...events.Event) {
	if err := m.events.Publish(ctx, evs...); err != nil {
		logging.FromContext(ctx, m.log).Error("publish events failed", zap.Error(err))
	}
}
