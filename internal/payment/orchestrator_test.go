package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-checkout/internal/dedup"
	"github.com/MikeMC777/ordenes-checkout/internal/events"
	"github.com/MikeMC777/ordenes-checkout/internal/gateway"
	"github.com/MikeMC777/ordenes-checkout/internal/memory"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

//
// ===== fakes =====
//

type fakeGateway struct {
	name string

	mu         sync.Mutex
	sessionID  string
	sessionErr error
	paid       map[string]bool
	verifyErr  error
	captureErr error
	refundErr  error
	verifies   int
	refunds    []gateway.Refund
	hooks      int
}

func newFake(name string) *fakeGateway {
	return &fakeGateway{name: name, sessionID: name + "-1", paid: map[string]bool{}}
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, ck gateway.Checkout) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	return &gateway.Session{
		PaymentURL: "https://pay.example/" + ck.Order.OrderNumber,
		PaymentID:  g.sessionID,
		Raw:        json.RawMessage(`{"ok":true}`),
	}, nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	if g.verifyErr != nil {
		return false, g.verifyErr
	}
	return g.paid[id], nil
}

func (g *fakeGateway) CapturePayment(_ context.Context, cp gateway.Capture) (*gateway.Result, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &gateway.Result{ID: "cap-" + cp.PaymentID, Status: "CLOSED"}, nil
}

func (g *fakeGateway) RefundPayment(_ context.Context, r gateway.Refund) (*gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, r)
	return &gateway.Result{ID: "ref-" + r.PaymentID}, nil
}

func (g *fakeGateway) HandleWebhook(context.Context, []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks++
	return nil
}

func (g *fakeGateway) ParseWebhook(payload []byte) (string, error) {
	var w struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &w); err != nil || w.ID == "" {
		return "", errors.New("no id")
	}
	return w.ID, nil
}

func (g *fakeGateway) setPaid(id string, paid bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paid[id] = paid
}

// resolvingGateway reports a different id in its callbacks than the one
// returned at checkout.
type resolvingGateway struct {
	*fakeGateway
	refs map[string]*gateway.Reference
}

func (g *resolvingGateway) ResolveReference(_ context.Context, callbackID string) (*gateway.Reference, error) {
	ref, ok := g.refs[callbackID]
	if !ok {
		return nil, &gateway.Error{Gateway: g.name, Endpoint: "getPaymentStatus", Message: "Invalid key"}
	}
	return ref, nil
}

// failingStore breaks the payments update inside every transaction.
type failingStore struct{ payment.Store }

func (f failingStore) InTx(ctx context.Context, fn func(payment.Tx) error) error {
	return f.Store.InTx(ctx, func(tx payment.Tx) error { return fn(failingTx{tx}) })
}

type failingTx struct{ payment.Tx }

func (t failingTx) Payments() payment.Repository { return failingPayments{t.Tx.Payments()} }

type failingPayments struct{ payment.Repository }

func (failingPayments) Update(context.Context, *payment.Payment) error {
	return errors.New("connection reset")
}

//
// ===== fixture =====
//

type fixture struct {
	store  *memory.Store
	orders *order.Manager
	orch   *payment.Orchestrator
	tabby  *fakeGateway
	mf     *resolvingGateway
	rec    *events.Recorder
}

func newFixture(t *testing.T, opts ...payment.Option) *fixture {
	t.Helper()
	s := memory.New()
	s.AddProduct(product.Product{ID: "p1", Name: "Keyboard", Price: decimal.NewFromInt(100), Stock: 10})
	s.AddUser(user.User{ID: "u1", Name: "Sara", Email: "sara@example.com", Phone: "+966500000000", CreatedAt: time.Now()})

	tabby := newFake(gateway.Tabby)
	mf := &resolvingGateway{fakeGateway: newFake(gateway.MyFatoorah), refs: map[string]*gateway.Reference{}}
	reg := gateway.NewRegistry(tabby, mf)
	rec := &events.Recorder{}

	orders := order.NewManager(memory.OrderStore(s), reg, order.WithUsers(s.Users()))
	opts = append([]payment.Option{
		payment.WithUsers(s.Users()),
		payment.WithEvents(rec),
		payment.WithDedup(dedup.NewMemoryStore(), time.Hour),
	}, opts...)
	orch := payment.NewOrchestrator(memory.PaymentStore(s), reg, orders, opts...)
	return &fixture{store: s, orders: orders, orch: orch, tabby: tabby, mf: mf, rec: rec}
}

func (f *fixture) order(t *testing.T, method string) *order.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), "u1", order.CreateInput{
		Items:         []order.ItemInput{{ProductID: "p1", Quantity: 2}},
		PaymentMethod: method,
		BillingAddress: order.Address{
			Name: "Sara", Phone: "+966500000000", City: "Riyadh", Address: "King Fahd Rd 1",
		},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) reload(t *testing.T, o *order.Order) *order.Order {
	t.Helper()
	got, err := f.orders.GetOrder(context.Background(), o.ID, "")
	require.NoError(t, err)
	return got
}

func (f *fixture) payment(t *testing.T, id string) *payment.Payment {
	t.Helper()
	p, err := f.orch.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.Stock().FindByID(context.Background(), "p1")
	require.NoError(t, err)
	return p.Stock
}

// paid runs an order through initiate and a successful reconcile.
func (f *fixture) paid(t *testing.T) (*order.Order, *payment.Payment) {
	t.Helper()
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.setPaid(res.Payment.PaymentID, true)
	p, err := f.orch.Reconcile(context.Background(), gateway.Tabby, res.Payment.PaymentID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, p.Status)
	return f.reload(t, o), p
}

//
// ===== Initiate =====
//

func TestInitiate_CreatesPendingPayment(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)

	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/"+o.OrderNumber, res.PaymentURL)

	p := res.Payment
	assert.Equal(t, "tabby-1", p.PaymentID)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, "280.00", p.Amount.StringFixed(2))
	assert.Equal(t, "SAR", p.Currency)
	assert.Nil(t, p.PaidAt)
	assert.JSONEq(t, `{"ok":true}`, string(p.GatewayResponse))

	list, err := f.orch.ListByOrder(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInitiate_GatewayFailureCreatesNothing(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	f.tabby.sessionErr = &gateway.Error{Gateway: gateway.Tabby, Endpoint: "checkout", Status: 400, Message: "buyer.phone is invalid"}

	_, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.ErrorIs(t, err, gateway.ErrGateway)
	assert.Contains(t, err.Error(), "buyer.phone is invalid")

	list, err := f.orch.ListByOrder(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInitiate_RetryCreatesFreshRow(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)

	first, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.sessionID = "tabby-2"
	second, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Payment.ID, second.Payment.ID)

	list, err := f.orch.ListByOrder(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, second.Payment.ID, list[0].ID)
}

func TestInitiate_GeneratesIDWhenGatewayReturnsNone(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	f.tabby.sessionID = ""

	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Regexp(t, `^pay_[0-9a-f]{32}$`, res.Payment.PaymentID)
}

func TestInitiate_Preconditions(t *testing.T) {
	f := newFixture(t)
	o, _ := f.paid(t)

	_, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	assert.ErrorIs(t, err, payment.ErrOrderNotPending)

	_, err = f.orch.Initiate(context.Background(), o.ID, "u2")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

//
// ===== Reconcile =====
//

func TestReconcile_Paid(t *testing.T) {
	f := newFixture(t)
	o, p := f.paid(t)

	assert.NotNil(t, p.PaidAt)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Contains(t, f.rec.Types(), events.PaymentPaid)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, p := f.paid(t)
	calls := f.tabby.verifies

	again, err := f.orch.Reconcile(context.Background(), gateway.Tabby, p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, again.Status)
	assert.Equal(t, p.PaidAt.Unix(), again.PaidAt.Unix())
	assert.Equal(t, calls, f.tabby.verifies)
}

func TestReconcile_NotPaidKeepsOrderStatus(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	p, err := f.orch.Reconcile(context.Background(), gateway.Tabby, res.Payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Nil(t, p.PaidAt)

	got := f.reload(t, o)
	assert.Equal(t, order.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Contains(t, f.rec.Types(), events.PaymentFailed)
}

func TestReconcile_TimeoutLeavesPending(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.verifyErr = &gateway.Error{Gateway: gateway.Tabby, Endpoint: "payments.get", Message: "timeout", Err: context.DeadlineExceeded}

	_, err = f.orch.Reconcile(context.Background(), gateway.Tabby, res.Payment.PaymentID)
	require.ErrorIs(t, err, gateway.ErrGateway)

	assert.Equal(t, payment.StatusPending, f.payment(t, res.Payment.ID).Status)
	assert.Equal(t, order.PaymentPending, f.reload(t, o).PaymentStatus)
}

func TestReconcile_AtomicWhenWriteFails(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.setPaid(res.Payment.PaymentID, true)

	broken := payment.NewOrchestrator(failingStore{memory.PaymentStore(f.store)}, gateway.NewRegistry(f.tabby), f.orders)
	_, err = broken.Reconcile(context.Background(), gateway.Tabby, res.Payment.PaymentID)
	require.Error(t, err)

	assert.Equal(t, payment.StatusPending, f.payment(t, res.Payment.ID).Status)
	got := f.reload(t, o)
	assert.Equal(t, order.PaymentPending, got.PaymentStatus)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestReconcile_WrongGateway(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	_, err = f.orch.Reconcile(context.Background(), gateway.MyFatoorah, res.Payment.PaymentID)
	assert.ErrorIs(t, err, payment.ErrNotFound)
	_, err = f.orch.Reconcile(context.Background(), gateway.Tabby, "unknown")
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestReconcile_FailedAttemptDoesNotUnpayOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	stale, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.sessionID = "tabby-2"
	fresh, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	f.tabby.setPaid("tabby-2", true)
	_, err = f.orch.Reconcile(context.Background(), gateway.Tabby, fresh.Payment.PaymentID)
	require.NoError(t, err)

	p, err := f.orch.Reconcile(context.Background(), gateway.Tabby, stale.Payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, order.PaymentPaid, f.reload(t, o).PaymentStatus)
}

//
// ===== Reference lookup / callbacks =====
//

func TestReconcileByReference_UsesLatestPayment(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.MyFatoorah)
	f.mf.sessionID = "inv-1"
	older, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.mf.sessionID = "inv-2"
	latest, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	f.mf.refs["07072345"] = &gateway.Reference{OrderNumber: o.OrderNumber, PaymentID: "07072345", Paid: true, Raw: json.RawMessage(`{"InvoiceStatus":"Paid"}`)}

	p, err := f.orch.ReconcileByReference(context.Background(), gateway.MyFatoorah, "07072345")
	require.NoError(t, err)
	assert.Equal(t, latest.Payment.ID, p.ID)
	assert.Equal(t, payment.StatusPaid, p.Status)
	assert.Equal(t, "07072345", p.TransactionID)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(p.GatewayResponse, &doc))
	assert.Contains(t, doc, "status")

	assert.Equal(t, payment.StatusPending, f.payment(t, older.Payment.ID).Status)
	assert.Equal(t, order.PaymentPaid, f.reload(t, o).PaymentStatus)
}

func TestReconcileByReference_Errors(t *testing.T) {
	f := newFixture(t)
	f.mf.refs["no-ref"] = &gateway.Reference{PaymentID: "no-ref"}
	f.mf.refs["ghost"] = &gateway.Reference{OrderNumber: "ORD-20990101-DEADBEEF", PaymentID: "ghost"}

	_, err := f.orch.ReconcileByReference(context.Background(), gateway.MyFatoorah, "no-ref")
	assert.ErrorIs(t, err, payment.ErrReferenceNotFound)

	_, err = f.orch.ReconcileByReference(context.Background(), gateway.MyFatoorah, "ghost")
	assert.ErrorIs(t, err, order.ErrNotFound)

	_, err = f.orch.ReconcileByReference(context.Background(), gateway.MyFatoorah, "missing")
	assert.ErrorIs(t, err, gateway.ErrGateway)
}

func TestCallback_ExtractsID(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.setPaid(res.Payment.PaymentID, true)

	p, err := f.orch.Callback(context.Background(), "Tabby", map[string]string{"payment_id": res.Payment.PaymentID})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status)

	_, err = f.orch.Callback(context.Background(), gateway.Tabby, map[string]string{"status": "success"})
	assert.ErrorIs(t, err, payment.ErrMissingPaymentID)

	_, err = f.orch.Callback(context.Background(), "paypal", map[string]string{"paymentId": "x"})
	var ue *gateway.UnsupportedError
	assert.ErrorAs(t, err, &ue)
}

func TestCallback_MyFatoorahResolvesReference(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.MyFatoorah)
	_, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.mf.refs["100200"] = &gateway.Reference{OrderNumber: o.OrderNumber, PaymentID: "100200", Paid: false}

	p, err := f.orch.Callback(context.Background(), gateway.MyFatoorah, map[string]string{"paymentId": "100200"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, "100200", p.TransactionID)

	_, err = f.orch.Callback(context.Background(), gateway.MyFatoorah, map[string]string{"order_id": "100200"})
	assert.ErrorIs(t, err, payment.ErrMissingPaymentID)
}

//
// ===== Capture / Refund =====
//

func TestCapture(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	_, err = f.orch.Capture(context.Background(), res.Payment.ID)
	assert.ErrorIs(t, err, payment.ErrNotPaid)

	f.tabby.setPaid(res.Payment.PaymentID, true)
	_, err = f.orch.Reconcile(context.Background(), gateway.Tabby, res.Payment.PaymentID)
	require.NoError(t, err)

	p, err := f.orch.Capture(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status)
	assert.Contains(t, string(p.GatewayResponse), `"capture"`)
	assert.Equal(t, order.StatusCompleted, f.reload(t, o).Status)
	assert.Contains(t, f.rec.Types(), events.PaymentCaptured)
}

func TestCapture_ProviderFailureStillCompletes(t *testing.T) {
	f := newFixture(t)
	o, p := f.paid(t)
	f.tabby.captureErr = &gateway.Error{Gateway: gateway.Tabby, Endpoint: "payments.capture", Kind: gateway.ErrCapture, Message: "already captured"}

	got, err := f.orch.Capture(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, got.Status)
	assert.NotContains(t, string(got.GatewayResponse), `"capture"`)
	assert.Equal(t, order.StatusCompleted, f.reload(t, o).Status)
	assert.Contains(t, f.rec.Types(), events.PaymentCaptured)
}

func TestPaidAfterCancel_OrderStaysCancelled(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	_, err = f.orders.CancelOrder(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, 10, f.stock(t))

	f.tabby.setPaid(res.Payment.PaymentID, true)
	p, err := f.orch.Reconcile(context.Background(), gateway.Tabby, res.Payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status)
	got := f.reload(t, o)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, order.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, 10, f.stock(t))

	_, err = f.orch.Capture(context.Background(), p.ID)
	assert.ErrorIs(t, err, payment.ErrOrderCancelled)
	assert.Equal(t, order.StatusCancelled, f.reload(t, o).Status)

	refunded, err := f.orch.Refund(context.Background(), p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, refunded.Status)
	got = f.reload(t, o)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, order.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, 10, f.stock(t))
}

func TestRefund_Full(t *testing.T) {
	f := newFixture(t)
	o, p := f.paid(t)
	require.Equal(t, 8, f.stock(t))

	got, err := f.orch.Refund(context.Background(), p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, got.Status)
	assert.Equal(t, order.PaymentRefunded, f.reload(t, o).PaymentStatus)
	assert.Equal(t, 10, f.stock(t))

	require.Len(t, f.tabby.refunds, 1)
	assert.Equal(t, "280.00", f.tabby.refunds[0].Amount.StringFixed(2))
	assert.Equal(t, o.OrderNumber, f.tabby.refunds[0].OrderNumber)
	assert.Contains(t, f.rec.Types(), events.PaymentRefunded)

	_, err = f.orch.Refund(context.Background(), p.ID, nil)
	assert.ErrorIs(t, err, payment.ErrNotRefundable)
	assert.Equal(t, 10, f.stock(t))
}

func TestRefund_ExceedsAmountChangesNothing(t *testing.T) {
	f := newFixture(t)
	o, p := f.paid(t)

	amt := decimal.RequireFromString("280.01")
	_, err := f.orch.Refund(context.Background(), p.ID, &amt)
	var ee *payment.RefundExceedsAmountError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, payment.ErrRefundExceedsAmount)
	assert.Equal(t, "280.00", ee.Available.StringFixed(2))

	assert.Equal(t, payment.StatusPaid, f.payment(t, p.ID).Status)
	assert.Equal(t, order.PaymentPaid, f.reload(t, o).PaymentStatus)
	assert.Equal(t, 8, f.stock(t))
	assert.Empty(t, f.tabby.refunds)
}

func TestRefund_InvalidAndRejected(t *testing.T) {
	f := newFixture(t)
	o, p := f.paid(t)

	zero := decimal.Zero
	_, err := f.orch.Refund(context.Background(), p.ID, &zero)
	assert.ErrorIs(t, err, payment.ErrInvalidAmount)

	f.tabby.refundErr = &gateway.Error{Gateway: gateway.Tabby, Endpoint: "payments.refund", Kind: gateway.ErrRefund, Message: "refund window closed"}
	part := decimal.NewFromInt(50)
	_, err = f.orch.Refund(context.Background(), p.ID, &part)
	assert.ErrorIs(t, err, gateway.ErrRefund)
	assert.Equal(t, payment.StatusPaid, f.payment(t, p.ID).Status)
	assert.Equal(t, order.PaymentPaid, f.reload(t, o).PaymentStatus)
	assert.Equal(t, 8, f.stock(t))
}

func TestRefund_NotPaid(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	_, err = f.orch.Refund(context.Background(), res.Payment.ID, nil)
	assert.ErrorIs(t, err, payment.ErrNotRefundable)
}

//
// ===== Webhooks =====
//

func TestHandleWebhook_UntrustedOnlyLogs(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.setPaid(res.Payment.PaymentID, true)

	body := []byte(`{"id":"` + res.Payment.PaymentID + `"}`)
	require.NoError(t, f.orch.HandleWebhook(context.Background(), gateway.Tabby, body, false))
	assert.Equal(t, 1, f.tabby.hooks)
	assert.Equal(t, payment.StatusPending, f.payment(t, res.Payment.ID).Status)
}

func TestHandleWebhook_TrustedReconcilesOnce(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	f.tabby.setPaid(res.Payment.PaymentID, true)

	body := []byte(`{"id":"` + res.Payment.PaymentID + `","status":"authorized"}`)
	require.NoError(t, f.orch.HandleWebhook(context.Background(), gateway.Tabby, body, true))
	assert.Equal(t, payment.StatusPaid, f.payment(t, res.Payment.ID).Status)
	assert.Equal(t, order.PaymentPaid, f.reload(t, o).PaymentStatus)

	require.NoError(t, f.orch.HandleWebhook(context.Background(), gateway.Tabby, body, true))
	assert.Equal(t, 1, f.tabby.hooks, "duplicate delivery is dropped")
}

func TestHandleWebhook_SwallowsProcessingErrors(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.orch.HandleWebhook(context.Background(), gateway.Tabby, []byte(`not json`), true))
	assert.NoError(t, f.orch.HandleWebhook(context.Background(), gateway.Tabby, []byte(`{"id":"unknown"}`), true))

	err := f.orch.HandleWebhook(context.Background(), "paypal", []byte(`{}`), true)
	assert.ErrorIs(t, err, gateway.ErrUnsupported)
}

//
// ===== Queries =====
//

func TestListByOrder_OwnerScoped(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, gateway.Tabby)
	_, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)

	_, err = f.orch.ListByOrder(context.Background(), o.ID, "u2")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestPaymentMethods_Unsupported(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.PaymentMethods(context.Background(), gateway.Tabby, gateway.MethodsQuery{Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, payment.ErrMethodsUnsupported)
}

func TestInitiate_CurrencyOverride(t *testing.T) {
	f := newFixture(t, payment.WithCurrencies(map[string]string{gateway.Tabby: "AED"}))
	o := f.order(t, gateway.Tabby)
	res, err := f.orch.Initiate(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "AED", res.Payment.Currency)
}
