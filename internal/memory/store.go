// Package memory is an in-process storage backend with the same
// transactional behaviour as the Postgres one. It backs local runs with
// STORAGE=memory and the package tests.
package memory

import (
	"context"
	"sync"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

type state struct {
	products map[string]product.Product
	users    map[string]user.User
	orders   map[string]order.Order
	payments map[string]payment.Payment
	seq      map[string]int64
	nextSeq  int64
}

func newState() *state {
	return &state{
		products: map[string]product.Product{},
		users:    map[string]user.User{},
		orders:   map[string]order.Order{},
		payments: map[string]payment.Payment{},
		seq:      map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products: make(map[string]product.Product, len(s.products)),
		users:    make(map[string]user.User, len(s.users)),
		orders:   make(map[string]order.Order, len(s.orders)),
		payments: make(map[string]payment.Payment, len(s.payments)),
		seq:      make(map[string]int64, len(s.seq)),
		nextSeq:  s.nextSeq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range s.payments {
		c.payments[k] = copyPayment(v)
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

// Store keeps every table in memory. Transactions are serialised: InTx works
// on a private copy of the state and swaps it in only when fn succeeds.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

func New() *Store { return &Store{st: newState()} }

// AddProduct seeds or replaces a catalog product.
func (s *Store) AddProduct(p product.Product) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// AddUser seeds or replaces a user.
func (s *Store) AddUser(u user.User) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

func (s *Store) Orders() order.Repository     { return &orderRepo{v: s.root()} }
func (s *Store) Stock() product.Ledger        { return &ledger{v: s.root()} }
func (s *Store) Payments() payment.Repository { return &paymentRepo{v: s.root()} }
func (s *Store) Users() user.Repository       { return &userRepo{v: s.root()} }

func (s *Store) root() *view { return &view{store: s} }

func (s *Store) inTx(ctx context.Context, fn func(*view) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&view{store: s, st: work}); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// OrderStore adapts s to order.Store.
func OrderStore(s *Store) order.Store { return orderStore{s} }

// PaymentStore adapts s to payment.Store.
func PaymentStore(s *Store) payment.Store { return paymentStore{s} }

type orderStore struct{ *Store }

func (o orderStore) InTx(ctx context.Context, fn func(order.Tx) error) error {
	return o.inTx(ctx, func(v *view) error { return fn(v) })
}

type paymentStore struct{ *Store }

func (p paymentStore) InTx(ctx context.Context, fn func(payment.Tx) error) error {
	return p.inTx(ctx, func(v *view) error { return fn(v) })
}

// view is either the committed state (st == nil) or a transaction's copy.
type view struct {
	store *Store
	st    *state
}

func (v *view) Orders() order.Repository     { return &orderRepo{v: v} }
func (v *view) Stock() product.Ledger        { return &ledger{v: v} }
func (v *view) Payments() payment.Repository { return &paymentRepo{v: v} }

func (v *view) read(fn func(*state)) {
	if v.st != nil {
		fn(v.st)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.st)
}

// write outside a transaction behaves as a single-statement transaction.
func (v *view) write(fn func(*state) error) error {
	if v.st != nil {
		return fn(v.st)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func copyOrder(o order.Order) order.Order {
	if o.Items != nil {
		o.Items = append([]order.Item(nil), o.Items...)
	}
	if o.ShippingAddress != nil {
		a := *o.ShippingAddress
		o.ShippingAddress = &a
	}
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		o.DeletedAt = &t
	}
	return o
}

func copyPayment(p payment.Payment) payment.Payment {
	if p.GatewayResponse != nil {
		p.GatewayResponse = append([]byte(nil), p.GatewayResponse...)
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		p.PaidAt = &t
	}
	return p
}

