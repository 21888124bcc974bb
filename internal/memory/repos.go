package memory

import (
	"context"
	"sort"
	"time"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

//
// ===== products =====
//

type ledger struct{ v *view }

func (l *ledger) FindByID(_ context.Context, id string) (*product.Product, error) {
	var (
		p  product.Product
		ok bool
	)
	l.v.read(func(s *state) { p, ok = s.products[id] })
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (l *ledger) Decrement(_ context.Context, id string, qty int) error {
	if qty <= 0 {
		return product.ErrInvalidQuantity
	}
	return l.v.write(func(s *state) error {
		p, ok := s.products[id]
		if !ok {
			return product.ErrNotFound
		}
		if p.Stock < qty {
			return &product.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock}
		}
		p.Stock -= qty
		p.UpdatedAt = time.Now().UTC()
		s.products[id] = p
		return nil
	})
}

func (l *ledger) Increment(_ context.Context, id string, qty int) error {
	if qty <= 0 {
		return product.ErrInvalidQuantity
	}
	return l.v.write(func(s *state) error {
		p, ok := s.products[id]
		if !ok {
			return product.ErrNotFound
		}
		p.Stock += qty
		p.UpdatedAt = time.Now().UTC()
		s.products[id] = p
		return nil
	})
}

//
// ===== users =====
//

type userRepo struct{ v *view }

func (r *userRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	var (
		u  user.User
		ok bool
	)
	r.v.read(func(s *state) { u, ok = s.users[id] })
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

//
// ===== orders =====
//

type orderRepo struct{ v *view }

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	return r.v.write(func(s *state) error {
		for _, cur := range s.orders {
			if cur.OrderNumber == o.OrderNumber {
				return order.ErrDuplicateNumber
			}
		}
		s.nextSeq++
		s.seq[o.ID] = s.nextSeq
		s.orders[o.ID] = copyOrder(*o)
		return nil
	})
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	return r.find(func(o *order.Order) bool { return o.ID == id })
}

// GetForUpdate needs no row lock here: transactions are already serialised.
func (r *orderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	return r.find(func(o *order.Order) bool { return o.OrderNumber == number })
}

func (r *orderRepo) find(match func(*order.Order) bool) (*order.Order, error) {
	var found *order.Order
	r.v.read(func(s *state) {
		for _, o := range s.orders {
			if o.DeletedAt == nil && match(&o) {
				c := copyOrder(o)
				found = &c
				return
			}
		}
	})
	if found == nil {
		return nil, order.ErrNotFound
	}
	return found, nil
}

func (r *orderRepo) ListByUser(_ context.Context, userID string, f order.Filter) ([]order.Order, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	var (
		out []order.Order
		seq = map[string]int64{}
	)
	r.v.read(func(s *state) {
		for _, o := range s.orders {
			if o.UserID != userID || o.DeletedAt != nil {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
				continue
			}
			out = append(out, copyOrder(o))
			seq[o.ID] = s.seq[o.ID]
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return seq[out[i].ID] > seq[out[j].ID]
	})
	if f.Offset >= len(out) {
		return []order.Order{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *orderRepo) Update(_ context.Context, o *order.Order) error {
	return r.v.write(func(s *state) error {
		cur, ok := s.orders[o.ID]
		if !ok || cur.DeletedAt != nil {
			return order.ErrNotFound
		}
		next := copyOrder(*o)
		next.Items = cur.Items
		next.DeletedAt = cur.DeletedAt
		s.orders[o.ID] = next
		return nil
	})
}

func (r *orderRepo) DeleteItems(_ context.Context, orderID string) error {
	return r.v.write(func(s *state) error {
		o, ok := s.orders[orderID]
		if !ok {
			return order.ErrNotFound
		}
		o.Items = nil
		s.orders[orderID] = o
		return nil
	})
}

func (r *orderRepo) SoftDelete(_ context.Context, id string) error {
	return r.v.write(func(s *state) error {
		o, ok := s.orders[id]
		if !ok || o.DeletedAt != nil {
			return order.ErrNotFound
		}
		now := time.Now().UTC()
		o.DeletedAt = &now
		o.UpdatedAt = now
		s.orders[id] = o
		return nil
	})
}

func (r *orderRepo) HasPayments(_ context.Context, orderID string) (bool, error) {
	var has bool
	r.v.read(func(s *state) {
		for _, p := range s.payments {
			if p.OrderID == orderID {
				has = true
				return
			}
		}
	})
	return has, nil
}

//
// ===== payments =====
//

type paymentRepo struct{ v *view }

func (r *paymentRepo) Create(_ context.Context, p *payment.Payment) error {
	return r.v.write(func(s *state) error {
		if _, ok := s.orders[p.OrderID]; !ok {
			return order.ErrNotFound
		}
		for _, cur := range s.payments {
			if cur.PaymentID == p.PaymentID {
				return payment.ErrDuplicatePaymentID
			}
		}
		s.nextSeq++
		s.seq[p.ID] = s.nextSeq
		s.payments[p.ID] = copyPayment(*p)
		return nil
	})
}

func (r *paymentRepo) GetByID(_ context.Context, id string) (*payment.Payment, error) {
	var (
		p  payment.Payment
		ok bool
	)
	r.v.read(func(s *state) {
		p, ok = s.payments[id]
		p = copyPayment(p)
	})
	if !ok {
		return nil, payment.ErrNotFound
	}
	return &p, nil
}

func (r *paymentRepo) GetByPaymentID(_ context.Context, paymentID string) (*payment.Payment, error) {
	list := r.filter(func(p *payment.Payment) bool { return p.PaymentID == paymentID })
	if len(list) == 0 {
		return nil, payment.ErrNotFound
	}
	return &list[0], nil
}

func (r *paymentRepo) GetForUpdate(ctx context.Context, id string) (*payment.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepo) LatestForOrder(_ context.Context, orderID, gateway string) (*payment.Payment, error) {
	list := r.filter(func(p *payment.Payment) bool { return p.OrderID == orderID && p.Gateway == gateway })
	if len(list) == 0 {
		return nil, payment.ErrNotFound
	}
	return &list[0], nil
}

func (r *paymentRepo) ListByOrder(_ context.Context, orderID string) ([]payment.Payment, error) {
	list := r.filter(func(p *payment.Payment) bool { return p.OrderID == orderID })
	if list == nil {
		list = []payment.Payment{}
	}
	return list, nil
}

func (r *paymentRepo) Update(_ context.Context, p *payment.Payment) error {
	return r.v.write(func(s *state) error {
		if _, ok := s.payments[p.ID]; !ok {
			return payment.ErrNotFound
		}
		s.payments[p.ID] = copyPayment(*p)
		return nil
	})
}

// filter returns matching payments newest first.
func (r *paymentRepo) filter(match func(*payment.Payment) bool) []payment.Payment {
	var (
		out []payment.Payment
		seq = map[string]int64{}
	)
	r.v.read(func(s *state) {
		for _, p := range s.payments {
			if match(&p) {
				out = append(out, copyPayment(p))
				seq[p.ID] = s.seq[p.ID]
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return seq[out[i].ID] > seq[out[j].ID]
	})
	return out
}
