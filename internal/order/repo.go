package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID string, f Filter) ([]Order, error)
	Update(ctx context.Context, o *Order) error
	DeleteItems(ctx context.Context, orderID string) error
	SoftDelete(ctx context.Context, id string) error
	HasPayments(ctx context.Context, orderID string) (bool, error)
}

type PGRepo struct{ db db.DBTX }

func NewPGRepo(q db.DBTX) *PGRepo { return &PGRepo{db: q} }

const orderColumns = `id, order_number, user_id, subtotal::text, tax::text, shipping::text,
	discount::text, total::text, payment_method, payment_status, order_status, notes,
	billing_address, shipping_address, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	billing, shipping, err := marshalAddresses(o)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, subtotal, tax, shipping, discount, total,
			payment_method, payment_status, order_status, notes, billing_address, shipping_address,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
	`, o.ID, o.OrderNumber, o.UserID, o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total,
		o.PaymentMethod, o.PaymentStatus, o.Status, o.Notes, billing, shipping, o.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateNumber
		}
		return err
	}

	for _, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, `WHERE id=$1 AND deleted_at IS NULL`, id)
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *PGRepo) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, `WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *PGRepo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.getOne(ctx, `WHERE order_number=$1 AND deleted_at IS NULL`, number)
}

func (r *PGRepo) getOne(ctx context.Context, where string, arg any) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, f Filter) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	conds := []string{"user_id=$1", "deleted_at IS NULL"}
	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("order_status=$%d", len(args)))
	}
	if f.PaymentStatus != "" {
		args = append(args, f.PaymentStatus)
		conds = append(conds, fmt.Sprintf("payment_status=$%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PGRepo) Update(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	billing, shipping, err := marshalAddresses(o)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET subtotal=$2, tax=$3, shipping=$4, discount=$5, total=$6, payment_method=$7,
			payment_status=$8, order_status=$9, notes=$10, billing_address=$11,
			shipping_address=$12, updated_at=$13
		WHERE id=$1 AND deleted_at IS NULL
	`, o.ID, o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total, o.PaymentMethod,
		o.PaymentStatus, o.Status, o.Notes, billing, shipping, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) DeleteItems(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID)
	return err
}

func (r *PGRepo) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET deleted_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) HasPayments(ctx context.Context, orderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id=$1)`, orderID).Scan(&ok)
	return ok, err
}

func (r *PGRepo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price::text, total_price::text
		FROM order_items
		WHERE order_id=$1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var (
			it          Item
			unit, total string
		)
		if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &unit, &total); err != nil {
			return Item{}, err
		}
		var err error
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return Item{}, err
		}
		if it.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return Item{}, err
		}
		return it, nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                                    Order
		subtotal, tax, shipping, disc, total string
		billing, shippingAddr                []byte
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &subtotal, &tax, &shipping, &disc, &total,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.Notes, &billing, &shippingAddr,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.Subtotal, subtotal}, {&o.Tax, tax}, {&o.Shipping, shipping}, {&o.Discount, disc}, {&o.Total, total}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("order %s amount: %w", o.ID, err)
		}
		*f.dst = d
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("order %s billing address: %w", o.ID, err)
	}
	if len(shippingAddr) > 0 {
		o.ShippingAddress = new(Address)
		if err := json.Unmarshal(shippingAddr, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("order %s shipping address: %w", o.ID, err)
		}
	}
	return &o, nil
}

func marshalAddresses(o *Order) (billing, shipping []byte, err error) {
	if billing, err = json.Marshal(o.BillingAddress); err != nil {
		return nil, nil, err
	}
	if o.ShippingAddress != nil {
		if shipping, err = json.Marshal(o.ShippingAddress); err != nil {
			return nil, nil, err
		}
	}
	return billing, shipping, nil
}
