package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error)
	GetForUpdate(ctx context.Context, id string) (*Payment, error)
	LatestForOrder(ctx context.Context, orderID, gateway string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	Update(ctx context.Context, p *Payment) error
}

type PGRepo struct{ db db.DBTX }

func NewPGRepo(q db.DBTX) *PGRepo { return &PGRepo{db: q} }

const paymentColumns = `id, order_id, payment_id, gateway, amount::text, currency, status,
	COALESCE(transaction_id, ''), gateway_response, paid_at, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, order_id, payment_id, gateway, amount, currency, status,
			transaction_id, gateway_response, paid_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11,$11)
	`, p.ID, p.OrderID, p.PaymentID, p.Gateway, p.Amount, p.Currency, p.Status,
		p.TransactionID, rawOrNil(p.GatewayResponse), p.PaidAt, p.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicatePaymentID
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Payment, error) {
	return r.getOne(ctx, `WHERE id=$1`, id)
}

func (r *PGRepo) GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error) {
	return r.getOne(ctx, `WHERE payment_id=$1`, paymentID)
}

// GetForUpdate locks the payment row until the surrounding transaction ends.
func (r *PGRepo) GetForUpdate(ctx context.Context, id string) (*Payment, error) {
	return r.getOne(ctx, `WHERE id=$1 FOR UPDATE`, id)
}

func (r *PGRepo) LatestForOrder(ctx context.Context, orderID, gateway string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1 AND gateway=$2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, orderID, gateway))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) getOne(ctx context.Context, where string, arg any) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments `+where, arg))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) ListByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1
		ORDER BY created_at DESC, seq DESC
	`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		p, err := scanPayment(row)
		if err != nil {
			return Payment{}, err
		}
		return *p, nil
	})
}

func (r *PGRepo) Update(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status=$2, transaction_id=NULLIF($3,''), gateway_response=$4, paid_at=$5, updated_at=$6
		WHERE id=$1
	`, p.ID, p.Status, p.TransactionID, rawOrNil(p.GatewayResponse), p.PaidAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var (
		p      Payment
		amount string
		raw    []byte
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.PaymentID, &p.Gateway, &amount, &p.Currency, &p.Status,
		&p.TransactionID, &raw, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("payment %s amount: %w", p.ID, err)
	}
	p.Amount = d
	if len(raw) > 0 {
		p.GatewayResponse = raw
	}
	return &p, nil
}

func rawOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
