// Package postgres wires the pgx repositories to a connection pool and runs
// multi-table writes inside one database transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/user"
)

// Open creates a pool and checks the server is reachable.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Orders() order.Repository     { return order.NewPGRepo(s.pool) }
func (s *Store) Stock() product.Ledger        { return product.NewPGRepo(s.pool) }
func (s *Store) Payments() payment.Repository { return payment.NewPGRepo(s.pool) }
func (s *Store) Users() user.Repository       { return user.NewPGRepo(s.pool) }

// inTx runs fn at read committed. Row locks (SELECT ... FOR UPDATE and the
// conditional stock UPDATE) serialise writers on the same rows.
func (s *Store) inTx(ctx context.Context, fn func(*txRepos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txRepos{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepos struct{ tx pgx.Tx }

func (t *txRepos) Orders() order.Repository     { return order.NewPGRepo(t.tx) }
func (t *txRepos) Stock() product.Ledger        { return product.NewPGRepo(t.tx) }
func (t *txRepos) Payments() payment.Repository { return payment.NewPGRepo(t.tx) }

// OrderStore adapts s to order.Store.
func OrderStore(s *Store) order.Store { return orderStore{s} }

// PaymentStore adapts s to payment.Store.
func PaymentStore(s *Store) payment.Store { return paymentStore{s} }

type orderStore struct{ *Store }

func (o orderStore) InTx(ctx context.Context, fn func(order.Tx) error) error {
	return o.inTx(ctx, func(t *txRepos) error { return fn(t) })
}

type paymentStore struct{ *Store }

func (p paymentStore) InTx(ctx context.Context, fn func(payment.Tx) error) error {
	return p.inTx(ctx, func(t *txRepos) error { return fn(t) })
}
