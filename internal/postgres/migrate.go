package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent. products and users belong to the catalog and auth
// services; they are created here only so a fresh database can run checkout.
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	stock       INTEGER NOT NULL CHECK (stock >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	username          TEXT NOT NULL,
	email             TEXT NOT NULL UNIQUE,
	phone             TEXT,
	email_verified_at TIMESTAMPTZ,
	dob               DATE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	order_number     TEXT NOT NULL UNIQUE,
	user_id          TEXT NOT NULL,
	subtotal         NUMERIC(12,2) NOT NULL CHECK (subtotal >= 0),
	tax              NUMERIC(12,2) NOT NULL CHECK (tax >= 0),
	shipping         NUMERIC(12,2) NOT NULL CHECK (shipping >= 0),
	discount         NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (discount >= 0),
	total            NUMERIC(12,2) NOT NULL CHECK (total >= 0),
	payment_method   TEXT NOT NULL,
	payment_status   TEXT NOT NULL DEFAULT 'pending',
	order_status     TEXT NOT NULL DEFAULT 'pending',
	notes            TEXT NOT NULL DEFAULT '',
	billing_address  JSONB NOT NULL,
	shipping_address JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL REFERENCES orders(id),
	product_id   TEXT NOT NULL,
	product_name TEXT NOT NULL DEFAULT '',
	quantity     INTEGER NOT NULL CHECK (quantity > 0),
	unit_price   NUMERIC(12,2) NOT NULL,
	total_price  NUMERIC(12,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id);

CREATE TABLE IF NOT EXISTS payments (
	id               TEXT PRIMARY KEY,
	seq              BIGSERIAL,
	order_id         TEXT NOT NULL REFERENCES orders(id),
	payment_id       TEXT NOT NULL UNIQUE,
	gateway          TEXT NOT NULL,
	amount           NUMERIC(12,2) NOT NULL,
	currency         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	transaction_id   TEXT,
	gateway_response JSONB,
	paid_at          TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS payments_order_gateway_idx ON payments (order_id, gateway, created_at DESC, seq DESC);
`

// Migrate creates the tables checkout needs.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx, schema)
	return err
}
