package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
  id              TEXT PRIMARY KEY,
  client_id       TEXT NOT NULL,
  symbol          TEXT NOT NULL,
  side            TEXT NOT NULL,
  type            TEXT NOT NULL,
  price           NUMERIC NOT NULL,
  quantity        NUMERIC NOT NULL,
  filled_quantity NUMERIC NOT NULL,
  remaining       NUMERIC NOT NULL,
  aon             BOOLEAN NOT NULL DEFAULT FALSE,
  ioc             BOOLEAN NOT NULL DEFAULT FALSE,
  stop_price      NUMERIC,
  expire_at       TIMESTAMPTZ,
  status          TEXT NOT NULL,
  created_at      TIMESTAMPTZ NOT NULL,
  updated_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
  id         TEXT PRIMARY KEY,
  symbol     TEXT NOT NULL,
  buyer      TEXT NOT NULL,
  seller     TEXT NOT NULL,
  buy_order  TEXT NOT NULL,
  sell_order TEXT NOT NULL,
  price      NUMERIC NOT NULL,
  quantity   NUMERIC NOT NULL,
  timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_buy_order_idx ON trades (buy_order);
CREATE INDEX IF NOT EXISTS trades_sell_order_idx ON trades (sell_order);
`

const upsertOrder = `
INSERT INTO orders(id, client_id, symbol, side, type, price, quantity, filled_quantity, remaining,
                   aon, ioc, stop_price, expire_at, status, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
  filled_quantity = EXCLUDED.filled_quantity,
  remaining = EXCLUDED.remaining,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at
WHERE orders.updated_at <= EXCLUDED.updated_at
`

const insertTrade = `
INSERT INTO trades(id, symbol, buyer, seller, buy_order, sell_order, price, quantity, timestamp)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

// Migrate creates the journal tables when they do not exist yet.
func (p *PgRepo) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	return saveOrder(ctx, p.pool, o)
}

func (p *PgRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	return saveTrade(ctx, p.pool, t)
}

func saveOrder(ctx context.Context, db execer, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	var (
		stop     any
		expireAt any
	)
	if o.Stop {
		stop = o.StopPrice
	}
	if at, ok := o.ExpiresAt(); ok {
		expireAt = at
	}
	_, err := db.Exec(ctx, upsertOrder,
		o.ID, o.ClientID, o.Symbol, string(o.Side), string(o.Type),
		o.Price, o.Quantity, o.FilledQuantity, o.Remaining,
		o.TimeInForce.AON, o.TimeInForce.IOC, stop, expireAt,
		string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: save order %s: %w", o.ID, err)
	}
	return nil
}

func saveTrade(ctx context.Context, db execer, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	_, err := db.Exec(ctx, insertTrade,
		t.ID, t.Symbol, t.BuyerClientID, t.SellerClientID, t.BuyOrder, t.SellOrder,
		t.Price, t.Quantity, t.Timestamp)
	if err != nil {
		return fmt.Errorf("pg: save trade %s: %w", t.ID, err)
	}
	return nil
}

func (p *PgRepo) LoadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		o                 domain.Order
		side, typ, status string
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, client_id, symbol, side, type, price, quantity, filled_quantity, remaining,
       aon, ioc, status, created_at, updated_at
FROM orders WHERE id = $1
`, orderID).Scan(&o.ID, &o.ClientID, &o.Symbol, &side, &typ, &o.Price, &o.Quantity,
		&o.FilledQuantity, &o.Remaining, &o.TimeInForce.AON, &o.TimeInForce.IOC,
		&status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, port.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func (p *PgRepo) LoadTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, symbol, buyer, seller, buy_order, sell_order, price, quantity, timestamp
FROM trades
WHERE buy_order = $1 OR sell_order = $1
ORDER BY timestamp ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.BuyerClientID, &t.SellerClientID,
			&t.BuyOrder, &t.SellOrder, &t.Price, &t.Quantity, &t.Timestamp); err != nil {
			return nil, err
		}
		res = append(res, &t)
	}
	return res, rows.Err()
}

func (p *PgRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	return saveOrder(ctx, t.tx, o)
}

func (t *pgTx) SaveTrade(ctx context.Context, tr *domain.Trade) error {
	return saveTrade(ctx, t.tx, tr)
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
