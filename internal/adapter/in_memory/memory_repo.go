package in_memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/port"
)

var _ port.Repository = (*MemoryRepo)(nil)

type MemoryRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	trades map[string][]*domain.Trade
	seen   map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders: make(map[string]*domain.Order),
		trades: make(map[string][]*domain.Trade),
		seen:   make(map[string]struct{}),
	}
}

func (r *MemoryRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveOrder(o)
	return nil
}

// saveOrder keeps a newer row, like the WHERE guard of the pg upsert.
func (r *MemoryRepo) saveOrder(o *domain.Order) {
	if cur, ok := r.orders[o.ID]; ok && cur.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	cp := *o
	r.orders[o.ID] = &cp
}

func (r *MemoryRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveTrade(t)
	return nil
}

// saveTrade ignores a trade id it already holds, like ON CONFLICT DO NOTHING.
func (r *MemoryRepo) saveTrade(t *domain.Trade) {
	if _, ok := r.seen[t.ID]; ok {
		return
	}
	r.seen[t.ID] = struct{}{}
	cp := *t
	r.trades[t.BuyOrder] = append(r.trades[t.BuyOrder], &cp)
	r.trades[t.SellOrder] = append(r.trades[t.SellOrder], &cp)
}

func (r *MemoryRepo) LoadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, port.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepo) LoadTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*domain.Trade, 0, len(r.trades[orderID]))
	for _, t := range r.trades[orderID] {
		cp := *t
		res = append(res, &cp)
	}
	return res, nil
}

func (r *MemoryRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	return &memTx{repo: r}, nil
}

func (r *MemoryRepo) Close(ctx context.Context) {}

// memTx buffers writes and applies them under one lock on commit.
type memTx struct {
	repo   *MemoryRepo
	orders []*domain.Order
	trades []*domain.Trade
	done   bool
}

func (tx *memTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	if tx.done {
		return errors.New("tx closed")
	}
	cp := *o
	tx.orders = append(tx.orders, &cp)
	return nil
}

func (tx *memTx) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if tx.done {
		return errors.New("tx closed")
	}
	cp := *t
	tx.trades = append(tx.trades, &cp)
	return nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return errors.New("tx closed")
	}
	tx.done = true
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, o := range tx.orders {
		tx.repo.saveOrder(o)
	}
	for _, t := range tx.trades {
		tx.repo.saveTrade(t)
	}
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	tx.done = true
	tx.orders, tx.trades = nil, nil
	return nil
}
