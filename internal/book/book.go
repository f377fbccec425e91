// Package book keeps the resting orders of one instrument.
//
// Each side is an ordered index keyed by price and arrival sequence: bids
// best (highest) price first, asks best (lowest) price first, ties broken by
// arrival. An id index makes removal O(log n). A Book is not safe for
// concurrent use; the engine serializes every access.
package book

import (
	"errors"
	"time"

	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

var ErrDuplicateOrder = errors.New("order already resting")

type entry struct {
	order *domain.Order
	seq   uint64
}

type Book struct {
	Symbol string
	bids   *btree.BTreeG[*entry]
	asks   *btree.BTreeG[*entry]
	byID   map[string]*entry
	seq    uint64
}

func bidLess(a, b *entry) bool {
	if c := a.order.Price.Cmp(b.order.Price); c != 0 {
		return c > 0
	}
	return a.seq < b.seq
}

func askLess(a, b *entry) bool {
	if c := a.order.Price.Cmp(b.order.Price); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

func New(symbol string) *Book {
	opts := btree.Options{NoLocks: true}
	return &Book{
		Symbol: symbol,
		bids:   btree.NewBTreeGOptions(bidLess, opts),
		asks:   btree.NewBTreeGOptions(askLess, opts),
		byID:   make(map[string]*entry),
	}
}

func (b *Book) side(s domain.Side) *btree.BTreeG[*entry] {
	if s == domain.Buy {
		return b.bids
	}
	return b.asks
}

// Insert rests o on its side of the book behind every order already resting
// at the same price.
func (b *Book) Insert(o *domain.Order) error {
	if _, ok := b.byID[o.ID]; ok {
		return ErrDuplicateOrder
	}
	b.seq++
	e := &entry{order: o, seq: b.seq}
	b.side(o.Side).Set(e)
	b.byID[o.ID] = e
	return nil
}

// Remove takes the order out of the book. It reports whether it was resting.
func (b *Book) Remove(id string) bool {
	e, ok := b.byID[id]
	if !ok {
		return false
	}
	b.side(e.order.Side).Delete(e)
	delete(b.byID, id)
	return true
}

func (b *Book) Get(id string) (*domain.Order, bool) {
	e, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

func (b *Book) Contains(id string) bool {
	_, ok := b.byID[id]
	return ok
}

func (b *Book) Len() int { return len(b.byID) }

// ScanOpposite visits the orders a taker of side s trades against, best
// first, until fn returns false.
func (b *Book) ScanOpposite(s domain.Side, fn func(o *domain.Order) bool) {
	b.side(s.Opposite()).Scan(func(e *entry) bool {
		return fn(e.order)
	})
}

// BestOpposite returns the best resting order a taker of side s with the
// given limit price can trade with: the lowest ask priced at or below limit
// for a buy, the highest bid priced at or above limit for a sell.
func (b *Book) BestOpposite(s domain.Side, limit decimal.Decimal) (*domain.Order, bool) {
	e, ok := b.side(s.Opposite()).Min()
	if !ok || !Crosses(s, limit, e.order.Price) {
		return nil, false
	}
	return e.order, true
}

// Crosses reports whether a taker of side s limited at limit accepts price.
func Crosses(s domain.Side, limit, price decimal.Decimal) bool {
	if s == domain.Buy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

func (b *Book) Bids() []*domain.Order { return collect(b.bids) }

func (b *Book) Asks() []*domain.Order { return collect(b.asks) }

func collect(t *btree.BTreeG[*entry]) []*domain.Order {
	out := make([]*domain.Order, 0, t.Len())
	t.Scan(func(e *entry) bool {
		out = append(out, e.order)
		return true
	})
	return out
}

// Snapshot copies both sides in priority order.
func (b *Book) Snapshot(now time.Time) *domain.OrderbookSnapshot {
	snap := &domain.OrderbookSnapshot{
		Symbol:    b.Symbol,
		Timestamp: now,
		Bids:      make([]domain.Order, 0, b.bids.Len()),
		Asks:      make([]domain.Order, 0, b.asks.Len()),
	}
	b.bids.Scan(func(e *entry) bool {
		snap.Bids = append(snap.Bids, *e.order)
		return true
	})
	b.asks.Scan(func(e *entry) bool {
		snap.Asks = append(snap.Asks, *e.order)
		return true
	})
	return snap
}
