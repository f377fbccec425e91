// Package pending holds admitted orders waiting to be batched into a block.
package pending

import (
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/tidwall/btree"
)

// DefaultBlockSize is the number of pending orders that forms a block.
const DefaultBlockSize = 10

type item struct {
	order *domain.Order
	seq   uint64
}

// Queue is a FIFO of orders with O(log n) removal by id. It is not safe for
// concurrent use.
type Queue struct {
	items *btree.BTreeG[*item]
	byID  map[string]*item
	seq   uint64
}

func NewQueue() *Queue {
	return &Queue{
		items: btree.NewBTreeGOptions(func(a, b *item) bool { return a.seq < b.seq }, btree.Options{NoLocks: true}),
		byID:  make(map[string]*item),
	}
}

// Enqueue appends o behind every order already waiting. An order that is
// already queued is moved to the tail.
func (q *Queue) Enqueue(o *domain.Order) {
	q.Remove(o.ID)
	q.seq++
	it := &item{order: o, seq: q.seq}
	q.items.Set(it)
	q.byID[o.ID] = it
}

func (q *Queue) Remove(id string) bool {
	it, ok := q.byID[id]
	if !ok {
		return false
	}
	q.items.Delete(it)
	delete(q.byID, id)
	return true
}

func (q *Queue) Contains(id string) bool {
	_, ok := q.byID[id]
	return ok
}

func (q *Queue) Len() int { return len(q.byID) }

// Orders lists the queue oldest first.
func (q *Queue) Orders() []*domain.Order {
	out := make([]*domain.Order, 0, q.items.Len())
	q.items.Scan(func(it *item) bool {
		out = append(out, it.order)
		return true
	})
	return out
}

// TryFormBlock dequeues the oldest threshold orders, in submission order, once
// at least threshold are waiting. Below the threshold it returns nil and
// leaves the queue untouched.
func (q *Queue) TryFormBlock(threshold int) []*domain.Order {
	if threshold <= 0 || q.Len() < threshold {
		return nil
	}
	block := make([]*domain.Order, 0, threshold)
	for len(block) < threshold {
		it, ok := q.items.PopMin()
		if !ok {
			break
		}
		delete(q.byID, it.order.ID)
		block = append(block, it.order)
	}
	return block
}
