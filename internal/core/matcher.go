package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/peer-exchange/internal/book"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var two = decimal.NewFromInt(2)

// executeBlock matches every order of the block, in block order, against
// the resting book of its instrument. Each order gets one match attempt per
// block. Trades only reach the ledger once the whole block has run.
func (e *Engine) executeBlock(orders []*domain.Order) *Block {
	now := e.now()
	e.height++
	blk := &Block{
		Height:     e.height,
		ExecutedAt: now,
		OrderIDs:   make([]string, 0, len(orders)),
	}
	touched := newTouchSet()
	var (
		trades  []domain.Trade
		requeue []*domain.Order
	)

	for _, o := range orders {
		blk.OrderIDs = append(blk.OrderIDs, o.ID)
		if !o.Active() {
			continue
		}
		if o.ExpiredAt(now) {
			e.expire(o, now)
			touched.add(o)
			continue
		}
		last, traded := e.lastPrice[o.Symbol]
		if !o.StopTriggered(last, traded) {
			requeue = append(requeue, o)
			continue
		}
		if e.isDuplicate(o) {
			o.Status = domain.Dropped
			o.UpdatedAt = now
			touched.add(o)
			blk.Dropped = append(blk.Dropped, o.ID)
			e.metrics.DuplicatesDropped.Inc()
			e.logger.Info("duplicate order dropped",
				zap.String("order_id", o.ID),
				zap.String("client_id", o.ClientID),
				zap.Uint64("height", blk.Height),
			)
			continue
		}

		bk := e.bookFor(o.Symbol)
		resting, expired := e.bestOpposite(bk, o, now)
		for _, x := range expired {
			bk.Remove(x.ID)
			e.expire(x, now)
			touched.add(x)
		}

		if resting == nil {
			touched.add(o)
			switch {
			case o.TimeInForce.IOC:
				e.cancelled(o, now)
			case o.Type == domain.Market:
				requeue = append(requeue, o)
			default:
				if err := bk.Insert(o); err != nil {
					e.logger.Error("rest order", zap.String("order_id", o.ID), zap.Error(err))
				}
			}
			continue
		}

		tr := match(o, resting, now)
		trades = append(trades, tr)
		touched.add(o)
		touched.add(resting)
		e.logger.Debug("matched",
			zap.String("buy_order", tr.BuyOrder),
			zap.String("sell_order", tr.SellOrder),
			zap.Stringer("quantity", tr.Quantity),
			zap.Stringer("price", tr.Price),
		)
		if resting.Status == domain.Filled {
			bk.Remove(resting.ID)
		}
		if o.Active() {
			if o.TimeInForce.IOC {
				e.cancelled(o, now)
			} else {
				requeue = append(requeue, o)
			}
		}
	}

	for _, o := range requeue {
		e.pending.Enqueue(o)
	}
	e.ledger.Append(trades...)
	for _, tr := range trades {
		e.lastPrice[tr.Symbol] = tr.Price
	}

	blk.Trades = trades
	blk.Updated = touched.snapshot()
	e.metrics.Blocks.Inc()
	e.metrics.Trades.Add(float64(len(trades)))
	e.refreshGauges(blk.Symbols()...)
	e.logger.Info("block executed",
		zap.Uint64("height", blk.Height),
		zap.Int("orders", len(orders)),
		zap.Int("trades", len(trades)),
		zap.Int("dropped", len(blk.Dropped)),
		zap.Int("requeued", len(requeue)),
		zap.Int("pending", e.pending.Len()),
	)
	return blk
}

// bestOpposite finds the resting order taker trades with: the first order in
// price-time priority that its price accepts and that all-or-nothing
// constraints on either side allow. Expired resting orders met on the way
// are returned for removal.
func (e *Engine) bestOpposite(bk *book.Book, taker *domain.Order, now time.Time) (found *domain.Order, expired []*domain.Order) {
	bk.ScanOpposite(taker.Side, func(r *domain.Order) bool {
		if !book.Crosses(taker.Side, taker.Price, r.Price) {
			return false
		}
		if r.ExpiredAt(now) {
			expired = append(expired, r)
			return true
		}
		if !allOrNothingFits(taker, r) {
			return true
		}
		found = r
		return false
	})
	return found, expired
}

func allOrNothingFits(taker, resting *domain.Order) bool {
	if taker.TimeInForce.AON && resting.Remaining.LessThan(taker.Remaining) {
		return false
	}
	if resting.TimeInForce.AON && taker.Remaining.LessThan(resting.Remaining) {
		return false
	}
	return true
}

// match trades the smaller remaining quantity of the two orders at the
// midpoint of both prices, whatever the taker's type.
func match(taker, resting *domain.Order, now time.Time) domain.Trade {
	qty := decimal.Min(taker.Remaining, resting.Remaining)
	price := taker.Price.Add(resting.Price).Div(two)
	taker.Fill(qty, now)
	resting.Fill(qty, now)

	buy, sell := taker, resting
	if taker.Side == domain.Sell {
		buy, sell = resting, taker
	}
	return domain.Trade{
		ID:             uuid.NewString(),
		Symbol:         taker.Symbol,
		BuyerClientID:  buy.ClientID,
		SellerClientID: sell.ClientID,
		BuyOrder:       buy.ID,
		SellOrder:      sell.ID,
		Price:          price,
		Quantity:       qty,
		Timestamp:      now,
	}
}

func (e *Engine) expire(o *domain.Order, now time.Time) {
	o.Status = domain.Expired
	o.UpdatedAt = now
	e.metrics.OrdersExpired.Inc()
}

// touchSet remembers the orders a block changed, in first-touch order.
type touchSet struct {
	seen  map[string]struct{}
	order []*domain.Order
}

func newTouchSet() *touchSet {
	return &touchSet{seen: make(map[string]struct{})}
}

func (s *touchSet) add(o *domain.Order) {
	if _, ok := s.seen[o.ID]; ok {
		return
	}
	s.seen[o.ID] = struct{}{}
	s.order = append(s.order, o)
}

func (s *touchSet) snapshot() []domain.Order {
	out := make([]domain.Order, len(s.order))
	for i, o := range s.order {
		out[i] = *o
	}
	return out
}
