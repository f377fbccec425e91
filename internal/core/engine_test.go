package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestEngine(opts ...Option) (*Engine, *clock) {
	c := &clock{now: t0}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewEngine(opts...), c
}

func limit(id, client string, side domain.Side, price, qty int64) *domain.Order {
	return &domain.Order{
		ID:       id,
		ClientID: client,
		Symbol:   "BTCUSD",
		Side:     side,
		Type:     domain.Limit,
		Price:    decimal.NewFromInt(price),
		Quantity: decimal.NewFromInt(qty),
	}
}

func market(id, client string, side domain.Side, price, qty int64) *domain.Order {
	o := limit(id, client, side, price, qty)
	o.Type = domain.Market
	return o
}

func submit(t *testing.T, e *Engine, o *domain.Order) *Block {
	t.Helper()
	blk, err := e.Submit(o)
	require.NoError(t, err)
	return blk
}

func status(t *testing.T, e *Engine, id string) domain.OrderStatus {
	t.Helper()
	o, ok := e.Order(id)
	require.True(t, ok, "order %s not registered", id)
	return o.Status
}

func TestSubmitAdmitsToPendingOnly(t *testing.T) {
	e, _ := newTestEngine(WithAutoCheckpoint(false))
	in := limit("o1", "c1", domain.Buy, 100, 10)

	blk := submit(t, e, in)
	assert.Nil(t, blk)
	assert.True(t, e.InPending("o1"))
	assert.False(t, e.InBook("o1"))

	o, ok := e.Order("o1")
	require.True(t, ok)
	assert.Equal(t, domain.Open, o.Status)
	assert.True(t, o.Remaining.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, t0, o.CreatedAt)
	assert.True(t, in.Remaining.IsZero(), "caller's order is not retained")
}

func TestSubmitRejectsInvalidWithoutMutation(t *testing.T) {
	e, _ := newTestEngine()
	bad := []*domain.Order{
		limit("q0", "c1", domain.Buy, 100, 0),
		limit("qn", "c1", domain.Sell, 100, -5),
		limit("pn", "c1", domain.Buy, -1, 5),
		limit("", "c1", domain.Buy, 100, 5),
	}
	for _, o := range bad {
		_, err := e.Submit(o)
		assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	}
	assert.Zero(t, e.PendingLen())
	_, ok := e.Order("q0")
	assert.False(t, ok, "rejected orders are not registered")
}

func TestSubmitRejectsReusedID(t *testing.T) {
	e, _ := newTestEngine(WithAutoCheckpoint(false))
	submit(t, e, limit("o1", "c1", domain.Buy, 100, 1))
	_, err := e.Submit(limit("o1", "c2", domain.Sell, 100, 1))
	assert.True(t, errors.Is(err, ErrDuplicateOrder))
	assert.Equal(t, 1, e.PendingLen())
}

func TestSubmitDefaultsTypeToLimit(t *testing.T) {
	e, _ := newTestEngine(WithAutoCheckpoint(false))
	o := limit("o1", "c1", domain.Buy, 100, 1)
	o.Type = ""
	submit(t, e, o)
	got, _ := e.Order("o1")
	assert.Equal(t, domain.Limit, got.Type)
}

func TestUnmatchedBuysRestSortedDescending(t *testing.T) {
	e, _ := newTestEngine()
	prices := []int64{101, 99, 105, 100, 105, 98, 103, 97, 102, 104}
	for i, p := range prices {
		submit(t, e, limit(fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i), domain.Buy, p, 1))
	}
	require.Equal(t, uint64(1), e.Height())
	assert.Zero(t, e.PendingLen())

	snap, ok := e.Orderbook("BTCUSD")
	require.True(t, ok)
	require.Len(t, snap.Bids, len(prices))
	for i := 1; i < len(snap.Bids); i++ {
		assert.True(t, snap.Bids[i-1].Price.GreaterThanOrEqual(snap.Bids[i].Price))
	}
	assert.Equal(t, "b2", snap.Bids[0].ID)
	assert.Equal(t, "b4", snap.Bids[1].ID, "equal prices keep arrival order")
	for i := range prices {
		id := fmt.Sprintf("b%d", i)
		assert.True(t, e.InBook(id))
		assert.False(t, e.InPending(id))
	}
}

func TestMidpointExecution(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "seller", domain.Sell, 100, 10))
	require.True(t, e.InBook("s1"))

	blk := submit(t, e, limit("b1", "buyer", domain.Buy, 105, 10))
	require.NotNil(t, blk)
	require.Len(t, blk.Trades, 1)

	tr := blk.Trades[0]
	assert.True(t, tr.Price.Equal(decimal.RequireFromString("102.5")), "price %s", tr.Price)
	assert.True(t, tr.Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "buyer", tr.BuyerClientID)
	assert.Equal(t, "seller", tr.SellerClientID)
	assert.Equal(t, "b1", tr.BuyOrder)
	assert.Equal(t, "s1", tr.SellOrder)
	assert.Equal(t, t0, tr.Timestamp)

	assert.False(t, e.InBook("s1"))
	assert.False(t, e.InPending("b1"))
	assert.False(t, e.InBook("b1"))
	assert.Equal(t, domain.Filled, status(t, e, "s1"))
	assert.Equal(t, domain.Filled, status(t, e, "b1"))
	assert.Len(t, e.Trades(), 1)
	assert.Len(t, e.TradesForOrder("s1"), 1)
	assert.Len(t, e.TradesForClient("buyer"), 1)
}

func TestSellTakerAgainstRestingBid(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("b1", "buyer", domain.Buy, 100, 5))
	blk := submit(t, e, limit("s1", "seller", domain.Sell, 96, 5))
	require.Len(t, blk.Trades, 1)
	assert.True(t, blk.Trades[0].Price.Equal(decimal.NewFromInt(98)))
	assert.Equal(t, "b1", blk.Trades[0].BuyOrder)
	assert.Equal(t, "buyer", blk.Trades[0].BuyerClientID)
}

func TestPartialFillRequeuesTaker(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "seller", domain.Sell, 100, 4))
	blk := submit(t, e, limit("b1", "buyer", domain.Buy, 105, 10))
	require.Len(t, blk.Trades, 1)
	assert.True(t, blk.Trades[0].Quantity.Equal(decimal.NewFromInt(4)))

	o, _ := e.Order("b1")
	assert.Equal(t, domain.PartiallyFilled, o.Status)
	assert.True(t, o.Remaining.Equal(decimal.NewFromInt(6)))
	assert.True(t, o.FilledQuantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, e.InPending("b1"), "remainder goes back to pending")
	assert.False(t, e.InBook("b1"), "not rested mid-block")
	assert.False(t, e.InBook("s1"))
}

func TestPartialFillKeepsRestingOrder(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "seller", domain.Sell, 100, 10))
	submit(t, e, limit("b1", "buyer", domain.Buy, 100, 3))

	o, _ := e.Order("s1")
	assert.Equal(t, domain.PartiallyFilled, o.Status)
	assert.True(t, o.Remaining.Equal(decimal.NewFromInt(7)))
	assert.True(t, e.InBook("s1"))
	assert.Equal(t, domain.Filled, status(t, e, "b1"))
}

func TestLimitOutsidePriceDoesNotMatch(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "seller", domain.Sell, 100, 1))
	blk := submit(t, e, limit("b1", "buyer", domain.Buy, 99, 1))
	assert.Empty(t, blk.Trades)
	assert.True(t, e.InBook("b1"))
	assert.True(t, e.InBook("s1"))
}

func TestInstrumentsDoNotCross(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "seller", domain.Sell, 100, 1))
	other := limit("b1", "buyer", domain.Buy, 200, 1)
	other.Symbol = "ETHUSD"
	blk := submit(t, e, other)
	assert.Empty(t, blk.Trades)
	assert.True(t, e.InBook("b1"))
}

func TestBlockOfTenLeavesRestQueued(t *testing.T) {
	e, _ := newTestEngine(WithAutoCheckpoint(false))
	for i := 0; i < 12; i++ {
		submit(t, e, limit(fmt.Sprintf("o%02d", i), fmt.Sprintf("c%d", i), domain.Buy, int64(100+i), 1))
	}
	require.Equal(t, 12, e.PendingLen())

	blk := e.Checkpoint()
	require.NotNil(t, blk)
	want := make([]string, 10)
	for i := range want {
		want[i] = fmt.Sprintf("o%02d", i)
	}
	assert.Equal(t, want, blk.OrderIDs)

	rest := e.PendingOrders()
	require.Len(t, rest, 2)
	assert.Equal(t, "o10", rest[0].ID)
	assert.Equal(t, "o11", rest[1].ID)
	assert.Equal(t, domain.Open, rest[0].Status)
	assert.True(t, rest[0].Remaining.Equal(decimal.NewFromInt(1)))
}

func TestCheckpointUnderThresholdChangesNothing(t *testing.T) {
	e, _ := newTestEngine(WithAutoCheckpoint(false))
	for i := 0; i < 3; i++ {
		submit(t, e, limit(fmt.Sprintf("o%d", i), "c", domain.Sell, 100, 1))
	}
	before := e.PendingOrders()

	for i := 0; i < 3; i++ {
		assert.Nil(t, e.Checkpoint())
	}
	assert.Equal(t, before, e.PendingOrders())
	assert.Zero(t, e.Height())
	assert.Empty(t, e.Trades())
	_, ok := e.Orderbook("BTCUSD")
	assert.False(t, ok)
}

func TestAutoCheckpointOnSubmit(t *testing.T) {
	e, _ := newTestEngine()
	for i := 0; i < 9; i++ {
		assert.Nil(t, submit(t, e, limit(fmt.Sprintf("o%d", i), "c", domain.Sell, 100, 1)))
	}
	blk := submit(t, e, limit("o9", "c", domain.Sell, 100, 1))
	require.NotNil(t, blk)
	assert.Equal(t, uint64(1), blk.Height)
	assert.Len(t, blk.OrderIDs, 10)
}

func TestDuplicateGuardDropsClientAfterFirstTrade(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 1))
	submit(t, e, limit("s2", "carol", domain.Sell, 100, 1))
	blk := submit(t, e, limit("b1", "bob", domain.Buy, 100, 1))
	require.Len(t, blk.Trades, 1)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("b-again-%d", i)
		blk = submit(t, e, limit(id, "bob", domain.Buy, 100, 1))
		assert.Empty(t, blk.Trades)
		assert.Equal(t, []string{id}, blk.Dropped)
		assert.Equal(t, domain.Dropped, status(t, e, id))
		assert.False(t, e.InPending(id))
		assert.False(t, e.InBook(id))
	}
	assert.Len(t, e.Trades(), 1)
	assert.True(t, e.InBook("s2"), "resting order of an untraded client is untouched")
}

func TestDuplicateGuardOnlySeesCommittedTrades(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 1))
	submit(t, e, limit("s2", "carol", domain.Sell, 100, 1))

	e.mu.Lock()
	e.blockSize = 2
	e.mu.Unlock()

	submit(t, e, limit("b1", "bob", domain.Buy, 100, 1))
	blk := submit(t, e, limit("b2", "bob", domain.Buy, 100, 1))
	require.NotNil(t, blk)
	assert.Len(t, blk.Trades, 2, "trades of the running block are not visible to the guard")
	assert.Empty(t, blk.Dropped)
}

func TestDuplicatePolicyOff(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1), WithDuplicatePolicy(DuplicateOff))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 1))
	submit(t, e, limit("b1", "bob", domain.Buy, 100, 1))
	submit(t, e, limit("s2", "alice", domain.Sell, 100, 1))
	blk := submit(t, e, limit("b2", "bob", domain.Buy, 100, 1))
	assert.Len(t, blk.Trades, 1)
	assert.Len(t, e.Trades(), 2)
}

func TestCancel(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("rest", "c1", domain.Buy, 100, 1))
	require.True(t, e.InBook("rest"))

	assert.True(t, e.Cancel("rest"))
	assert.False(t, e.InBook("rest"))
	assert.Equal(t, domain.Cancelled, status(t, e, "rest"))
	assert.False(t, e.Cancel("rest"))

	e2, _ := newTestEngine(WithAutoCheckpoint(false))
	submit(t, e2, limit("queued", "c1", domain.Buy, 100, 1))
	submit(t, e2, limit("other", "c2", domain.Buy, 100, 1))
	assert.True(t, e2.Cancel("queued"))
	assert.False(t, e2.InPending("queued"))
	assert.False(t, e2.Cancel("queued"))
	assert.True(t, e2.InPending("other"))
	o, _ := e2.Order("queued")
	assert.True(t, o.Canceled)

	assert.False(t, e2.Cancel("never-seen"))
}

func TestCancelFilledOrderReturnsFalse(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 1))
	submit(t, e, limit("b1", "bob", domain.Buy, 100, 1))
	assert.False(t, e.Cancel("s1"))
	assert.Equal(t, domain.Filled, status(t, e, "s1"))
}

func TestCancelledOrderDoesNotExecute(t *testing.T) {
	e, _ := newTestEngine(WithAutoCheckpoint(false), WithBlockSize(2))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 1))
	submit(t, e, limit("b1", "bob", domain.Buy, 100, 1))
	require.True(t, e.Cancel("s1"))
	assert.Nil(t, e.Checkpoint(), "cancel shrank the queue below the block size")
}

func TestMarketOrders(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	blk := submit(t, e, market("m1", "bob", domain.Buy, 100, 2))
	assert.Empty(t, blk.Trades)
	assert.True(t, e.InPending("m1"), "unmatched market order waits in pending")
	assert.False(t, e.InBook("m1"))

	e2, _ := newTestEngine(WithBlockSize(1))
	submit(t, e2, limit("s1", "alice", domain.Sell, 120, 1))
	submit(t, e2, limit("s2", "carol", domain.Sell, 130, 1))
	blk = submit(t, e2, market("m2", "bob", domain.Buy, 140, 1))
	require.Len(t, blk.Trades, 1)
	assert.Equal(t, "s1", blk.Trades[0].SellOrder)
	assert.True(t, blk.Trades[0].Price.Equal(decimal.NewFromInt(130)), "price %s", blk.Trades[0].Price)
}

func TestMarketOrdersRespectTheirPrice(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 10))

	blk := submit(t, e, market("m1", "bob", domain.Buy, 90, 10))
	assert.Empty(t, blk.Trades, "no ask at or below 90")
	assert.True(t, e.InBook("s1"))
	assert.True(t, e.InPending("m1"))

	e2, _ := newTestEngine(WithBlockSize(1))
	submit(t, e2, limit("s1", "alice", domain.Sell, 100, 10))
	blk = submit(t, e2, market("m2", "bob", domain.Buy, 105, 10))
	require.Len(t, blk.Trades, 1)
	assert.True(t, blk.Trades[0].Price.Equal(decimal.RequireFromString("102.5")), "price %s", blk.Trades[0].Price)
	assert.True(t, blk.Trades[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, domain.Filled, status(t, e2, "m2"))
}

func TestImmediateOrCancel(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	ioc := limit("i1", "bob", domain.Buy, 100, 5)
	ioc.TimeInForce.IOC = true
	submit(t, e, ioc)
	assert.Equal(t, domain.Cancelled, status(t, e, "i1"))
	assert.False(t, e.InBook("i1"))

	submit(t, e, limit("s1", "alice", domain.Sell, 100, 2))
	ioc = limit("i2", "dave", domain.Buy, 100, 5)
	ioc.TimeInForce.IOC = true
	blk := submit(t, e, ioc)
	require.Len(t, blk.Trades, 1)
	o, _ := e.Order("i2")
	assert.Equal(t, domain.Cancelled, o.Status)
	assert.True(t, o.FilledQuantity.Equal(decimal.NewFromInt(2)))
	assert.False(t, e.InPending("i2"))
}

func TestAllOrNothing(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 3))
	submit(t, e, limit("s2", "carol", domain.Sell, 101, 10))

	aon := limit("a1", "bob", domain.Buy, 105, 5)
	aon.TimeInForce.AON = true
	blk := submit(t, e, aon)
	require.Len(t, blk.Trades, 1)
	assert.Equal(t, "s2", blk.Trades[0].SellOrder, "skips the resting order too small to fill it")
	assert.True(t, blk.Trades[0].Quantity.Equal(decimal.NewFromInt(5)))

	restingAON := limit("s3", "erin", domain.Sell, 90, 10)
	restingAON.TimeInForce.AON = true
	e2, _ := newTestEngine(WithBlockSize(1))
	submit(t, e2, restingAON)
	blk = submit(t, e2, limit("b1", "frank", domain.Buy, 95, 4))
	assert.Empty(t, blk.Trades, "taker cannot fill the resting AON order")
	assert.True(t, e2.InBook("b1"))
}

func TestGoodTillDateExpiry(t *testing.T) {
	e, c := newTestEngine(WithBlockSize(1), WithAutoCheckpoint(false))
	gtd := limit("g1", "bob", domain.Buy, 100, 1)
	gtd.TimeInForce.GTD = true
	gtd.ExpireAt = t0.Add(time.Minute)
	submit(t, e, gtd)

	c.now = t0.Add(2 * time.Minute)
	blk := e.Checkpoint()
	require.NotNil(t, blk)
	assert.Equal(t, domain.Expired, status(t, e, "g1"))
	assert.False(t, e.InBook("g1"))
	assert.False(t, e.InPending("g1"))
}

func TestExpiredRestingOrderIsSkippedAndRemoved(t *testing.T) {
	e, c := newTestEngine(WithBlockSize(1))
	gfd := limit("s1", "alice", domain.Sell, 100, 1)
	gfd.TimeInForce.GFD = true
	submit(t, e, gfd)
	submit(t, e, limit("s2", "carol", domain.Sell, 101, 1))
	require.True(t, e.InBook("s1"))

	c.now = t0.Add(24 * time.Hour)
	blk := submit(t, e, limit("b1", "bob", domain.Buy, 105, 1))
	require.Len(t, blk.Trades, 1)
	assert.Equal(t, "s2", blk.Trades[0].SellOrder)
	assert.Equal(t, domain.Expired, status(t, e, "s1"))
	assert.False(t, e.InBook("s1"))
}

func TestStopOrderWaitsForTrigger(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1), WithAutoCheckpoint(false), WithDuplicatePolicy(DuplicateOff))
	submit(t, e, limit("s1", "alice", domain.Sell, 112, 2))
	require.NotNil(t, e.Checkpoint())
	require.True(t, e.InBook("s1"))

	stop := limit("st", "bob", domain.Buy, 115, 1)
	stop.Stop = true
	stop.StopPrice = decimal.NewFromInt(110)
	submit(t, e, stop)
	blk := e.Checkpoint()
	require.NotNil(t, blk)
	assert.Empty(t, blk.Trades, "no trade price yet")
	assert.True(t, e.InPending("st"))

	submit(t, e, limit("b1", "carol", domain.Buy, 112, 1))
	blk = e.Checkpoint()
	assert.Equal(t, []string{"st"}, blk.OrderIDs)
	assert.Empty(t, blk.Trades)

	blk = e.Checkpoint()
	assert.Equal(t, []string{"b1"}, blk.OrderIDs)
	require.Len(t, blk.Trades, 1)
	assert.True(t, blk.Trades[0].Price.Equal(decimal.NewFromInt(112)))

	blk = e.Checkpoint()
	assert.Equal(t, []string{"st"}, blk.OrderIDs)
	require.Len(t, blk.Trades, 1, "last price 112 triggers the stop at 110")
	assert.True(t, blk.Trades[0].Price.Equal(decimal.RequireFromString("113.5")))
	assert.Equal(t, domain.Filled, status(t, e, "st"))
	assert.False(t, e.InBook("s1"))
}

func TestBlockReportsUpdatedOrders(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(1))
	submit(t, e, limit("s1", "alice", domain.Sell, 100, 1))
	blk := submit(t, e, limit("b1", "bob", domain.Buy, 100, 1))
	ids := make([]string, len(blk.Updated))
	for i, o := range blk.Updated {
		ids[i] = o.ID
		assert.Equal(t, domain.Filled, o.Status)
	}
	assert.ElementsMatch(t, []string{"b1", "s1"}, ids)
	assert.Equal(t, []string{"BTCUSD"}, blk.Symbols())
}

func TestPendingAndBookStayDisjoint(t *testing.T) {
	e, _ := newTestEngine(WithBlockSize(3), WithDuplicatePolicy(DuplicateOff))
	var ids []string
	for i := 0; i < 30; i++ {
		side := domain.Buy
		if i%2 == 0 {
			side = domain.Sell
		}
		id := fmt.Sprintf("o%d", i)
		ids = append(ids, id)
		submit(t, e, limit(id, fmt.Sprintf("c%d", i%5), side, int64(95+i%10), int64(1+i%4)))
		for _, x := range ids {
			require.False(t, e.InPending(x) && e.InBook(x), "%s is both pending and resting", x)
		}
	}
}

func TestConcurrentOperations(t *testing.T) {
	e, _ := newTestEngine(WithDuplicatePolicy(DuplicateOff))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				side := domain.Buy
				if (w+i)%2 == 0 {
					side = domain.Sell
				}
				id := fmt.Sprintf("w%d-%d", w, i)
				_, err := e.Submit(limit(id, fmt.Sprintf("c%d", w), side, int64(100+i%5), 1))
				assert.NoError(t, err)
				if i%7 == 0 {
					e.Cancel(id)
				}
				e.Checkpoint()
			}
		}(w)
	}
	wg.Wait()

	for _, tr := range e.Trades() {
		assert.True(t, tr.Quantity.IsPositive())
	}
	for _, o := range e.PendingOrders() {
		assert.True(t, o.Active())
		assert.False(t, e.InBook(o.ID))
	}
}
