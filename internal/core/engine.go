package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/olyamironova/peer-exchange/internal/book"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/metrics"
	"github.com/olyamironova/peer-exchange/internal/pending"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrDuplicateOrder = errors.New("order id already used")

// Engine implements the order book core: admission, batching into blocks,
// block execution and cancellation. A single mutex spans every operation,
// so no two mutations ever interleave.
type Engine struct {
	mu        sync.Mutex
	books     map[string]*book.Book
	pending   *pending.Queue
	orders    map[string]*domain.Order
	ledger    *Ledger
	lastPrice map[string]decimal.Decimal
	height    uint64

	blockSize      int
	autoCheckpoint bool
	policy         DuplicatePolicy
	logger         *zap.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

type Option func(*Engine)

// WithBlockSize sets the pending queue length that forms a block.
func WithBlockSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.blockSize = n
		}
	}
}

// WithAutoCheckpoint makes Submit attempt a block after admitting an order.
func WithAutoCheckpoint(on bool) Option {
	return func(e *Engine) { e.autoCheckpoint = on }
}

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		books:          make(map[string]*book.Book),
		pending:        pending.NewQueue(),
		orders:         make(map[string]*domain.Order),
		ledger:         NewLedger(),
		lastPrice:      make(map[string]decimal.Decimal),
		blockSize:      pending.DefaultBlockSize,
		autoCheckpoint: true,
		policy:         DuplicateByClient,
		logger:         zap.NewNop(),
		metrics:        metrics.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates and admits an order to the pending queue. The caller's
// order is copied, never retained. When auto checkpointing is on and the
// queue reaches the block size, the resulting block is executed and
// returned; otherwise the block is nil.
func (e *Engine) Submit(in *domain.Order) (*Block, error) {
	if err := domain.Validate(in); err != nil {
		e.metrics.OrdersRejected.Inc()
		e.logger.Debug("order rejected", zap.Error(err))
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.orders[in.ID]; ok {
		e.metrics.OrdersRejected.Inc()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, in.ID)
	}

	now := e.now()
	o := *in
	if o.Type == "" {
		o.Type = domain.Limit
	}
	o.Remaining = o.Quantity
	o.FilledQuantity = decimal.Zero
	o.Status = domain.Open
	o.Canceled = false
	o.CreatedAt = now
	o.UpdatedAt = now
	e.orders[o.ID] = &o
	e.pending.Enqueue(&o)

	e.metrics.OrdersSubmitted.Inc()
	e.metrics.PendingOrders.Set(float64(e.pending.Len()))
	e.logger.Debug("order admitted",
		zap.String("order_id", o.ID),
		zap.String("client_id", o.ClientID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Stringer("price", o.Price),
		zap.Stringer("quantity", o.Quantity),
		zap.Int("pending", e.pending.Len()),
	)

	if !e.autoCheckpoint {
		return nil, nil
	}
	return e.checkpoint(), nil
}

// Cancel removes an active order from the pending queue or the book. An
// unknown or already terminal id is not an error; it reports false.
func (e *Engine) Cancel(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok || !o.Active() {
		e.logger.Debug("cancel: order not found", zap.String("order_id", orderID))
		return false
	}
	queued := e.pending.Remove(orderID)
	rested := false
	if b, ok := e.books[o.Symbol]; ok {
		rested = b.Remove(orderID)
	}
	if !queued && !rested {
		return false
	}
	e.cancelled(o, e.now())
	e.refreshGauges(o.Symbol)
	e.logger.Info("order cancelled", zap.String("order_id", orderID), zap.Bool("resting", rested))
	return true
}

// Checkpoint forms and executes one block if the pending queue has reached
// the block size. Below it, it changes nothing and returns nil.
func (e *Engine) Checkpoint() *Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpoint()
}

func (e *Engine) checkpoint() *Block {
	orders := e.pending.TryFormBlock(e.blockSize)
	if orders == nil {
		return nil
	}
	return e.executeBlock(orders)
}

func (e *Engine) cancelled(o *domain.Order, now time.Time) {
	o.Status = domain.Cancelled
	o.Canceled = true
	o.UpdatedAt = now
	e.metrics.OrdersCancelled.Inc()
}

func (e *Engine) bookFor(symbol string) *book.Book {
	b, ok := e.books[symbol]
	if !ok {
		b = book.New(symbol)
		e.books[symbol] = b
	}
	return b
}

func (e *Engine) refreshGauges(symbols ...string) {
	e.metrics.PendingOrders.Set(float64(e.pending.Len()))
	for _, s := range symbols {
		if b, ok := e.books[s]; ok {
			e.metrics.RestingOrders.WithLabelValues(s).Set(float64(b.Len()))
		}
	}
}

func (e *Engine) Order(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// InPending reports whether the order is waiting in the pending queue.
func (e *Engine) InPending(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Contains(orderID)
}

// InBook reports whether the order is resting in its instrument's book.
func (e *Engine) InBook(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return false
	}
	b, ok := e.books[o.Symbol]
	return ok && b.Contains(orderID)
}

func (e *Engine) Trades() []domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.All()
}

func (e *Engine) TradesForOrder(orderID string) []domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ForOrder(orderID)
}

func (e *Engine) TradesForClient(clientID string) []domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ForClient(clientID)
}

// Orderbook returns a copy of the resting orders of symbol.
func (e *Engine) Orderbook(symbol string) (*domain.OrderbookSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		return nil, false
	}
	return b.Snapshot(e.now()), true
}

func (e *Engine) PendingLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Len()
}

// PendingOrders lists copies of the queued orders, oldest first.
func (e *Engine) PendingOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	queued := e.pending.Orders()
	out := make([]domain.Order, len(queued))
	for i, o := range queued {
		out[i] = *o
	}
	return out
}

// Height is the number of blocks executed so far.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

func (e *Engine) BlockSize() int { return e.blockSize }
