// Package node runs an engine as a network peer: it journals executed blocks,
// keeps the orderbook cache fresh and asks the other peers to checkpoint.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultPeerTimeout = 10 * time.Second

type Service struct {
	eng         *core.Engine
	repo        port.Repository
	cache       port.Cache
	peers       []port.Peer
	peerTimeout time.Duration
	logger      *zap.Logger

	// mu orders each engine mutation with the journal and cache writes that
	// follow it.
	mu sync.Mutex
	// background peer fan-outs
	wg sync.WaitGroup
}

type Option func(*Service)

func WithRepository(r port.Repository) Option {
	return func(s *Service) { s.repo = r }
}

func WithCache(c port.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPeers(timeout time.Duration, peers ...port.Peer) Option {
	return func(s *Service) {
		s.peers = append(s.peers, peers...)
		if timeout > 0 {
			s.peerTimeout = timeout
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(eng *core.Engine, opts ...Option) *Service {
	s := &Service{
		eng:         eng,
		peerTimeout: DefaultPeerTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Engine() *core.Engine { return s.eng }

// Submit admits o to the engine. The returned block is non-nil when the
// submission completed a batch.
func (s *Service) Submit(ctx context.Context, o *domain.Order) (*core.Block, error) {
	s.mu.Lock()
	blk, err := s.eng.Submit(o)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if admitted, ok := s.eng.Order(o.ID); ok {
		s.journalOrder(ctx, &admitted)
	}
	s.afterBlock(ctx, blk)
	s.refreshCache(ctx, o.Symbol)
	s.mu.Unlock()

	s.notifyPeers()
	return blk, nil
}

// Cancel reports false for unknown ids and for orders that are no longer
// active.
func (s *Service) Cancel(ctx context.Context, orderID string) bool {
	s.mu.Lock()
	if !s.eng.Cancel(orderID) {
		s.mu.Unlock()
		return false
	}
	if o, ok := s.eng.Order(orderID); ok {
		s.journalOrder(ctx, &o)
		s.refreshCache(ctx, o.Symbol)
	}
	s.mu.Unlock()

	s.notifyPeers()
	return true
}

// Checkpoint runs one block if the pending queue is full enough. It never
// contacts peers, so a checkpoint request from a peer does not echo back.
func (s *Service) Checkpoint(ctx context.Context) *core.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	blk := s.eng.Checkpoint()
	s.afterBlock(ctx, blk)
	return blk
}

// Order looks orderID up in the engine and, for orders this process does
// not hold (journaled before a restart), in the journal.
func (s *Service) Order(ctx context.Context, orderID string) (domain.Order, error) {
	if o, ok := s.eng.Order(orderID); ok {
		return o, nil
	}
	if s.repo != nil {
		o, err := s.repo.LoadOrder(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		return *o, nil
	}
	return domain.Order{}, fmt.Errorf("order %s: %w", orderID, port.ErrNotFound)
}

func (s *Service) TradesForOrder(ctx context.Context, orderID string) ([]domain.Trade, error) {
	if _, ok := s.eng.Order(orderID); ok {
		return s.eng.TradesForOrder(orderID), nil
	}
	if s.repo == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, port.ErrNotFound)
	}
	if _, err := s.repo.LoadOrder(ctx, orderID); err != nil {
		return nil, err
	}
	journaled, err := s.repo.LoadTradesForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, len(journaled))
	for i, t := range journaled {
		trades[i] = *t
	}
	return trades, nil
}

func (s *Service) Trades(ctx context.Context, clientID string) []domain.Trade {
	if clientID != "" {
		return s.eng.TradesForClient(clientID)
	}
	return s.eng.Trades()
}

// Orderbook serves from the cache when it holds the symbol and falls back
// to the engine, writing the result back.
func (s *Service) Orderbook(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error) {
	if s.cache != nil {
		ob, err := s.cache.GetOrderbook(ctx, symbol)
		if err != nil {
			s.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
		} else if ob != nil {
			return ob, nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok := s.eng.Orderbook(symbol)
	if !ok {
		return nil, fmt.Errorf("orderbook %s: %w", symbol, port.ErrNotFound)
	}
	if s.cache != nil {
		if err := s.cache.SetOrderbook(ctx, symbol, ob); err != nil {
			s.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return ob, nil
}

// Close waits for in-flight peer requests.
func (s *Service) Close() {
	s.wg.Wait()
}

func (s *Service) afterBlock(ctx context.Context, blk *core.Block) {
	if blk == nil {
		return
	}
	if err := s.journalBlock(ctx, blk); err != nil {
		s.logger.Error("journal block", zap.Uint64("height", blk.Height), zap.Error(err))
	}
	for _, sym := range blk.Symbols() {
		s.refreshCache(ctx, sym)
	}
}

func (s *Service) refreshCache(ctx context.Context, symbol string) {
	if s.cache == nil {
		return
	}
	ob, ok := s.eng.Orderbook(symbol)
	var err error
	if ok {
		err = s.cache.SetOrderbook(ctx, symbol, ob)
	} else {
		err = s.cache.Invalidate(ctx, symbol)
	}
	if err != nil {
		s.logger.Warn("cache refresh failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// notifyPeers asks every peer to checkpoint, concurrently and in the
// background. Failures are logged only.
func (s *Service) notifyPeers() {
	if len(s.peers) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.peerTimeout)
		defer cancel()

		var g errgroup.Group
		for _, p := range s.peers {
			g.Go(func() error {
				if err := p.Checkpoint(ctx); err != nil {
					s.logger.Warn("peer checkpoint failed", zap.String("peer", p.Addr()), zap.Error(err))
					return err
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}
