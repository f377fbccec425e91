package node

import (
	"context"

	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/port"
	"go.uber.org/zap"
)

func (s *Service) withTx(ctx context.Context, fn func(tx port.Tx) error) (err error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()
	return fn(tx)
}

// journalBlock writes every order a block changed together with its trades
// in one transaction.
func (s *Service) journalBlock(ctx context.Context, blk *core.Block) error {
	if s.repo == nil {
		return nil
	}
	return s.withTx(ctx, func(tx port.Tx) error {
		for i := range blk.Updated {
			if err := tx.SaveOrder(ctx, &blk.Updated[i]); err != nil {
				return err
			}
		}
		for i := range blk.Trades {
			if err := tx.SaveTrade(ctx, &blk.Trades[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) journalOrder(ctx context.Context, o *domain.Order) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveOrder(ctx, o); err != nil {
		s.logger.Error("journal order", zap.String("order_id", o.ID), zap.Error(err))
	}
}
