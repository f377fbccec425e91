package port

import (
	"context"
	"errors"

	"github.com/olyamironova/peer-exchange/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Repository is the write-behind journal of a node. The engine stays the
// source of truth and is never rebuilt from it; the Load methods answer
// queries for orders the running engine does not hold.
//
// SaveOrder keeps the row with the latest UpdatedAt.
type Repository interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error
	LoadOrder(ctx context.Context, orderID string) (*domain.Order, error)
	LoadTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error)
	BeginTx(ctx context.Context) (Tx, error)
}

type Tx interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
