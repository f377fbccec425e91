package port

import (
	"context"

	"github.com/olyamironova/peer-exchange/internal/domain"
)

// Cache holds orderbook snapshots for readers. A miss is (nil, nil).
type Cache interface {
	SetOrderbook(ctx context.Context, symbol string, ob *domain.OrderbookSnapshot) error
	GetOrderbook(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error)
	Invalidate(ctx context.Context, symbol string) error
}
