package core

import (
	"time"

	"github.com/olyamironova/peer-exchange/internal/domain"
)

// Block is the outcome of one batching cycle.
type Block struct {
	Height     uint64
	OrderIDs   []string
	Trades     []domain.Trade
	Dropped    []string
	Updated    []domain.Order
	ExecutedAt time.Time
}

// Symbols lists the instruments whose orders the block changed.
func (b *Block) Symbols() []string {
	if b == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(b.Updated))
	var out []string
	for _, o := range b.Updated {
		if _, ok := seen[o.Symbol]; ok {
			continue
		}
		seen[o.Symbol] = struct{}{}
		out = append(out, o.Symbol)
	}
	return out
}
