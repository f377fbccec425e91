package core

import "github.com/olyamironova/peer-exchange/internal/domain"

// Ledger is the append-only record of executed trades.
type Ledger struct {
	trades   []domain.Trade
	byClient map[string][]int
	byOrder  map[string][]int
}

func NewLedger() *Ledger {
	return &Ledger{
		byClient: make(map[string][]int),
		byOrder:  make(map[string][]int),
	}
}

func (l *Ledger) Append(trades ...domain.Trade) {
	for _, t := range trades {
		i := len(l.trades)
		l.trades = append(l.trades, t)
		l.byClient[t.BuyerClientID] = append(l.byClient[t.BuyerClientID], i)
		if t.SellerClientID != t.BuyerClientID {
			l.byClient[t.SellerClientID] = append(l.byClient[t.SellerClientID], i)
		}
		l.byOrder[t.BuyOrder] = append(l.byOrder[t.BuyOrder], i)
		l.byOrder[t.SellOrder] = append(l.byOrder[t.SellOrder], i)
	}
}

// HasClient reports whether clientID bought or sold in any recorded trade.
func (l *Ledger) HasClient(clientID string) bool {
	return len(l.byClient[clientID]) > 0
}

func (l *Ledger) Len() int { return len(l.trades) }

func (l *Ledger) All() []domain.Trade {
	out := make([]domain.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) ForOrder(orderID string) []domain.Trade {
	return l.pick(l.byOrder[orderID])
}

func (l *Ledger) ForClient(clientID string) []domain.Trade {
	return l.pick(l.byClient[clientID])
}

func (l *Ledger) pick(idx []int) []domain.Trade {
	out := make([]domain.Trade, 0, len(idx))
	for _, i := range idx {
		out = append(out, l.trades[i])
	}
	return out
}
