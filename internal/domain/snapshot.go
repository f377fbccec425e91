package domain

import "time"

type OrderbookSnapshot struct {
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
}

func (s *OrderbookSnapshot) DeepCopy() *OrderbookSnapshot {
	if s == nil {
		return nil
	}
	out := &OrderbookSnapshot{
		Symbol:    s.Symbol,
		Timestamp: s.Timestamp,
		Bids:      make([]Order, len(s.Bids)),
		Asks:      make([]Order, len(s.Asks)),
	}
	copy(out.Bids, s.Bids)
	copy(out.Asks, s.Asks)
	return out
}
