package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type OrderStatus string

const (
	Buy             Side        = "BUY"
	Sell            Side        = "SELL"
	Limit           OrderType   = "LIMIT"
	Market          OrderType   = "MARKET"
	New             OrderStatus = "NEW"
	Rejected        OrderStatus = "REJECTED"
	Open            OrderStatus = "OPEN"
	PartiallyFilled OrderStatus = "PARTIALLY FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
	Expired         OrderStatus = "EXPIRED"
	Dropped         OrderStatus = "DROPPED"
)

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TimeInForce carries the execution and expiry modifiers of an order.
// AON and IOC may be combined; at most one of GTC, GFD and GTD is set.
type TimeInForce struct {
	AON bool `json:"aon,omitempty"`
	IOC bool `json:"ioc,omitempty"`
	GTC bool `json:"gtc,omitempty"`
	GFD bool `json:"gfd,omitempty"`
	GTD bool `json:"gtd,omitempty"`
}

type Order struct {
	ID             string          `json:"id" validate:"required"`
	ClientID       string          `json:"client_id" validate:"required"`
	Symbol         string          `json:"symbol" validate:"required"`
	Side           Side            `json:"side" validate:"required"`
	Type           OrderType       `json:"type"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Remaining      decimal.Decimal `json:"remaining"`
	TimeInForce    TimeInForce     `json:"time_in_force"`
	Stop           bool            `json:"stop,omitempty"`
	StopPrice      decimal.Decimal `json:"stop_price"`
	ExpireAt       time.Time       `json:"expire_at,omitempty"`
	Canceled       bool            `json:"canceled,omitempty"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (o *Order) PartiallyFilled() bool {
	return o.FilledQuantity.GreaterThan(decimal.Zero) &&
		o.FilledQuantity.LessThan(o.Quantity)
}

// Active reports whether the order may still sit in the pending queue or the book.
func (o *Order) Active() bool {
	return o.Status == Open || o.Status == PartiallyFilled
}

// Fill books qty against the order and moves it to PARTIALLY FILLED or FILLED.
func (o *Order) Fill(qty decimal.Decimal, at time.Time) {
	o.Remaining = o.Remaining.Sub(qty)
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.UpdatedAt = at
	if o.Remaining.Sign() <= 0 {
		o.Remaining = decimal.Zero
		o.Status = Filled
		return
	}
	o.Status = PartiallyFilled
}

// ExpiresAt returns the instant a GFD or GTD order stops being eligible.
// GFD orders expire at the end of the UTC day they were admitted on.
func (o *Order) ExpiresAt() (time.Time, bool) {
	switch {
	case o.TimeInForce.GTD:
		return o.ExpireAt, true
	case o.TimeInForce.GFD:
		y, m, d := o.CreatedAt.UTC().Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func (o *Order) ExpiredAt(now time.Time) bool {
	at, ok := o.ExpiresAt()
	return ok && !now.Before(at)
}

// StopTriggered reports whether a stop order may trade given the last traded
// price of its instrument. Non-stop orders are always triggered.
func (o *Order) StopTriggered(last decimal.Decimal, traded bool) bool {
	if !o.Stop {
		return true
	}
	if !traded {
		return false
	}
	if o.Side == Buy {
		return last.GreaterThanOrEqual(o.StopPrice)
	}
	return last.LessThanOrEqual(o.StopPrice)
}
