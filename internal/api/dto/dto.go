package dto

import (
	"time"

	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

type SubmitOrderRequest struct {
	OrderID   string          `json:"order_id,omitempty"` // assigned when empty
	ClientID  string          `json:"client_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Type      string          `json:"type,omitempty"`
	Price     decimal.Decimal `json:"price,omitempty"` // for limit orders
	Quantity  decimal.Decimal `json:"quantity"`
	AON       bool            `json:"aon,omitempty"`
	IOC       bool            `json:"ioc,omitempty"`
	GTC       bool            `json:"gtc,omitempty"`
	GFD       bool            `json:"gfd,omitempty"`
	GTD       bool            `json:"gtd,omitempty"`
	Stop      bool            `json:"stop,omitempty"`
	StopPrice decimal.Decimal `json:"stop_price,omitempty"`
	ExpireAt  *time.Time      `json:"expire_at,omitempty"`
}

func (r *SubmitOrderRequest) ToDomain() *domain.Order {
	o := &domain.Order{
		ID:       r.OrderID,
		ClientID: r.ClientID,
		Symbol:   r.Symbol,
		Side:     domain.Side(r.Side),
		Type:     domain.OrderType(r.Type),
		Price:    r.Price,
		Quantity: r.Quantity,
		TimeInForce: domain.TimeInForce{
			AON: r.AON,
			IOC: r.IOC,
			GTC: r.GTC,
			GFD: r.GFD,
			GTD: r.GTD,
		},
		Stop:      r.Stop,
		StopPrice: r.StopPrice,
	}
	if r.ExpireAt != nil {
		o.ExpireAt = *r.ExpireAt
	}
	return o
}

type SubmitOrderResponse struct {
	Order Order  `json:"order"`
	Block *Block `json:"block,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type GetTradesResponse struct {
	Trades []Trade `json:"trades"`
}

type GetOrderbookRequest struct {
	Symbol string `form:"symbol" binding:"required"`
}

type GetOrderbookResponse struct {
	Symbol    string    `json:"symbol"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckpointResponse struct {
	Executed bool   `json:"executed"`
	Block    *Block `json:"block,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type Order struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"client_id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Type           string          `json:"type"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Remaining      decimal.Decimal `json:"remaining"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Buyer     string          `json:"buyer"`
	Seller    string          `json:"seller"`
	BuyOrder  string          `json:"buy_order"`
	SellOrder string          `json:"sell_order"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

type Block struct {
	Height     uint64    `json:"height"`
	OrderIDs   []string  `json:"order_ids"`
	Trades     []Trade   `json:"trades"`
	Dropped    []string  `json:"dropped,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

func FromOrder(o *domain.Order) Order {
	return Order{
		ID:             o.ID,
		ClientID:       o.ClientID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Remaining:      o.Remaining,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func FromOrders(orders []domain.Order) []Order {
	res := make([]Order, len(orders))
	for i := range orders {
		res[i] = FromOrder(&orders[i])
	}
	return res
}

func FromTrades(trades []domain.Trade) []Trade {
	res := make([]Trade, len(trades))
	for i, t := range trades {
		res[i] = Trade{
			ID:        t.ID,
			Symbol:    t.Symbol,
			Buyer:     t.BuyerClientID,
			Seller:    t.SellerClientID,
			BuyOrder:  t.BuyOrder,
			SellOrder: t.SellOrder,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Timestamp: t.Timestamp,
		}
	}
	return res
}

func FromBlock(b *core.Block) *Block {
	if b == nil {
		return nil
	}
	return &Block{
		Height:     b.Height,
		OrderIDs:   b.OrderIDs,
		Trades:     FromTrades(b.Trades),
		Dropped:    b.Dropped,
		ExecutedAt: b.ExecutedAt,
	}
}
