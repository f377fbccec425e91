package grpc

import "google.golang.org/protobuf/types/known/timestamppb"

// Decimal amounts are carried as strings to keep their exact value.

type Order struct {
	Id             string                 `json:"id"`
	ClientId       string                 `json:"client_id"`
	Symbol         string                 `json:"symbol"`
	Side           string                 `json:"side"`
	Type           string                 `json:"type,omitempty"`
	Price          string                 `json:"price,omitempty"`
	Quantity       string                 `json:"quantity"`
	FilledQuantity string                 `json:"filled_quantity,omitempty"`
	Remaining      string                 `json:"remaining,omitempty"`
	Aon            bool                   `json:"aon,omitempty"`
	Ioc            bool                   `json:"ioc,omitempty"`
	Gtc            bool                   `json:"gtc,omitempty"`
	Gfd            bool                   `json:"gfd,omitempty"`
	Gtd            bool                   `json:"gtd,omitempty"`
	Stop           bool                   `json:"stop,omitempty"`
	StopPrice      string                 `json:"stop_price,omitempty"`
	ExpireAt       *timestamppb.Timestamp `json:"expire_at,omitempty"`
	Status         string                 `json:"status,omitempty"`
	CreatedAt      *timestamppb.Timestamp `json:"created_at,omitempty"`
}

type Trade struct {
	Id        string                 `json:"id"`
	Symbol    string                 `json:"symbol"`
	Buyer     string                 `json:"buyer"`
	Seller    string                 `json:"seller"`
	BuyOrder  string                 `json:"buy_order"`
	SellOrder string                 `json:"sell_order"`
	Price     string                 `json:"price"`
	Quantity  string                 `json:"quantity"`
	Timestamp *timestamppb.Timestamp `json:"timestamp"`
}

type Block struct {
	Height   uint64   `json:"height"`
	OrderIds []string `json:"order_ids"`
	Trades   []*Trade `json:"trades"`
	Dropped  []string `json:"dropped,omitempty"`
}

type SubmitOrderRequest struct {
	Order *Order `json:"order"`
}

type SubmitOrderResponse struct {
	Order *Order `json:"order"`
	Block *Block `json:"block,omitempty"`
}

type CancelOrderRequest struct {
	OrderId string `json:"order_id"`
}

type CancelOrderResponse struct {
	OrderId   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

// ConsensusRequest asks a node to run its checkpoint. From names the asking
// node and is only logged.
type ConsensusRequest struct {
	From string `json:"from,omitempty"`
}

type ConsensusResponse struct {
	Executed bool   `json:"executed"`
	Block    *Block `json:"block,omitempty"`
}

type GetOrderRequest struct {
	OrderId string `json:"order_id"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderbookRequest struct {
	Symbol string `json:"symbol"`
}

type GetOrderbookResponse struct {
	Symbol    string                 `json:"symbol"`
	Bids      []*Order               `json:"bids"`
	Asks      []*Order               `json:"asks"`
	Timestamp *timestamppb.Timestamp `json:"timestamp"`
}

// GetTradesRequest filters by order when OrderId is set, otherwise by client
// when ClientId is set, otherwise returns the whole ledger.
type GetTradesRequest struct {
	OrderId  string `json:"order_id,omitempty"`
	ClientId string `json:"client_id,omitempty"`
}

type GetTradesResponse struct {
	Trades []*Trade `json:"trades"`
}
