package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Trade struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	BuyerClientID  string          `json:"buyer"`
	SellerClientID string          `json:"seller"`
	BuyOrder       string          `json:"buy_order"`
	SellOrder      string          `json:"sell_order"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Timestamp      time.Time       `json:"timestamp"`
}
