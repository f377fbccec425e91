package grpc

import (
	"fmt"

	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &domain.InvalidOrderError{Field: field, Reason: fmt.Sprintf("not a decimal: %q", s)}
	}
	return d, nil
}

func orderFromPb(in *Order) (*domain.Order, error) {
	if in == nil {
		return nil, &domain.InvalidOrderError{Field: "order", Reason: "missing"}
	}
	price, err := parseDecimal("price", in.Price)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal("quantity", in.Quantity)
	if err != nil {
		return nil, err
	}
	stop, err := parseDecimal("stop_price", in.StopPrice)
	if err != nil {
		return nil, err
	}
	o := &domain.Order{
		ID:       in.Id,
		ClientID: in.ClientId,
		Symbol:   in.Symbol,
		Side:     domain.Side(in.Side),
		Type:     domain.OrderType(in.Type),
		Price:    price,
		Quantity: qty,
		TimeInForce: domain.TimeInForce{
			AON: in.Aon,
			IOC: in.Ioc,
			GTC: in.Gtc,
			GFD: in.Gfd,
			GTD: in.Gtd,
		},
		Stop:      in.Stop,
		StopPrice: stop,
	}
	if in.ExpireAt != nil {
		o.ExpireAt = in.ExpireAt.AsTime()
	}
	return o, nil
}

func orderToPb(o *domain.Order) *Order {
	out := &Order{
		Id:             o.ID,
		ClientId:       o.ClientID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Price:          o.Price.String(),
		Quantity:       o.Quantity.String(),
		FilledQuantity: o.FilledQuantity.String(),
		Remaining:      o.Remaining.String(),
		Aon:            o.TimeInForce.AON,
		Ioc:            o.TimeInForce.IOC,
		Gtc:            o.TimeInForce.GTC,
		Gfd:            o.TimeInForce.GFD,
		Gtd:            o.TimeInForce.GTD,
		Stop:           o.Stop,
		Status:         string(o.Status),
		CreatedAt:      timestamppb.New(o.CreatedAt),
	}
	if o.Stop {
		out.StopPrice = o.StopPrice.String()
	}
	if !o.ExpireAt.IsZero() {
		out.ExpireAt = timestamppb.New(o.ExpireAt)
	}
	return out
}

func ordersToPb(in []domain.Order) []*Order {
	out := make([]*Order, 0, len(in))
	for i := range in {
		out = append(out, orderToPb(&in[i]))
	}
	return out
}

func tradesToPb(in []domain.Trade) []*Trade {
	out := make([]*Trade, 0, len(in))
	for _, t := range in {
		out = append(out, &Trade{
			Id:        t.ID,
			Symbol:    t.Symbol,
			Buyer:     t.BuyerClientID,
			Seller:    t.SellerClientID,
			BuyOrder:  t.BuyOrder,
			SellOrder: t.SellOrder,
			Price:     t.Price.String(),
			Quantity:  t.Quantity.String(),
			Timestamp: timestamppb.New(t.Timestamp),
		})
	}
	return out
}

func blockToPb(b *core.Block) *Block {
	if b == nil {
		return nil
	}
	return &Block{
		Height:   b.Height,
		OrderIds: b.OrderIDs,
		Trades:   tradesToPb(b.Trades),
		Dropped:  b.Dropped,
	}
}
