package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/node"
	"github.com/olyamironova/peer-exchange/internal/port"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type GRPCServer struct {
	svc    *node.Service
	logger *zap.Logger
}

var _ NodeServer = (*GRPCServer)(nil)

func NewGRPCServer(svc *node.Service, logger *zap.Logger) *GRPCServer {
	return &GRPCServer{svc: svc, logger: logger}
}

// NewServer builds a grpc server with recovery, logging and, when metrics is
// non-nil, request metrics, and registers srv on it.
func NewServer(srv NodeServer, logger *zap.Logger, metrics *grpc_prometheus.ServerMetrics) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(func(p any) error {
			logger.Error("grpc handler panic", zap.Any("panic", p))
			return status.Errorf(codes.Internal, "internal error")
		})),
		grpc_zap.UnaryServerInterceptor(logger),
	}
	if metrics != nil {
		interceptors = append([]grpc.UnaryServerInterceptor{metrics.UnaryServerInterceptor()}, interceptors...)
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterNodeServer(s, srv)
	if metrics != nil {
		metrics.InitializeMetrics(s)
	}
	return s
}

func (s *GRPCServer) SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*SubmitOrderResponse, error) {
	o, err := orderFromPb(req.Order)
	if err != nil {
		return nil, toStatus(err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	blk, err := s.svc.Submit(ctx, o)
	if err != nil {
		return nil, toStatus(err)
	}
	admitted, err := s.svc.Order(ctx, o.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitOrderResponse{
		Order: orderToPb(&admitted),
		Block: blockToPb(blk),
	}, nil
}

func (s *GRPCServer) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	if req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id: required")
	}
	return &CancelOrderResponse{
		OrderId:   req.OrderId,
		Cancelled: s.svc.Cancel(ctx, req.OrderId),
	}, nil
}

func (s *GRPCServer) Consensus(ctx context.Context, req *ConsensusRequest) (*ConsensusResponse, error) {
	blk := s.svc.Checkpoint(ctx)
	s.logger.Debug("checkpoint requested", zap.String("from", req.From), zap.Bool("executed", blk != nil))
	return &ConsensusResponse{Executed: blk != nil, Block: blockToPb(blk)}, nil
}

func (s *GRPCServer) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	o, err := s.svc.Order(ctx, req.OrderId)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetOrderResponse{Order: orderToPb(&o)}, nil
}

func (s *GRPCServer) GetOrderbook(ctx context.Context, req *GetOrderbookRequest) (*GetOrderbookResponse, error) {
	ob, err := s.svc.Orderbook(ctx, req.Symbol)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetOrderbookResponse{
		Symbol:    ob.Symbol,
		Bids:      ordersToPb(ob.Bids),
		Asks:      ordersToPb(ob.Asks),
		Timestamp: timestamppb.New(ob.Timestamp),
	}, nil
}

func (s *GRPCServer) GetTrades(ctx context.Context, req *GetTradesRequest) (*GetTradesResponse, error) {
	if req.OrderId != "" {
		trades, err := s.svc.TradesForOrder(ctx, req.OrderId)
		if err != nil {
			return nil, toStatus(err)
		}
		return &GetTradesResponse{Trades: tradesToPb(trades)}, nil
	}
	return &GetTradesResponse{Trades: tradesToPb(s.svc.Trades(ctx, req.ClientId))}, nil
}

func toStatus(err error) error {
	var invalid *domain.InvalidOrderError
	switch {
	case errors.As(err, &invalid):
		return status.Error(codes.InvalidArgument, invalid.Error())
	case errors.Is(err, core.ErrDuplicateOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, port.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, fmt.Sprintf("internal: %v", err))
}
