package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "exchange.node.v1.Node"

// NodeServer is the peer-facing API of a node.
type NodeServer interface {
	SubmitOrder(context.Context, *SubmitOrderRequest) (*SubmitOrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	Consensus(context.Context, *ConsensusRequest) (*ConsensusResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	GetOrderbook(context.Context, *GetOrderbookRequest) (*GetOrderbookResponse, error)
	GetTrades(context.Context, *GetTradesRequest) (*GetTradesResponse, error)
}

var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitOrder", NodeServer.SubmitOrder),
		unary("CancelOrder", NodeServer.CancelOrder),
		unary("Consensus", NodeServer.Consensus),
		unary("GetOrder", NodeServer.GetOrder),
		unary("GetOrderbook", NodeServer.GetOrderbook),
		unary("GetTrades", NodeServer.GetTrades),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "exchange/node/v1/node.json",
}

func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&NodeServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

func unary[Req, Resp any](name string, call func(NodeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NodeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(NodeServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
