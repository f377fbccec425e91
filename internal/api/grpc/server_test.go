package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func startNode(t *testing.T, opts ...core.Option) (*node.Service, *Client) {
	t.Helper()
	svc := node.NewService(core.NewEngine(opts...))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metrics := grpc_prometheus.NewServerMetrics()
	prometheus.NewRegistry().MustRegister(metrics)
	srv := NewServer(NewGRPCServer(svc, zap.NewNop()), zap.NewNop(), metrics)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := NewClient(lis.Addr().String(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return svc, client
}

func limitOrder(id, client, side, price, qty string) *Order {
	return &Order{Id: id, ClientId: client, Symbol: "BTCUSD", Side: side, Type: "LIMIT", Price: price, Quantity: qty}
}

func code(err error) codes.Code { return status.Code(err) }

func TestSubmitAndMatchOverGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, c := startNode(t, core.WithBlockSize(1))

	resp, err := c.SubmitOrder(ctx, limitOrder("s1", "alice", "SELL", "100", "10"))
	require.NoError(t, err)
	assert.Equal(t, "OPEN", resp.Order.Status)
	require.NotNil(t, resp.Block)
	assert.Empty(t, resp.Block.Trades)

	resp, err = c.SubmitOrder(ctx, limitOrder("b1", "bob", "BUY", "105", "10"))
	require.NoError(t, err)
	require.Len(t, resp.Block.Trades, 1)
	assert.Equal(t, "102.5", resp.Block.Trades[0].Price)
	assert.Equal(t, "10", resp.Block.Trades[0].Quantity)
	assert.Equal(t, "FILLED", resp.Order.Status)

	trades, err := c.GetTrades(ctx, &GetTradesRequest{OrderId: "s1"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "alice", trades[0].Seller)
	assert.NotNil(t, trades[0].Timestamp)

	all, err := c.GetTrades(ctx, &GetTradesRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSubmitAssignsID(t *testing.T) {
	ctx := context.Background()
	_, c := startNode(t)
	resp, err := c.SubmitOrder(ctx, limitOrder("", "alice", "BUY", "1", "1"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Order.Id)
	assert.Nil(t, resp.Block)
}

func TestClientAssignsOrderIDBeforeSending(t *testing.T) {
	in := limitOrder("", "alice", "BUY", "1", "1")
	out := withOrderID(in)
	require.NotSame(t, in, out)
	assert.Empty(t, in.Id, "caller's message is not modified")
	_, err := uuid.Parse(out.Id)
	assert.NoError(t, err)
	assert.Equal(t, in.ClientId, out.ClientId)

	named := limitOrder("o1", "alice", "BUY", "1", "1")
	assert.Same(t, named, withOrderID(named))
	assert.Nil(t, withOrderID(nil))

	ctx := context.Background()
	_, c := startNode(t)
	resp, err := c.SubmitOrder(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, out.Id, resp.Order.Id)
	_, err = c.SubmitOrder(ctx, out)
	assert.Equal(t, codes.AlreadyExists, code(err), "a resent order is admitted once")
}

func TestErrorCodes(t *testing.T) {
	ctx := context.Background()
	_, c := startNode(t)

	_, err := c.SubmitOrder(ctx, limitOrder("q", "alice", "BUY", "100", "0"))
	assert.Equal(t, codes.InvalidArgument, code(err))
	assert.Contains(t, status.Convert(err).Message(), "quantity")

	_, err = c.SubmitOrder(ctx, limitOrder("p", "alice", "BUY", "abc", "1"))
	assert.Equal(t, codes.InvalidArgument, code(err))
	assert.Contains(t, status.Convert(err).Message(), "price")

	_, err = c.SubmitOrder(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = c.SubmitOrder(ctx, limitOrder("dup", "alice", "BUY", "100", "1"))
	require.NoError(t, err)
	_, err = c.SubmitOrder(ctx, limitOrder("dup", "alice", "BUY", "100", "1"))
	assert.Equal(t, codes.AlreadyExists, code(err))

	_, err = c.GetOrder(ctx, "missing")
	assert.Equal(t, codes.NotFound, code(err))

	_, err = c.GetOrderbook(ctx, "NOPE")
	assert.Equal(t, codes.NotFound, code(err))

	_, err = c.GetTrades(ctx, &GetTradesRequest{OrderId: "missing"})
	assert.Equal(t, codes.NotFound, code(err))
}

func TestCancelOverGRPC(t *testing.T) {
	ctx := context.Background()
	_, c := startNode(t)
	_, err := c.SubmitOrder(ctx, limitOrder("o1", "alice", "BUY", "100", "1"))
	require.NoError(t, err)

	ok, err := c.CancelOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.CancelOrder(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	o, err := c.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", o.Status)

	_, err = c.CancelOrder(ctx, "")
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestConsensusRunsCheckpoint(t *testing.T) {
	ctx := context.Background()
	svc, c := startNode(t, core.WithAutoCheckpoint(false))
	for i := 0; i < 3; i++ {
		_, err := c.SubmitOrder(ctx, limitOrder(fmt.Sprintf("o%d", i), "alice", "BUY", "100", "1"))
		require.NoError(t, err)
	}
	resp, err := c.Consensus(ctx)
	require.NoError(t, err)
	assert.False(t, resp.Executed)
	assert.Equal(t, 3, svc.Engine().PendingLen())

	for i := 3; i < 10; i++ {
		_, err := c.SubmitOrder(ctx, limitOrder(fmt.Sprintf("o%d", i), "alice", "BUY", "100", "1"))
		require.NoError(t, err)
	}
	require.NoError(t, c.Checkpoint(ctx))
	assert.Zero(t, svc.Engine().PendingLen())
	assert.Equal(t, uint64(1), svc.Engine().Height())

	ob, err := c.GetOrderbook(ctx, "BTCUSD")
	require.NoError(t, err)
	assert.Len(t, ob.Bids, 10)
	assert.Equal(t, "100", ob.Bids[0].Price)
}

func TestClientAsPeer(t *testing.T) {
	ctx := context.Background()
	remote, peer := startNode(t, core.WithAutoCheckpoint(false), core.WithBlockSize(1))
	o, err := orderFromPb(limitOrder("r1", "alice", "BUY", "100", "1"))
	require.NoError(t, err)
	_, err = remote.Submit(ctx, o)
	require.NoError(t, err)

	local := node.NewService(core.NewEngine(), node.WithPeers(time.Second, peer))
	o, err = orderFromPb(limitOrder("l1", "bob", "SELL", "100", "1"))
	require.NoError(t, err)
	_, err = local.Submit(ctx, o)
	require.NoError(t, err)
	local.Close()

	assert.Equal(t, uint64(1), remote.Engine().Height(), "submit on one node checkpoints its peers")
}
