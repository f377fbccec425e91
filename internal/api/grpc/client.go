package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"github.com/olyamironova/peer-exchange/internal/port"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Client talks to a remote node. It doubles as a port.Peer.
type Client struct {
	addr string
	from string
	conn *grpc.ClientConn
}

var _ port.Peer = (*Client)(nil)

// DialOptions are the options every peer connection is created with.
func DialOptions(extra ...grpc.DialOption) []grpc.DialOption {
	const (
		retries = 3
		backoff = 100 * time.Millisecond
	)
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    10 * time.Second,
			Timeout: 2 * time.Second,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc_retry.WithMax(retries),
		),
		grpc.WithUnaryInterceptor(
			grpc_retry.UnaryClientInterceptor(grpc_retry.WithBackoff(grpc_retry.BackoffExponential(backoff))),
		),
	}
	return append(opts, extra...)
}

// NewClient creates a lazy connection to addr. from identifies the calling
// node in Consensus requests.
func NewClient(addr, from string, extra ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(addr, DialOptions(extra...)...)
	if err != nil {
		return nil, fmt.Errorf("grpc: dial %s: %w", addr, err)
	}
	return &Client{addr: addr, from: from, conn: conn}, nil
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) Close() error { return c.conn.Close() }

// Checkpoint asks the remote node to run its checkpoint.
func (c *Client) Checkpoint(ctx context.Context) error {
	_, err := c.Consensus(ctx)
	return err
}

func (c *Client) Consensus(ctx context.Context) (*ConsensusResponse, error) {
	out := new(ConsensusResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Consensus"), &ConsensusRequest{From: c.from}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitOrder assigns an id to o before sending when it has none, so every
// retry of the call carries the same id.
func (c *Client) SubmitOrder(ctx context.Context, o *Order) (*SubmitOrderResponse, error) {
	out := new(SubmitOrderResponse)
	if err := c.conn.Invoke(ctx, fullMethod("SubmitOrder"), &SubmitOrderRequest{Order: withOrderID(o)}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	out := new(CancelOrderResponse)
	if err := c.conn.Invoke(ctx, fullMethod("CancelOrder"), &CancelOrderRequest{OrderId: orderID}, out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	out := new(GetOrderResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetOrder"), &GetOrderRequest{OrderId: orderID}, out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *Client) GetOrderbook(ctx context.Context, symbol string) (*GetOrderbookResponse, error) {
	out := new(GetOrderbookResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetOrderbook"), &GetOrderbookRequest{Symbol: symbol}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTrades(ctx context.Context, req *GetTradesRequest) ([]*Trade, error) {
	out := new(GetTradesResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetTrades"), req, out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

func withOrderID(o *Order) *Order {
	if o == nil || o.Id != "" {
		return o
	}
	cp := *o
	cp.Id = uuid.NewString()
	return &cp
}
