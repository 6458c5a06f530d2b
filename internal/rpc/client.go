package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the engine service over its Unix domain socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the engine socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix:"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial engine: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MakeOrder(ctx context.Context, req *MakeOrderRequest) (*MakeOrderResponse, error) {
	return invoke[MakeOrderResponse](ctx, c, "MakeOrder", req)
}

func (c *Client) CancelOrder(ctx context.Context, req *CancelOrderRequest) error {
	_, err := invoke[Empty](ctx, c, "CancelOrder", req)
	return err
}

func (c *Client) DispatchOrderFillProportionalFee(ctx context.Context, req *DispatchOrderRequest) (*FillResponse, error) {
	return invoke[FillResponse](ctx, c, "DispatchOrderFillProportionalFee", req)
}

func (c *Client) DispatchOrderFillFixedFee(ctx context.Context, req *DispatchOrderRequest) (*FillResponse, error) {
	return invoke[FillResponse](ctx, c, "DispatchOrderFillFixedFee", req)
}

func (c *Client) Govern(ctx context.Context, req *GovernRequest) error {
	_, err := invoke[Empty](ctx, c, "Govern", req)
	return err
}

func (c *Client) ListMarkets(ctx context.Context) (*MarketsResponse, error) {
	return invoke[MarketsResponse](ctx, c, "ListMarkets", &Empty{})
}

func (c *Client) ListOrders(ctx context.Context, req *OrdersRequest) (*OrdersResponse, error) {
	return invoke[OrdersResponse](ctx, c, "ListOrders", req)
}

func (c *Client) GetParameters(ctx context.Context) (*ParametersResponse, error) {
	return invoke[ParametersResponse](ctx, c, "GetParameters", &Empty{})
}

func (c *Client) GetReserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	return invoke[ReserveResponse](ctx, c, "GetReserve", req)
}

func (c *Client) IsNonceUsed(ctx context.Context, req *NonceRequest) (*NonceResponse, error) {
	return invoke[NonceResponse](ctx, c, "IsNonceUsed", req)
}
