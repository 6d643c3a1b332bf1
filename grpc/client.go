package resonancegrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

// Compile-time interface check.
var _ resonance.Connection = (*Client)(nil)

// Client implements resonance.Connection for a remote decision
// producer over gRPC using cramberry serialization. It is safe for
// concurrent use; the dispatcher shares one Client across replicas.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote decision producer.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("resonance client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// Produce asks the remote producer for one replica's answer.
func (c *Client) Produce(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
	wire, err := encodeRequest(req)
	if err != nil {
		return types.Production{}, fmt.Errorf("resonance client: %w", err)
	}
	resp := new(ProduceResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Produce"), wire, resp); err != nil {
		return types.Production{}, err
	}
	return resp.decode(), nil
}
