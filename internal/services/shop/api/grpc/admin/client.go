package admin

import (
	"context"
	"fmt"

	platformgrpc "github.com/opshop/guildshop/internal/platform/grpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the admin service as one actor.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the admin service at addr. Every call carries actorID.
func Dial(addr string, actorID string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append(platformgrpc.ClientDialOptions(), grpc.WithUnaryInterceptor(ActorUnaryClientInterceptor(actorID)))
	dialOpts = append(dialOpts, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial admin %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Call invokes method with req and decodes the reply into resp. req and resp
// are JSON-tagged structs or maps.
func (c *Client) Call(ctx context.Context, method string, req any, resp any) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return FromStruct(out, resp)
}

// CallJSON invokes method with a raw JSON request body and returns the
// JSON reply.
func (c *Client) CallJSON(ctx context.Context, method string, body []byte) ([]byte, error) {
	in := new(structpb.Struct)
	if len(body) > 0 {
		if err := in.UnmarshalJSON(body); err != nil {
			return nil, fmt.Errorf("parse request: %w", err)
		}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out.MarshalJSON()
}
