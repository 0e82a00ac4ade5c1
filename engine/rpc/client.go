package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultAddr is where the server listens unless configured otherwise.
const DefaultAddr = "localhost:50051"

// Client calls a DataManagement server.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial creates a plaintext client for addr. Extra options are appended.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Ask sends a prompt and returns the server's answer text.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	return c.call(ctx, MethodGetByPrompt, prompt)
}

// Update asks the server to ingest the file at path.
func (c *Client) Update(ctx context.Context, path string) (string, error) {
	return c.call(ctx, MethodUpdateByPath, path)
}

func (c *Client) call(ctx context.Context, method, in string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, method, wrapperspb.String(in), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
