// Package client dials a session daemon and exposes its typed services.
package client

import (
	"fmt"

	"github.com/matheus3301/achat/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps gRPC connections to the daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *api.SessionClient
	Chat    *api.ChatClient
	Message *api.MessageClient
	Contact *api.ContactClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: api.NewSessionClient(conn),
		Chat:    api.NewChatClient(conn),
		Message: api.NewMessageClient(conn),
		Contact: api.NewContactClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
