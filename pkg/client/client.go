// Package client implements the bridge client core functionality.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/example/ntfsbridge/pkg/api"
)

// Config contains the client configuration options.
type Config struct {
	// ServerAddress is the address of the bridge server (e.g. "localhost:7045")
	ServerAddress string

	// Timeout is the default timeout for RPC operations
	Timeout time.Duration

	// MaxRetries is the maximum number of retries for operations
	MaxRetries int

	// RetryDelay is the initial delay between retries (multiplied by the
	// backoff factor after each attempt)
	RetryDelay time.Duration

	// BackoffFactor is the multiplier for retry delay after each attempt
	BackoffFactor float64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerAddress: "localhost:7045",
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Handle is a server-assigned identifier for one open file instance.
type Handle uint64

// Client talks to a bridge server.
type Client struct {
	conn *grpc.ClientConn
	fsc  *api.FileServiceClient

	config *Config
}

// NewClient connects to a bridge server.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	conn, err := grpc.DialContext(
		ctx,
		config.ServerAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return &Client{
		conn:   conn,
		fsc:    api.NewFileServiceClient(conn),
		config: config,
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
