// Package statusrpc exposes a read-only gRPC status surface for the
// pipeline — the "operations dashboards" hook named in §4.G, adapted
// from the node's own gRPC server configuration.
package statusrpc

import (
	"fmt"
	"net"
)

// ServerConfig holds configuration for the status gRPC server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., "127.0.0.1:50061").
	Address string

	// MaxRecvMsgSize is the maximum message size in bytes the server can
	// receive. DefaultServerConfig sets 4MB; Validate rejects a value
	// that is not positive.
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes the server can
	// send. DefaultServerConfig sets 4MB; Validate rejects a value that
	// is not positive.
	MaxSendMsgSize int
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        "127.0.0.1:50061",
		MaxRecvMsgSize: 4 * 1024 * 1024,
		MaxSendMsgSize: 4 * 1024 * 1024,
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	host, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	_ = host

	if c.MaxRecvMsgSize <= 0 {
		return fmt.Errorf("max_recv_msg_size must be positive")
	}
	if c.MaxSendMsgSize <= 0 {
		return fmt.Errorf("max_send_msg_size must be positive")
	}
	return nil
}
