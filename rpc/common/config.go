package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport configuration struct (shared by server and client)
// --------------------------------------------------------------------------

type TransportConfig struct {
	// Endpoint is the address the server listens on (socket path or host:port)
	Endpoint string
	// Endpoints are the addresses the client connects to
	Endpoints []string

	// Client settings
	ConnectionsPerEndpoint int
	RetryCount             int

	// Server settings
	WorkersPerConn int
	BufferSize     int
	IdleTimeoutSec int // 0 disables the idle timeout of server connections

	// Socket settings (tcp only)
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative keeps the OS default
	WriteBufferSize int
	ReadBufferSize  int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the process owning the engine.
type ServerConfig struct {
	// Storage engine
	Engine  string
	DataDir string

	// Timeout for a single request (0 = none)
	TimeoutSecond int64

	// Streaming
	StreamWindow     int // events in flight per stream before the server waits for credit
	StreamBufferSize int // capacity of the engine side stream buffer

	// Transport settings
	Transport TransportConfig

	// Monitoring endpoint (/metrics, /healthz), empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel  string
	LogFormat string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Buffer Size", fmt.Sprintf("%d bytes", c.Transport.BufferSize))

	// Storage
	addSection("Storage")
	addField("Engine", c.Engine)
	addField("Data Directory", c.DataDir)

	// Streaming
	addSection("Streaming")
	addField("Window", strconv.Itoa(c.StreamWindow))
	addField("Engine Buffer", strconv.Itoa(c.StreamBufferSize))

	// Monitoring
	addSection("Monitoring")
	if c.MetricsEndpoint == "" {
		addField("Metrics Endpoint", "disabled")
	} else {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Log Format", c.LogFormat)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	StreamWindow  int
	Transport     TransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))
	addField("Stream Window", strconv.Itoa(c.StreamWindow))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
