package base

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// drainTimeout bounds reading from a link whose write side failed
const drainTimeout = 5 * time.Second

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// link is one physical connection and the requests waiting for a response on it
type link struct {
	conn    net.Conn
	pending *xsync.MapOf[uint64, chan responseResult]
}

// clientConnection is a connection slot to one endpoint.
// The link is dialed lazily and replaced after it failed.
type clientConnection struct {
	endpoint string
	connMu   sync.Mutex // Protects current and writes to it
	current  *link
	parent   *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector         IClientConnector
	config            common.ClientConfig
	connections       []*clientConnection
	connectionsMu     sync.RWMutex
	nextConnIndex     atomic.Uint64 // Round Robin
	nextRequestID     atomic.Uint64 // Unique request IDs, 0 is reserved for notifications
	closed            atomic.Bool
	pushHandler       atomic.Pointer[transport.PushHandleFunc]
	disconnectHandler atomic.Pointer[transport.DisconnectHandleFunc]
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	// Store the config
	t.config = config
	t.closed.Store(false)

	connectionsPerEP := max(config.Transport.ConnectionsPerEndpoint, 1)

	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)
	connected := 0

	for _, endpoint := range config.Transport.Endpoints {
		// Create multiple connections per endpoint
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint: endpoint,
				parent:   t,
			}
			connections = append(connections, clientConn)

			// Establish the initial connection, failed slots are dialed again on first use
			clientConn.connMu.Lock()
			_, err := clientConn.linkLocked()
			clientConn.connMu.Unlock()
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connected++
		}
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	// Check if we have at least one connection
	if connected == 0 {
		t.closeConnections()
		return fmt.Errorf("%w: failed to connect to any endpoint", transport.ErrConnection)
	}

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		connected, len(connections), len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(ctx context.Context, tag uint64, req []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}

	// Apply the configured timeout if the caller did not set a deadline
	if _, ok := ctx.Deadline(); !ok && t.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.config.TimeoutSecond)*time.Second)
		defer cancel()
	}

	// We always try at least once, and up to maxRetries times
	maxRetries := max(t.config.Transport.RetryCount, 1)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, transport.ErrClosed
		}

		data, written, err := conn.send(ctx, tag, req)
		if err == nil {
			return data, nil
		}

		// Only requests that never reached the server are retried
		if written || !errors.Is(err, transport.ErrConnection) {
			return nil, err
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i+1 < maxRetries {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoffMs *= 2
		}
	}

	// All attempts failed
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Notify(tag uint64, payload []byte) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}

	conn := t.getNextConnection()
	if conn == nil {
		return transport.ErrClosed
	}

	conn.connMu.Lock()
	defer conn.connMu.Unlock()

	l, err := conn.linkLocked()
	if err != nil {
		return err
	}
	return conn.writeLocked(l, tag, 0, payload)
}

func (t *clientTransport) SetPushHandler(handler transport.PushHandleFunc) {
	t.pushHandler.Store(&handler)
}

func (t *clientTransport) SetDisconnectHandler(handler transport.DisconnectHandleFunc) {
	t.disconnectHandler.Store(&handler)
}

func (t *clientTransport) Close() error {
	t.closed.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}

	// Simple Round Robin algorithm
	var index uint64
	if len(t.connections) == 1 {
		// optimize for single connection
		index = 0
	} else {
		index = t.nextConnIndex.Add(1) % uint64(len(t.connections))
	}
	return t.connections[index]
}

// closeConnections closes all active connections, their readers fail the pending requests
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, conn := range connections {
		conn.connMu.Lock()
		if conn.current != nil {
			conn.current.conn.Close()
			conn.current = nil
		}
		conn.connMu.Unlock()
	}
}

// send writes one request and waits for its response.
// written reports whether the request may have reached the server.
func (c *clientConnection) send(ctx context.Context, tag uint64, req []byte) (data []byte, written bool, err error) {
	requestID := c.parent.nextRequestID.Add(1)

	// Create a channel for the response, buffered so the reader never blocks
	respCh := make(chan responseResult, 1)

	c.connMu.Lock()
	l, err := c.linkLocked()
	if err != nil {
		c.connMu.Unlock()
		return nil, false, err
	}

	// Register the request and ensure we clean up when done
	l.pending.Store(requestID, respCh)
	defer l.pending.Delete(requestID)

	err = c.writeLocked(l, tag, requestID, req)
	c.connMu.Unlock()
	if err != nil {
		return nil, false, err
	}

	select {
	case result := <-respCh:
		return result.data, true, result.err
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// linkLocked returns the current link and dials a new one if there is none.
// The caller must hold connMu.
func (c *clientConnection) linkLocked() (*link, error) {
	if c.parent.closed.Load() {
		return nil, transport.ErrClosed
	}
	if c.current != nil {
		return c.current, nil
	}

	// Connect to the endpoint
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", transport.ErrConnection, c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config.Transport); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to upgrade connection to %s: %v", transport.ErrConnection, c.endpoint, err)
	}

	l := &link{
		conn:    conn,
		pending: xsync.NewMapOf[uint64, chan responseResult](),
	}
	c.current = l

	// Start the response reader
	go c.readResponses(l)

	Logger.Debugf("Connected to %s", c.endpoint)
	return l, nil
}

// writeLocked writes a frame to the link. A failed write closes the link.
// The caller must hold connMu.
func (c *clientConnection) writeLocked(l *link, tag, requestID uint64, payload []byte) error {
	if c.parent.config.TimeoutSecond > 0 {
		timeout := time.Duration(c.parent.config.TimeoutSecond) * time.Second
		l.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	if err := writeFrame(l.conn, tag, requestID, payload); err != nil {
		if c.current == l {
			c.current = nil
		}
		c.retire(l)
		return fmt.Errorf("%w: %v", transport.ErrConnection, err)
	}
	return nil
}

// retire shuts down the write side of a detached link. Frames the server already sent stay
// readable, the reader drains them and fails the link at EOF or after the drain deadline.
// The caller must hold connMu.
func (c *clientConnection) retire(l *link) {
	cw, ok := l.conn.(interface{ CloseWrite() error })
	if !ok || cw.CloseWrite() != nil {
		l.conn.Close()
		return
	}

	drain := drainTimeout
	if c.parent.config.TimeoutSecond > 0 {
		drain = time.Duration(c.parent.config.TimeoutSecond) * time.Second
	}
	l.conn.SetReadDeadline(time.Now().Add(drain))
}

// readResponses reads frames in a loop, distributes responses to waiting requests and pushes to the push handler
func (c *clientConnection) readResponses(l *link) {
	for {
		tag, requestID, data, err := readFrame(l.conn, nil)
		if err != nil {
			c.linkFailed(l, err)
			return
		}

		// Push from the server
		if requestID == 0 {
			if handler := c.parent.pushHandler.Load(); handler != nil {
				(*handler)(tag, data)
			}
			continue
		}

		// Find the corresponding request channel
		respCh, found := l.pending.LoadAndDelete(requestID)
		if !found {
			// The caller already gave up (timeout or cancel)
			Logger.Debugf("Dropping response for unknown request ID %d with tag %d", requestID, tag)
			continue
		}

		if tag == transport.TagNoHandler {
			respCh <- responseResult{err: transport.ErrNoHandler}
		} else {
			respCh <- responseResult{data: data}
		}
	}
}

// linkFailed retires a link and fails all requests still waiting on it
func (c *clientConnection) linkFailed(l *link, cause error) {
	c.connMu.Lock()
	if c.current == l {
		c.current = nil
	}
	c.connMu.Unlock()
	l.conn.Close()

	closing := c.parent.closed.Load()

	var err error
	if closing {
		err = transport.ErrClosed
	} else {
		err = fmt.Errorf("%w: %v", transport.ErrConnection, cause)
	}

	l.pending.Range(func(requestID uint64, _ chan responseResult) bool {
		if respCh, ok := l.pending.LoadAndDelete(requestID); ok {
			respCh <- responseResult{err: err}
		}
		return true
	})

	if closing {
		return
	}

	Logger.Warningf("Lost connection to %s: %v", c.endpoint, cause)
	if handler := c.parent.disconnectHandler.Load(); handler != nil {
		(*handler)(err)
	}
}
