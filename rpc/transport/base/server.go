package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handlers          *xsync.MapOf[uint64, transport.ServerHandleFunc]
	sessions          *xsync.MapOf[uint64, *session]
	config            common.ServerConfig
	listenerMu        sync.Mutex
	listener          net.Listener
	closed            atomic.Bool
	nextSessionID     atomic.Uint64
	bufferPool        *sync.Pool
	bufferSize        int
	maxWorkersPerConn int
}

// session is one accepted connection
type session struct {
	id           uint64
	conn         net.Conn
	writeMu      sync.Mutex // Protects writes to the connection
	writeTimeout time.Duration
	done         chan struct{}
	doneOnce     sync.Once
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {

	// minimum one worker per connection
	maxWorkersPerConn = max(maxWorkersPerConn, 1)
	bufferSize = max(bufferSize, headerSize)

	return &serverTransport{
		connector:         connector,
		handlers:          xsync.NewMapOf[uint64, transport.ServerHandleFunc](),
		sessions:          xsync.NewMapOf[uint64, *session](),
		bufferSize:        bufferSize,
		maxWorkersPerConn: maxWorkersPerConn,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(tag uint64, handler transport.ServerHandleFunc) error {
	if tag == transport.TagNoHandler {
		return fmt.Errorf("tag %d is reserved", tag)
	}
	if _, loaded := t.handlers.LoadOrStore(tag, handler); loaded {
		return fmt.Errorf("%w: tag %d", transport.ErrHandlerExists, tag)
	}
	return nil
}

func (t *serverTransport) UnregisterHandler(tag uint64) {
	t.handlers.Delete(tag)
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	t.listenerMu.Lock()
	if t.closed.Load() {
		t.listenerMu.Unlock()
		listener.Close()
		return transport.ErrClosed
	}
	t.listener = listener
	t.listenerMu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.maxWorkersPerConn)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config.Transport); err != nil {
			Logger.Errorf("Failed to upgrade connection: %v", err)
			conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	var err error
	t.listenerMu.Lock()
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.listenerMu.Unlock()

	t.sessions.Range(func(_ uint64, s *session) bool {
		s.close()
		return true
	})

	return err
}

// --------------------------------------------------------------------------
// Session Methods (docu see transport.Session)
// --------------------------------------------------------------------------

func (s *session) ID() uint64 {
	return s.id
}

func (s *session) Push(tag uint64, payload []byte) error {
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}
	return s.write(tag, 0, payload)
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) write(tag, requestID uint64, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("%w: %v", transport.ErrConnection, err)
		}
	}

	if err := writeFrame(s.conn, tag, requestID, payload); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrConnection, err)
	}
	return nil
}

// cancel signals handlers that the connection is gone, responses can still be written
func (s *session) cancel() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

func (s *session) close() {
	s.cancel()
	s.conn.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles incoming frames of one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	sess := &session{
		id:           t.nextSessionID.Add(1),
		conn:         conn,
		writeTimeout: time.Duration(t.config.TimeoutSecond) * time.Second,
		done:         make(chan struct{}),
	}
	t.sessions.Store(sess.id, sess)

	// Close may have missed the session
	if t.closed.Load() {
		sess.close()
	}

	defer func() {
		t.sessions.Delete(sess.id)
		sess.close()
	}()

	Logger.Debugf("Accepted connection %d", sess.id)

	idleTimeout := time.Duration(t.config.Transport.IdleTimeoutSec) * time.Second

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Handler function that processes requests in worker goroutines
	handleResponse := func(tag, requestID uint64, data []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			<-workerSemaphore // Release semaphore slot
			wg.Done()         // Mark worker as done
		}()

		handler, ok := t.handlers.Load(tag)
		if !ok {
			Logger.Warningf("No handler for tag %d (request %d)", tag, requestID)
			if err := sess.write(transport.TagNoHandler, requestID, nil); err != nil {
				Logger.Errorf("Failed to write response: %v", err)
			}
			return
		}

		// Process the request
		start := time.Now()
		resp := handler(sess, data)
		Logger.Debugf("Processed request %d with tag %d took %s", requestID, tag, time.Since(start))

		// Write the response with the same tag and requestID
		if err := sess.write(tag, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	// Function to handle incoming frames
	handleRequest := func() error {
		if idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame with requestID
		tag, requestID, data, err := readFrame(conn, buf)

		// Error reading frame
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Notifications are handled in order on the reader, their response is discarded
		if requestID == 0 {
			defer t.bufferPool.Put(buf)
			if handler, ok := t.handlers.Load(tag); ok {
				handler(sess, data)
			} else {
				Logger.Warningf("Dropping notification without handler (tag %d)", tag)
			}
			return nil
		}

		// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
		// This is the key mechanism that limits the number of concurrent workers
		workerSemaphore <- struct{}{}

		// Increment the wait group counter
		wg.Add(1)

		// Process in a goroutine
		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(tag, requestID, data)
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Debugf("Connection %d closed by client", sess.id)
			break
		}

		// Case error: log and close connection
		if err != nil {
			if !t.closed.Load() {
				Logger.Warningf("Closing connection %d: %v", sess.id, err)
			}
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	// This ensures we don't lose any in-progress work
	sess.cancel()
	wg.Wait()
}
