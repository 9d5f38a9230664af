package transport

import (
	"context"
	"errors"
	"math"

	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

// TagNoHandler is the tag of the response frame the server sends for a request
// whose tag has no registered handler
const TagNoHandler uint64 = math.MaxUint64

var (
	// ErrHandlerExists is returned by RegisterHandler if the tag already has a handler
	ErrHandlerExists = errors.New("handler already registered")
	// ErrNoHandler is returned by Send if the server has no handler for the tag
	ErrNoHandler = errors.New("no handler registered")
	// ErrClosed is returned after the transport was closed
	ErrClosed = errors.New("transport closed")
	// ErrConnection wraps failures of the underlying connection
	ErrConnection = errors.New("connection failed")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// Session is the server side view of one client connection
type Session interface {
	// ID identifies the connection for the lifetime of the server
	ID() uint64
	// Push sends an unsolicited frame to the client
	Push(tag uint64, payload []byte) error
	// Done is closed when the connection is gone
	Done() <-chan struct{}
}

// ServerHandleFunc is a function type that handles incoming requests.
// This function is called by a server transport layer when a request or notification is received.
// The response of a notification is discarded. req is only valid during the call.
type ServerHandleFunc func(session Session, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for all frames with the given tag.
	// It returns ErrHandlerExists if the tag already has a handler.
	RegisterHandler(tag uint64, handler ServerHandleFunc) error
	// UnregisterHandler removes the handler of a tag. Unknown tags are ignored.
	UnregisterHandler(tag uint64)
	// Listen starts the transport layer and serves incoming requests until Close is called
	Listen(config common.ServerConfig) error
	// Close stops listening and closes all client connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// PushHandleFunc is called for every frame the server pushes. payload is owned by the callee.
// It runs on the reader of the connection and must not block.
type PushHandleFunc func(tag uint64, payload []byte)

// DisconnectHandleFunc is called when a connection to the server is lost
type DisconnectHandleFunc func(err error)

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and waits for the response or the end of ctx.
	// If ctx has no deadline the configured timeout applies.
	Send(ctx context.Context, tag uint64, req []byte) (resp []byte, err error)
	// Notify sends a frame without waiting for an answer
	Notify(tag uint64, payload []byte) error
	// SetPushHandler sets the callback for server pushes
	SetPushHandler(handler PushHandleFunc)
	// SetDisconnectHandler sets the callback for lost connections
	SetDisconnectHandler(handler DisconnectHandleFunc)
	// Close closes the transport connection. Pending requests fail with ErrClosed.
	Close() error
}
