// Package transport defines the interfaces and abstractions of the bridge between the
// database process and its clients. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Routing frames by tag (the op of the message) to exactly one handler
//   - Request/response, fire-and-forget notifications and server pushes on one connection
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management, request sending and push delivery.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives frames and routes them to the handler registered for their tag.
//
//   - Session: The connection a request arrived on, used by handlers to push frames.
//
//   - ErrHandlerExists, ErrNoHandler, ErrClosed, ErrConnection: The errors shared by all
//     implementations.
package transport
