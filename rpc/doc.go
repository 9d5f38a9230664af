// Package rpc is the bridge between the process that owns the storage engine and the
// processes that use it. It carries the store operations as framed messages over a unix
// socket (or tcp) and streams range results with credit based flow control.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Request/response and fire-and-forget messaging over framed connections
//     with pluggable implementations (Unix sockets, TCP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The remote store, an implementation of store.IStore that forwards every
//     operation to the server.
//
//   - server: The host of the engine. It answers every operation of the op catalogue and
//     produces the streams.
//
//   - monitor: Optional http endpoint exposing the server metrics and a health check.
package rpc
