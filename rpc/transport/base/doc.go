// Package base provides the foundation of the bridge transports, implementing the core
// functionality independent of the specific network protocol (TCP, Unix sockets, etc.).
// It serves as a base layer that is extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with tag and requestID tracking
//   - Request/response, fire-and-forget notifications and server pushes on one connection
//   - Robust error handling with retries and lazy reconnection
//
// Frame Format:
//
//	tag (u64) | requestID (u64) | length (u32) | payload, all big endian.
//	requestID 0 marks a notification (client to server) or a push (server to client).
//	A response with tag transport.TagNoHandler reports an unknown tag.
//	Payloads larger than MaxFrameSize are rejected.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation that manages multiple connections
//     with round-robin load balancing. Every request waits on its own pending slot which is
//     removed on response, timeout, cancel and connection loss. Requests that never reached
//     the server are retried with exponential backoff.
//
//   - serverTransport: Core server implementation that accepts connections and
//     routes frames to the handler registered for their tag. Every connection is a
//     transport.Session handlers can push to.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse buffers, reducing
//     GC pressure and memory allocations.
//
//   - Worker Semaphore: Requests of one connection are processed concurrently by a bounded
//     number of workers. Notifications are processed in order on the reader.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes to a connection are serialized by a mutex,
//	the server creates a dedicated goroutine for each connection.
package base
