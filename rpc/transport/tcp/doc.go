// Package tcp implements the bridge transport on TCP sockets. It is used when the
// database process is reached over the loopback interface instead of a Unix socket.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse, request routing and pushes. See the base package
// documentation for the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the socket options of common.TransportConfig (NoDelay, keep-alive,
// linger and buffer sizes). The default server buffer size is 512 KB.
package tcp
