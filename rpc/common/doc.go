// Package common provides the data structures shared by both ends of the storage bridge.
//
// The package focuses on:
//   - Message protocol definition (the op catalogue and the Message envelope)
//   - Configuration structures for client and server components
//   - Logging integrated with Dragonboat's logger facade and backed by zerolog
//
// Key Components:
//
//   - Message: Core data structure for all bridge communication. Requests, responses,
//     stream events, credits and cancels share one envelope. Errors travel as a
//     store.RetCode plus message and are restored as *store.Error on the other side.
//     Factory functions build every request and response.
//
//   - MessageType: The op catalogue (DATABASE_GET, DATABASE_PUT, ... DATABASE_VALUES_EVENT).
//     A MessageType is also the op tag of a transport frame, JSON uses the catalogue names.
//
//   - ServerConfig / ClientConfig: Configuration for both processes including the shared
//     TransportConfig.
//
//   - Logger: Every package gets its logger with logger.GetLogger(name). InitLoggers installs
//     a zerolog backed factory (console or JSON output) and applies the log level.
package common
