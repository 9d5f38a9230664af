// Package server implements the privileged side of the storage bridge: the process that
// owns the storage engine and answers requests of other processes.
//
// The package focuses on:
//   - Hosting an injected db.Engine (started and stopped by the server)
//   - Translating request messages into store.IStore calls through an adapter
//   - Serving streams with credit based flow control
//   - Request and stream metrics
//
// Key Components:
//
//   - RPCServer: Registers one transport handler per message type of the op catalogue.
//     Registering a tag that already has a handler fails Start. Every request runs with
//     the configured timeout, errors are returned as code and message.
//
//   - IRPCServerAdapter / NewIStoreServerAdapter: Translates request messages into
//     store.IStore method calls against a local store wrapping the engine.
//
//   - streamHost: Serves DATABASE_*_STREAM requests. A stream is identified by the token
//     chosen by the client. The producer pushes one DATABASE_VALUES_EVENT per entry while it
//     holds credit (initially the requested window, replenished by DATABASE_STREAM_CREDIT)
//     and finishes with exactly one terminal event, which carries the error if the scan failed.
//     DATABASE_STREAM_CANCEL, a dropped connection or Stop end the producer, the token is
//     removed in every case.
//
//   - Metrics: VictoriaMetrics counters and histograms per op (cgdb_requests_total,
//     cgdb_request_errors_total, cgdb_request_duration_seconds) and stream metrics
//     (cgdb_streams_live, cgdb_stream_events_total, cgdb_streams_failed_total), served by
//     the monitor package if a metrics endpoint is configured.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport:     common.TransportConfig{Endpoint: "/run/user/1000/cgdb.sock"},
//	  TimeoutSecond: 5,
//	  StreamWindow:  64,
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  leveldb.New(dataDir, db.EngineOptions{}),
//	  unix.NewUnixDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Start, Serve and Stop may be called from any goroutine.
package server
