// Package client implements the remote proxy of the store, used by processes that do not own the engine.
// RPCStore implements store.IStore and forwards every operation to an RPC server.
//
// The package focuses on:
//   - Transparent access to a store hosted by another process
//   - Integration with the transport and serialization layers
//   - Mapping transport failures to the error taxonomy of the store package
//
// Key Components:
//
//   - NewRPCStore: Factory function that connects a client transport and returns an RPCStore.
//     Each request carries the caller's context, a deadline or cancel removes the pending slot
//     and fails the call with Timeout or Canceled.
//
//   - Streams: ValuesStream, KeysStream and EntriesStream mint a uuid token and register a bounded
//     buffer before the start request is sent. Events arrive as pushes, credit is returned to the
//     server after half of the window has been consumed. Closing the stream or canceling its context
//     sends a cancel notification and removes the token.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		TimeoutSecond: 5,
//		StreamWindow:  64,
//		Transport: common.TransportConfig{
//			Endpoints:  []string{"/tmp/chainguardian/db.sock"},
//			RetryCount: 3,
//		},
//	}
//
//	s, err := client.NewRPCStore(config, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	accounts := repository.New[models.Account](s, schema.BucketAccounts, nil)
//	alice, found, err := accounts.Get(ctx, "1")
//
// Thread Safety:
//
//	RPCStore is safe for concurrent use. A single stream must be consumed by one goroutine.
package client
