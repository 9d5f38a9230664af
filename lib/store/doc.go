// Package store provides the operation surface of the storage layer and its unified
// error handling. It sits between the repositories and the storage engine, either in
// process (lstore) or on the far side of the bridge (rpc/client).
//
// The package focuses on:
//   - A unified interface (IStore) that is identical for local and remote use
//   - Context propagation for deadlines and cancellation on every call
//   - A closed error taxonomy that survives the trip over the bridge
//
// Key Components:
//
//   - IStore Interface: Point, batch, range and stream operations. Writes are acknowledged,
//     BatchPut reports a result per item, missing keys are reported as absent.
//
//   - Error System: *Error carries a RetCode and a message. Errors compare by code, so
//     errors.Is(err, store.ErrEngineNotReady) works for local and remote errors alike.
//     FromError maps engine and context errors into the taxonomy (a passed deadline becomes
//     RetCTimeout).
//
// Implementations:
//
//	- Local Store (lstore): Calls an injected db.Engine directly.
//	  Available in the "github.com/mpetrunic/ChainGuardian/lib/store/lstore" package.
//
//	- Remote Store (rpc/client): Forwards every call to the process that owns the engine.
//	  Available in the "github.com/mpetrunic/ChainGuardian/rpc/client" package.
package store
