// Package db provides the storage engine of the application: an embedded, ordered,
// byte-key/byte-value store that is the exclusive owner of its files.
//
// The package focuses on:
//   - A unified Engine interface for point, batch, range and stream operations
//   - An explicit lifecycle, every operation outside Start and Stop fails with ErrNotReady
//   - Range selection through FilterOptions with inclusive and exclusive bounds
//   - Bounded, single pass streams that suspend the producer when the consumer is slow
//
// Key Components:
//
//   - Engine Interface: The contract used by the rest of the application. Values are opaque
//     bytes, missing keys are reported as found=false and never as an error. Backend failures
//     are wrapped into *IOError.
//
//   - Backend Interface: The raw driver contract (open, close, point ops, atomic write batches
//     and bidirectional iterators). NewEngine wraps a Backend and adds the lifecycle, the single
//     writer, range handling and streaming. The engines/leveldb and engines/pebble packages
//     provide the two backends.
//
//   - FilterOptions: Gt/Gte/Lt/Lte bounds, Reverse and Limit. Bounds are translated into the
//     half open interval [lower, upper) understood by both backends. The exclusive bound of a
//     side wins over the inclusive one, an empty bound leaves the side open. PrefixFilter
//     selects exactly the keys starting with a prefix.
//
//   - Stream: The consumer side of a bounded channel. Next returns false exactly once the
//     range is exhausted (and on every later call), Err tells whether it ended normally.
//     Close and context cancellation stop the producer. Stop cancels every live stream and
//     waits for the producers to release the store.
//
// Concurrency:
//
//   - Reads run concurrently. Writes of one process are serialized by the engine, batch
//     writes are applied atomically by the backend.
//   - Start and Stop are idempotent. A stopped engine can be started again on the same files.
//
// Related Packages:
//
// The testing package (github.com/mpetrunic/ChainGuardian/lib/db/testing) provides
// the conformance suite and benchmarks every backend runs:
//   - RunEngineTests: Runs a standardized test suite to validate implementations
//   - RunEngineBenchmarks: Provides performance benchmarks for comparing implementations
package db
