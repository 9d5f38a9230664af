package db

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplLevelDB Implementation = "leveldb"
	ImplPebble  Implementation = "pebble"
)

// KeyValue is a single entry of the store. It is the unit of batch writes and enumeration.
type KeyValue struct {
	Key   []byte `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
}

type DatabaseInfo struct {
	SizeBytes int64          `json:"size_bytes"`
	DbType    Implementation `json:"db_type"`
	Path      string         `json:"path"`
	Metadata  interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotReady is returned by every operation called before Start or after Stop.
	ErrNotReady = errors.New("engine not ready")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("invalid key: key must not be empty")
	// ErrKeyNotFound is returned by a Backend when a key does not exist.
	// The Engine never returns it, a missing key is reported as found=false.
	ErrKeyNotFound = errors.New("key not found")
)

// IOError wraps a failure of the underlying storage backend.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: io failure: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// wrapIO wraps err into an IOError unless it is nil or already classified.
func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.Is(err, ErrNotReady) || errors.Is(err, ErrInvalidKey) || errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Err: err}
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Engine is an embedded, ordered, byte-key/byte-value persistent store.
// The engine is the exclusive owner of the underlying storage files. It never interprets values.
//
// All operations except Start, Stop and GetInfo fail with ErrNotReady outside the window between
// Start and Stop. Backend failures are returned as *IOError.
type Engine interface {

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Start opens the underlying store. Calling Start on a started engine is a no-op.
	Start() (err error)

	// Stop cancels all live streams, flushes and releases the underlying store.
	// Calling Stop on a stopped engine is a no-op.
	Stop() (err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or overwrites the value for key.
	Put(key, value []byte) (err error)

	// Delete removes key. Deleting a key that does not exist is not an error.
	Delete(key []byte) (err error)

	// BatchPut writes all valid items in one batch, without interleaving writes of other callers.
	// The returned slice has one entry per item: nil if the item was written, otherwise the reason it was rejected.
	// err is set if the batch as a whole failed, in which case no item was written.
	BatchPut(items []KeyValue) (results []error, err error)

	// BatchDelete removes all keys in one batch.
	BatchDelete(keys [][]byte) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, found bool, err error)

	// Has checks whether a key exists without copying its value.
	Has(key []byte) (found bool, err error)

	// Keys returns all keys inside the range described by opts.
	Keys(opts *FilterOptions) (keys [][]byte, err error)

	// Values returns all values whose key lies inside the range described by opts.
	Values(opts *FilterOptions) (values [][]byte, err error)

	// Entries returns all key value pairs inside the range described by opts.
	Entries(opts *FilterOptions) (entries []KeyValue, err error)

	// Search is a values range query. It is kept as a separate entry point for remote range queries.
	Search(opts *FilterOptions) (values [][]byte, err error)

	// --------------------------------------------------------------------------
	// Stream Operations
	// --------------------------------------------------------------------------

	// ValuesStream returns a lazy single pass stream over the values inside the range.
	// The stream is finite and terminates once the range is exhausted.
	ValuesStream(ctx context.Context, opts *FilterOptions) (stream *Stream, err error)

	// KeysStream is the keys counterpart of ValuesStream.
	KeysStream(ctx context.Context, opts *FilterOptions) (stream *Stream, err error)

	// EntriesStream is the entries counterpart of ValuesStream.
	EntriesStream(ctx context.Context, opts *FilterOptions) (stream *Stream, err error)

	// --------------------------------------------------------------------------
	// Metadata
	// --------------------------------------------------------------------------

	// GetInfo returns information about the database.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetInfo() (info DatabaseInfo)
}
