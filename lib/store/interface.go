package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpetrunic/ChainGuardian/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the operation surface of the storage layer. It is implemented in process by
// lstore and across the process boundary by the rpc client.
//
// Every method takes a context. A context that is already done fails the call before any
// work happens. Write operations are acknowledged: a nil error means the write is durable.
// All errors returned by an IStore are *Error values (compare them with errors.Is against
// the Err* sentinels). The error ending a stream may be a raw engine error for local
// streams, pass it through FromError before inspecting it.
type IStore interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	// A missing key is not an error.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	// Has returns whether a key exists in the store.
	Has(ctx context.Context, key []byte) (found bool, err error)
	// Put inserts or overwrites the value for a key.
	Put(ctx context.Context, key, value []byte) (err error)
	// Delete removes a key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key []byte) (err error)
	// BatchPut writes all items atomically. results holds one entry per item (nil if written).
	BatchPut(ctx context.Context, items []db.KeyValue) (results []error, err error)
	// BatchDelete removes all keys atomically.
	BatchDelete(ctx context.Context, keys [][]byte) (err error)
	// Keys returns the keys inside the range in key order.
	Keys(ctx context.Context, opts *db.FilterOptions) (keys [][]byte, err error)
	// Values returns the values whose key lies inside the range in key order.
	Values(ctx context.Context, opts *db.FilterOptions) (values [][]byte, err error)
	// Entries returns the key value pairs inside the range in key order.
	Entries(ctx context.Context, opts *db.FilterOptions) (entries []db.KeyValue, err error)
	// Search is a values range query.
	Search(ctx context.Context, opts *db.FilterOptions) (values [][]byte, err error)
	// ValuesStream returns a lazy stream of the values inside the range.
	// Cancelling ctx or closing the stream stops the producer.
	ValuesStream(ctx context.Context, opts *db.FilterOptions) (stream *db.Stream, err error)
	// KeysStream is the keys counterpart of ValuesStream.
	KeysStream(ctx context.Context, opts *db.FilterOptions) (stream *db.Stream, err error)
	// EntriesStream is the entries counterpart of ValuesStream.
	EntriesStream(ctx context.Context, opts *db.FilterOptions) (stream *db.Stream, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo(ctx context.Context) (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message. Only Code and Msg cross the process boundary.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("store error (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Unwrap returns the local cause of the error, nil for errors received from a remote process.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrInternal             = NewError(RetCInternalError, "internal error")
	ErrInvalidOperation     = NewError(RetCInvalidOperation, "invalid operation")
	ErrEngineNotReady       = NewError(RetCEngineNotReady, "engine not ready")
	ErrIOFailure            = NewError(RetCIOFailure, "io failure")
	ErrSerializationFailure = NewError(RetCSerializationFailure, "serialization failure")
	ErrTransportClosed      = NewError(RetCTransportClosed, "transport closed")
	ErrTimeout              = NewError(RetCTimeout, "timeout")
	ErrCanceled             = NewError(RetCCanceled, "canceled")
)

// FromError classifies err into the store error taxonomy.
// nil stays nil, an *Error is returned unchanged.
func FromError(err error) error {
	if err == nil {
		return nil
	}

	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr
	}

	var ioErr *db.IOError
	code := RetCInternalError
	switch {
	case errors.Is(err, db.ErrNotReady):
		code = RetCEngineNotReady
	case errors.Is(err, db.ErrInvalidKey):
		code = RetCInvalidOperation
	case errors.As(err, &ioErr):
		code = RetCIOFailure
	case errors.Is(err, context.DeadlineExceeded):
		code = RetCTimeout
	case errors.Is(err, context.Canceled):
		code = RetCCanceled
	}

	return &Error{Code: code, Msg: err.Error(), cause: err}
}

// WrapError creates an Error with the given code that keeps err as its cause.
func WrapError(code RetCode, err error) *Error {
	return &Error{Code: code, Msg: err.Error(), cause: err}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCInvalidOperation                    // 2: Invalid operation (e.g. an empty key).
	RetCEngineNotReady                      // 3: The engine is not started or already stopped.
	RetCIOFailure                           // 4: The storage backend failed.
	RetCSerializationFailure                // 5: A value or message could not be encoded or decoded.
	RetCTransportClosed                     // 6: The connection to the server is gone.
	RetCTimeout                             // 7: The deadline passed before a reply arrived.
	RetCCanceled                            // 8: The caller canceled the operation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCEngineNotReady:
		return "EngineNotReady"
	case RetCIOFailure:
		return "IOFailure"
	case RetCSerializationFailure:
		return "SerializationFailure"
	case RetCTransportClosed:
		return "TransportClosed"
	case RetCTimeout:
		return "Timeout"
	case RetCCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}
