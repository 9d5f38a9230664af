package db

import (
	"context"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/mpetrunic/ChainGuardian/lib/db/util"
)

var Logger = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Backend Interface (implemented by the engines package)
// --------------------------------------------------------------------------

// Backend is the raw driver contract of an ordered key value store.
// It is wrapped by NewEngine which adds the lifecycle, the single writer and range handling.
// A Backend does not need to guard against use outside Open and Close.
type Backend interface {
	// Open opens the store files.
	Open() error
	// Close flushes and closes the store files. All iterators are closed before Close is called.
	Close() error
	// Get returns ErrKeyNotFound if the key does not exist. The returned slice must not alias internal buffers.
	Get(key []byte) ([]byte, error)
	// Has checks whether the key exists.
	Has(key []byte) (bool, error)
	// Put writes a single key.
	Put(key, value []byte) error
	// Delete removes a single key.
	Delete(key []byte) error
	// Write applies puts and deletes atomically.
	Write(puts []KeyValue, deletes [][]byte) error
	// NewIterator returns an iterator over [lower, upper). A nil bound is open.
	NewIterator(lower, upper []byte) (Iterator, error)
	// SizeEstimate returns the approximate on disk size in bytes.
	SizeEstimate() (int64, error)
	// Name returns the implementation identifier.
	Name() Implementation
	// Path returns the location of the store files.
	Path() string
}

// Iterator is a bidirectional cursor over a key range.
// Key and Value are only valid until the next call that moves the cursor.
type Iterator interface {
	First() bool
	Last() bool
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// --------------------------------------------------------------------------
// Engine Implementation
// --------------------------------------------------------------------------

// EngineOptions configures an engine created by NewEngine.
type EngineOptions struct {
	// StreamBufferSize is the capacity of the bounded channel of each stream.
	StreamBufferSize int
}

type engine struct {
	backend Backend
	opts    EngineOptions

	// mu guards started and the lifetime of the backend handle.
	// Every operation holds a read lock, Start and Stop the write lock.
	// A stream producer holds its read lock until the producer exits.
	mu      sync.RWMutex
	started bool

	// writeMu serializes all writers of this process.
	writeMu sync.Mutex

	streamCtx   context.Context
	stopStreams context.CancelFunc

	valueSizes *util.SizeHistogram
}

// NewEngine builds an Engine on top of a Backend. The engine is created stopped.
func NewEngine(backend Backend, opts EngineOptions) Engine {
	if opts.StreamBufferSize <= 0 {
		opts.StreamBufferSize = DefaultStreamBufferSize
	}
	return &engine{
		backend:    backend,
		opts:       opts,
		valueSizes: util.NewSizeHistogram(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Engine)
// --------------------------------------------------------------------------

func (e *engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if err := e.backend.Open(); err != nil {
		return wrapIO("open", err)
	}

	e.streamCtx, e.stopStreams = context.WithCancel(context.Background())
	e.started = true

	Logger.Infof("started %s engine at %s", e.backend.Name(), e.backend.Path())
	return nil
}

func (e *engine) Stop() error {
	e.mu.RLock()
	started, stopStreams := e.started, e.stopStreams
	e.mu.RUnlock()

	if !started {
		return nil
	}

	// live producers hold read locks, cancel them before waiting for the write lock
	stopStreams()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.started = false

	if err := e.backend.Close(); err != nil {
		return wrapIO("close", err)
	}

	Logger.Infof("stopped %s engine at %s", e.backend.Name(), e.backend.Path())
	return nil
}

func (e *engine) Put(key, value []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return ErrNotReady
	}
	if len(key) == 0 {
		return ErrInvalidKey
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.backend.Put(key, value); err != nil {
		return wrapIO("put", err)
	}
	e.valueSizes.AddSample(len(value))
	return nil
}

func (e *engine) Delete(key []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return ErrNotReady
	}
	if len(key) == 0 {
		return ErrInvalidKey
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return wrapIO("delete", e.backend.Delete(key))
}

func (e *engine) BatchPut(items []KeyValue) ([]error, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return nil, ErrNotReady
	}

	results := make([]error, len(items))
	valid := make([]KeyValue, 0, len(items))
	for i, item := range items {
		if len(item.Key) == 0 {
			results[i] = ErrInvalidKey
			continue
		}
		valid = append(valid, item)
	}

	if len(valid) == 0 {
		return results, nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.backend.Write(valid, nil); err != nil {
		return nil, wrapIO("batch put", err)
	}
	for _, item := range valid {
		e.valueSizes.AddSample(len(item.Value))
	}
	return results, nil
}

func (e *engine) BatchDelete(keys [][]byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return ErrNotReady
	}

	valid := make([][]byte, 0, len(keys))
	for _, key := range keys {
		if len(key) > 0 {
			valid = append(valid, key)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return wrapIO("batch delete", e.backend.Write(nil, valid))
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return nil, false, ErrNotReady
	}
	if len(key) == 0 {
		return nil, false, nil
	}

	value, err := e.backend.Get(key)
	if err == ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapIO("get", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (e *engine) Has(key []byte) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return false, ErrNotReady
	}
	if len(key) == 0 {
		return false, nil
	}

	found, err := e.backend.Has(key)
	if err != nil {
		return false, wrapIO("has", err)
	}
	return found, nil
}

func (e *engine) Keys(opts *FilterOptions) ([][]byte, error) {
	entries, err := e.collect(opts, StreamKeys)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return keys, nil
}

func (e *engine) Values(opts *FilterOptions) ([][]byte, error) {
	entries, err := e.collect(opts, StreamValues)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, len(entries))
	for i, entry := range entries {
		values[i] = entry.Value
	}
	return values, nil
}

func (e *engine) Entries(opts *FilterOptions) ([]KeyValue, error) {
	return e.collect(opts, StreamEntries)
}

func (e *engine) Search(opts *FilterOptions) ([][]byte, error) {
	return e.Values(opts)
}

func (e *engine) ValuesStream(ctx context.Context, opts *FilterOptions) (*Stream, error) {
	return e.stream(ctx, opts, StreamValues)
}

func (e *engine) KeysStream(ctx context.Context, opts *FilterOptions) (*Stream, error) {
	return e.stream(ctx, opts, StreamKeys)
}

func (e *engine) EntriesStream(ctx context.Context, opts *FilterOptions) (*Stream, error) {
	return e.stream(ctx, opts, StreamEntries)
}

func (e *engine) GetInfo() DatabaseInfo {
	info := DatabaseInfo{
		DbType: e.backend.Name(),
		Path:   e.backend.Path(),
		Metadata: ValueSizeStats{
			Samples: e.valueSizes.GetCount(),
			Average: e.valueSizes.AverageSize(),
			Median:  e.valueSizes.MedianEstimate(),
			P99:     e.valueSizes.GetPercentileEstimate(99),
		},
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.started {
		size, err := e.backend.SizeEstimate()
		if err != nil {
			Logger.Warningf("failed to estimate size of %s: %v", e.backend.Path(), err)
		}
		info.SizeBytes = size
	}
	return info
}

// ValueSizeStats summarizes the sizes of values written by this process.
type ValueSizeStats struct {
	Samples int64 `json:"samples"`
	Average int   `json:"average"`
	Median  int   `json:"median"`
	P99     int   `json:"p99"`
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// collect materializes a range eagerly.
func (e *engine) collect(opts *FilterOptions, mode StreamMode) ([]KeyValue, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return nil, ErrNotReady
	}

	entries := make([]KeyValue, 0)
	err := e.scan(context.Background(), opts, func(key, value []byte) error {
		entries = append(entries, mode.Project(key, value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// stream starts a producer goroutine feeding a bounded channel.
// The read lock taken here is released by the producer when it exits, so Stop waits for it.
func (e *engine) stream(ctx context.Context, opts *FilterOptions, mode StreamMode) (*Stream, error) {
	e.mu.RLock()
	if !e.started {
		e.mu.RUnlock()
		return nil, ErrNotReady
	}

	shutdownCtx := e.streamCtx
	producerCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(shutdownCtx, cancel)
	stream, sink := NewStreamPipe(e.opts.StreamBufferSize, cancel)

	go func() {
		defer e.mu.RUnlock()
		defer stopAfter()
		defer cancel()

		err := e.scan(producerCtx, opts, func(key, value []byte) error {
			return sink.Send(producerCtx, mode.Project(key, value))
		})
		if err != nil && shutdownCtx.Err() != nil {
			err = ErrNotReady
		}
		if err != nil && !stream.closed.Load() {
			Logger.Debugf("%s stream ended with error: %v", mode, err)
		}
		sink.Finish(err)
	}()

	return stream, nil
}

// scan walks the range described by opts and calls fn for every entry.
// key and value passed to fn are only valid during the call.
func (e *engine) scan(ctx context.Context, opts *FilterOptions, fn func(key, value []byte) error) (err error) {
	if opts.Empty() {
		return nil
	}

	lower, upper := opts.Bounds()
	it, err := e.backend.NewIterator(lower, upper)
	if err != nil {
		return wrapIO("iterator", err)
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = wrapIO("iterator close", cerr)
		}
	}()

	reverse, limit := opts.reverse(), opts.limit()

	var valid bool
	if reverse {
		valid = it.Last()
	} else {
		valid = it.First()
	}

	for n := 0; valid; n++ {
		if limit > 0 && n >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
		if reverse {
			valid = it.Prev()
		} else {
			valid = it.Next()
		}
	}

	return wrapIO("iterate", it.Error())
}
