package db

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	// DefaultStreamBufferSize is the capacity of the channel between producer and consumer of a stream.
	DefaultStreamBufferSize = 64
)

// StreamMode selects which part of an entry a stream carries.
type StreamMode uint8

const (
	StreamValues StreamMode = iota
	StreamKeys
	StreamEntries
)

func (m StreamMode) String() string {
	switch m {
	case StreamValues:
		return "values"
	case StreamKeys:
		return "keys"
	case StreamEntries:
		return "entries"
	default:
		return "unknown"
	}
}

// Project reduces an entry to the fields carried by the mode. The result does not alias key or value.
func (m StreamMode) Project(key, value []byte) KeyValue {
	switch m {
	case StreamKeys:
		return KeyValue{Key: clone(key)}
	case StreamEntries:
		return KeyValue{Key: clone(key), Value: clone(value)}
	default:
		return KeyValue{Value: clone(value)}
	}
}

// --------------------------------------------------------------------------
// Stream (consumer side)
// --------------------------------------------------------------------------

// Stream is a lazy, single pass, non restartable sequence of entries.
//
// Entries flow through a bounded channel: a consumer that stops reading suspends the
// producer. Once Next returned false the stream is exhausted and every later call
// returns false again. Err reports why the stream ended (nil on normal completion).
//
// Next must be called from a single goroutine. Close may be called from any goroutine
// and more than once.
type Stream struct {
	items     <-chan KeyValue
	sink      *StreamSink
	cancel    func()
	closeOnce sync.Once
	closed    atomic.Bool
	exhausted bool
	onConsume func()
}

// Next blocks until the next entry is available.
// It returns false once the stream is exhausted, failed or closed.
func (s *Stream) Next() (KeyValue, bool) {
	if s.exhausted || s.closed.Load() {
		return KeyValue{}, false
	}
	kv, ok := <-s.items
	if !ok {
		s.exhausted = true
		return KeyValue{}, false
	}
	if s.onConsume != nil {
		s.onConsume()
	}
	return kv, true
}

// OnConsume sets a callback run by Next after every entry it returns.
// It must be set before the stream is handed to the consumer.
func (s *Stream) OnConsume(fn func()) {
	s.onConsume = fn
}

// Err returns the error that terminated the stream, nil if it completed normally
// or has not terminated yet.
func (s *Stream) Err() error {
	if !s.exhausted {
		return nil
	}
	return s.sink.err
}

// Close stops the producer and releases its resources. Entries not consumed yet are discarded.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Collect drains the stream and closes it.
func Collect(s *Stream) ([]KeyValue, error) {
	defer s.Close()
	entries := make([]KeyValue, 0)
	for {
		kv, ok := s.Next()
		if !ok {
			return entries, s.Err()
		}
		entries = append(entries, kv)
	}
}

// --------------------------------------------------------------------------
// StreamSink (producer side)
// --------------------------------------------------------------------------

// StreamSink is the producer side of a Stream.
type StreamSink struct {
	ch         chan KeyValue
	finishOnce sync.Once
	err        error // written before ch is closed
}

// NewStreamPipe creates a stream backed by a channel with the given capacity.
// cancel is invoked once when the consumer closes the stream.
func NewStreamPipe(bufferSize int, cancel func()) (*Stream, *StreamSink) {
	if bufferSize < 0 {
		bufferSize = 0
	}
	sink := &StreamSink{ch: make(chan KeyValue, bufferSize)}
	return &Stream{items: sink.ch, sink: sink, cancel: cancel}, sink
}

// Send delivers kv to the consumer. It blocks while the buffer is full.
func (w *StreamSink) Send(ctx context.Context, kv KeyValue) error {
	select {
	case w.ch <- kv:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend delivers kv without blocking and reports whether there was room for it.
func (w *StreamSink) TrySend(kv KeyValue) bool {
	select {
	case w.ch <- kv:
		return true
	default:
		return false
	}
}

// Finish terminates the stream. It must not be called concurrently with Send or TrySend.
// Only the first call has an effect.
func (w *StreamSink) Finish(err error) {
	w.finishOnce.Do(func() {
		w.err = err
		close(w.ch)
	})
}
