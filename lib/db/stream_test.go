package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamPipe(t *testing.T) {
	t.Run("ValuesThenEnd", func(t *testing.T) {
		stream, sink := NewStreamPipe(4, nil)
		for _, v := range []string{"v1", "v2", "v3"} {
			require.NoError(t, sink.Send(context.Background(), KeyValue{Value: []byte(v)}))
		}
		sink.Finish(nil)

		entries, err := Collect(stream)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []byte("v3"), entries[2].Value)

		_, ok := stream.Next()
		assert.False(t, ok)
	})

	t.Run("ErrorAfterValues", func(t *testing.T) {
		stream, sink := NewStreamPipe(4, nil)
		failure := errors.New("boom")
		require.NoError(t, sink.Send(context.Background(), KeyValue{Value: []byte("v1")}))
		sink.Finish(failure)
		sink.Finish(nil)

		kv, ok := stream.Next()
		require.True(t, ok)
		assert.Equal(t, []byte("v1"), kv.Value)
		assert.NoError(t, stream.Err(), "error is only visible after the end")

		_, ok = stream.Next()
		assert.False(t, ok)
		assert.ErrorIs(t, stream.Err(), failure)
	})

	t.Run("Backpressure", func(t *testing.T) {
		_, sink := NewStreamPipe(2, nil)
		assert.True(t, sink.TrySend(KeyValue{}))
		assert.True(t, sink.TrySend(KeyValue{}))
		assert.False(t, sink.TrySend(KeyValue{}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, sink.Send(ctx, KeyValue{}), context.DeadlineExceeded)
	})

	t.Run("CloseCancelsOnce", func(t *testing.T) {
		calls := 0
		stream, _ := NewStreamPipe(1, func() { calls++ })
		stream.Close()
		stream.Close()
		assert.Equal(t, 1, calls)

		_, ok := stream.Next()
		assert.False(t, ok)
	})

	t.Run("OnConsume", func(t *testing.T) {
		consumed := 0
		stream, sink := NewStreamPipe(2, nil)
		stream.OnConsume(func() { consumed++ })
		sink.TrySend(KeyValue{Value: []byte("v1")})
		sink.TrySend(KeyValue{Value: []byte("v2")})
		sink.Finish(nil)

		_, err := Collect(stream)
		require.NoError(t, err)
		assert.Equal(t, 2, consumed, "the end of the stream is not an entry")
	})
}

func TestStreamModeProject(t *testing.T) {
	key, value := []byte("k"), []byte("v")

	assert.Equal(t, KeyValue{Value: []byte("v")}, StreamValues.Project(key, value))
	assert.Equal(t, KeyValue{Key: []byte("k")}, StreamKeys.Project(key, value))

	kv := StreamEntries.Project(key, value)
	key[0], value[0] = 'x', 'x'
	assert.Equal(t, KeyValue{Key: []byte("k"), Value: []byte("v")}, kv)
}
