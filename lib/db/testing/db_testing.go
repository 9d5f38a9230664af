package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EngineFactory creates a new, stopped engine persisting its data at path
type EngineFactory func(path string) db.Engine

// RunEngineTests runs the conformance test suite for an Engine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, startEngine(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, startEngine(t, factory))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, startEngine(t, factory))
		})

		t.Run("BatchPut", func(t *testing.T) {
			testBatchPut(t, startEngine(t, factory))
		})

		t.Run("BatchDelete", func(t *testing.T) {
			testBatchDelete(t, startEngine(t, factory))
		})

		t.Run("RangeBounds", func(t *testing.T) {
			testRangeBounds(t, startEngine(t, factory))
		})

		t.Run("RangeOrderAndLimit", func(t *testing.T) {
			testRangeOrderAndLimit(t, startEngine(t, factory))
		})

		t.Run("PrefixRange", func(t *testing.T) {
			testPrefixRange(t, startEngine(t, factory))
		})

		t.Run("ValuesStream", func(t *testing.T) {
			testValuesStream(t, startEngine(t, factory))
		})

		t.Run("StreamClose", func(t *testing.T) {
			testStreamClose(t, startEngine(t, factory))
		})

		t.Run("StreamCancel", func(t *testing.T) {
			testStreamCancel(t, startEngine(t, factory))
		})

		t.Run("Lifecycle", func(t *testing.T) {
			testLifecycle(t, factory)
		})

		t.Run("StopDuringStream", func(t *testing.T) {
			testStopDuringStream(t, factory)
		})

		t.Run("Persistence", func(t *testing.T) {
			testPersistence(t, factory)
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, startEngine(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, startEngine(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// startEngine creates and starts an engine in a temporary directory. It is stopped on cleanup.
func startEngine(t testing.TB, factory EngineFactory) db.Engine {
	engine := factory(t.TempDir())
	require.NoError(t, engine.Start())
	t.Cleanup(func() {
		_ = engine.Stop()
	})
	return engine
}

func fill(t testing.TB, engine db.Engine, keys ...string) {
	for _, k := range keys {
		require.NoError(t, engine.Put([]byte(k), []byte("v-"+k)))
	}
}

func keyStrings(keys [][]byte) []string {
	result := make([]string, len(keys))
	for i, k := range keys {
		result[i] = string(k)
	}
	return result
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, engine db.Engine) {
	key := []byte("account-1")

	require.NoError(t, engine.Put(key, []byte("Alice")))

	value, found, err := engine.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("Alice"), value)

	// overwrite
	require.NoError(t, engine.Put(key, []byte("Alicia")))
	value, found, err = engine.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("Alicia"), value)

	// missing key is absent, not an error
	value, found, err = engine.Get([]byte("account-2"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)

	// empty value is distinguishable from absent
	require.NoError(t, engine.Put([]byte("empty"), []byte{}))
	value, found, err = engine.Get([]byte("empty"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, value)

	// returned slices are copies
	value, _, _ = engine.Get(key)
	value[0] = 'X'
	again, _, _ := engine.Get(key)
	assert.Equal(t, []byte("Alicia"), again)

	// empty keys
	assert.ErrorIs(t, engine.Put(nil, []byte("x")), db.ErrInvalidKey)
	_, found, err = engine.Get(nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func testDelete(t *testing.T, engine db.Engine) {
	key := []byte("validator-1")
	require.NoError(t, engine.Put(key, []byte("Bob")))

	require.NoError(t, engine.Delete(key))
	_, found, err := engine.Get(key)
	require.NoError(t, err)
	assert.False(t, found)

	// idempotent
	require.NoError(t, engine.Delete(key))
	require.NoError(t, engine.Delete([]byte("never-written")))

	assert.ErrorIs(t, engine.Delete(nil), db.ErrInvalidKey)
}

func testHas(t *testing.T, engine db.Engine) {
	fill(t, engine, "a")

	found, err := engine.Has([]byte("a"))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = engine.Has([]byte("b"))
	require.NoError(t, err)
	assert.False(t, found)

	found, err = engine.Has(nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func testBatchPut(t *testing.T, engine db.Engine) {
	items := []db.KeyValue{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: nil, Value: []byte("rejected")},
		{Key: []byte("k2"), Value: []byte("v2")},
		{Key: []byte("k1"), Value: []byte("v1-last")},
	}

	results, err := engine.BatchPut(items)
	require.NoError(t, err)
	require.Len(t, results, len(items))
	assert.NoError(t, results[0])
	assert.ErrorIs(t, results[1], db.ErrInvalidKey)
	assert.NoError(t, results[2])
	assert.NoError(t, results[3])

	// later items of the same batch win
	value, found, err := engine.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1-last"), value)

	keys, err := engine.Keys(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keyStrings(keys))

	// empty batch
	results, err = engine.BatchPut(nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testBatchDelete(t *testing.T, engine db.Engine) {
	fill(t, engine, "a", "b", "c")

	require.NoError(t, engine.BatchDelete([][]byte{[]byte("a"), []byte("c"), []byte("missing"), nil}))

	keys, err := engine.Keys(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keyStrings(keys))
}

func testRangeBounds(t *testing.T, engine db.Engine) {
	fill(t, engine, "a", "b", "c", "d", "e")

	cases := []struct {
		name string
		opts *db.FilterOptions
		want []string
	}{
		{"All", nil, []string{"a", "b", "c", "d", "e"}},
		{"Gt", &db.FilterOptions{Gt: []byte("b")}, []string{"c", "d", "e"}},
		{"Gte", &db.FilterOptions{Gte: []byte("b")}, []string{"b", "c", "d", "e"}},
		{"Lt", &db.FilterOptions{Lt: []byte("d")}, []string{"a", "b", "c"}},
		{"Lte", &db.FilterOptions{Lte: []byte("d")}, []string{"a", "b", "c", "d"}},
		{"GteLte", &db.FilterOptions{Gte: []byte("b"), Lte: []byte("d")}, []string{"b", "c", "d"}},
		{"GtLt", &db.FilterOptions{Gt: []byte("b"), Lt: []byte("d")}, []string{"c"}},
		{"ExclusiveWinsLower", &db.FilterOptions{Gt: []byte("b"), Gte: []byte("b")}, []string{"c", "d", "e"}},
		{"ExclusiveWinsUpper", &db.FilterOptions{Lt: []byte("d"), Lte: []byte("d")}, []string{"a", "b", "c"}},
		{"BetweenKeys", &db.FilterOptions{Gt: []byte("bb"), Lt: []byte("dd")}, []string{"c", "d"}},
		{"EmptyRange", &db.FilterOptions{Gt: []byte("c"), Lt: []byte("c")}, []string{}},
		{"InvertedRange", &db.FilterOptions{Gte: []byte("d"), Lte: []byte("b")}, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keys, err := engine.Keys(tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, keyStrings(keys))

			values, err := engine.Values(tc.opts)
			require.NoError(t, err)
			require.Len(t, values, len(tc.want))
			for i, k := range tc.want {
				assert.Equal(t, "v-"+k, string(values[i]))
			}

			searched, err := engine.Search(tc.opts)
			require.NoError(t, err)
			assert.Equal(t, values, searched)

			entries, err := engine.Entries(tc.opts)
			require.NoError(t, err)
			require.Len(t, entries, len(tc.want))
			for i, k := range tc.want {
				assert.Equal(t, k, string(entries[i].Key))
				assert.Equal(t, "v-"+k, string(entries[i].Value))
			}
		})
	}
}

func testRangeOrderAndLimit(t *testing.T, engine db.Engine) {
	fill(t, engine, "a", "b", "c", "d", "e")

	keys, err := engine.Keys(&db.FilterOptions{Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, keyStrings(keys))

	keys, err = engine.Keys(&db.FilterOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keyStrings(keys))

	keys, err = engine.Keys(&db.FilterOptions{Gte: []byte("b"), Lte: []byte("d"), Reverse: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, keyStrings(keys))

	// negative limit means unlimited
	keys, err = engine.Keys(&db.FilterOptions{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func testPrefixRange(t *testing.T, engine db.Engine) {
	fill(t, engine, "acc/1", "acc/2", "acc0", "val/1", "ac")

	keys, err := engine.Keys(db.PrefixFilter([]byte("acc/")))
	require.NoError(t, err)
	assert.Equal(t, []string{"acc/1", "acc/2"}, keyStrings(keys))

	// prefix ending in 0xff
	require.NoError(t, engine.Put([]byte{0x01, 0xff, 0x01}, []byte("x")))
	require.NoError(t, engine.Put([]byte{0x02}, []byte("y")))
	keys, err = engine.Keys(db.PrefixFilter([]byte{0x01, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x01, 0xff, 0x01}}, keys)
}

func testValuesStream(t *testing.T, engine db.Engine) {
	fill(t, engine, "1", "2", "3")

	stream, err := engine.ValuesStream(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	var values []string
	for {
		kv, ok := stream.Next()
		if !ok {
			break
		}
		assert.Nil(t, kv.Key)
		values = append(values, string(kv.Value))
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"v-1", "v-2", "v-3"}, values)

	// exhausted streams stay exhausted
	_, ok := stream.Next()
	assert.False(t, ok)

	// keys and entries
	keyStream, err := engine.KeysStream(context.Background(), &db.FilterOptions{Gt: []byte("1")})
	require.NoError(t, err)
	entries, err := db.Collect(keyStream)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("2"), entries[0].Key)
	assert.Nil(t, entries[0].Value)

	entryStream, err := engine.EntriesStream(context.Background(), &db.FilterOptions{Reverse: true, Limit: 1})
	require.NoError(t, err)
	entries, err = db.Collect(entryStream)
	require.NoError(t, err)
	assert.Equal(t, []db.KeyValue{{Key: []byte("3"), Value: []byte("v-3")}}, entries)

	// empty range completes immediately
	emptyStream, err := engine.ValuesStream(context.Background(), &db.FilterOptions{Gt: []byte("9")})
	require.NoError(t, err)
	entries, err = db.Collect(emptyStream)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testStreamClose(t *testing.T, engine db.Engine) {
	for i := 0; i < 500; i++ {
		require.NoError(t, engine.Put([]byte(fmt.Sprintf("key-%04d", i)), []byte("value")))
	}

	stream, err := engine.ValuesStream(context.Background(), nil)
	require.NoError(t, err)

	_, ok := stream.Next()
	require.True(t, ok)
	stream.Close()
	stream.Close()

	_, ok = stream.Next()
	assert.False(t, ok)

	// the abandoned producer must not block writers or Stop
	require.NoError(t, engine.Put([]byte("after"), []byte("close")))
	done := make(chan error, 1)
	go func() { done <- engine.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked by closed stream")
	}
}

func testStreamCancel(t *testing.T, engine db.Engine) {
	for i := 0; i < 500; i++ {
		require.NoError(t, engine.Put([]byte(fmt.Sprintf("key-%04d", i)), []byte("value")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := engine.ValuesStream(ctx, nil)
	require.NoError(t, err)
	defer stream.Close()

	_, ok := stream.Next()
	require.True(t, ok)
	cancel()

	// drain: the producer stops after the buffered items
	n := 1
	for {
		if _, ok := stream.Next(); !ok {
			break
		}
		n++
	}
	assert.Less(t, n, 500)
	assert.ErrorIs(t, stream.Err(), context.Canceled)
}

func testLifecycle(t *testing.T, factory EngineFactory) {
	engine := factory(t.TempDir())

	// before start
	assert.ErrorIs(t, engine.Put([]byte("k"), []byte("v")), db.ErrNotReady)
	_, _, err := engine.Get([]byte("k"))
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = engine.ValuesStream(context.Background(), nil)
	assert.ErrorIs(t, err, db.ErrNotReady)
	require.NoError(t, engine.Stop())

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Start())
	require.NoError(t, engine.Put([]byte("k"), []byte("v")))

	require.NoError(t, engine.Stop())
	require.NoError(t, engine.Stop())

	// after stop
	assert.ErrorIs(t, engine.Put([]byte("k"), []byte("v")), db.ErrNotReady)
	assert.ErrorIs(t, engine.Delete([]byte("k")), db.ErrNotReady)
	_, err = engine.BatchPut([]db.KeyValue{{Key: []byte("k")}})
	assert.ErrorIs(t, err, db.ErrNotReady)
	assert.ErrorIs(t, engine.BatchDelete([][]byte{[]byte("k")}), db.ErrNotReady)
	_, err = engine.Has([]byte("k"))
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = engine.Keys(nil)
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = engine.Values(nil)
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = engine.Entries(nil)
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = engine.Search(nil)
	assert.ErrorIs(t, err, db.ErrNotReady)
	_, err = engine.KeysStream(context.Background(), nil)
	assert.ErrorIs(t, err, db.ErrNotReady)

	// GetInfo works in every state
	info := engine.GetInfo()
	assert.NotEmpty(t, info.DbType)
}

func testStopDuringStream(t *testing.T, factory EngineFactory) {
	engine := factory(t.TempDir())
	require.NoError(t, engine.Start())

	for i := 0; i < 1000; i++ {
		require.NoError(t, engine.Put([]byte(fmt.Sprintf("key-%04d", i)), []byte("value")))
	}

	stream, err := engine.ValuesStream(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	_, ok := stream.Next()
	require.True(t, ok)

	require.NoError(t, engine.Stop())

	n := 1
	for {
		if _, ok := stream.Next(); !ok {
			break
		}
		n++
	}
	assert.Less(t, n, 1000)
	assert.ErrorIs(t, stream.Err(), db.ErrNotReady)
}

func testPersistence(t *testing.T, factory EngineFactory) {
	path := t.TempDir()

	engine := factory(path)
	require.NoError(t, engine.Start())
	fill(t, engine, "a", "b")
	require.NoError(t, engine.Delete([]byte("a")))
	require.NoError(t, engine.Stop())

	// restart of the same instance
	require.NoError(t, engine.Start())
	value, found, err := engine.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v-b"), value)
	require.NoError(t, engine.Stop())

	// a new instance on the same files
	reopened := factory(path)
	require.NoError(t, reopened.Start())
	defer reopened.Stop()

	keys, err := reopened.Keys(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keyStrings(keys))
}

func testConcurrentWriters(t *testing.T, engine db.Engine) {
	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := []byte(fmt.Sprintf("w%d-%03d", w, i))
				assert.NoError(t, engine.Put(key, key))
			}
		}(w)
	}
	wg.Wait()

	keys, err := engine.Keys(nil)
	require.NoError(t, err)
	assert.Len(t, keys, writers*perWriter)
}

func testInfo(t *testing.T, engine db.Engine) {
	fill(t, engine, "a", "b", "c")

	info := engine.GetInfo()
	assert.NotEmpty(t, info.DbType)
	assert.NotEmpty(t, info.Path)
	assert.GreaterOrEqual(t, info.SizeBytes, int64(0))

	stats, ok := info.Metadata.(db.ValueSizeStats)
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Samples)
}
