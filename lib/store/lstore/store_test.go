package lstore

import (
	"context"
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/db/engines/leveldb"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (store.IStore, db.Engine) {
	engine := leveldb.New(t.TempDir(), db.EngineOptions{})
	require.NoError(t, engine.Start())
	t.Cleanup(func() {
		_ = engine.Stop()
	})
	return NewLocalStore(engine), engine
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PointOperations", func(t *testing.T) {
		s, _ := newStore(t)

		require.NoError(t, s.Put(ctx, []byte("account/1"), []byte("Alice")))

		value, found, err := s.Get(ctx, []byte("account/1"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("Alice"), value)

		_, found, err = s.Get(ctx, []byte("account/2"))
		require.NoError(t, err)
		assert.False(t, found)

		found, err = s.Has(ctx, []byte("account/1"))
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, s.Delete(ctx, []byte("account/1")))
		require.NoError(t, s.Delete(ctx, []byte("account/1")))

		err = s.Put(ctx, nil, []byte("x"))
		assert.ErrorIs(t, err, store.ErrInvalidOperation)
	})

	t.Run("BatchPutResults", func(t *testing.T) {
		s, _ := newStore(t)

		results, err := s.BatchPut(ctx, []db.KeyValue{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte{}, Value: []byte("2")},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.NoError(t, results[0])
		assert.ErrorIs(t, results[1], store.ErrInvalidOperation)

		require.NoError(t, s.BatchDelete(ctx, [][]byte{[]byte("a")}))
		keys, err := s.Keys(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Ranges", func(t *testing.T) {
		s, _ := newStore(t)
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, s.Put(ctx, []byte(k), []byte("v"+k)))
		}

		values, err := s.Search(ctx, &db.FilterOptions{Gt: []byte("a")})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("vb"), []byte("vc")}, values)

		values, err = s.Values(ctx, &db.FilterOptions{Lte: []byte("b")})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("va"), []byte("vb")}, values)

		entries, err := s.Entries(ctx, &db.FilterOptions{Reverse: true, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []db.KeyValue{{Key: []byte("c"), Value: []byte("vc")}}, entries)
	})

	t.Run("Streams", func(t *testing.T) {
		s, _ := newStore(t)
		for _, k := range []string{"1", "2", "3"} {
			require.NoError(t, s.Put(ctx, []byte(k), []byte("v"+k)))
		}

		stream, err := s.ValuesStream(ctx, nil)
		require.NoError(t, err)
		entries, err := db.Collect(stream)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []byte("v1"), entries[0].Value)

		stream, err = s.KeysStream(ctx, nil)
		require.NoError(t, err)
		entries, err = db.Collect(stream)
		require.NoError(t, err)
		assert.Len(t, entries, 3)

		stream, err = s.EntriesStream(ctx, &db.FilterOptions{Gte: []byte("3")})
		require.NoError(t, err)
		entries, err = db.Collect(stream)
		require.NoError(t, err)
		assert.Equal(t, []db.KeyValue{{Key: []byte("3"), Value: []byte("v3")}}, entries)
	})

	t.Run("DoneContext", func(t *testing.T) {
		s, _ := newStore(t)

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := s.Put(canceled, []byte("k"), []byte("v"))
		assert.ErrorIs(t, err, store.ErrCanceled)

		_, err = s.ValuesStream(canceled, nil)
		assert.ErrorIs(t, err, store.ErrCanceled)

		expired, cancelExpired := context.WithTimeout(ctx, 0)
		defer cancelExpired()
		_, _, err = s.Get(expired, []byte("k"))
		assert.ErrorIs(t, err, store.ErrTimeout)

		// nothing was written
		_, found, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("StoppedEngine", func(t *testing.T) {
		s, engine := newStore(t)
		require.NoError(t, engine.Stop())

		_, _, err := s.Get(ctx, []byte("k"))
		assert.ErrorIs(t, err, store.ErrEngineNotReady)

		_, err = s.BatchPut(ctx, []db.KeyValue{{Key: []byte("k")}})
		assert.ErrorIs(t, err, store.ErrEngineNotReady)

		info, err := s.GetDBInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, db.ImplLevelDB, info.DbType)
	})
}
