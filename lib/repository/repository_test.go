package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/db/engines/leveldb"
	"github.com/mpetrunic/ChainGuardian/lib/schema"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	Name string `json:"name"`
}

func newTestStore(t *testing.T) store.IStore {
	engine := leveldb.New(t.TempDir(), db.EngineOptions{})
	require.NoError(t, engine.Start())
	t.Cleanup(func() {
		_ = engine.Stop()
	})
	return lstore.NewLocalStore(engine)
}

func TestRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("BucketsAreSeparate", func(t *testing.T) {
		s := newTestStore(t)
		accounts := New[person](s, schema.BucketAccounts, nil)
		validators := New[person](s, schema.BucketValidators, nil)

		require.NoError(t, accounts.Set(ctx, "1", person{Name: "Alice"}))
		require.NoError(t, validators.Set(ctx, "1", person{Name: "Bob"}))

		alice, found, err := accounts.Get(ctx, "1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Alice", alice.Name)

		bob, found, err := validators.Get(ctx, "1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Bob", bob.Name)

		_, found, err = accounts.Get(ctx, "2")
		require.NoError(t, err)
		assert.False(t, found)

		all, err := accounts.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []person{{Name: "Alice"}}, all)
	})

	t.Run("HasDelete", func(t *testing.T) {
		s := newTestStore(t)
		accounts := New[person](s, schema.BucketAccounts, nil)

		require.NoError(t, accounts.Set(ctx, "1", person{Name: "Alice"}))
		found, err := accounts.Has(ctx, "1")
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, accounts.Delete(ctx, "1"))
		require.NoError(t, accounts.Delete(ctx, "1"))

		found, err = accounts.Has(ctx, "1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("RangeQueries", func(t *testing.T) {
		s := newTestStore(t)
		nodes := New[person](s, schema.BucketBeaconNodes, nil)

		require.NoError(t, nodes.SetMany(ctx, map[string]person{
			"account-1": {Name: "n1"},
			"account-2": {Name: "n2"},
			"other-1":   {Name: "o1"},
		}))

		byPrefix, err := nodes.GetByPrefix(ctx, "account-")
		require.NoError(t, err)
		assert.Equal(t, []person{{Name: "n1"}, {Name: "n2"}}, byPrefix)

		ids, err := nodes.IDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"account-1", "account-2", "other-1"}, ids)

		var streamed []string
		require.NoError(t, nodes.Stream(ctx, func(p person) error {
			streamed = append(streamed, p.Name)
			return nil
		}))
		assert.Equal(t, []string{"n1", "n2", "o1"}, streamed)

		stop := errors.New("stop")
		calls := 0
		err = nodes.Stream(ctx, func(person) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("SerializationFailure", func(t *testing.T) {
		s := newTestStore(t)
		accounts := New[person](s, schema.BucketAccounts, nil)

		require.NoError(t, s.Put(ctx, schema.ComposeKey(schema.BucketAccounts, "broken"), []byte("{not json")))

		_, found, err := accounts.Get(ctx, "broken")
		assert.ErrorIs(t, err, store.ErrSerializationFailure)
		assert.False(t, found)

		_, err = accounts.GetAll(ctx)
		assert.ErrorIs(t, err, store.ErrSerializationFailure)

		err = accounts.Stream(ctx, func(person) error { return nil })
		assert.ErrorIs(t, err, store.ErrSerializationFailure)

		// encode failures
		funcs := New[func()](s, schema.BucketAccounts, nil)
		err = funcs.Set(ctx, "f", func() {})
		assert.ErrorIs(t, err, store.ErrSerializationFailure)
	})

	t.Run("EngineNotReady", func(t *testing.T) {
		engine := leveldb.New(t.TempDir(), db.EngineOptions{})
		accounts := New[person](lstore.NewLocalStore(engine), schema.BucketAccounts, nil)

		_, _, err := accounts.Get(ctx, "1")
		assert.ErrorIs(t, err, store.ErrEngineNotReady)
		assert.ErrorIs(t, accounts.Set(ctx, "1", person{}), store.ErrEngineNotReady)
	})
}
