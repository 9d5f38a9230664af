package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/db/engines/leveldb"
	"github.com/mpetrunic/ChainGuardian/lib/models"
	"github.com/mpetrunic/ChainGuardian/lib/repository"
	"github.com/mpetrunic/ChainGuardian/lib/schema"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/server"
	"github.com/mpetrunic/ChainGuardian/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *server.RPCServer
	engine   db.Engine
	endpoint string
	ser      serializer.IRPCSerializer
}

// startServer hosts a leveldb engine on a unix socket
func startServer(t *testing.T, ser serializer.IRPCSerializer) *testEnv {
	t.Helper()

	// unix socket paths are limited in length, t.TempDir can be too long
	dir, err := os.MkdirTemp("", "cgdb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	env := &testEnv{
		engine:   leveldb.New(filepath.Join(dir, "db"), db.EngineOptions{StreamBufferSize: 4}),
		endpoint: filepath.Join(dir, "db.sock"),
		ser:      ser,
	}

	config := common.ServerConfig{
		TimeoutSecond: 5,
		StreamWindow:  8,
		Transport:     common.TransportConfig{Endpoint: env.endpoint, WorkersPerConn: 4},
	}
	env.server = server.NewRPCServer(config, env.engine, unix.NewUnixDefaultServerTransport(), ser)

	serving := make(chan error, 1)
	go func() { serving <- env.server.Serve() }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(env.endpoint)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		assert.NoError(t, env.server.Stop())
		<-serving
	})
	return env
}

func (env *testEnv) connect(t *testing.T, window int) *RPCStore {
	t.Helper()
	s, err := NewRPCStore(common.ClientConfig{
		TimeoutSecond: 5,
		StreamWindow:  window,
		Transport:     common.TransportConfig{Endpoints: []string{env.endpoint}, RetryCount: 3},
	}, unix.NewUnixClientTransport(), env.ser)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putValues(t *testing.T, s store.IStore, n int) {
	t.Helper()
	items := make([]db.KeyValue, n)
	for i := range items {
		items[i] = db.KeyValue{
			Key:   []byte(fmt.Sprintf("k%03d", i+1)),
			Value: []byte(fmt.Sprintf("v%d", i+1)),
		}
	}
	results, err := s.BatchPut(context.Background(), items)
	require.NoError(t, err)
	for _, res := range results {
		require.NoError(t, res)
	}
}

func TestRemoteRepositories(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"binary", "json", "gob"} {
		t.Run(name, func(t *testing.T) {
			ser, ok := serializer.FromName(name)
			require.True(t, ok)
			s := startServer(t, ser).connect(t, 0)

			accounts := repository.New[models.Account](s, schema.BucketAccounts, nil)
			validators := repository.New[models.Validator](s, schema.BucketValidators, nil)

			require.NoError(t, accounts.Set(ctx, "1", models.Account{Name: "Alice"}))
			require.NoError(t, validators.Set(ctx, "1", models.Validator{Name: "Bob"}))

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

			var streamed []string
			require.NoError(t, validators.Stream(ctx, func(v models.Validator) error {
				streamed = append(streamed, v.Name)
				return nil
			}))
			assert.Equal(t, []string{"Bob"}, streamed)
		})
	}
}

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()
	env := startServer(t, serializer.NewBinarySerializer())
	s := env.connect(t, 0)

	t.Run("GetPutDelete", func(t *testing.T) {
		value, found, err := s.Get(ctx, []byte("missing"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)

		require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
		require.NoError(t, s.Put(ctx, []byte("empty"), []byte{}))

		value, found, err = s.Get(ctx, []byte("a"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), value)

		value, found, err = s.Get(ctx, []byte("empty"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte{}, value)

		has, err := s.Has(ctx, []byte("a"))
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, s.Delete(ctx, []byte("a")))
		require.NoError(t, s.Delete(ctx, []byte("a")))

		has, err = s.Has(ctx, []byte("a"))
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		err := s.Put(ctx, nil, []byte("x"))
		assert.ErrorIs(t, err, store.ErrInvalidOperation)
	})

	t.Run("BatchResults", func(t *testing.T) {
		results, err := s.BatchPut(ctx, []db.KeyValue{
			{Key: []byte("b1"), Value: []byte("1")},
			{Key: nil, Value: []byte("2")},
			{Key: []byte("b3"), Value: []byte("3")},
		})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.NoError(t, results[0])
		assert.ErrorIs(t, results[1], store.ErrInvalidOperation)
		assert.NoError(t, results[2])

		keys, err := s.Keys(ctx, &db.FilterOptions{Gte: []byte("b"), Lt: []byte("c")})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("b1"), []byte("b3")}, keys)

		require.NoError(t, s.BatchDelete(ctx, keys))
		keys, err = s.Keys(ctx, &db.FilterOptions{Gte: []byte("b"), Lt: []byte("c")})
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Ranges", func(t *testing.T) {
		putValues(t, s, 3)
		filter := &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")}

		values, err := s.Values(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")}, values)

		found, err := s.Search(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l"), Reverse: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("v3"), []byte("v2")}, found)

		entries, err := s.Entries(ctx, &db.FilterOptions{Gt: []byte("k001"), Lt: []byte("l")})
		require.NoError(t, err)
		assert.Equal(t, []db.KeyValue{
			{Key: []byte("k002"), Value: []byte("v2")},
			{Key: []byte("k003"), Value: []byte("v3")},
		}, entries)
	})

	t.Run("Info", func(t *testing.T) {
		info, err := s.GetDBInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, db.ImplLevelDB, info.DbType)
		assert.Equal(t, env.engine.GetInfo().Path, info.Path)
	})

	t.Run("ExpiredDeadline", func(t *testing.T) {
		deadline, cancel := context.WithTimeout(ctx, -time.Second)
		defer cancel()
		_, _, err := s.Get(deadline, []byte("a"))
		assert.ErrorIs(t, err, store.ErrTimeout)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err = s.Put(canceled, []byte("a"), []byte("1"))
		assert.ErrorIs(t, err, store.ErrCanceled)
	})
}

func TestRemoteStreams(t *testing.T) {
	ctx := context.Background()

	t.Run("ValuesEndOnce", func(t *testing.T) {
		env := startServer(t, serializer.NewBinarySerializer())
		s := env.connect(t, 0)
		putValues(t, s, 3)

		stream, err := s.ValuesStream(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")})
		require.NoError(t, err)
		defer stream.Close()

		var values []string
		for {
			kv, ok := stream.Next()
			if !ok {
				break
			}
			values = append(values, string(kv.Value))
		}
		require.NoError(t, stream.Err())
		assert.Equal(t, []string{"v1", "v2", "v3"}, values)

		// the end is reported once and the stream stays exhausted
		_, ok := stream.Next()
		assert.False(t, ok)
		assert.Equal(t, 0, s.liveStreams())
		assert.Eventually(t, func() bool { return env.server.LiveStreams() == 0 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("WindowSmallerThanRange", func(t *testing.T) {
		env := startServer(t, serializer.NewBinarySerializer())
		s := env.connect(t, 3)
		putValues(t, s, 100)

		stream, err := s.EntriesStream(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")})
		require.NoError(t, err)
		entries, err := db.Collect(stream)
		require.NoError(t, err)
		require.Len(t, entries, 100)
		for i, entry := range entries {
			assert.Equal(t, fmt.Sprintf("k%03d", i+1), string(entry.Key))
			assert.Equal(t, fmt.Sprintf("v%d", i+1), string(entry.Value))
		}

		stream, err = s.KeysStream(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l"), Limit: 5})
		require.NoError(t, err)
		keys, err := db.Collect(stream)
		require.NoError(t, err)
		require.Len(t, keys, 5)
		assert.Nil(t, keys[0].Value)
	})

	t.Run("CloseCancelsProducer", func(t *testing.T) {
		env := startServer(t, serializer.NewBinarySerializer())
		s := env.connect(t, 2)
		putValues(t, s, 50)

		stream, err := s.ValuesStream(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")})
		require.NoError(t, err)
		_, ok := stream.Next()
		require.True(t, ok)
		require.Equal(t, 1, env.server.LiveStreams())

		stream.Close()
		assert.Equal(t, 0, s.liveStreams())
		assert.Eventually(t, func() bool { return env.server.LiveStreams() == 0 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("ContextCancel", func(t *testing.T) {
		env := startServer(t, serializer.NewBinarySerializer())
		s := env.connect(t, 2)
		putValues(t, s, 50)

		streamCtx, cancel := context.WithCancel(ctx)
		stream, err := s.ValuesStream(streamCtx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")})
		require.NoError(t, err)
		defer stream.Close()
		cancel()

		for {
			if _, ok := stream.Next(); !ok {
				break
			}
		}
		assert.ErrorIs(t, stream.Err(), store.ErrCanceled)
		assert.Eventually(t, func() bool { return env.server.LiveStreams() == 0 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("StoreClose", func(t *testing.T) {
		env := startServer(t, serializer.NewBinarySerializer())
		s := env.connect(t, 2)
		putValues(t, s, 20)

		stream, err := s.ValuesStream(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")})
		require.NoError(t, err)
		defer stream.Close()

		require.NoError(t, s.Close())

		_, err = db.Collect(stream)
		assert.ErrorIs(t, err, store.ErrTransportClosed)

		_, _, err = s.Get(ctx, []byte("k001"))
		assert.ErrorIs(t, err, store.ErrTransportClosed)
		assert.Eventually(t, func() bool { return env.server.LiveStreams() == 0 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("ServerStop", func(t *testing.T) {
		env := startServer(t, serializer.NewBinarySerializer())
		s := env.connect(t, 2)
		putValues(t, s, 20)

		stream, err := s.ValuesStream(ctx, &db.FilterOptions{Gte: []byte("k"), Lt: []byte("l")})
		require.NoError(t, err)
		defer stream.Close()

		require.NoError(t, env.server.Stop())

		_, err = db.Collect(stream)
		assert.ErrorIs(t, err, store.ErrEngineNotReady)
	})
}

func TestRemoteEngineNotReady(t *testing.T) {
	ctx := context.Background()
	env := startServer(t, serializer.NewBinarySerializer())
	s := env.connect(t, 0)

	require.NoError(t, env.engine.Stop())

	_, _, err := s.Get(ctx, []byte("a"))
	assert.ErrorIs(t, err, store.ErrEngineNotReady)

	err = s.Put(ctx, []byte("a"), []byte("1"))
	assert.ErrorIs(t, err, store.ErrEngineNotReady)

	_, err = s.ValuesStream(ctx, nil)
	assert.ErrorIs(t, err, store.ErrEngineNotReady)
	assert.Equal(t, 0, s.liveStreams())
}

func TestConnectFails(t *testing.T) {
	dir, err := os.MkdirTemp("", "cgdb")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	_, err = NewRPCStore(common.ClientConfig{
		TimeoutSecond: 1,
		Transport:     common.TransportConfig{Endpoints: []string{filepath.Join(dir, "none.sock")}},
	}, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	assert.ErrorIs(t, err, store.ErrTransportClosed)
}
