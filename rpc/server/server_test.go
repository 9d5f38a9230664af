package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/db/engines/leveldb"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/lib/store/lstore"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/mpetrunic/ChainGuardian/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*RPCServer, db.Engine, transport.IRPCServerTransport) {
	t.Helper()
	engine := leveldb.New(t.TempDir(), db.EngineOptions{})
	tr := unix.NewUnixDefaultServerTransport()
	s := NewRPCServer(common.ServerConfig{}, engine, tr, serializer.NewBinarySerializer())
	t.Cleanup(func() { _ = s.Stop() })
	return s, engine, tr
}

// blockingSession is a transport.Session whose pushes block until the session is done
type blockingSession struct{ done chan struct{} }

func (blockingSession) ID() uint64 { return 1 }

func (s blockingSession) Push(uint64, []byte) error {
	<-s.done
	return transport.ErrClosed
}

func (s blockingSession) Done() <-chan struct{} { return s.done }

// discardSession is a transport.Session that drops every push
type discardSession struct{ done chan struct{} }

func (discardSession) ID() uint64 { return 2 }

func (discardSession) Push(uint64, []byte) error { return nil }

func (s discardSession) Done() <-chan struct{} { return s.done }

func TestServerLifecycle(t *testing.T) {
	t.Run("DuplicateHandlerFailsStart", func(t *testing.T) {
		s, engine, tr := newTestServer(t)
		require.NoError(t, tr.RegisterHandler(uint64(common.MsgTDBGet), func(transport.Session, []byte) []byte { return nil }))

		err := s.Start()
		assert.ErrorIs(t, err, transport.ErrHandlerExists)

		// the engine is stopped again and the handlers registered before the failure are removed
		_, _, err = engine.Get([]byte("a"))
		assert.ErrorIs(t, err, db.ErrNotReady)
		assert.NoError(t, tr.RegisterHandler(uint64(common.MsgTDBPut), func(transport.Session, []byte) []byte { return nil }))
	})

	t.Run("StartRegistersEveryType", func(t *testing.T) {
		s, _, tr := newTestServer(t)
		require.NoError(t, s.Start())
		require.NoError(t, s.Start())

		for _, msgType := range append(append([]common.MessageType{}, common.RequestTypes...), common.NotificationTypes...) {
			err := tr.RegisterHandler(uint64(msgType), func(transport.Session, []byte) []byte { return nil })
			assert.ErrorIs(t, err, transport.ErrHandlerExists, msgType.String())
		}

		require.NoError(t, s.Stop())
		require.NoError(t, s.Stop())
		assert.NoError(t, tr.RegisterHandler(uint64(common.MsgTDBGet), func(transport.Session, []byte) []byte { return nil }))
	})
}

func TestHandleRequest(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NoError(t, s.Start())

	ser := serializer.NewBinarySerializer()
	session := blockingSession{done: make(chan struct{})}

	call := func(tag common.MessageType, req *common.Message) *common.Message {
		data, err := ser.Serialize(*req)
		require.NoError(t, err)
		var resp common.Message
		require.NoError(t, ser.Deserialize(s.handleRequest(tag)(session, data), &resp))
		return &resp
	}

	t.Run("PutGet", func(t *testing.T) {
		resp := call(common.MsgTDBPut, common.NewPutRequest([]byte("a"), []byte("1")))
		require.NoError(t, resp.Error())

		resp = call(common.MsgTDBGet, common.NewGetRequest([]byte("a")))
		require.NoError(t, resp.Error())
		assert.True(t, resp.Ok)
		assert.Equal(t, []byte("1"), resp.Value)
	})

	t.Run("TagMismatch", func(t *testing.T) {
		resp := call(common.MsgTDBPut, common.NewGetRequest([]byte("a")))
		assert.Equal(t, common.MsgTError, resp.MsgType)
		assert.ErrorIs(t, resp.Error(), store.ErrInvalidOperation)
	})

	t.Run("Garbage", func(t *testing.T) {
		var resp common.Message
		require.NoError(t, ser.Deserialize(s.handleRequest(common.MsgTDBGet)(session, []byte{0xff}), &resp))
		assert.ErrorIs(t, resp.Error(), store.ErrSerializationFailure)
	})

	t.Run("StreamWithoutToken", func(t *testing.T) {
		resp := call(common.MsgTDBValuesStream, common.NewStreamRequest(common.MsgTDBValuesStream, "", nil, 4))
		assert.ErrorIs(t, resp.Error(), store.ErrInvalidOperation)
		assert.Equal(t, 0, s.LiveStreams())
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		require.NoError(t, s.store.Put(context.Background(), []byte("b"), []byte("2")))

		// the producer of the first stream blocks in its first push
		first := call(common.MsgTDBValuesStream, common.NewStreamRequest(common.MsgTDBValuesStream, "dup", nil, 0))
		require.NoError(t, first.Error())
		require.Equal(t, 1, s.LiveStreams())

		second := call(common.MsgTDBKeysStream, common.NewStreamRequest(common.MsgTDBKeysStream, "dup", nil, 0))
		assert.ErrorIs(t, second.Error(), store.ErrInvalidOperation)

		close(session.done)
		assert.Eventually(t, func() bool { return s.LiveStreams() == 0 }, 2*time.Second, 5*time.Millisecond)
	})
}

func TestStreamHostCloseWaitsForProducers(t *testing.T) {
	engine := leveldb.New(t.TempDir(), db.EngineOptions{})
	require.NoError(t, engine.Start())
	t.Cleanup(func() { _ = engine.Stop() })
	require.NoError(t, engine.Put([]byte("a"), []byte("1")))

	host := newStreamHost(lstore.NewLocalStore(engine), serializer.NewBinarySerializer(), 4)
	session := discardSession{done: make(chan struct{})}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := common.NewStreamRequest(common.MsgTDBValuesStream, fmt.Sprintf("s%d", i), nil, 0)
			resp := host.open(session, req)
			if err := resp.Error(); err != nil {
				assert.ErrorIs(t, err, store.ErrEngineNotReady)
			}
		}()
	}

	host.close()
	wg.Wait()

	// every producer started before close was awaited, later opens were refused
	assert.Equal(t, 0, host.live())
	resp := host.open(session, common.NewStreamRequest(common.MsgTDBValuesStream, "late", nil, 0))
	assert.ErrorIs(t, resp.Error(), store.ErrEngineNotReady)
}
