package base

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tagEcho uint64 = iota + 1
	tagSlow
	tagPush
	tagNotify
	tagMissing
)

// unixConnector is a minimal connector for tests
type unixConnector struct{}

func (unixConnector) GetName() string { return "unix" }

func (unixConnector) Connect(endpoint string) (net.Conn, error) { return net.Dial("unix", endpoint) }

func (unixConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("unix", config.Transport.Endpoint)
}

func (unixConnector) UpgradeConnection(net.Conn, common.TransportConfig) error { return nil }

type testServer struct {
	transport.IRPCServerTransport
	endpoint string
	notified chan []byte
	release  chan struct{}
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	// unix socket paths are limited in length, t.TempDir can be too long
	dir, err := os.MkdirTemp("", "cgdb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s := &testServer{
		IRPCServerTransport: NewBaseServerTransport(unixConnector{}, 1024, 4),
		endpoint:            filepath.Join(dir, "t.sock"),
		notified:            make(chan []byte, 8),
		release:             make(chan struct{}),
	}

	require.NoError(t, s.RegisterHandler(tagEcho, func(_ transport.Session, req []byte) []byte {
		return append([]byte("echo:"), req...)
	}))
	require.NoError(t, s.RegisterHandler(tagSlow, func(session transport.Session, req []byte) []byte {
		select {
		case <-s.release:
		case <-session.Done():
		}
		return req
	}))
	require.NoError(t, s.RegisterHandler(tagPush, func(session transport.Session, req []byte) []byte {
		assert.NoError(t, session.Push(tagPush, append([]byte(nil), req...)))
		return []byte("ok")
	}))
	require.NoError(t, s.RegisterHandler(tagNotify, func(_ transport.Session, req []byte) []byte {
		s.notified <- append([]byte(nil), req...)
		return nil
	}))

	config := common.ServerConfig{Transport: common.TransportConfig{Endpoint: s.endpoint}}
	listening := make(chan error, 1)
	go func() { listening <- s.Listen(config) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(s.endpoint)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
		assert.NoError(t, <-listening)
	})
	return s
}

func connectClient(t *testing.T, endpoint string, timeoutSec int) transport.IRPCClientTransport {
	t.Helper()
	c := NewBaseClientTransport(unixConnector{})
	require.NoError(t, c.Connect(common.ClientConfig{
		TimeoutSecond: timeoutSec,
		Transport:     common.TransportConfig{Endpoints: []string{endpoint}, RetryCount: 3},
	}))
	t.Cleanup(func() { c.Close() })
	return c
}

func pendingRequests(c transport.IRPCClientTransport) int {
	ct := c.(*clientTransport)
	ct.connectionsMu.RLock()
	defer ct.connectionsMu.RUnlock()

	n := 0
	for _, conn := range ct.connections {
		conn.connMu.Lock()
		if conn.current != nil {
			n += conn.current.pending.Size()
		}
		conn.connMu.Unlock()
	}
	return n
}

func TestRequestResponse(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 5)

	resp, err := c.Send(context.Background(), tagEcho, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(resp))

	resp, err = c.Send(context.Background(), tagEcho, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo:", string(resp))
	assert.Equal(t, 0, pendingRequests(c))
}

func TestDuplicateHandler(t *testing.T) {
	s := startServer(t)

	err := s.RegisterHandler(tagEcho, func(transport.Session, []byte) []byte { return nil })
	assert.ErrorIs(t, err, transport.ErrHandlerExists)

	s.UnregisterHandler(tagEcho)
	s.UnregisterHandler(tagEcho)
	assert.NoError(t, s.RegisterHandler(tagEcho, func(transport.Session, []byte) []byte { return nil }))

	assert.Error(t, s.RegisterHandler(transport.TagNoHandler, func(transport.Session, []byte) []byte { return nil }))
}

func TestNoHandler(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 5)

	_, err := c.Send(context.Background(), tagMissing, []byte("x"))
	assert.ErrorIs(t, err, transport.ErrNoHandler)
}

func TestTimeoutRemovesPendingSlot(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, tagSlow, []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, pendingRequests(c))

	// the late response is dropped and the connection stays usable
	close(s.release)
	resp, err := c.Send(context.Background(), tagEcho, []byte("after"))
	require.NoError(t, err)
	assert.Equal(t, "echo:after", string(resp))
}

func TestConfiguredTimeout(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 1)

	start := time.Now()
	_, err := c.Send(context.Background(), tagSlow, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, 0, pendingRequests(c))
}

func TestPushAndNotify(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 5)

	pushed := make(chan string, 1)
	c.SetPushHandler(func(tag uint64, payload []byte) {
		if tag == tagPush {
			pushed <- string(payload)
		}
	})

	resp, err := c.Send(context.Background(), tagPush, []byte("event"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp))

	select {
	case p := <-pushed:
		assert.Equal(t, "event", p)
	case <-time.After(2 * time.Second):
		t.Fatal("push not received")
	}

	require.NoError(t, c.Notify(tagNotify, []byte("credit")))
	select {
	case n := <-s.notified:
		assert.Equal(t, "credit", string(n))
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestCloseFailsPending(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 0)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), tagSlow, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return pendingRequests(c) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not failed")
	}

	_, err := c.Send(context.Background(), tagEcho, nil)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, c.Notify(tagNotify, nil), transport.ErrClosed)
}

func TestServerCloseDisconnects(t *testing.T) {
	s := startServer(t)
	c := connectClient(t, s.endpoint, 0)

	var disconnected atomic.Bool
	c.SetDisconnectHandler(func(err error) {
		if errors.Is(err, transport.ErrConnection) {
			disconnected.Store(true)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), tagSlow, nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return pendingRequests(c) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrConnection)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not failed")
	}
	assert.Eventually(t, disconnected.Load, 2*time.Second, 5*time.Millisecond)
}

func TestConnectFails(t *testing.T) {
	c := NewBaseClientTransport(unixConnector{})
	err := c.Connect(common.ClientConfig{Transport: common.TransportConfig{
		Endpoints: []string{filepath.Join(os.TempDir(), "cgdb-missing.sock")},
	}})
	assert.ErrorIs(t, err, transport.ErrConnection)

	assert.Error(t, c.Connect(common.ClientConfig{}))
}

func TestFrameLimit(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		header := make([]byte, headerSize)
		header[16] = 0xff // length far above MaxFrameSize
		client.Write(header)
	}()

	_, _, _, err := readFrame(server, nil)
	assert.Error(t, err)
}

func TestFailedWriteKeepsUnreadPushes(t *testing.T) {
	dir, err := os.MkdirTemp("", "cgdb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	ln, err := net.Listen("unix", filepath.Join(dir, "t.sock"))
	require.NoError(t, err)
	defer ln.Close()

	ct := NewBaseClientTransport(unixConnector{}).(*clientTransport)
	pushed := make(chan []byte, 1)
	ct.SetPushHandler(func(tag uint64, data []byte) {
		if tag == tagPush {
			pushed <- append([]byte(nil), data...)
		}
	})
	var disconnected atomic.Bool
	ct.SetDisconnectHandler(func(error) { disconnected.Store(true) })

	conn, err := net.Dial("unix", ln.Addr().String())
	require.NoError(t, err)
	peer, err := ln.Accept()
	require.NoError(t, err)

	// the peer sends a last push and goes away before the client reads it
	require.NoError(t, writeFrame(peer, tagPush, 0, []byte("end")))
	require.NoError(t, peer.Close())

	c := &clientConnection{endpoint: ln.Addr().String(), parent: ct}
	l := &link{conn: conn, pending: xsync.NewMapOf[uint64, chan responseResult]()}
	c.current = l

	c.connMu.Lock()
	err = c.writeLocked(l, tagNotify, 0, []byte("credit"))
	c.connMu.Unlock()
	require.ErrorIs(t, err, transport.ErrConnection)
	assert.Nil(t, c.current)

	go c.readResponses(l)

	select {
	case data := <-pushed:
		assert.Equal(t, []byte("end"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("push sent before the failed write was lost")
	}
	assert.Eventually(t, disconnected.Load, 2*time.Second, 5*time.Millisecond)
}
