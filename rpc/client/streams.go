package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

const defaultStreamWindow = 64

// remoteStream is the client side of one stream.
// Events are buffered in the sink, whose capacity equals the window so the server can never overrun it.
type remoteStream struct {
	token  string
	window uint32
	owner  *RPCStore
	sink   *db.StreamSink

	mu       sync.Mutex // Protects sink, finished and stop
	finished bool
	stop     func() bool

	// only touched by the consumer
	unacked uint32
}

// deliver hands one event to the consumer. It fails the stream if the server ignored the window.
func (rs *remoteStream) deliver(kv db.KeyValue) {
	rs.mu.Lock()
	if rs.finished {
		rs.mu.Unlock()
		return
	}
	ok := rs.sink.TrySend(kv)
	rs.mu.Unlock()

	if !ok {
		Logger.Errorf("stream %s: server exceeded the window of %d events", rs.token, rs.window)
		rs.owner.cancelStream(rs, store.NewError(store.RetCInternalError, "stream window exceeded"))
	}
}

// finish ends the stream for the consumer, only the first call has an effect
func (rs *remoteStream) finish(err error) {
	rs.mu.Lock()
	if rs.finished {
		rs.mu.Unlock()
		return
	}
	rs.finished = true
	rs.sink.Finish(err)
	stop := rs.stop
	rs.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// setStop registers the func detaching the stream from its context
func (rs *remoteStream) setStop(stop func() bool) {
	rs.mu.Lock()
	if rs.finished {
		rs.mu.Unlock()
		stop()
		return
	}
	rs.stop = stop
	rs.mu.Unlock()
}

// consumed returns credit to the server after half of the window was consumed
func (rs *remoteStream) consumed() {
	rs.unacked++
	if rs.unacked < max(rs.window/2, 1) {
		return
	}
	n := rs.unacked
	rs.unacked = 0
	rs.owner.notify(common.NewStreamCredit(rs.token, n))
}

// --------------------------------------------------------------------------
// Stream Methods of the RPCStore
// --------------------------------------------------------------------------

// openStream registers a token and its buffer, then asks the server to start producing
func (i *RPCStore) openStream(ctx context.Context, msgType common.MessageType, opts *db.FilterOptions) (*db.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}

	window := defaultStreamWindow
	if i.config.StreamWindow > 0 {
		window = i.config.StreamWindow
	}

	rs := &remoteStream{
		token:  uuid.NewString(),
		window: uint32(window),
		owner:  i,
	}
	stream, sink := db.NewStreamPipe(window, func() {
		i.cancelStream(rs, store.ErrCanceled)
	})
	rs.sink = sink
	stream.OnConsume(rs.consumed)

	// register before the request, events may arrive before the response
	i.streams.Store(rs.token, rs)

	req := common.NewStreamRequest(msgType, rs.token, opts, rs.window)
	if _, err := invokeRPCRequest(ctx, req, i.transport, i.serializer); err != nil {
		// the server may have started the stream even though the response got lost
		i.cancelStream(rs, err)
		return nil, err
	}

	rs.setStop(context.AfterFunc(ctx, func() {
		i.cancelStream(rs, store.FromError(ctx.Err()))
	}))

	Logger.Debugf("opened %s stream %s", msgType.StreamMode(), rs.token)
	return stream, nil
}

// cancelStream removes the token, tells the server to stop and ends the stream with err
func (i *RPCStore) cancelStream(rs *remoteStream, err error) {
	if _, ok := i.streams.LoadAndDelete(rs.token); ok {
		i.notify(common.NewStreamCancel(rs.token))
	}
	rs.finish(err)
}

// handlePush receives the events of all streams
func (i *RPCStore) handlePush(tag uint64, payload []byte) {
	if tag != uint64(common.MsgTDBValuesEvent) {
		Logger.Warningf("ignoring push with tag %d", tag)
		return
	}

	var msg common.Message
	if err := i.serializer.Deserialize(payload, &msg); err != nil {
		Logger.Errorf("failed to deserialize stream event: %v", err)
		return
	}

	if msg.End {
		if rs, ok := i.streams.LoadAndDelete(msg.Token); ok {
			rs.finish(msg.Error())
		}
		return
	}

	rs, ok := i.streams.Load(msg.Token)
	if !ok {
		Logger.Debugf("dropping event of unknown stream %s", msg.Token)
		return
	}
	rs.deliver(msg.KeyValue())
}

// handleDisconnect fails every live stream, the server stops producing when it sees the connection drop
func (i *RPCStore) handleDisconnect(err error) {
	i.failStreams(fromTransportError(err))
}

func (i *RPCStore) failStreams(err error) {
	i.streams.Range(func(token string, _ *remoteStream) bool {
		if rs, ok := i.streams.LoadAndDelete(token); ok {
			rs.finish(err)
		}
		return true
	})
}

// notify sends a fire-and-forget message, failures are only logged
func (i *RPCStore) notify(msg *common.Message) {
	data, err := i.serializer.Serialize(*msg)
	if err != nil {
		Logger.Errorf("failed to serialize %s: %v", msg.MsgType, err)
		return
	}
	if err := i.transport.Notify(uint64(msg.MsgType), data); err != nil {
		Logger.Debugf("failed to send %s for stream %s: %v", msg.MsgType, msg.Token, err)
	}
}

// liveStreams returns the number of registered stream tokens
func (i *RPCStore) liveStreams() int {
	return i.streams.Size()
}
