package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

const defaultStreamWindow = 64

// hostedStream is the server side of one stream
type hostedStream struct {
	token   string
	session transport.Session
	credits atomic.Int64
	wake    chan struct{} // signals new credit
	cancel  context.CancelFunc
}

// grant adds n credits and wakes the producer
func (hs *hostedStream) grant(n uint32) {
	hs.credits.Add(int64(n))
	select {
	case hs.wake <- struct{}{}:
	default:
	}
}

// streamHost runs the producers of all streams of the server.
// Tokens are global so credits and cancels may arrive on any connection.
type streamHost struct {
	store      store.IStore
	serializer serializer.IRPCSerializer
	window     uint32
	streams    *xsync.MapOf[string, *hostedStream]

	ctx    context.Context // canceled when the server stops
	cancel context.CancelFunc

	// mu orders the start of producers against close
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newStreamHost(s store.IStore, ser serializer.IRPCSerializer, window int) *streamHost {
	if window <= 0 {
		window = defaultStreamWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &streamHost{
		store:      s,
		serializer: ser,
		window:     uint32(window),
		streams:    xsync.NewMapOf[string, *hostedStream](),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// open registers the token of a stream request, opens the engine stream and starts the producer
func (h *streamHost) open(session transport.Session, req *common.Message) *common.Message {
	if req.Token == "" {
		return common.NewStreamResponse(req.MsgType, req.Token,
			store.NewError(store.RetCInvalidOperation, "stream request without token"))
	}
	if h.ctx.Err() != nil {
		return common.NewStreamResponse(req.MsgType, req.Token, db.ErrNotReady)
	}

	window := req.Window
	if window == 0 {
		window = h.window
	}

	ctx, cancel := context.WithCancel(h.ctx)
	hs := &hostedStream{
		token:   req.Token,
		session: session,
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
	}
	hs.credits.Store(int64(window))

	if _, loaded := h.streams.LoadOrStore(req.Token, hs); loaded {
		cancel()
		return common.NewStreamResponse(req.MsgType, req.Token,
			store.NewError(store.RetCInvalidOperation, "stream token already in use"))
	}

	stream, err := h.openStream(ctx, req.MsgType, req.Filter)
	if err != nil {
		h.streams.Delete(req.Token)
		cancel()
		if h.ctx.Err() != nil {
			err = db.ErrNotReady
		}
		return common.NewStreamResponse(req.MsgType, req.Token, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		stream.Close()
		h.streams.Delete(req.Token)
		cancel()
		return common.NewStreamResponse(req.MsgType, req.Token, db.ErrNotReady)
	}
	h.wg.Add(1)
	h.mu.Unlock()

	liveStreams.Add(1)
	go h.produce(ctx, hs, stream)

	Logger.Debugf("opened %s stream %s on connection %d with window %d", req.MsgType.StreamMode(), req.Token, session.ID(), window)
	return common.NewStreamResponse(req.MsgType, req.Token, nil)
}

func (h *streamHost) openStream(ctx context.Context, msgType common.MessageType, filter *db.FilterOptions) (*db.Stream, error) {
	switch msgType.StreamMode() {
	case db.StreamKeys:
		return h.store.KeysStream(ctx, filter)
	case db.StreamEntries:
		return h.store.EntriesStream(ctx, filter)
	default:
		return h.store.ValuesStream(ctx, filter)
	}
}

// produce pushes the entries of the stream while it holds credit and ends it with exactly one terminal event
func (h *streamHost) produce(ctx context.Context, hs *hostedStream, stream *db.Stream) {
	defer h.wg.Done()
	defer liveStreams.Add(-1)
	defer h.streams.Delete(hs.token)
	defer hs.cancel()
	defer stream.Close()

	// a dropped connection stops the stream
	stopOnDisconnect := make(chan struct{})
	defer close(stopOnDisconnect)
	go func() {
		select {
		case <-hs.session.Done():
			hs.cancel()
		case <-stopOnDisconnect:
		}
	}()

	err := h.pump(ctx, hs, stream)

	switch {
	case err == nil:
	case h.ctx.Err() != nil:
		err = db.ErrNotReady
	case errors.Is(err, transport.ErrConnection), errors.Is(err, transport.ErrClosed):
		Logger.Debugf("stream %s lost its connection: %v", hs.token, err)
		streamsFailed.Inc()
		return
	case errors.Is(err, context.Canceled):
		Logger.Debugf("stream %s canceled", hs.token)
	default:
		Logger.Warningf("stream %s failed: %v", hs.token, err)
		streamsFailed.Inc()
	}

	if perr := h.push(hs, common.NewStreamEnd(hs.token, store.FromError(err))); perr != nil {
		Logger.Debugf("failed to push end of stream %s: %v", hs.token, perr)
	}
}

// pump forwards entries until the stream is exhausted, failed or canceled
func (h *streamHost) pump(ctx context.Context, hs *hostedStream, stream *db.Stream) error {
	for {
		kv, ok := stream.Next()
		if !ok {
			if err := stream.Err(); err != nil {
				return err
			}
			return ctx.Err()
		}

		// wait for credit
		for hs.credits.Load() <= 0 {
			select {
			case <-hs.wake:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		hs.credits.Add(-1)

		if err := h.push(hs, common.NewStreamEvent(hs.token, kv)); err != nil {
			return err
		}
		streamEvents.Inc()
	}
}

func (h *streamHost) push(hs *hostedStream, msg *common.Message) error {
	data, err := h.serializer.Serialize(*msg)
	if err != nil {
		return store.WrapError(store.RetCSerializationFailure, err)
	}
	return hs.session.Push(uint64(common.MsgTDBValuesEvent), data)
}

// credit handles a DATABASE_STREAM_CREDIT notification
func (h *streamHost) credit(msg *common.Message) {
	hs, ok := h.streams.Load(msg.Token)
	if !ok {
		Logger.Debugf("credit for unknown stream %s", msg.Token)
		return
	}
	hs.grant(msg.Window)
}

// cancelStream handles a DATABASE_STREAM_CANCEL notification
func (h *streamHost) cancelStream(msg *common.Message) {
	hs, ok := h.streams.Load(msg.Token)
	if !ok {
		Logger.Debugf("cancel for unknown stream %s", msg.Token)
		return
	}
	Logger.Debugf("stream %s canceled by client", msg.Token)
	hs.cancel()
}

// live returns the number of running streams
func (h *streamHost) live() int {
	return h.streams.Size()
}

// close cancels all streams and waits for their producers
func (h *streamHost) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
}
