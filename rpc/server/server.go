package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/lib/store/lstore"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/monitor"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
)

var Logger = logger.GetLogger("rpc/server")

// RPCServer hosts a storage engine for other processes.
// It owns the lifecycle of the engine and answers every message of the op catalogue.
type RPCServer struct {
	config     common.ServerConfig
	engine     db.Engine
	store      store.IStore
	adapter    IRPCServerAdapter
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	mu         sync.Mutex
	started    bool
	registered []common.MessageType
	streams    *streamHost
	monitor    *monitor.Monitor
}

// NewRPCServer creates a new RPC server
// It takes a config, the engine to host, a transport and a serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		pebble.New(config.DataDir, db.EngineOptions{}),
//		unix.NewUnixDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	engine db.Engine,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Debugf(config.String())

	return &RPCServer{
		config:     config,
		engine:     engine,
		store:      lstore.NewLocalStore(engine),
		adapter:    NewIStoreServerAdapter(),
		transport:  transport,
		serializer: serializer,
	}
}

// Start starts the engine and registers a handler for every message type.
// A failed registration (e.g. a tag that already has a handler) stops the engine again and is returned.
func (s *RPCServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := s.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	s.streams = newStreamHost(s.store, s.serializer, s.config.StreamWindow)

	for _, msgType := range common.RequestTypes {
		if err := s.register(msgType, s.handleRequest(msgType)); err != nil {
			s.rollbackLocked()
			return err
		}
	}
	for _, msgType := range common.NotificationTypes {
		if err := s.register(msgType, s.handleNotification(msgType)); err != nil {
			s.rollbackLocked()
			return err
		}
	}

	if s.config.MetricsEndpoint != "" {
		s.monitor = monitor.NewMonitor(s.config.MetricsEndpoint, s.health, s.config.LogLevel == "debug")
		if err := s.monitor.Start(); err != nil {
			s.rollbackLocked()
			return fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	s.started = true
	Logger.Infof("RPC server started with %s engine", s.engine.GetInfo().DbType)
	return nil
}

// Serve starts the RPC server and blocks while the transport is listening
func (s *RPCServer) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Stop unregisters all handlers, ends the live streams, stops the engine and closes the transport.
// Stopping a stopped server is a no-op.
func (s *RPCServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	s.unregisterLocked()
	s.streams.close()

	var errs []error
	if s.monitor != nil {
		if err := s.monitor.Stop(5 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop monitor: %w", err))
		}
		s.monitor = nil
	}
	if err := s.engine.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop engine: %w", err))
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
	}

	Logger.Infof("RPC server stopped")
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// handleRequest returns the transport handler of one request type
func (s *RPCServer) handleRequest(msgType common.MessageType) transport.ServerHandleFunc {
	return func(session transport.Session, req []byte) []byte {
		start := time.Now()

		var msg common.Message
		var resp *common.Message

		switch err := s.serializer.Deserialize(req, &msg); {
		case err != nil:
			resp = common.NewErrorResponse(store.WrapError(store.RetCSerializationFailure,
				fmt.Errorf("failed to deserialize request: %w", err)))
		case msg.MsgType != msgType:
			resp = common.NewErrorResponse(store.NewError(store.RetCInvalidOperation,
				fmt.Sprintf("message of type %s sent with tag %s", msg.MsgType, msgType)))
		case msgType.IsStreamStart():
			resp = s.streams.open(session, &msg)
		default:
			ctx, cancel := s.requestContext()
			resp = s.adapter.Handle(ctx, &msg, s.store)
			cancel()
		}

		observeRequest(msgType, resp, start)
		return s.encode(resp)
	}
}

// handleNotification returns the transport handler of one notification type
func (s *RPCServer) handleNotification(msgType common.MessageType) transport.ServerHandleFunc {
	return func(_ transport.Session, req []byte) []byte {
		var msg common.Message
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			Logger.Warningf("dropping %s notification: %v", msgType, err)
			return nil
		}

		switch msgType {
		case common.MsgTDBStreamCredit:
			s.streams.credit(&msg)
		case common.MsgTDBStreamCancel:
			s.streams.cancelStream(&msg)
		}
		return nil
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) register(msgType common.MessageType, handler transport.ServerHandleFunc) error {
	if err := s.transport.RegisterHandler(uint64(msgType), handler); err != nil {
		return fmt.Errorf("failed to register handler for %s: %w", msgType, err)
	}
	s.registered = append(s.registered, msgType)
	return nil
}

// unregisterLocked removes all handlers registered by this server
func (s *RPCServer) unregisterLocked() {
	for _, msgType := range s.registered {
		s.transport.UnregisterHandler(uint64(msgType))
	}
	s.registered = nil
}

// rollbackLocked undoes a partial Start
func (s *RPCServer) rollbackLocked() {
	s.unregisterLocked()
	if s.streams != nil {
		s.streams.close()
	}
	if err := s.engine.Stop(); err != nil {
		Logger.Errorf("failed to stop engine: %v", err)
	}
}

// requestContext bounds the store call of a single request by the configured timeout
func (s *RPCServer) requestContext() (context.Context, context.CancelFunc) {
	if s.config.TimeoutSecond > 0 {
		return context.WithTimeout(context.Background(), time.Duration(s.config.TimeoutSecond)*time.Second)
	}
	return context.WithCancel(context.Background())
}

func (s *RPCServer) encode(resp *common.Message) []byte {
	data, err := s.serializer.Serialize(*resp)
	if err == nil {
		return data
	}

	Logger.Errorf("failed to serialize %s response: %v", resp.MsgType, err)
	data, err = s.serializer.Serialize(*common.NewErrorResponse(
		store.WrapError(store.RetCSerializationFailure, err)))
	if err != nil {
		Logger.Errorf("failed to serialize error response: %v", err)
		return nil
	}
	return data
}

// health reports whether the engine accepts requests
func (s *RPCServer) health() error {
	_, _, err := s.engine.Get([]byte{0})
	return err
}

// LiveStreams returns the number of streams currently served
func (s *RPCServer) LiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streams == nil {
		return 0
	}
	return s.streams.live()
}
