package client

import (
	"context"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewRPCStore creates a new RPC store, the remote proxy of a store hosted by an RPC server.
// The function takes a config, a transport and a serializer as parameters and connects the transport.
// The returned store implements store.IStore, Close releases the connection.
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCStore, error) {

	s := &RPCStore{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		streams: xsync.NewMapOf[string, *remoteStream](),
	}

	// Stream events arrive as pushes
	transport.SetPushHandler(s.handlePush)
	transport.SetDisconnectHandler(s.handleDisconnect)

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, fromTransportError(err)
	}

	return s, nil
}

// RPCStore forwards all store.IStore operations to an RPC server
type RPCStore struct {
	rpcClientAdapter
	streams *xsync.MapOf[string, *remoteStream]
}

var _ store.IStore = (*RPCStore)(nil)

// Close closes the transport. Pending requests and live streams fail with TransportClosed.
func (i *RPCStore) Close() error {
	err := i.transport.Close()
	i.failStreams(store.NewError(store.RetCTransportClosed, "store closed"))
	return err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *RPCStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := invokeRPCRequest(ctx, common.NewGetRequest(key), i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, nil
	}
	// serializers may drop an empty value
	if resp.Value == nil {
		resp.Value = []byte{}
	}
	return resp.Value, true, nil
}

func (i *RPCStore) Has(ctx context.Context, key []byte) (bool, error) {
	resp, err := invokeRPCRequest(ctx, common.NewHasRequest(key), i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *RPCStore) Put(ctx context.Context, key, value []byte) error {
	_, err := invokeRPCRequest(ctx, common.NewPutRequest(key, value), i.transport, i.serializer)
	return err
}

func (i *RPCStore) Delete(ctx context.Context, key []byte) error {
	_, err := invokeRPCRequest(ctx, common.NewDeleteRequest(key), i.transport, i.serializer)
	return err
}

func (i *RPCStore) BatchPut(ctx context.Context, items []db.KeyValue) ([]error, error) {
	resp, err := invokeRPCRequest(ctx, common.NewBatchPutRequest(items), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	results := resp.ItemErrors()
	if len(results) != len(items) {
		return nil, store.NewError(store.RetCInternalError, "batch put response does not match the request")
	}
	return results, nil
}

func (i *RPCStore) BatchDelete(ctx context.Context, keys [][]byte) error {
	_, err := invokeRPCRequest(ctx, common.NewBatchDeleteRequest(keys), i.transport, i.serializer)
	return err
}

func (i *RPCStore) Keys(ctx context.Context, opts *db.FilterOptions) ([][]byte, error) {
	return i.list(ctx, common.MsgTDBKeys, opts)
}

func (i *RPCStore) Values(ctx context.Context, opts *db.FilterOptions) ([][]byte, error) {
	return i.list(ctx, common.MsgTDBValues, opts)
}

func (i *RPCStore) Entries(ctx context.Context, opts *db.FilterOptions) ([]db.KeyValue, error) {
	resp, err := invokeRPCRequest(ctx, common.NewRangeRequest(common.MsgTDBEntries, opts), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	if resp.Entries == nil {
		return []db.KeyValue{}, nil
	}
	return resp.Entries, nil
}

func (i *RPCStore) Search(ctx context.Context, opts *db.FilterOptions) ([][]byte, error) {
	return i.list(ctx, common.MsgTDBSearch, opts)
}

func (i *RPCStore) ValuesStream(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error) {
	return i.openStream(ctx, common.MsgTDBValuesStream, opts)
}

func (i *RPCStore) KeysStream(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error) {
	return i.openStream(ctx, common.MsgTDBKeysStream, opts)
}

func (i *RPCStore) EntriesStream(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error) {
	return i.openStream(ctx, common.MsgTDBEntriesStream, opts)
}

func (i *RPCStore) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	resp, err := invokeRPCRequest(ctx, common.NewInfoRequest(), i.transport, i.serializer)
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	return resp.DatabaseInfo()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// list sends a range request answered with a list
func (i *RPCStore) list(ctx context.Context, msgType common.MessageType, opts *db.FilterOptions) ([][]byte, error) {
	resp, err := invokeRPCRequest(ctx, common.NewRangeRequest(msgType, opts), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	if resp.List == nil {
		return [][]byte{}, nil
	}
	return resp.List, nil
}
