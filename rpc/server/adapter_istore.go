package server

import (
	"context"
	"fmt"

	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

// NewIStoreServerAdapter creates the adapter translating request messages into store.IStore calls.
// Stream messages are not handled here, they need the session of the connection.
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, s store.IStore) *common.Message {
	// Check for nil store
	if s == nil {
		return common.NewErrorResponse(store.NewError(store.RetCInternalError, "handler: store is nil"))
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTDBGet:
		val, ok, err := s.Get(ctx, req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTDBHas:
		ok, err := s.Has(ctx, req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTDBPut:
		err := s.Put(ctx, req.Key, req.Value)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTDBDelete:
		err := s.Delete(ctx, req.Key)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTDBBatchPut:
		results, err := s.BatchPut(ctx, req.Entries)
		return common.NewBatchPutResponse(results, err)
	case common.MsgTDBBatchDelete:
		err := s.BatchDelete(ctx, req.List)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTDBKeys:
		keys, err := s.Keys(ctx, req.Filter)
		return common.NewListResponse(req.MsgType, keys, err)
	case common.MsgTDBValues:
		values, err := s.Values(ctx, req.Filter)
		return common.NewListResponse(req.MsgType, values, err)
	case common.MsgTDBSearch:
		values, err := s.Search(ctx, req.Filter)
		return common.NewListResponse(req.MsgType, values, err)
	case common.MsgTDBEntries:
		entries, err := s.Entries(ctx, req.Filter)
		return common.NewEntriesResponse(entries, err)
	case common.MsgTDBInfo:
		info, err := s.GetDBInfo(ctx)
		return common.NewInfoResponse(info, err)
	default:
		return common.NewErrorResponse(store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		))
	}
}
