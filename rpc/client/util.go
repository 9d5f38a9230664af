package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
	"github.com/mpetrunic/ChainGuardian/rpc/serializer"
	"github.com/mpetrunic/ChainGuardian/rpc/transport"
)

var (
	Logger = logger.GetLogger("rpc/client")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used by the RPC client to send requests
// It takes a context, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs. All errors are *store.Error values.
// This method also checks if the response is an error response and if the type of the response is the expected type
func invokeRPCRequest(ctx context.Context, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}

	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, store.WrapError(store.RetCSerializationFailure, err)
	}

	// Send the request, the message type is the tag of the frame
	respBytes, err := transport.Send(ctx, uint64(req.MsgType), reqBytes)
	if err != nil {
		return nil, fromTransportError(err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.WrapError(store.RetCSerializationFailure, fmt.Errorf("failed to deserialize response: %w", err))
	}

	// Check if the response is an error response
	if err := resp.Error(); err != nil {
		return nil, err
	}
	if resp.MsgType == common.MsgTError {
		return nil, store.NewError(store.RetCInternalError, "error response without message")
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	return resp, nil
}

// fromTransportError maps transport failures into the store error taxonomy
func fromTransportError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrClosed), errors.Is(err, transport.ErrConnection):
		return store.WrapError(store.RetCTransportClosed, err)
	case errors.Is(err, transport.ErrNoHandler):
		return store.WrapError(store.RetCInvalidOperation, err)
	default:
		return store.FromError(err)
	}
}
