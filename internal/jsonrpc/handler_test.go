package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_DispatchesRegisteredMethod(t *testing.T) {
	h := NewHandler()
	h.Register("echo", func(ctx context.Context, params json.RawMessage) (any, *RPCError) {
		var p struct{ Text string }
		require.NoError(t, json.Unmarshal(params, &p))
		return p.Text, nil
	})

	params, _ := json.Marshal(map[string]string{"Text": "hi"})
	resp := h.Handle(context.Background(), Request{JSONRPC: "2.0", Method: "echo", Params: params, ID: "1"})

	assert.Nil(t, resp.Error)
	assert.Equal(t, "hi", resp.Result)
	assert.Equal(t, "1", resp.ID)
}

func TestHandler_UnknownMethod(t *testing.T) {
	h := NewHandler()
	resp := h.Handle(context.Background(), Request{JSONRPC: "2.0", Method: "nope", ID: "1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrMethodNotFound, resp.Error.Code)
}

func TestHandler_InvalidRequest(t *testing.T) {
	h := NewHandler()
	resp := h.Handle(context.Background(), Request{JSONRPC: "1.0", Method: "x", ID: "1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidRequest, resp.Error.Code)
}

func TestHandler_PropagatesHandlerError(t *testing.T) {
	h := NewHandler()
	h.Register("fail", func(ctx context.Context, params json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: ErrInvalidParams, Message: "bad params"}
	})
	resp := h.Handle(context.Background(), Request{JSONRPC: "2.0", Method: "fail", ID: "2"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidParams, resp.Error.Code)
}
