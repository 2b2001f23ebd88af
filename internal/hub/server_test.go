package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshhub/internal/config"
	"meshhub/internal/jsonrpc"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultHubConfig()
	cfg.MaxWaitMs = 2000
	cfg.DedupeWindow = time.Minute
	s := NewServer(cfg, utils.NewLogger("error"))
	t.Cleanup(s.Stop)
	return s
}

// call drives the Hub purely through its jsonrpc.Handler, grounded on the
// teacher's in-process LocalCaller — exercising the same dispatch path the
// HTTP transport uses without opening a socket.
func call(t *testing.T, s *Server, agentId types.AgentId, method string, params any) (json.RawMessage, *jsonrpc.RPCError) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	ctx := WithAgentId(t.Context(), agentId)
	resp := s.Handler().Handle(ctx, jsonrpc.Request{JSONRPC: "2.0", Method: method, Params: raw, ID: "1"})
	if resp.Error != nil {
		return nil, resp.Error
	}
	out, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	return out, nil
}

func TestServer_EndToEnd_MentionDeliveryAndWait(t *testing.T) {
	s := newTestServer(t)
	s.OpenSession("alice", "", nil)
	s.OpenSession("bob", "", nil)

	raw, rpcErr := call(t, s, "alice", "createThread", map[string]any{"name": "t", "participants": []string{"bob"}})
	require.Nil(t, rpcErr)
	var created struct {
		ThreadId types.ThreadId `json:"threadId"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))

	done := make(chan []types.MentionDelivery, 1)
	go func() {
		raw, rpcErr := call(t, s, "bob", "waitForMentions", map[string]any{"timeoutMs": 1000})
		require.Nil(t, rpcErr)
		var batch []types.MentionDelivery
		require.NoError(t, json.Unmarshal(raw, &batch))
		done <- batch
	}()
	time.Sleep(20 * time.Millisecond) // let bob's wait park

	_, rpcErr = call(t, s, "alice", "sendMessage", map[string]any{"threadId": created.ThreadId, "body": "@bob ping"})
	require.Nil(t, rpcErr)

	select {
	case batch := <-done:
		require.Len(t, batch, 1)
		assert.Equal(t, "@bob ping", batch[0].Body)
	case <-time.After(2 * time.Second):
		t.Fatal("expected bob's waitForMentions to return the mention")
	}
}

func TestServer_WaitForMentions_TimesOutEmpty(t *testing.T) {
	s := newTestServer(t)
	s.OpenSession("alice", "", nil)

	raw, rpcErr := call(t, s, "alice", "waitForMentions", map[string]any{"timeoutMs": 30})
	require.Nil(t, rpcErr)
	var batch []types.MentionDelivery
	require.NoError(t, json.Unmarshal(raw, &batch))
	assert.Empty(t, batch)
}

func TestServer_SendMessage_DedupesRetriedCorrelationId(t *testing.T) {
	s := newTestServer(t)
	s.OpenSession("alice", "", nil)
	raw, rpcErr := call(t, s, "alice", "createThread", map[string]any{"name": "t"})
	require.Nil(t, rpcErr)
	var created struct {
		ThreadId types.ThreadId `json:"threadId"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))

	params := map[string]any{"threadId": created.ThreadId, "body": "hello", "correlationId": "corr-1"}
	_, rpcErr = call(t, s, "alice", "sendMessage", params)
	require.Nil(t, rpcErr)

	_, rpcErr = call(t, s, "alice", "sendMessage", params)
	require.NotNil(t, rpcErr, "retried correlationId should be rejected as a duplicate")
}

func TestServer_ListAgents_TouchesCallerActivity(t *testing.T) {
	s := newTestServer(t)
	s.OpenSession("alice", "", nil)

	_, rpcErr := call(t, s, "alice", "listAgents", map[string]any{"includeDetails": true})
	require.Nil(t, rpcErr)

	summaries := s.Registry().ListAgents(true)
	require.Len(t, summaries, 1)
	assert.WithinDuration(t, time.Now().UTC(), summaries[0].LastActivityAt, time.Second)
}

func TestServer_CloseSession_CancelsParkedWait(t *testing.T) {
	s := newTestServer(t)
	s.OpenSession("alice", "", nil)

	done := make(chan *jsonrpc.RPCError, 1)
	go func() {
		_, rpcErr := call(t, s, "alice", "waitForMentions", map[string]any{"timeoutMs": 2000})
		done <- rpcErr
	}()
	time.Sleep(20 * time.Millisecond)

	s.CloseSession("alice")

	select {
	case rpcErr := <-done:
		assert.Nil(t, rpcErr)
	case <-time.After(time.Second):
		t.Fatal("expected CloseSession to unblock the parked wait")
	}
}

func TestServer_WaitForMentions_UnknownAgentRejected(t *testing.T) {
	s := newTestServer(t)
	_, rpcErr := call(t, s, "ghost", "waitForMentions", map[string]any{"timeoutMs": 10})
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.ErrUnknownAgent, rpcErr.Code)
}

func TestServer_Status_ReportsCounts(t *testing.T) {
	s := newTestServer(t)
	s.OpenSession("alice", "", nil)
	_, rpcErr := call(t, s, "alice", "createThread", map[string]any{"name": "t"})
	require.Nil(t, rpcErr)

	status := s.Status()
	assert.Equal(t, 1, status["sessionCount"])
	assert.Equal(t, 1, status["threadCount"])
}
