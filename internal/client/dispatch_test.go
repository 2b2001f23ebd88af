package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshhub/internal/config"
	"meshhub/internal/hub"
	"meshhub/internal/transport"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

// recordingBrain captures every batch handed to Decide and replies to each
// mention on its own thread, so the scenario below can assert both that the
// Dispatch Loop actually woke the brain (the cost gate in CORE 4.9) and
// that the resulting action round-trips back through the Hub.
type recordingBrain struct {
	mu      sync.Mutex
	batches [][]types.MentionDelivery
}

func (b *recordingBrain) Decide(batch []types.MentionDelivery) ([]Action, error) {
	b.mu.Lock()
	b.batches = append(b.batches, batch)
	b.mu.Unlock()

	actions := make([]Action, 0, len(batch))
	for _, d := range batch {
		actions = append(actions, Action{Op: "sendMessage", ThreadId: d.ThreadId, Body: "ack"})
	}
	return actions, nil
}

func (b *recordingBrain) seenBatches() [][]types.MentionDelivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]types.MentionDelivery, len(b.batches))
	copy(out, b.batches)
	return out
}

// newLiveHub stands up a real hub.Server behind the real HTTPTransport
// (not a stand-in), listening on a loopback port reserved just ahead of
// Start, so this test exercises the exact wire format the client parses
// waitForMentions results from end to end.
func newLiveHub(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.DefaultHubConfig()
	cfg.SessionSigningKey = "test-signing-key"
	cfg.MaxWaitMs = 5000
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	server := hub.NewServer(cfg, utils.NewLogger("error"))
	server.Start()
	t.Cleanup(server.Stop)

	tr := transport.NewHTTPTransport(cfg, server, utils.NewLogger("error"))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tr.Start(ctx)

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "hub did not come up")
	return url
}

func TestDispatch_EndToEnd_WakesBrainOnRealMentionBatch(t *testing.T) {
	hubURL := newLiveHub(t)

	aliceCfg := config.RuntimeConfig{AgentId: "alice", HubURL: hubURL, ReconnectMaxBackoffMs: 1000, WaitTimeoutMs: 500}
	bobCfg := config.RuntimeConfig{AgentId: "bob", HubURL: hubURL, ReconnectMaxBackoffMs: 1000, WaitTimeoutMs: 500}

	aliceConn := NewConnection(aliceCfg, utils.NewLogger("error"))
	bobConn := NewConnection(bobCfg, utils.NewLogger("error"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go aliceConn.Run(ctx)
	go bobConn.Run(ctx)
	require.Eventually(t, aliceConn.Connected, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, bobConn.Connected, 2*time.Second, 10*time.Millisecond)

	brain := &recordingBrain{}
	dispatch := NewDispatch(bobCfg, bobConn, brain, utils.NewLogger("error"))
	go dispatch.Run(ctx)

	raw, err := aliceConn.RPC(ctx, "createThread", map[string]any{"name": "t", "participants": []string{"bob"}})
	require.NoError(t, err)
	var created struct {
		ThreadId types.ThreadId `json:"threadId"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))

	_, err = aliceConn.RPC(ctx, "sendMessage", map[string]any{"threadId": created.ThreadId, "body": "@bob ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(brain.seenBatches()) > 0
	}, 3*time.Second, 20*time.Millisecond, "Dispatch Loop never invoked the brain on a real waitForMentions batch")

	batches := brain.seenBatches()
	require.Len(t, batches[0], 1)
	assert.Equal(t, "@bob ping", batches[0][0].Body)
}
