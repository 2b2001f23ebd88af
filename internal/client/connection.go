package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"meshhub/internal/config"
	"meshhub/internal/huberr"
	"meshhub/internal/jsonrpc"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

// Connection is the Client Runtime's Connection Manager (§4.7): it
// establishes the SSE session, reconnects on failure with exponential
// backoff while preserving AgentId, and exposes RPC for the Tool
// Surface's short request/response operations. The session identifier
// returned by the Hub is treated as opaque and MAY change across
// reconnects — callers never depend on it for routing.
type Connection struct {
	cfg    config.RuntimeConfig
	logger *utils.Logger
	client *http.Client

	mu           sync.RWMutex
	sessionToken string
	connected    bool
}

func NewConnection(cfg config.RuntimeConfig, logger *utils.Logger) *Connection {
	return &Connection{cfg: cfg, logger: logger, client: &http.Client{}}
}

// Run opens the session and pumps the SSE push channel until ctx is
// cancelled, reconnecting with backoff (1s, 2s, 4s, ... capped at
// ReconnectMaxBackoffMs) on every transport failure.
func (c *Connection) Run(ctx context.Context) {
	backoff := time.Second
	maxBackoff := time.Duration(c.cfg.ReconnectMaxBackoffMs) * time.Millisecond

	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.openAndPump(ctx); err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			c.logger.Warnf("session dropped, reconnecting in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

func (c *Connection) openAndPump(ctx context.Context) error {
	q := url.Values{}
	q.Set("agentId", c.cfg.AgentId)
	q.Set("agentDescription", "meshhub client runtime")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.HubURL, "/")+"/session/open?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return huberr.New(huberr.TransportError, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return huberr.New(huberr.TransportError, fmt.Sprintf("session/open returned %d", resp.StatusCode))
	}

	return c.pump(ctx, resp.Body)
}

// pump parses self-describing SSE frames (grounded on the same
// event:/data: scanning loop used by every SSE client in this stack),
// extracting the session token from the first sessionOpened frame and
// otherwise just observing heartbeats — mentionBatch delivery here is
// served synchronously over RPC's waitForMentions instead.
func (c *Connection) pump(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	var eventType string
	var dataLines []string

	flush := func() error {
		if eventType == "" {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		eventType, dataLines = "", nil

		var frame types.Frame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return nil // tolerate malformed/unknown frames, not a protocol break on the client side
		}
		if frame.Kind == "" {
			return huberr.New(huberr.ProtocolError, "frame lacks kind")
		}
		switch frame.Kind {
		case types.FrameKindSessionOpened:
			payload, _ := frame.Payload.(map[string]any)
			token, _ := payload["sessionToken"].(string)
			c.mu.Lock()
			c.sessionToken = token
			c.connected = true
			c.mu.Unlock()
		case types.FrameKindHeartbeat:
			// liveness only
		}
		return nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return huberr.New(huberr.TransportError, err.Error())
	}
	return huberr.New(huberr.TransportError, "push channel closed")
}

// Connected reports whether the downstream push channel is currently up.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// RPC invokes one Tool-Surface operation over POST /rpc, returning a
// TransportError (retryable) on transport-level failure and the Hub's own
// huberr.Kind (via jsonrpc's RPCError.Data) on a validation failure.
func (c *Connection) RPC(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.RLock()
	token := c.sessionToken
	c.mu.RUnlock()
	if token == "" {
		return nil, huberr.New(huberr.TransportError, "no active session")
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	reqBody, err := json.Marshal(jsonrpc.Request{JSONRPC: "2.0", Method: method, Params: paramsJSON, ID: types.NewCorrelationId()})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.HubURL, "/")+"/rpc", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, huberr.New(huberr.TransportError, err.Error())
	}
	defer httpResp.Body.Close()

	var resp jsonrpc.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, huberr.New(huberr.TransportError, err.Error())
	}
	if resp.Error != nil {
		if kind, ok := resp.Error.Data.(string); ok {
			return nil, huberr.New(huberr.Kind(kind), resp.Error.Message)
		}
		return nil, huberr.New(huberr.TransportError, resp.Error.Message)
	}
	return json.Marshal(resp.Result)
}
