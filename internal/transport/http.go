package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"meshhub/internal/config"
	"meshhub/internal/hub"
	"meshhub/internal/jsonrpc"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

// HTTPTransport is the Transport Layer (§4.1): GET /session/open upgrades
// to a long-lived SSE push channel per agent session; POST /rpc carries
// the short request/response Tool-Surface operations over the same
// session. Heartbeats are sent on the push channel every heartbeatInterval
// to keep the agent's own defeat-idle-pruning picture honest even absent a
// Client Runtime keepalive ping.
type HTTPTransport struct {
	cfg    config.HubConfig
	server *hub.Server
	logger *utils.Logger
	http   *http.Server

	heartbeatInterval time.Duration
}

func NewHTTPTransport(cfg config.HubConfig, server *hub.Server, logger *utils.Logger) *HTTPTransport {
	return &HTTPTransport{cfg: cfg, server: server, logger: logger, heartbeatInterval: 12 * time.Second}
}

func (t *HTTPTransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/open", t.handleSessionOpen)
	mux.HandleFunc("/rpc", t.handleRPC)
	mux.HandleFunc("/health", t.handleHealth)

	addr := fmt.Sprintf("%s:%d", t.cfg.HTTP.Host, t.cfg.HTTP.Port)
	t.http = &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = t.http.Shutdown(shutdownCtx)
	}()

	return t.http.ListenAndServe()
}

// sessionClaims is the JWT payload minted on session open and presented
// again on every /rpc call, scoping a session to its application
// (§6: the applicationId/privacyKey tuple) without a raw shared-secret
// string comparison on every call.
type sessionClaims struct {
	jwt.RegisteredClaims
	AgentId       types.AgentId   `json:"agentId"`
	ApplicationId string          `json:"applicationId"`
	SessionId     types.SessionId `json:"sessionId"`
}

func (t *HTTPTransport) signSession(agentId types.AgentId, applicationId string, sessionId types.SessionId) (string, error) {
	claims := sessionClaims{
		AgentId:       agentId,
		ApplicationId: applicationId,
		SessionId:     sessionId,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(t.cfg.SessionSigningKey))
}

func (t *HTTPTransport) parseSession(r *http.Request) (*sessionClaims, error) {
	authz := r.Header.Get("Authorization")
	tokStr := strings.TrimPrefix(authz, "Bearer ")
	if tokStr == "" {
		tokStr = r.URL.Query().Get("sessionToken")
	}
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokStr, claims, func(*jwt.Token) (any, error) {
		return []byte(t.cfg.SessionSigningKey), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// handleSessionOpen performs the agent identity handshake of §6 and
// upgrades to the durable SSE push channel of §4.1. It reads the agentId,
// agentDescription, capabilities and applicationId query parameters; no
// waitForAgents hint or privacy key is read. A reconnect is a fresh open
// and presents no earlier token.
func (t *HTTPTransport) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentId := types.AgentId(q.Get("agentId"))
	if agentId == "" {
		http.Error(w, "agentId required", http.StatusBadRequest)
		return
	}
	description := q.Get("agentDescription")
	var capabilities []string
	if caps := q.Get("capabilities"); caps != "" {
		capabilities = strings.Split(caps, ",")
	}
	applicationId := q.Get("applicationId")

	sessionId, _, downstream := t.server.OpenSession(agentId, description, capabilities)

	token, err := t.signSession(agentId, applicationId, sessionId)
	if err != nil {
		t.logger.Errorf("failed to sign session token: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writeSSEFrame(w, types.Frame{Kind: types.FrameKindSessionOpened, Payload: map[string]string{
		"sessionId":    string(sessionId),
		"sessionToken": token,
	}})
	flusher.Flush()

	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			t.server.Registry().MarkDisconnected(agentId)
			return
		case <-ticker.C:
			writeSSEFrame(w, types.Frame{Kind: types.FrameKindHeartbeat})
			flusher.Flush()
		case frame, ok := <-downstream:
			if !ok {
				// displaced by a newer session open for this agentId
				return
			}
			writeSSEFrame(w, frame)
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, frame types.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Kind, data)
}

// handleRPC carries the Tool Surface's short request/response operations
// (§4.6). The caller's identity comes from its session token, never from
// a client-supplied agentId field, so a session cannot act as another
// agent.
func (t *HTTPTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, err := t.parseSession(r)
	if err != nil {
		writeJSON(w, jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "invalid or missing session token"}})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.RPCError{Code: jsonrpc.ErrParseError, Message: "Parse error"}})
		return
	}

	ctx := hub.WithAgentId(r.Context(), claims.AgentId)
	resp := t.server.Handler().Handle(ctx, req)
	writeJSON(w, resp)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}
