package hub

import (
	"context"
	"encoding/json"
	"time"

	"meshhub/internal/config"
	"meshhub/internal/dedupe"
	"meshhub/internal/jsonrpc"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

// Server is the Hub: one coordinating process value owning the registry,
// thread store, mention router, and wait coordinator, with an explicit
// start → serve → stop lifecycle (§9 global mutable state).
type Server struct {
	cfg       config.HubConfig
	logger    *utils.Logger
	registry  *Registry
	threads   *ThreadStore
	router    *MentionRouter
	wait      *WaitCoordinator
	dedupe    *dedupe.Cache
	handler   *jsonrpc.Handler
	startTime time.Time
}

func NewServer(cfg config.HubConfig, logger *utils.Logger) *Server {
	registry := NewRegistry(logger, cfg.ReconnectGraceWindow, cfg.MentionBufferCap)
	router := NewMentionRouter(registry)
	threads := NewThreadStore(router, registry)
	wait := NewWaitCoordinator(registry, time.Duration(cfg.MaxWaitMs)*time.Millisecond)
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		threads:   threads,
		router:    router,
		wait:      wait,
		dedupe:    dedupe.New(cfg.DedupeWindow, 10000),
		handler:   jsonrpc.NewHandler(),
		startTime: time.Now().UTC(),
	}
	s.registerHandlers()
	return s
}

// Start begins the background eviction sweep. It is separate from
// NewServer so tests can construct a Server without a live ticker.
func (s *Server) Start() {
	s.registry.StartEvictionSweep(time.Second)
}

func (s *Server) Stop() {
	s.registry.Stop()
	s.dedupe.Close()
}

func (s *Server) Handler() *jsonrpc.Handler { return s.handler }
func (s *Server) Registry() *Registry       { return s.registry }

// Status reports coarse liveness counters for admin tooling (cmd/agentctl
// status, the internal/tui monitor).
func (s *Server) Status() map[string]any {
	return map[string]any{
		"uptimeSeconds": int(time.Since(s.startTime).Seconds()),
		"sessionCount":  s.registry.Count(),
		"threadCount":   s.threads.Count(),
	}
}

// OpenSession registers agentId and returns its session id, mention
// buffer, and downstream push channel, per §4.2.
func (s *Server) OpenSession(agentId types.AgentId, description string, capabilities []string) (types.SessionId, *MentionBuffer, chan types.Frame) {
	return s.registry.OpenSession(agentId, description, capabilities)
}

// CloseSession tears down agentId's session, cancelling any parked wait.
func (s *Server) CloseSession(agentId types.AgentId) {
	s.wait.Cancel(agentId)
	s.registry.CloseSession(agentId)
}

func (s *Server) registerHandlers() {
	s.handler.Register("listAgents", s.handleListAgents)
	s.handler.Register("createThread", s.handleCreateThread)
	s.handler.Register("addParticipant", s.handleAddParticipant)
	s.handler.Register("removeParticipant", s.handleRemoveParticipant)
	s.handler.Register("sendMessage", s.handleSendMessage)
	s.handler.Register("closeThread", s.handleCloseThread)
	s.handler.Register("waitForMentions", s.handleWaitForMentions)
}

type listAgentsParams struct {
	IncludeDetails bool `json:"includeDetails"`
}

func (s *Server) handleListAgents(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p listAgentsParams
	_ = json.Unmarshal(raw, &p)

	if agentId, ok := agentIdFromContext(ctx); ok {
		// listAgents doubles as the keepalive ping (§4.8); it counts as
		// activity against the caller's own eviction timer (§9 Open
		// Question, resolved YES).
		s.registry.Touch(agentId)
	}
	return s.registry.ListAgents(p.IncludeDetails), nil
}

type createThreadParams struct {
	Name          string          `json:"name"`
	Participants  []types.AgentId `json:"participants"`
	CorrelationId string          `json:"correlationId"`
}

func (s *Server) handleCreateThread(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p createThreadParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: err.Error()}
	}
	creator, ok := agentIdFromContext(ctx)
	if !ok {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "no session"}
	}
	if p.CorrelationId != "" && s.dedupe.CheckAndMark(p.CorrelationId) {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: "duplicate retry ignored"}
	}
	threadId, err := s.threads.CreateThread(creator, p.Name, p.Participants)
	if err != nil {
		return nil, jsonrpc.FromHubError(err)
	}
	return map[string]types.ThreadId{"threadId": threadId}, nil
}

type participantParams struct {
	ThreadId types.ThreadId `json:"threadId"`
	AgentId  types.AgentId  `json:"agentId"`
}

func (s *Server) handleAddParticipant(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p participantParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: err.Error()}
	}
	requester, ok := agentIdFromContext(ctx)
	if !ok {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "no session"}
	}
	if err := s.threads.AddParticipant(p.ThreadId, requester, p.AgentId); err != nil {
		return nil, jsonrpc.FromHubError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleRemoveParticipant(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p participantParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: err.Error()}
	}
	requester, ok := agentIdFromContext(ctx)
	if !ok {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "no session"}
	}
	if err := s.threads.RemoveParticipant(p.ThreadId, requester, p.AgentId); err != nil {
		return nil, jsonrpc.FromHubError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type sendMessageParams struct {
	ThreadId      types.ThreadId `json:"threadId"`
	Body          string         `json:"body"`
	CorrelationId string         `json:"correlationId"`
}

func (s *Server) handleSendMessage(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p sendMessageParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: err.Error()}
	}
	sender, ok := agentIdFromContext(ctx)
	if !ok {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "no session"}
	}
	if p.CorrelationId != "" && s.dedupe.CheckAndMark(p.CorrelationId) {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: "duplicate retry ignored"}
	}
	msgId, err := s.threads.SendMessage(p.ThreadId, sender, p.Body)
	if err != nil {
		return nil, jsonrpc.FromHubError(err)
	}
	return map[string]types.MessageId{"messageId": msgId}, nil
}

type closeThreadParams struct {
	ThreadId types.ThreadId `json:"threadId"`
}

func (s *Server) handleCloseThread(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p closeThreadParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: err.Error()}
	}
	requester, ok := agentIdFromContext(ctx)
	if !ok {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "no session"}
	}
	if err := s.threads.CloseThread(p.ThreadId, requester); err != nil {
		return nil, jsonrpc.FromHubError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type waitForMentionsParams struct {
	TimeoutMs int `json:"timeoutMs"`
}

func (s *Server) handleWaitForMentions(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.RPCError) {
	var p waitForMentionsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrInvalidParams, Message: err.Error()}
	}
	agentId, ok := agentIdFromContext(ctx)
	if !ok {
		return nil, &jsonrpc.RPCError{Code: jsonrpc.ErrUnknownAgent, Message: "no session"}
	}
	batch, err := s.wait.Wait(agentId, time.Duration(p.TimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, jsonrpc.FromHubError(err)
	}
	if batch == nil {
		batch = []types.MentionDelivery{}
	}
	return batch, nil
}

type agentIdKey struct{}

// WithAgentId attaches the calling agent's identity to ctx, resolved once
// per request by the transport layer from the session.
func WithAgentId(ctx context.Context, agentId types.AgentId) context.Context {
	return context.WithValue(ctx, agentIdKey{}, agentId)
}

func agentIdFromContext(ctx context.Context) (types.AgentId, bool) {
	v, ok := ctx.Value(agentIdKey{}).(types.AgentId)
	return v, ok
}
