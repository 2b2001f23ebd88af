package hub

import (
	"sync"
	"time"

	"meshhub/internal/huberr"
	"meshhub/internal/types"
	"meshhub/internal/utils"
)

// sessionEntry is the registry's internal record for one agent. A nil
// Downstream with a non-zero EvictAfter means the session has closed but
// is still inside its reconnect grace window.
type sessionEntry struct {
	agent          types.Agent
	sessionId      types.SessionId
	lastActivityAt time.Time
	downstream     chan types.Frame
	departed       bool
	evictAfter     time.Time

	mentionBuf *MentionBuffer
}

// Registry is the Hub's map of live sessions to agents (§4.2). At most one
// live session exists per AgentId; a second openSession with the same id
// displaces the first. Reads (listAgents) take a snapshot under RLock, so
// concurrent readers do not block one another; writers wait for it.
type Registry struct {
	mu          sync.RWMutex
	byAgent     map[types.AgentId]*sessionEntry
	logger      *utils.Logger
	graceWindow time.Duration
	bufferCap   int
	stopCh      chan struct{}
}

func NewRegistry(logger *utils.Logger, graceWindow time.Duration, bufferCap int) *Registry {
	return &Registry{
		byAgent:     make(map[types.AgentId]*sessionEntry),
		logger:      logger,
		graceWindow: graceWindow,
		bufferCap:   bufferCap,
		stopCh:      make(chan struct{}),
	}
}

// OpenSession establishes a session for agentId, displacing any existing
// live session for the same id (§4.2). If the agent reconnects within its
// predecessor's grace window, the preserved mention buffer is reattached
// rather than recreated (supplemental reattachment capability).
func (r *Registry) OpenSession(agentId types.AgentId, description string, capabilities []string) (types.SessionId, *MentionBuffer, chan types.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf *MentionBuffer
	if old, ok := r.byAgent[agentId]; ok {
		if old.downstream != nil {
			close(old.downstream)
		}
		buf = old.mentionBuf
	}
	if buf == nil {
		buf = NewMentionBuffer(r.bufferCap)
	}

	sessID := types.NewSessionId()
	downstream := make(chan types.Frame, 256)
	entry := &sessionEntry{
		agent: types.Agent{
			AgentId:      agentId,
			Description:  description,
			Capabilities: capabilities,
			RegisteredAt: time.Now().UTC(),
			SessionId:    sessID,
		},
		sessionId:      sessID,
		lastActivityAt: time.Now().UTC(),
		downstream:     downstream,
		mentionBuf:     buf,
	}
	r.byAgent[agentId] = entry
	return sessID, buf, downstream
}

// CloseSession is idempotent: it removes the agent and discards its
// mention buffer immediately (no grace window applied on an explicit
// close — the grace window only covers unexpected transport loss, which
// callers signal via MarkDisconnected instead).
func (r *Registry) CloseSession(agentId types.AgentId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byAgent[agentId]; ok {
		if e.downstream != nil {
			close(e.downstream)
		}
		delete(r.byAgent, agentId)
	}
}

// MarkDisconnected records a transport loss without evicting the agent;
// the entry becomes eligible for eviction once the grace window elapses.
func (r *Registry) MarkDisconnected(agentId types.AgentId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byAgent[agentId]
	if !ok {
		return
	}
	if e.downstream != nil {
		close(e.downstream)
		e.downstream = nil
	}
	e.departed = true
	e.evictAfter = time.Now().UTC().Add(r.graceWindow)
}

// Lookup returns the mention buffer for agentId, if it still has a live or
// grace-windowed registry entry.
func (r *Registry) Lookup(agentId types.AgentId) (*MentionBuffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byAgent[agentId]
	if !ok {
		return nil, false
	}
	return e.mentionBuf, true
}

// Touch bumps lastActivityAt for agentId. A listAgents ping counts as
// activity (Open Question resolved YES in §9): it resets the agent's own
// eviction timer.
func (r *Registry) Touch(agentId types.AgentId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byAgent[agentId]; ok {
		e.lastActivityAt = time.Now().UTC()
	}
}

// Require fails with UnknownAgent if agentId has no registry entry at all
// (connected or within grace window).
func (r *Registry) Require(agentId types.AgentId) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byAgent[agentId]; !ok {
		return huberr.New(huberr.UnknownAgent, string(agentId))
	}
	return nil
}

// ListAgents returns a snapshot of all registry entries (§4.2). In detail
// mode it includes registration time, last activity, and mention-buffer
// depth/drop counters.
func (r *Registry) ListAgents(includeDetails bool) []types.AgentSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.AgentSummary, 0, len(r.byAgent))
	for id, e := range r.byAgent {
		s := types.AgentSummary{
			AgentId:      id,
			Description:  e.agent.Description,
			Capabilities: e.agent.Capabilities,
			RegisteredAt: e.agent.RegisteredAt,
			Departed:     e.departed,
		}
		if includeDetails {
			s.LastActivityAt = e.lastActivityAt
			s.MentionBufferDepth = e.mentionBuf.Len()
			s.MentionsDropped = e.mentionBuf.Dropped()
		}
		out = append(out, s)
	}
	return out
}

// Count reports the number of sessions currently tracked, connected or
// in their reconnect grace window.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAgent)
}

// StartEvictionSweep runs a background ticker, grounded on the same
// periodic-sweep idiom used for health checks: a departed agent whose
// grace window has elapsed is fully evicted (registry entry and mention
// buffer deleted, per §4.2).
func (r *Registry) StartEvictionSweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (r *Registry) sweep() {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.byAgent {
		if e.departed && now.After(e.evictAfter) {
			delete(r.byAgent, id)
			r.logger.Infof("evicted agent %s after grace window", id)
		}
	}
}

func (r *Registry) Stop() {
	close(r.stopCh)
}
