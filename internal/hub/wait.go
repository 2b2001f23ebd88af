package hub

import (
	"sync"
	"time"

	"meshhub/internal/huberr"
	"meshhub/internal/types"
)

// WaitCoordinator serves waitForMentions (§4.5). Single-flight is enforced
// with a plain per-agent flag rather than golang.org/x/sync/singleflight:
// singleflight coalesces concurrent duplicate calls onto one shared
// result, but §4.5 requires the second concurrent call to fail immediately
// with WaitAlreadyActive instead of blocking to share the first call's
// answer, so the two semantics don't match.
type WaitCoordinator struct {
	mu       sync.Mutex
	active   map[types.AgentId]bool
	registry *Registry
	maxWait  time.Duration
	drainCap int
}

func NewWaitCoordinator(registry *Registry, maxWait time.Duration) *WaitCoordinator {
	return &WaitCoordinator{
		active:   make(map[types.AgentId]bool),
		registry: registry,
		maxWait:  maxWait,
		drainCap: 64,
	}
}

// Wait implements waitForMentions(agentId, timeoutMs) → MentionDelivery[].
func (w *WaitCoordinator) Wait(agentId types.AgentId, timeout time.Duration) ([]types.MentionDelivery, error) {
	if timeout > w.maxWait {
		return nil, huberr.New(huberr.TimeoutTooLarge, "timeoutMs exceeds maximum")
	}

	buf, ok := w.registry.Lookup(agentId)
	if !ok {
		return nil, huberr.New(huberr.UnknownAgent, string(agentId))
	}

	w.mu.Lock()
	if w.active[agentId] {
		w.mu.Unlock()
		return nil, huberr.New(huberr.WaitAlreadyActive, string(agentId))
	}
	w.active[agentId] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.active, agentId)
		w.mu.Unlock()
	}()

	if batch := buf.DrainUpTo(w.drainCap); len(batch) > 0 {
		return batch, nil
	}

	pw := buf.Park()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d, ok := <-pw.ch:
		if !ok {
			return nil, nil // cancelled (session closed while parked)
		}
		batch := []types.MentionDelivery{d}
		batch = append(batch, buf.DrainUpTo(w.drainCap-1)...)
		return batch, nil
	case <-timer.C:
		buf.Unpark(pw)
		if pw.claimed.CompareAndSwap(false, true) {
			return nil, nil // genuinely timed out, nothing was handed off
		}
		// Enqueue won the race and already claimed this waiter; it is
		// about to send (or has sent) on pw.ch, so take the delivery
		// instead of discarding it.
		d := <-pw.ch
		batch := []types.MentionDelivery{d}
		batch = append(batch, buf.DrainUpTo(w.drainCap-1)...)
		return batch, nil
	}
}

// Cancel unparks any wait parked for agentId, e.g. on session close, by
// closing its channel, so that Wait returns an empty batch at once. A Wait
// that has not parked yet is not affected and runs until its own timeout.
func (w *WaitCoordinator) Cancel(agentId types.AgentId) {
	if buf, ok := w.registry.Lookup(agentId); ok {
		buf.mu.Lock()
		pw := buf.waiter
		buf.waiter = nil
		buf.mu.Unlock()
		if pw != nil && pw.claimed.CompareAndSwap(false, true) {
			close(pw.ch)
		}
	}
}
