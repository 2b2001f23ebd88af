package hub

import (
	"sync"
	"sync/atomic"

	"meshhub/internal/types"
)

// parkedWaiter is a single parked waitForMentions call. claimed arbitrates,
// via CompareAndSwap, which of Enqueue (delivering) or the timeout/cancel
// path (giving up) wins the handoff — see Enqueue and WaitCoordinator.Wait's
// timeout branch. Without this, a delivery racing a timeout could be sent
// into the channel after the waiting goroutine has already committed to its
// timer.C branch, and be lost with no one left to receive it.
type parkedWaiter struct {
	ch      chan types.MentionDelivery
	claimed atomic.Bool
}

// MentionBuffer is the per-agent FIFO of MentionDelivery described in
// §3's DATA MODEL: bounded by a soft cap, oldest-drop on overflow, drop
// count observable via listAgents detail mode. It lives with the agent's
// registration and is discarded on session close (or reattached across a
// reconnect within the grace window — see Registry.OpenSession).
type MentionBuffer struct {
	mu      sync.Mutex
	items   []types.MentionDelivery
	cap     int
	dropped uint64

	waiter *parkedWaiter // non-nil while a waitForMentions is parked
}

func NewMentionBuffer(cap int) *MentionBuffer {
	return &MentionBuffer{cap: cap}
}

// Enqueue appends a delivery. If a waitForMentions call is currently
// parked on this buffer, the delivery bypasses the buffer entirely and is
// handed directly to the waiter (§4.4), unless the waiter has already
// claimed itself as timed out, in which case the delivery falls back to
// buffer storage (applying oldest-drop if the buffer is at capacity) so it
// is never silently dropped.
func (b *MentionBuffer) Enqueue(d types.MentionDelivery) {
	b.mu.Lock()
	w := b.waiter
	if w != nil {
		b.waiter = nil
	}
	b.mu.Unlock()

	if w != nil && w.claimed.CompareAndSwap(false, true) {
		w.ch <- d
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.cap {
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, d)
}

// DrainUpTo removes and returns up to n deliveries in FIFO order. Returns
// an empty slice if the buffer is empty.
func (b *MentionBuffer) DrainUpTo(n int) []types.MentionDelivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	if n > len(b.items) {
		n = len(b.items)
	}
	out := make([]types.MentionDelivery, n)
	copy(out, b.items[:n])
	b.items = b.items[n:]
	return out
}

// Park registers a waiter to receive the next single Enqueue directly,
// bypassing buffer storage, and returns it. Only one waiter may be parked
// at a time; callers enforce single-flight (WaitAlreadyActive) before
// calling Park.
func (b *MentionBuffer) Park() *parkedWaiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := &parkedWaiter{ch: make(chan types.MentionDelivery, 1)}
	b.waiter = w
	return w
}

// Unpark detaches a previously Parked waiter from the buffer, e.g. on
// timeout or session close, so a later Enqueue goes back to buffer
// storage. It does not by itself decide whether the waiter times out or
// still receives a delivery already in flight — see parkedWaiter.claimed.
func (b *MentionBuffer) Unpark(w *parkedWaiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiter == w {
		b.waiter = nil
	}
}

func (b *MentionBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *MentionBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
