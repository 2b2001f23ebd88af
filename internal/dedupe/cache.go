// Package dedupe implements the correlation-id window the Hub uses to
// deduplicate retried createThread/sendMessage calls (§4.11): a
// non-idempotent Tool-Surface operation retried by the Client Runtime
// carries the same client-generated correlation id on every attempt, and
// the Hub must apply the operation at most once within the window.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Cache is a thread-safe, TTL-bounded set of correlation ids, evicting in
// insertion order once maxSize is reached.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  sync.Once
}

// New starts a cache whose entries expire after ttl, bounded to maxSize
// entries, with a background goroutine sweeping expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// CheckAndMark reports whether correlationId has already been seen within
// the window; if not, it marks it seen and returns false. This is atomic
// to avoid a check/mark race between two concurrently-retried attempts.
func (c *Cache) CheckAndMark(correlationId string) (duplicate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[correlationId]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	elem := c.order.PushBack(correlationId)
	c.seen[correlationId] = &entry{seenAt: time.Now(), elem: elem}
	return false
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.seen, front.Value.(string))
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for next := c.order.Front(); next != nil; {
		key := next.Value.(string)
		e := c.seen[key]
		toRemove := next
		next = next.Next()
		if now.Sub(e.seenAt) >= c.ttl {
			c.order.Remove(toRemove)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweep goroutine. Calling it again is a no-op.
func (c *Cache) Close() {
	c.closed.Do(func() { close(c.done) })
}
