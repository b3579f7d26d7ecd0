// ABOUTME: TTL and size bounded set of idempotency keys
// ABOUTME: The reference backend uses it to drop repeated chat sends

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Cache remembers keys for a fixed TTL, holding at most maxSize of them.
// The oldest key is evicted first. Safe for concurrent use.
type Cache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu     sync.Mutex
	keys   map[string]*list.Element
	order  *list.List // oldest at front
	done   chan struct{}
	closed bool
}

// New creates a cache and starts its background sweeper. maxSize <= 0 means
// unbounded. Call Close to stop the sweeper.
func New(ttl time.Duration, maxSize int) *Cache {
	c := newCache(ttl, maxSize, time.Now)
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		done:    make(chan struct{}),
	}
}

// Seen records key and reports whether it was already recorded within the
// TTL. The check and the record are one atomic step.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.keys[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return true
		}
		// Expired: record it again as new.
		e.seenAt = now
		c.order.MoveToBack(el)
		return false
	}

	if c.maxSize > 0 && len(c.keys) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.keys[key] = c.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Forget drops key so the next Seen treats it as new.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.keys[key]; ok {
		c.order.Remove(el)
		delete(c.keys, key)
	}
}

// Len returns the number of keys held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// Sweep removes expired keys.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Entries are in seenAt order, so stop at the first live one.
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.keys, e.key)
		el = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.keys, front.Value.(*entry).key)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > time.Minute {
		return time.Minute
	}
	return ttl
}
