package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is a thread-safe in-process LRU cache with per-entry expiry.
type Memory struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// NewMemory creates an LRU cache holding at most maxEntries values for ttl each.
// A nil clock uses real time.
func NewMemory(maxEntries int, ttl time.Duration, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.remove(e)
		delete(c.entries, key)
		return nil, false, nil
	}
	c.moveToFront(e)
	return e.value, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return nil
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return nil
}

func (c *Memory) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.head, c.tail = nil, nil
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Memory) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Memory) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Memory) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Memory) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
