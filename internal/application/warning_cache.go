package application

import (
	"strings"
	"sync"
	"time"
)

// warningCache remembers recently logged malformed record warnings so that
// repeated loads of unchanged data stay quiet until an entry expires.
type warningCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]time.Time
}

func newWarningCache(ttl time.Duration, maxEntries int, now func() time.Time) *warningCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &warningCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]time.Time),
	}
}

// ShouldWarn reports whether key has not been warned about within the TTL and
// records it when so.
func (c *warningCache) ShouldWarn(key string) bool {
	if c == nil {
		return true
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if expiresAt, ok := c.entries[key]; ok && !now.After(expiresAt) {
		return false
	}

	c.cleanupLocked(now)
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = now.Add(c.ttl)
	return true
}

// Forget drops every entry for id so that a replacement record with the same
// id is reported again.
func (c *warningCache) Forget(id string) {
	if c == nil {
		return
	}
	prefix := id + "|"
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

func (c *warningCache) cleanupLocked(now time.Time) {
	for key, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *warningCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func malformedWarningKey(m *MalformedRecordError) string {
	return m.ID + "|" + m.Date + "|" + m.Time
}
