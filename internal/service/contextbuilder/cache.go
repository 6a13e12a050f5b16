package contextbuilder

import (
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/aide/internal/core"
)

// TTLs are short: context is a freshness trade against provider round trips
// within one chat session.
var cacheTTLs = map[core.SourceKind]time.Duration{
	core.SourceTasks:    2 * time.Minute,
	core.SourceCalendar: 5 * time.Minute,
	core.SourceEmail:    1 * time.Minute,
}

type cacheEntry struct {
	content  string
	cachedAt time.Time
}

// Cache holds rendered per-source context keyed by principal. It is an
// injected dependency with explicit lifecycle, not package state.
type Cache struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache(clock func() time.Time) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(kind core.SourceKind, principal string) string {
	return string(kind) + ":" + principal
}

func (c *Cache) Get(kind core.SourceKind, principal string) (string, bool) {
	ttl, cacheable := cacheTTLs[kind]
	if !cacheable {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(kind, principal)
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.clock().Sub(entry.cachedAt) >= ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.content, true
}

func (c *Cache) Set(kind core.SourceKind, principal, content string) {
	if _, cacheable := cacheTTLs[kind]; !cacheable || content == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(kind, principal)] = cacheEntry{content: content, cachedAt: c.clock()}
}

// Invalidate drops cached context for one source across all principals,
// used after an executed action mutated that source. Actions are not
// principal-scoped in storage, so the whole source is dropped.
func (c *Cache) Invalidate(kind core.SourceKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := string(kind) + ":"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}
