// Package metacache implements the attribute and location metadata caches,
// each a mutex-guarded map (an RWMutex for attributes, a plain Mutex for
// locations) with its own expiry and renewal policy.
package metacache

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/rs/zerolog"
)

// Attributes mirrors the subset of file metadata the client caches locally:
// size and the two timestamps are updated independently of a full refetch.
type Attributes struct {
	FileID string
	Size   int64
	ATime  time.Time
	MTime  time.Time
	CTime  time.Time
	Mode   uint32
}

type attrEntry struct {
	attrs    Attributes
	expireAt time.Time
}

// AttributeCache caches file attributes with randomized expiry in
// [T/2, 3T/2] so a large cohort of entries inserted together does not all
// expire in the same instant and stampede the provider.
type AttributeCache struct {
	ttl    time.Duration
	sched  *scheduler.Scheduler
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*attrEntry
}

func NewAttributeCache(ttl time.Duration, sched *scheduler.Scheduler) *AttributeCache {
	return &AttributeCache{
		ttl:     ttl,
		sched:   sched,
		logger:  log.WithComponent("metacache.attr"),
		entries: make(map[string]*attrEntry),
	}
}

func (c *AttributeCache) randomizedExpiry() time.Time {
	half := c.ttl / 2
	jitter := time.Duration(rand.Int64N(int64(c.ttl))) // uniform over [0, ttl)
	return time.Now().Add(half + jitter)               // lands in [T/2, 3T/2)
}

// Put inserts or replaces the cached attributes for fileID and arms its
// expiry sweep.
func (c *AttributeCache) Put(fileID string, attrs Attributes) {
	entry := &attrEntry{attrs: attrs, expireAt: c.randomizedExpiry()}

	c.mu.Lock()
	c.entries[fileID] = entry
	c.mu.Unlock()

	delay := time.Until(entry.expireAt)
	c.sched.Schedule(delay, func(ctx context.Context) {
		c.sweepIfStillExpired(fileID, entry)
	})
}

// sweepIfStillExpired removes fileID's entry only if it is still the exact
// entry that was scheduled for this sweep (a Put may have replaced it with a
// fresh one in the meantime).
func (c *AttributeCache) sweepIfStillExpired(fileID string, scheduled *attrEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[fileID]; ok && current == scheduled {
		delete(c.entries, fileID)
	}
}

// Get returns the cached attributes for fileID, or ok=false if absent or expired.
func (c *AttributeCache) Get(fileID string) (Attributes, bool) {
	c.mu.RLock()
	entry, found := c.entries[fileID]
	c.mu.RUnlock()
	if !found {
		metrics.AttributeCacheMisses.Inc()
		return Attributes{}, false
	}
	if time.Now().After(entry.expireAt) {
		c.Invalidate(fileID)
		metrics.AttributeCacheMisses.Inc()
		return Attributes{}, false
	}
	metrics.AttributeCacheHits.Inc()
	return entry.attrs, true
}

// Invalidate drops fileID's cached attributes unconditionally.
func (c *AttributeCache) Invalidate(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fileID)
}

// InvalidateAll drops every cached entry, e.g. on session reestablishment.
func (c *AttributeCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*attrEntry)
}

// UpdateSize updates only the cached size, leaving other fields and the
// expiry untouched. Driven by local write events, which know the new size
// without a round trip.
func (c *AttributeCache) UpdateSize(fileID string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[fileID]; ok {
		entry.attrs.Size = size
	}
}

// UpdateTimes updates only the cached mtime/ctime, leaving size untouched.
func (c *AttributeCache) UpdateTimes(fileID string, mtime, ctime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[fileID]; ok {
		entry.attrs.MTime = mtime
		entry.attrs.CTime = ctime
	}
}
