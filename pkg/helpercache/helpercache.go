// Package helpercache implements the storage-helper cache: a cache of
// constructed storage helpers keyed by (storageID, forceProxy), plus a
// separate cache of the probed direct-vs-proxy access mode per storageID so
// the probe only runs once per storage.
package helpercache

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// AccessType is the resolved reachability of a storage backend from this
// client, probed once and cached per storageID.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessDirect
	AccessProxy
)

// ClusterProxyHelperName names the helper used when a storage is only
// reachable via the provider's proxy, surfaced so logs/callers can identify
// a proxied file without inspecting cache internals.
const ClusterProxyHelperName = "clusterProxy"

// Helper is the minimal storage I/O surface a cached helper exposes.
type Helper interface {
	Read(ctx context.Context, fileID string, offset, size int64) ([]byte, error)
	Write(ctx context.Context, fileID string, offset int64, data []byte) (int, error)
}

// Factory constructs Helpers and probes storage reachability. Implemented
// against the real storage-helper configuration on the provider side; faked
// out in tests.
type Factory interface {
	// NewHelper builds the helper for storageID under the given access mode.
	NewHelper(storageID string, access AccessType) (Helper, error)
	// ProbeAccess determines whether storageID is reachable directly from
	// this host or only through the provider's proxy.
	ProbeAccess(ctx context.Context, storageID string) (AccessType, error)
}

type helperKey struct {
	storageID   string
	forceProxy  bool
}

// Cache caches constructed Helpers and per-storage access-mode probes.
// Grounded on helpersCache.h's use of a single-thread executor for helper
// construction: probing and constructing a helper can block on I/O
// (mounting, handshaking with the backend), so both run on the caller's
// goroutine but serialized through a weighted semaphore of size 1, keeping
// concurrent first-access callers from racing each other into duplicate
// construction.
type Cache struct {
	factory Factory
	exec    *semaphore.Weighted
	logger  zerolog.Logger

	mu      sync.RWMutex
	helpers map[helperKey]Helper
	access  map[string]AccessType
}

func NewCache(factory Factory) *Cache {
	return &Cache{
		factory: factory,
		exec:    semaphore.NewWeighted(1),
		logger:  log.WithComponent("helpercache"),
		helpers: make(map[helperKey]Helper),
		access:  make(map[string]AccessType),
	}
}

// Get returns the cached Helper for (storageID, forceProxy), probing access
// and constructing the helper on first use.
func (c *Cache) Get(ctx context.Context, storageID string, forceProxy bool) (Helper, error) {
	key := helperKey{storageID: storageID, forceProxy: forceProxy}

	c.mu.RLock()
	if h, ok := c.helpers[key]; ok {
		c.mu.RUnlock()
		return h, nil
	}
	c.mu.RUnlock()

	if err := c.exec.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("helpercache: acquire executor: %w", err)
	}
	defer c.exec.Release(1)

	// Re-check under the executor lock: another goroutine may have built it
	// while we were waiting to acquire.
	c.mu.RLock()
	if h, ok := c.helpers[key]; ok {
		c.mu.RUnlock()
		return h, nil
	}
	c.mu.RUnlock()

	access, err := c.resolveAccess(ctx, storageID, forceProxy)
	if err != nil {
		return nil, err
	}

	h, err := c.factory.NewHelper(storageID, access)
	if err != nil {
		return nil, fmt.Errorf("helpercache: construct helper for %s: %w", storageID, err)
	}

	if access == AccessProxy {
		c.logger.Info().Str("storage_id", storageID).Str("helper", ClusterProxyHelperName).
			Msg("storage only reachable through provider proxy")
	}

	c.mu.Lock()
	c.helpers[key] = h
	size := len(c.helpers)
	c.mu.Unlock()
	metrics.HelperCacheSize.Set(float64(size))

	return h, nil
}

func (c *Cache) resolveAccess(ctx context.Context, storageID string, forceProxy bool) (AccessType, error) {
	if forceProxy {
		return AccessProxy, nil
	}

	c.mu.RLock()
	cached, ok := c.access[storageID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	access, err := c.factory.ProbeAccess(ctx, storageID)
	if err != nil {
		c.logger.Warn().Err(err).Str("storage_id", storageID).Msg("storage access probe failed, falling back to proxy")
		access = AccessProxy
	}

	c.mu.Lock()
	c.access[storageID] = access
	c.mu.Unlock()

	label := "direct"
	if access == AccessProxy {
		label = "proxy"
	}
	metrics.HelperProbesTotal.WithLabelValues(label).Inc()

	return access, nil
}

// Invalidate drops every cached helper (but not probed access modes, which
// remain valid) for storageID, e.g. after a helper-construction error.
func (c *Cache) Invalidate(storageID string) {
	c.mu.Lock()
	for key := range c.helpers {
		if key.storageID == storageID {
			delete(c.helpers, key)
		}
	}
	size := len(c.helpers)
	c.mu.Unlock()
	metrics.HelperCacheSize.Set(float64(size))
}

// InvalidateAll clears both the helper and access-mode caches.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.helpers = make(map[helperKey]Helper)
	c.access = make(map[string]AccessType)
	c.mu.Unlock()
	metrics.HelperCacheSize.Set(0)
}
