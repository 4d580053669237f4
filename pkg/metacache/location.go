package metacache

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/rs/zerolog"
)

// RenewWindow is how far ahead of ValidTo a renewal is fetched.
const RenewWindow = 30 * time.Second

// Location is a file's resolved storage mapping.
type Location struct {
	FileID        string
	StorageID     string
	StorageFileID string
	ValidTo       time.Time
}

type locationEntry struct {
	loc      Location
	openRefs int
	override bool // pinned via SetLocationOverride, bypassing renewal
	renewAt  scheduler.CancelFunc
}

// Renewer fetches a fresh Location from the provider. Implemented by
// whatever owns the transport session; faked out in tests.
type Renewer interface {
	RenewLocation(fileID string) (Location, error)
}

// LocationCache caches file storage-location mappings, ref-counted by open
// file handles and renewed ahead of expiry, grounded on storageMapper.h's
// getLocationInfo/openFile/releaseFile/renewLocationMapping.
type LocationCache struct {
	sched   *scheduler.Scheduler
	renewer Renewer
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*locationEntry
}

func NewLocationCache(sched *scheduler.Scheduler, renewer Renewer) *LocationCache {
	return &LocationCache{
		sched:   sched,
		renewer: renewer,
		logger:  log.WithComponent("metacache.location"),
		entries: make(map[string]*locationEntry),
	}
}

// Put installs or replaces fileID's location mapping and arms a renewal
// timer at ValidTo - RenewWindow, unless the entry carries an override.
func (c *LocationCache) Put(fileID string, loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, had := c.entries[fileID]
	entry := &locationEntry{loc: loc}
	if had {
		entry.openRefs = existing.openRefs
		if existing.override {
			return // an override wins over any fetched mapping until explicitly cleared
		}
		if existing.renewAt != nil {
			existing.renewAt()
		}
	}
	c.entries[fileID] = entry
	c.armRenewalLocked(fileID, entry)
	metrics.LocationCacheSize.Set(float64(len(c.entries)))
}

func (c *LocationCache) armRenewalLocked(fileID string, entry *locationEntry) {
	delay := time.Until(entry.loc.ValidTo.Add(-RenewWindow))
	if delay < 0 {
		delay = 0
	}
	entry.renewAt = c.sched.Schedule(delay, func(ctx context.Context) {
		c.mu.Lock()
		cur, ok := c.entries[fileID]
		overridden := ok && cur.override
		c.mu.Unlock()
		if !ok || overridden {
			return
		}
		loc, err := c.renewer.RenewLocation(fileID)
		if err != nil {
			c.logger.Warn().Err(err).Str("file_id", fileID).Msg("location renewal failed")
			metrics.LocationRenewalsTotal.WithLabelValues("failure").Inc()
			return
		}
		metrics.LocationRenewalsTotal.WithLabelValues("success").Inc()
		c.Put(fileID, loc)
	})
}

// Get returns the cached Location for fileID.
func (c *LocationCache) Get(fileID string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fileID]
	if !ok {
		return Location{}, false
	}
	return entry.loc, true
}

// Open increments fileID's open-handle ref count, grounded on
// storageMapper.h's openFile(). A location with open refs is never evicted
// by expiry, only by Release dropping the count to zero past ValidTo.
func (c *LocationCache) Open(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[fileID]; ok {
		entry.openRefs++
	}
}

// Release decrements fileID's open-handle ref count and evicts the entry if
// it has both zero refs and an already-elapsed ValidTo.
func (c *LocationCache) Release(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fileID]
	if !ok {
		return
	}
	if entry.openRefs > 0 {
		entry.openRefs--
	}
	if entry.openRefs == 0 && time.Now().After(entry.loc.ValidTo) {
		if entry.renewAt != nil {
			entry.renewAt()
		}
		delete(c.entries, fileID)
		metrics.LocationCacheSize.Set(float64(len(c.entries)))
	}
}

// SetLocationOverride pins fileID's mapping to loc, bypassing renewal.
func (c *LocationCache) SetLocationOverride(fileID string, loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fileID]
	if !ok {
		entry = &locationEntry{}
		c.entries[fileID] = entry
		metrics.LocationCacheSize.Set(float64(len(c.entries)))
	}
	if entry.renewAt != nil {
		entry.renewAt()
		entry.renewAt = nil
	}
	entry.loc = loc
	entry.override = true
}

// ClearLocationOverride un-pins fileID, re-arming normal renewal on the last
// known location.
func (c *LocationCache) ClearLocationOverride(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fileID]
	if !ok || !entry.override {
		return
	}
	entry.override = false
	c.armRenewalLocked(fileID, entry)
}

// ClearMappings drops every cached location, e.g. on session reestablishment.
func (c *LocationCache) ClearMappings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.renewAt != nil {
			entry.renewAt()
		}
	}
	c.entries = make(map[string]*locationEntry)
	metrics.LocationCacheSize.Set(0)
}
