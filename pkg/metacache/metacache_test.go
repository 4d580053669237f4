package metacache

import (
	"testing"
	"time"

	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeCache_PutGetInvalidate(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	c := NewAttributeCache(time.Hour, sched)

	c.Put("f1", Attributes{FileID: "f1", Size: 10})
	got, ok := c.Get("f1")
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Size)

	c.UpdateSize("f1", 20)
	got, _ = c.Get("f1")
	assert.Equal(t, int64(20), got.Size)

	c.Invalidate("f1")
	_, ok = c.Get("f1")
	assert.False(t, ok)
}

func TestAttributeCache_ExpiresWithinJitterWindow(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	ttl := 20 * time.Millisecond
	c := NewAttributeCache(ttl, sched)

	c.Put("f1", Attributes{FileID: "f1"})
	time.Sleep(ttl*3 + 20*time.Millisecond) // past the 3T/2 upper bound
	_, ok := c.Get("f1")
	assert.False(t, ok)
}

type fakeRenewer struct{ loc Location }

func (f *fakeRenewer) RenewLocation(fileID string) (Location, error) {
	return f.loc, nil
}

func TestLocationCache_OpenReleaseKeepsEntryWhileRefd(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	c := NewLocationCache(sched, &fakeRenewer{})

	c.Put("f1", Location{FileID: "f1", StorageID: "s1", ValidTo: time.Now().Add(-time.Second)})
	c.Open("f1")
	c.Open("f1")
	c.Release("f1")
	_, ok := c.Get("f1")
	assert.True(t, ok, "still referenced once after only one of two opens released")

	c.Release("f1")
	_, ok = c.Get("f1")
	assert.False(t, ok, "evicted once refs hit zero and ValidTo has elapsed")
}

func TestLocationCache_Override(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	c := NewLocationCache(sched, &fakeRenewer{})

	c.Put("f1", Location{FileID: "f1", StorageID: "s1", ValidTo: time.Now().Add(time.Hour)})
	c.SetLocationOverride("f1", Location{FileID: "f1", StorageID: "override"})

	got, ok := c.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "override", got.StorageID)

	c.Put("f1", Location{FileID: "f1", StorageID: "fetched", ValidTo: time.Now().Add(time.Hour)})
	got, _ = c.Get("f1")
	assert.Equal(t, "override", got.StorageID, "override wins over a fetched mapping until cleared")

	c.ClearLocationOverride("f1")
	c.Put("f1", Location{FileID: "f1", StorageID: "fetched", ValidTo: time.Now().Add(time.Hour)})
	got, _ = c.Get("f1")
	assert.Equal(t, "fetched", got.StorageID)
}
