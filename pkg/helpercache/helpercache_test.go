package helpercache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHelper struct{ storageID string }

func (f *fakeHelper) Read(ctx context.Context, fileID string, offset, size int64) ([]byte, error) {
	return nil, nil
}
func (f *fakeHelper) Write(ctx context.Context, fileID string, offset int64, data []byte) (int, error) {
	return len(data), nil
}

type fakeFactory struct {
	probeAccess   AccessType
	constructions atomic.Int32
	probes        atomic.Int32
	lastAccess    AccessType
}

func (f *fakeFactory) NewHelper(storageID string, access AccessType) (Helper, error) {
	f.constructions.Add(1)
	f.lastAccess = access
	return &fakeHelper{storageID: storageID}, nil
}

func (f *fakeFactory) ProbeAccess(ctx context.Context, storageID string) (AccessType, error) {
	f.probes.Add(1)
	return f.probeAccess, nil
}

func TestCache_GetConstructsOnce(t *testing.T) {
	factory := &fakeFactory{probeAccess: AccessDirect}
	c := NewCache(factory)
	ctx := context.Background()

	h1, err := c.Get(ctx, "storage-1", false)
	require.NoError(t, err)
	h2, err := c.Get(ctx, "storage-1", false)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, int32(1), factory.constructions.Load())
	assert.Equal(t, int32(1), factory.probes.Load())
}

func TestCache_ForceProxySkipsProbe(t *testing.T) {
	factory := &fakeFactory{probeAccess: AccessDirect}
	c := NewCache(factory)

	_, err := c.Get(context.Background(), "storage-1", true)
	require.NoError(t, err)
	assert.Equal(t, int32(0), factory.probes.Load())
}

func TestCache_ForceProxyConstructsAsProxyAccess(t *testing.T) {
	factory := &fakeFactory{probeAccess: AccessDirect}
	c := NewCache(factory)

	_, err := c.Get(context.Background(), ClusterProxyHelperName, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), factory.constructions.Load())
	assert.Equal(t, AccessProxy, factory.lastAccess)
}

func TestCache_DirectAndProxyAreDistinctEntries(t *testing.T) {
	factory := &fakeFactory{probeAccess: AccessDirect}
	c := NewCache(factory)
	ctx := context.Background()

	_, err := c.Get(ctx, "storage-1", false)
	require.NoError(t, err)
	_, err = c.Get(ctx, "storage-1", true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), factory.constructions.Load())
}

func TestCache_ConcurrentFirstAccessConstructsOnce(t *testing.T) {
	factory := &fakeFactory{probeAccess: AccessDirect}
	c := NewCache(factory)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(ctx, "storage-1", false)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), factory.constructions.Load())
}
