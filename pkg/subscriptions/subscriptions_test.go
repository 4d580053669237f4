package subscriptions

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstaller struct {
	subscribes atomic.Int32
	cancels    atomic.Int32
	nextID     atomic.Uint64
}

func (f *fakeInstaller) Subscribe(ctx context.Context, req *wire.SubscriptionRequest) (uint64, error) {
	f.subscribes.Add(1)
	return f.nextID.Add(1), nil
}

func (f *fakeInstaller) Cancel(ctx context.Context, serverID uint64) error {
	f.cancels.Add(1)
	return nil
}

func TestManager_AcquireReusesExistingSubscription(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	installer := &fakeInstaller{}
	m := NewManager(installer, sched)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, wire.SubscriptionFileLocation, "f1"))
	require.NoError(t, m.Acquire(ctx, wire.SubscriptionFileLocation, "f1"))

	assert.Equal(t, int32(1), installer.subscribes.Load())
}

func TestManager_ReleaseCancelsOnceRefsHitZero(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	installer := &fakeInstaller{}
	m := NewManager(installer, sched)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, wire.SubscriptionFileLocation, "f1"))
	require.NoError(t, m.Acquire(ctx, wire.SubscriptionFileLocation, "f1"))

	m.Release(ctx, wire.SubscriptionFileLocation, "f1")
	assert.Equal(t, int32(0), installer.cancels.Load())

	m.Release(ctx, wire.SubscriptionFileLocation, "f1")
	assert.Equal(t, int32(1), installer.cancels.Load())
}

func TestManager_HandleUpdateCancellationClearsEntry(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()
	installer := &fakeInstaller{}
	m := NewManager(installer, sched)
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, wire.SubscriptionPermissionChanged, "f1"))

	m.HandleUpdate(&wire.EventSubscriptionUpdate{ID: 1, Cancelled: true})

	// Acquiring again after the server cancelled it installs a fresh one.
	require.NoError(t, m.Acquire(ctx, wire.SubscriptionPermissionChanged, "f1"))
	assert.Equal(t, int32(2), installer.subscribes.Load())
}
