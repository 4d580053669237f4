package clientcontext

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/oneclient/pkg/transport"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	mu   sync.Mutex
	sent []*wire.ClientMessage
}

func (f *fakePool) Send(_ context.Context, msg *wire.ClientMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakePool) SetInboundHandler(func(*wire.ServerMessage)) {}
func (f *fakePool) Close() error                                { return nil }

func TestSubscriptionInstaller_SubscribeReturnsIDFromMatchingUpdate(t *testing.T) {
	pool := &fakePool{}
	stream := transport.NewStream(1, pool)
	installer := newSubscriptionInstaller(stream)

	go func() {
		time.Sleep(5 * time.Millisecond)
		installer.Deliver(&wire.EventSubscriptionUpdate{ID: 42, Kind: wire.SubscriptionFileAttr, FileID: "f1"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := installer.Subscribe(ctx, &wire.SubscriptionRequest{Kind: wire.SubscriptionFileAttr, FileID: "f1"})

	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestSubscriptionInstaller_SubscribeTimesOutWithoutMatchingUpdate(t *testing.T) {
	pool := &fakePool{}
	stream := transport.NewStream(1, pool)
	installer := newSubscriptionInstaller(stream)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := installer.Subscribe(ctx, &wire.SubscriptionRequest{Kind: wire.SubscriptionFileAttr, FileID: "f1"})

	assert.Error(t, err)
}

func TestSubscriptionInstaller_DeliverIgnoresCancelledUpdates(t *testing.T) {
	pool := &fakePool{}
	stream := transport.NewStream(1, pool)
	installer := newSubscriptionInstaller(stream)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_, _ = installer.Subscribe(ctx, &wire.SubscriptionRequest{Kind: wire.SubscriptionFileAttr, FileID: "f1"})
		close(done)
	}()

	installer.Deliver(&wire.EventSubscriptionUpdate{Kind: wire.SubscriptionFileAttr, FileID: "f1", Cancelled: true})
	<-done
}

func TestSubscriptionInstaller_CancelDoesNotBlock(t *testing.T) {
	pool := &fakePool{}
	stream := transport.NewStream(1, pool)
	installer := newSubscriptionInstaller(stream)

	err := installer.Cancel(context.Background(), 7)
	require.NoError(t, err)

	pool.mu.Lock()
	defer pool.mu.Unlock()
	require.Len(t, pool.sent, 1)
	assert.Equal(t, uint64(7), pool.sent[0].SubscribeCancel.ID)
}
