package clientcontext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/metacache"
	"github.com/cuemby/oneclient/pkg/transport"
	"github.com/cuemby/oneclient/pkg/wire"
)

// locationRenewer implements metacache.Renewer by subscribing for a file's
// location and waiting for the provider's next FileLocationPush, which the
// owning Context routes here via Deliver. Grounded on storageMapper.h's
// getLocationInfo issuing a synchronous request over the same asynchronous
// transport the push channel uses.
type locationRenewer struct {
	stream  *transport.Stream
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan *wire.FileLocationPush
}

func newLocationRenewer(stream *transport.Stream, timeout time.Duration) *locationRenewer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &locationRenewer{
		stream:  stream,
		timeout: timeout,
		waiters: make(map[string]chan *wire.FileLocationPush),
	}
}

// RenewLocation satisfies metacache.Renewer. The interface carries no
// context, so a fixed per-call timeout bounds the wait.
func (r *locationRenewer) RenewLocation(fileID string) (metacache.Location, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	ch := make(chan *wire.FileLocationPush, 1)
	r.mu.Lock()
	r.waiters[fileID] = ch
	r.mu.Unlock()

	r.stream.Send(ctx, &wire.ClientMessage{
		Subscribe: &wire.SubscriptionRequest{Kind: wire.SubscriptionFileLocation, FileID: fileID},
	})

	select {
	case push := <-ch:
		return metacache.Location{
			FileID:        push.FileID,
			StorageID:     push.StorageID,
			StorageFileID: push.StorageFileID,
			ValidTo:       time.Now().Add(time.Duration(push.ValidForSeconds) * time.Second),
		}, nil
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.waiters, fileID)
		r.mu.Unlock()
		return metacache.Location{}, fmt.Errorf("renew location %s: %w", fileID, ctx.Err())
	}
}

// Deliver routes an inbound FileLocationPush to a pending RenewLocation
// waiter, if any.
func (r *locationRenewer) Deliver(push *wire.FileLocationPush) {
	r.mu.Lock()
	ch, ok := r.waiters[push.FileID]
	if ok {
		delete(r.waiters, push.FileID)
	}
	r.mu.Unlock()

	if ok {
		ch <- push
	}
}
