package clientcontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/oneclient/pkg/transport"
	"github.com/cuemby/oneclient/pkg/wire"
)

// subscriptionInstaller implements subscriptions.Installer over a single
// dedicated control Stream: it sends the SubscriptionRequest and blocks
// until the provider's install acknowledgement (an EventSubscriptionUpdate
// for the same kind/fileID) arrives via Deliver, which the owning Context
// wires to the Router's OnSubscriptionUpdate handler.
type subscriptionInstaller struct {
	stream *transport.Stream

	mu      sync.Mutex
	waiters map[subKey]chan *wire.EventSubscriptionUpdate
}

type subKey struct {
	kind   wire.SubscriptionKind
	fileID string
}

func newSubscriptionInstaller(stream *transport.Stream) *subscriptionInstaller {
	return &subscriptionInstaller{
		stream:  stream,
		waiters: make(map[subKey]chan *wire.EventSubscriptionUpdate),
	}
}

// Subscribe sends req and waits for the matching install acknowledgement.
func (i *subscriptionInstaller) Subscribe(ctx context.Context, req *wire.SubscriptionRequest) (uint64, error) {
	key := subKey{kind: req.Kind, fileID: req.FileID}
	ch := make(chan *wire.EventSubscriptionUpdate, 1)

	i.mu.Lock()
	i.waiters[key] = ch
	i.mu.Unlock()

	i.stream.Send(ctx, &wire.ClientMessage{Subscribe: req})

	select {
	case update := <-ch:
		return update.ID, nil
	case <-ctx.Done():
		i.mu.Lock()
		delete(i.waiters, key)
		i.mu.Unlock()
		return 0, fmt.Errorf("subscribe %v/%s: %w", req.Kind, req.FileID, ctx.Err())
	}
}

// Cancel sends a SubscriptionCancel; the provider's eventual push carrying
// Cancelled=true is handled separately via the subscriptions.Manager, so
// this call does not wait for confirmation.
func (i *subscriptionInstaller) Cancel(ctx context.Context, serverID uint64) error {
	i.stream.Send(ctx, &wire.ClientMessage{SubscribeCancel: &wire.SubscriptionCancel{ID: serverID}})
	return nil
}

// Deliver routes an inbound EventSubscriptionUpdate to a pending Subscribe
// waiter, if any. Install acknowledgements are never marked Cancelled.
func (i *subscriptionInstaller) Deliver(update *wire.EventSubscriptionUpdate) {
	if update.Cancelled {
		return
	}
	key := subKey{kind: update.Kind, fileID: update.FileID}

	i.mu.Lock()
	ch, ok := i.waiters[key]
	if ok {
		delete(i.waiters, key)
	}
	i.mu.Unlock()

	if ok {
		ch <- update
	}
}
