// Package subscriptions implements the subscription manager: tracking which
// server-side push subscriptions (fileAttr, fileLocation,
// permissionChanged) this client currently holds per file, so a second
// interested caller reuses the existing subscription instead of asking the
// provider to install a duplicate one. A mutex-guarded map of ref-counted
// entries, auto-renewed on a timer where the subscription kind calls for it.
package subscriptions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
)

// AttributeSubscriptionTTL is the lifetime of a fileAttr subscription before
// it is auto-renewed.
const AttributeSubscriptionTTL = 30 * time.Second

// Installer sends subscribe/cancel requests to the provider. Implemented by
// the transport layer; faked out in tests.
type Installer interface {
	Subscribe(ctx context.Context, req *wire.SubscriptionRequest) (serverID uint64, err error)
	Cancel(ctx context.Context, serverID uint64) error
}

type entry struct {
	serverID uint64
	refs     int
	renewAt  scheduler.CancelFunc // only set for time-bounded kinds (fileAttr)
}

// Manager tracks live subscriptions keyed by (kind, fileID).
type Manager struct {
	installer Installer
	sched     *scheduler.Scheduler
	logger    zerolog.Logger

	mu      sync.Mutex
	entries map[subKey]*entry
}

type subKey struct {
	kind   wire.SubscriptionKind
	fileID string
}

func NewManager(installer Installer, sched *scheduler.Scheduler) *Manager {
	return &Manager{
		installer: installer,
		sched:     sched,
		logger:    log.WithComponent("subscriptions"),
		entries:   make(map[subKey]*entry),
	}
}

// Acquire ensures a subscription of kind exists for fileID, installing one
// if necessary, and increments its ref count. fileAttr subscriptions are
// time-bounded and auto-renewed; fileLocation/permissionChanged are
// ref-counted and held until the last caller releases them.
func (m *Manager) Acquire(ctx context.Context, kind wire.SubscriptionKind, fileID string) error {
	key := subKey{kind: kind, fileID: fileID}

	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.refs++
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	serverID, err := m.installer.Subscribe(ctx, &wire.SubscriptionRequest{Kind: kind, FileID: fileID})
	if err != nil {
		return fmt.Errorf("subscriptions: install %v for %s: %w", kind, fileID, err)
	}

	e := &entry{serverID: serverID, refs: 1}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()

	if kind == wire.SubscriptionFileAttr {
		m.armRenewal(key, e)
	}
	return nil
}

func (m *Manager) armRenewal(key subKey, e *entry) {
	e.renewAt = m.sched.Schedule(AttributeSubscriptionTTL, func(ctx context.Context) {
		m.mu.Lock()
		cur, ok := m.entries[key]
		m.mu.Unlock()
		if !ok || cur != e {
			return
		}
		serverID, err := m.installer.Subscribe(ctx, &wire.SubscriptionRequest{Kind: key.kind, FileID: key.fileID})
		if err != nil {
			m.logger.Warn().Err(err).Str("file_id", key.fileID).Msg("attribute subscription renewal failed")
			return
		}
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			e.serverID = serverID
			m.armRenewal(key, e)
		}
		m.mu.Unlock()
	})
}

// Release decrements the ref count for kind/fileID and, once it drops to
// zero, asks the provider to cancel the subscription on a best-effort basis
// (a failed cancel is logged and not retried — the provider will eventually
// expire an unrenewed subscription on its own).
func (m *Manager) Release(ctx context.Context, kind wire.SubscriptionKind, fileID string) {
	key := subKey{kind: kind, fileID: fileID}

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	m.mu.Unlock()

	if e.renewAt != nil {
		e.renewAt()
	}
	if err := m.installer.Cancel(ctx, e.serverID); err != nil {
		m.logger.Debug().Err(err).Str("file_id", fileID).Msg("best-effort subscription cancel failed")
	}
}

// HandleUpdate applies a server-pushed subscription update: a cancellation
// clears the local entry so the next Acquire reinstalls it.
func (m *Manager) HandleUpdate(update *wire.EventSubscriptionUpdate) {
	if !update.Cancelled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.serverID == update.ID {
			if e.renewAt != nil {
				e.renewAt()
			}
			delete(m.entries, key)
			return
		}
	}
}

// ReleaseAll cancels every held subscription, e.g. on session teardown.
func (m *Manager) ReleaseAll(ctx context.Context) {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[subKey]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		if e.renewAt != nil {
			e.renewAt()
		}
		if err := m.installer.Cancel(ctx, e.serverID); err != nil {
			m.logger.Debug().Err(err).Msg("best-effort subscription cancel failed during teardown")
		}
	}
}
