// Package clientcontext is the process-wide composition root: it
// constructs the scheduler, transport, auth session, metadata and helper
// caches, subscription manager, and event manager, and wires their
// cross-references explicitly instead of through back-pointers. One New*
// per subsystem, assembled in a single constructor, with the result handed
// back as a plain Services record so nothing downstream can acquire a
// pointer to the Context that built it.
package clientcontext

import (
	"github.com/cuemby/oneclient/pkg/events"
	"github.com/cuemby/oneclient/pkg/helpercache"
	"github.com/cuemby/oneclient/pkg/metacache"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/cuemby/oneclient/pkg/subscriptions"
	"github.com/cuemby/oneclient/pkg/transport"
)

// Services is the set of constructed subsystems a caller (the out-of-scope
// FUSE adapter, or this package's own adapters) needs to hold. It is passed
// by value so nothing in it can acquire a pointer back to the Context that
// built it.
type Services struct {
	Scheduler     *scheduler.Scheduler
	Router        *transport.Router
	Attributes    *metacache.AttributeCache
	Locations     *metacache.LocationCache
	Helpers       *helpercache.Cache
	Subscriptions *subscriptions.Manager
	Events        *events.Manager
}
