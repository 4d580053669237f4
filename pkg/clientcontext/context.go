package clientcontext

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cuemby/oneclient/pkg/auth"
	"github.com/cuemby/oneclient/pkg/config"
	"github.com/cuemby/oneclient/pkg/diag"
	"github.com/cuemby/oneclient/pkg/events"
	"github.com/cuemby/oneclient/pkg/helpercache"
	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metacache"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/cuemby/oneclient/pkg/subscriptions"
	"github.com/cuemby/oneclient/pkg/transport"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// locationRenewTimeout bounds how long a metacache.Renewer.RenewLocation
// call waits for the matching FileLocationPush before giving up.
const locationRenewTimeout = 10 * time.Second

// Context is the process-wide client core: it owns the provider connection
// and every cache/subsystem built on top of it, and exposes only the
// constructed Services record to callers, never itself, so nothing
// downstream can acquire a back-pointer into it.
type Context struct {
	cfg    config.Config
	logger zerolog.Logger

	conn    *grpc.ClientConn
	pool    *transport.GRPCPool
	router  *transport.Router
	checker *diag.Checker

	scheduler    *scheduler.Scheduler
	session      auth.Session
	handshaker   *auth.Handshaker
	subInstaller *subscriptionInstaller
	locRenewer   *locationRenewer

	Services Services
}

// HelperFactory is re-exported so callers assembling a Context do not need
// to import pkg/helpercache directly.
type HelperFactory = helpercache.Factory

// TokenRefresher is re-exported for the same reason.
type TokenRefresher = auth.TokenRefresher

// Options configures New. Exactly the fields a caller must supply beyond
// config.Config: the pieces that only make sense wired to a real provider
// or a test fake.
type Options struct {
	Helpers            HelperFactory
	TokenRefresher     TokenRefresher   // required when cfg.Auth.Mode == config.AuthModeToken
	ConfirmCertificate auth.ConfirmationPrompt // optional, for CERT_CONFIRMATION_REQUIRED
	Checker            *diag.Checker    // optional; a fresh one is created if nil
}

// New constructs every subsystem and dials the provider, but does not yet
// perform the handshake; call Start for that.
func New(cfg config.Config, opts Options) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("clientcontext: %w", err)
	}

	checker := opts.Checker
	if checker == nil {
		checker = diag.NewChecker()
	}

	sched := scheduler.New(scheduler.Config{Workers: cfg.Scheduler.Workers})

	session, tlsCert, err := buildSession(cfg, opts, sched)
	if err != nil {
		sched.Stop()
		return nil, err
	}

	creds := insecure.NewCredentials()
	if tlsCert != nil {
		creds = credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{*tlsCert}})
	}

	conn, err := grpc.NewClient(cfg.Provider.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		sched.Stop()
		return nil, fmt.Errorf("clientcontext: dial provider: %w", err)
	}

	c := &Context{
		cfg:       cfg,
		logger:    log.WithComponent("clientcontext"),
		conn:      conn,
		checker:   checker,
		scheduler: sched,
		session:   session,
	}

	poolCtx := context.Background()
	pool, err := transport.NewGRPCPool(poolCtx, conn, cfg.Provider.PoolSize)
	if err != nil {
		conn.Close()
		sched.Stop()
		return nil, fmt.Errorf("clientcontext: open transport pool: %w", err)
	}
	c.pool = pool

	// These closures capture c before its subInstaller/locRenewer/Services
	// fields are populated below. The guards aren't for a message the
	// provider would send unprompted under the protocol (nothing is pushed
	// before a completed handshake) but for the narrow window between the
	// pool's receive-loop goroutines starting and those fields being set.
	c.router = transport.NewRouter(pool, transport.Handlers{
		OnHandshakeResponse: c.onHandshakeResponse,
		OnSubscriptionUpdate: func(u *wire.EventSubscriptionUpdate) {
			if c.subInstaller == nil || c.Services.Subscriptions == nil {
				c.logger.Warn().Msg("subscription update received before subsystems were ready")
				return
			}
			c.Services.Subscriptions.HandleUpdate(u)
			c.subInstaller.Deliver(u)
			c.Services.Events.HandleSubscriptionUpdate(u)
		},
		OnFileLocation: func(p *wire.FileLocationPush) {
			if c.locRenewer == nil || c.Services.Locations == nil {
				c.logger.Warn().Msg("file location push received before subsystems were ready")
				return
			}
			c.locRenewer.Deliver(p)
			c.Services.Locations.Put(p.FileID, metacache.Location{
				FileID:        p.FileID,
				StorageID:     p.StorageID,
				StorageFileID: p.StorageFileID,
				ValidTo:       time.Now().Add(time.Duration(p.ValidForSeconds) * time.Second),
			})
		},
		OnFileAttrChanged: func(p *wire.FileAttrChangedPush) {
			if c.Services.Attributes == nil {
				return
			}
			c.Services.Attributes.Invalidate(p.FileID)
		},
		OnPermissionChanged: func(p *wire.PermissionChangedPush) {
			if c.Services.Attributes == nil {
				return
			}
			c.Services.Attributes.Invalidate(p.FileID)
		},
	})

	c.handshaker = auth.NewHandshaker(c.router, session, opts.ConfirmCertificate)

	subStream := c.router.OpenStream()
	c.subInstaller = newSubscriptionInstaller(subStream)
	subMgr := subscriptions.NewManager(c.subInstaller, sched)

	locStream := c.router.OpenStream()
	c.locRenewer = newLocationRenewer(locStream, locationRenewTimeout)
	locCache := metacache.NewLocationCache(sched, c.locRenewer)

	attrCache := metacache.NewAttributeCache(cfg.Cache.AttributeTTL, sched)

	helpers := helpercache.NewCache(opts.Helpers)

	readStream := c.router.OpenStream()
	writeStream := c.router.OpenStream()
	eventMgr := events.NewManager(newReadEmitter(readStream), newWriteEmitter(writeStream), sched)

	c.Services = Services{
		Scheduler:     sched,
		Router:        c.router,
		Attributes:    attrCache,
		Locations:     locCache,
		Helpers:       helpers,
		Subscriptions: subMgr,
		Events:        eventMgr,
	}

	return c, nil
}

func buildSession(cfg config.Config, opts Options, sched *scheduler.Scheduler) (auth.Session, *tls.Certificate, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeCertificate:
		s := auth.NewCertificateSession(cfg.Session.Hostname, cfg.Session.SessionID, cfg.Auth.CertPath, cfg.Auth.KeyPath, cfg.Session.EnvVars)
		cert, err := s.TLSCertificate()
		if err != nil {
			return nil, nil, fmt.Errorf("clientcontext: %w", err)
		}
		return s, &cert, nil
	case config.AuthModeToken:
		if opts.TokenRefresher == nil {
			return nil, nil, fmt.Errorf("clientcontext: token auth requires a TokenRefresher")
		}
		store := auth.NewTokenStore(cfg.Auth.TokenStorageDir)
		s := auth.NewTokenSession(cfg.Session.Hostname, cfg.Session.SessionID, cfg.Session.EnvVars, store, opts.TokenRefresher, sched)
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("clientcontext: unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func (c *Context) onHandshakeResponse(resp *wire.HandshakeResponse) {
	if err := c.handshaker.HandleResponse(context.Background(), resp); err != nil {
		c.logger.Error().Err(err).Msg("handshake response rejected")
		c.checker.SetComponentHealth("auth", false, err.Error())
		return
	}
	c.checker.SetComponentHealth("auth", true, "")
}

// Start performs the initial handshake and marks the transport/scheduler
// components healthy. The scheduler has no failure mode of its own, so it
// is reported healthy as soon as Start runs.
func (c *Context) Start(ctx context.Context) error {
	c.checker.SetComponentHealth("scheduler", true, "")
	c.checker.SetComponentHealth("transport", true, "")

	if err := c.handshaker.Establish(ctx); err != nil {
		c.checker.SetComponentHealth("auth", false, err.Error())
		return fmt.Errorf("clientcontext: start: %w", err)
	}
	return nil
}

// Checker exposes the diagnostics checker so a caller can mount it on an
// HTTP server.
func (c *Context) Checker() *diag.Checker {
	return c.checker
}

// Close flushes outstanding events, releases every held subscription, and
// tears down the transport pool, scheduler, and session in that order.
func (c *Context) Close(ctx context.Context) {
	c.Services.Events.Flush()
	c.Services.Subscriptions.ReleaseAll(ctx)
	c.checker.SetComponentHealth("transport", false, "shutting down")

	if err := c.pool.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("error closing transport pool")
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("error closing provider connection")
	}
	c.scheduler.Stop()
	c.session.Close()
}
