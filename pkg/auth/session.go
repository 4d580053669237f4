// Package auth implements the session/handshake lifecycle: establishing a
// provider session under either certificate- or token-based credentials,
// retrying the handshake, and (for token sessions) scheduling proactive
// refresh ahead of expiry.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cuemby/oneclient/pkg/coreerrors"
	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
)

// ConfirmationPrompt surfaces a CERT_CONFIRMATION_REQUIRED handshake outcome
// to whatever UI layer owns the mount. The core only exposes the hook; no
// UI is implemented here.
type ConfirmationPrompt func(ctx context.Context) (confirmed bool, err error)

// Transport is the subset of the streaming transport a Session needs to
// perform a handshake: send the opening request and learn the outcome via
// an injected callback on the Router's Handlers.
type Transport interface {
	SendHandshake(ctx context.Context, req *wire.HandshakeRequest) error
}

// Session establishes and maintains credentials for one provider connection.
type Session interface {
	// Handshake builds this session's HandshakeRequest payload.
	Handshake(ctx context.Context) (*wire.HandshakeRequest, error)
	// Close releases any resources (refresh timers, file handles) held by the session.
	Close()
}

// ProtocolVersion is compared against the server's HandshakeResponse; a
// mismatch is a Fatal error, since a version skew means the two sides
// cannot agree on message shapes at all.
const ProtocolVersion uint32 = 1

// HandshakeRetryInterval is the fixed backoff between handshake attempts.
const HandshakeRetryInterval = 3 * time.Second

// Handshaker drives the retrying handshake exchange against a Transport,
// invoked by pkg/clientcontext during session establishment.
type Handshaker struct {
	transport Transport
	session   Session
	confirm   ConfirmationPrompt
	logger    zerolog.Logger
}

func NewHandshaker(t Transport, s Session, confirm ConfirmationPrompt) *Handshaker {
	return &Handshaker{
		transport: t,
		session:   s,
		confirm:   confirm,
		logger:    log.WithComponent("auth.handshake"),
	}
}

// Establish performs the handshake, retrying failed sends with a fixed 3s
// interval until ctx is cancelled or backoff.Retry's default limit on total
// retry time (15 minutes) is reached.
func (h *Handshaker) Establish(ctx context.Context) error {
	op := func() (struct{}, error) {
		req, err := h.session.Handshake(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if err := h.transport.SendHandshake(ctx, req); err != nil {
			h.logger.Warn().Err(err).Msg("handshake send failed, retrying")
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(HandshakeRetryInterval)),
	)
	if err != nil {
		metrics.HandshakeAttemptsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("establish session: %w", err)
	}
	metrics.HandshakeAttemptsTotal.WithLabelValues("success").Inc()
	return nil
}

// HandleResponse reacts to the server's HandshakeResponse.
func (h *Handshaker) HandleResponse(ctx context.Context, resp *wire.HandshakeResponse) error {
	if resp.ProtocolVersion != ProtocolVersion {
		return coreerrors.New(coreerrors.KindFatal, "auth.handshake", fmt.Errorf(
			"%w: client=%d server=%d", coreerrors.ErrVersionMismatch, ProtocolVersion, resp.ProtocolVersion))
	}

	switch resp.Status {
	case wire.HandshakeOK:
		return nil
	case wire.HandshakeNoUserFound:
		return coreerrors.New(coreerrors.KindAuthentication, "auth.handshake", coreerrors.ErrNoUserFound)
	case wire.HandshakeInvalidSession:
		return coreerrors.New(coreerrors.KindAuthentication, "auth.handshake", coreerrors.ErrInvalidSession)
	case wire.HandshakeCertConfirmationRequired:
		if h.confirm == nil {
			return coreerrors.New(coreerrors.KindAuthentication, "auth.handshake", coreerrors.ErrCertConfirmationRequired)
		}
		ok, err := h.confirm(ctx)
		if err != nil {
			return fmt.Errorf("certificate confirmation: %w", err)
		}
		if !ok {
			return coreerrors.New(coreerrors.KindAuthentication, "auth.handshake", coreerrors.ErrCertConfirmationRequired)
		}
		if c, isConfirmer := h.session.(interface {
			Confirm(ctx context.Context) (*wire.HandshakeRequest, error)
		}); isConfirmer {
			req, err := c.Confirm(ctx)
			if err != nil {
				return fmt.Errorf("certificate confirmation: %w", err)
			}
			return h.transport.SendHandshake(ctx, req)
		}
		return h.Establish(ctx)
	default:
		return coreerrors.New(coreerrors.KindProtocol, "auth.handshake", fmt.Errorf("unknown handshake status %d", resp.Status))
	}
}
