package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/log"
	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/cuemby/oneclient/pkg/wire"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// TokenRefreshMargin is how far ahead of expiry the refresh is scheduled.
const TokenRefreshMargin = 60 * time.Second

// StoredToken is the on-disk representation of a provider token pair.
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	ProviderURL  string    `json:"provider_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenStore persists a single provider's token pair at 0600 under
// storageDir.
type TokenStore struct {
	mu         sync.Mutex
	storageDir string
}

func NewTokenStore(storageDir string) *TokenStore {
	return &TokenStore{storageDir: storageDir}
}

func (ts *TokenStore) path() string {
	return filepath.Join(ts.storageDir, "provider-token.json")
}

func (ts *TokenStore) Load() (*StoredToken, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	data, err := os.ReadFile(ts.path())
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	var tok StoredToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func (ts *TokenStore) Save(tok *StoredToken) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if err := os.MkdirAll(ts.storageDir, 0o700); err != nil {
		return fmt.Errorf("create token storage dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(ts.path(), data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// TokenRefresher exchanges a refresh token for a new access token. Backed by
// an oauth2.Config in production, faked out in tests.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenSession authenticates with a bearer token and proactively refreshes
// it ahead of expiry via the shared Scheduler.
type TokenSession struct {
	hostname  string
	sessionID string
	envVars   map[string]string

	store     *TokenStore
	refresher TokenRefresher
	sched     *scheduler.Scheduler
	logger    zerolog.Logger

	mu     sync.Mutex
	token  *StoredToken
	cancel scheduler.CancelFunc
}

func NewTokenSession(hostname, sessionID string, envVars map[string]string, store *TokenStore, refresher TokenRefresher, sched *scheduler.Scheduler) *TokenSession {
	return &TokenSession{
		hostname:  hostname,
		sessionID: sessionID,
		envVars:   envVars,
		store:     store,
		refresher: refresher,
		sched:     sched,
		logger:    log.WithComponent("auth.token"),
	}
}

// hashAndBase64 mirrors the original TokenAuthManager's hashAndBase64 helper:
// the raw access token is never sent in the handshake, only its digest.
func hashAndBase64(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (s *TokenSession) Handshake(ctx context.Context) (*wire.HandshakeRequest, error) {
	tok, err := s.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	return &wire.HandshakeRequest{
		Hostname:        s.hostname,
		SessionID:       s.sessionID,
		EnvVars:         s.envVars,
		ProtocolVersion: ProtocolVersion,
		TokenHashBase64: hashAndBase64(tok.AccessToken),
	}, nil
}

func (s *TokenSession) currentToken(ctx context.Context) (*StoredToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		tok, err := s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("token session: %w", err)
		}
		s.token = tok
		s.scheduleRefreshLocked()
	}
	return s.token, nil
}

// scheduleRefreshLocked arms a one-shot refresh at expiry-margin. Caller
// holds s.mu.
func (s *TokenSession) scheduleRefreshLocked() {
	if s.token == nil {
		return
	}
	delay := time.Until(s.token.Expiry) - TokenRefreshMargin
	if delay < 0 {
		delay = 0
	}
	s.cancel = s.sched.Schedule(delay, func(ctx context.Context) {
		if err := s.refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("token refresh failed, no further refresh is scheduled")
		}
	})
}

func (s *TokenSession) refresh(ctx context.Context) error {
	s.mu.Lock()
	current := s.token
	s.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return fmt.Errorf("token refresh: no refresh token available")
	}

	next, err := s.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("token refresh: %w", err)
	}

	updated := &StoredToken{
		AccessToken:  next.AccessToken,
		RefreshToken: next.RefreshToken,
		TokenType:    next.TokenType,
		Expiry:       next.Expiry,
		ProviderURL:  current.ProviderURL,
		CreatedAt:    current.CreatedAt,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = current.RefreshToken
	}
	if err := s.store.Save(updated); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = updated
	s.scheduleRefreshLocked()
	s.mu.Unlock()

	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	s.logger.Info().Time("expiry", updated.Expiry).Msg("refreshed provider token")
	return nil
}

func (s *TokenSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
