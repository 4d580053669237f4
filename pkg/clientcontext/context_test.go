package clientcontext

import (
	"testing"

	"github.com/cuemby/oneclient/pkg/config"
	"github.com/cuemby/oneclient/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Session.Hostname = "host1"
	cfg.Session.SessionID = "sess1"
	cfg.Auth.TokenStorageDir = "/tmp/oneclient-test-tokens"
	return cfg
}

func TestNew_RejectsInvalidConfigBeforeDialing(t *testing.T) {
	cfg := config.Default() // missing session hostname/sessionID

	_, err := New(cfg, Options{})

	assert.Error(t, err)
}

func TestNew_RequiresTokenRefresherForTokenAuth(t *testing.T) {
	cfg := validConfig()

	_, err := New(cfg, Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "TokenRefresher")
}

func TestBuildSession_CertificateModeRequiresReadableCertFiles(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = config.AuthModeCertificate
	cfg.Auth.CertPath = "/nonexistent/cert.pem"
	cfg.Auth.KeyPath = "/nonexistent/key.pem"
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()

	_, _, err := buildSession(cfg, Options{}, sched)

	assert.Error(t, err)
}

func TestBuildSession_UnknownAuthModeRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = "bogus"
	sched := scheduler.New(scheduler.Config{Workers: 1})
	defer sched.Stop()

	_, _, err := buildSession(cfg, Options{}, sched)

	assert.Error(t, err)
}
