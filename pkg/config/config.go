// Package config describes the tunables the rest of the core needs: the
// provider endpoint, connection pool size, cache expiries, and where a
// session's credentials live on disk. Command-line and config-file parsing
// themselves are out of scope; this package only owns the shape of the
// configuration and its defaults, loaded from YAML (gopkg.in/yaml.v3).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig describes how to reach the remote provider.
type ProviderConfig struct {
	Endpoint string `yaml:"endpoint"`
	PoolSize int    `yaml:"poolSize"`
}

// CacheConfig holds per-cache expiry tunables.
type CacheConfig struct {
	AttributeTTL        time.Duration `yaml:"attributeTTL"`
	LocationRenewWindow time.Duration `yaml:"locationRenewWindow"`
}

// AuthMode selects how a session authenticates with the provider.
type AuthMode string

const (
	AuthModeCertificate AuthMode = "certificate"
	AuthModeToken       AuthMode = "token"
)

// AuthConfig describes where a session's credentials live. CertPath/KeyPath
// are an explicit override; when left empty under AuthModeCertificate, the
// cert pair is instead loaded from the per-(hostname, sessionID) directory
// pkg/security derives for the session.
type AuthConfig struct {
	Mode             AuthMode `yaml:"mode"`
	CertPath         string   `yaml:"certPath,omitempty"`
	KeyPath          string   `yaml:"keyPath,omitempty"`
	TokenStorageDir  string   `yaml:"tokenStorageDir,omitempty"`
	ProviderTokenURL string   `yaml:"providerTokenURL,omitempty"`
}

// SessionConfig identifies this mount session to the provider.
type SessionConfig struct {
	Hostname  string            `yaml:"hostname"`
	SessionID string            `yaml:"sessionID"`
	EnvVars   map[string]string `yaml:"envVars,omitempty"`
}

// SchedulerConfig tunes the deferred-task worker pool.
type SchedulerConfig struct {
	Workers int `yaml:"workers"`
}

// Config is the complete set of tunables for one mount session.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// Default returns a Config with every tunable set to its spec-mandated
// default, suitable as a starting point before applying overrides from a
// YAML file.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Endpoint: "localhost:6665",
			PoolSize: 4,
		},
		Cache: CacheConfig{
			AttributeTTL:        10 * time.Second,
			LocationRenewWindow: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeToken,
		},
		Scheduler: SchedulerConfig{
			Workers: 4,
		},
	}
}

// Load reads a YAML file at path and applies it on top of Default(), so a
// partial file only needs to mention the fields it overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	if c.Provider.Endpoint == "" {
		return fmt.Errorf("provider.endpoint is required")
	}
	if c.Provider.PoolSize <= 0 {
		return fmt.Errorf("provider.poolSize must be positive")
	}
	if c.Session.Hostname == "" {
		return fmt.Errorf("session.hostname is required")
	}
	if c.Session.SessionID == "" {
		return fmt.Errorf("session.sessionID is required")
	}
	switch c.Auth.Mode {
	case AuthModeCertificate:
		if (c.Auth.CertPath == "") != (c.Auth.KeyPath == "") {
			return fmt.Errorf("auth.certPath and auth.keyPath must both be set or both be empty")
		}
	case AuthModeToken:
		if c.Auth.TokenStorageDir == "" {
			return fmt.Errorf("auth.tokenStorageDir is required for token auth")
		}
	default:
		return fmt.Errorf("auth.mode must be %q or %q", AuthModeCertificate, AuthModeToken)
	}
	return nil
}
