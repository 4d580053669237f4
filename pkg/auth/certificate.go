package auth

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/cuemby/oneclient/pkg/security"
	"github.com/cuemby/oneclient/pkg/wire"
)

// CertificateSession authenticates with a client X.509 certificate. CertPath
// and KeyPath are an explicit override; when both are empty the certificate
// pair is instead loaded from the per-session directory pkg/security derives
// from hostname and sessionID (see security.GetSessionCertDir).
type CertificateSession struct {
	hostname  string
	sessionID string
	certPath  string
	keyPath   string
	envVars   map[string]string
}

// NewCertificateSession loads nothing eagerly; the certificate is read (and
// validated) lazily by TLSCertificate so a missing/expired cert surfaces as
// a dial-time error rather than a construction-time one.
func NewCertificateSession(hostname, sessionID, certPath, keyPath string, envVars map[string]string) *CertificateSession {
	return &CertificateSession{
		hostname:  hostname,
		sessionID: sessionID,
		certPath:  certPath,
		keyPath:   keyPath,
		envVars:   envVars,
	}
}

// TLSCertificate loads the client key pair for use as the grpc transport
// credentials. Kept separate from Handshake because the certificate governs
// the TLS layer, not the application-level handshake payload.
func (s *CertificateSession) TLSCertificate() (tls.Certificate, error) {
	if s.certPath != "" || s.keyPath != "" {
		cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("load client certificate: %w", err)
		}
		return cert, nil
	}

	certDir, err := security.GetSessionCertDir(s.hostname, s.sessionID)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("resolve session cert directory: %w", err)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load session certificate: %w", err)
	}
	return *cert, nil
}

func (s *CertificateSession) Handshake(ctx context.Context) (*wire.HandshakeRequest, error) {
	if _, err := s.TLSCertificate(); err != nil {
		return nil, fmt.Errorf("certificate session: %w", err)
	}
	return &wire.HandshakeRequest{
		Hostname:        s.hostname,
		SessionID:       s.sessionID,
		EnvVars:         s.envVars,
		ProtocolVersion: ProtocolVersion,
	}, nil
}

// Confirm resends the handshake with the confirmation flag set, answering a
// CERT_CONFIRMATION_REQUIRED response.
func (s *CertificateSession) Confirm(ctx context.Context) (*wire.HandshakeRequest, error) {
	req, err := s.Handshake(ctx)
	if err != nil {
		return nil, err
	}
	req.CertConfirmation = "confirmed"
	return req, nil
}

func (s *CertificateSession) Close() {}
