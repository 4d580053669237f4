package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/cuemby/oneclient/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-session"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestCertificateSession_TLSCertificate_ExplicitPathOverride(t *testing.T) {
	dir := t.TempDir()
	cert := selfSignedCert(t)
	require.NoError(t, security.SaveCertToFile(&cert, dir))

	s := NewCertificateSession("host-1", "session-abc", dir+"/node.crt", dir+"/node.key", nil)

	loaded, err := s.TLSCertificate()
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Certificate)
}

func TestCertificateSession_TLSCertificate_ExplicitOverrideMissing(t *testing.T) {
	s := NewCertificateSession("host-1", "session-abc", "/nonexistent/node.crt", "/nonexistent/node.key", nil)

	_, err := s.TLSCertificate()

	assert.Error(t, err)
}

func TestCertificateSession_TLSCertificate_DerivesSessionDirWhenPathsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	certDir, err := security.GetSessionCertDir("host-1", "session-abc")
	require.NoError(t, err)
	cert := selfSignedCert(t)
	require.NoError(t, security.SaveCertToFile(&cert, certDir))

	s := NewCertificateSession("host-1", "session-abc", "", "", nil)

	loaded, err := s.TLSCertificate()
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Certificate)
}

func TestCertificateSession_TLSCertificate_DerivedDirMissingErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s := NewCertificateSession("host-1", "session-abc", "", "", nil)

	_, err := s.TLSCertificate()

	assert.Error(t, err)
}

func TestCertificateSession_Handshake_SurfacesMissingCertificate(t *testing.T) {
	s := NewCertificateSession("host-1", "session-abc", "/nonexistent/node.crt", "/nonexistent/node.key", nil)

	_, err := s.Handshake(nil)

	assert.Error(t, err)
}
