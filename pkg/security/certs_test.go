package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, notAfter time.Time) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-session"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
}

func TestSaveLoadCertRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cert := selfSignedCert(t, time.Now().Add(90*24*time.Hour))

	require.NoError(t, SaveCertToFile(&cert, dir))
	assert.True(t, fileExists(t, dir+"/node.crt"))
	assert.True(t, fileExists(t, dir+"/node.key"))

	loaded, err := LoadCertFromFile(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded.Leaf)
	assert.Equal(t, "test-session", loaded.Leaf.Subject.CommonName)
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

func TestCertExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, CertExists(dir))

	cert := selfSignedCert(t, time.Now().Add(time.Hour))
	require.NoError(t, SaveCertToFile(&cert, dir))
	require.NoError(t, SaveCACertToFile(cert.Certificate[0], dir))

	assert.True(t, CertExists(dir))
}

func TestCertNeedsRotation(t *testing.T) {
	expiringSoon := selfSignedCert(t, time.Now().Add(10*24*time.Hour))
	x509Cert, err := x509.ParseCertificate(expiringSoon.Certificate[0])
	require.NoError(t, err)
	assert.True(t, CertNeedsRotation(x509Cert))

	freshCert := selfSignedCert(t, time.Now().Add(180*24*time.Hour))
	x509Fresh, err := x509.ParseCertificate(freshCert.Certificate[0])
	require.NoError(t, err)
	assert.False(t, CertNeedsRotation(x509Fresh))

	assert.True(t, CertNeedsRotation(nil))
}

func TestGetCertExpiryAndTimeRemaining(t *testing.T) {
	notAfter := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	cert := selfSignedCert(t, notAfter)
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	assert.WithinDuration(t, notAfter, GetCertExpiry(x509Cert), time.Second)
	assert.InDelta(t, 48*time.Hour, GetCertTimeRemaining(x509Cert), float64(time.Minute))
}

func TestValidateCertChain(t *testing.T) {
	cert := selfSignedCert(t, time.Now().Add(time.Hour))
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	// A self-signed cert is its own issuer, so validating against itself as
	// the trusted root succeeds.
	require.NoError(t, ValidateCertChain(x509Cert, x509Cert))

	err = ValidateCertChain(nil, x509Cert)
	assert.Error(t, err)
}

func TestGetCertInfo(t *testing.T) {
	cert := selfSignedCert(t, time.Now().Add(time.Hour))
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	info := GetCertInfo(x509Cert)
	assert.Equal(t, "test-session", info["subject"])
	assert.Contains(t, info["key_usage"], "DigitalSignature")
	assert.Contains(t, info["ext_key_usage"], "ClientAuth")
}

func TestGetSessionCertDir(t *testing.T) {
	dir, err := GetSessionCertDir("host-1", "session-abc")
	require.NoError(t, err)
	assert.Contains(t, dir, "host-1-session-abc")
	assert.Contains(t, dir, ".oneclient")
}

func TestRemoveCerts(t *testing.T) {
	dir := t.TempDir()
	cert := selfSignedCert(t, time.Now().Add(time.Hour))
	require.NoError(t, SaveCertToFile(&cert, dir))

	require.NoError(t, RemoveCerts(dir))
	assert.False(t, fileExists(t, dir+"/node.crt"))
}
