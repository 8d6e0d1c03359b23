package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gostack/logging"
)

// writeCert writes a self-signed certificate for cn and returns its paths.
func writeCert(t *testing.T, dir, cn string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func commonName(t *testing.T, c *tls.Certificate) string {
	t.Helper()
	leaf, err := x509.ParseCertificate(c.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestCertLoader_Reloads(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first")

	l, err := NewCertLoader(certFile, keyFile, logging.Discard())
	require.NoError(t, err)
	cert, err := l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", commonName(t, cert))

	writeCert(t, dir, "second")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(certFile, future, future))

	// within the check interval the old certificate is served
	cert, err = l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", commonName(t, cert))

	l.interval = 0
	cert, err = l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "second", commonName(t, cert))
}

func TestCertLoader_KeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first")

	l, err := NewCertLoader(certFile, keyFile, logging.Discard())
	require.NoError(t, err)
	l.interval = 0

	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(certFile, future, future))
	cert, err := l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", commonName(t, cert))

	require.NoError(t, os.Remove(keyFile))
	cert, err = l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", commonName(t, cert))
}

func TestNewCertLoader_Missing(t *testing.T) {
	_, err := NewCertLoader("/nonexistent/cert.pem", "/nonexistent/key.pem", logging.Discard())
	assert.ErrorContains(t, err, "failed to load key pair")
}

func TestCertLoader_TLSConfig(t *testing.T) {
	certFile, keyFile := writeCert(t, t.TempDir(), "gostack")
	l, err := NewCertLoader(certFile, keyFile, logging.Discard())
	require.NoError(t, err)

	cfg := l.TLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, "gostack", commonName(t, cert))
}
