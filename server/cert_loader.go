package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultCertCheckInterval = time.Minute

// CertLoader serves a TLS certificate and picks up renewed files without a
// restart. The files are checked at most once per interval, when a handshake
// asks for the certificate.
type CertLoader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	cert      *tls.Certificate
	loadedAt  time.Time
	lastCheck time.Time
}

// NewCertLoader loads the key pair once and fails if it can't.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	l := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: defaultCertCheckInterval,
		logger:   logger,
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	l.lastCheck = time.Now()
	return l, nil
}

// TLSConfig returns a server config that asks the loader for certificates.
func (l *CertLoader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.GetCertificate,
	}
}

// GetCertificate implements tls.Config.GetCertificate. On any error the
// previous certificate keeps being served.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCheck) < l.interval {
		return l.cert, nil
	}
	l.lastCheck = time.Now()

	changed, err := l.changed()
	if err != nil {
		l.logger.Error("failed to stat certificate", "error", err)
		return l.cert, nil
	}
	if changed {
		if err := l.reload(); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.cert, nil
}

func (l *CertLoader) changed() (bool, error) {
	for _, f := range []string{l.certFile, l.keyFile} {
		st, err := os.Stat(f)
		if err != nil {
			return false, err
		}
		if st.ModTime().After(l.loadedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (l *CertLoader) reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	l.cert = &cert
	l.loadedAt = time.Now()
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
