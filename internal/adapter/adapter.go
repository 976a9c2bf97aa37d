// Package adapter holds helpers shared by the outbound adapters.
package adapter

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var ErrBadCA = errors.New("no certificates found in CA file")

// MakeTLSConfig trusts the PEM bundle at ca. The client key pair is loaded
// only when cert is set, for brokers that require mutual TLS.
func MakeTLSConfig(ca, cert, key string) (*tls.Config, error) {
	const op = "adapter.MakeTLSConfig"

	pem, err := os.ReadFile(ca)
	if err != nil {
		return nil, fmt.Errorf("%s: read CA: %w", op, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: %s: %w", op, ca, ErrBadCA)
	}

	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if cert == "" {
		return cfg, nil
	}

	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Certificates = []tls.Certificate{pair}
	return cfg, nil
}
