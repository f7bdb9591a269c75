// Package trust builds TLS trust contexts from PEM-encoded certificate material.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/hyp3rd/ewrap"
)

// ErrInvalidTrustMaterial is returned when PEM bytes do not yield a usable certificate.
var ErrInvalidTrustMaterial = ewrap.New("invalid trust material").WithContext(
	&ewrap.ErrorContext{
		Severity: ewrap.SeverityError,
		Type:     ewrap.ErrorTypeConfiguration,
	},
)

// Build parses pemBytes into a TLS configuration whose root pool contains only the
// supplied certificates, replacing the platform trust store for its holder.
// Every PEM block must be a parseable X.509 certificate.
func Build(pemBytes []byte) (*tls.Config, error) {
	pool, err := CertPool(pemBytes)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// CertPool parses pemBytes into a certificate pool.
func CertPool(pemBytes []byte) (*x509.CertPool, error) {
	if len(pemBytes) == 0 {
		return nil, ewrap.Wrap(ErrInvalidTrustMaterial, "no pem data")
	}

	pool := x509.NewCertPool()
	rest := pemBytes
	count := 0

	for {
		var block *pem.Block

		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			return nil, ewrap.Wrapf(ErrInvalidTrustMaterial, "unexpected pem block %q", block.Type)
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, ewrap.Wrapf(ErrInvalidTrustMaterial, "parse certificate %d: %v", count, err)
		}

		pool.AddCert(cert)
		count++
	}

	if count == 0 {
		return nil, ewrap.Wrap(ErrInvalidTrustMaterial, "no certificates found, are they valid X.509 in PEM format?")
	}

	return pool, nil
}

// ReadPEMFile loads PEM bytes from path.
func ReadPEMFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, ewrap.Wrapf(err, "read ca file %s", path)
	}

	return data, nil
}
