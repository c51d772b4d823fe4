package bundle

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"
	"time"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// SourceInfo describes the trusted bundle that gets copied into environments.
type SourceInfo struct {
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	CertCount int       `json:"cert_count"`
	Expired   int       `json:"expired"`
	SizeBytes int64     `json:"size_bytes"`
	Checked   time.Time `json:"checked"`
}

// ValidateSource reads the bundle at path and checks it holds at least one
// parseable certificate. Expired certificates are counted, not rejected:
// public bundles routinely carry a few.
func ValidateSource(path string) (*SourceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "read source bundle",
			Path: path,
			Err:  err,
		}
	}

	now := time.Now()
	certs := parseCertificates(data)
	if len(certs) == 0 {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "validate source bundle",
			Path: path,
			Err:  envcertserrors.ErrSourceBundleInvalid,
		}
	}

	info := &SourceInfo{
		Path:      path,
		SHA256:    computeSHA256(data),
		CertCount: len(certs),
		SizeBytes: int64(len(data)),
		Checked:   now,
	}
	for _, cert := range certs {
		if now.After(cert.NotAfter) {
			info.Expired++
		}
	}

	return info, nil
}

// CountCertificates counts the parseable certificates in a PEM bundle.
func CountCertificates(pemData []byte) int {
	return len(parseCertificates(pemData))
}

func parseCertificates(pemData []byte) []*x509.Certificate {
	var certs []*x509.Certificate
	remaining := pemData

	for {
		block, rest := pem.Decode(remaining)
		if block == nil {
			break
		}

		// Only count CERTIFICATE blocks
		if block.Type == "CERTIFICATE" {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				certs = append(certs, cert)
			}
		}

		remaining = rest
	}

	return certs
}

func computeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
