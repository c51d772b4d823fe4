package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/princespaghetti/envcerts/internal/bundle"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// MaxDegradationPercent is the drop in certificate count that triggers a
// warning.
const MaxDegradationPercent = 20

// Result describes a downloaded bundle.
type Result struct {
	CertCount     int    `json:"cert_count"`
	PreviousCount int    `json:"previous_count"`
	SHA256        string `json:"sha256"`
	Warning       string `json:"warning,omitempty"`
	Unchanged     bool   `json:"unchanged"`
}

// Verify checks that data holds at least one certificate and compares its
// count with the current bundle.
func Verify(data, current []byte) (*Result, error) {
	sum := sha256.Sum256(data)
	result := &Result{
		CertCount:     bundle.CountCertificates(data),
		PreviousCount: bundle.CountCertificates(current),
		SHA256:        hex.EncodeToString(sum[:]),
	}

	if result.CertCount == 0 {
		return result, envcertserrors.ErrSourceBundleInvalid
	}

	if prev := result.PreviousCount; prev > 0 && result.CertCount < prev {
		degradation := float64(prev-result.CertCount) / float64(prev) * 100
		if degradation > MaxDegradationPercent {
			result.Warning = fmt.Sprintf("new bundle has %d fewer certificates (%.1f%% decrease)",
				prev-result.CertCount, degradation)
		}
	}

	return result, nil
}
