package types

import (
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
)

// Profile is a persistent browser identity.
type Profile struct {
	ID                  int                     `json:"id"`
	Name                string                  `json:"name"`
	UserAgent           string                  `json:"userAgent"`
	Fingerprint         fingerprint.Fingerprint `json:"fingerprint"`
	FingerprintPresetID *int                    `json:"fingerprintPresetId,omitempty"`
	MAC                 string                  `json:"macAddress,omitempty"`
	ProxyID             *int                    `json:"proxyId,omitempty"`
	AccountInfo         map[string]string       `json:"accountInfo,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}
