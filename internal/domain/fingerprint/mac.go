package fingerprint

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const macAttempts = 20

var macPattern = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)

// MACLookup reports whether a MAC address is already taken.
type MACLookup interface {
	MACExists(ctx context.Context, mac string) (bool, error)
}

// MACResolver produces MAC addresses that no other profile uses.
type MACResolver struct {
	lookup MACLookup
	logger *zap.Logger
}

// NewMACResolver creates a resolver checking candidates against lookup.
func NewMACResolver(lookup MACLookup, logger *zap.Logger) *MACResolver {
	return &MACResolver{lookup: lookup, logger: logger}
}

// Resolve returns a locally administered unicast MAC not used by any other
// profile. Exhaustion degrades to a fresh random value plus a warning.
func (r *MACResolver) Resolve(ctx context.Context) (string, error) {
	for attempt := 0; attempt < macAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate, err := RandomMAC()
		if err != nil {
			return "", err
		}

		exists, err := r.lookup.MACExists(ctx, candidate)
		if err != nil {
			r.logger.Warn("mac lookup failed, skipping uniqueness check", zap.Error(err))
			return candidate, nil
		}
		if !exists {
			return candidate, nil
		}
	}

	r.logger.Warn("mac uniqueness exhausted, using unchecked value", zap.Int("attempts", macAttempts))
	return RandomMAC()
}

// RandomMAC returns a random locally administered, unicast MAC address.
func RandomMAC() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	b[0] = (b[0] | 0x02) & 0xfe
	return FormatMAC(b), nil
}

// FormatMAC renders six bytes as lowercase colon-separated hex.
func FormatMAC(b [6]byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

// ValidMAC reports whether mac is six colon-separated hex octets.
func ValidMAC(mac string) bool {
	return macPattern.MatchString(mac)
}
