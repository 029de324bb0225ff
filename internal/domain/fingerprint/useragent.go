package fingerprint

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
)

const userAgentAttempts = 10

// UserAgentLookup reports whether a user agent is already taken.
type UserAgentLookup interface {
	UserAgentExists(ctx context.Context, ua string) (bool, error)
}

// Hints steer user agent generation.
type Hints struct {
	OSName         string
	Arch           string
	BrowserVersion int
}

// UserAgentResolver produces user agents that no other profile uses.
type UserAgentResolver struct {
	lookup UserAgentLookup
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUserAgentResolver creates a resolver checking candidates against lookup.
func NewUserAgentResolver(lookup UserAgentLookup, logger *zap.Logger) *UserAgentResolver {
	return &UserAgentResolver{
		lookup: lookup,
		logger: logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Resolve returns a unique user agent. A version outside the supported range
// is replaced by a random recent one on every attempt. When all attempts
// collide it falls back to the first candidate with a trailing space and
// logs a warning; it never fails on exhaustion.
func (r *UserAgentResolver) Resolve(ctx context.Context, hints Hints) (string, error) {
	pinned := hints.BrowserVersion >= MinBrowserVersion && hints.BrowserVersion <= MaxBrowserVersion

	var fallback string
	for attempt := 0; attempt < userAgentAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		version := hints.BrowserVersion
		if !pinned {
			version = r.randomVersion()
		}

		candidate := UserAgent(hints.OSName, hints.Arch, version)
		if fallback == "" {
			fallback = candidate
		}

		exists, err := r.lookup.UserAgentExists(ctx, candidate)
		if err != nil {
			r.logger.Warn("user agent lookup failed, skipping uniqueness check", zap.Error(err))
			return candidate, nil
		}
		if !exists {
			return candidate, nil
		}
	}

	r.logger.Warn("user agent uniqueness exhausted, using perturbed default",
		zap.Int("attempts", userAgentAttempts),
		zap.String("user_agent", fallback),
	)
	return fallback + " ", nil
}

func (r *UserAgentResolver) randomVersion() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DefaultBrowserVersion + r.rng.IntN(MaxBrowserVersion-DefaultBrowserVersion+1)
}

// UserAgent renders a Chrome user agent for the OS, arch and major version.
func UserAgent(osName, arch string, version int) string {
	return fmt.Sprintf(
		"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		platform(osName, arch), version,
	)
}

func platform(osName, arch string) string {
	x86 := arch == "x86"
	switch FamilyOf(osName) {
	case Windows:
		if x86 {
			return "Windows NT 10.0; WOW64"
		}
		return "Windows NT 10.0; Win64; x64"
	case Linux:
		if x86 {
			return "X11; Linux i686"
		}
		return "X11; Linux x86_64"
	default:
		return "Macintosh; Intel Mac OS X 10_15_7"
	}
}
