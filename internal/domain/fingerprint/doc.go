// Package fingerprint synthesizes browser fingerprints for profiles.
//
// Build is a pure function: the profile id is threaded through as a seed so
// every noise-producing field (canvas seed, hardware concurrency, device
// memory) is reproducible across launches. Global uniqueness of the user
// agent and MAC address is a separate concern handled by UserAgentResolver
// and MACResolver, which consult the store and degrade to best effort with
// a warning instead of failing.
//
// Example Usage:
//
//	ua, _ := fingerprint.NewUserAgentResolver(store, logger).Resolve(ctx, fingerprint.Hints{OSName: "Windows 10"})
//	fp := fingerprint.Build(fingerprint.Config{ProfileID: 7, UserAgent: ua})
package fingerprint
