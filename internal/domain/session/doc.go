// Package session manages the lifecycle of profile browsers.
//
// Components:
//   - Orchestrator: launches a profile's browser and records the session
//   - Manager: registry of live handles keyed by session id
//
// Launch sequence:
//  1. Stop every other running session of the profile
//  2. Resolve the proxy (explicit id, profile proxy, fingerprint proxy)
//  3. Prepare browser_profiles/profile_<id>
//  4. Start a browser through the launcher chain
//  5. Inject the fingerprint into every page and hook proxy auth
//  6. Register the handle
//
// A launch failure leaves a session record with status "failed" and the
// cause under meta.error, and nothing in the registry. Browsers that exit
// on their own are removed from the registry and their record is marked
// stopped.
//
// Example Usage:
//
//	orch := session.New(session.Deps{...}, session.Options{Headless: true}, logger)
//	h, err := orch.Launch(ctx, profileID, nil)
//	urls, err := orch.ListOpenPages(ctx, h.SessionID)
//	err = orch.Close(ctx, h.SessionID)
package session
