/*
Package browser drives real Chromium instances for profile sessions.

# Engines

Three engines implement Launcher: go-rod, chromedp and playwright-go. A
fourth, RemoteLauncher, asks a browser farm for a DevTools endpoint and
attaches to it with rod. Chain wraps them in launch order and gives each
engine its own circuit breaker, so a missing binary or a crashing engine is
skipped until its cooldown expires:

	chain := browser.NewChain(logger,
		browser.NewRodLauncher(logger),
		browser.NewChromedpLauncher(logger),
	)
	b, err := chain.Launch(ctx, browser.LaunchOptions{
		ProfileID:   7,
		UserDataDir: dir,
		Args:        browser.Args(fp, tunnel),
		Proxy:       tunnel,
		Fingerprint: fp,
	})

# Fingerprint injection

Injector renders the embedded scripts under scripts/ with the profile's
fingerprint and registers them as init scripts on every page, then applies
the CDP-level overrides (viewport, user agent, timezone, geolocation).
Every script is dry-run through goja at construction so a syntax error
fails startup instead of a session. Apply never fails: surfaces that cannot
be applied are logged and counted.

# Profile directories

ProfileDirs owns browser_profiles/profile_<id>. Prepare patches Chromium's
Preferences and Local State before launch so a crashed previous run does
not show a restore prompt.

The browsertest subpackage holds in-memory fakes of Launcher, Browser and
Page for tests in other packages.
*/
package browser
