package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
	"go.uber.org/zap"
)

// Launcher starts a browser. browser.Chain satisfies it.
type Launcher interface {
	Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error)
}

// Options tune how browsers are started.
type Options struct {
	ExecutablePath string
	Headless       bool
	LaunchTimeout  time.Duration
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Profiles store.Profiles
	Proxies  store.Proxies
	Sessions store.Sessions
	Dirs     *browser.ProfileDirs
	Launcher Launcher
	Injector *browser.Injector
	Sealer   *crypto.Sealer
	Manager  *Manager
}

// Orchestrator turns a profile into a running, fingerprinted browser and
// keeps the session records in step with the live handles.
type Orchestrator struct {
	Deps
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics

	locksMu sync.Mutex
	locks   map[int]*sync.Mutex
}

// New wires an orchestrator and subscribes it to browser disconnects.
func New(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if deps.Manager == nil {
		deps.Manager = NewManager(logger)
	}
	o := &Orchestrator{
		Deps:   deps,
		opts:   opts,
		logger: logger,
		locks:  make(map[int]*sync.Mutex),
	}
	deps.Manager.OnDisconnect(o.disconnected)
	return o
}

// WithMetrics counts superseded sessions.
func (o *Orchestrator) WithMetrics(m *monitoring.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

func (o *Orchestrator) lock(profileID int) func() {
	o.locksMu.Lock()
	mu, ok := o.locks[profileID]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[profileID] = mu
	}
	o.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Launch starts a browser for profileID. proxyID overrides the profile's
// own proxy; an unknown proxy id launches without one. Any running session
// of the same profile is stopped first.
func (o *Orchestrator) Launch(ctx context.Context, profileID int, proxyID *int) (*Handle, error) {
	unlock := o.lock(profileID)
	defer unlock()

	profile, err := o.Profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	o.stopOthers(ctx, profileID)

	tunnel, usedProxyID := o.resolveProxy(ctx, profile, proxyID)
	dir, err := o.Dirs.Prepare(profileID, tunnel != nil && tunnel.HasCredentials())
	if err != nil {
		return nil, o.fail(ctx, profileID, usedProxyID, err)
	}

	return o.start(ctx, profileID, usedProxyID, dir, nil, profile.Fingerprint, tunnel)
}

// LaunchScratch starts a browser with a default fingerprint in a transient
// directory that is removed when the session ends.
func (o *Orchestrator) LaunchScratch(ctx context.Context, proxyID *int) (*Handle, error) {
	tunnel, usedProxyID := o.resolveProxy(ctx, nil, proxyID)
	dir, cleanup, err := o.Dirs.Scratch()
	if err != nil {
		return nil, o.fail(ctx, 0, usedProxyID, err)
	}
	return o.start(ctx, 0, usedProxyID, dir, cleanup, fingerprint.Build(fingerprint.Config{}), tunnel)
}

func (o *Orchestrator) start(
	ctx context.Context,
	profileID int,
	proxyID *int,
	dir string,
	cleanup func(),
	fp fingerprint.Fingerprint,
	tunnel *proxy.Tunnel,
) (*Handle, error) {
	launchCtx := ctx
	if o.opts.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, o.opts.LaunchTimeout)
		defer cancel()
	}

	b, err := o.Launcher.Launch(launchCtx, browser.LaunchOptions{
		ProfileID:      profileID,
		UserDataDir:    dir,
		ExecutablePath: o.opts.ExecutablePath,
		Headless:       o.opts.Headless,
		Args:           browser.Args(fp, tunnel),
		Proxy:          tunnel,
		Fingerprint:    fp,
	})
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, o.fail(ctx, profileID, proxyID, err)
	}

	page, err := o.preparePages(launchCtx, b, fp, tunnel)
	if err != nil {
		_ = b.Close()
		if cleanup != nil {
			cleanup()
		}
		return nil, o.fail(ctx, profileID, proxyID, err)
	}

	now := time.Now().UTC()
	rec := &types.Session{
		ProfileID: profileID,
		ProxyID:   proxyID,
		Status:    types.SessionRunning,
		StartedAt: now,
		Meta:      map[string]any{"engine": b.Engine()},
	}
	if err := o.Sessions.CreateSession(context.WithoutCancel(ctx), rec); err != nil {
		_ = b.Close()
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("record session: %w", err)
	}

	h := &Handle{
		SessionID: rec.ID,
		ProfileID: profileID,
		Engine:    b.Engine(),
		Proxy:     tunnel,
		StartedAt: now,
		Browser:   b,
		page:      page,
		cleanup:   cleanup,
	}
	o.Manager.Add(h)

	o.logger.Info("session started",
		zap.Int("session_id", h.SessionID),
		zap.Int("profile_id", profileID),
		zap.String("engine", h.Engine),
		zap.Stringer("proxy", tunnelField{tunnel}),
	)
	return h, nil
}

// preparePages fingerprints every open page and returns the first one.
func (o *Orchestrator) preparePages(ctx context.Context, b browser.Browser, fp fingerprint.Fingerprint, tunnel *proxy.Tunnel) (browser.Page, error) {
	pages, err := b.Pages(ctx)
	if err != nil || len(pages) == 0 {
		page, err := b.NewPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		pages = []browser.Page{page}
	}

	for _, page := range pages {
		o.Injector.Apply(ctx, page, fp)
		if tunnel != nil && tunnel.SupportsPageAuth() {
			if err := page.Authenticate(ctx, tunnel.Username, tunnel.Password); err != nil {
				o.logger.Warn("proxy auth hook not installed",
					zap.Int("profile_id", fp.ProfileID),
					zap.Error(err),
				)
			}
		}
	}
	return pages[0], nil
}

// resolveProxy picks the explicit proxy, then the profile's proxy, then the
// fingerprint's library or manual proxy. Lookup problems downgrade to a
// launch without proxy.
func (o *Orchestrator) resolveProxy(ctx context.Context, profile *types.Profile, proxyID *int) (*proxy.Tunnel, *int) {
	id := proxyID
	var manual *fingerprint.ManualProxy
	if id == nil && profile != nil {
		switch {
		case profile.ProxyID != nil:
			id = profile.ProxyID
		case profile.Fingerprint.Proxy.LibraryID != nil:
			id = profile.Fingerprint.Proxy.LibraryID
		default:
			manual = profile.Fingerprint.Proxy.Manual
		}
	}

	var (
		tunnel *proxy.Tunnel
		err    error
	)
	switch {
	case id != nil:
		var rec *types.Proxy
		rec, err = o.Proxies.GetProxy(ctx, *id)
		if err == nil {
			tunnel, err = proxy.Resolve(rec, o.Sealer)
		}
	case manual != nil:
		tunnel, err = proxy.FromManual(manual)
	default:
		return nil, nil
	}

	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if id != nil {
			fields = append(fields, zap.Int("proxy_id", *id))
		}
		o.logger.Warn("proxy unavailable, launching without proxy", fields...)
		return nil, nil
	}

	if tunnel.HasCredentials() && !tunnel.SupportsPageAuth() {
		o.logger.Warn("credentialed socks5 proxy cannot authenticate per page",
			zap.String("proxy", tunnel.String()),
		)
	}
	return tunnel, id
}

// stopOthers closes every running session of the profile. Failures are
// logged and do not block the new launch.
func (o *Orchestrator) stopOthers(ctx context.Context, profileID int) {
	running, err := o.Sessions.ListSessions(ctx, types.SessionFilter{
		ProfileID: profileID,
		Status:    types.SessionRunning,
	})
	if err != nil {
		o.logger.Warn("failed to list running sessions", zap.Int("profile_id", profileID), zap.Error(err))
	}

	seen := make(map[int]bool, len(running))
	for _, rec := range running {
		seen[rec.ID] = true
		o.supersede(ctx, rec.ID, profileID)
	}
	for _, h := range o.Manager.ByProfile(profileID) {
		if !seen[h.SessionID] {
			o.supersede(ctx, h.SessionID, profileID)
		}
	}
}

func (o *Orchestrator) supersede(ctx context.Context, sessionID, profileID int) {
	if err := o.stop(ctx, sessionID, "superseded"); err != nil {
		o.logger.Warn("failed to stop previous session",
			zap.Int("session_id", sessionID),
			zap.Int("profile_id", profileID),
			zap.Error(err),
		)
		return
	}
	o.metrics.IncSuperseded()
}

// fail records a failed session and returns the launch error.
func (o *Orchestrator) fail(ctx context.Context, profileID int, proxyID *int, cause error) error {
	now := time.Now().UTC()
	rec := &types.Session{
		ProfileID: profileID,
		ProxyID:   proxyID,
		Status:    types.SessionFailed,
		StartedAt: now,
		StoppedAt: &now,
		Meta:      map[string]any{"error": cause.Error()},
	}
	if err := o.Sessions.CreateSession(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Error("failed to record failed session", zap.Int("profile_id", profileID), zap.Error(err))
	}
	o.logger.Error("session failed to start", zap.Int("profile_id", profileID), zap.Error(cause))
	return errs.Transient(cause, "Failed to start session")
}

// Close stops a session. Closing a stopped session is a no-op.
func (o *Orchestrator) Close(ctx context.Context, sessionID int) error {
	rec, err := o.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	unlock := o.lock(rec.ProfileID)
	defer unlock()
	return o.stop(ctx, sessionID, "")
}

// stop closes the live handle, if any, and marks the record stopped.
func (o *Orchestrator) stop(ctx context.Context, sessionID int, reason string) error {
	var closeErr error
	if h, ok := o.Manager.Remove(sessionID); ok {
		closeErr = h.Browser.Close()
		h.finish()
	}

	rec, err := o.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return errors.Join(closeErr, err)
	}
	if rec.Status == types.SessionRunning {
		now := time.Now().UTC()
		rec.Status = types.SessionStopped
		rec.StoppedAt = &now
		if reason != "" {
			if rec.Meta == nil {
				rec.Meta = map[string]any{}
			}
			rec.Meta["stopReason"] = reason
		}
		if err := o.Sessions.UpdateSession(context.WithoutCancel(ctx), rec); err != nil {
			return errors.Join(closeErr, err)
		}
	}

	if closeErr != nil {
		o.logger.Warn("browser close reported an error", zap.Int("session_id", sessionID), zap.Error(closeErr))
	}
	o.logger.Info("session stopped", zap.Int("session_id", sessionID), zap.Int("profile_id", rec.ProfileID))
	return nil
}

func (o *Orchestrator) disconnected(h *Handle) {
	ctx := context.Background()
	rec, err := o.Sessions.GetSession(ctx, h.SessionID)
	if err != nil || rec.Status != types.SessionRunning {
		return
	}
	now := time.Now().UTC()
	rec.Status = types.SessionStopped
	rec.StoppedAt = &now
	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	rec.Meta["stopReason"] = "disconnected"
	if err := o.Sessions.UpdateSession(ctx, rec); err != nil {
		o.logger.Warn("failed to mark disconnected session", zap.Int("session_id", h.SessionID), zap.Error(err))
	}
}

// Handle returns the live handle of a running session.
func (o *Orchestrator) Handle(sessionID int) (*Handle, error) {
	h, ok := o.Manager.Get(sessionID)
	if !ok {
		return nil, errs.NotFound("running session", sessionID)
	}
	return h, nil
}

// ListOpenPages returns the URL of every page in a running session.
func (o *Orchestrator) ListOpenPages(ctx context.Context, sessionID int) ([]string, error) {
	h, err := o.Handle(sessionID)
	if err != nil {
		return nil, err
	}
	pages, err := h.Browser.Pages(ctx)
	if err != nil {
		return nil, errs.Transient(err, "list pages of session %d", sessionID)
	}

	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		u, err := p.URL(ctx)
		if err != nil {
			o.logger.Debug("page url unavailable", zap.Int("session_id", sessionID), zap.Error(err))
			continue
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// Shutdown closes every live session concurrently. If ctx ends first it
// returns ctx's error and the remaining browsers keep closing in the
// background.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range o.Manager.IDs() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.stop(context.WithoutCancel(ctx), id, "shutdown"); err != nil {
				o.logger.Warn("failed to stop session on shutdown", zap.Int("session_id", id), zap.Error(err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.logger.Warn("sessions still closing at shutdown deadline")
		return ctx.Err()
	}
}

type tunnelField struct{ t *proxy.Tunnel }

func (f tunnelField) String() string {
	if f.t == nil {
		return "none"
	}
	return f.t.String()
}
