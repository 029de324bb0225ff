package profile

import (
	"context"
	"strings"
	"sync"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
	"go.uber.org/zap"
)

// SessionCloser stops a running session. *session.Orchestrator satisfies it.
type SessionCloser interface {
	Close(ctx context.Context, sessionID int) error
}

// DirRemover deletes a profile's browser directory. *browser.ProfileDirs
// satisfies it.
type DirRemover interface {
	Remove(profileID int) error
}

// JobRefresher recomputes a job's status. *job.Updater satisfies it.
type JobRefresher interface {
	RefreshJob(ctx context.Context, jobID int) error
}

// Deps are the collaborators of a Service. Refresher is optional; without
// it jobs keep the status they had before a profile's executions went away.
type Deps struct {
	Profiles  store.Profiles
	Presets   store.Presets
	Sessions  store.Sessions
	Jobs      store.Jobs
	Workflows store.Workflows
	Closer    SessionCloser
	Dirs      DirRemover
	Refresher JobRefresher
}

// Input describes a new profile. Empty UserAgent and MAC are generated.
type Input struct {
	Name        string             `json:"name"`
	UserAgent   string             `json:"userAgent,omitempty"`
	MAC         string             `json:"macAddress,omitempty"`
	PresetID    *int               `json:"fingerprintPresetId,omitempty"`
	ProxyID     *int               `json:"proxyId,omitempty"`
	AccountInfo map[string]string  `json:"accountInfo,omitempty"`
	Fingerprint fingerprint.Config `json:"fingerprint"`
}

// Service manages profile records.
type Service struct {
	Deps
	uas    *fingerprint.UserAgentResolver
	macs   *fingerprint.MACResolver
	logger *zap.Logger

	// mu serialises id allocation and uniqueness checks.
	mu sync.Mutex
}

// NewService wires a profile service.
func NewService(deps Deps, logger *zap.Logger) *Service {
	return &Service{
		Deps:   deps,
		uas:    fingerprint.NewUserAgentResolver(deps.Profiles, logger),
		macs:   fingerprint.NewMACResolver(deps.Profiles, logger),
		logger: logger,
	}
}

// Create allocates an id, resolves identity fields and persists the profile.
func (s *Service) Create(ctx context.Context, in Input) (*types.Profile, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.Validation("profile name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.Profiles.ProfileIDs(ctx)
	if err != nil {
		return nil, err
	}
	pid := NextID(ids)

	cfg := in.Fingerprint
	cfg.ProfileID = pid
	cfg.Seed = 0
	if in.PresetID != nil {
		preset, err := s.Presets.GetPreset(ctx, *in.PresetID)
		if err != nil {
			return nil, err
		}
		cfg = fingerprint.ApplyPreset(cfg, *preset)
	}
	if in.ProxyID != nil && cfg.ProxyRefID == nil && cfg.ProxyManual == nil {
		cfg.ProxyRefID = in.ProxyID
	}

	ua, err := s.userAgent(ctx, in.UserAgent, cfg)
	if err != nil {
		return nil, err
	}
	mac, err := s.mac(ctx, in.MAC)
	if err != nil {
		return nil, err
	}
	cfg.UserAgent, cfg.MAC = ua, mac

	p := &types.Profile{
		ID:                  pid,
		Name:                name,
		UserAgent:           ua,
		Fingerprint:         fingerprint.Build(cfg),
		FingerprintPresetID: in.PresetID,
		MAC:                 mac,
		ProxyID:             in.ProxyID,
		AccountInfo:         in.AccountInfo,
	}
	if err := s.Profiles.CreateProfile(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("profile created",
		zap.Int("profile_id", pid),
		zap.String("os", p.Fingerprint.OS.Name),
		zap.Int("browser_version", p.Fingerprint.Browser.Version),
	)
	return p, nil
}

// UpdateFingerprint re-synthesises a profile's fingerprint from cfg. The
// seed is kept so noise patterns stay stable; the user agent and MAC are
// kept unless cfg supplies new ones.
func (s *Service) UpdateFingerprint(ctx context.Context, profileID int, cfg fingerprint.Config) (*types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	cfg.ProfileID = p.ID
	cfg.Seed = p.Fingerprint.Seed
	if p.FingerprintPresetID != nil {
		preset, err := s.Presets.GetPreset(ctx, *p.FingerprintPresetID)
		if err != nil {
			return nil, err
		}
		cfg = fingerprint.ApplyPreset(cfg, *preset)
	}
	if cfg.ProxyRefID == nil && cfg.ProxyManual == nil {
		cfg.ProxyRefID = p.Fingerprint.Proxy.LibraryID
		cfg.ProxyManual = p.Fingerprint.Proxy.Manual
	}

	ua := p.UserAgent
	if cfg.UserAgent != "" && cfg.UserAgent != p.UserAgent {
		if ua, err = s.userAgent(ctx, cfg.UserAgent, cfg); err != nil {
			return nil, err
		}
	}
	mac := p.MAC
	if cfg.MAC != "" && !strings.EqualFold(cfg.MAC, p.MAC) {
		if mac, err = s.mac(ctx, cfg.MAC); err != nil {
			return nil, err
		}
	}
	cfg.UserAgent, cfg.MAC = ua, mac

	p.UserAgent = ua
	p.MAC = mac
	p.Fingerprint = fingerprint.Build(cfg)
	if err := s.Profiles.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile fingerprint updated", zap.Int("profile_id", p.ID))
	return p, nil
}

// Delete stops the profile's running sessions, removes its directory and
// every dependent record, then the profile itself.
func (s *Service) Delete(ctx context.Context, profileID int) error {
	if _, err := s.Profiles.GetProfile(ctx, profileID); err != nil {
		return err
	}

	running, err := s.Sessions.ListSessions(ctx, types.SessionFilter{
		ProfileID: profileID,
		Status:    types.SessionRunning,
	})
	if err != nil {
		return err
	}
	for _, sess := range running {
		if err := s.Closer.Close(ctx, sess.ID); err != nil {
			s.logger.Warn("session not closed before profile delete",
				zap.Int("profile_id", profileID),
				zap.Int("session_id", sess.ID),
				zap.Error(err),
			)
		}
	}

	if err := s.Dirs.Remove(profileID); err != nil {
		s.logger.Warn("profile directory not removed", zap.Int("profile_id", profileID), zap.Error(err))
	}

	if err := s.Sessions.DeleteSessionsByProfile(ctx, profileID); err != nil {
		return err
	}
	jobIDs, err := s.Jobs.DeleteExecutionsByProfile(ctx, profileID)
	if err != nil {
		return err
	}
	if s.Refresher != nil {
		for _, id := range jobIDs {
			if err := s.Refresher.RefreshJob(ctx, id); err != nil {
				s.logger.Warn("job status not refreshed", zap.Int("job_id", id), zap.Error(err))
			}
		}
	}
	if err := s.Workflows.DeleteAssignmentsByProfile(ctx, profileID); err != nil {
		return err
	}
	if err := s.Profiles.DeleteProfile(ctx, profileID); err != nil {
		return err
	}

	s.logger.Info("profile deleted",
		zap.Int("profile_id", profileID),
		zap.Int("sessions_closed", len(running)),
		zap.Ints("jobs_refreshed", jobIDs),
	)
	return nil
}

// Get returns one profile.
func (s *Service) Get(ctx context.Context, profileID int) (*types.Profile, error) {
	return s.Profiles.GetProfile(ctx, profileID)
}

func (s *Service) userAgent(ctx context.Context, supplied string, cfg fingerprint.Config) (string, error) {
	if supplied == "" {
		return s.uas.Resolve(ctx, fingerprint.Hints{
			OSName:         cfg.OSName,
			Arch:           cfg.OSArch,
			BrowserVersion: cfg.BrowserVersion,
		})
	}
	if strings.TrimSpace(supplied) == "" {
		return "", errs.Validation("user agent must not be blank")
	}
	taken, err := s.Profiles.UserAgentExists(ctx, supplied)
	if err != nil {
		return "", err
	}
	if taken {
		return "", errs.Validation("user agent already used by another profile")
	}
	return supplied, nil
}

func (s *Service) mac(ctx context.Context, supplied string) (string, error) {
	if supplied == "" {
		return s.macs.Resolve(ctx)
	}
	if !fingerprint.ValidMAC(supplied) {
		return "", errs.Validation("invalid mac address %q", supplied)
	}
	supplied = strings.ToLower(supplied)
	taken, err := s.Profiles.MACExists(ctx, supplied)
	if err != nil {
		return "", err
	}
	if taken {
		return "", errs.Validation("mac address %s already used by another profile", supplied)
	}
	return supplied, nil
}

// NextID returns the smallest positive integer missing from the sorted ids.
func NextID(sorted []int) int {
	next := 1
	for _, v := range sorted {
		if v < next {
			continue
		}
		if v > next {
			break
		}
		next++
	}
	return next
}
