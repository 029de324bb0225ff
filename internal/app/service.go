package app

import (
	"context"
	"strings"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/job"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/profile"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/session"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/workflow"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
	"go.uber.org/zap"
)

// Deps are the services the facade delegates to.
type Deps struct {
	Store    store.Store
	Sealer   *crypto.Sealer
	Profiles *profile.Service
	Sessions *session.Orchestrator
	Checker  *proxy.Checker
	Jobs     *job.Service
	Updater  *job.Updater
}

// Service exposes every upward operation.
type Service struct {
	Deps
	logger *zap.Logger
}

// New creates the facade.
func New(deps Deps, logger *zap.Logger) *Service {
	return &Service{Deps: deps, logger: logger}
}

// SessionView describes a running session.
type SessionView struct {
	SessionID int       `json:"sessionId"`
	ProfileID int       `json:"profileId"`
	Engine    string    `json:"engine"`
	Proxy     string    `json:"proxy,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// Validation is the outcome of a workflow check.
type Validation struct {
	Valid  bool            `json:"valid"`
	Issues workflow.Issues `json:"issues"`
	Order  []string        `json:"order,omitempty"`
}

// LaunchSession starts a browser for a profile. A second launch for the same
// profile stops the first.
func (s *Service) LaunchSession(ctx context.Context, profileID int, proxyID *int) (*SessionView, error) {
	if profileID <= 0 {
		return nil, errs.Validation("invalid profile id %d", profileID)
	}
	h, err := s.Sessions.Launch(ctx, profileID, proxyID)
	if err != nil {
		return nil, err
	}
	return viewOf(h), nil
}

// LaunchScratchSession starts a throwaway browser with a default
// fingerprint. Its directory is removed when the session stops.
func (s *Service) LaunchScratchSession(ctx context.Context, proxyID *int) (*SessionView, error) {
	h, err := s.Sessions.LaunchScratch(ctx, proxyID)
	if err != nil {
		return nil, err
	}
	return viewOf(h), nil
}

func viewOf(h *session.Handle) *SessionView {
	view := &SessionView{
		SessionID: h.SessionID,
		ProfileID: h.ProfileID,
		Engine:    h.Engine,
		StartedAt: h.StartedAt,
	}
	if h.Proxy != nil {
		view.Proxy = h.Proxy.ServerArg()
	}
	return view
}

// CloseSession stops a session. Closing an already stopped session succeeds.
func (s *Service) CloseSession(ctx context.Context, sessionID int) error {
	return s.Sessions.Close(ctx, sessionID)
}

// GetOpenPageURLs lists the URLs open in a running session.
func (s *Service) GetOpenPageURLs(ctx context.Context, sessionID int) ([]string, error) {
	return s.Sessions.ListOpenPages(ctx, sessionID)
}

// ListSessions returns session records matching filter.
func (s *Service) ListSessions(ctx context.Context, filter types.SessionFilter) ([]types.Session, error) {
	return s.Store.ListSessions(ctx, filter)
}

// CheckProxy probes one library proxy and stores the verdict.
func (s *Service) CheckProxy(ctx context.Context, proxyID int) (proxy.Result, error) {
	return s.Checker.Check(ctx, proxyID)
}

// CheckAllProxies probes every active library proxy.
func (s *Service) CheckAllProxies(ctx context.Context) ([]proxy.Result, error) {
	return s.Checker.CheckAll(ctx)
}

// CreateProxy validates and stores a library proxy with its password sealed.
func (s *Service) CreateProxy(ctx context.Context, p types.Proxy) (*types.Proxy, error) {
	p.Host = strings.TrimSpace(p.Host)
	if p.Host == "" {
		return nil, errs.Validation("proxy host is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return nil, errs.Validation("invalid proxy port %d", p.Port)
	}
	if p.Type == "" {
		p.Type = types.ProxyHTTP
	}
	if !p.Type.Valid() {
		return nil, errs.Validation("unsupported proxy type %q", p.Type)
	}
	sealed, err := s.Sealer.Seal(p.Password)
	if err != nil {
		return nil, err
	}
	p.Password = sealed
	p.Status = types.ProxyUnknown
	p.LastChecked, p.LatencyMs = nil, nil
	if err := s.Store.CreateProxy(ctx, &p); err != nil {
		return nil, err
	}
	s.logger.Info("proxy created", zap.Int("proxy_id", p.ID), zap.String("type", string(p.Type)))
	p.Password = ""
	return &p, nil
}

// ValidateWorkflow checks a graph without storing it. Structural errors make
// it invalid; warnings alone do not.
func (s *Service) ValidateWorkflow(doc types.GraphDocument) Validation {
	g, issues := workflow.Check(doc)
	v := Validation{Valid: workflow.Executable(issues), Issues: issues}
	if v.Issues == nil {
		v.Issues = workflow.Issues{}
	}
	if v.Valid {
		v.Order, _ = workflow.TopologicalSort(g)
	}
	return v
}

// CanConnect reports whether the editor may add source -> target to doc.
func (s *Service) CanConnect(doc types.GraphDocument, source, target string) error {
	g, err := workflow.FromDocument(doc)
	if err != nil {
		return err
	}
	return workflow.CanConnect(g, source, target)
}

// CreateWorkflow stores a workflow after checking it can be parsed. Graphs
// with structural errors are stored so they can be edited; running them is
// refused.
func (s *Service) CreateWorkflow(ctx context.Context, w types.Workflow) (*types.Workflow, Validation, error) {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return nil, Validation{}, errs.Validation("workflow name is required")
	}
	if _, err := workflow.FromDocument(w.Graph); err != nil {
		return nil, Validation{}, err
	}
	if err := s.Store.CreateWorkflow(ctx, &w); err != nil {
		return nil, Validation{}, err
	}
	return &w, s.ValidateWorkflow(w.Graph), nil
}

// AssignWorkflow links a workflow to a profile.
func (s *Service) AssignWorkflow(ctx context.Context, workflowID, profileID int) error {
	if _, err := s.Store.GetWorkflow(ctx, workflowID); err != nil {
		return err
	}
	if _, err := s.Store.GetProfile(ctx, profileID); err != nil {
		return err
	}
	return s.Store.Assign(ctx, types.Assignment{WorkflowID: workflowID, ProfileID: profileID})
}

// ExecuteWorkflow queues one execution per profile and returns immediately.
func (s *Service) ExecuteWorkflow(ctx context.Context, workflowID int, profileIDs []int, vars map[string]string) (*job.Accepted, error) {
	return s.Jobs.ExecuteWorkflow(ctx, workflowID, profileIDs, vars)
}

// GetExecution returns one execution.
func (s *Service) GetExecution(ctx context.Context, executionID int) (*types.Execution, error) {
	return s.Jobs.GetExecution(ctx, executionID)
}

// GetJob returns a job and its executions.
func (s *Service) GetJob(ctx context.Context, jobID int) (*types.Job, []types.Execution, error) {
	return s.Jobs.GetJob(ctx, jobID)
}

// Subscribe streams execution updates until cancel is called.
func (s *Service) Subscribe(buffer int) (<-chan job.Event, func()) {
	return s.Updater.Subscribe(buffer)
}

// CreateProfile creates a profile with a fresh fingerprint.
func (s *Service) CreateProfile(ctx context.Context, in profile.Input) (*types.Profile, error) {
	return s.Profiles.Create(ctx, in)
}

// GetProfile returns one profile.
func (s *Service) GetProfile(ctx context.Context, profileID int) (*types.Profile, error) {
	return s.Profiles.Get(ctx, profileID)
}

// UpdateFingerprint re-synthesises a profile's fingerprint.
func (s *Service) UpdateFingerprint(ctx context.Context, profileID int, cfg fingerprint.Config) (*types.Profile, error) {
	return s.Profiles.UpdateFingerprint(ctx, profileID, cfg)
}

// DeleteProfile removes a profile and everything that depends on it.
func (s *Service) DeleteProfile(ctx context.Context, profileID int) error {
	return s.Profiles.Delete(ctx, profileID)
}

// ListPresets returns every fingerprint preset.
func (s *Service) ListPresets(ctx context.Context) ([]fingerprint.Preset, error) {
	return s.Store.ListPresets(ctx)
}

// Stats summarises live state for the health endpoint.
func (s *Service) Stats() map[string]any {
	return map[string]any{
		"sessions_active": s.Sessions.Manager.Len(),
	}
}
