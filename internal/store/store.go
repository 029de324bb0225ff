// Package store declares the persistence contracts consumed by the domain
// packages. Each interface is small so a component depends only on the
// records it touches; Store bundles them for wiring.
//
// Lookups of missing records return an error matching errs.ErrNotFound.
package store

import (
	"context"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
)

// Profiles persists profile records.
type Profiles interface {
	ProfileIDs(ctx context.Context) ([]int, error)
	CreateProfile(ctx context.Context, p *types.Profile) error
	GetProfile(ctx context.Context, id int) (*types.Profile, error)
	UpdateProfile(ctx context.Context, p *types.Profile) error
	DeleteProfile(ctx context.Context, id int) error
	UserAgentExists(ctx context.Context, ua string) (bool, error)
	MACExists(ctx context.Context, mac string) (bool, error)
}

// Proxies persists library proxies.
type Proxies interface {
	CreateProxy(ctx context.Context, p *types.Proxy) error
	GetProxy(ctx context.Context, id int) (*types.Proxy, error)
	ListProxies(ctx context.Context, activeOnly bool) ([]types.Proxy, error)
	// UpdateProxyStatus touches only the health fields; a nil checkedAt keeps
	// the previous timestamp.
	UpdateProxyStatus(ctx context.Context, id int, status types.ProxyStatus, checkedAt *time.Time, latencyMs *int64) error
}

// Sessions persists session records.
type Sessions interface {
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, id int) (*types.Session, error)
	UpdateSession(ctx context.Context, s *types.Session) error
	ListSessions(ctx context.Context, filter types.SessionFilter) ([]types.Session, error)
	DeleteSessionsByProfile(ctx context.Context, profileID int) error
}

// Workflows persists workflow graphs and their profile assignments.
type Workflows interface {
	CreateWorkflow(ctx context.Context, w *types.Workflow) error
	GetWorkflow(ctx context.Context, id int) (*types.Workflow, error)
	Assign(ctx context.Context, a types.Assignment) error
	ListAssignments(ctx context.Context, profileID int) ([]types.Assignment, error)
	DeleteAssignmentsByProfile(ctx context.Context, profileID int) error
}

// Jobs persists jobs and executions.
type Jobs interface {
	CreateJob(ctx context.Context, j *types.Job) error
	GetJob(ctx context.Context, id int) (*types.Job, error)
	UpdateJob(ctx context.Context, j *types.Job) error
	CreateExecution(ctx context.Context, e *types.Execution) error
	GetExecution(ctx context.Context, id int) (*types.Execution, error)
	UpdateExecution(ctx context.Context, e *types.Execution) error
	ListExecutions(ctx context.Context, jobID int) ([]types.Execution, error)
	// DeleteExecutionsByProfile returns the ids of the jobs that lost
	// executions.
	DeleteExecutionsByProfile(ctx context.Context, profileID int) ([]int, error)
}

// Presets persists reusable fingerprint presets.
type Presets interface {
	CreatePreset(ctx context.Context, p *fingerprint.Preset) error
	GetPreset(ctx context.Context, id int) (*fingerprint.Preset, error)
	ListPresets(ctx context.Context) ([]fingerprint.Preset, error)
}

// Store bundles every record family.
type Store interface {
	Profiles
	Proxies
	Sessions
	Workflows
	Jobs
	Presets
}
