// Package memory is an in-process implementation of store.Store.
//
// Records live in maps guarded by one RWMutex and are copied on the way in
// and out, so callers never share mutable state with the store. A snapshot
// of the whole dataset can be written to and restored from a JSON file.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store holds every record family in memory.
type Store struct {
	mu sync.RWMutex

	profiles    map[int]types.Profile
	proxies     map[int]types.Proxy
	sessions    map[int]types.Session
	workflows   map[int]types.Workflow
	assignments []types.Assignment
	jobs        map[int]types.Job
	executions  map[int]types.Execution
	presets     map[int]fingerprint.Preset

	seq sequences
	now func() time.Time
}

type sequences struct {
	Proxy     int `json:"proxy"`
	Session   int `json:"session"`
	Workflow  int `json:"workflow"`
	Job       int `json:"job"`
	Execution int `json:"execution"`
	Preset    int `json:"preset"`
}

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles:   make(map[int]types.Profile),
		proxies:    make(map[int]types.Proxy),
		sessions:   make(map[int]types.Session),
		workflows:  make(map[int]types.Workflow),
		jobs:       make(map[int]types.Job),
		executions: make(map[int]types.Execution),
		presets:    make(map[int]fingerprint.Preset),
		now:        time.Now,
	}
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

func (s *Store) ProfileIDs(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Collect(maps.Keys(s.profiles))
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) CreateProfile(_ context.Context, p *types.Profile) error {
	if p.ID <= 0 {
		return errs.Validation("profile id must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return errs.Validation("profile %d already exists", p.ID)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = cloneProfile(*p)
	return nil
}

func (s *Store) GetProfile(_ context.Context, id int) (*types.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, errs.NotFound("profile", id)
	}
	out := cloneProfile(p)
	return &out, nil
}

func (s *Store) UpdateProfile(_ context.Context, p *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.profiles[p.ID]
	if !ok {
		return errs.NotFound("profile", p.ID)
	}
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = s.now()
	s.profiles[p.ID] = cloneProfile(*p)
	return nil
}

func (s *Store) DeleteProfile(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return errs.NotFound("profile", id)
	}
	delete(s.profiles, id)
	return nil
}

func (s *Store) UserAgentExists(_ context.Context, ua string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.UserAgent == ua {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MACExists(_ context.Context, mac string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.MAC == mac {
			return true, nil
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Proxies
// ---------------------------------------------------------------------------

func (s *Store) CreateProxy(_ context.Context, p *types.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Proxy++
	p.ID = s.seq.Proxy
	p.CreatedAt = s.now()
	if p.Status == "" {
		p.Status = types.ProxyUnknown
	}
	s.proxies[p.ID] = *p
	return nil
}

func (s *Store) GetProxy(_ context.Context, id int) (*types.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proxies[id]
	if !ok {
		return nil, errs.NotFound("proxy", id)
	}
	return &p, nil
}

func (s *Store) ListProxies(_ context.Context, activeOnly bool) ([]types.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Proxy, 0, len(s.proxies))
	for _, p := range s.proxies {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b types.Proxy) int { return a.ID - b.ID })
	return out, nil
}

func (s *Store) UpdateProxyStatus(_ context.Context, id int, status types.ProxyStatus, checkedAt *time.Time, latencyMs *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proxies[id]
	if !ok {
		return errs.NotFound("proxy", id)
	}
	p.Status = status
	if checkedAt != nil {
		at := *checkedAt
		p.LastChecked = &at
		p.LatencyMs = latencyMs
	}
	s.proxies[id] = p
	return nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Session++
	sess.ID = s.seq.Session
	s.sessions[sess.ID] = cloneSession(*sess)
	return nil
}

func (s *Store) GetSession(_ context.Context, id int) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errs.NotFound("session", id)
	}
	out := cloneSession(sess)
	return &out, nil
}

func (s *Store) UpdateSession(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return errs.NotFound("session", sess.ID)
	}
	s.sessions[sess.ID] = cloneSession(*sess)
	return nil
}

func (s *Store) ListSessions(_ context.Context, filter types.SessionFilter) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Session
	for _, sess := range s.sessions {
		if filter.ProfileID != 0 && sess.ProfileID != filter.ProfileID {
			continue
		}
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	slices.SortFunc(out, func(a, b types.Session) int { return a.ID - b.ID })
	return out, nil
}

func (s *Store) DeleteSessionsByProfile(_ context.Context, profileID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.DeleteFunc(s.sessions, func(_ int, sess types.Session) bool {
		return sess.ProfileID == profileID
	})
	return nil
}

// ---------------------------------------------------------------------------
// Workflows
// ---------------------------------------------------------------------------

func (s *Store) CreateWorkflow(_ context.Context, w *types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Workflow++
	w.ID = s.seq.Workflow
	now := s.now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.workflows[w.ID] = *w
	return nil
}

func (s *Store) GetWorkflow(_ context.Context, id int) (*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, errs.NotFound("workflow", id)
	}
	return &w, nil
}

func (s *Store) Assign(_ context.Context, a types.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[a.WorkflowID]; !ok {
		return errs.NotFound("workflow", a.WorkflowID)
	}
	if !slices.Contains(s.assignments, a) {
		s.assignments = append(s.assignments, a)
	}
	return nil
}

func (s *Store) ListAssignments(_ context.Context, profileID int) ([]types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Assignment
	for _, a := range s.assignments {
		if a.ProfileID == profileID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) DeleteAssignmentsByProfile(_ context.Context, profileID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignments = slices.DeleteFunc(s.assignments, func(a types.Assignment) bool {
		return a.ProfileID == profileID
	})
	return nil
}

// ---------------------------------------------------------------------------
// Jobs and executions
// ---------------------------------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Job++
	j.ID = s.seq.Job
	now := s.now()
	j.CreatedAt, j.UpdatedAt = now, now
	s.jobs[j.ID] = cloneJob(*j)
	return nil
}

func (s *Store) GetJob(_ context.Context, id int) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, errs.NotFound("job", id)
	}
	out := cloneJob(j)
	return &out, nil
}

func (s *Store) UpdateJob(_ context.Context, j *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; !ok {
		return errs.NotFound("job", j.ID)
	}
	j.UpdatedAt = s.now()
	s.jobs[j.ID] = cloneJob(*j)
	return nil
}

func (s *Store) CreateExecution(_ context.Context, e *types.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Execution++
	e.ID = s.seq.Execution
	e.CreatedAt = s.now()
	s.executions[e.ID] = cloneExecution(*e)
	return nil
}

func (s *Store) GetExecution(_ context.Context, id int) (*types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, errs.NotFound("execution", id)
	}
	out := cloneExecution(e)
	return &out, nil
}

func (s *Store) UpdateExecution(_ context.Context, e *types.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[e.ID]; !ok {
		return errs.NotFound("execution", e.ID)
	}
	s.executions[e.ID] = cloneExecution(*e)
	return nil
}

func (s *Store) ListExecutions(_ context.Context, jobID int) ([]types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Execution
	for _, e := range s.executions {
		if e.JobID == jobID {
			out = append(out, cloneExecution(e))
		}
	}
	slices.SortFunc(out, func(a, b types.Execution) int { return a.ID - b.ID })
	return out, nil
}

func (s *Store) DeleteExecutionsByProfile(_ context.Context, profileID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []int
	maps.DeleteFunc(s.executions, func(_ int, e types.Execution) bool {
		if e.ProfileID != profileID {
			return false
		}
		if !slices.Contains(jobs, e.JobID) {
			jobs = append(jobs, e.JobID)
		}
		return true
	})
	slices.Sort(jobs)
	return jobs, nil
}

// ---------------------------------------------------------------------------
// Presets
// ---------------------------------------------------------------------------

func (s *Store) CreatePreset(_ context.Context, p *fingerprint.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.Preset++
	p.ID = s.seq.Preset
	s.presets[p.ID] = *p
	return nil
}

func (s *Store) GetPreset(_ context.Context, id int) (*fingerprint.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[id]
	if !ok {
		return nil, errs.NotFound("fingerprint preset", id)
	}
	return &p, nil
}

func (s *Store) ListPresets(_ context.Context) ([]fingerprint.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Collect(maps.Values(s.presets))
	slices.SortFunc(out, func(a, b fingerprint.Preset) int { return a.ID - b.ID })
	return out, nil
}

func cloneProfile(p types.Profile) types.Profile {
	p.AccountInfo = maps.Clone(p.AccountInfo)
	p.Fingerprint.Languages = slices.Clone(p.Fingerprint.Languages)
	return p
}

func cloneSession(s types.Session) types.Session {
	s.Meta = maps.Clone(s.Meta)
	return s
}

func cloneJob(j types.Job) types.Job {
	j.ProfileIDs = slices.Clone(j.ProfileIDs)
	j.Vars = maps.Clone(j.Vars)
	return j
}

func cloneExecution(e types.Execution) types.Execution {
	e.Result = maps.Clone(e.Result)
	return e
}
