package job

import (
	"context"
	"maps"
	"strconv"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/session"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/workflow"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/tracing"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/id"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
	"go.uber.org/zap"
)

// Sessions launches and closes profile browsers. *session.Orchestrator
// satisfies it.
type Sessions interface {
	Launch(ctx context.Context, profileID int, proxyID *int) (*session.Handle, error)
	Close(ctx context.Context, sessionID int) error
}

// handOffDelay spaces out retries of tasks that belong to another process.
const handOffDelay = 500 * time.Millisecond

// Deps are the collaborators of a Service. Tracer is optional. Owner names
// this process's store on a shared queue; empty means the queue is private.
type Deps struct {
	Jobs      store.Jobs
	Workflows store.Workflows
	Profiles  store.Profiles
	Sessions  Sessions
	Executor  *workflow.Executor
	Queue     Queue
	Updater   *Updater
	Tracer    *tracing.Tracer
	Owner     string
}

// Accepted is returned as soon as a run request is queued.
type Accepted struct {
	JobID        int             `json:"jobId"`
	ExecutionIDs []int           `json:"executionIds"`
	Status       types.JobStatus `json:"status"`
}

// Service creates jobs and runs their executions.
type Service struct {
	Deps
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewService wires a job service. Use Run as the pool handler.
func NewService(deps Deps, logger *zap.Logger) *Service {
	return &Service{Deps: deps, logger: logger}
}

// WithMetrics records queue depth and execution outcomes.
func (s *Service) WithMetrics(m *monitoring.Metrics) *Service {
	s.metrics = m
	return s
}

// ExecuteWorkflow creates one job with an execution per profile and queues
// them. It returns before any browser starts.
func (s *Service) ExecuteWorkflow(ctx context.Context, workflowID int, profileIDs []int, vars map[string]string) (*Accepted, error) {
	profileIDs = dedupe(profileIDs)
	if len(profileIDs) == 0 {
		return nil, errs.Validation("at least one profile id is required")
	}
	for _, pid := range profileIDs {
		if pid <= 0 {
			return nil, errs.Validation("invalid profile id %d", pid)
		}
	}

	wf, err := s.Workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if _, issues := workflow.Check(wf.Graph); !workflow.Executable(issues) {
		return nil, issues
	}
	for _, pid := range profileIDs {
		if _, err := s.Profiles.GetProfile(ctx, pid); err != nil {
			return nil, err
		}
	}

	job := &types.Job{
		WorkflowID: workflowID,
		ProfileIDs: profileIDs,
		Vars:       vars,
		Status:     types.JobQueued,
	}
	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	acc := &Accepted{JobID: job.ID, Status: job.Status}
	var tasks []Task
	for _, pid := range profileIDs {
		exec := &types.Execution{
			JobID:      job.ID,
			ProfileID:  pid,
			WorkflowID: workflowID,
			Status:     types.ExecutionPending,
		}
		if err := s.Jobs.CreateExecution(ctx, exec); err != nil {
			return nil, err
		}
		acc.ExecutionIDs = append(acc.ExecutionIDs, exec.ID)
		tasks = append(tasks, Task{
			ID:          id.NewTaskID(),
			JobID:       job.ID,
			ExecutionID: exec.ID,
			ProfileID:   pid,
			WorkflowID:  workflowID,
			Vars:        vars,
			EnqueuedAt:  time.Now().UTC(),
			Owner:       s.Owner,
		})
	}

	for _, t := range tasks {
		if err := s.Queue.Push(ctx, t); err != nil {
			s.logger.Warn("execution not queued", zap.Int("execution_id", t.ExecutionID), zap.Error(err))
			s.finish(ctx, Update{
				ExecutionID: t.ExecutionID,
				Status:      types.ExecutionFailed,
				Error:       "not queued: " + err.Error(),
			})
			continue
		}
		s.metrics.AddQueued(1)
	}

	if j, err := s.Jobs.GetJob(ctx, job.ID); err == nil {
		acc.Status = j.Status
	}
	s.logger.Info("workflow run accepted",
		zap.Int("job_id", job.ID),
		zap.Int("workflow_id", workflowID),
		zap.Ints("profile_ids", profileIDs),
	)
	return acc, nil
}

// Run executes one task end to end: launch, walk the graph, close the
// session and report. Tasks owned by another process go back on the queue
// untouched, and a cancelled ctx abandons the task.
func (s *Service) Run(ctx context.Context, t Task) {
	if s.foreign(t) {
		s.handOff(ctx, t)
		return
	}
	if ctx.Err() != nil {
		s.Abandon(ctx, t)
		return
	}
	s.metrics.AddQueued(-1)
	began := time.Now()

	if err := s.Updater.Apply(context.WithoutCancel(ctx), Update{ExecutionID: t.ExecutionID, Status: types.ExecutionRunning}); err != nil {
		s.logger.Warn("execution not started", zap.Int("execution_id", t.ExecutionID), zap.Error(err))
		return
	}

	var span *tracing.Span
	if s.Tracer != nil {
		span, ctx = s.Tracer.StartSpan(ctx, "execution")
		span.With(
			zap.Int("execution_id", t.ExecutionID),
			zap.Int("job_id", t.JobID),
			zap.Int("profile_id", t.ProfileID),
		)
	}

	sessionID, res, err := s.execute(ctx, t)

	if span != nil {
		s.Tracer.Finish(span, err)
	}

	up := Update{ExecutionID: t.ExecutionID, SessionID: sessionID, Status: types.ExecutionCompleted}
	if res != nil {
		up.Result = res.Map()
	}
	if err != nil {
		up.Status = types.ExecutionFailed
		up.Error = err.Error()
	}
	s.finish(ctx, up)
	s.metrics.RecordExecution(string(up.Status), time.Since(began))

	fields := []zap.Field{
		zap.Int("execution_id", t.ExecutionID),
		zap.Int("job_id", t.JobID),
		zap.Int("profile_id", t.ProfileID),
		zap.Duration("duration", time.Since(began)),
	}
	if err != nil {
		s.logger.Warn("execution failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("execution completed", fields...)
}

// Abandon fails a queued execution that will never run because the
// process is stopping. Foreign tasks are handed back instead.
func (s *Service) Abandon(ctx context.Context, t Task) {
	if s.foreign(t) {
		s.handOff(ctx, t)
		return
	}
	s.metrics.AddQueued(-1)
	s.finish(ctx, Update{
		ExecutionID: t.ExecutionID,
		Status:      types.ExecutionFailed,
		Error:       "shutdown",
	})
	s.logger.Info("execution abandoned", zap.Int("execution_id", t.ExecutionID), zap.Int("job_id", t.JobID))
}

func (s *Service) foreign(t Task) bool {
	return s.Owner != "" && t.Owner != "" && t.Owner != s.Owner
}

// handOff puts a task queued by another process back on the shared queue
// after a short pause, so the owner can pick it up.
func (s *Service) handOff(ctx context.Context, t Task) {
	select {
	case <-time.After(handOffDelay):
	case <-ctx.Done():
	}
	if err := s.Queue.Push(context.WithoutCancel(ctx), t); err != nil {
		s.logger.Error("foreign task lost",
			zap.Int("execution_id", t.ExecutionID),
			zap.String("owner", t.Owner),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("foreign task handed back", zap.Int("execution_id", t.ExecutionID), zap.String("owner", t.Owner))
}

func (s *Service) execute(ctx context.Context, t Task) (*int, *workflow.Result, error) {
	wf, err := s.Workflows.GetWorkflow(ctx, t.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	g, issues := workflow.Check(wf.Graph)
	if !workflow.Executable(issues) {
		return nil, nil, issues
	}
	profile, err := s.Profiles.GetProfile(ctx, t.ProfileID)
	if err != nil {
		return nil, nil, err
	}

	h, err := s.Sessions.Launch(ctx, t.ProfileID, nil)
	if err != nil {
		return nil, nil, err
	}
	sessionID := h.SessionID
	defer func() {
		if err := s.Sessions.Close(context.WithoutCancel(ctx), sessionID); err != nil {
			s.logger.Warn("session not closed after execution",
				zap.Int("execution_id", t.ExecutionID),
				zap.Int("session_id", sessionID),
				zap.Error(err),
			)
		}
	}()

	page, err := h.Page(ctx)
	if err != nil {
		return &sessionID, nil, errs.Transient(err, "open page")
	}
	res, err := s.Executor.Run(ctx, g, page, workflow.RunOptions{
		ExecutionID: t.ExecutionID,
		Vars:        Vars(profile, t.Vars),
	})
	return &sessionID, res, err
}

func (s *Service) finish(ctx context.Context, up Update) {
	if err := s.Updater.Apply(context.WithoutCancel(ctx), up); err != nil {
		s.logger.Error("execution status not stored",
			zap.Int("execution_id", up.ExecutionID),
			zap.String("status", string(up.Status)),
			zap.Error(err),
		)
	}
}

// GetExecution returns one execution.
func (s *Service) GetExecution(ctx context.Context, executionID int) (*types.Execution, error) {
	return s.Jobs.GetExecution(ctx, executionID)
}

// GetJob returns a job with its executions.
func (s *Service) GetJob(ctx context.Context, jobID int) (*types.Job, []types.Execution, error) {
	job, err := s.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	execs, err := s.Jobs.ListExecutions(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, execs, nil
}

// Vars merges a profile's account info under the run variables.
func Vars(p *types.Profile, run map[string]string) map[string]string {
	out := make(map[string]string, len(p.AccountInfo)+len(run)+1)
	out["profileId"] = strconv.Itoa(p.ID)
	maps.Copy(out, p.AccountInfo)
	maps.Copy(out, run)
	return out
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, v := range ids {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
