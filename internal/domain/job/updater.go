package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidTransition is returned for updates the state machine forbids,
// such as any change to a finished execution.
var ErrInvalidTransition = errors.New("invalid execution transition")

// Update is a status change for one execution.
type Update struct {
	ExecutionID int
	Status      types.ExecutionStatus
	SessionID   *int
	Result      map[string]any
	Error       string
}

// Event is published after every applied update.
type Event struct {
	Execution types.Execution `json:"execution"`
	JobStatus types.JobStatus `json:"jobStatus"`
}

type request struct {
	update  Update
	// refresh, when set, recomputes that job instead of applying update.
	refresh int
	reply   chan error
}

// Updater is the only writer of execution and job status. Updates are
// applied one at a time on its own goroutine.
type Updater struct {
	jobs   store.Jobs
	logger *zap.Logger
	now    func() time.Time

	requests chan request
	done     chan struct{}
	stopOnce sync.Once

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewUpdater starts the update loop.
func NewUpdater(jobs store.Jobs, logger *zap.Logger) *Updater {
	u := &Updater{
		jobs:     jobs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		requests: make(chan request),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Event),
	}
	go u.loop()
	return u
}

// Apply submits an update and waits until it is stored.
func (u *Updater) Apply(ctx context.Context, up Update) error {
	return u.submit(ctx, request{update: up, reply: make(chan error, 1)})
}

// RefreshJob recomputes a job's status after executions were removed from
// it outside the state machine. A job left without executions is failed
// unless it had already finished.
func (u *Updater) RefreshJob(ctx context.Context, jobID int) error {
	return u.submit(ctx, request{refresh: jobID, reply: make(chan error, 1)})
}

func (u *Updater) submit(ctx context.Context, req request) error {
	select {
	case u.requests <- req:
	case <-u.done:
		return errors.New("updater stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Updater) loop() {
	for {
		select {
		case req := <-u.requests:
			if req.refresh != 0 {
				_, err := u.refreshJob(context.Background(), req.refresh)
				req.reply <- err
				continue
			}
			req.reply <- u.apply(req.update)
		case <-u.done:
			return
		}
	}
}

func (u *Updater) apply(up Update) error {
	ctx := context.Background()
	exec, err := u.jobs.GetExecution(ctx, up.ExecutionID)
	if err != nil {
		return err
	}
	if !exec.Status.CanTransition(up.Status) {
		u.logger.Warn("execution update rejected",
			zap.Int("execution_id", exec.ID),
			zap.String("from", string(exec.Status)),
			zap.String("to", string(up.Status)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exec.Status, up.Status)
	}

	now := u.now()
	exec.Status = up.Status
	switch up.Status {
	case types.ExecutionRunning:
		exec.StartedAt = &now
	case types.ExecutionCompleted, types.ExecutionFailed:
		exec.CompletedAt = &now
	}
	if up.SessionID != nil {
		exec.SessionID = up.SessionID
	}
	if up.Result != nil {
		exec.Result = up.Result
	}
	if up.Error != "" {
		exec.Error = up.Error
	}
	if err := u.jobs.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	jobStatus, err := u.refreshJob(ctx, exec.JobID)
	if err != nil {
		u.logger.Warn("job status not refreshed", zap.Int("job_id", exec.JobID), zap.Error(err))
	}
	u.publish(Event{Execution: *exec, JobStatus: jobStatus})
	return nil
}

func (u *Updater) refreshJob(ctx context.Context, jobID int) (types.JobStatus, error) {
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	execs, err := u.jobs.ListExecutions(ctx, jobID)
	if err != nil {
		return job.Status, err
	}
	status := DeriveStatus(execs)
	if len(execs) == 0 {
		status = types.JobFailed
		if job.Status == types.JobCompleted {
			status = job.Status
		}
	}
	if status != job.Status {
		job.Status = status
		if err := u.jobs.UpdateJob(ctx, job); err != nil {
			return status, err
		}
	}
	return status, nil
}

// DeriveStatus computes a job's status from its executions: queued while
// nothing has started, running while anything is unfinished, then
// completed or failed.
func DeriveStatus(execs []types.Execution) types.JobStatus {
	var pending, terminal, failed int
	for _, e := range execs {
		switch {
		case e.Status == types.ExecutionPending:
			pending++
		case e.Status.Terminal():
			terminal++
			if e.Status == types.ExecutionFailed {
				failed++
			}
		}
	}
	switch {
	case len(execs) == 0 || pending == len(execs):
		return types.JobQueued
	case terminal < len(execs):
		return types.JobRunning
	case failed > 0:
		return types.JobFailed
	default:
		return types.JobCompleted
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription. Slow subscribers miss events rather than block updates.
func (u *Updater) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	u.subMu.Lock()
	u.nextID++
	key := u.nextID
	u.subs[key] = ch
	u.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			u.subMu.Lock()
			if _, ok := u.subs[key]; ok {
				delete(u.subs, key)
				close(ch)
			}
			u.subMu.Unlock()
		})
	}
}

func (u *Updater) publish(ev Event) {
	u.subMu.Lock()
	defer u.subMu.Unlock()
	for key, ch := range u.subs {
		select {
		case ch <- ev:
		default:
			u.logger.Debug("subscriber lagging, event dropped",
				zap.Int("subscriber", key),
				zap.Int("execution_id", ev.Execution.ID),
			)
		}
	}
}

// Stop ends the loop and closes every subscription.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() {
		close(u.done)
		u.subMu.Lock()
		for key, ch := range u.subs {
			delete(u.subs, key)
			close(ch)
		}
		u.subMu.Unlock()
	})
}
