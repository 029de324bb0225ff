package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/session"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/workflow"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser/browsertest"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	svc      *Service
	store    *memory.Store
	launcher *browsertest.Launcher
	queue    *ChanQueue
	updater  *Updater
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	st := memory.New()
	injector, err := browser.NewInjector(logger)
	require.NoError(t, err)
	sealer, err := crypto.NewSealer("")
	require.NoError(t, err)

	l := browsertest.NewLauncher("rod")
	orch := session.New(session.Deps{
		Profiles: st,
		Proxies:  st,
		Sessions: st,
		Dirs:     browser.NewProfileDirs(t.TempDir(), logger),
		Launcher: browser.NewChain(logger, l),
		Injector: injector,
		Sealer:   sealer,
	}, session.Options{Headless: true}, logger)

	q := NewChanQueue(10)
	u := NewUpdater(st, logger)
	t.Cleanup(u.Stop)

	svc := NewService(Deps{
		Jobs:      st,
		Workflows: st,
		Profiles:  st,
		Sessions:  orch,
		Executor:  workflow.NewExecutor(nil, time.Second, logger),
		Queue:     q,
		Updater:   u,
	}, logger)
	return &harness{svc: svc, store: st, launcher: l, queue: q, updater: u}
}

func (h *harness) profile(t *testing.T, id int, account map[string]string) {
	t.Helper()
	require.NoError(t, h.store.CreateProfile(context.Background(), &types.Profile{
		ID:          id,
		Name:        "p",
		Fingerprint: fingerprint.Build(fingerprint.Config{ProfileID: id}),
		AccountInfo: account,
	}))
}

func (h *harness) workflow(t *testing.T, nodes []types.NodeDocument, edges ...[2]string) int {
	t.Helper()
	wf := &types.Workflow{Name: "w", Graph: types.GraphDocument{Nodes: nodes}}
	for _, e := range edges {
		wf.Graph.Edges = append(wf.Graph.Edges, types.EdgeDocument{Source: e[0], Target: e[1]})
	}
	require.NoError(t, h.store.CreateWorkflow(context.Background(), wf))
	return wf.ID
}

// drain runs every queued task on the calling goroutine.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for h.queue.Len() > 0 {
		task, err := h.queue.Pop(context.Background())
		require.NoError(t, err)
		h.svc.Run(context.Background(), task)
	}
}

func loginWorkflow(t *testing.T, h *harness) int {
	return h.workflow(t, []types.NodeDocument{
		{ID: "s", Type: "start"},
		{ID: "o", Type: "openPage", Config: map[string]any{"url": "https://m.test/{{uid}}"}},
		{ID: "u", Type: "typeText", Config: map[string]any{"selector": "#user", "text": "{{username}}"}},
		{ID: "c", Type: "click", Config: map[string]any{"selector": "#go"}},
		{ID: "e", Type: "end"},
	}, [2]string{"s", "o"}, [2]string{"o", "u"}, [2]string{"u", "c"}, [2]string{"c", "e"})
}

func TestExecuteWorkflowRejects(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, nil)
	ctx := context.Background()
	valid := loginWorkflow(t, h)
	cyclic := h.workflow(t, []types.NodeDocument{
		{ID: "start", Type: "start"},
		{ID: "A", Type: "click", Config: map[string]any{"selector": "#a"}},
		{ID: "B", Type: "click", Config: map[string]any{"selector": "#b"}},
	}, [2]string{"start", "A"}, [2]string{"A", "B"}, [2]string{"B", "A"})

	tests := []struct {
		name       string
		workflowID int
		profiles   []int
		check      func(error) bool
	}{
		{"no profiles", valid, nil, errs.IsValidation},
		{"bad profile id", valid, []int{0}, errs.IsValidation},
		{"unknown workflow", 999, []int{1}, errs.IsNotFound},
		{"unknown profile", valid, []int{1, 77}, errs.IsNotFound},
		{"cycle", cyclic, []int{1}, errs.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.ExecuteWorkflow(ctx, tt.workflowID, tt.profiles, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
	assert.Zero(t, h.queue.Len(), "nothing queued for rejected requests")
	assert.Empty(t, h.launcher.Launches())
}

func TestExecuteWorkflowEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, map[string]string{"uid": "1001", "username": "alice"})
	h.profile(t, 2, map[string]string{"uid": "1002", "username": "bob"})
	ctx := context.Background()
	wfID := loginWorkflow(t, h)

	acc, err := h.svc.ExecuteWorkflow(ctx, wfID, []int{1, 2, 1}, map[string]string{"username": "override"})
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, acc.Status)
	require.Len(t, acc.ExecutionIDs, 2, "duplicate profile ids collapse")
	assert.Equal(t, 2, h.queue.Len())

	h.drain(t)

	job, execs, err := h.svc.GetJob(ctx, acc.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)
	for _, e := range execs {
		assert.Equal(t, types.ExecutionCompleted, e.Status)
		assert.NotNil(t, e.SessionID)
		assert.NotNil(t, e.CompletedAt)
		assert.Equal(t, []string{"s", "o", "u", "c", "e"}, e.Result["visited"])
	}

	browsers := h.launcher.Browsers()
	require.Len(t, browsers, 2)
	for _, b := range browsers {
		assert.True(t, b.Closed(), "session closed after the run")
	}
	calls := browsers[0].FakePages()[0].Calls()
	assert.Contains(t, calls, "navigate https://m.test/1001")
	assert.Contains(t, calls, "type #user=override", "run vars win over account info")

	sessions, err := h.store.ListSessions(ctx, types.SessionFilter{ProfileID: 1})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, types.SessionStopped, sessions[0].Status)
}

func TestExecutionFailsWhenLaunchFails(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, nil)
	h.launcher.SetErr(errors.New("no chromium"))
	ctx := context.Background()

	acc, err := h.svc.ExecuteWorkflow(ctx, loginWorkflow(t, h), []int{1}, nil)
	require.NoError(t, err)
	h.drain(t)

	exec, err := h.svc.GetExecution(ctx, acc.ExecutionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.Error, "Failed to start session")
	assert.Nil(t, exec.SessionID)

	job, _, err := h.svc.GetJob(ctx, acc.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.Status)
}

func TestExecutionFailsOnAction(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, nil)
	h.launcher.PageFail = map[string]error{"click": errors.New("element not found")}
	ctx := context.Background()

	events, cancel := h.updater.Subscribe(16)
	defer cancel()

	acc, err := h.svc.ExecuteWorkflow(ctx, loginWorkflow(t, h), []int{1}, nil)
	require.NoError(t, err)
	h.drain(t)

	exec, err := h.svc.GetExecution(ctx, acc.ExecutionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.Error, "node c (click) failed: element not found")
	assert.Equal(t, []string{"s", "o", "u", "c"}, exec.Result["visited"])
	assert.True(t, h.launcher.Browsers()[0].Closed())

	var statuses []types.ExecutionStatus
	for len(events) > 0 {
		ev := <-events
		statuses = append(statuses, ev.Execution.Status)
	}
	assert.Equal(t, []types.ExecutionStatus{types.ExecutionRunning, types.ExecutionFailed}, statuses)
}

func TestExecuteWorkflowQueueFull(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 11; i++ {
		h.profile(t, i, nil)
	}
	ids := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	acc, err := h.svc.ExecuteWorkflow(context.Background(), loginWorkflow(t, h), ids, nil)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, acc.Status, "one execution already failed")

	last, err := h.svc.GetExecution(context.Background(), acc.ExecutionIDs[10])
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, last.Status)
	assert.Contains(t, last.Error, "queue full")
}

func TestStopFailsQueuedExecutions(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, nil)
	h.profile(t, 2, nil)
	ctx := context.Background()

	acc, err := h.svc.ExecuteWorkflow(ctx, loginWorkflow(t, h), []int{1, 2}, nil)
	require.NoError(t, err)

	pool := NewPool(1, h.queue, h.svc.Run, zap.NewNop()).WithDrop(h.svc.Abandon)
	require.NoError(t, pool.Stop(ctx))

	for _, id := range acc.ExecutionIDs {
		exec, err := h.svc.GetExecution(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.ExecutionFailed, exec.Status)
		assert.Equal(t, "shutdown", exec.Error)
		assert.Nil(t, exec.StartedAt)
	}
	job, _, err := h.svc.GetJob(ctx, acc.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Empty(t, h.launcher.Launches())
}

func TestRunWithCancelledContextAbandons(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, nil)

	acc, err := h.svc.ExecuteWorkflow(context.Background(), loginWorkflow(t, h), []int{1}, nil)
	require.NoError(t, err)
	task, err := h.queue.Pop(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.svc.Run(ctx, task)

	exec, err := h.svc.GetExecution(context.Background(), acc.ExecutionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, exec.Status)
	assert.Equal(t, "shutdown", exec.Error)
	assert.Empty(t, h.launcher.Launches())
}

func TestRunHandsBackForeignTasks(t *testing.T) {
	h := newHarness(t)
	h.profile(t, 1, nil)
	h.svc.Owner = "host-a:/data/a.json"
	ctx := context.Background()

	acc, err := h.svc.ExecuteWorkflow(ctx, loginWorkflow(t, h), []int{1}, nil)
	require.NoError(t, err)
	task, err := h.queue.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "host-a:/data/a.json", task.Owner)

	tests := []struct {
		name string
		run  func(context.Context, Task)
		ctx  func() context.Context
	}{
		{"run", h.svc.Run, context.Background},
		{"abandon", h.svc.Abandon, func() context.Context {
			c, cancel := context.WithCancel(context.Background())
			cancel()
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			foreign := task
			foreign.Owner = "host-b:/data/b.json"
			tt.run(tt.ctx(), foreign)

			require.Equal(t, 1, h.queue.Len(), "task goes back on the queue")
			back, err := h.queue.Pop(ctx)
			require.NoError(t, err)
			assert.Equal(t, "host-b:/data/b.json", back.Owner)

			exec, err := h.svc.GetExecution(ctx, acc.ExecutionIDs[0])
			require.NoError(t, err)
			assert.Equal(t, types.ExecutionPending, exec.Status, "local execution with the same id is untouched")
		})
	}
	assert.Empty(t, h.launcher.Launches())

	h.svc.Run(ctx, task)
	exec, err := h.svc.GetExecution(ctx, acc.ExecutionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionCompleted, exec.Status)
}

func TestVars(t *testing.T) {
	p := &types.Profile{ID: 5, AccountInfo: map[string]string{"uid": "1", "password": "a"}}
	got := Vars(p, map[string]string{"password": "b"})
	assert.Equal(t, map[string]string{"profileId": "5", "uid": "1", "password": "b"}, got)
}
