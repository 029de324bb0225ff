package workflow

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"go.uber.org/zap"
)

// Page is the browser surface actions run against.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// ScreenshotStore persists captured images and returns their paths.
type ScreenshotStore interface {
	Save(executionID int, data []byte) (string, error)
	SaveAs(name string, data []byte) (string, error)
}

// RunOptions carry per-execution inputs.
type RunOptions struct {
	ExecutionID int
	// Vars fill {{key}} placeholders in urls, selectors and text.
	Vars map[string]string
}

// Step records one dispatched node.
type Step struct {
	NodeID   string        `json:"nodeId"`
	Kind     Kind          `json:"type"`
	Duration time.Duration `json:"durationNs"`
	Error    string        `json:"error,omitempty"`
}

// Result summarises a run. It is filled in as far as the walk got, also
// when Run returns an error.
type Result struct {
	Visited     []string `json:"visited"`
	Steps       []Step   `json:"steps"`
	LastURL     string   `json:"lastUrl,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
}

// Map renders r for storage on an execution record.
func (r *Result) Map() map[string]any {
	m := map[string]any{"visited": r.Visited}
	if r.LastURL != "" {
		m["lastUrl"] = r.LastURL
	}
	if len(r.Screenshots) > 0 {
		m["screenshots"] = r.Screenshots
		m["screenshot"] = r.Screenshots[len(r.Screenshots)-1]
	}
	return m
}

// Executor walks graphs against a page.
type Executor struct {
	shots         ScreenshotStore
	actionTimeout time.Duration
	logger        *zap.Logger
	metrics       *monitoring.Metrics
}

// NewExecutor creates an executor. actionTimeout bounds each node; zero
// means no bound beyond the caller's context.
func NewExecutor(shots ScreenshotStore, actionTimeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{shots: shots, actionTimeout: actionTimeout, logger: logger}
}

// WithMetrics counts failed actions by node type.
func (x *Executor) WithMetrics(m *monitoring.Metrics) *Executor {
	x.metrics = m
	return x
}

// Run validates g and walks it from the start node.
//
// A node becomes ready once every one of its predecessors has completed,
// so a join never runs ahead of a slower branch. Ready nodes run one at a
// time in the order they became ready. The first failing action stops the
// walk.
func (x *Executor) Run(ctx context.Context, g *Graph, page Page, opts RunOptions) (*Result, error) {
	res := &Result{}
	if issues := Validate(g); !Executable(issues) {
		return res, issues
	}

	adj := g.adjacency()
	var start string
	for _, n := range g.Nodes {
		if _, ok := n.Action.(Start); ok {
			start = n.ID
			break
		}
	}

	done := make(map[string]bool, len(g.Nodes))
	queued := map[string]bool{start: true}
	queue := []string{start}
	endReached := false

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id := queue[0]
		queue = queue[1:]
		node := g.Nodes[adj.index[id]]

		began := time.Now()
		err := x.dispatch(ctx, node, page, opts, res)
		step := Step{NodeID: id, Kind: node.Action.Kind(), Duration: time.Since(began)}
		res.Visited = append(res.Visited, id)

		if err != nil {
			step.Error = err.Error()
			res.Steps = append(res.Steps, step)
			x.metrics.RecordActionError(string(node.Action.Kind()))
			x.logger.Warn("workflow action failed",
				zap.Int("execution_id", opts.ExecutionID),
				zap.String("node_id", id),
				zap.String("node_type", string(node.Action.Kind())),
				zap.Error(err),
			)
			return res, errs.Execution(err, "node %s (%s) failed", id, node.Action.Kind())
		}
		res.Steps = append(res.Steps, step)
		done[id] = true
		if _, ok := node.Action.(End); ok {
			endReached = true
		}

		for _, next := range adj.out[id] {
			if queued[next] || !allDone(adj.in[next], done) {
				continue
			}
			queued[next] = true
			queue = append(queue, next)
		}
	}

	if !endReached {
		return res, errs.Execution(nil, "workflow stopped before reaching an end node")
	}
	return res, nil
}

func allDone(ids []string, done map[string]bool) bool {
	for _, id := range ids {
		if !done[id] {
			return false
		}
	}
	return true
}

func (x *Executor) dispatch(ctx context.Context, node Node, page Page, opts RunOptions, res *Result) error {
	if x.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.actionTimeout)
		defer cancel()
	}
	x.logger.Debug("workflow action",
		zap.Int("execution_id", opts.ExecutionID),
		zap.String("node_id", node.ID),
		zap.String("node_type", string(node.Action.Kind())),
	)

	vars := opts.Vars
	switch a := node.Action.(type) {
	case Start, End, Merge:
		return nil

	case OpenPage:
		if err := page.Navigate(ctx, Substitute(a.URL, vars)); err != nil {
			return err
		}
		if u, err := page.URL(ctx); err == nil {
			res.LastURL = u
		}
		return nil

	case ClosePage:
		if u, err := page.URL(ctx); err == nil {
			res.LastURL = u
		}
		return page.Close(ctx)

	case Click:
		return page.Click(ctx, Substitute(a.Selector, vars))

	case WaitSelector:
		return page.WaitSelector(ctx, Substitute(a.Selector, vars), a.Timeout)

	case TypeText:
		text := Substitute(a.Text, vars)
		if a.Var != "" {
			text = vars[a.Var]
		}
		return page.Type(ctx, Substitute(a.Selector, vars), text)

	case Screenshot:
		return x.screenshot(ctx, page, a, opts, res)

	case Wait:
		t := time.NewTimer(a.Duration)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("unsupported node type %q", node.Action.Kind())
}

func (x *Executor) screenshot(ctx context.Context, page Page, a Screenshot, opts RunOptions, res *Result) error {
	data, err := page.Screenshot(ctx)
	if err != nil {
		return err
	}
	if u, err := page.URL(ctx); err == nil {
		res.LastURL = u
	}
	if x.shots == nil {
		return nil
	}

	var path string
	if name := Substitute(a.Path, opts.Vars); name != "" {
		path, err = x.shots.SaveAs(name, data)
	} else {
		path, err = x.shots.Save(opts.ExecutionID, data)
	}
	if err != nil {
		return fmt.Errorf("store screenshot: %w", err)
	}
	res.Screenshots = append(res.Screenshots, path)
	return nil
}

var placeholder = regexp.MustCompile(`\{\{\s*(?:vars\.)?([A-Za-z0-9_.-]+)\s*\}\}`)

// Substitute replaces {{key}} and {{vars.key}} with values from vars.
// Unknown keys become empty.
func Substitute(s string, vars map[string]string) string {
	if s == "" {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		return vars[placeholder.FindStringSubmatch(m)[1]]
	})
}
