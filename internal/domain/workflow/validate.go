package workflow

import (
	"strings"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
)

// Severity grades an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding of Validate.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"nodeId,omitempty"`
	Message  string   `json:"message"`
}

// Issues is returned as an error when a graph is not executable. It
// matches errs.ErrValidation.
type Issues []Issue

func (is Issues) Error() string {
	var msgs []string
	for _, i := range is {
		if i.Severity == SeverityError {
			msgs = append(msgs, i.Message)
		}
	}
	if len(msgs) == 0 {
		return "workflow has warnings"
	}
	return "invalid workflow: " + strings.Join(msgs, "; ")
}

func (is Issues) Is(target error) bool { return target == errs.ErrValidation }

// Executable reports whether issues contain no error.
func Executable(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Check parses doc and validates it. An unknown node type is reported as
// an issue and yields a nil graph.
func Check(doc types.GraphDocument) (*Graph, Issues) {
	g, err := FromDocument(doc)
	if err != nil {
		return nil, Issues{{Severity: SeverityError, Message: err.Error()}}
	}
	return g, Validate(g)
}

// Validate reports every structural problem of g.
func Validate(g *Graph) Issues {
	var issues Issues
	errorf := func(nodeID, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, NodeID: nodeID, Message: msg})
	}
	warnf := func(nodeID, msg string) {
		issues = append(issues, Issue{Severity: SeverityWarning, NodeID: nodeID, Message: msg})
	}

	if len(g.Nodes) == 0 {
		errorf("", "workflow has no nodes")
		return issues
	}

	seen := make(map[string]bool, len(g.Nodes))
	var starts, ends []string
	for _, n := range g.Nodes {
		if n.ID == "" {
			errorf("", "node without id")
			continue
		}
		if seen[n.ID] {
			errorf(n.ID, "duplicate node id "+n.ID)
		}
		seen[n.ID] = true

		switch a := n.Action.(type) {
		case Start:
			starts = append(starts, n.ID)
		case End:
			ends = append(ends, n.ID)
		case OpenPage:
			if a.URL == "" {
				errorf(n.ID, "openPage node "+n.ID+" has no url")
			}
		case Click:
			if a.Selector == "" {
				errorf(n.ID, "click node "+n.ID+" has no selector")
			}
		case WaitSelector:
			if a.Selector == "" {
				errorf(n.ID, "waitSelector node "+n.ID+" has no selector")
			}
		case TypeText:
			if a.Selector == "" {
				errorf(n.ID, "typeText node "+n.ID+" has no selector")
			}
		}
	}

	switch len(starts) {
	case 0:
		errorf("", "workflow must have a start node")
	case 1:
	default:
		for _, id := range starts[1:] {
			errorf(id, "workflow must have exactly one start node")
		}
	}
	if len(ends) == 0 {
		errorf("", "workflow must have at least one end node")
	}

	for _, e := range g.Edges {
		if !seen[e.Source] {
			errorf(e.Source, "edge references unknown source node "+e.Source)
		}
		if !seen[e.Target] {
			errorf(e.Target, "edge references unknown target node "+e.Target)
		}
	}

	adj := g.adjacency()
	for _, n := range g.Nodes {
		switch n.Action.(type) {
		case Start:
			if len(adj.in[n.ID]) > 0 {
				errorf(n.ID, "start node cannot have incoming edges")
			}
		case End:
			if len(adj.out[n.ID]) > 0 {
				errorf(n.ID, "end node cannot have outgoing edges")
			}
			if len(adj.in[n.ID]) == 0 {
				errorf(n.ID, "node "+n.ID+" is orphaned (no incoming edge)")
			}
		default:
			if len(adj.in[n.ID]) == 0 {
				errorf(n.ID, "node "+n.ID+" is orphaned (no incoming edge)")
			}
		}
	}

	if id, ok := findCycle(g, adj); ok {
		errorf(id, "workflow contains a cycle at node "+id)
	}

	if len(starts) == 1 {
		reach := reachable(starts[0], adj)
		endReached := false
		for _, n := range g.Nodes {
			if !reach[n.ID] && len(adj.in[n.ID]) > 0 {
				warnf(n.ID, "node "+n.ID+" is not reachable from start")
			}
			if _, isEnd := n.Action.(End); isEnd && reach[n.ID] {
				endReached = true
			}
		}
		if len(ends) > 0 && !endReached {
			warnf("", "no end node is reachable from start")
		}
	}
	return issues
}

// findCycle runs a three-colour DFS from every unvisited node and returns
// the node closing the first back edge.
func findCycle(g *Graph, adj adjacency) (string, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.Nodes))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		color[id] = gray
		for _, next := range adj.out[id] {
			switch color[next] {
			case gray:
				return next, true
			case white:
				if at, ok := visit(next); ok {
					return at, true
				}
			}
		}
		color[id] = black
		return "", false
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white {
			if at, ok := visit(n.ID); ok {
				return at, true
			}
		}
	}
	return "", false
}

func reachable(from string, adj adjacency) map[string]bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj.out[id] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// CanConnect reports whether an editor may add source -> target.
func CanConnect(g *Graph, source, target string) error {
	if source == target {
		return errs.Validation("a node cannot connect to itself")
	}
	src, ok := g.Node(source)
	if !ok {
		return errs.NotFound("node", source)
	}
	dst, ok := g.Node(target)
	if !ok {
		return errs.NotFound("node", target)
	}
	if _, isEnd := src.Action.(End); isEnd {
		return errs.Validation("end node %s cannot have outgoing edges", source)
	}
	if _, isStart := dst.Action.(Start); isStart {
		return errs.Validation("start node %s cannot have incoming edges", target)
	}
	if g.hasEdge(source, target) {
		return errs.Validation("edge %s -> %s already exists", source, target)
	}
	return nil
}

// TopologicalSort orders node ids with Kahn's algorithm, breaking ties by
// document order. ok is false when a cycle prevents a full ordering.
func TopologicalSort(g *Graph) (order []string, ok bool) {
	adj := g.adjacency()
	indegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = len(adj.in[n.ID])
	}

	var queue []string
	for _, n := range g.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj.out[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order, len(order) == len(adj.index)
}
