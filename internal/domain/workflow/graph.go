package workflow

import "time"

// Kind names a node type as it appears in stored graphs.
type Kind string

const (
	KindStart        Kind = "start"
	KindEnd          Kind = "end"
	KindMerge        Kind = "merge"
	KindOpenPage     Kind = "openPage"
	KindClosePage    Kind = "closePage"
	KindClick        Kind = "click"
	KindWaitSelector Kind = "waitSelector"
	KindTypeText     Kind = "typeText"
	KindScreenshot   Kind = "screenshot"
	KindWait         Kind = "wait"
)

// Defaults applied when a node omits its timing.
const (
	DefaultSelectorTimeout = 10 * time.Second
	DefaultWait            = time.Second
	// MaxNodeDuration caps any configured wait or timeout.
	MaxNodeDuration        = 24 * time.Hour
)

// Action is the closed set of node behaviours. Only the types in this
// file implement it.
type Action interface {
	Kind() Kind
	action()
}

type (
	Start     struct{}
	End       struct{}
	Merge     struct{}
	ClosePage struct{}

	OpenPage struct {
		URL string
	}

	Click struct {
		Selector string
	}

	WaitSelector struct {
		Selector string
		Timeout  time.Duration
	}

	// TypeText fills Selector with Text. When Var is set the text is the
	// value of that variable instead.
	TypeText struct {
		Selector string
		Text     string
		Var      string
	}

	// Screenshot captures the page. Path, when set, names the stored file.
	Screenshot struct {
		Path string
	}

	Wait struct {
		Duration time.Duration
	}
)

func (Start) Kind() Kind        { return KindStart }
func (End) Kind() Kind          { return KindEnd }
func (Merge) Kind() Kind        { return KindMerge }
func (ClosePage) Kind() Kind    { return KindClosePage }
func (OpenPage) Kind() Kind     { return KindOpenPage }
func (Click) Kind() Kind        { return KindClick }
func (WaitSelector) Kind() Kind { return KindWaitSelector }
func (TypeText) Kind() Kind     { return KindTypeText }
func (Screenshot) Kind() Kind   { return KindScreenshot }
func (Wait) Kind() Kind         { return KindWait }

func (Start) action()        {}
func (End) action()          {}
func (Merge) action()        {}
func (ClosePage) action()    {}
func (OpenPage) action()     {}
func (Click) action()        {}
func (WaitSelector) action() {}
func (TypeText) action()     {}
func (Screenshot) action()   {}
func (Wait) action()         {}

// Node is one vertex of a workflow graph.
type Node struct {
	ID     string
	Action Action
}

// Edge is a directed connection between two node ids.
type Edge struct {
	ID     string
	Source string
	Target string
}

// Graph is a parsed workflow. Node order is preserved from the document and
// breaks ties wherever the engine has a choice.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Node returns the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// adjacency indexes the edges whose endpoints both exist.
type adjacency struct {
	index map[string]int
	out   map[string][]string
	in    map[string][]string
}

func (g *Graph) adjacency() adjacency {
	adj := adjacency{
		index: make(map[string]int, len(g.Nodes)),
		out:   make(map[string][]string, len(g.Nodes)),
		in:    make(map[string][]string, len(g.Nodes)),
	}
	for i, n := range g.Nodes {
		if _, dup := adj.index[n.ID]; !dup {
			adj.index[n.ID] = i
		}
	}
	for _, e := range g.Edges {
		_, okS := adj.index[e.Source]
		_, okT := adj.index[e.Target]
		if !okS || !okT {
			continue
		}
		adj.out[e.Source] = append(adj.out[e.Source], e.Target)
		adj.in[e.Target] = append(adj.in[e.Target], e.Source)
	}
	return adj
}

// hasEdge reports whether source -> target is already present.
func (g *Graph) hasEdge(source, target string) bool {
	for _, e := range g.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}
