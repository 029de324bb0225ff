package workflow

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

// ParseJSON decodes an editor document.
func ParseJSON(data []byte) (types.GraphDocument, error) {
	var doc types.GraphDocument
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return doc, errs.Validation("invalid workflow json: %v", err)
	}
	return doc, nil
}

// ParseYAML decodes a hand-written workflow file.
func ParseYAML(data []byte) (types.GraphDocument, error) {
	var doc types.GraphDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, errs.Validation("invalid workflow yaml: %v", err)
	}
	return doc, nil
}

// FromDocument converts a stored document into a typed graph. It fails
// only on node types it does not know; structural problems are left to
// Validate.
func FromDocument(doc types.GraphDocument) (*Graph, error) {
	g := &Graph{
		Nodes: make([]Node, 0, len(doc.Nodes)),
		Edges: make([]Edge, 0, len(doc.Edges)),
	}
	for _, nd := range doc.Nodes {
		a, err := decodeAction(nd)
		if err != nil {
			return nil, err
		}
		g.Nodes = append(g.Nodes, Node{ID: nd.ID, Action: a})
	}
	for _, ed := range doc.Edges {
		e := Edge{ID: ed.ID, Source: ed.Source, Target: ed.Target}
		if e.Source == "" {
			e.Source = ed.From
		}
		if e.Target == "" {
			e.Target = ed.To
		}
		g.Edges = append(g.Edges, e)
	}
	return g, nil
}

// ToDocument converts g back to its stored form.
func ToDocument(g *Graph) types.GraphDocument {
	doc := types.GraphDocument{
		Nodes: make([]types.NodeDocument, 0, len(g.Nodes)),
		Edges: make([]types.EdgeDocument, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		doc.Nodes = append(doc.Nodes, types.NodeDocument{
			ID:     n.ID,
			Type:   string(n.Action.Kind()),
			Config: encodeConfig(n.Action),
		})
	}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, types.EdgeDocument{ID: e.ID, Source: e.Source, Target: e.Target})
	}
	return doc
}

// kindAliases maps normalised type names to kinds. Editors have used
// camelCase, snake_case and lowercase spellings.
var kindAliases = map[string]Kind{
	"start":        KindStart,
	"end":          KindEnd,
	"merge":        KindMerge,
	"openpage":     KindOpenPage,
	"open":         KindOpenPage,
	"closepage":    KindClosePage,
	"click":        KindClick,
	"waitselector": KindWaitSelector,
	"typetext":     KindTypeText,
	"type":         KindTypeText,
	"screenshot":   KindScreenshot,
	"wait":         KindWait,
}

func normalizeKind(s string) (Kind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.ReplaceAll(s, "_", ""))]
	return k, ok
}

func decodeAction(nd types.NodeDocument) (Action, error) {
	kind, ok := normalizeKind(nd.Type)
	if !ok {
		return nil, errs.Validation("node %q has unknown type %q", nd.ID, nd.Type)
	}
	cfg := nodeConfig(nd)

	switch kind {
	case KindStart:
		return Start{}, nil
	case KindEnd:
		return End{}, nil
	case KindMerge:
		return Merge{}, nil
	case KindClosePage:
		return ClosePage{}, nil
	case KindOpenPage:
		return OpenPage{URL: str(cfg, "url")}, nil
	case KindClick:
		return Click{Selector: str(cfg, "selector")}, nil
	case KindWaitSelector:
		timeout, err := millis(nd.ID, cfg, DefaultSelectorTimeout, "timeoutMs", "timeout")
		if err != nil {
			return nil, err
		}
		return WaitSelector{Selector: str(cfg, "selector"), Timeout: timeout}, nil
	case KindTypeText:
		return TypeText{
			Selector: str(cfg, "selector"),
			Text:     str(cfg, "text", "value"),
			Var:      str(cfg, "var"),
		}, nil
	case KindScreenshot:
		return Screenshot{Path: str(cfg, "path", "label")}, nil
	case KindWait:
		d, err := millis(nd.ID, cfg, DefaultWait, "ms", "duration", "timeoutMs")
		if err != nil {
			return nil, err
		}
		return Wait{Duration: d}, nil
	}
	return nil, fmt.Errorf("unhandled node kind %q", kind)
}

// nodeConfig finds the settings bag: config, then data.config, then data.
func nodeConfig(nd types.NodeDocument) map[string]any {
	if len(nd.Config) > 0 {
		return nd.Config
	}
	if nested, ok := nd.Data["config"].(map[string]any); ok {
		return nested
	}
	return nd.Data
}

func encodeConfig(a Action) map[string]any {
	switch a := a.(type) {
	case OpenPage:
		return map[string]any{"url": a.URL}
	case Click:
		return map[string]any{"selector": a.Selector}
	case WaitSelector:
		return map[string]any{"selector": a.Selector, "timeoutMs": a.Timeout.Milliseconds()}
	case TypeText:
		cfg := map[string]any{"selector": a.Selector, "text": a.Text}
		if a.Var != "" {
			cfg["var"] = a.Var
		}
		return cfg
	case Screenshot:
		if a.Path == "" {
			return nil
		}
		return map[string]any{"path": a.Path}
	case Wait:
		return map[string]any{"ms": a.Duration.Milliseconds()}
	}
	return nil
}

func str(cfg map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := cfg[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// millis reads the first positive numeric key as milliseconds. Values
// above MaxNodeDuration are rejected rather than left to overflow.
func millis(nodeID string, cfg map[string]any, def time.Duration, keys ...string) (time.Duration, error) {
	for _, k := range keys {
		n, ok := number(cfg[k])
		if !ok || math.IsNaN(n) || n <= 0 {
			continue
		}
		if n > float64(MaxNodeDuration/time.Millisecond) {
			return 0, errs.Validation("node %q: %s exceeds %s", nodeID, k, MaxNodeDuration)
		}
		return time.Duration(n * float64(time.Millisecond)), nil
	}
	return def, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
