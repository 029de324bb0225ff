package types

import "time"

// NodeDocument is a workflow node as stored and exchanged with editors.
// Config may also arrive nested under Data (Data.config or Data itself).
type NodeDocument struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Data   map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// EdgeDocument connects two nodes. Older editors wrote From/To instead of
// Source/Target.
type EdgeDocument struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	From   string `json:"from,omitempty" yaml:"from,omitempty"`
	To     string `json:"to,omitempty" yaml:"to,omitempty"`
}

// GraphDocument is the stored form of a workflow graph.
type GraphDocument struct {
	Nodes []NodeDocument `json:"nodes" yaml:"nodes"`
	Edges []EdgeDocument `json:"edges" yaml:"edges"`
}

// Workflow is a named automation graph.
type Workflow struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Graph     GraphDocument `json:"graph"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Assignment links a workflow to a profile.
type Assignment struct {
	WorkflowID int `json:"workflowId"`
	ProfileID  int `json:"profileId"`
}
