/*
Package workflow parses, validates and runs automation graphs.

A graph is a set of typed nodes joined by directed edges. Node behaviour is
the closed Action union (Start, End, Merge, OpenPage, ClosePage, Click,
WaitSelector, TypeText, Screenshot, Wait); the executor dispatches on it
with a type switch.

Documents arrive from editors as JSON or from files as YAML:

	nodes:
	  - {id: s, type: start}
	  - {id: open, type: openPage, config: {url: "https://example.com/{{uid}}"}}
	  - {id: e, type: end}
	edges:
	  - {source: s, target: open}
	  - {source: open, target: e}

Validate reports errors and warnings; only a graph without errors is
executable. The executor walks from the start node with a ready queue,
holding every node until all of its incoming branches have finished.
*/
package workflow
