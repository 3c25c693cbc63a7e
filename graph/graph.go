package graph

import (
	"context"
	"time"

	"chapterflow/observability"
)

// State is the shared pipeline state threaded through the whole graph.
// Nodes receive a snapshot of the current state and return a partial update
// that the executor merges back into the shared state.
type State map[string]any

// Clone returns a shallow copy of the state. The executor hands every node
// its own copy so concurrent branches never share a mutable map.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	copied := make(State, len(s))
	for key, value := range s {
		copied[key] = value
	}
	return copied
}

// NodeStatus represents the lifecycle status of a node during execution.
type NodeStatus string

const (
	// NodePending indicates the node has not started execution yet.
	NodePending NodeStatus = "pending"

	// NodeRunning indicates the node is currently executing.
	NodeRunning NodeStatus = "running"

	// NodeCompleted indicates the node has finished execution successfully.
	NodeCompleted NodeStatus = "completed"

	// NodeFailed indicates the node encountered an error during execution.
	NodeFailed NodeStatus = "failed"

	// NodeSkipped indicates the node was not activated for this run because
	// none of its incoming edges was selected by a routing decision.
	NodeSkipped NodeStatus = "skipped"
)

// NodeExecutor is the interface that every graph node must implement.
// It receives a snapshot of the shared state and returns a partial update.
//
// Implementations should:
//   - Read whatever they need from the state snapshot
//   - Return only the keys they produce; the executor merges the partial
//     update into the shared state (last-writer-wins per key, append for
//     keys registered via WithAppendKeys)
//   - Return an error to abort the entire run
//
// A nil partial update is valid and means "no state change".
type NodeExecutor interface {
	Execute(ctx context.Context, state State) (State, error)
}

// NodeExecutorFunc is an adapter that allows using an ordinary function as a
// NodeExecutor. If f is a function with the appropriate signature,
// NodeExecutorFunc(f) is a NodeExecutor that calls f.
type NodeExecutorFunc func(ctx context.Context, state State) (State, error)

// Execute calls the underlying function, satisfying the NodeExecutor interface.
func (executorFunc NodeExecutorFunc) Execute(ctx context.Context, state State) (State, error) {
	return executorFunc(ctx, state)
}

// Router selects, from the targets registered via AddConditionalEdges, the
// subset of node IDs to activate for the current run. It is evaluated exactly
// once per run, right after its source node completes, against a snapshot of
// the state at that moment. Names outside the registered target set are
// ignored with a warning.
type Router func(ctx context.Context, state State) []string

// node represents a single processing step in the graph.
// It is created internally by the Builder and is not directly instantiated
// by users.
type node struct {
	// id is the unique identifier for this node within the graph.
	id string

	// executor contains the processing logic for this node.
	executor NodeExecutor

	// timeout is the maximum duration allowed for this node's execution.
	// Zero means no timeout (the graph-level timeout still applies).
	timeout time.Duration
}

// edge represents a directed connection between two nodes in the graph.
type edge struct {
	// from is the ID of the source node.
	from string

	// to is the ID of the target node.
	to string

	// conditional marks edges created by AddConditionalEdges. A conditional
	// edge is active only when the source node's router selected the target
	// for the current run.
	conditional bool
}

// routerSpec pairs a Router with the set of target IDs it may select.
type routerSpec struct {
	router    Router
	targets   []string
	targetSet map[string]bool
}

// graphConfig holds the configuration for a Graph, populated by Options.
type graphConfig struct {
	// maxConcurrency limits the number of nodes that can execute in parallel.
	// Zero means unlimited concurrency.
	maxConcurrency int

	// executionTimeout is the maximum duration for the entire run.
	// Zero means no timeout.
	executionTimeout time.Duration

	// appendKeys lists the state keys whose partial-update values are
	// appended rather than overwritten during the merge step.
	appendKeys []string

	// store is the storage backend for shared state and node bookkeeping.
	// If nil, a MemoryStore is used.
	store Store

	// observer is the optional observability provider. If nil, the provider
	// is resolved from the context at execution time.
	observer observability.Provider
}

// Graph is a validated, executable directed acyclic graph of pipeline nodes.
// The full topology, including every conditional branch, is fixed at build
// time; per-run routing only decides which registered branches are activated.
//
// A Graph is created via Builder.Build(), which validates the structure
// (cycle detection, edge validation, router target validation) and computes
// the topological ordering.
//
// A Graph is safe for sequential reuse but not for concurrent Execute calls
// on the same instance, because node bookkeeping in the Store is reset per
// run. Create separate Graph instances (or Stores) for concurrent runs.
type Graph struct {
	// nodes maps node IDs to their definitions.
	nodes map[string]*node

	// edges contains all directed edges, conditional ones included.
	edges []*edge

	// incoming maps each node ID to its incoming edges, precomputed at build
	// time so per-run activation checks do not rescan the edge list.
	incoming map[string][]*edge

	// routers maps a source node ID to its routing decision.
	routers map[string]*routerSpec

	// levels contains node IDs grouped by topological level.
	// Level 0 nodes have no dependencies; level N nodes depend only on
	// nodes in levels < N.
	levels [][]string

	// topologicalOrder contains all node IDs in topological sort order.
	topologicalOrder []string

	// config holds the graph's execution configuration.
	config *graphConfig

	// observer holds the provider and root span for the current run.
	observer observerState
}
