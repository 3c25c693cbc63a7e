package graph

import (
	"errors"
	"fmt"
	"sort"
)

// Builder constructs a validated Graph using a fluent API. Nodes and edges
// are added incrementally, and Build() performs structural validation
// including cycle detection via Kahn's algorithm.
//
// The builder enforces the following constraints:
//   - Node IDs must be unique
//   - Edge endpoints must reference existing nodes
//   - At most one routing decision per source node
//   - Router targets must be registered nodes
//   - The graph must be acyclic (DAG)
//
// Example:
//
//	pipeline, err := graph.NewBuilder(graph.WithAppendKeys("chapter_results")).
//	    AddNode("load", loadNode).
//	    AddNode("fan_in", fanInNode).
//	    AddConditionalEdges("load", routeChapters, branchNames).
//	    AddEdge(branchNames[0], "fan_in").
//	    Build()
type Builder struct {
	// config holds the graph-level configuration populated from Options.
	config *graphConfig

	// nodes stores all registered nodes keyed by their ID.
	nodes map[string]*node

	// edges stores all registered directed edges.
	edges []*edge

	// routers stores the routing decision per source node.
	routers map[string]*routerSpec

	// nodeOrder preserves the insertion order of nodes for deterministic
	// level ordering.
	nodeOrder []string

	// buildErrors accumulates validation errors encountered while adding
	// nodes and edges; they are reported when Build() is called.
	buildErrors []error
}

// NewBuilder creates a new Builder. Graph-level options (WithMaxConcurrency,
// WithExecutionTimeout, WithAppendKeys, WithStore, WithObserver) are applied
// here; node options are applied via AddNode.
func NewBuilder(opts ...Option) *Builder {
	config := &graphConfig{}
	for _, opt := range opts {
		opt(config)
	}

	return &Builder{
		config:      config,
		nodes:       make(map[string]*node),
		edges:       make([]*edge, 0),
		routers:     make(map[string]*routerSpec),
		nodeOrder:   make([]string, 0),
		buildErrors: make([]error, 0),
	}
}

// AddNode registers a processing node with the given unique ID and executor.
//
// Returns the builder for method chaining. If a node with the same ID already
// exists, a build error is recorded and reported at Build() time.
func (builder *Builder) AddNode(nodeID string, executor NodeExecutor, opts ...NodeOption) *Builder {
	if nodeID == "" {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node ID must not be empty"))
		return builder
	}

	if executor == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("executor must not be nil for node %q", nodeID))
		return builder
	}

	if _, exists := builder.nodes[nodeID]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("duplicate node ID %q", nodeID))
		return builder
	}

	graphNode := &node{
		id:       nodeID,
		executor: executor,
	}

	for _, opt := range opts {
		opt(graphNode)
	}

	builder.nodes[nodeID] = graphNode
	builder.nodeOrder = append(builder.nodeOrder, nodeID)

	return builder
}

// AddEdge creates an unconditional directed edge from one node to another,
// indicating that the source must complete before the target can execute.
//
// Returns the builder for method chaining.
func (builder *Builder) AddEdge(from, to string) *Builder {
	if from == "" || to == "" {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("edge endpoints must not be empty (from=%q, to=%q)", from, to))
		return builder
	}

	if from == to {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("self-loop detected: node %q cannot have an edge to itself", from))
		return builder
	}

	builder.edges = append(builder.edges, &edge{from: from, to: to})

	return builder
}

// AddConditionalEdges registers a routing decision on the source node. One
// conditional edge is created from the source to every target; the full
// branch topology is therefore fixed at build time. At run time the router
// is evaluated once, right after the source completes, and only the selected
// targets are activated; the rest are skipped for that run.
//
// Returns the builder for method chaining. A source node may carry at most
// one routing decision.
func (builder *Builder) AddConditionalEdges(from string, router Router, targets []string) *Builder {
	if from == "" {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("conditional edge source must not be empty"))
		return builder
	}

	if router == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("router must not be nil for node %q", from))
		return builder
	}

	if len(targets) == 0 {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("conditional edges from %q require at least one target", from))
		return builder
	}

	if _, exists := builder.routers[from]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node %q already has a routing decision", from))
		return builder
	}

	targetSet := make(map[string]bool, len(targets))
	for _, target := range targets {
		if target == from {
			builder.buildErrors = append(builder.buildErrors, fmt.Errorf("self-loop detected: node %q cannot route to itself", from))
			return builder
		}
		if targetSet[target] {
			builder.buildErrors = append(builder.buildErrors, fmt.Errorf("duplicate router target %q from node %q", target, from))
			return builder
		}
		targetSet[target] = true
		builder.edges = append(builder.edges, &edge{from: from, to: target, conditional: true})
	}

	builder.routers[from] = &routerSpec{
		router:    router,
		targets:   append([]string(nil), targets...),
		targetSet: targetSet,
	}

	return builder
}

// Build validates the graph structure and produces an executable Graph.
// It performs the following validations:
//
//  1. No accumulated build errors from AddNode/AddEdge/AddConditionalEdges
//  2. At least one node exists
//  3. All edge endpoints reference existing nodes
//  4. No duplicate edges
//  5. The graph is acyclic (validated via Kahn's algorithm)
//
// On success, it computes the topological ordering and level assignment.
func (builder *Builder) Build() (*Graph, error) {
	if len(builder.buildErrors) > 0 {
		return nil, fmt.Errorf("graph build errors: %w", errors.Join(builder.buildErrors...))
	}

	if len(builder.nodes) == 0 {
		return nil, fmt.Errorf("graph must contain at least one node")
	}

	if err := builder.validateEdges(); err != nil {
		return nil, err
	}

	inDegree, adjacency := builder.buildAdjacency()

	topologicalOrder, levels, err := kahnTopologicalSort(inDegree, adjacency, builder.nodeOrder)
	if err != nil {
		return nil, err
	}

	// Use a default MemoryStore carrying the configured append keys if no
	// store was supplied.
	if builder.config.store == nil {
		builder.config.store = NewMemoryStore(nil, builder.config.appendKeys...)
	}

	return &Graph{
		nodes:            builder.nodes,
		edges:            builder.edges,
		incoming:         builder.buildIncoming(),
		routers:          builder.routers,
		levels:           levels,
		topologicalOrder: topologicalOrder,
		config:           builder.config,
	}, nil
}

// validateEdges checks that all edge endpoints reference existing nodes
// and that there are no duplicate edges.
func (builder *Builder) validateEdges() error {
	edgeSet := make(map[string]bool)

	for _, graphEdge := range builder.edges {
		if _, exists := builder.nodes[graphEdge.from]; !exists {
			return fmt.Errorf("edge references non-existent source node %q", graphEdge.from)
		}
		if _, exists := builder.nodes[graphEdge.to]; !exists {
			return fmt.Errorf("edge references non-existent target node %q", graphEdge.to)
		}

		edgeKey := graphEdge.from + "->" + graphEdge.to
		if edgeSet[edgeKey] {
			return fmt.Errorf("duplicate edge from %q to %q", graphEdge.from, graphEdge.to)
		}
		edgeSet[edgeKey] = true
	}

	return nil
}

// buildAdjacency constructs the in-degree map and adjacency list from the
// registered nodes and edges. Every node starts with in-degree 0.
func (builder *Builder) buildAdjacency() (map[string]int, map[string][]string) {
	inDegree := make(map[string]int, len(builder.nodes))
	adjacency := make(map[string][]string, len(builder.nodes))

	for nodeID := range builder.nodes {
		inDegree[nodeID] = 0
		adjacency[nodeID] = make([]string, 0)
	}

	for _, graphEdge := range builder.edges {
		adjacency[graphEdge.from] = append(adjacency[graphEdge.from], graphEdge.to)
		inDegree[graphEdge.to]++
	}

	return inDegree, adjacency
}

// buildIncoming groups edges by their target node.
func (builder *Builder) buildIncoming() map[string][]*edge {
	incoming := make(map[string][]*edge, len(builder.nodes))
	for _, graphEdge := range builder.edges {
		incoming[graphEdge.to] = append(incoming[graphEdge.to], graphEdge)
	}
	return incoming
}

// kahnTopologicalSort performs Kahn's algorithm for topological sorting.
// It simultaneously detects cycles and computes topological levels.
//
// Returns:
//   - topologicalOrder: all node IDs sorted in topological order
//   - levels: node IDs grouped by their topological level (level 0 = roots)
//   - error: if a cycle is detected
//
// Within each level, nodes are sorted by their insertion order (using
// nodeOrder) to ensure deterministic output.
func kahnTopologicalSort(inDegree map[string]int, adjacency map[string][]string, nodeOrder []string) ([]string, [][]string, error) {
	nodePosition := make(map[string]int, len(nodeOrder))
	for index, nodeID := range nodeOrder {
		nodePosition[nodeID] = index
	}

	currentLevel := make([]string, 0)
	for nodeID, degree := range inDegree {
		if degree == 0 {
			currentLevel = append(currentLevel, nodeID)
		}
	}

	sort.Slice(currentLevel, func(indexA, indexB int) bool {
		return nodePosition[currentLevel[indexA]] < nodePosition[currentLevel[indexB]]
	})

	topologicalOrder := make([]string, 0, len(inDegree))
	levels := make([][]string, 0)
	processedCount := 0

	for len(currentLevel) > 0 {
		levels = append(levels, currentLevel)
		topologicalOrder = append(topologicalOrder, currentLevel...)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)

		for _, nodeID := range currentLevel {
			for _, neighbor := range adjacency[nodeID] {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					nextLevel = append(nextLevel, neighbor)
				}
			}
		}

		sort.Slice(nextLevel, func(indexA, indexB int) bool {
			return nodePosition[nextLevel[indexA]] < nodePosition[nextLevel[indexB]]
		})

		currentLevel = nextLevel
	}

	if processedCount != len(inDegree) {
		cycleNodes := make([]string, 0)
		for nodeID, degree := range inDegree {
			if degree > 0 {
				cycleNodes = append(cycleNodes, nodeID)
			}
		}
		sort.Strings(cycleNodes)
		return nil, nil, fmt.Errorf("cycle detected in graph involving nodes: %v", cycleNodes)
	}

	return topologicalOrder, levels, nil
}
