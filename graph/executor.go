package graph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Execute runs the graph against the initial state and returns the final
// merged state. Nodes run in topological order, with activated nodes at the
// same level running in parallel (subject to WithMaxConcurrency).
//
// The execution proceeds as follows:
//  1. Initialize the store with initialState and set all nodes to NodePending
//  2. Start the observability root span with a fresh run ID
//  3. For each topological level, determine the activated nodes and launch
//     them as goroutines; merge each returned partial update into the store
//  4. After a node with a routing decision completes, evaluate its router
//     once and cache the selected targets for the rest of the run
//  5. Return a snapshot of the final state
//
// Any node error aborts the run: in-flight siblings are canceled and the
// node's original error is returned (wrapped with the node ID). Canceling
// ctx cancels all in-flight branches.
//
// Execute is NOT safe for concurrent use on the same Graph instance, because
// per-run node bookkeeping in the Store is reset at the start of each run.
func (graph *Graph) Execute(ctx context.Context, initialState State) (State, error) {
	executionStart := time.Now()

	graph.observeGraphStart(&ctx)

	store := graph.config.store
	if err := graph.initializeState(ctx, store, initialState); err != nil {
		graph.observeGraphFailed(ctx, err, time.Since(executionStart))
		return nil, fmt.Errorf("failed to initialize pipeline state: %w", err)
	}

	if graph.config.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, graph.config.executionTimeout)
		defer cancel()
	}

	currentRun := &run{
		graph:  graph,
		store:  store,
		routes: make(map[string]map[string]bool),
	}

	if executionError := currentRun.executeLevels(ctx); executionError != nil {
		graph.observeGraphFailed(ctx, executionError, time.Since(executionStart))
		return nil, fmt.Errorf("pipeline execution failed: %w", executionError)
	}

	finalState, err := store.Snapshot(ctx)
	if err != nil {
		graph.observeGraphFailed(ctx, err, time.Since(executionStart))
		return nil, fmt.Errorf("failed to snapshot final state: %w", err)
	}

	graph.observeGraphCompleted(ctx, time.Since(executionStart))

	return finalState, nil
}

// initializeState prepares the store for a new run: it loads the initial
// state and resets every node to NodePending.
func (graph *Graph) initializeState(ctx context.Context, store Store, initialState State) error {
	nodeIDs := make([]string, 0, len(graph.nodes))
	for nodeID := range graph.nodes {
		nodeIDs = append(nodeIDs, nodeID)
	}

	// MemoryStore replaces its state wholesale; external stores receive the
	// initial state through the regular merge path and are expected to be
	// fresh per run.
	if memoryStore, isMemory := store.(*MemoryStore); isMemory {
		memoryStore.initializeNodes(nodeIDs, initialState)
		return nil
	}

	for _, nodeID := range nodeIDs {
		if err := store.SetNodeStatus(ctx, nodeID, NodePending); err != nil {
			return fmt.Errorf("failed to initialize node %q status: %w", nodeID, err)
		}
	}
	if len(initialState) > 0 {
		if err := store.Apply(ctx, initialState); err != nil {
			return fmt.Errorf("failed to load initial state: %w", err)
		}
	}
	return nil
}

// run holds the bookkeeping for one execution: the store and the cached
// routing decisions. Routing decisions are written under a mutex because
// sibling nodes at the same level complete concurrently.
type run struct {
	graph  *Graph
	store  Store
	mu     sync.Mutex
	routes map[string]map[string]bool
}

// executeLevels iterates through topological levels, determines which nodes
// are activated at each level, and executes them in parallel.
func (currentRun *run) executeLevels(ctx context.Context) error {
	for levelIndex, levelNodeIDs := range currentRun.graph.levels {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled before level %d: %w", levelIndex, err)
		}

		currentRun.graph.observeLevelStart(ctx, levelIndex, levelNodeIDs)

		activatedNodes, err := currentRun.filterActivatedNodes(ctx, levelNodeIDs)
		if err != nil {
			return err
		}

		if len(activatedNodes) == 0 {
			continue
		}

		if err := currentRun.executeLevel(ctx, activatedNodes, levelIndex); err != nil {
			return err
		}
	}

	return nil
}

// filterActivatedNodes determines which nodes at a level execute this run.
// A node is activated if it has no incoming edges (a root), or if at least
// one incoming edge is active. An edge is active when its source completed
// and it is either unconditional or selected by the source's routing
// decision. Nodes with incoming edges but no active edge are skipped, which
// deactivates their own outgoing edges in turn.
func (currentRun *run) filterActivatedNodes(ctx context.Context, nodeIDs []string) ([]string, error) {
	activated := make([]string, 0, len(nodeIDs))

	for _, nodeID := range nodeIDs {
		incomingEdges := currentRun.graph.incoming[nodeID]

		if len(incomingEdges) == 0 {
			activated = append(activated, nodeID)
			continue
		}

		anyActive := false
		for _, incomingEdge := range incomingEdges {
			active, err := currentRun.edgeActive(ctx, incomingEdge)
			if err != nil {
				return nil, err
			}
			if active {
				anyActive = true
				break
			}
		}

		if !anyActive {
			if err := currentRun.store.SetNodeStatus(ctx, nodeID, NodeSkipped); err != nil {
				return nil, fmt.Errorf("failed to mark node %q skipped: %w", nodeID, err)
			}
			currentRun.graph.observeNodeSkipped(ctx, nodeID, "no active incoming edge")
			continue
		}

		activated = append(activated, nodeID)
	}

	return activated, nil
}

// edgeActive reports whether an incoming edge delivers work this run.
func (currentRun *run) edgeActive(ctx context.Context, incomingEdge *edge) (bool, error) {
	sourceStatus, err := currentRun.store.NodeStatus(ctx, incomingEdge.from)
	if err != nil {
		return false, fmt.Errorf("failed to get status of node %q: %w", incomingEdge.from, err)
	}
	if sourceStatus != NodeCompleted {
		return false, nil
	}
	if !incomingEdge.conditional {
		return true, nil
	}

	currentRun.mu.Lock()
	selected := currentRun.routes[incomingEdge.from][incomingEdge.to]
	currentRun.mu.Unlock()
	return selected, nil
}

// executeLevel runs all activated nodes at a topological level in parallel.
// It respects the maxConcurrency limit and cancels siblings on first error.
func (currentRun *run) executeLevel(ctx context.Context, activatedNodes []string, levelIndex int) error {
	var waitGroup sync.WaitGroup
	errorChannel := make(chan nodeExecutionError, len(activatedNodes))

	// Cancellable context so a failing branch aborts its siblings.
	levelContext, cancelLevel := context.WithCancel(ctx)
	defer cancelLevel()

	var semaphore chan struct{}
	if currentRun.graph.config.maxConcurrency > 0 {
		semaphore = make(chan struct{}, currentRun.graph.config.maxConcurrency)
	}

	for _, nodeID := range activatedNodes {
		waitGroup.Add(1)

		go func(executingNodeID string) {
			defer waitGroup.Done()

			if semaphore != nil {
				select {
				case semaphore <- struct{}{}:
					defer func() { <-semaphore }()
				case <-levelContext.Done():
					return
				}
			}

			if levelContext.Err() != nil {
				return
			}

			if err := currentRun.executeNode(levelContext, executingNodeID, levelIndex); err != nil {
				errorChannel <- nodeExecutionError{nodeID: executingNodeID, err: err}
				cancelLevel()
			}
		}(nodeID)
	}

	waitGroup.Wait()
	close(errorChannel)

	for nodeError := range errorChannel {
		return fmt.Errorf("node %q failed: %w", nodeError.nodeID, nodeError.err)
	}

	return nil
}

// nodeExecutionError pairs a node ID with its execution error.
type nodeExecutionError struct {
	nodeID string
	err    error
}

// executeNode runs a single node's executor with proper context, timeout,
// state merging and observability. On success it evaluates the node's
// routing decision, if any, exactly once.
func (currentRun *run) executeNode(ctx context.Context, nodeID string, levelIndex int) error {
	graphNode := currentRun.graph.nodes[nodeID]

	if err := currentRun.store.SetNodeStatus(ctx, nodeID, NodeRunning); err != nil {
		return fmt.Errorf("failed to set node %q status to running: %w", nodeID, err)
	}

	nodeContext := ctx
	currentRun.graph.observeNodeStart(&nodeContext, nodeID, levelIndex)

	if graphNode.timeout > 0 {
		var cancel context.CancelFunc
		nodeContext, cancel = context.WithTimeout(nodeContext, graphNode.timeout)
		defer cancel()
	}

	// Each node gets its own snapshot; branches never share a mutable map.
	stateSnapshot, err := currentRun.store.Snapshot(nodeContext)
	if err != nil {
		markNodeFailed(nodeContext, currentRun.store, nodeID)
		currentRun.graph.observeNodeFailed(nodeContext, nodeID, err, 0)
		return fmt.Errorf("failed to snapshot state for node %q: %w", nodeID, err)
	}

	nodeStart := time.Now()
	partialUpdate, execError := graphNode.executor.Execute(nodeContext, stateSnapshot)
	executionDuration := time.Since(nodeStart)

	if execError != nil {
		markNodeFailed(nodeContext, currentRun.store, nodeID)
		currentRun.graph.observeNodeFailed(nodeContext, nodeID, execError, executionDuration)
		return execError
	}

	if len(partialUpdate) > 0 {
		if err := currentRun.store.Apply(nodeContext, partialUpdate); err != nil {
			markNodeFailed(nodeContext, currentRun.store, nodeID)
			currentRun.graph.observeNodeFailed(nodeContext, nodeID, err, executionDuration)
			return fmt.Errorf("failed to merge update from node %q: %w", nodeID, err)
		}
	}

	if err := currentRun.store.SetNodeStatus(nodeContext, nodeID, NodeCompleted); err != nil {
		return fmt.Errorf("failed to set node %q status to completed: %w", nodeID, err)
	}

	currentRun.graph.observeNodeCompleted(nodeContext, nodeID, executionDuration, partialUpdate)

	return currentRun.evaluateRouter(nodeContext, nodeID)
}

// evaluateRouter runs the node's routing decision, if registered, exactly
// once per run against the state as of the node's completion. Selected names
// outside the registered target set are ignored with a warning.
func (currentRun *run) evaluateRouter(ctx context.Context, nodeID string) error {
	spec, hasRouter := currentRun.graph.routers[nodeID]
	if !hasRouter {
		return nil
	}

	stateSnapshot, err := currentRun.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot state for routing from node %q: %w", nodeID, err)
	}

	selectedTargets := spec.router(ctx, stateSnapshot)

	selection := make(map[string]bool, len(selectedTargets))
	for _, target := range selectedTargets {
		if !spec.targetSet[target] {
			currentRun.graph.observeRouterIgnoredTarget(ctx, nodeID, target)
			continue
		}
		selection[target] = true
	}

	currentRun.mu.Lock()
	currentRun.routes[nodeID] = selection
	currentRun.mu.Unlock()

	currentRun.graph.observeRoutingDecision(ctx, nodeID, selection)

	return nil
}

// markNodeFailed is a best-effort helper that sets a node's status to
// NodeFailed. Store errors here are intentionally ignored because the
// primary execution error takes precedence.
func markNodeFailed(ctx context.Context, store Store, nodeID string) {
	_ = store.SetNodeStatus(ctx, nodeID, NodeFailed) //nolint:errcheck
}
