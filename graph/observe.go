package graph

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"chapterflow/observability"
)

// Semantic conventions for pipeline observability, extending the base
// chapterflow conventions with graph-specific names.
const (
	// spanPipelineExecute is the span name for an entire run.
	spanPipelineExecute = "pipeline.execute"

	// spanPipelineNodeExecute is the span name for individual node execution.
	spanPipelineNodeExecute = "pipeline.node.execute"

	// attrTotalNodes is the total number of registered nodes.
	attrTotalNodes = "pipeline.total_nodes"

	// attrTotalLevels is the total number of topological levels.
	attrTotalLevels = "pipeline.total_levels"

	// attrUpdateKeys lists the state keys a node's partial update touched.
	attrUpdateKeys = "pipeline.node.update_keys"

	// metricNodeDuration is the histogram for node execution duration.
	metricNodeDuration = "chapterflow.pipeline.node.duration"

	// metricNodeCount is the counter for node executions by status.
	metricNodeCount = "chapterflow.pipeline.node.count"

	// metricExecutionDuration is the histogram for total run duration.
	metricExecutionDuration = "chapterflow.pipeline.execution.duration"
)

// observerState holds the observability provider and the root span for the
// current run. It is populated at the start of Execute().
type observerState struct {
	// provider is the resolved observability provider.
	// Nil means observability is disabled (zero overhead).
	provider observability.Provider

	// rootSpan is the top-level span for the entire run.
	rootSpan observability.Span
}

// observeGraphStart resolves the observability provider, opens the root span
// with a fresh run ID, and attaches both to the context for downstream
// propagation.
func (graph *Graph) observeGraphStart(ctx *context.Context) {
	graph.observer.provider = graph.config.observer
	if graph.observer.provider == nil {
		graph.observer.provider = observability.ObserverFromContext(*ctx)
	}

	if graph.observer.provider == nil {
		return
	}

	runID := uuid.NewString()

	var rootSpan observability.Span
	*ctx, rootSpan = graph.observer.provider.StartSpan(*ctx, spanPipelineExecute,
		observability.String(observability.AttrPipelineRunID, runID),
		observability.Int(attrTotalNodes, len(graph.nodes)),
		observability.Int(attrTotalLevels, len(graph.levels)),
	)
	graph.observer.rootSpan = rootSpan

	*ctx = observability.ContextWithSpan(*ctx, rootSpan)
	*ctx = observability.ContextWithObserver(*ctx, graph.observer.provider)

	graph.observer.provider.Info(*ctx, "pipeline run started",
		observability.String(observability.AttrPipelineRunID, runID),
		observability.Int(attrTotalNodes, len(graph.nodes)),
		observability.Int(attrTotalLevels, len(graph.levels)),
	)
}

// observeGraphCompleted records a successful run and closes the root span.
func (graph *Graph) observeGraphCompleted(ctx context.Context, totalDuration time.Duration) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Histogram(metricExecutionDuration).Record(ctx, totalDuration.Seconds())

	graph.observer.provider.Info(ctx, "pipeline run completed",
		observability.Duration(observability.AttrDuration, totalDuration),
	)

	if graph.observer.rootSpan != nil {
		graph.observer.rootSpan.SetStatus(observability.StatusOK, "pipeline run completed")
		graph.observer.rootSpan.End()
	}
}

// observeGraphFailed records a failed run and closes the root span.
func (graph *Graph) observeGraphFailed(ctx context.Context, executionError error, totalDuration time.Duration) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Error(ctx, "pipeline run failed",
		observability.Error(executionError),
		observability.Duration(observability.AttrDuration, totalDuration),
	)

	if graph.observer.rootSpan != nil {
		graph.observer.rootSpan.RecordError(executionError)
		graph.observer.rootSpan.SetStatus(observability.StatusError, "pipeline run failed")
		graph.observer.rootSpan.End()
	}
}

// observeNodeStart creates a child span for a node execution and attaches it
// to the context for downstream propagation.
func (graph *Graph) observeNodeStart(ctx *context.Context, nodeID string, level int) {
	if graph.observer.provider == nil {
		return
	}

	var nodeSpan observability.Span
	*ctx, nodeSpan = graph.observer.provider.StartSpan(*ctx, spanPipelineNodeExecute,
		observability.String(observability.AttrNodeID, nodeID),
		observability.Int(observability.AttrNodeLevel, level),
	)

	*ctx = observability.ContextWithSpan(*ctx, nodeSpan)

	graph.observer.provider.Debug(*ctx, "node execution started",
		observability.String(observability.AttrNodeID, nodeID),
		observability.Int(observability.AttrNodeLevel, level),
	)
}

// observeNodeCompleted records a successful node execution, including which
// state keys its partial update touched, and closes the node span.
func (graph *Graph) observeNodeCompleted(ctx context.Context, nodeID string, duration time.Duration, partialUpdate State) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Histogram(metricNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrNodeID, nodeID),
	)

	graph.observer.provider.Counter(metricNodeCount).Add(ctx, 1,
		observability.String(observability.AttrNodeStatus, string(NodeCompleted)),
		observability.String(observability.AttrNodeID, nodeID),
	)

	updateKeys := make([]string, 0, len(partialUpdate))
	for key := range partialUpdate {
		updateKeys = append(updateKeys, key)
	}
	sort.Strings(updateKeys)

	graph.observer.provider.Info(ctx, "node execution completed",
		observability.String(observability.AttrNodeID, nodeID),
		observability.String(observability.AttrNodeStatus, string(NodeCompleted)),
		observability.Duration(observability.AttrDuration, duration),
		observability.StringSlice(attrUpdateKeys, updateKeys),
	)

	nodeSpan := observability.SpanFromContext(ctx)
	if nodeSpan != nil {
		nodeSpan.SetAttributes(
			observability.String(observability.AttrNodeStatus, string(NodeCompleted)),
			observability.Duration(observability.AttrDuration, duration),
		)
		nodeSpan.SetStatus(observability.StatusOK, "node completed")
		nodeSpan.End()
	}
}

// observeNodeFailed records a failed node execution and closes the node span.
func (graph *Graph) observeNodeFailed(ctx context.Context, nodeID string, nodeError error, duration time.Duration) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Histogram(metricNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrNodeID, nodeID),
	)

	graph.observer.provider.Counter(metricNodeCount).Add(ctx, 1,
		observability.String(observability.AttrNodeStatus, string(NodeFailed)),
		observability.String(observability.AttrNodeID, nodeID),
	)

	graph.observer.provider.Error(ctx, "node execution failed",
		observability.String(observability.AttrNodeID, nodeID),
		observability.Error(nodeError),
		observability.Duration(observability.AttrDuration, duration),
	)

	nodeSpan := observability.SpanFromContext(ctx)
	if nodeSpan != nil {
		nodeSpan.RecordError(nodeError)
		nodeSpan.SetAttributes(
			observability.String(observability.AttrNodeStatus, string(NodeFailed)),
			observability.Duration(observability.AttrDuration, duration),
		)
		nodeSpan.SetStatus(observability.StatusError, "node failed")
		nodeSpan.End()
	}
}

// observeNodeSkipped records that a node was not activated for this run.
func (graph *Graph) observeNodeSkipped(ctx context.Context, nodeID string, reason string) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Counter(metricNodeCount).Add(ctx, 1,
		observability.String(observability.AttrNodeStatus, string(NodeSkipped)),
		observability.String(observability.AttrNodeID, nodeID),
	)

	graph.observer.provider.Info(ctx, "node skipped",
		observability.String(observability.AttrNodeID, nodeID),
		observability.String("pipeline.node.skip_reason", reason),
	)
}

// observeLevelStart logs the beginning of a topological level.
func (graph *Graph) observeLevelStart(ctx context.Context, level int, nodeIDs []string) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Debug(ctx, "level execution started",
		observability.Int(observability.AttrNodeLevel, level),
		observability.Int("pipeline.level.node_count", len(nodeIDs)),
		observability.StringSlice("pipeline.level.nodes", nodeIDs),
	)
}

// observeRoutingDecision logs the activated targets of a routing decision.
func (graph *Graph) observeRoutingDecision(ctx context.Context, nodeID string, selection map[string]bool) {
	if graph.observer.provider == nil {
		return
	}

	selected := make([]string, 0, len(selection))
	for target := range selection {
		selected = append(selected, target)
	}
	sort.Strings(selected)

	graph.observer.provider.Info(ctx, "routing decision evaluated",
		observability.String(observability.AttrNodeID, nodeID),
		observability.StringSlice("pipeline.routing.selected", selected),
	)
}

// observeRouterIgnoredTarget warns about a router selecting an unregistered
// target name.
func (graph *Graph) observeRouterIgnoredTarget(ctx context.Context, nodeID, target string) {
	if graph.observer.provider == nil {
		return
	}

	graph.observer.provider.Warn(ctx, "router selected unregistered target",
		observability.String(observability.AttrNodeID, nodeID),
		observability.String("pipeline.routing.ignored_target", target),
	)
}
