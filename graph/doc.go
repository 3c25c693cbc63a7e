// Package graph implements a directed acyclic workflow engine with fan-out /
// fan-in semantics. A pipeline is a set of named nodes connected by edges;
// each node receives a snapshot of the shared state and returns a partial
// update, which the executor merges back in (last-writer-wins per key,
// append semantics for keys registered via WithAppendKeys).
//
// The full topology, including every conditional branch, is fixed when the
// graph is built. Per-run variability comes from routing decisions: a node
// registered with AddConditionalEdges carries a Router that is evaluated
// exactly once per run, right after the node completes, and selects which of
// its registered targets are activated. Unselected targets are skipped, and
// the skip cascades through their outgoing edges.
//
// Execution proceeds level by level in topological order. Activated nodes at
// the same level run concurrently as goroutines, each against its own state
// snapshot; a fan-in node placed downstream of all branches therefore runs
// only after every activated branch has completed and merged its result.
// Any node error aborts the run: siblings are canceled and the original
// error is surfaced. There is no partial success.
//
// Example:
//
//	pipeline, err := graph.NewBuilder(graph.WithAppendKeys("chapter_results")).
//	    AddNode("enumerate", enumerateNode).
//	    AddNode("chapter_a", branchA).
//	    AddNode("chapter_b", branchB).
//	    AddNode("fan_in", fanInNode).
//	    AddConditionalEdges("enumerate", route, []string{"chapter_a", "chapter_b"}).
//	    AddEdge("chapter_a", "fan_in").
//	    AddEdge("chapter_b", "fan_in").
//	    Build()
//
//	final, err := pipeline.Execute(ctx, graph.State{"folder_id": "2041"})
//
// Observability is optional: pass a provider with WithObserver or attach one
// to the context. A nil provider disables spans and metrics with zero
// overhead and no change in behavior.
package graph
