package graph

import (
	"time"

	"chapterflow/observability"
)

// Option is a functional option for configuring graph behavior.
// Options are applied during Builder construction via NewBuilder.
type Option func(*graphConfig)

// NodeOption is a functional option for configuring individual node behavior.
// Node options are applied via Builder.AddNode.
type NodeOption func(*node)

// --- Graph Options ---

// WithMaxConcurrency limits the number of nodes that can execute in parallel
// within the same topological level. A value of 0 (default) means unlimited
// concurrency: all activated nodes at a level execute simultaneously.
//
// Use this to control resource consumption when branches are expensive
// (e.g., each branch makes LLM calls).
func WithMaxConcurrency(maxConcurrency int) Option {
	return func(config *graphConfig) {
		config.maxConcurrency = maxConcurrency
	}
}

// WithExecutionTimeout sets the maximum duration for an entire run. If the
// timeout is exceeded, the context is canceled and all in-flight branches
// receive the cancellation. A value of 0 (default) means no timeout.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(config *graphConfig) {
		config.executionTimeout = timeout
	}
}

// WithAppendKeys registers state keys whose values accumulate across partial
// updates: when a node returns a slice under an append key, the elements are
// appended to the existing value instead of replacing it. This is how
// parallel branches contribute to a single shared collection without
// overwriting each other.
//
// Example:
//
//	graph.NewBuilder(graph.WithAppendKeys("chapter_results"))
func WithAppendKeys(keys ...string) Option {
	return func(config *graphConfig) {
		config.appendKeys = append(config.appendKeys, keys...)
	}
}

// WithStore sets a custom Store for shared-state persistence.
// By default, a MemoryStore carrying the configured append keys is used.
//
// Custom stores must implement the same merge semantics for append keys.
func WithStore(store Store) Option {
	return func(config *graphConfig) {
		config.store = store
	}
}

// WithObserver sets the observability provider used for run and node spans.
// If unset, the provider is resolved from the execution context; if neither
// is present, observability is disabled with zero overhead.
func WithObserver(provider observability.Provider) Option {
	return func(config *graphConfig) {
		config.observer = provider
	}
}

// --- Node Options ---

// WithNodeTimeout sets the maximum duration for this node's execution.
// If the timeout is exceeded, the node's context is canceled and the node
// fails with a context deadline exceeded error, aborting the run.
//
// A value of 0 (default) means no node-specific timeout. The graph-level
// execution timeout (WithExecutionTimeout) still applies.
func WithNodeTimeout(timeout time.Duration) NodeOption {
	return func(nodeConfig *node) {
		nodeConfig.timeout = timeout
	}
}
