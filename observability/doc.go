// Package observability defines the tracing, metrics and logging abstraction
// used across chapterflow. The Provider interface bundles a Tracer, Metrics
// and a structured Logger; components resolve a Provider either through
// explicit wiring or from the context via ObserverFromContext, and treat a
// nil Provider as "observability disabled" with zero overhead.
//
// The design keeps instrumentation strictly best-effort: nothing in this
// package can fail in a way that alters the behavior of the code it observes.
// Backends implement Provider; the shipped implementation is zapobs, built
// on go.uber.org/zap.
package observability
