// Package instrument adds policy-driven span instrumentation to pipeline
// stages. A YAML config declares, per stage, which input and output fields
// to capture; Recorder.Wrap turns any graph.NodeExecutor into an executor
// that opens a span named after the stage, attaches compact field snapshots,
// and records success or failure.
//
// The wrapper is strictly non-invasive: results and errors pass through
// unchanged, prompt-like fields are redacted outside the prompt stage, and
// every instrumentation failure is swallowed so tracing can never break a
// run.
package instrument
