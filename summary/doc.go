// Package summary implements the document summarization pipeline: it opens
// a folder of source documents, assigns each document to a chapter, runs one
// summarization subgraph per chapter in parallel, deep-merges the chapter
// timelines into a consolidated case timeline, and renders the result as a
// plain serializable map.
//
// The pipeline is built on the graph engine with a fixed topology: a linear
// prefix, one pre-registered branch per configured chapter, a structural
// fan-in, and a linear suffix. Per-run routing activates only the branches
// whose chapters received documents. Every node is wrapped by the
// instrumentation Recorder before registration.
package summary
