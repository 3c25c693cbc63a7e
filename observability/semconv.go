package observability

// Semantic conventions for observability attributes. These constants define
// standard attribute names so the pipeline, the node wrapper and backends
// agree on naming.

// --- Pipeline Attributes ---

const (
	// AttrPipelineRunID is the unique identifier of one pipeline run.
	AttrPipelineRunID = "pipeline.run_id"

	// AttrNodeID identifies a node within the pipeline graph.
	AttrNodeID = "pipeline.node.id"

	// AttrNodeLevel is the topological level of the node (0-based).
	AttrNodeLevel = "pipeline.node.level"

	// AttrNodeStatus is the execution status of a node.
	AttrNodeStatus = "pipeline.node.status"

	// AttrNodeInput is the bounded input snapshot of a node (serialized).
	AttrNodeInput = "pipeline.node.input"

	// AttrNodeOutput is the bounded output snapshot of a node (serialized).
	AttrNodeOutput = "pipeline.node.output"
)

// --- HTTP Attributes ---

const (
	// AttrHTTPMethod is the HTTP request method.
	AttrHTTPMethod = "http.method"

	// AttrHTTPURL is the full request URL.
	AttrHTTPURL = "http.url"

	// AttrHTTPStatusCode is the response status code.
	AttrHTTPStatusCode = "http.status_code"

	// AttrHTTPRequestBodySize is the request body size in bytes.
	AttrHTTPRequestBodySize = "http.request.body.size"

	// AttrHTTPResponseBodySize is the response body size in bytes.
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- General Attributes ---

const (
	// AttrError is the error message.
	AttrError = "error"

	// AttrDuration is the operation duration.
	AttrDuration = "duration"

	// AttrStatus is the operation status.
	AttrStatus = "status"

	// AttrStatusDescription is the status description.
	AttrStatusDescription = "status_description"
)
