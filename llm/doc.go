// Package llm provides a thin chat-completions HTTP client used as the
// pipeline's model collaborator.
package llm
