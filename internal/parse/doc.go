// Package parse decodes structured data out of raw model responses,
// tolerating markdown fences, surrounding prose and malformed JSON.
package parse
