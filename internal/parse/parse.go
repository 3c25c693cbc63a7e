package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// FromResponse parses a model response into T. Model output is rarely clean
// JSON: it may be wrapped in prose, fenced in markdown code blocks, or be
// syntactically sloppy (single quotes, trailing commas, unquoted keys).
//
// Candidates are tried in order: fenced ```json blocks, any fenced block,
// the widest brace- or bracket-delimited slice, then the full response. Each
// candidate is unmarshaled directly and, failing that, repaired with
// jsonrepair and retried. The first candidate that decodes wins.
func FromResponse[T any](response string) (T, error) {
	var result T

	candidates := extractCandidates(response)

	var firstErr error
	for _, candidate := range candidates {
		if err := json.Unmarshal([]byte(candidate), &result); err == nil {
			return result, nil
		} else if firstErr == nil {
			firstErr = err
		}

		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			continue
		}
		if err := json.Unmarshal([]byte(repaired), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("failed to parse response as %T: %w", result, firstErr)
}

// extractCandidates returns JSON candidates from a model response, most
// specific first. The full response is always the last candidate.
func extractCandidates(response string) []string {
	trimmed := strings.TrimSpace(response)

	var candidates []string

	for _, fenced := range extractFencedBlocks(trimmed, "```json") {
		candidates = append(candidates, fenced)
	}
	for _, fenced := range extractFencedBlocks(trimmed, "```") {
		candidates = append(candidates, fenced)
	}

	if delimited := widestDelimited(trimmed); delimited != "" && delimited != trimmed {
		candidates = append(candidates, delimited)
	}

	candidates = append(candidates, trimmed)

	return candidates
}

// extractFencedBlocks returns the contents of markdown code fences opened by
// the given marker.
func extractFencedBlocks(text, marker string) []string {
	var blocks []string

	remaining := text
	for {
		start := strings.Index(remaining, marker)
		if start < 0 {
			return blocks
		}

		body := remaining[start+len(marker):]
		// Skip the language tag on plain ``` fences.
		if newline := strings.IndexByte(body, '\n'); marker == "```" && newline >= 0 && newline < 20 {
			body = body[newline+1:]
		}

		end := strings.Index(body, "```")
		if end < 0 {
			return blocks
		}

		block := strings.TrimSpace(body[:end])
		if block != "" {
			blocks = append(blocks, block)
		}

		remaining = body[end+3:]
	}
}

// widestDelimited returns the widest {...} or [...] slice of the text, which
// covers responses that wrap JSON in leading or trailing prose.
func widestDelimited(text string) string {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		open := strings.IndexByte(text, pair[0])
		closing := strings.LastIndexByte(text, pair[1])
		if open >= 0 && closing > open {
			return text[open : closing+1]
		}
	}
	return ""
}
