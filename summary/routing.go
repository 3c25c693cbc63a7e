package summary

import (
	"context"

	"chapterflow/graph"
)

// ChapterRouting returns the routing decision for the fan-out: branch node
// names for every available chapter that received at least one document
// during enumeration. The decision is a deterministic function of the state
// and is evaluated once per run, right after enumeration completes.
func ChapterRouting(availableChapters []string) graph.Router {
	return func(ctx context.Context, state graph.State) []string {
		entryChapters := entryChaptersFromState(state)

		dispatched := make(map[string]bool, len(entryChapters))
		for _, chapter := range entryChapters {
			dispatched[chapter] = true
		}

		var activated []string
		for _, chapter := range availableChapters {
			if dispatched[chapter] {
				activated = append(activated, BranchNodeName(chapter))
			}
		}
		return activated
	}
}
