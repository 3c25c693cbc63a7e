package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"chapterflow/graph"
)

// Outer pipeline node names. The names are stable identifiers: they key the
// instrumentation config and label trace spans.
const (
	NodeCreateFolderDAO   = "create_folder_dao"
	NodeEnumerateChapters = "enumerate_chapters_to_run_node"
	NodeChapterCompleted  = "chapter_summary_completed_node"
	NodeChapterDeepMerge  = "chapter_summary_deep_merge_node"
	NodeStructuredToMap   = "structured_to_map_node"
	branchNodeNameFormat  = "chapter_%s_summary_node"
)

// BranchNodeName returns the registered node name for a chapter's branch.
func BranchNodeName(chapter string) string {
	return fmt.Sprintf(branchNodeNameFormat, chapter)
}

// CreateFolderDAO opens the folder named by the state and publishes the DAO
// along with the source availability flag.
func CreateFolderDAO(ctx context.Context, state graph.State) (graph.State, error) {
	cfg, err := configFromState(state)
	if err != nil {
		return nil, err
	}

	folderID, _ := state[KeyFolderID].(string)
	if folderID == "" {
		folderID = cfg.Folder.ID
	}
	if folderID == "" {
		return nil, fmt.Errorf("no folder ID in state or config")
	}

	dao, err := OpenFolder(ctx, cfg.Folder.Root, folderID)
	if err != nil {
		return nil, err
	}

	return graph.State{
		KeyDAO:             dao,
		KeyFolderID:        folderID,
		KeySourceAvailable: dao.Len() > 0,
	}, nil
}

// EnumerateChaptersToRun assigns each loaded document to a chapter by
// keyword scan. Chapters are tried in configured order and the first match
// wins; unmatched documents are left unassigned.
func EnumerateChaptersToRun(ctx context.Context, state graph.State) (graph.State, error) {
	cfg, err := configFromState(state)
	if err != nil {
		return nil, err
	}
	dao, err := daoFromState(state)
	if err != nil {
		return nil, err
	}

	entryChapters := make(map[string]string)

	for _, document := range dao.Documents() {
		lowered := strings.ToLower(document.Markdown)

		for _, chapter := range cfg.Timeline.AvailableChapters {
			if matchesChapter(lowered, cfg.Timeline.ChapterKeywords[chapter]) {
				entryChapters[document.ID] = chapter
				break
			}
		}
	}

	return graph.State{KeyEntryChapters: entryChapters}, nil
}

func matchesChapter(loweredText string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(loweredText, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// ChapterSummaryCompleted is the structural fan-in. It transforms nothing;
// it exists so every branch shares a downstream edge, which is what makes
// the engine wait for all activated branches before the merge runs.
func ChapterSummaryCompleted(ctx context.Context, state graph.State) (graph.State, error) {
	return graph.State{}, nil
}

// ChapterSummaryDeepMerge consolidates the accumulated branch results into
// one CaseTimeline. Chapters merge by key; on a repeated chapter the later
// contribution replaces the earlier one entirely, so merging the same
// contribution twice yields the same timeline as merging it once. Events
// within each timeline are sorted by date.
func ChapterSummaryDeepMerge(ctx context.Context, state graph.State) (graph.State, error) {
	merged := CaseTimeline{ChapterTimelines: make(map[string]Timeline)}

	for _, branchResult := range chapterResultsFromState(state) {
		for chapter, timeline := range branchResult {
			sorted := timeline
			sorted.Events = append([]Event(nil), timeline.Events...)
			sortEventsByDate(sorted.Events)
			merged.ChapterTimelines[chapter] = sorted
		}
	}

	return graph.State{KeyCaseTimeline: merged}, nil
}

func sortEventsByDate(events []Event) {
	sort.SliceStable(events, func(left, right int) bool {
		return events[left].Date < events[right].Date
	})
}

// StructuredToMap renders the merged CaseTimeline into a plain serializable
// map via a JSON round-trip, so callers never depend on domain types.
func StructuredToMap(ctx context.Context, state graph.State) (graph.State, error) {
	caseTimeline, ok := state[KeyCaseTimeline].(CaseTimeline)
	if !ok {
		return nil, fmt.Errorf("state key %q missing or not a summary.CaseTimeline", KeyCaseTimeline)
	}

	encoded, err := json.Marshal(caseTimeline)
	if err != nil {
		return nil, fmt.Errorf("failed to encode case timeline: %w", err)
	}

	var plain map[string]any
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return nil, fmt.Errorf("failed to decode case timeline into a plain map: %w", err)
	}

	return graph.State{KeyResult: plain}, nil
}
