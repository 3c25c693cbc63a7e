package summary

import (
	"fmt"
	"sort"

	"chapterflow/graph"
)

// Shared state keys threaded through the outer pipeline.
const (
	// KeyConfig holds the pipeline Config.
	KeyConfig = "config"

	// KeyFolderID holds the folder identifier being processed.
	KeyFolderID = "folder_id"

	// KeyDAO holds the *FolderDAO opened for the folder.
	KeyDAO = "dao"

	// KeySourceAvailable reports whether the folder yielded any documents.
	KeySourceAvailable = "source_available"

	// KeyEntryChapters maps document ID to its assigned chapter.
	KeyEntryChapters = "entry_chapters"

	// KeyChapterResults is the append key accumulating branch results as a
	// slice of single-entry chapter→Timeline maps.
	KeyChapterResults = "chapter_results"

	// KeyCaseTimeline holds the merged CaseTimeline.
	KeyCaseTimeline = "case_timeline"

	// KeyResult holds the final plain map rendering of the case timeline.
	KeyResult = "result"
)

// Event is a single dated timeline entry extracted from the documents.
type Event struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	DocumentID  string `json:"document_id,omitempty"`
}

// Timeline is one chapter's summarized output.
type Timeline struct {
	Chapter string  `json:"chapter"`
	Events  []Event `json:"events"`
}

// CaseTimeline is the consolidated result: one Timeline per chapter that
// produced output this run.
type CaseTimeline struct {
	ChapterTimelines map[string]Timeline `json:"chapter_timelines"`
}

// BranchState is the branch-local projection handed to a chapter subgraph.
// It is constructed fresh per branch invocation and never shared across
// branches; DAO and Config are read-only once built.
type BranchState struct {
	Chapter         string
	Config          TimelineConfig
	DAO             *FolderDAO
	FolderID        string
	SourceAvailable bool

	// Entries are the document IDs whose chapter mapping equals Chapter.
	Entries []string
}

// BuildBranchState projects the shared state into a branch-local one for the
// given chapter. Pure construction: it never mutates the shared state.
func BuildBranchState(state graph.State, chapter string, branchConfig TimelineConfig) (BranchState, error) {
	dao, err := daoFromState(state)
	if err != nil {
		return BranchState{}, err
	}

	folderID, _ := state[KeyFolderID].(string)
	sourceAvailable, _ := state[KeySourceAvailable].(bool)

	entryChapters := entryChaptersFromState(state)
	entries := make([]string, 0, len(entryChapters))
	for documentID, assignedChapter := range entryChapters {
		if assignedChapter == chapter {
			entries = append(entries, documentID)
		}
	}
	sort.Strings(entries)

	return BranchState{
		Chapter:         chapter,
		Config:          branchConfig,
		DAO:             dao,
		FolderID:        folderID,
		SourceAvailable: sourceAvailable,
		Entries:         entries,
	}, nil
}

func configFromState(state graph.State) (Config, error) {
	cfg, ok := state[KeyConfig].(Config)
	if !ok {
		return Config{}, fmt.Errorf("state key %q missing or not a summary.Config", KeyConfig)
	}
	return cfg, nil
}

func daoFromState(state graph.State) (*FolderDAO, error) {
	dao, ok := state[KeyDAO].(*FolderDAO)
	if !ok || dao == nil {
		return nil, fmt.Errorf("state key %q missing or not a *summary.FolderDAO", KeyDAO)
	}
	return dao, nil
}

func entryChaptersFromState(state graph.State) map[string]string {
	entryChapters, _ := state[KeyEntryChapters].(map[string]string)
	return entryChapters
}

// chapterResultsFromState normalizes the accumulated branch results. The
// store keeps them as []map[string]Timeline when every branch contributed
// the same type, and as []any otherwise.
func chapterResultsFromState(state graph.State) []map[string]Timeline {
	switch accumulated := state[KeyChapterResults].(type) {
	case []map[string]Timeline:
		return accumulated

	case []any:
		results := make([]map[string]Timeline, 0, len(accumulated))
		for _, element := range accumulated {
			if result, ok := element.(map[string]Timeline); ok {
				results = append(results, result)
			}
		}
		return results

	default:
		return nil
	}
}
