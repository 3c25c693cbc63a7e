package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"chapterflow/graph"
)

// DefaultArchiveDir is where archived summaries land when the config does
// not name a directory.
const DefaultArchiveDir = "archived_summaries"

// archivedSummary is the persisted artifact shape.
type archivedSummary struct {
	Chapters         []string            `json:"chapters"`
	ChapterTimelines map[string]Timeline `json:"chapter_timelines"`
	DocumentIDs      []string            `json:"documentIds"`
}

// ArchiveSummary persists the merged case timeline as a JSON side artifact,
// named by folder ID and document count. It is gated by the progressive
// archive flag and disabled by default; when disabled it returns an empty
// path and no error.
func ArchiveSummary(state graph.State, cfg Config) (string, error) {
	if !cfg.Timeline.Progressive.ArchiveSummary {
		return "", nil
	}

	caseTimeline, ok := state[KeyCaseTimeline].(CaseTimeline)
	if !ok {
		return "", fmt.Errorf("state key %q missing or not a summary.CaseTimeline", KeyCaseTimeline)
	}
	dao, err := daoFromState(state)
	if err != nil {
		return "", err
	}

	folderID, _ := state[KeyFolderID].(string)
	documentIDs := dao.DocumentIDs()

	artifact := archivedSummary{
		Chapters:         make([]string, 0, len(caseTimeline.ChapterTimelines)),
		ChapterTimelines: make(map[string]Timeline, len(caseTimeline.ChapterTimelines)),
		DocumentIDs:      documentIDs,
	}
	for chapter, timeline := range caseTimeline.ChapterTimelines {
		artifact.Chapters = append(artifact.Chapters, chapter)
		artifact.ChapterTimelines[chapter] = timeline
	}
	sort.Strings(artifact.Chapters)

	directory := cfg.Timeline.Progressive.ArchiveDir
	if directory == "" {
		directory = DefaultArchiveDir
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory %q: %w", directory, err)
	}

	filename := fmt.Sprintf("archived_summary-%s-structured_timeline-%d.json", folderID, len(documentIDs))
	path := filepath.Join(directory, filename)

	encoded, err := json.MarshalIndent(artifact, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode archived summary: %w", err)
	}

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archived summary %q: %w", path, err)
	}

	return path, nil
}
