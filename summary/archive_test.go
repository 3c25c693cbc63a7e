package summary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapterflow/graph"
)

func archiveTestState() graph.State {
	return graph.State{
		KeyFolderID: "2041",
		KeyDAO:      testDAO(Document{ID: "doc1"}, Document{ID: "doc2"}),
		KeyCaseTimeline: CaseTimeline{
			ChapterTimelines: map[string]Timeline{
				"medical": {Chapter: "medical", Events: []Event{{Date: "2020-01-01", Description: "admitted"}}},
				"legal":   {Chapter: "legal"},
			},
		},
	}
}

func TestArchiveSummaryDisabledByDefault(t *testing.T) {
	cfg := testConfig()

	path, err := ArchiveSummary(archiveTestState(), cfg)

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestArchiveSummaryWritesArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.Timeline.Progressive.ArchiveSummary = true
	cfg.Timeline.Progressive.ArchiveDir = t.TempDir()

	path, err := ArchiveSummary(archiveTestState(), cfg)

	require.NoError(t, err)
	assert.Equal(t, "archived_summary-2041-structured_timeline-2.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var artifact struct {
		Chapters         []string            `json:"chapters"`
		ChapterTimelines map[string]Timeline `json:"chapter_timelines"`
		DocumentIDs      []string            `json:"documentIds"`
	}
	require.NoError(t, json.Unmarshal(raw, &artifact))

	assert.Equal(t, []string{"legal", "medical"}, artifact.Chapters)
	assert.Equal(t, []string{"doc1", "doc2"}, artifact.DocumentIDs)
	assert.Equal(t, "admitted", artifact.ChapterTimelines["medical"].Events[0].Description)
}

func TestArchiveSummaryMissingTimelineFails(t *testing.T) {
	cfg := testConfig()
	cfg.Timeline.Progressive.ArchiveSummary = true
	cfg.Timeline.Progressive.ArchiveDir = t.TempDir()

	_, err := ArchiveSummary(graph.State{KeyFolderID: "2041"}, cfg)

	assert.Error(t, err)
}
