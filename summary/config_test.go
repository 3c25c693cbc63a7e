package summary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
folder:
  root: /data/folders
  id: "2041"
timeline:
  available_chapters: [medical, legal]
  chapter_keywords:
    medical: [hospital, diagnosis]
    legal: [court]
  progressive:
    archive_summary: true
    archive_dir: /tmp/archives
`), 0o644))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "/data/folders", cfg.Folder.Root)
	assert.Equal(t, []string{"medical", "legal"}, cfg.Timeline.AvailableChapters)
	assert.Equal(t, []string{"hospital", "diagnosis"}, cfg.Timeline.ChapterKeywords["medical"])
	assert.True(t, cfg.Timeline.Progressive.ArchiveSummary)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestValidateRejectsEmptyChapters(t *testing.T) {
	cfg := Config{Folder: FolderConfig{Root: "/data"}}

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateChapters(t *testing.T) {
	cfg := Config{
		Folder: FolderConfig{Root: "/data"},
		Timeline: TimelineConfig{
			AvailableChapters: []string{"medical", "medical"},
		},
	}

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownKeywordChapter(t *testing.T) {
	cfg := Config{
		Folder: FolderConfig{Root: "/data"},
		Timeline: TimelineConfig{
			AvailableChapters: []string{"medical"},
			ChapterKeywords:   map[string][]string{"ghost": {"boo"}},
		},
	}

	assert.Error(t, cfg.Validate())
}

func TestTimelineConfigCloneIsIndependent(t *testing.T) {
	original := TimelineConfig{
		AvailableChapters: []string{"medical"},
		ChapterKeywords:   map[string][]string{"medical": {"hospital"}},
	}

	cloned := original.Clone()
	cloned.AvailableChapters[0] = "mutated"
	cloned.ChapterKeywords["medical"][0] = "mutated"
	cloned.ChapterKeywords["new"] = []string{"x"}

	assert.Equal(t, "medical", original.AvailableChapters[0])
	assert.Equal(t, "hospital", original.ChapterKeywords["medical"][0])
	assert.NotContains(t, original.ChapterKeywords, "new")
}
