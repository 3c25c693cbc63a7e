package summary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline configuration.
type Config struct {
	Folder   FolderConfig   `yaml:"folder"`
	Timeline TimelineConfig `yaml:"timeline"`
}

// FolderConfig locates the document folder to summarize.
type FolderConfig struct {
	// Root is the directory containing one subdirectory per folder ID.
	Root string `yaml:"root"`

	// ID is the default folder to process when none is given at run time.
	ID string `yaml:"id"`
}

// TimelineConfig drives chapter enumeration and the per-chapter branches.
type TimelineConfig struct {
	// AvailableChapters is the full, statically known chapter set. One
	// branch node is registered per entry; routing decides per run which
	// of them receive work.
	AvailableChapters []string `yaml:"available_chapters"`

	// ChapterKeywords maps each chapter to the keywords that assign a
	// document to it during enumeration.
	ChapterKeywords map[string][]string `yaml:"chapter_keywords"`

	// Progressive controls the optional archive side artifact.
	Progressive ProgressiveConfig `yaml:"progressive"`
}

// ProgressiveConfig gates the archived-summary JSON artifact.
type ProgressiveConfig struct {
	ArchiveSummary bool   `yaml:"archive_summary"`
	ArchiveDir     string `yaml:"archive_dir"`
}

// LoadConfig reads and validates the pipeline configuration from a YAML
// file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the invariants the pipeline relies on.
func (cfg Config) Validate() error {
	if cfg.Folder.Root == "" {
		return fmt.Errorf("folder.root is required")
	}
	if len(cfg.Timeline.AvailableChapters) == 0 {
		return fmt.Errorf("timeline.available_chapters must not be empty")
	}

	seen := make(map[string]bool, len(cfg.Timeline.AvailableChapters))
	for _, chapter := range cfg.Timeline.AvailableChapters {
		if chapter == "" {
			return fmt.Errorf("timeline.available_chapters contains an empty chapter name")
		}
		if seen[chapter] {
			return fmt.Errorf("timeline.available_chapters contains duplicate chapter %q", chapter)
		}
		seen[chapter] = true
	}

	for chapter := range cfg.Timeline.ChapterKeywords {
		if !seen[chapter] {
			return fmt.Errorf("timeline.chapter_keywords references unknown chapter %q", chapter)
		}
	}

	return nil
}

// Clone deep-copies the timeline configuration. Branches receive their own
// copy so no branch can observe another's mutations.
func (timelineConfig TimelineConfig) Clone() TimelineConfig {
	cloned := timelineConfig

	cloned.AvailableChapters = append([]string(nil), timelineConfig.AvailableChapters...)

	cloned.ChapterKeywords = make(map[string][]string, len(timelineConfig.ChapterKeywords))
	for chapter, keywords := range timelineConfig.ChapterKeywords {
		cloned.ChapterKeywords[chapter] = append([]string(nil), keywords...)
	}

	return cloned
}
