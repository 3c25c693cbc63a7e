package instrument

import (
	"context"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"chapterflow/observability"
)

// DefaultPolicyKey is the config entry used for stages without an explicit
// policy of their own.
const DefaultPolicyKey = "_default"

// NodePolicy is the raw per-stage instrumentation policy as it appears in
// the YAML config: which dotted field paths to capture from the stage's
// input and output, and whether string previews are truncated. Nil truncate
// flags default to true.
type NodePolicy struct {
	Input          []string `yaml:"input"`
	Output         []string `yaml:"output"`
	TruncateInput  *bool    `yaml:"truncate_input"`
	TruncateOutput *bool    `yaml:"truncate_output"`
}

// Config maps stage names to their snapshot policies. It is loaded once at
// process start and read-only thereafter.
type Config map[string]NodePolicy

// Policy is a fully resolved per-stage policy.
type Policy struct {
	InputPaths     []string
	OutputPaths    []string
	TruncateInput  bool
	TruncateOutput bool
}

// LoadConfig reads the stage instrumentation config from a YAML file.
// Absence of configuration degrades to "capture nothing": a missing file or
// a malformed top-level structure yields an empty Config with a warning,
// never an error.
func LoadConfig(path string, observer observability.Provider) Config {
	ctx := context.Background()

	raw, err := os.ReadFile(path)
	if err != nil {
		if observer != nil {
			observer.Warn(ctx, "node instrumentation config not found; snapshots disabled",
				observability.String("path", path),
				observability.Error(err),
			)
		}
		return Config{}
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		if observer != nil {
			observer.Warn(ctx, "node instrumentation config is not a mapping; treating as empty",
				observability.String("path", path),
				observability.Error(err),
			)
		}
		return Config{}
	}
	if cfg == nil {
		cfg = Config{}
	}

	if observer != nil {
		stages := make([]string, 0, len(cfg))
		for stage := range cfg {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		observer.Info(ctx, "loaded node instrumentation config",
			observability.String("path", path),
			observability.Int("stages", len(stages)),
			observability.StringSlice("stage_names", stages),
		)
	}

	return cfg
}

// Resolve looks up the policy for a stage, falling back to the _default
// entry, then to an empty policy with truncation enabled. It never fails:
// absence of configuration means "capture nothing".
func (c Config) Resolve(stage string) Policy {
	raw, ok := c[stage]
	if !ok {
		raw = c[DefaultPolicyKey]
	}

	return Policy{
		InputPaths:     raw.Input,
		OutputPaths:    raw.Output,
		TruncateInput:  boolOrTrue(raw.TruncateInput),
		TruncateOutput: boolOrTrue(raw.TruncateOutput),
	}
}

func boolOrTrue(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}
