package instrument

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileDegradesToEmpty(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)

	assert.NotNil(t, cfg)
	assert.Empty(t, cfg)
}

func TestLoadConfigMalformedDegradesToEmpty(t *testing.T) {
	path := writeTempConfig(t, "- this\n- is\n- a list\n")

	cfg := LoadConfig(path, nil)

	assert.Empty(t, cfg)
}

func TestLoadConfigParsesPolicies(t *testing.T) {
	path := writeTempConfig(t, `
create_folder_dao:
  input: [folder_id]
  output: [dao, source_available]
create_prompt_node:
  input: [entry_markdown]
  output: [prompt]
  truncate_output: false
_default:
  output: [result]
`)

	cfg := LoadConfig(path, nil)

	require.Len(t, cfg, 3)
	assert.Equal(t, []string{"folder_id"}, cfg["create_folder_dao"].Input)
	assert.Equal(t, []string{"dao", "source_available"}, cfg["create_folder_dao"].Output)
	require.NotNil(t, cfg["create_prompt_node"].TruncateOutput)
	assert.False(t, *cfg["create_prompt_node"].TruncateOutput)
}

func TestResolveExplicitPolicy(t *testing.T) {
	falseFlag := false
	cfg := Config{
		"summarize_chapter": NodePolicy{
			Input:         []string{"prompt"},
			Output:        []string{"llm_response"},
			TruncateInput: &falseFlag,
		},
	}

	policy := cfg.Resolve("summarize_chapter")

	assert.Equal(t, []string{"prompt"}, policy.InputPaths)
	assert.Equal(t, []string{"llm_response"}, policy.OutputPaths)
	assert.False(t, policy.TruncateInput)
	assert.True(t, policy.TruncateOutput, "unset truncate flag defaults to true")
}

func TestResolveFallsBackToDefault(t *testing.T) {
	cfg := Config{
		DefaultPolicyKey: NodePolicy{Output: []string{"result"}},
	}

	policy := cfg.Resolve("unconfigured_stage")

	assert.Empty(t, policy.InputPaths)
	assert.Equal(t, []string{"result"}, policy.OutputPaths)
}

func TestResolveUnknownStageWithoutDefault(t *testing.T) {
	policy := Config{}.Resolve("anything")

	assert.Empty(t, policy.InputPaths)
	assert.Empty(t, policy.OutputPaths)
	assert.True(t, policy.TruncateInput)
	assert.True(t, policy.TruncateOutput)
}
