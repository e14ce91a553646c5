package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/ledger.csv", cfg.Ledger.Path)
	assert.Equal(t, "data/runs.db", cfg.Store.Path)
	assert.Equal(t, "http://localhost:8000/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", cfg.LLM.Model)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 0.001)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, 120, cfg.LLM.TimeoutSecs)
	assert.Contains(t, cfg.Search.Keywords, "gaussian splatting")
	assert.Equal(t, "https://export.arxiv.org/api/query", cfg.Arxiv.BaseURL)
	assert.Equal(t, "https://api.openalex.org", cfg.OpenAlex.BaseURL)
	assert.Equal(t, []string{"CVPR", "ICCV", "ECCV"}, cfg.CVF.Venues)
	assert.Equal(t, []string{"PlayCanvas", "GaussianSplatting"}, cfg.Reddit.Subreddits)
	assert.Equal(t, 7, cfg.Retrieval.DefaultDaysBack)
	assert.Equal(t, 50, cfg.Retrieval.MaxResultsPerSource)
	assert.Equal(t, 3, cfg.Retrieval.TargetItems)
	assert.Equal(t, 50, cfg.Retrieval.MaxBatchSize)
	assert.Equal(t, 1, cfg.Reflection.MaxIterations)
	assert.True(t, cfg.LinkedIn.DryRun)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
ledger:
  path: /var/lib/litagent/ledger.csv
llm:
  model: mistralai/Mistral-7B-Instruct
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/litagent/ledger.csv", cfg.Ledger.Path)
	assert.Equal(t, "mistralai/Mistral-7B-Instruct", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Retrieval.MaxResultsPerSource)
}

func TestLoadEnvOverrides(t *testing.T) {
	chTempDir(t)

	t.Setenv("LITAGENT_LLM_BASE_URL", "http://vllm.internal:8000/v1")
	t.Setenv("LITAGENT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://vllm.internal:8000/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateOK(t *testing.T) {
	chTempDir(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidateMissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.path is required")
	assert.Contains(t, err.Error(), "llm.base_url is required")
	assert.Contains(t, err.Error(), "search.keywords must not be empty")
}

func TestValidateBatchBounds(t *testing.T) {
	chTempDir(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Retrieval.MaxBatchSize = 10
	cfg.Retrieval.MaxResultsPerSource = 20
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_batch_size")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
