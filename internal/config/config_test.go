package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := GetHuntDedupDir(root)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
}

func TestLoadConfigDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadConfigFrom(root)
	require.NoError(t, err)

	assert.Equal(t, DefaultSimilarityThreshold, cfg.SimilarityThreshold)
	assert.Equal(t, similarity.DefaultWeights(), cfg.SimilarityWeights)
	assert.Equal(t, ttp.DefaultWeights(), cfg.TTPWeights)
	assert.Equal(t, 0.5, cfg.TTPThreshold)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultSeedLimit, cfg.SeedLimit)
	assert.Equal(t, DefaultReportTopN, cfg.ReportTopN)
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLMBaseURL)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(root, DirName, "store.sqlite3"), cfg.DBPath)
	assert.Equal(t, filepath.Join(root, DirName, "logs", "huntdedup.log"), cfg.LogFile)
	assert.DirExists(t, filepath.Join(root, DirName, "logs"))
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[similarity]
threshold = 0.8
report_top_n = 5

[similarity.weights]
lexical = 0.25
semantic = 0.25
structural = 0.25
keyword = 0.25

[ttp]
threshold = 0.6

[generation]
max_attempts = 7

[corpus]
path = "hunts.yaml"

[llm]
base_url = "http://llm.internal:8000/v1/"
model = "openai/gpt-4o-mini"

[cache]
enabled = false
`)

	cfg, err := LoadConfigFrom(root)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.SimilarityThreshold)
	assert.Equal(t, 5, cfg.ReportTopN)
	assert.Equal(t, 0.25, cfg.SimilarityWeights.Keyword)
	assert.Equal(t, 0.6, cfg.TTPThreshold)
	assert.Equal(t, ttp.DefaultWeights(), cfg.TTPWeights)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, filepath.Join(root, "hunts.yaml"), cfg.CorpusPath)
	assert.Equal(t, "http://llm.internal:8000/v1", cfg.LLMBaseURL)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLMModel)
	assert.False(t, cfg.CacheEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigExplicitZeros(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[similarity]
threshold = 0.0

[ttp]
threshold = 0

[generation]
seed_limit = 0

[llm]
max_retries = 0

[metrics]
endpoint = "collector:4317"
`)

	cfg, err := LoadConfigFrom(root)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.SimilarityThreshold)
	assert.Equal(t, 0.0, cfg.TTPThreshold)
	assert.Equal(t, 0, cfg.SeedLimit)
	assert.Equal(t, 0, cfg.LLMMaxRetries)
	assert.Equal(t, "collector:4317", cfg.MetricsEndpoint)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMalformedFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[similarity\nthreshold = ")

	_, err := LoadConfigFrom(root)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[similarity]\nthreshold = 0.8\n")

	t.Setenv("HUNTDEDUP_SIMILARITY_THRESHOLD", "0.65")
	t.Setenv("HUNTDEDUP_MAX_ATTEMPTS", "3")
	t.Setenv("HUNTDEDUP_CACHE_ENABLED", "0")
	t.Setenv("HUNTDEDUP_LOG_LEVEL", "debug")
	t.Setenv("HUNTDEDUP_LLM_API_KEY", "sk-test")
	t.Setenv("HUNTDEDUP_TTP_THRESHOLD", "not-a-number")

	cfg, err := LoadConfigFrom(root)
	require.NoError(t, err)

	assert.Equal(t, 0.65, cfg.SimilarityThreshold)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sk-test", cfg.LLMAPIKey)
	assert.Equal(t, DefaultTTPThreshold, cfg.TTPThreshold, "unparseable values are ignored")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfigFrom(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"negative ttp threshold", func(c *Config) { c.TTPThreshold = -0.1 }},
		{"weights do not sum to one", func(c *Config) { c.SimilarityWeights.Lexical = 0.9 }},
		{"ttp weights do not sum to one", func(c *Config) { c.TTPWeights.Tactic = 0 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"empty base url", func(c *Config) { c.LLMBaseURL = "  " }},
		{"zero timeout", func(c *Config) { c.LLMTimeoutSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFindProjectRootFrom(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DirName), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	assert.Equal(t, root, findProjectRootFrom(nested))

	bare := t.TempDir()
	assert.Equal(t, bare, findProjectRootFrom(bare))
}

func TestConfigContext(t *testing.T) {
	cfg := &Config{LogLevel: "warn"}
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
