package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/docmeta/internal/cache"
	"github.com/jonathan/docmeta/internal/config"
	"github.com/jonathan/docmeta/internal/llm"
	"github.com/jonathan/docmeta/internal/observability"
)

func TestLLMConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.GeminiAPIKey = "key"
	cfg.LLMTimeout = config.Duration(30 * time.Second)

	lc := llmConfig(&cfg)
	assert.Equal(t, llm.ProviderGemini, lc.Provider)
	assert.Equal(t, "key", lc.APIKey)
	assert.Equal(t, 30*time.Second, lc.Timeout)

	cfg.LLMProvider = config.ProviderVertex
	cfg.VertexProject = "proj"
	cfg.Model = "gemini-custom"
	lc = llmConfig(&cfg)
	assert.Equal(t, llm.ProviderVertex, lc.Provider)
	assert.Equal(t, "proj", lc.Project)
	assert.Equal(t, "gemini-custom", lc.ExtractionModel())
}

func TestNewCache(t *testing.T) {
	cfg := config.Defaults()
	a := &app{cfg: &cfg, logger: observability.Nop()}

	c, err := a.newCache(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryClient{}, c)

	cfg.CacheDisabled = true
	c, err = a.newCache(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewApp(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.processor)
	assert.Equal(t, 4, a.processor.Workers())
	assert.FileExists(t, filepath.Join(dir, "docmeta.db"))
	assert.NoError(t, a.Close())
}

func TestLoadConfig_RequiresProviderCredentials(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LLM_PROVIDER", "vertex")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	_, err := loadConfig(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLOUD_PROJECT")

	_, err = loadConfig(false)
	assert.NoError(t, err)
}

func TestProcessCommand_ConfigError(t *testing.T) {
	isolateEnv(t)
	t.Setenv("WORKERS", "0")

	_, err := execute(t, "process", "--location", t.TempDir(), "--template", "contracts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}
