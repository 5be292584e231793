package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "first-match", cfg.Strategy)
	assert.Equal(t, 100, cfg.CycleLimit)
	assert.False(t, cfg.SchemaCheck)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "strategy: stratified-manual\ncycle_limit: 50\nschema_check: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stratified-manual", cfg.Strategy)
	assert.Equal(t, 50, cfg.CycleLimit)
	assert.True(t, cfg.SchemaCheck)
	// Fields absent from the overlay keep their default.
	assert.Equal(t, "gpt-4o-mini", cfg.Chat.Model)
}

func TestOpenAIAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, ok := OpenAIAPIKey()
	assert.False(t, ok)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	key, ok := OpenAIAPIKey()
	assert.True(t, ok)
	assert.Equal(t, "sk-test", key)
}
