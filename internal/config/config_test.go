package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journal/api/internal/ai"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, []string{"/journal", "/settings", "/profile"}, cfg.Protected)
	assert.Contains(t, cfg.PublicPrefix, "/favicon.ico")
	assert.Equal(t, "openai", cfg.AIProvider)
	assert.False(t, cfg.DebugRoutes)
	assert.False(t, cfg.SMTPConfigured())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("JOURNAL_CALL_TIMEOUT", "2s")
	t.Setenv("JOURNAL_PROTECTED_PREFIXES", "/journal,/private")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, []string{"/journal", "/private"}, cfg.Protected)

	aiCfg := cfg.AI()
	assert.Equal(t, ai.ProviderOllama, aiCfg.Provider)
	assert.Equal(t, "mistral", aiCfg.Ollama.Model)
	assert.Equal(t, "g-key", aiCfg.Gemini.APIKey)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_PROVIDER", "anthropic")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrInvalidProvider)
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JOURNAL_CALL_TIMEOUT", "0s")

	_, err := Load()
	require.Error(t, err)
}
