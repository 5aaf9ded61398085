package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadFrom(t *testing.T) {
	t.Run("Should expand env placeholders and apply defaults", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("APP_ENV", "test")
		t.Setenv("GROQ_API_KEY", "gsk_live")
		writeConfig(t, dir, "config.yaml", `
vector:
  chroma:
    api_key: ${CHROMA_TEST_KEY_UNSET}
    tenant: ${CHROMA_TENANT_UNSET:tenant-a}
llm:
  fallback_chain: [" Groq ", openrouter]
  providers:
    groq:
      api_key: ${GROQ_API_KEY}
      base_url: https://api.groq.com/openai/v1
      model: llama-3.3-70b-versatile
      timeout: 45s
    openrouter:
      kind: KEYED
`)

		cfg, err := LoadFrom(dir)
		require.NoError(t, err)

		assert.Equal(t, "tenant-a", cfg.Vector.Chroma.Tenant)
		assert.True(t, IsPlaceholder(cfg.Vector.Chroma.APIKey))
		assert.Equal(t, []string{"groq", "openrouter"}, cfg.LLM.FallbackChain)
		assert.Equal(t, "gsk_live", cfg.LLM.Providers["groq"].APIKey)
		assert.Equal(t, "openai", cfg.LLM.Providers["groq"].Kind)
		assert.Equal(t, "keyed", cfg.LLM.Providers["openrouter"].Kind)
		assert.Equal(t, 45*time.Second, cfg.LLM.Providers["groq"].Timeout)

		assert.Equal(t, "chroma", cfg.Vector.Backend)
		assert.Equal(t, "Curriculumnpdfs", cfg.Vector.Collection)
		assert.Equal(t, 10, cfg.Retrieval.NResults)
		assert.Equal(t, 100, cfg.Retrieval.FingerprintLength)
		assert.Equal(t, 1500, cfg.Ingestion.ChunkSize)
		assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
		assert.Equal(t, "Africa/Nairobi", cfg.Chat.Timezone)
		assert.Equal(t, DefaultFallbackMessage, cfg.Chat.FallbackMessage)
	})

	t.Run("Should merge the environment specific file over the base file", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("APP_ENV", "staging")
		writeConfig(t, dir, "config.yaml", "retrieval:\n  n_results: 5\n  max_keywords: 2\n")
		writeConfig(t, dir, "config.staging.yaml", "retrieval:\n  n_results: 12\n")

		cfg, err := LoadFrom(dir)
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.Retrieval.NResults)
		assert.Equal(t, 2, cfg.Retrieval.MaxKeywords)
	})

	t.Run("Should fail when the base file is missing", func(t *testing.T) {
		_, err := LoadFrom(t.TempDir())
		require.Error(t, err)
	})
}

func TestIsPlaceholder(t *testing.T) {
	t.Run("Should flag missing and template credentials", func(t *testing.T) {
		for _, v := range []string{"", "  ", "your_groq_key", "YOUR-KEY", "changeme", "${GROQ_API_KEY}", "<api-key>", "xxxx", "placeholder"} {
			assert.True(t, IsPlaceholder(v), v)
		}
	})

	t.Run("Should accept real looking credentials", func(t *testing.T) {
		for _, v := range []string{"gsk_abc123", "hf_live_token", "sk-or-v1-9f"} {
			assert.False(t, IsPlaceholder(v), v)
		}
	})
}
