package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := FromViper(newViper())

	assert.Equal(t, 8080, cfg.BackendPort)
	assert.Equal(t, 8090, cfg.GatewayPort)
	assert.Equal(t, "MOCK", cfg.LLMMode)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.ApproveAllWorkers)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
}

func TestPrefixedEnvWins(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "9000")
	t.Setenv("QGEN_GATEWAY_PORT", "9100")
	t.Setenv("BACKEND_URL", "http://backend:8080")
	t.Setenv("QGEN_REQUEST_TIMEOUT_MS", "1500")

	cfg := FromViper(newViper())

	assert.Equal(t, 9100, cfg.GatewayPort)
	assert.Equal(t, "http://backend:8080", cfg.BackendURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := t.TempDir() + "/test.env"
	require.NoError(t, os.WriteFile(path, []byte("QGEN_LLM_MODE=OPENAI\nQGEN_OPENAI_MODEL=gpt-4o\n"), 0o600))
	t.Setenv("QGEN_ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("QGEN_LLM_MODE")
		os.Unsetenv("QGEN_OPENAI_MODEL")
	})

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "OPENAI", cfg.LLMMode)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
}
