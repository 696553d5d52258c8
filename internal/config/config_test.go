package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "memory", cfg.LedgerDriver)
	assert.Equal(t, 12, cfg.HistoryWindow)
	assert.Equal(t, 30*time.Second, cfg.LLMCallTimeout)
	assert.Equal(t, 720*time.Hour, cfg.ConversationTTL)
	assert.Equal(t, uint32(5), cfg.LLMBreakerFailures)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.Equal(t, 20, cfg.UserRateLimitRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("port: \"9000\"\nhistory_window: 6\nledger_driver: sqlite\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("LEDGER_DSN=file:ledger.db\nALLOWED_ORIGINS=https://a.example, https://b.example\n"), 0o600))
	t.Setenv("PORT", "9100")
	t.Setenv("LLM_CALL_TIMEOUT", "5s")
	// godotenv never overrides variables that are already set.
	t.Setenv("LEDGER_DSN", "")
	os.Unsetenv("LEDGER_DSN")
	t.Setenv("ALLOWED_ORIGINS", "")
	os.Unsetenv("ALLOWED_ORIGINS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.ServerPort)
	assert.Equal(t, 6, cfg.HistoryWindow)
	assert.Equal(t, "sqlite", cfg.LedgerDriver)
	assert.Equal(t, "file:ledger.db", cfg.LedgerDSN)
	assert.Equal(t, 5*time.Second, cfg.LLMCallTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:      "s",
			DefaultLLM:     "openai",
			OpenAIAPIKey:   "sk-test",
			LedgerDriver:   "memory",
			HistoryWindow:  12,
			LLMCallTimeout: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"missing provider key", func(c *Config) { c.DefaultLLM = "anthropic" }, "ANTHROPIC_API_KEY"},
		{"unknown provider", func(c *Config) { c.DefaultLLM = "llama" }, "DEFAULT_LLM"},
		{"ledger dsn", func(c *Config) { c.LedgerDriver = "postgres" }, "LEDGER_DSN"},
		{"two config sources", func(c *Config) { c.AgentConfigDir, c.AgentConfigDSN = "d", "postgres://x" }, "AGENT_CONFIG_DIR"},
		{"history window", func(c *Config) { c.HistoryWindow = 0 }, "HISTORY_WINDOW"},
		{"user limit without window", func(c *Config) { c.UserRateLimitRequests = 5 }, "RATE_LIMIT_WINDOW"},
		{"negative limit", func(c *Config) { c.RateLimitRequests = -1 }, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
