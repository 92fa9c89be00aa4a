package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS", "LLM_PROVIDER", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "LLM_TOP_P",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL",
		"CHAT_INJECT_REMINDER", "CHAT_CHECK_CONSISTENCY",
		"SESSION_MAX_TURNS", "SESSION_IDLE_TTL", "SESSION_SWEEP_INTERVAL",
		"SESSION_COOKIE_NAME", "SESSION_COOKIE_SECURE",
		"LOG_LEVEL", "LOG_FILE", "OTEL_ENABLED", "OTEL_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	assert.Equal(t, 1000, cfg.AI.MaxTokens)
	assert.True(t, cfg.AI.InjectReminder)
	assert.True(t, cfg.AI.CheckConsistency)
	assert.Equal(t, 20, cfg.Session.MaxTurns)
	assert.Zero(t, cfg.Session.IdleTTL)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, "session_id", cfg.Session.CookieName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadDetectsAnthropicFromKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, "sk-ant", cfg.AI.APIKey)
	assert.Equal(t, "https://api.anthropic.com/v1", cfg.AI.BaseURL)
	assert.NoError(t, cfg.AI.Validate())
}

func TestLoadExplicitProviderWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("LLM_PROVIDER", "OpenAI")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "sk-openai", cfg.AI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
}

func TestLoadAPIKeyOverrideSelectsAnthropic(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithOverrides(Overrides{APIKey: "sk-ant-flag"})
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, "sk-ant-flag", cfg.AI.APIKey)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.AI.Model)
	assert.NoError(t, cfg.AI.Validate())
}

func TestLoadAPIKeyOverrideReplacesEnvKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := LoadWithOverrides(Overrides{APIKey: "sk-flag", Addr: "127.0.0.1:9100"})
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "sk-flag", cfg.AI.APIKey)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Addr)
}

func TestLoadRejectsInvalidAddrOverride(t *testing.T) {
	clearEnv(t)

	_, err := LoadWithOverrides(Overrides{Addr: "80 80"})
	assert.Error(t, err)
}

func TestValidateMissingCredentials(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.AI.Validate()
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, err = cfg.AI.NewChatModel(context.Background())
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestValidateUnknownProvider(t *testing.T) {
	cfg := AIConfig{Provider: "gemini", APIKey: "k", Model: "m", MaxTokens: 10}
	require.Error(t, cfg.Validate())
}

func TestArkAcceptsAccessKeyPair(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, AccessKey: "ak", SecretKey: "sk", Model: "ep", MaxTokens: 10}
	assert.NoError(t, cfg.Validate())

	cfg.SecretKey = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
}

func TestNewChatModelOpenAI(t *testing.T) {
	cfg := AIConfig{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini", MaxTokens: 1000}
	m, err := cfg.NewChatModel(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LLM_MAX_TOKENS":         "lots",
		"CHAT_INJECT_REMINDER":   "maybe",
		"SESSION_MAX_TURNS":      "0",
		"SESSION_IDLE_TTL":       "forever",
		"SESSION_SWEEP_INTERVAL": "-1s",
		"OTEL_ENABLED":           "sure",
		"PORT":                   "80 80",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseAddr(t *testing.T) {
	got, err := ParseAddr("9000")
	require.NoError(t, err)
	assert.Equal(t, ":9000", got.Addr)

	got, err = ParseAddr("127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", got.Addr)
}

func TestSessionOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_MAX_TURNS", "8")
	t.Setenv("SESSION_IDLE_TTL", "30m")
	t.Setenv("SESSION_COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Session.MaxTurns)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.True(t, cfg.Session.CookieSecure)
}

func TestLoadAllowedOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, ,https://intake.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://intake.example"}, cfg.Server.AllowedOrigins)
}
