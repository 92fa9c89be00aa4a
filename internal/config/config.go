package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/intake-sim/backend/internal/service/ai/provider"
)

// 支持的大模型供应商。
const (
	ProviderArk       = "ark"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrMissingCredentials 表示所选供应商缺少必需的凭证或模型配置。
var ErrMissingCredentials = errors.New("completion provider credentials or model missing")

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Session   SessionConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// Overrides 是命令行传入的覆盖项，空值表示不覆盖。
type Overrides struct {
	// APIKey 未显式设置 LLM_PROVIDER 时视为 Anthropic 密钥。
	APIKey string
	Addr   string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides 从环境变量加载配置，并在提供者探测前应用命令行覆盖项。
func LoadWithOverrides(o Overrides) (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	if addr := strings.TrimSpace(o.Addr); addr != "" {
		parsed, err := ParseAddr(addr)
		if err != nil {
			return nil, err
		}
		server.Addr = parsed.Addr
	}

	ai, err := loadAIConfig(strings.TrimSpace(o.APIKey))
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Session:   session,
		Log:       loadLogConfig(),
		Telemetry: telemetry,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与 CORS 来源。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}
	server, err := ParseAddr(port)
	if err != nil {
		return ServerConfig{}, err
	}
	server.AllowedOrigins = parseListEnv("CORS_ALLOWED_ORIGINS", []string{"*"})
	return server, nil
}

// ParseAddr 接受 "8000"、":8000" 或 "127.0.0.1:8000" 形式的地址。
func ParseAddr(port string) (ServerConfig, error) {
	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型及对话编排相关配置。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	// MaxTokens is the completion budget sent with every chat exchange.
	MaxTokens        int
	InjectReminder   bool
	CheckConsistency bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

// Validate 在启动阶段检查配置，缺少凭证时返回 ErrMissingCredentials。
func (c AIConfig) Validate() error {
	switch c.Provider {
	case ProviderArk, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.Provider)
	}
	if !c.Enabled() {
		return fmt.Errorf("%s: %w", c.Provider, ErrMissingCredentials)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max tokens %d", c.MaxTokens)
	}
	return nil
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	maxTokens := c.MaxTokens

	switch c.Provider {
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   &maxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	default:
		return provider.NewOpenAIChatModel(provider.OpenAIConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   &maxTokens,
		})
	}
}

func loadAIConfig(apiKey string) (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := 1000
	if override, err := parseOptionalIntEnv("LLM_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	reminder, err := parseBoolEnv("CHAT_INJECT_REMINDER", true)
	if err != nil {
		return AIConfig{}, err
	}

	consistency, err := parseBoolEnv("CHAT_CHECK_CONSISTENCY", true)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:         detectProvider(apiKey),
		Temperature:      temperature,
		TopP:             topP,
		MaxTokens:        maxTokens,
		InjectReminder:   reminder,
		CheckConsistency: consistency,
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		cfg.Model = getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest")
		cfg.BaseURL = getEnvOrDefault("ANTHROPIC_BASE_URL", provider.AnthropicBaseURL)
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "")
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("ARK_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	return cfg, nil
}

// detectProvider 优先读取 LLM_PROVIDER，否则根据已配置的密钥推断。
// 命令行密钥等同于 ANTHROPIC_API_KEY。
func detectProvider(flagKey string) string {
	if p := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))); p != "" {
		return p
	}
	if flagKey != "" || strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")) != "" {
		return ProviderAnthropic
	}
	if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "" {
		return ProviderOpenAI
	}
	return ProviderArk
}

// SessionConfig 描述会话存储配置。
type SessionConfig struct {
	MaxTurns      int
	IdleTTL       time.Duration
	SweepInterval time.Duration
	CookieName    string
	CookieSecure  bool
}

func loadSessionConfig() (SessionConfig, error) {
	maxTurns := 20
	if override, err := parseOptionalIntEnv("SESSION_MAX_TURNS"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_MAX_TURNS value %d", *override)
		}
		maxTurns = *override
	}

	idleTTL, err := parseDurationEnv("SESSION_IDLE_TTL", 0)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	secure, err := parseBoolEnv("SESSION_COOKIE_SECURE", false)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		MaxTurns:      maxTurns,
		IdleTTL:       idleTTL,
		SweepInterval: sweep,
		CookieName:    getEnvOrDefault("SESSION_COOKIE_NAME", "session_id"),
		CookieSecure:  secure,
	}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level string
	File  string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
		File:  getEnvOrDefault("LOG_FILE", ""),
	}
}

// TelemetryConfig 描述 OpenTelemetry 导出配置。
type TelemetryConfig struct {
	Enabled bool
	Dir     string
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("OTEL_ENABLED", false)
	if err != nil {
		return TelemetryConfig{}, err
	}
	return TelemetryConfig{
		Enabled: enabled,
		Dir:     getEnvOrDefault("OTEL_DIR", "logs"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseListEnv(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
