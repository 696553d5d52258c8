// Package config loads runtime configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ShutdownTimeout    time.Duration
	AllowedOrigins     []string

	// NATS settings. An empty URL disables the audit log and lead stream.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey    string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	DefaultLLM         string
	LLMModel           string
	EmbeddingModel     string
	LLMCallTimeout     time.Duration
	LLMBreakerFailures uint32
	LLMBreakerCooldown time.Duration

	// Conversation state
	RedisURL        string
	ConversationTTL time.Duration
	HistoryWindow   int

	// Token ledger. Driver is memory, sqlite or postgres.
	LedgerDriver string
	LedgerDSN    string

	// Agent scoring configs: a YAML directory or a Postgres DSN.
	AgentConfigDir string
	AgentConfigDSN string

	// Knowledge search
	ElasticsearchURL      string
	ElasticsearchUsername string
	ElasticsearchPassword string
	KnowledgeIndexPrefix  string

	// Hot lead notifications
	SNSTopicARN string
	AWSRegion   string

	// Rate limiting
	RateLimitRequests     int
	UserRateLimitRequests int
	RateLimitWindow       time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Diagnostics
	GopsEnabled bool
}

var defaults = map[string]any{
	"port":                 "8080",
	"server_read_timeout":  "30s",
	"server_write_timeout": "120s",
	"shutdown_timeout":     "30s",
	"allowed_origins":      "",

	"nats_url": "",

	"jwt_secret": "",

	"default_llm":          "openai",
	"llm_model":            "",
	"embedding_model":      "text-embedding-3-small",
	"llm_call_timeout":     "30s",
	"llm_breaker_failures": 5,
	"llm_breaker_cooldown": "30s",

	"redis_url":        "",
	"conversation_ttl": "720h",
	"history_window":   12,

	"ledger_driver": "memory",
	"ledger_dsn":    "",

	"knowledge_index_prefix": "knowledge-",

	"aws_region": "us-east-1",

	"rate_limit_requests":      60,
	"user_rate_limit_requests": 20,
	"rate_limit_window":        "1m",

	"log_level":  "info",
	"log_format": "json",

	"tracing_endpoint": "localhost:4318",
	"tracing_enabled":  false,

	"gops_enabled": false,
}

// Load reads configuration from, in increasing precedence, built-in
// defaults, an optional config.yaml, an optional .env file and the process
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ServerPort:         v.GetString("port"),
		ServerReadTimeout:  v.GetDuration("server_read_timeout"),
		ServerWriteTimeout: v.GetDuration("server_write_timeout"),
		ShutdownTimeout:    v.GetDuration("shutdown_timeout"),
		AllowedOrigins:     splitList(v.GetString("allowed_origins")),

		NATSURL:      v.GetString("nats_url"),
		NATSCAFile:   v.GetString("nats_ca_file"),
		NATSCertFile: v.GetString("nats_cert_file"),
		NATSKeyFile:  v.GetString("nats_key_file"),
		NATSToken:    v.GetString("nats_token"),

		JWTSecret: v.GetString("jwt_secret"),

		AnthropicAPIKey:    v.GetString("anthropic_api_key"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		OpenAIBaseURL:      v.GetString("openai_base_url"),
		DefaultLLM:         strings.ToLower(v.GetString("default_llm")),
		LLMModel:           v.GetString("llm_model"),
		EmbeddingModel:     v.GetString("embedding_model"),
		LLMCallTimeout:     v.GetDuration("llm_call_timeout"),
		LLMBreakerFailures: v.GetUint32("llm_breaker_failures"),
		LLMBreakerCooldown: v.GetDuration("llm_breaker_cooldown"),

		RedisURL:        v.GetString("redis_url"),
		ConversationTTL: v.GetDuration("conversation_ttl"),
		HistoryWindow:   v.GetInt("history_window"),

		LedgerDriver: strings.ToLower(v.GetString("ledger_driver")),
		LedgerDSN:    v.GetString("ledger_dsn"),

		AgentConfigDir: v.GetString("agent_config_dir"),
		AgentConfigDSN: v.GetString("agent_config_dsn"),

		ElasticsearchURL:      v.GetString("elasticsearch_url"),
		ElasticsearchUsername: v.GetString("elasticsearch_username"),
		ElasticsearchPassword: v.GetString("elasticsearch_password"),
		KnowledgeIndexPrefix:  v.GetString("knowledge_index_prefix"),

		SNSTopicARN: v.GetString("sns_topic_arn"),
		AWSRegion:   v.GetString("aws_region"),

		RateLimitRequests:     v.GetInt("rate_limit_requests"),
		UserRateLimitRequests: v.GetInt("user_rate_limit_requests"),
		RateLimitWindow:       v.GetDuration("rate_limit_window"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		TracingEndpoint: v.GetString("tracing_endpoint"),
		TracingEnabled:  v.GetBool("tracing_enabled"),

		GopsEnabled: v.GetBool("gops_enabled"),
	}
}

// Validate reports every setting that prevents the server from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	switch c.DefaultLLM {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when DEFAULT_LLM=openai"))
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required when DEFAULT_LLM=anthropic"))
		}
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_LLM must be openai or anthropic, got %q", c.DefaultLLM))
	}

	switch c.LedgerDriver {
	case "memory":
	case "sqlite", "postgres":
		if c.LedgerDSN == "" {
			errs = append(errs, fmt.Errorf("LEDGER_DSN is required when LEDGER_DRIVER=%s", c.LedgerDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_DRIVER must be memory, sqlite or postgres, got %q", c.LedgerDriver))
	}

	if c.AgentConfigDir != "" && c.AgentConfigDSN != "" {
		errs = append(errs, errors.New("set only one of AGENT_CONFIG_DIR and AGENT_CONFIG_DSN"))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, errors.New("HISTORY_WINDOW must be positive"))
	}
	if c.LLMCallTimeout <= 0 {
		errs = append(errs, errors.New("LLM_CALL_TIMEOUT must be positive"))
	}
	if c.RateLimitRequests < 0 || c.UserRateLimitRequests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and USER_RATE_LIMIT_REQUESTS must not be negative"))
	}
	if (c.RateLimitRequests > 0 || c.UserRateLimitRequests > 0) && c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
