// Package config provides configuration for the chat service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/provider"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "dev-secret-change-me"

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	ClientOrigin string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret  string
	JWTExpires time.Duration

	// Providers
	ProviderDefault        string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	GeminiAPIKey           string
	GeminiBaseURL          string
	GoogleCredentials      string
	DialogflowProjectID    string
	DialogflowLanguageCode string
	DialogflowBaseURL      string
	ProviderTimeout        time.Duration
	StreamWordDelay        time.Duration
	CancelOnDisconnect     bool

	// Features
	FeatureWS    bool
	FeatureTools bool

	// Limits
	MaxMessageLength        int
	MaxSystemPromptLength   int
	TokenBudgetDefault      int
	TokenBudgetMax          int
	SummaryKeepRecent       int
	ManualSummaryKeepRecent int

	// Sessions
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	// Streaming
	SSEHeartbeatInterval time.Duration
	SSERetry             time.Duration

	// Rate limiting
	RateLimitWindow time.Duration
	RateLimitMax    int
	RedisAddr       string

	// Logging
	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("CLIENT_ORIGIN", "http://localhost:5173")
	v.SetDefault("DATABASE_URL", "file:chat.db?cache=shared&mode=rwc")
	v.SetDefault("JWT_SECRET", DefaultJWTSecret)
	v.SetDefault("JWT_EXPIRES", "168h")
	v.SetDefault("PROVIDER_DEFAULT", provider.NameMock)
	v.SetDefault("OPENAI_BASE_URL", provider.DefaultOpenAIBaseURL)
	v.SetDefault("GEMINI_BASE_URL", provider.DefaultGeminiBaseURL)
	v.SetDefault("DIALOGFLOW_LANGUAGE_CODE", "en")
	v.SetDefault("DIALOGFLOW_BASE_URL", provider.DefaultDialogflowBaseURL)
	v.SetDefault("PROVIDER_TIMEOUT", "30s")
	v.SetDefault("STREAM_WORD_DELAY", "50ms")
	v.SetDefault("CANCEL_ON_DISCONNECT", false)
	v.SetDefault("FEATURE_WS", false)
	v.SetDefault("FEATURE_TOOLS", false)
	v.SetDefault("MAX_MESSAGE_LENGTH", 10000)
	v.SetDefault("MAX_SYSTEM_PROMPT_LENGTH", 5000)
	v.SetDefault("TOKEN_BUDGET_DEFAULT", 100000)
	v.SetDefault("TOKEN_BUDGET_MAX", 1000000)
	v.SetDefault("SUMMARY_KEEP_RECENT", 10)
	v.SetDefault("MANUAL_SUMMARY_KEEP_RECENT", 5)
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1m")
	v.SetDefault("SSE_HEARTBEAT_INTERVAL", "15s")
	v.SetDefault("SSE_RETRY_MS", 3000)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_MAX", 1000)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads configuration from the environment and, when CONFIG_FILE is set,
// from that file. Environment variables win over the file.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:                v.GetInt("HTTP_PORT"),
		ClientOrigin:            v.GetString("CLIENT_ORIGIN"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		JWTSecret:               v.GetString("JWT_SECRET"),
		JWTExpires:              v.GetDuration("JWT_EXPIRES"),
		ProviderDefault:         v.GetString("PROVIDER_DEFAULT"),
		OpenAIAPIKey:            v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:           v.GetString("OPENAI_BASE_URL"),
		GeminiAPIKey:            v.GetString("GEMINI_API_KEY"),
		GeminiBaseURL:           v.GetString("GEMINI_BASE_URL"),
		GoogleCredentials:       v.GetString("GOOGLE_APPLICATION_CREDENTIALS"),
		DialogflowProjectID:     v.GetString("DIALOGFLOW_PROJECT_ID"),
		DialogflowLanguageCode:  v.GetString("DIALOGFLOW_LANGUAGE_CODE"),
		DialogflowBaseURL:       v.GetString("DIALOGFLOW_BASE_URL"),
		ProviderTimeout:         v.GetDuration("PROVIDER_TIMEOUT"),
		StreamWordDelay:         v.GetDuration("STREAM_WORD_DELAY"),
		CancelOnDisconnect:      v.GetBool("CANCEL_ON_DISCONNECT"),
		FeatureWS:               v.GetBool("FEATURE_WS"),
		FeatureTools:            v.GetBool("FEATURE_TOOLS"),
		MaxMessageLength:        v.GetInt("MAX_MESSAGE_LENGTH"),
		MaxSystemPromptLength:   v.GetInt("MAX_SYSTEM_PROMPT_LENGTH"),
		TokenBudgetDefault:      v.GetInt("TOKEN_BUDGET_DEFAULT"),
		TokenBudgetMax:          v.GetInt("TOKEN_BUDGET_MAX"),
		SummaryKeepRecent:       v.GetInt("SUMMARY_KEEP_RECENT"),
		ManualSummaryKeepRecent: v.GetInt("MANUAL_SUMMARY_KEEP_RECENT"),
		SessionTTL:              v.GetDuration("SESSION_TTL"),
		SessionSweepInterval:    v.GetDuration("SESSION_SWEEP_INTERVAL"),
		SSEHeartbeatInterval:    v.GetDuration("SSE_HEARTBEAT_INTERVAL"),
		SSERetry:                time.Duration(v.GetInt("SSE_RETRY_MS")) * time.Millisecond,
		RateLimitWindow:         v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMax:            v.GetInt("RATE_LIMIT_MAX"),
		RedisAddr:               v.GetString("REDIS_ADDR"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		LogFormat:               v.GetString("LOG_FORMAT"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.TokenBudgetDefault <= 0 || c.TokenBudgetMax <= 0 {
		return fmt.Errorf("token budgets must be positive")
	}
	if c.TokenBudgetDefault > c.TokenBudgetMax {
		return fmt.Errorf("TOKEN_BUDGET_DEFAULT (%d) exceeds TOKEN_BUDGET_MAX (%d)", c.TokenBudgetDefault, c.TokenBudgetMax)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	if c.SummaryKeepRecent < 0 || c.ManualSummaryKeepRecent < 0 {
		return fmt.Errorf("summary keep counts must not be negative")
	}
	return nil
}

// ProviderOptions maps the provider settings onto registry options.
func (c *Config) ProviderOptions() provider.Options {
	return provider.Options{
		Default:               c.ProviderDefault,
		Timeout:               c.ProviderTimeout,
		WordDelay:             c.StreamWordDelay,
		Tools:                 c.FeatureTools,
		OpenAIAPIKey:          c.OpenAIAPIKey,
		OpenAIBaseURL:         c.OpenAIBaseURL,
		GeminiAPIKey:          c.GeminiAPIKey,
		GeminiBaseURL:         c.GeminiBaseURL,
		DialogflowCredentials: c.GoogleCredentials,
		DialogflowProjectID:   c.DialogflowProjectID,
		DialogflowLanguage:    c.DialogflowLanguageCode,
		DialogflowBaseURL:     c.DialogflowBaseURL,
	}
}
