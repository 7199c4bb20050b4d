package provider

import (
	"log/slog"
	"time"
)

// Options holds the settings needed to build every adapter.
type Options struct {
	Default   string
	Timeout   time.Duration
	WordDelay time.Duration
	Tools     bool

	OpenAIAPIKey  string
	OpenAIBaseURL string

	GeminiAPIKey  string
	GeminiBaseURL string

	DialogflowCredentials string
	DialogflowProjectID   string
	DialogflowLanguage    string
	DialogflowBaseURL     string

	// Logger receives registration messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewRegistryFromOptions builds a registry with all four adapters.
func NewRegistryFromOptions(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry(opts.Default,
		NewMock(opts.WordDelay),
		NewOpenAI(OpenAIConfig{
			APIKey:        opts.OpenAIAPIKey,
			BaseURL:       opts.OpenAIBaseURL,
			Timeout:       opts.Timeout,
			SupportsTools: opts.Tools,
		}),
		NewGemini(GeminiConfig{
			APIKey:        opts.GeminiAPIKey,
			BaseURL:       opts.GeminiBaseURL,
			Timeout:       opts.Timeout,
			SupportsTools: opts.Tools,
		}),
		NewDialogflow(DialogflowConfig{
			CredentialsFile: opts.DialogflowCredentials,
			ProjectID:       opts.DialogflowProjectID,
			LanguageCode:    opts.DialogflowLanguage,
			BaseURL:         opts.DialogflowBaseURL,
			Timeout:         opts.Timeout,
			WordDelay:       opts.WordDelay,
		}),
	)

	for _, info := range r.ListAvailable() {
		logger.Info("provider registered", "provider", info.Name, "enabled", info.Enabled, "model", info.DefaultModel)
	}
	if d := r.Default(); d.Name() != opts.Default {
		logger.Warn("default provider not enabled, falling back", "configured", opts.Default, "using", d.Name())
	}
	return r
}
