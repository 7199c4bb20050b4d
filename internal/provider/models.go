package provider

// Default models per provider.
const (
	DefaultMockModel       = "mock-model"
	DefaultOpenAIModel     = "gpt-3.5-turbo"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultDialogflowModel = "dialogflow-default"
)

var modelAliases = map[string]map[string]string{
	NameOpenAI: {
		"gpt-3.5-turbo-0301": "gpt-3.5-turbo",
		"gpt-3.5-turbo-0613": "gpt-3.5-turbo",
		"gpt-4-0314":         "gpt-4",
		"gpt-4-32k":          "gpt-4",
	},
	NameGemini: {
		"gemini-pro":       DefaultGeminiModel,
		"gemini-1.5-flash": DefaultGeminiModel,
		"gemini-1.5-pro":   DefaultGeminiModel,
	},
}

// NormalizeModel maps deprecated model names of a provider to their current equivalents.
// Empty input yields def.
func NormalizeModel(provider, model, def string) string {
	if model == "" {
		return def
	}
	if alias, ok := modelAliases[provider][model]; ok {
		return alias
	}
	return model
}
