package llm

import (
	"os"
	"strings"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderGroq      Provider = "groq"
	ProviderAnthropic Provider = "anthropic"
)

// ParseModelString parses a model string into provider and model name.
//
// Supported formats:
//
//	"groq/llama-3.3-70b-versatile"  → (groq, "llama-3.3-70b-versatile")
//	"anthropic/claude-sonnet-4"     → (anthropic, "claude-sonnet-4")
//	"claude-sonnet-4-20250514"      → (anthropic, "claude-sonnet-4-20250514")
//	"llama-3.3-70b-versatile"       → (groq, "llama-3.3-70b-versatile")
func ParseModelString(model string) (Provider, string) {
	if i := strings.Index(model, "/"); i > 0 {
		prefix := strings.ToLower(model[:i])
		name := model[i+1:]
		switch prefix {
		case "groq":
			return ProviderGroq, name
		case "anthropic":
			return ProviderAnthropic, name
		}
	}

	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return ProviderAnthropic, model
	}
	return ProviderGroq, model
}

// NewClientForModel creates the appropriate LLM client based on the model
// string. The matching provider key is taken from configuration; an empty
// anthropicAPIKey falls back to the SDK's ANTHROPIC_API_KEY env lookup.
func NewClientForModel(model, groqAPIKey, anthropicAPIKey string) (Client, string) {
	provider, modelName := ParseModelString(model)

	switch provider {
	case ProviderAnthropic:
		if anthropicAPIKey != "" {
			return NewAnthropicClient(WithAnthropicAPIKey(anthropicAPIKey)), modelName
		}
		return NewAnthropicClient(), modelName
	default:
		if baseURL := os.Getenv("GROQ_BASE_URL"); baseURL != "" {
			return NewOpenAICompatibleClient(baseURL, groqAPIKey), modelName
		}
		return NewGroqClient(groqAPIKey), modelName
	}
}
