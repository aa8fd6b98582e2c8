package llm

import "fmt"

// ProviderSpec names a vendor credential
type ProviderSpec struct {
	Provider string // openai, anthropic
	APIKey   string
	BaseURL  string
	Options
}

// NewProvider creates a provider for spec
func NewProvider(spec ProviderSpec) (Provider, error) {
	switch spec.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: spec.APIKey, BaseURL: spec.BaseURL, Options: spec.Options})
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: spec.APIKey, BaseURL: spec.BaseURL, Options: spec.Options})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", spec.Provider)
	}
}
