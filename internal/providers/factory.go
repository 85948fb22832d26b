package providers

import "fmt"

// Options carries the registry fields needed to build a provider.
type Options struct {
	APIType    string
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// New builds a provider from registry options.
func New(opts Options) (Provider, error) {
	retry := DefaultRetryConfig()
	if opts.MaxRetries > 0 {
		retry.MaxRetries = opts.MaxRetries
	}

	switch opts.APIType {
	case "anthropic", "":
		return NewAnthropicProvider(opts.APIKey, opts.Model,
			WithAnthropicBaseURL(opts.BaseURL), WithAnthropicRetry(retry)), nil
	case "openai":
		return NewOpenAIProvider(opts.APIKey, opts.Model,
			WithOpenAIBaseURL(opts.BaseURL), WithOpenAIRetry(retry)), nil
	case "gemini":
		return NewGeminiProvider(opts.APIKey, opts.Model,
			WithOpenAIBaseURL(opts.BaseURL), WithOpenAIRetry(retry)), nil
	default:
		return nil, fmt.Errorf("unknown api_type %q", opts.APIType)
	}
}
