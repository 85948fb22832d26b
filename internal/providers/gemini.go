package providers

const geminiOpenAIBase = "https://generativelanguage.googleapis.com/v1beta/openai"

// NewGeminiProvider creates a provider for Gemini models via Google's
// OpenAI-compatible endpoint. The wire format is identical to OpenAI,
// only the base URL and provider name differ.
func NewGeminiProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	base := []OpenAIOption{
		WithOpenAIBaseURL(geminiOpenAIBase),
		withOpenAIName("gemini"),
	}
	return NewOpenAIProvider(apiKey, model, append(base, opts...)...)
}
