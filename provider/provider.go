// Package provider names the built-in upstream providers and builds their
// adapters.
package provider

const (
	// ProviderOpenAI identifies the OpenAI API.
	ProviderOpenAI = "openai"

	// ProviderDeepSeek identifies the DeepSeek API (OpenAI compatible wire).
	ProviderDeepSeek = "deepseek"

	// ProviderGemini identifies the Google Gemini API.
	ProviderGemini = "gemini"
)
