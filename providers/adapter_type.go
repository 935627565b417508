package providers

// AdapterType tags a live provider instance with the adapter kind string
// the model registry validates against (registry.knownProviderTypes).
// Config layers that synthesize a registry document from registered
// providers use this instead of asking the operator to restate the adapter
// kind alongside the virtual key.
func AdapterType(p Provider) string {
	switch p.(type) {
	case *OpenAIProvider:
		return "openai"
	case *AzureOpenAIProvider:
		return "azure-openai"
	case *GeminiProvider:
		return "gemini"
	case *BedrockProvider:
		return "bedrock"
	case *AnthropicProvider:
		return "anthropic"
	case *GroqProvider:
		return "groq"
	case *MistralProvider:
		return "mistral"
	case *CohereProvider:
		return "cohere"
	case *TogetherProvider:
		return "together"
	case *FireworksProvider:
		return "fireworks"
	case *DeepSeekProvider:
		return "deepseek"
	case *AI21Provider:
		return "ai21"
	case *PerplexityProvider:
		return "perplexity"
	case *ReplicateProvider:
		return "replicate"
	case *OllamaProvider:
		return "ollama"
	default:
		return "openai-compat"
	}
}
