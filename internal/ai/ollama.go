package ai

import (
	"context"
	"strings"
)

// OllamaProvider uses Ollama's OpenAI-compatible endpoint.
type OllamaProvider struct {
	openai *OpenAIProvider
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434/v1"
	}
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaProvider{
		openai: NewOpenAIProvider(OpenAIConfig{
			Name:    "ollama",
			APIKey:  "ollama",
			BaseURL: baseURL,
			Model:   model,
		}),
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	return p.openai.GenerateText(ctx, req)
}
