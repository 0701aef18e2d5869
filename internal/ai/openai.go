package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"postpilot/internal/core"
)

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	ImageModel  string
	VisionModel string
	MaxTokens   int
	Temperature float32
}

// OpenAIProvider talks to the OpenAI API (or any compatible endpoint) for
// text, images and media descriptions.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	imageModel  string
	visionModel string
	maxTokens   int
	temperature float32
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		clientCfg.BaseURL = base
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = openai.CreateImageModelDallE3
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.8
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		name:        name,
		model:       model,
		imageModel:  imageModel,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s: chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt, style string) (string, error) {
	full := prompt
	if s := strings.TrimSpace(style); s != "" {
		full = prompt + ". Style: " + s
	}
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         full,
		Model:          p.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("%s: create image: %w", p.name, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return resp.Data[0].URL, nil
}

type mediaAnalysis struct {
	Description        string   `json:"description"`
	Themes             []string `json:"themes"`
	SuggestedPlatforms []string `json:"suggested_platforms"`
}

// Describe asks the vision model what a media asset shows.
func (p *OpenAIProvider) Describe(ctx context.Context, mediaURL, contextText string) (core.MediaDescription, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return core.MediaDescription{}, errors.New("media url is required")
	}
	instruction := `Describe this image for a social media post. Return JSON:
{"description": "...", "themes": ["..."], "suggested_platforms": ["instagram", "facebook", "twitter", "linkedin"]}`
	if c := strings.TrimSpace(contextText); c != "" {
		instruction += "\n\nBusiness context:\n" + c
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    mediaURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		},
		MaxTokens: 512,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return core.MediaDescription{}, fmt.Errorf("%s: describe media: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return core.MediaDescription{}, fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return parseMediaAnalysis(resp.Choices[0].Message.Content)
}

func parseMediaAnalysis(raw string) (core.MediaDescription, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	var analysis mediaAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &analysis); err != nil {
		return core.MediaDescription{}, fmt.Errorf("decode media analysis: %w", err)
	}
	if strings.TrimSpace(analysis.Description) == "" {
		return core.MediaDescription{}, fmt.Errorf("media analysis: %w", ErrEmptyResponse)
	}
	desc := core.MediaDescription{
		Description: strings.TrimSpace(analysis.Description),
		Themes:      analysis.Themes,
	}
	for _, name := range analysis.SuggestedPlatforms {
		desc.SuggestedPlatforms = append(desc.SuggestedPlatforms, core.ParsePlatform(name))
	}
	return desc, nil
}
