package llm

import (
	"cmp"
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates text through the Gemini API.
type GeminiClient struct {
	modelName   string
	maxTokens   int32
	temperature float32
	gClient     *genai.Client
}

// NewGeminiClient creates a client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{
		modelName: cmp.Or(modelName, DefaultGeminiModel),
		gClient:   gClient,
	}, nil
}

// Generate sends the system and user prompts as a single-turn request.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if req.User == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: cmp.Or(req.MaxTokens, c.maxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if temp := cmp.Or(req.Temperature, c.temperature); temp > 0 {
		config.Temperature = &temp
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = req.Schema
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, cmp.Or(req.Model, c.modelName), genai.Text(req.User), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}
