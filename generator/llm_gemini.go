package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiLLM implements TextCompletion on top of the Google GenAI SDK.
type GeminiLLM struct {
	Model  string
	client *genai.Client
}

func NewGeminiLLMFromConfig(ctx context.Context, cfg *LLMSettings) (*GeminiLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key missing; provide llm.api_key or llm.api_key_env")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiLLM{Model: cfg.Model, client: client}, nil
}

func (g *GeminiLLM) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.Model
	}
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(opts.MaxTokens)
	}

	if !opts.Stream {
		resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), gc)
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if text == "" {
			return "", errors.New("gemini: empty response")
		}
		return text, nil
	}

	var sb strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), gc) {
		if err != nil {
			return "", err
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if opts.OnChunk != nil {
			opts.OnChunk(chunk)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: empty stream")
	}
	return sb.String(), nil
}
