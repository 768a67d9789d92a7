package generator

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements TextCompletion using the official openai-go SDK (chat completions).
// It also serves OpenAI-compatible gateways such as DeepSeek via BaseURL.
type OpenAILLM struct {
	Model  string
	client openai.Client
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key or llm.api_key_env")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{Model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

func (o *OpenAILLM) params(prompt string, opts CompletionOptions) openai.ChatCompletionNewParams {
	model := opts.Model
	if model == "" {
		model = o.Model
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if opts.Stream {
		return o.stream(ctx, prompt, opts)
	}
	resp, err := o.client.Chat.Completions.New(ctx, o.params(prompt, opts))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) stream(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(prompt, opts))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if opts.OnChunk != nil {
			opts.OnChunk(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if sb.Len() == 0 {
		return "", errors.New("openai: empty stream")
	}
	return sb.String(), nil
}
