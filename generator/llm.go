package generator

import (
	"context"
	"fmt"
)

// TextCompletion 抽象大模型客户端，便于替换/Mock。
// 实现必须允许多个会话并发调用。
type TextCompletion interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// CompletionOptions 每个会话固定，不随 stage 变化。
type CompletionOptions struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
	// OnChunk 仅用于增量展示；返回的完整文本才是最终结果。
	OnChunk func(chunk string) `json:"-"`
}

// DefaultCompletionOptions mirrors the settings the drafts were tuned with.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Model:       "gpt-4",
		Temperature: 0.8,
		MaxTokens:   822,
	}
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// TextCompletionFunc adapts a plain function to TextCompletion.
type TextCompletionFunc func(ctx context.Context, prompt string, opts CompletionOptions) (string, error)

func (f TextCompletionFunc) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return f(ctx, prompt, opts)
}

// NewTextCompletion picks an implementation by provider name.
func NewTextCompletion(ctx context.Context, cfg *LLMSettings) (TextCompletion, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key_env in config")
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAILLMFromConfig(cfg)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return NewOpenAILLMFromConfig(cfg)
	case "gemini":
		return NewGeminiLLMFromConfig(ctx, cfg)
	case "mock":
		return MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}
