package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"content_draft_generator/generator"
)

// Config 是服务和命令行共用的配置。
type Config struct {
	LLM     LLMConfig     `json:"llm" yaml:"llm"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Session SessionConfig `json:"session" yaml:"session"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// LLMConfig selects the model provider and the per-session completion settings.
type LLMConfig struct {
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv   string  `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Stream      bool    `json:"stream,omitempty" yaml:"stream,omitempty"`
}

type ServerConfig struct {
	Addr           string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	RequestTimeout Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	MaxConcurrent  int64    `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// ReverseThread 为 true 时反馈记录按时间倒序展示。
	ReverseThread bool `json:"reverse_thread,omitempty" yaml:"reverse_thread,omitempty"`
}

type SessionConfig struct {
	Store string      `json:"store,omitempty" yaml:"store,omitempty"`
	TTL   Duration    `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

type LogConfig struct {
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// defaultModels 按 provider 给出未配置 llm.model 时使用的模型。
var defaultModels = map[string]string{
	"openai":   generator.DefaultCompletionOptions().Model,
	"deepseek": "deepseek-chat",
	"gemini":   "gemini-2.5-flash",
	"mock":     "mock",
}

// Default returns the built-in settings; Load layers files and env on top.
// The model is left empty and resolved per provider by Load.
func Default() Config {
	def := generator.DefaultCompletionOptions()
	return Config{
		LLM: LLMConfig{
			Provider:    "openai",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: def.Temperature,
			MaxTokens:   def.MaxTokens,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: Duration(3 * time.Minute),
			MaxConcurrent:  4,
		},
		Session: SessionConfig{
			Store: StoreMemory,
			TTL:   Duration(24 * time.Hour),
			Redis: RedisConfig{Addr: "localhost:6379", Prefix: "draftgen:session:"},
		},
		Log: LogConfig{Mode: "dev"},
	}
}

// Load reads JSON or YAML (chosen by extension) over the defaults, then
// applies environment overrides. A missing path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := decode(path, data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" && cfg.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("DRAFTGEN_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("DRAFTGEN_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DRAFTGEN_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DRAFTGEN_REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
}

// Validate checks the settings that would otherwise only fail at first use.
func (c Config) Validate() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required for provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative")
	}
	switch c.Session.Store {
	case "", StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("session.store %q not supported", c.Session.Store)
	}
	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("server.max_concurrent must not be negative")
	}
	return nil
}

// LLMSettings converts the provider section for generator.NewTextCompletion.
func (c Config) LLMSettings() *generator.LLMSettings {
	return &generator.LLMSettings{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	}
}

// CompletionOptions returns the per-session completion settings.
func (c Config) CompletionOptions() generator.CompletionOptions {
	return generator.CompletionOptions{
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Stream:      c.LLM.Stream,
	}
}

// Duration accepts "90s" style strings in both JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
