// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Provider identifies the LLM transport implementation.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderMock      Provider = "mock"
)

// LLMConfig holds transport settings shared by every agent.
type LLMConfig struct {
	// Provider selects the transport: anthropic, openai, or mock.
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// APIKey is the authentication key for the provider. Usually loaded
	// from .secrets/ rather than the config file.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout bounds a single HTTP request to the provider.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries on HTTP 429 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AgentConfig holds per-agent model settings.
type AgentConfig struct {
	// Model is the model identifier the agent targets. It is also the key
	// used for pricing.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// MaxTokens caps the response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// AgentModels groups the configuration of the seven pipeline agents.
type AgentModels struct {
	Context  AgentConfig `json:"context" yaml:"context" mapstructure:"context"`
	Analysis AgentConfig `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Draft    AgentConfig `json:"draft" yaml:"draft" mapstructure:"draft"`
	Sanitize AgentConfig `json:"sanitize" yaml:"sanitize" mapstructure:"sanitize"`
	Review   AgentConfig `json:"review" yaml:"review" mapstructure:"review"`
	Polish   AgentConfig `json:"polish" yaml:"polish" mapstructure:"polish"`
	Format   AgentConfig `json:"format" yaml:"format" mapstructure:"format"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// MaxPolishRounds caps the review/refine loop (default 2).
	MaxPolishRounds int `json:"max_polish_rounds" yaml:"max_polish_rounds" mapstructure:"max_polish_rounds"`
}

// RateConfig is one pricing table entry in USD per million tokens.
type RateConfig struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million" mapstructure:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million" mapstructure:"output_per_million"`
}

// HistoryConfig holds settings for the local run history.
type HistoryConfig struct {
	// Dir is the directory containing the SQLite database.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default number of rows returned by list and search (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// Config groups all configuration for lecture-engine.
type Config struct {
	LLM      LLMConfig             `json:"llm" yaml:"llm" mapstructure:"llm"`
	Agents   AgentModels           `json:"agents" yaml:"agents" mapstructure:"agents"`
	Pipeline PipelineConfig        `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Pricing  map[string]RateConfig `json:"pricing,omitempty" yaml:"pricing,omitempty" mapstructure:"pricing"`
	History  HistoryConfig         `json:"history" yaml:"history" mapstructure:"history"`
	Server   ServerConfig          `json:"server" yaml:"server" mapstructure:"server"`
}

const (
	defaultFastModel  = "claude-haiku-4-5"
	defaultWriteModel = "claude-sonnet-4-5"
)

// DefaultConfig returns the configuration used when no file overrides it.
// Classification-style agents use a fast model; writing agents use a
// stronger one.
func DefaultConfig() Config {
	fast := func(maxTokens int) AgentConfig {
		return AgentConfig{Model: defaultFastModel, MaxTokens: maxTokens, Temperature: 0.2}
	}
	write := func(maxTokens int, temp float64) AgentConfig {
		return AgentConfig{Model: defaultWriteModel, MaxTokens: maxTokens, Temperature: temp}
	}
	return Config{
		LLM: LLMConfig{
			Provider:   ProviderAnthropic,
			Timeout:    5 * time.Minute,
			MaxRetries: 3,
		},
		Agents: AgentModels{
			Context:  fast(1024),
			Analysis: fast(2048),
			Draft:    write(8192, 0.7),
			Sanitize: write(8192, 0.2),
			Review:   fast(2048),
			Polish:   write(4096, 0.3),
			Format:   write(8192, 0),
		},
		Pipeline: PipelineConfig{MaxPolishRounds: 2},
		History:  HistoryConfig{Dir: "history", MaxResults: 20},
		Server:   ServerConfig{Addr: ":8080"},
	}
}
