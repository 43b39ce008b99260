package config

import (
	"time"

	"github.com/cadence-reader/cadence/internal/inference"
	"github.com/cadence-reader/cadence/internal/text"
)

// Config holds cadence configuration.
// Stored at: ./config.yaml or ~/.cadence/config.yaml
type Config struct {
	Inference InferenceCfg `mapstructure:"inference" yaml:"inference"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Store     StoreCfg     `mapstructure:"store" yaml:"store"`
}

// InferenceCfg configures the inference backend connection.
type InferenceCfg struct {
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`                       // OpenAI-compatible endpoint
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`                         // API key (supports ${ENV_VAR} syntax)
	DensityModel      string `mapstructure:"density_model" yaml:"density_model"`             // Model for density scoring
	SummaryModel      string `mapstructure:"summary_model" yaml:"summary_model"`             // Model for chunk summaries
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// PipelineCfg configures chunking and enrichment behavior.
type PipelineCfg struct {
	ChunkWords          int  `mapstructure:"chunk_words" yaml:"chunk_words"`
	SummaryExcerptChars int  `mapstructure:"summary_excerpt_chars" yaml:"summary_excerpt_chars"`
	RemoveJunk          bool `mapstructure:"remove_junk" yaml:"remove_junk"`
	UseLogprobDensity   bool `mapstructure:"use_logprob_density" yaml:"use_logprob_density"`
}

// StoreCfg configures the document store.
type StoreCfg struct {
	// Path is the badger database directory (default: {home}/cadence.db)
	Path string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns configuration with sensible defaults for a local
// OpenAI-compatible server (llama.cpp, ollama, vLLM).
func DefaultConfig() *Config {
	return &Config{
		Inference: InferenceCfg{
			BaseURL:           "http://localhost:8080/v1",
			APIKey:            "${CADENCE_INFERENCE_API_KEY}",
			DensityModel:      "llama-3.2-3b-instruct",
			SummaryModel:      "llama-3.1-8b-instruct",
			RequestsPerMinute: 60,
			TimeoutSeconds:    120,
			MaxRetries:        3,
		},
		Pipeline: PipelineCfg{
			ChunkWords:          text.DefaultChunkWords,
			SummaryExcerptChars: 3000,
			RemoveJunk:          true,
		},
		Store: StoreCfg{
			Path: "cadence.db",
		},
	}
}

// ClientConfig converts the inference section to an OpenAI client config,
// resolving ${ENV_VAR} references in the API key.
func (c *Config) ClientConfig() inference.OpenAIConfig {
	return inference.OpenAIConfig{
		BaseURL:    c.Inference.BaseURL,
		APIKey:     ResolveEnvVars(c.Inference.APIKey),
		MaxRetries: c.Inference.MaxRetries,
		Timeout:    time.Duration(c.Inference.TimeoutSeconds) * time.Second,
	}
}

// Models returns the tier-to-model mapping for the inference service.
func (c *Config) Models() map[inference.ModelTier]string {
	return map[inference.ModelTier]string{
		inference.TierDensity: c.Inference.DensityModel,
		inference.TierSummary: c.Inference.SummaryModel,
	}
}
