// Package config loads memora service configuration from TOML with
// environment variable overrides.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Storage   StorageConfig   `toml:"storage"`
	Prompts   PromptsConfig   `toml:"prompts"`
	Recall    RecallConfig    `toml:"recall"`
	Response  ResponseConfig  `toml:"response"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type StorageConfig struct {
	// Backend selects the storage implementation: "fs", "sqlite", or
	// "postgres".
	Backend string `toml:"backend"`
	// Dir is the memory root for the fs backend.
	Dir string `toml:"dir"`
	// Path is the database file for the sqlite backend.
	Path string `toml:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `toml:"dsn"`
}

type PromptsConfig struct {
	// Dir overrides prompt templates and category metadata; empty means
	// embedded defaults only.
	Dir string `toml:"dir"`
}

type RecallConfig struct {
	// Limit caps the number of snippets per search.
	Limit int `toml:"limit"`
	// MinSemanticScore drops semantic scores below this cutoff.
	MinSemanticScore float64 `toml:"min_semantic_score"`
}

type ResponseConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:       LLMConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		Embedding: EmbeddingConfig{BaseURL: "https://api.openai.com/v1", Model: "text-embedding-3-small", Dimensions: 1536},
		Storage:   StorageConfig{Backend: "fs", Dir: "memora-data", Path: "memora.db"},
		Recall:    RecallConfig{Limit: 10, MinSemanticScore: 0.1},
		Response:  ResponseConfig{MaxIterations: 3},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "memora.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("MEMORA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MEMORA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MEMORA_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("MEMORA_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("MEMORA_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("MEMORA_PROMPTS_DIR"); v != "" {
		cfg.Prompts.Dir = v
	}
	if os.Getenv("MEMORA_OBSERVER_ENABLED") == "true" || os.Getenv("MEMORA_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}

	return cfg
}
