package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for docsearch.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// StorageConfig describes where session areas live.
type StorageConfig struct {
	DataDir       string   `yaml:"data_dir" validate:"required"`
	HistoryFolder string   `yaml:"history_folder" validate:"required,excludesall=/\\"`
	HistoryFile   string   `yaml:"history_file" validate:"required,excludesall=/\\"`
	Includes      []string `yaml:"includes"`
	Excludes      []string `yaml:"excludes"`
}

type IndexConfig struct {
	SearchTypes  []string `yaml:"search_types" validate:"min=1,dive,oneof=list vector"`
	FoldPlurals  bool     `yaml:"fold_plurals"`
	ChunkTokens  int      `yaml:"chunk_tokens" validate:"min=16"`
	ChunkOverlap int      `yaml:"chunk_overlap" validate:"min=0,ltfield=ChunkTokens"`
	K1           float64  `yaml:"k1" validate:"gt=0"`
	B            float64  `yaml:"b" validate:"gte=0,lte=1"`
	NameBoost    float64  `yaml:"name_boost" validate:"gte=0"`
}

type RetrieveConfig struct {
	TopK              int           `yaml:"top_k" validate:"min=1"`
	CandidateK        int           `yaml:"candidate_k" validate:"gtefield=TopK"`
	MMRLambda         float64       `yaml:"mmr_lambda" validate:"gte=0,lte=1"`
	DedupJaccard      float64       `yaml:"dedup_jaccard" validate:"gt=0,lte=1"`
	MinScoreThreshold float64       `yaml:"min_score_threshold" validate:"gte=0"` // 0 disables
	TokenBudget       int           `yaml:"token_budget" validate:"min=64"`
	CacheSize         int           `yaml:"cache_size" validate:"min=0"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=hash openai jina ollama deepseek"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension" validate:"min=0"`
	BatchSize int    `yaml:"batch_size" validate:"min=0"`
}

type LLMConfig struct {
	Provider     string        `yaml:"provider" validate:"oneof=extractive openai deepseek ollama"`
	Model        string        `yaml:"model" validate:"required_unless=Provider extractive"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Temperature  float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int           `yaml:"max_tokens" validate:"min=0"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// DefaultConfig returns the default configuration. It works offline: the
// hash embedder and the extractive answerer need no API keys.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:       "data",
			HistoryFolder: "history",
			HistoryFile:   "session_history.json",
			Includes:      []string{"*"},
			Excludes:      []string{".*"},
		},
		Index: IndexConfig{
			SearchTypes:  []string{"list", "vector"},
			FoldPlurals:  true,
			ChunkTokens:  256,
			ChunkOverlap: 32,
			K1:           1.2,
			B:            0.75,
			NameBoost:    0.3,
		},
		Retrieve: RetrieveConfig{
			TopK:         5,
			CandidateK:   20,
			MMRLambda:    0.7,
			DedupJaccard: 0.8,
			TokenBudget:  1500,
			CacheSize:    128,
			CacheTTL:     5 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Dimension: 256,
			BatchSize: 100,
		},
		LLM: LLMConfig{
			Provider:    "extractive",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

var validate = validator.New()

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir looks for docsearch.yaml, then .docsearch/config.yaml.
func LoadFromDir(dir string) (*Config, error) {
	for _, path := range []string{
		filepath.Join(dir, "docsearch.yaml"),
		filepath.Join(dir, ".docsearch", "config.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
