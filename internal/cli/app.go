package cli

import (
	"context"
	"errors"
	"fmt"

	"docsearch/config"
	"docsearch/internal/adapter/analyzer"
	"docsearch/internal/adapter/embedding"
	"docsearch/internal/adapter/fs"
	"docsearch/internal/adapter/indexer"
	"docsearch/internal/adapter/llm"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
	"docsearch/internal/tracer"
	"docsearch/internal/usecase"
)

// extractiveMaxChars caps offline answers.
const extractiveMaxChars = 4000

// embeddingEndpoints are the OpenAI-compatible embedding APIs by provider.
var embeddingEndpoints = map[string]struct {
	baseURL string
	keyEnv  string
	model   string
}{
	"openai":   {"https://api.openai.com/v1", "OPENAI_API_KEY", "text-embedding-3-small"},
	"jina":     {"https://api.jina.ai/v1", "JINA_API_KEY", "jina-embeddings-v3"},
	"ollama":   {"http://localhost:11434/v1", "", "nomic-embed-text"},
	"deepseek": {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY", ""},
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	log      logger.ILogger
	storage  *fs.Provider
	service  *usecase.Service
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.NewZapLogger(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Production: cfg.Logging.Production,
	})
	shutdown := tracer.Init(ctx, tracer.Options{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	}, log)

	tok := analyzer.NewTokenizer(cfg.Index.FoldPlurals)
	embedder, err := newEmbedder(cfg, tok)
	if err != nil {
		return nil, err
	}
	generator, err := newLLM(cfg)
	if err != nil {
		return nil, err
	}

	storage := fs.NewProvider(cfg.Storage.DataDir)
	backend := indexer.NewBackend(indexer.SettingsFromConfig(cfg), storage, embedder, generator, log)
	service := usecase.NewService(storage, backend, usecase.ServiceOptions{
		HistoryFolder: cfg.Storage.HistoryFolder,
		HistoryFile:   cfg.Storage.HistoryFile,
	}, log)

	log.Debug("cli", "application wired", map[string]interface{}{
		"data_dir":  cfg.Storage.DataDir,
		"embedding": embedder.ModelName(),
		"llm":       generator.ModelName(),
	})

	return &app{
		cfg:      cfg,
		log:      log,
		storage:  storage,
		service:  service,
		shutdown: shutdown,
	}, nil
}

func newEmbedder(cfg *config.Config, tok *analyzer.Tokenizer) (port.Embedder, error) {
	if cfg.Embedding.Provider == "hash" {
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension, tok), nil
	}

	endpoint := embeddingEndpoints[cfg.Embedding.Provider]
	opts := embedding.Options{
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKeyEnv: cfg.Embedding.APIKeyEnv,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
	}
	if opts.Model == "" {
		opts.Model = endpoint.model
	}
	if opts.BaseURL == "" {
		opts.BaseURL = endpoint.baseURL
	}
	if opts.APIKeyEnv == "" {
		opts.APIKeyEnv = endpoint.keyEnv
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("embedding provider %q needs a model", cfg.Embedding.Provider)
	}
	return embedding.NewOpenAIEmbedder(opts)
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	if cfg.LLM.Provider == "extractive" {
		return llm.NewExtractive(extractiveMaxChars), nil
	}
	return llm.NewClient(llm.Options{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
}

func (a *app) Close(ctx context.Context) error {
	err := errors.Join(a.service.Close(), a.shutdown(ctx))
	_ = a.log.Sync()
	current = nil
	return err
}
