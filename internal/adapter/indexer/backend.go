package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"docsearch/config"
	"docsearch/internal/adapter/analyzer"
	"docsearch/internal/adapter/chunker"
	"docsearch/internal/adapter/store"
	"docsearch/internal/domain"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
)

const (
	listFile   = "list.db"
	vectorFile = "vector.db"
)

// Settings are the knobs of the index handles.
type Settings struct {
	FoldPlurals  bool
	ChunkTokens  int
	ChunkOverlap int
	K1           float64
	B            float64
	NameBoost    float64

	TopK         int
	CandidateK   int
	MMRLambda    float64
	DedupJaccard float64
	MinScore     float64
	TokenBudget  int
	CacheSize    int
	CacheTTL     time.Duration

	SystemPrompt string
	// ConfigHash stamps persisted state; saved state with another hash is
	// rebuilt instead of reused.
	ConfigHash string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		FoldPlurals:  cfg.Index.FoldPlurals,
		ChunkTokens:  cfg.Index.ChunkTokens,
		ChunkOverlap: cfg.Index.ChunkOverlap,
		K1:           cfg.Index.K1,
		B:            cfg.Index.B,
		NameBoost:    cfg.Index.NameBoost,
		TopK:         cfg.Retrieve.TopK,
		CandidateK:   cfg.Retrieve.CandidateK,
		MMRLambda:    cfg.Retrieve.MMRLambda,
		DedupJaccard: cfg.Retrieve.DedupJaccard,
		MinScore:     cfg.Retrieve.MinScoreThreshold,
		TokenBudget:  cfg.Retrieve.TokenBudget,
		CacheSize:    cfg.Retrieve.CacheSize,
		CacheTTL:     cfg.Retrieve.CacheTTL,
		SystemPrompt: cfg.LLM.SystemPrompt,
		ConfigHash:   store.ComputeConfigHash(cfg),
	}
}

// Backend builds list and vector index handles.
type Backend struct {
	settings  Settings
	storage   port.StorageProvider
	tokenizer *analyzer.Tokenizer
	chunker   port.Chunker
	embedder  port.Embedder
	llm       port.LLM
	logger    logger.ILogger
}

var _ port.IndexBackend = (*Backend)(nil)

// NewBackend wires a backend. storage resolves the directory each session's
// handles persist into.
func NewBackend(settings Settings, storage port.StorageProvider, embedder port.Embedder, llm port.LLM, log logger.ILogger) *Backend {
	if settings.TopK <= 0 {
		settings.TopK = 5
	}
	if settings.CandidateK < settings.TopK {
		settings.CandidateK = settings.TopK * 4
	}
	if settings.TokenBudget <= 0 {
		settings.TokenBudget = 1500
	}
	if settings.SystemPrompt == "" {
		settings.SystemPrompt = defaultSystemPrompt
	}
	tokenizer := analyzer.NewTokenizer(settings.FoldPlurals)
	return &Backend{
		settings:  settings,
		storage:   storage,
		tokenizer: tokenizer,
		chunker:   chunker.NewLineChunker(settings.ChunkTokens, settings.ChunkOverlap, tokenizer),
		embedder:  embedder,
		llm:       llm,
		logger:    log,
	}
}

func (b *Backend) Build(ctx context.Context, sessionID string, searchType domain.SearchType, docs []domain.StoredDocument) (port.IndexHandle, error) {
	if !searchType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedSearchType, searchType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	area, err := b.storage.Open(sessionID, false)
	if err != nil {
		return nil, err
	}
	indexDir := area.IndexDir()

	switch searchType {
	case domain.SearchList:
		return b.buildList(ctx, sessionID, indexDir, docs)
	case domain.SearchVector:
		return b.buildVector(ctx, sessionID, indexDir, docs)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedSearchType, searchType)
}

// prepare chunks one stored document. Chunks of a previous build with the
// same content hash are reused as they are.
func (b *Backend) prepare(doc domain.StoredDocument, previous map[string]port.IndexedFile) (port.IndexedFile, error) {
	d := domain.Document{
		ID:      chunker.DocID(doc.Name),
		Name:    doc.Name,
		Hash:    contentHash(doc.Content),
		ModTime: time.Now(),
		Content: string(doc.Content),
	}

	file := port.IndexedFile{Doc: d}
	if prev, ok := previous[d.ID]; ok && prev.Doc.Hash == d.Hash {
		file.Chunks = prev.Chunks
	} else {
		chunks, err := b.chunker.Chunk(d)
		if err != nil {
			return port.IndexedFile{}, fmt.Errorf("chunk %s: %w", doc.Name, err)
		}
		file.Chunks = chunks
	}

	file.Postings = make(map[string]map[string]int)
	for _, chunk := range file.Chunks {
		for _, term := range chunk.Tokens {
			if file.Postings[term] == nil {
				file.Postings[term] = make(map[string]int)
			}
			file.Postings[term][chunk.ID]++
		}
	}
	return file, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:16])
}

func backendFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackendFailure, err)
}
