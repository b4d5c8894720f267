package indexer

import (
	"context"
	"path/filepath"
	"sync"

	"docsearch/internal/adapter/cache"
	"docsearch/internal/adapter/chunker"
	"docsearch/internal/adapter/llm"
	"docsearch/internal/adapter/memstore"
	"docsearch/internal/adapter/retriever"
	"docsearch/internal/adapter/store"
	"docsearch/internal/domain"
	"docsearch/internal/port"
)

// ListHandle answers queries from a lexical BM25 index over the session's
// documents.
type ListHandle struct {
	mu        sync.RWMutex
	backend   *Backend
	sessionID string
	path      string
	index     *memstore.MemoryStore
	retriever *cache.CachedRetriever
	reranker  port.DiversityReranker
	packer    *Packer
}

var _ port.IndexHandle = (*ListHandle)(nil)

func (b *Backend) buildList(ctx context.Context, sessionID, indexDir string, docs []domain.StoredDocument) (*ListHandle, error) {
	path := filepath.Join(indexDir, listFile)

	previous, reused, err := store.LoadSnapshot(path, b.settings.ConfigHash)
	if err != nil {
		b.logger.Warn("indexer", "ignoring unreadable list snapshot", map[string]interface{}{
			"session_id": sessionID,
			"path":       path,
			"error":      err,
		})
		previous = nil
	}

	files := make([]port.IndexedFile, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, err := b.prepare(doc, previous)
		if err != nil {
			return nil, backendFailure("build list index", err)
		}
		files = append(files, file)
	}

	index := memstore.NewMemoryStore()
	if err := index.BatchIndex(files); err != nil {
		return nil, backendFailure("build list index", err)
	}

	h := &ListHandle{
		backend:   b,
		sessionID: sessionID,
		path:      path,
		index:     index,
		reranker:  retriever.NewMMRReranker(b.settings.MMRLambda, b.settings.DedupJaccard),
	}
	bm25 := retriever.NewBM25Retriever(index, b.tokenizer, b.settings.K1, b.settings.B, b.settings.NameBoost)
	h.retriever = cache.NewCachedRetriever(bm25, cache.NewQueryCache(b.settings.CacheSize, b.settings.CacheTTL))
	h.packer = NewPacker(b.tokenizer, h.nameOf, "bm25")

	stats, _ := index.GetStats()
	b.logger.Info("indexer", "list index built", map[string]interface{}{
		"session_id":     sessionID,
		"documents":      stats.TotalDocs,
		"chunks":         stats.TotalChunks,
		"reused_from_db": reused,
	})
	return h, nil
}

func (h *ListHandle) nameOf(docID string) string {
	doc, err := h.index.GetDoc(docID)
	if err != nil {
		return docID
	}
	return doc.Name
}

func (h *ListHandle) Query(ctx context.Context, text string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	candidates, err := h.retriever.Search(text, h.backend.settings.CandidateK)
	if err != nil {
		return "", backendFailure("search", err)
	}
	candidates = filterByScore(candidates, h.backend.settings.MinScore)
	results := h.reranker.Rerank(candidates, h.backend.settings.TopK)

	return h.backend.answer(ctx, text, results, h.packer)
}

func (h *ListHandle) InsertDocument(ctx context.Context, doc domain.StoredDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := h.backend.prepare(doc, nil)
	if err != nil {
		return backendFailure("insert "+doc.Name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.index.BatchIndex([]port.IndexedFile{file}); err != nil {
		return backendFailure("insert "+doc.Name, err)
	}
	h.retriever.Invalidate()
	return nil
}

// RemoveDocument is a no-op for names the handle never indexed.
func (h *ListHandle) RemoveDocument(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index.RemoveDoc(chunker.DocID(name)) {
		h.retriever.Invalidate()
	}
	return nil
}

// Persist snapshots documents, chunks and postings into the session's
// list.db so a later build can skip re-chunking unchanged documents.
func (h *ListHandle) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(h.path)); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	stats, _ := h.index.GetStats()
	if err := store.SaveSnapshot(h.path, h.backend.settings.ConfigHash, h.index.Snapshot(), stats); err != nil {
		return backendFailure("persist list index", err)
	}
	return nil
}

func (h *ListHandle) Close() error {
	return h.index.Close()
}

func filterByScore(results []domain.ScoredChunk, minScore float64) []domain.ScoredChunk {
	if minScore <= 0 {
		return results
	}
	filtered := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// answer packs the retrieved chunks and asks the LLM. With nothing
// retrieved the LLM is not called.
func (b *Backend) answer(ctx context.Context, query string, results []domain.ScoredChunk, packer *Packer) (string, error) {
	packed, err := packer.Pack(query, results, b.settings.TokenBudget)
	if err != nil {
		return "", backendFailure("pack", err)
	}
	if len(packed.Snippets) == 0 {
		return llm.NoContextAnswer, nil
	}

	out, err := b.llm.GenerateWithSystem(ctx, b.settings.SystemPrompt, buildPrompt(query, packed))
	if err != nil {
		return "", backendFailure("generate answer", err)
	}
	return out, nil
}
