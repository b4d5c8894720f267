package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"docsearch/internal/adapter/cache"
	"docsearch/internal/adapter/chunker"
	"docsearch/internal/adapter/retriever"
	"docsearch/internal/adapter/store"
	"docsearch/internal/domain"
	"docsearch/internal/port"
)

// VectorHandle answers queries by cosine similarity between the embedded
// query and embedded chunks.
type VectorHandle struct {
	mu        sync.RWMutex
	backend   *Backend
	sessionID string
	path      string
	vectors   *store.VectorStore
	chunks    map[string]domain.Chunk
	docChunks map[string][]string
	names     map[string]string
	results   *cache.QueryCache
	reranker  port.DiversityReranker
	packer    *Packer
}

var _ port.IndexHandle = (*VectorHandle)(nil)

func (b *Backend) buildVector(ctx context.Context, sessionID, indexDir string, docs []domain.StoredDocument) (*VectorHandle, error) {
	path := filepath.Join(indexDir, vectorFile)

	vectors, reused, err := store.LoadVectors(path, b.settings.ConfigHash, b.embedder.Dimension())
	if err != nil {
		b.logger.Warn("indexer", "ignoring unreadable vector file", map[string]interface{}{
			"session_id": sessionID,
			"path":       path,
			"error":      err,
		})
	}

	h := &VectorHandle{
		backend:   b,
		sessionID: sessionID,
		path:      path,
		vectors:   vectors,
		chunks:    make(map[string]domain.Chunk),
		docChunks: make(map[string][]string),
		names:     make(map[string]string),
		results:   cache.NewQueryCache(b.settings.CacheSize, b.settings.CacheTTL),
		reranker:  retriever.NewMMRReranker(b.settings.MMRLambda, b.settings.DedupJaccard),
	}
	h.packer = NewPacker(b.tokenizer, h.nameOf, "cosine")

	files := make([]port.IndexedFile, 0, len(docs))
	for _, doc := range docs {
		file, err := b.prepare(doc, nil)
		if err != nil {
			return nil, backendFailure("build vector index", err)
		}
		files = append(files, file)
	}

	items, err := h.embedMissing(ctx, files)
	if err != nil {
		return nil, err
	}
	if err := h.vectors.Upsert(items); err != nil {
		return nil, backendFailure("build vector index", err)
	}
	for _, file := range files {
		h.add(file)
	}
	embeddedAgain := len(items)
	h.dropOrphans()

	count, _ := h.vectors.Count()
	b.logger.Info("indexer", "vector index built", map[string]interface{}{
		"session_id":     sessionID,
		"documents":      len(files),
		"vectors":        count,
		"embedded":       embeddedAgain,
		"reused_from_db": reused,
	})
	return h, nil
}

// embedMissing embeds every chunk of files that has no stored vector yet.
func (h *VectorHandle) embedMissing(ctx context.Context, files []port.IndexedFile) ([]port.VectorItem, error) {
	var pending []domain.Chunk
	for _, file := range files {
		for _, chunk := range file.Chunks {
			if _, ok := h.vectors.Get(chunk.ID); !ok {
				pending = append(pending, chunk)
			}
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Text
	}
	embeddings, err := h.backend.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, backendFailure("embed chunks", err)
	}
	if len(embeddings) != len(texts) {
		return nil, backendFailure("embed chunks", fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(texts)))
	}

	items := make([]port.VectorItem, len(pending))
	for i, c := range pending {
		items[i] = port.VectorItem{ID: c.ID, Vector: embeddings[i], Metadata: map[string]string{"doc_id": c.DocID}}
	}
	return items, nil
}

func (h *VectorHandle) add(file port.IndexedFile) {
	h.names[file.Doc.ID] = file.Doc.Name
	ids := make([]string, 0, len(file.Chunks))
	for _, chunk := range file.Chunks {
		h.chunks[chunk.ID] = chunk
		ids = append(ids, chunk.ID)
	}
	h.docChunks[file.Doc.ID] = ids
}

// remove forgets a document's chunks and returns their ids.
func (h *VectorHandle) remove(docID string) ([]string, bool) {
	ids, ok := h.docChunks[docID]
	for _, id := range ids {
		delete(h.chunks, id)
	}
	delete(h.docChunks, docID)
	delete(h.names, docID)
	return ids, ok
}

// dropOrphans deletes loaded vectors that no current chunk refers to.
func (h *VectorHandle) dropOrphans() {
	var orphans []string
	for _, id := range h.vectors.IDs() {
		if _, ok := h.chunks[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	_ = h.vectors.Delete(orphans)
}

func (h *VectorHandle) nameOf(docID string) string {
	if name, ok := h.names[docID]; ok {
		return name
	}
	return docID
}

func (h *VectorHandle) Query(ctx context.Context, text string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	settings := h.backend.settings
	results, hit := h.results.Get(text, settings.TopK)
	if !hit {
		var err error
		results, err = h.search(ctx, text)
		if err != nil {
			return "", err
		}
		h.results.Put(text, settings.TopK, results)
	}

	return h.backend.answer(ctx, text, results, h.packer)
}

func (h *VectorHandle) search(ctx context.Context, text string) ([]domain.ScoredChunk, error) {
	settings := h.backend.settings
	if len(h.chunks) == 0 {
		return nil, nil
	}

	embeddings, err := h.backend.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, backendFailure("embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, backendFailure("embed query", fmt.Errorf("got %d embeddings for one query", len(embeddings)))
	}

	hits, err := h.vectors.Search(embeddings[0], settings.CandidateK)
	if err != nil {
		return nil, backendFailure("vector search", err)
	}

	candidates := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if chunk, ok := h.chunks[hit.ID]; ok && hit.Score > 0 {
			candidates = append(candidates, domain.ScoredChunk{Chunk: chunk, Score: hit.Score})
		}
	}
	candidates = filterByScore(candidates, settings.MinScore)
	return h.reranker.Rerank(candidates, settings.TopK), nil
}

func (h *VectorHandle) InsertDocument(ctx context.Context, doc domain.StoredDocument) error {
	file, err := h.backend.prepare(doc, nil)
	if err != nil {
		return backendFailure("insert "+doc.Name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	items, err := h.embedMissing(ctx, []port.IndexedFile{file})
	if err != nil {
		return err
	}
	if err := h.vectors.Upsert(items); err != nil {
		return backendFailure("insert "+doc.Name, err)
	}

	if old, ok := h.remove(file.Doc.ID); ok {
		keep := make(map[string]bool, len(file.Chunks))
		for _, c := range file.Chunks {
			keep[c.ID] = true
		}
		var stale []string
		for _, id := range old {
			if !keep[id] {
				stale = append(stale, id)
			}
		}
		_ = h.vectors.Delete(stale)
	}
	h.add(file)
	h.results.Invalidate()
	return nil
}

// RemoveDocument is a no-op for names the handle never indexed.
func (h *VectorHandle) RemoveDocument(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ids, ok := h.remove(chunker.DocID(name))
	if !ok {
		return nil
	}
	_ = h.vectors.Delete(ids)
	h.results.Invalidate()
	return nil
}

// Persist writes the vectors to the session's vector.db; a later build
// embeds only chunks whose id is not in there.
func (h *VectorHandle) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(h.path)); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := store.SaveVectors(h.path, h.backend.settings.ConfigHash, h.vectors); err != nil {
		return backendFailure("persist vector index", err)
	}
	return nil
}

func (h *VectorHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chunks = make(map[string]domain.Chunk)
	h.docChunks = make(map[string][]string)
	h.results.Invalidate()
	return nil
}
