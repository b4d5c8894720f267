package memstore

import (
	"fmt"
	"sort"
	"sync"

	"docsearch/internal/domain"
	"docsearch/internal/port"
)

// MemoryStore is the live lexical index of one list handle: documents,
// chunks and term postings, with corpus stats kept current on every change.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	chunks    map[string]domain.Chunk
	docChunks map[string][]string
	postings  map[string]map[string]int
	stats     domain.Stats
}

var _ port.IndexStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]domain.Document),
		chunks:    make(map[string]domain.Chunk),
		docChunks: make(map[string][]string),
		postings:  make(map[string]map[string]int),
	}
}

func (s *MemoryStore) PutDoc(doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	s.refreshStats()
	return nil
}

func (s *MemoryStore) GetDoc(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	s.refreshStats()
	return nil
}

func (s *MemoryStore) ListDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (s *MemoryStore) PutChunk(chunk domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putChunk(chunk)
	s.refreshStats()
	return nil
}

func (s *MemoryStore) putChunk(chunk domain.Chunk) {
	if _, exists := s.chunks[chunk.ID]; !exists {
		s.docChunks[chunk.DocID] = append(s.docChunks[chunk.DocID], chunk.ID)
	}
	s.chunks[chunk.ID] = chunk
}

func (s *MemoryStore) GetChunk(id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return chunk, nil
}

func (s *MemoryStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunkIDs := s.docChunks[docID]
	chunks := make([]domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *MemoryStore) DeleteChunksByDoc(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunksByDoc(docID)
	s.refreshStats()
	return nil
}

func (s *MemoryStore) deleteChunksByDoc(docID string) {
	for _, id := range s.docChunks[docID] {
		chunk, ok := s.chunks[id]
		if !ok {
			continue
		}
		for _, term := range chunk.Tokens {
			if byChunk, ok := s.postings[term]; ok {
				delete(byChunk, id)
				if len(byChunk) == 0 {
					delete(s.postings, term)
				}
			}
		}
		delete(s.chunks, id)
	}
	delete(s.docChunks, docID)
}

func (s *MemoryStore) PutPosting(term string, chunkID string, tf int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putPosting(term, chunkID, tf)
	return nil
}

func (s *MemoryStore) putPosting(term, chunkID string, tf int) {
	byChunk, ok := s.postings[term]
	if !ok {
		byChunk = make(map[string]int)
		s.postings[term] = byChunk
	}
	byChunk[chunkID] = tf
}

func (s *MemoryStore) GetPostings(term string) ([]domain.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byChunk := s.postings[term]
	postings := make([]domain.Posting, 0, len(byChunk))
	for chunkID, tf := range byChunk {
		postings = append(postings, domain.Posting{ChunkID: chunkID, TF: tf})
	}
	sort.Slice(postings, func(i, j int) bool { return postings[i].ChunkID < postings[j].ChunkID })
	return postings, nil
}

func (s *MemoryStore) DeletePostings(chunkID string, terms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, term := range terms {
		if byChunk, ok := s.postings[term]; ok {
			delete(byChunk, chunkID)
			if len(byChunk) == 0 {
				delete(s.postings, term)
			}
		}
	}
	return nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

// UpdateStats overrides the derived stats until the next mutation.
func (s *MemoryStore) UpdateStats(stats domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	return nil
}

// BatchIndex replaces each file's document wholesale: old chunks and
// postings of the same document are dropped first.
func (s *MemoryStore) BatchIndex(files []port.IndexedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, file := range files {
		s.deleteChunksByDoc(file.Doc.ID)
		s.docs[file.Doc.ID] = file.Doc

		for _, chunk := range file.Chunks {
			s.putChunk(chunk)
		}
		for term, chunkTFs := range file.Postings {
			for chunkID, tf := range chunkTFs {
				s.putPosting(term, chunkID, tf)
			}
		}
	}

	s.refreshStats()
	return nil
}

// RemoveDoc drops a document with all of its chunks and postings.
func (s *MemoryStore) RemoveDoc(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.docs[docID]
	s.deleteChunksByDoc(docID)
	delete(s.docs, docID)
	s.refreshStats()
	return existed
}

// Snapshot returns the whole index as IndexedFiles, ordered by document name.
func (s *MemoryStore) Snapshot() []port.IndexedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]port.IndexedFile, 0, len(s.docs))
	for id, doc := range s.docs {
		file := port.IndexedFile{Doc: doc, Postings: make(map[string]map[string]int)}
		for _, chunkID := range s.docChunks[id] {
			chunk, ok := s.chunks[chunkID]
			if !ok {
				continue
			}
			file.Chunks = append(file.Chunks, chunk)
			for _, term := range chunk.Tokens {
				if file.Postings[term] == nil {
					file.Postings[term] = make(map[string]int)
				}
				file.Postings[term][chunkID] = s.postings[term][chunkID]
			}
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Doc.Name < files[j].Doc.Name })
	return files
}

func (s *MemoryStore) refreshStats() {
	total := 0
	for _, chunk := range s.chunks {
		total += len(chunk.Tokens)
	}
	s.stats = domain.Stats{
		TotalDocs:   len(s.docs),
		TotalChunks: len(s.chunks),
	}
	if len(s.chunks) > 0 {
		s.stats.AvgChunkLen = float64(total) / float64(len(s.chunks))
	}
}

func (s *MemoryStore) Close() error {
	return nil
}
