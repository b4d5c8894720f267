package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"docsearch/internal/port"
)

var (
	bucketVectors    = []byte("vectors")
	bucketVectorMeta = []byte("vector_meta")
)

// VectorStore is a brute-force cosine index kept in memory. SaveVectors and
// LoadVectors move its contents to and from a bolt file.
type VectorStore struct {
	dimension int
	mu        sync.RWMutex
	vectors   map[string]vectorEntry
}

var _ port.VectorStore = (*VectorStore)(nil)

type vectorEntry struct {
	vector   []float32
	metadata map[string]string
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
}

func NewVectorStore(dimension int) *VectorStore {
	return &VectorStore{
		dimension: dimension,
		vectors:   make(map[string]vectorEntry),
	}
}

func (s *VectorStore) Dimension() int {
	return s.dimension
}

func (s *VectorStore) Upsert(items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(item.Vector))
		}
	}
	for _, item := range items {
		s.vectors[item.ID] = vectorEntry{vector: item.Vector, metadata: item.Metadata}
	}
	return nil
}

// Get returns a stored vector by id.
func (s *VectorStore) Get(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.vectors[id]
	return entry.vector, ok
}

// IDs returns the ids of all stored vectors.
func (s *VectorStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	return ids
}

// Search finds the k nearest vectors by cosine similarity. Ties break on id
// so results are stable.
func (s *VectorStore) Search(query []float32, k int) ([]port.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}
	if len(s.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	results := make([]port.VectorResult, 0, len(s.vectors))
	for id, entry := range s.vectors {
		results = append(results, port.VectorResult{
			ID:       id,
			Score:    cosineSimilarity(query, entry.vector),
			Metadata: entry.metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *VectorStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

func (s *VectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// SaveVectors replaces the contents of the bolt file at path with vs,
// stamped with configHash.
func SaveVectors(path, configHash string, vs *VectorStore) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("failed to open vector db: %w", err)
	}
	defer db.Close()

	vs.mu.RLock()
	defer vs.mu.RUnlock()

	return db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketVectors); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		for id, entry := range vs.vectors {
			if err := putJSON(b, []byte(id), storedVector{Vector: entry.vector, Metadata: entry.metadata}); err != nil {
				return err
			}
		}
		return writeSchemaInfo(tx, bucketVectorMeta, SchemaInfo{Version: CurrentSchemaVersion, ConfigHash: configHash})
	})
}

// LoadVectors reads a vector file written by SaveVectors. A missing file or
// one stamped with another configHash yields an empty store and reused=false.
func LoadVectors(path, configHash string, dimension int) (vs *VectorStore, reused bool, err error) {
	vs = NewVectorStore(dimension)
	if !fileExists(path) {
		return vs, false, nil
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return vs, false, fmt.Errorf("failed to open vector db: %w", err)
	}
	defer db.Close()

	info, err := readSchemaInfo(db, bucketVectorMeta)
	if err != nil {
		return vs, false, err
	}
	if checkSchema(info, configHash).NeedsRebuild {
		return vs, false, nil
	}

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // corrupt entries are re-embedded
			}
			if len(stored.Vector) != dimension {
				return nil
			}
			vs.vectors[string(k)] = vectorEntry{vector: stored.Vector, metadata: stored.Metadata}
			return nil
		})
	})
	if err != nil {
		return NewVectorStore(dimension), false, err
	}
	return vs, true, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
