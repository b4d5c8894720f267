package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"docsearch/internal/domain"
	"docsearch/internal/port"
)

var (
	bucketDocs      = []byte("docs")
	bucketChunks    = []byte("chunks")
	bucketBlobs     = []byte("blobs")
	bucketTerms     = []byte("terms")
	bucketStats     = []byte("stats")
	bucketDocChunks = []byte("doc_chunks")
	keyStats        = []byte("corpus_stats")

	dataBuckets = [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketTerms, bucketDocChunks}
)

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = 5 * time.Second

// BoltStore is the on-disk snapshot of one list index. It is written whole
// by Replace and read back document by document.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range append(dataBuckets, bucketStats) {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type storedDoc struct {
	Name    string   `json:"name"`
	Hash    string   `json:"hash"`
	ModTime int64    `json:"mod_time"`
	Chunks  []string `json:"chunks,omitempty"`
}

type storedChunk struct {
	DocID     string   `json:"doc_id"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Tokens    []string `json:"tokens"`
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func getJSON(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

// Replace swaps the whole snapshot for files and stats in a single
// transaction, so a crash never leaves a half-written index behind.
func (s *BoltStore) Replace(files []port.IndexedFile, stats domain.Stats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := clearBuckets(tx); err != nil {
			return err
		}
		if err := writeFiles(tx, files); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketStats), keyStats, stats)
	})
}

func writeFiles(tx *bbolt.Tx, files []port.IndexedFile) error {
	docs := tx.Bucket(bucketDocs)
	chunks := tx.Bucket(bucketChunks)
	blobs := tx.Bucket(bucketBlobs)
	terms := make(map[string][]domain.Posting)

	for _, f := range files {
		ids := make([]string, 0, len(f.Chunks))
		for _, c := range f.Chunks {
			meta := storedChunk{DocID: f.Doc.ID, StartLine: c.StartLine, EndLine: c.EndLine, Tokens: c.Tokens}
			if err := putJSON(chunks, []byte(c.ID), meta); err != nil {
				return err
			}
			if err := blobs.Put([]byte(c.ID), []byte(c.Text)); err != nil {
				return err
			}
			ids = append(ids, c.ID)
		}

		doc := storedDoc{Name: f.Doc.Name, Hash: f.Doc.Hash, ModTime: f.Doc.ModTime.Unix(), Chunks: ids}
		if err := putJSON(docs, []byte(f.Doc.ID), doc); err != nil {
			return err
		}

		for term, tfs := range f.Postings {
			for chunkID, tf := range tfs {
				terms[term] = append(terms[term], domain.Posting{ChunkID: chunkID, TF: tf})
			}
		}
	}

	b := tx.Bucket(bucketTerms)
	for term, postings := range terms {
		sort.Slice(postings, func(i, j int) bool { return postings[i].ChunkID < postings[j].ChunkID })
		if err := putJSON(b, []byte(term), postings); err != nil {
			return err
		}
	}
	return nil
}

// Documents returns every stored document with its chunks, ordered by name.
func (s *BoltStore) Documents() ([]port.IndexedFile, error) {
	var files []port.IndexedFile
	err := s.db.View(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		blobs := tx.Bucket(bucketBlobs)

		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var doc storedDoc
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("document %s: %w", k, err)
			}
			f := port.IndexedFile{Doc: domain.Document{
				ID:      string(k),
				Name:    doc.Name,
				Hash:    doc.Hash,
				ModTime: time.Unix(doc.ModTime, 0),
			}}
			for _, id := range doc.Chunks {
				var meta storedChunk
				ok, err := getJSON(chunks, []byte(id), &meta)
				if err != nil {
					return fmt.Errorf("chunk %s: %w", id, err)
				}
				if !ok {
					continue
				}
				f.Chunks = append(f.Chunks, domain.Chunk{
					ID:        id,
					DocID:     meta.DocID,
					StartLine: meta.StartLine,
					EndLine:   meta.EndLine,
					Tokens:    meta.Tokens,
					Text:      string(blobs.Get([]byte(id))),
				})
			}
			files = append(files, f)
			return nil
		})
	})
	sort.Slice(files, func(i, j int) bool { return files[i].Doc.Name < files[j].Doc.Name })
	return files, err
}

func (s *BoltStore) Postings(term string) ([]domain.Posting, error) {
	var postings []domain.Posting
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketTerms), []byte(term), &postings)
		return err
	})
	return postings, err
}

func (s *BoltStore) Stats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketStats), keyStats, &stats)
		return err
	})
	return stats, err
}
