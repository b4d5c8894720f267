package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/config"
	"docsearch/internal/domain"
	"docsearch/internal/port"
)

func indexedFile(docID, name string, chunkIDs ...string) port.IndexedFile {
	file := port.IndexedFile{
		Doc:      domain.Document{ID: docID, Name: name, Hash: "h-" + name, ModTime: time.Unix(1700000000, 0)},
		Postings: map[string]map[string]int{},
	}
	for i, id := range chunkIDs {
		file.Chunks = append(file.Chunks, domain.Chunk{
			ID: id, DocID: docID, StartLine: i + 1, EndLine: i + 1,
			Tokens: []string{"alpha", name}, Text: "alpha " + name,
		})
		if file.Postings["alpha"] == nil {
			file.Postings["alpha"] = map[string]int{}
		}
		file.Postings["alpha"][id] = 1
	}
	return file
}

func TestBoltStore_ReplaceAndRead(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "list.db"))
	require.NoError(t, err)
	defer s.Close()

	stats := domain.Stats{TotalDocs: 2, TotalChunks: 3, AvgChunkLen: 2}
	require.NoError(t, s.Replace([]port.IndexedFile{
		indexedFile("d2", "b.txt", "c3"),
		indexedFile("d1", "a.txt", "c1", "c2"),
	}, stats))

	docs, err := s.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Doc.Name)
	assert.Equal(t, "h-a.txt", docs[0].Doc.Hash)
	assert.Equal(t, int64(1700000000), docs[0].Doc.ModTime.Unix())
	require.Len(t, docs[0].Chunks, 2)
	assert.Equal(t, "c1", docs[0].Chunks[0].ID)
	assert.Equal(t, "alpha a.txt", docs[0].Chunks[0].Text)
	assert.Equal(t, []string{"alpha", "a.txt"}, docs[0].Chunks[0].Tokens)

	postings, err := s.Postings("alpha")
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{
		{ChunkID: "c1", TF: 1}, {ChunkID: "c2", TF: 1}, {ChunkID: "c3", TF: 1},
	}, postings)

	missing, err := s.Postings("nothing")
	require.NoError(t, err)
	assert.Empty(t, missing)

	got, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats, got)
}

func TestBoltStore_ReplaceKeepsStamp(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "list.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Replace([]port.IndexedFile{indexedFile("d1", "a.txt", "c1")}, domain.Stats{TotalDocs: 1}))
	require.NoError(t, s.Stamp("abc"))

	require.NoError(t, s.Replace([]port.IndexedFile{indexedFile("d2", "b.txt", "c9")}, domain.Stats{TotalDocs: 1}))

	docs, err := s.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b.txt", docs[0].Doc.Name)

	postings, err := s.Postings("alpha")
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{{ChunkID: "c9", TF: 1}}, postings, "old postings are dropped")

	check, err := s.CheckMigration("abc")
	require.NoError(t, err)
	assert.False(t, check.NeedsRebuild)
}

func TestCheckMigration(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "list.db"))
	require.NoError(t, err)
	defer s.Close()

	check, err := s.CheckMigration("abc")
	require.NoError(t, err)
	assert.True(t, check.NeedsRebuild, "fresh store has nothing to reuse")

	require.NoError(t, s.Stamp("abc"))
	check, err = s.CheckMigration("def")
	require.NoError(t, err)
	assert.True(t, check.NeedsRebuild)
	assert.Equal(t, "index configuration changed", check.Reason)

	require.NoError(t, s.SetSchemaInfo(SchemaInfo{Version: CurrentSchemaVersion + 1, ConfigHash: "abc"}))
	check, err = s.CheckMigration("abc")
	require.NoError(t, err)
	assert.True(t, check.NeedsRebuild)
}

func TestComputeConfigHash(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	assert.Equal(t, ComputeConfigHash(a), ComputeConfigHash(b))

	b.Index.ChunkTokens++
	assert.NotEqual(t, ComputeConfigHash(a), ComputeConfigHash(b))
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.db")

	_, ok, err := LoadSnapshot(path, "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	files := []port.IndexedFile{indexedFile("d1", "a.txt", "c1", "c2")}
	require.NoError(t, SaveSnapshot(path, "h1", files, domain.Stats{TotalDocs: 1, TotalChunks: 2}))

	loaded, ok, err := LoadSnapshot(path, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, loaded, "d1")
	assert.Len(t, loaded["d1"].Chunks, 2)
	assert.Equal(t, "h-a.txt", loaded["d1"].Doc.Hash)

	_, ok, err = LoadSnapshot(path, "h2")
	require.NoError(t, err)
	assert.False(t, ok, "a different config hash must not reuse the snapshot")
}

func TestVectorStore_SearchOrder(t *testing.T) {
	vs := NewVectorStore(2)
	require.NoError(t, vs.Upsert([]port.VectorItem{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{0, 1}},
		{ID: "z", Vector: []float32{1, 1}},
	}))

	results, err := vs.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].ID)
	assert.Equal(t, "z", results[1].ID)

	_, err = vs.Search([]float32{1}, 1)
	assert.Error(t, err)
	assert.Error(t, vs.Upsert([]port.VectorItem{{ID: "bad", Vector: []float32{1, 2, 3}}}))

	require.NoError(t, vs.Delete([]string{"x"}))
	n, err := vs.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVectorsSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vector.db")
	vs := NewVectorStore(3)
	require.NoError(t, vs.Upsert([]port.VectorItem{
		{ID: "c1", Vector: []float32{1, 2, 3}, Metadata: map[string]string{"name": "a.txt"}},
	}))
	require.NoError(t, SaveVectors(path, "h1", vs))

	loaded, reused, err := LoadVectors(path, "h1", 3)
	require.NoError(t, err)
	assert.True(t, reused)
	v, ok := loaded.Get("c1")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)

	loaded, reused, err = LoadVectors(path, "other", 3)
	require.NoError(t, err)
	assert.False(t, reused)
	n, _ := loaded.Count()
	assert.Zero(t, n)
}
