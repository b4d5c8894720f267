package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/adapter/analyzer"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder_SimilarTextIsCloser(t *testing.T) {
	e := NewHashEmbedder(128, analyzer.NewTokenizer(true))
	vecs, err := e.Embed(context.Background(), []string{
		"quarterly revenue report for the sales team",
		"sales revenue in the quarterly report",
		"recipe for chocolate cake with frosting",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 128)
	}

	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64, analyzer.NewTokenizer(false))
	a, err := e.Embed(context.Background(), []string{"same words"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"same words"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOpenAIEmbedder_Batches(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer none", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(len(req.Input[i])), 0}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Options{Model: "tiny", BaseURL: srv.URL, Dimension: 2, BatchSize: 2})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(3), vecs[2][0])
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Options{Model: "tiny", BaseURL: srv.URL, Dimension: 2})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "status 503")

	_, err = NewOpenAIEmbedder(Options{Model: "custom-model"})
	assert.Error(t, err, "unknown dimension")

	_, err = NewOpenAIEmbedder(Options{Model: "text-embedding-3-small", APIKeyEnv: "DOCSEARCH_TEST_UNSET_KEY"})
	assert.Error(t, err)
}
