package retriever

import (
	"math"
	"testing"

	"docsearch/internal/domain"
)

func scored(id string, score float64, tokens ...string) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{ID: id, Tokens: tokens}, Score: score}
}

func ids(chunks []domain.ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Chunk.ID
	}
	return out
}

func TestMMRPrefersDiverseChunks(t *testing.T) {
	r := NewMMRReranker(0.7, 0.9)
	got := ids(r.Rerank([]domain.ScoredChunk{
		scored("budget-1", 1.0, "budget", "quarter", "revenue", "forecast"),
		scored("budget-2", 0.9, "budget", "quarter", "revenue", "costs"),
		scored("roadmap", 0.8, "roadmap", "owner", "milestone", "release"),
		scored("budget-3", 0.7, "budget", "audit", "invoice", "vendor"),
	}, 3))

	want := []string{"budget-1", "roadmap", "budget-2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMMRDropsNearDuplicates(t *testing.T) {
	r := NewMMRReranker(0.5, 0.3)
	got := ids(r.Rerank([]domain.ScoredChunk{
		scored("orig", 1.0, "a", "b", "c"),
		scored("copy", 0.9, "a", "b", "c"),
	}, 2))

	if len(got) != 1 || got[0] != "orig" {
		t.Errorf("expected only orig, got %v", got)
	}
}

func TestMMRTieBreaksOnChunkID(t *testing.T) {
	r := NewMMRReranker(0.7, 0.9)
	got := ids(r.Rerank([]domain.ScoredChunk{
		scored("b", 0.5, "x"),
		scored("a", 0.5, "y"),
	}, 2))

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestMMRKeepsInputOrder(t *testing.T) {
	r := NewMMRReranker(0.7, 0.9)
	in := []domain.ScoredChunk{scored("c1", 0.2, "a"), scored("c2", 1, "b")}

	r.Rerank(in, 1)
	if in[0].Chunk.ID != "c1" || in[1].Chunk.ID != "c2" {
		t.Errorf("candidates were reordered: %v", ids(in))
	}
}

func TestMMRNothingToRank(t *testing.T) {
	r := NewMMRReranker(0.7, 0.8)

	if got := r.Rerank(nil, 10); got != nil {
		t.Errorf("nil candidates: got %v", got)
	}
	if got := r.Rerank([]domain.ScoredChunk{scored("c1", 1, "a")}, 0); got != nil {
		t.Errorf("k=0: got %v", got)
	}
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		a, b []string
		want float64
	}{
		{[]string{"a", "b", "c"}, []string{"c", "b", "a"}, 1},
		{[]string{"a", "b"}, []string{"c", "d"}, 0},
		{[]string{"a", "b"}, []string{"b", "c"}, 1.0 / 3},
		{[]string{"a", "a", "b"}, []string{"a"}, 0.5},
		{nil, []string{"a"}, 0},
		{nil, nil, 1},
	}
	for _, tc := range cases {
		got := jaccard(termSet(tc.a), termSet(tc.b))
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("jaccard(%v, %v) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}
