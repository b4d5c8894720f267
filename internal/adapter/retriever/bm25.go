package retriever

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"docsearch/internal/adapter/analyzer"
	"docsearch/internal/domain"
	"docsearch/internal/port"
)

var _ port.Retriever = (*BM25Retriever)(nil)

// BM25Retriever scores chunks of an IndexStore against a query with Okapi
// BM25. Chunks from documents whose name shares terms with the query get a
// multiplicative boost of nameBoost per matching fraction.
type BM25Retriever struct {
	store     port.IndexStore
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64
	nameBoost float64
}

func NewBM25Retriever(store port.IndexStore, tokenizer *analyzer.Tokenizer, k1, b, nameBoost float64) *BM25Retriever {
	return &BM25Retriever{
		store:     store,
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
		nameBoost: nameBoost,
	}
}

func (r *BM25Retriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	queryTokens := uniqueTokens(r.tokenizer.Tokenize(query))
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}

	stats, err := r.store.GetStats()
	if err != nil {
		return nil, err
	}
	if stats.TotalChunks == 0 {
		return nil, nil
	}

	avgDl := stats.AvgChunkLen
	if avgDl == 0 {
		avgDl = 1
	}
	N := float64(stats.TotalChunks)

	scores := make(map[string]float64)
	chunks := make(map[string]domain.Chunk)

	for _, term := range queryTokens {
		postings, err := r.store.GetPostings(term)
		if err != nil || len(postings) == 0 {
			continue
		}

		n := float64(len(postings))
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		for _, posting := range postings {
			chunk, seen := chunks[posting.ChunkID]
			if !seen {
				chunk, err = r.store.GetChunk(posting.ChunkID)
				if err != nil {
					continue
				}
				chunks[posting.ChunkID] = chunk
			}

			dl := float64(len(chunk.Tokens))
			tf := float64(posting.TF)
			scores[posting.ChunkID] += idf * (tf * (r.k1 + 1)) / (tf + r.k1*(1-r.b+r.b*dl/avgDl))
		}
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}
	boosts := make(map[string]float64)

	results := make([]domain.ScoredChunk, 0, len(scores))
	for chunkID, score := range scores {
		chunk := chunks[chunkID]
		if r.nameBoost > 0 {
			boost, ok := boosts[chunk.DocID]
			if !ok {
				if doc, err := r.store.GetDoc(chunk.DocID); err == nil {
					boost = nameMatch(doc.Name, querySet)
				}
				boosts[chunk.DocID] = boost
			}
			score *= 1 + boost*r.nameBoost
		}
		results = append(results, domain.ScoredChunk{Chunk: chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// nameMatch is the fraction of query terms that appear in a document name.
func nameMatch(name string, querySet map[string]struct{}) float64 {
	nameTokens := tokenizeName(name)
	if len(nameTokens) == 0 || len(querySet) == 0 {
		return 0
	}

	matches := 0
	for _, t := range nameTokens {
		if _, ok := querySet[t]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(querySet))
}

// tokenizeName splits "Quarterly_Report-2024.final.md" into lowercase
// parts of at least two characters.
func tokenizeName(name string) []string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	seen := make(map[string]struct{})
	var tokens []string
	for _, part := range strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	}) {
		part = strings.ToLower(part)
		if len(part) < 2 {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		tokens = append(tokens, part)
	}
	return tokens
}
