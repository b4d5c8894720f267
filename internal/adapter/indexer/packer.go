package indexer

import (
	"fmt"
	"sort"
	"strings"

	"docsearch/internal/adapter/analyzer"
	"docsearch/internal/domain"
	"docsearch/internal/port"
)

var _ port.Packer = (*Packer)(nil)

// Packer selects the chunks with the best score per token until the budget
// is spent, then merges neighbouring chunks of the same document.
type Packer struct {
	tokenizer *analyzer.Tokenizer
	nameOf    func(docID string) string
	why       string
}

// NewPacker labels every snippet with why ("bm25", "cosine") and resolves
// document names through nameOf.
func NewPacker(tokenizer *analyzer.Tokenizer, nameOf func(docID string) string, why string) *Packer {
	return &Packer{tokenizer: tokenizer, nameOf: nameOf, why: why}
}

func (p *Packer) Pack(query string, chunks []domain.ScoredChunk, budget int) (domain.PackedContext, error) {
	packed := domain.PackedContext{
		Query:        query,
		BudgetTokens: budget,
		Snippets:     []domain.Snippet{},
	}
	if len(chunks) == 0 {
		return packed, nil
	}

	type rankedChunk struct {
		chunk   domain.ScoredChunk
		utility float64
		tokens  int
	}

	ranked := make([]rankedChunk, 0, len(chunks))
	for _, c := range chunks {
		tokens := max(p.tokenizer.CountTokens(c.Chunk.Text), 1)
		ranked = append(ranked, rankedChunk{chunk: c, utility: c.Score / float64(tokens), tokens: tokens})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].utility > ranked[j].utility
	})

	selected := make([]domain.ScoredChunk, 0, len(ranked))
	used := 0
	for _, rc := range ranked {
		if used+rc.tokens > budget {
			continue
		}
		selected = append(selected, rc.chunk)
		used += rc.tokens
	}

	for _, sc := range mergeAdjacent(selected) {
		packed.Snippets = append(packed.Snippets, domain.Snippet{
			Name:  p.nameOf(sc.Chunk.DocID),
			Range: fmt.Sprintf("L%d-%d", sc.Chunk.StartLine, sc.Chunk.EndLine),
			Why:   fmt.Sprintf("%s score: %.2f", p.why, sc.Score),
			Text:  sc.Chunk.Text,
		})
		packed.UsedTokens += p.tokenizer.CountTokens(sc.Chunk.Text)
	}
	return packed, nil
}

// mergeAdjacent joins touching or overlapping chunks of one document and
// orders the result by score.
func mergeAdjacent(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	byDoc := make(map[string][]domain.ScoredChunk)
	for _, c := range chunks {
		byDoc[c.Chunk.DocID] = append(byDoc[c.Chunk.DocID], c)
	}

	result := make([]domain.ScoredChunk, 0, len(chunks))
	for _, docChunks := range byDoc {
		sort.Slice(docChunks, func(i, j int) bool {
			return docChunks[i].Chunk.StartLine < docChunks[j].Chunk.StartLine
		})

		merged := docChunks[0]
		for _, next := range docChunks[1:] {
			if next.Chunk.StartLine > merged.Chunk.EndLine+1 {
				result = append(result, merged)
				merged = next
				continue
			}
			if next.Chunk.EndLine > merged.Chunk.EndLine {
				// drop the lines both chunks share
				shared := merged.Chunk.EndLine - next.Chunk.StartLine + 1
				lines := strings.Split(next.Chunk.Text, "\n")
				if shared < len(lines) {
					merged.Chunk.Text += "\n" + strings.Join(lines[shared:], "\n")
				}
				merged.Chunk.EndLine = next.Chunk.EndLine
			}
			merged.Score = max(merged.Score, next.Score)
		}
		result = append(result, merged)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		if result[i].Chunk.DocID != result[j].Chunk.DocID {
			return result[i].Chunk.DocID < result[j].Chunk.DocID
		}
		return result[i].Chunk.StartLine < result[j].Chunk.StartLine
	})
	return result
}
