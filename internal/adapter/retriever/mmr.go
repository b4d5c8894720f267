package retriever

import (
	"docsearch/internal/domain"
	"docsearch/internal/port"
)

var _ port.DiversityReranker = (*MMRReranker)(nil)

// MMRReranker diversifies results with Maximal Marginal Relevance over the
// token sets of the chunks. Candidates more similar than dedupJaccard to an
// already selected chunk are dropped.
type MMRReranker struct {
	lambda       float64
	dedupJaccard float64
}

func NewMMRReranker(lambda, dedupJaccard float64) *MMRReranker {
	return &MMRReranker{
		lambda:       lambda,
		dedupJaccard: dedupJaccard,
	}
}

type mmrCandidate struct {
	chunk  domain.ScoredChunk
	terms  map[string]struct{}
	maxSim float64
	used   bool
}

// Rerank picks up to k candidates by
// MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected).
// Equal MMR values resolve to the lower chunk id. The input is not modified.
func (r *MMRReranker) Rerank(candidates []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	k = min(k, len(candidates))

	maxScore := 0.0
	pool := make([]mmrCandidate, len(candidates))
	for i, c := range candidates {
		maxScore = max(maxScore, c.Score)
		pool[i] = mmrCandidate{chunk: c, terms: termSet(c.Chunk.Tokens)}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	selected := make([]domain.ScoredChunk, 0, k)
	for len(selected) < k {
		best := -1
		bestMMR := 0.0
		for i := range pool {
			c := &pool[i]
			if c.used || c.maxSim > r.dedupJaccard {
				continue
			}
			mmr := r.lambda*(c.chunk.Score/maxScore) - (1-r.lambda)*c.maxSim
			if best == -1 || mmr > bestMMR || (mmr == bestMMR && c.chunk.Chunk.ID < pool[best].chunk.Chunk.ID) {
				best, bestMMR = i, mmr
			}
		}
		if best == -1 {
			break
		}

		pick := &pool[best]
		pick.used = true
		selected = append(selected, pick.chunk)

		// Only the newest pick can raise a candidate's max similarity.
		for i := range pool {
			if c := &pool[i]; !c.used {
				c.maxSim = max(c.maxSim, jaccard(c.terms, pick.terms))
			}
		}
	}
	return selected
}

func termSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|. Two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
