package domain

import "time"

// Document is a stored document as seen by an index handle.
type Document struct {
	ID      string
	Name    string
	Hash    string
	ModTime time.Time
	Content string
}

type Chunk struct {
	ID        string
	DocID     string
	StartLine int
	EndLine   int
	Tokens    []string
	Text      string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type PackedContext struct {
	Query        string    `json:"query"`
	BudgetTokens int       `json:"budget_tokens"`
	UsedTokens   int       `json:"used_tokens"`
	Snippets     []Snippet `json:"snippets"`
}

type Snippet struct {
	Name  string `json:"name"`
	Range string `json:"range"`
	Why   string `json:"why"`
	Text  string `json:"text"`
}

type Posting struct {
	ChunkID string
	TF      int
}

type Stats struct {
	TotalDocs   int
	TotalChunks int
	AvgChunkLen float64
}
