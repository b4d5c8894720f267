package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"docsearch/internal/domain"
	"docsearch/internal/port"
)

var _ port.Chunker = (*LineChunker)(nil)

// LineChunker groups consecutive lines of a document into chunks of at most
// maxTokens estimated tokens, repeating roughly overlap tokens between chunks.
type LineChunker struct {
	maxTokens int
	overlap   int
	tokenizer port.Tokenizer
}

func NewLineChunker(maxTokens, overlap int, tokenizer port.Tokenizer) *LineChunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

func (c *LineChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}
	lines := strings.Split(strings.ReplaceAll(doc.Content, "\r\n", "\n"), "\n")

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentTokens := 0
		var chunkText strings.Builder

		for endLine < len(lines) {
			lineTokens := c.tokenizer.CountTokens(lines[endLine])
			if currentTokens > 0 && currentTokens+lineTokens > c.maxTokens {
				break
			}
			if endLine > startLine {
				chunkText.WriteString("\n")
			}
			chunkText.WriteString(lines[endLine])
			currentTokens += lineTokens
			endLine++
		}

		text := chunkText.String()
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:        ChunkID(doc.ID, startLine, endLine, text),
				DocID:     doc.ID,
				StartLine: startLine + 1,
				EndLine:   endLine,
				Tokens:    c.tokenizer.Tokenize(text),
				Text:      text,
			})
		}

		if endLine >= len(lines) {
			break
		}

		newStart := endLine - c.overlapLines(lines, startLine, endLine)
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks, nil
}

func (c *LineChunker) overlapLines(lines []string, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	n := 0
	tokens := 0
	for i := end - 1; i > start && tokens < c.overlap; i-- {
		tokens += c.tokenizer.CountTokens(lines[i])
		n++
	}
	return n
}

// ChunkID is derived from the chunk's position and text, so unchanged chunks
// keep their id across rebuilds.
func ChunkID(docID string, startLine, endLine int, text string) string {
	data := fmt.Sprintf("%s:%d-%d:%s", docID, startLine, endLine, text)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// DocID derives a stable document id from its name within a session.
func DocID(name string) string {
	hash := sha256.Sum256([]byte(name))
	return hex.EncodeToString(hash[:8])
}
