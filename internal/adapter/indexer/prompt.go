package indexer

import (
	"fmt"
	"strings"

	"docsearch/internal/adapter/llm"
	"docsearch/internal/domain"
)

const defaultSystemPrompt = "You answer questions about the user's documents. " +
	"Use only the provided context and cite document names. " +
	"If the context does not contain the answer, say so."

func buildPrompt(query string, packed domain.PackedContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	sb.WriteString(llm.ContextMarker)
	for _, s := range packed.Snippets {
		fmt.Fprintf(&sb, "[%s %s]\n%s\n\n", s.Name, s.Range, s.Text)
	}
	return sb.String()
}
