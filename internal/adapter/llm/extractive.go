package llm

import (
	"context"
	"strings"

	"docsearch/internal/port"
)

var _ port.LLM = (*Extractive)(nil)

// Extractive is the offline answerer: it returns the context section of the
// prompt as the answer, trimmed to maxChars.
type Extractive struct {
	maxChars int
}

func NewExtractive(maxChars int) *Extractive {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Extractive{maxChars: maxChars}
}

// ContextMarker separates the question from the retrieved passages in the
// prompts built by the index handles.
const ContextMarker = "Context:\n"

// NoContextAnswer is returned when retrieval found nothing.
const NoContextAnswer = "No relevant content found."

func (e *Extractive) GenerateWithSystem(ctx context.Context, _, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, passages, ok := strings.Cut(userPrompt, ContextMarker)
	passages = strings.TrimSpace(passages)
	if !ok || passages == "" {
		return NoContextAnswer, nil
	}
	if len(passages) > e.maxChars {
		cut := strings.LastIndexAny(passages[:e.maxChars], " \n")
		if cut <= 0 {
			cut = e.maxChars
		}
		passages = strings.TrimSpace(passages[:cut]) + " ..."
	}
	return passages, nil
}

func (e *Extractive) ModelName() string {
	return "extractive"
}
