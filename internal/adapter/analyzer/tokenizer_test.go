package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizer_FoldsPlurals(t *testing.T) {
	tok := NewTokenizer(true)

	tokens := tok.Tokenize("Dogs chase queries and boxes")
	assert.Equal(t, []string{"dog", "chase", "query", "box"}, tokens)
}

func TestTokenizer_KeepsPluralsWhenDisabled(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("running dogs are playing")
	assert.Equal(t, []string{"running", "dogs", "playing"}, tokens)
}

func TestTokenizer_StopwordAndShortWordRemoval(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("the quick brown fox a I go to")
	assert.Equal(t, []string{"quick", "brown", "fox", "go"}, tokens)
}

func TestTokenizer_SplitsOnPunctuation(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("invoice_total=42; customer-name")
	assert.Equal(t, []string{"invoice_total", "42", "customer", "name"}, tokens)
}

func TestTokenizer_CountTokens(t *testing.T) {
	tok := NewTokenizer(false)

	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 13, tok.CountTokens("one two three four five six seven eight nine ten"))
}

func TestSingular(t *testing.T) {
	cases := map[string]string{
		"class":    "class",
		"status":   "status",
		"analysis": "analysis",
		"files":    "file",
		"batches":  "batch",
		"policies": "policy",
		"gas":      "gas",
	}
	for in, want := range cases {
		assert.Equal(t, want, singular(in), in)
	}
}
