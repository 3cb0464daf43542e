package search

import (
	"fmt"
	"unicode/utf8"
)

// CharsPerToken is the character-to-token approximation used for budget
// math across prompt assembly and embedding batching.
const CharsPerToken = 4

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + CharsPerToken - 1) / CharsPerToken
}

// TokenBudget constrains text batches to a token ceiling. Each batch's
// total (truncated) text stays within maxTokens, each batch holds at most
// maxBatchSize documents, and individual texts are truncated to the budget.
type TokenBudget struct {
	maxTokens    int
	maxBatchSize int
}

// NewTokenBudget creates a TokenBudget. maxTokens must be positive.
func NewTokenBudget(maxTokens int) (TokenBudget, error) {
	if maxTokens <= 0 {
		return TokenBudget{}, fmt.Errorf("NewTokenBudget: maxTokens must be positive, got %d", maxTokens)
	}
	return TokenBudget{maxTokens: maxTokens, maxBatchSize: 1}, nil
}

// DefaultEmbeddingBudget returns a budget of 6 000 tokens, conservative
// for 8 192-token embedding models.
func DefaultEmbeddingBudget() TokenBudget {
	b, _ := NewTokenBudget(6000)
	return b
}

// WithMaxBatchSize returns a budget with the given maximum number of
// documents per batch. Values <= 0 are clamped to 1.
func (b TokenBudget) WithMaxBatchSize(n int) TokenBudget {
	if n <= 0 {
		n = 1
	}
	b.maxBatchSize = n
	return b
}

// MaxTokens returns the token ceiling.
func (b TokenBudget) MaxTokens() int { return b.maxTokens }

// MaxBatchSize returns the per-batch document cap.
func (b TokenBudget) MaxBatchSize() int { return b.maxBatchSize }

// Fits reports whether the text is within the token ceiling.
func (b TokenBudget) Fits(text string) bool {
	return EstimateTokens(text) <= b.maxTokens
}

// Truncate returns text capped to the token ceiling, cut on a rune
// boundary.
func (b TokenBudget) Truncate(text string) string {
	maxRunes := b.maxTokens * CharsPerToken
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes])
}

// Batches partitions documents into groups whose total truncated token
// count stays within the budget and whose size does not exceed
// maxBatchSize. A single document that still exceeds the budget after
// truncation is placed alone in its own batch.
func (b TokenBudget) Batches(documents []Document) [][]Document {
	if len(documents) == 0 {
		return nil
	}

	var batches [][]Document
	i := 0

	for i < len(documents) {
		start := i
		batchTokens := 0

		for i < len(documents) {
			if i-start >= b.maxBatchSize && i > start {
				break
			}

			tokens := EstimateTokens(documents[i].Content())
			if tokens > b.maxTokens {
				tokens = b.maxTokens
			}

			if batchTokens+tokens > b.maxTokens && i > start {
				break
			}

			batchTokens += tokens
			i++
		}

		batch := make([]Document, i-start)
		copy(batch, documents[start:i])
		batches = append(batches, batch)
	}

	return batches
}
