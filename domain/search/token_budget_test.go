package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func budgetDoc(t *testing.T, id, content string) Document {
	t.Helper()
	d, err := NewDocument(id, 1, KindCodeChunk, content)
	require.NoError(t, err)
	return d
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("ab"))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"))
	require.Equal(t, 3, EstimateTokens(strings.Repeat("x", 12)))
}

func TestNewTokenBudget_Invalid(t *testing.T) {
	_, err := NewTokenBudget(0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "maxTokens")

	_, err = NewTokenBudget(-1)
	require.Error(t, err)
}

func TestTokenBudget_Truncate(t *testing.T) {
	b, err := NewTokenBudget(2)
	require.NoError(t, err)

	require.Equal(t, "hello", b.Truncate("hello"), "within 8 chars stays whole")
	require.Equal(t, "hellowor", b.Truncate("helloworldmore"), "cut at 2 tokens * 4 chars")
}

func TestTokenBudget_Fits(t *testing.T) {
	b, _ := NewTokenBudget(2)
	require.True(t, b.Fits("12345678"))
	require.False(t, b.Fits("123456789"))
}

func TestTokenBudget_Batches_Empty(t *testing.T) {
	b := DefaultEmbeddingBudget()
	require.Nil(t, b.Batches(nil))
	require.Nil(t, b.Batches([]Document{}))
}

func TestTokenBudget_Batches_ByCount(t *testing.T) {
	// Budget large enough for all texts, so the batch-size cap is the limit.
	b, _ := NewTokenBudget(100000)
	b = b.WithMaxBatchSize(8)

	docs := make([]Document, 19)
	for i := range docs {
		docs[i] = budgetDoc(t, "id", "x")
	}

	batches := b.Batches(docs)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 8)
	require.Len(t, batches[1], 8)
	require.Len(t, batches[2], 3)
}

func TestTokenBudget_Batches_ByTokens(t *testing.T) {
	// 5-token budget. Each doc is 8 chars = 2 tokens, so 2 fit per batch.
	b, _ := NewTokenBudget(5)
	b = b.WithMaxBatchSize(8)

	docs := make([]Document, 5)
	for i := range docs {
		docs[i] = budgetDoc(t, "id", strings.Repeat("a", 8))
	}

	batches := b.Batches(docs)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 2)
	require.Len(t, batches[1], 2)
	require.Len(t, batches[2], 1)
}

func TestTokenBudget_Batches_LargeDocOwnBatch(t *testing.T) {
	// A document exceeding the budget still gets its own batch.
	b, _ := NewTokenBudget(5)
	b = b.WithMaxBatchSize(8)

	docs := []Document{
		budgetDoc(t, "a", strings.Repeat("x", 4)),
		budgetDoc(t, "b", strings.Repeat("y", 100)),
		budgetDoc(t, "c", strings.Repeat("z", 4)),
	}

	batches := b.Batches(docs)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 1, "small doc alone because next would overflow")
	require.Len(t, batches[1], 1, "large doc alone")
	require.Len(t, batches[2], 1, "trailing small doc")
}

func TestTokenBudget_Batches_SingleDoc(t *testing.T) {
	b := DefaultEmbeddingBudget()
	batches := b.Batches([]Document{budgetDoc(t, "id", "hello")})
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
}
