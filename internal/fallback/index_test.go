package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okellar/invoiceflow/internal/llm"
)

// mapEmbedder returns a fixed vector per known text and a default vector
// otherwise.
type mapEmbedder struct {
	vectors map[string][]float32
	def     []float32
}

func (e *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.def, nil
}

func TestIndex_ClassifyNearestNeighbor(t *testing.T) {
	emb := &mapEmbedder{
		vectors: map[string][]float32{
			"comma decimals": {1, 0, 0},
			"scanned noise":  {0, 1, 0},
			"query text":     {0.95, 0.05, 0},
		},
		def: []float32{0, 0, 1},
	}
	idx := NewIndex(emb, nil)
	require.NoError(t, idx.Add(context.Background(), FailureCase{
		ID:   "comma-decimals",
		Text: "comma decimals",
		Hint: llm.Hint{Instruction: "Amounts use comma decimal separators."},
	}))
	require.NoError(t, idx.Add(context.Background(), FailureCase{
		ID:   "scanned-noise",
		Text: "scanned noise",
		Hint: llm.Hint{StripCurrency: true},
	}))
	assert.Equal(t, 2, idx.Len())

	cls, err := idx.Classify(context.Background(), "query text", 0.75)
	require.NoError(t, err)
	assert.True(t, cls.Similar)
	assert.Equal(t, "comma-decimals", cls.CaseID)
	assert.Equal(t, "Amounts use comma decimal separators.", cls.Hint.Instruction)
	assert.Greater(t, cls.Similarity, 0.9)
}

func TestIndex_BelowThresholdIsNotSimilar(t *testing.T) {
	emb := &mapEmbedder{
		vectors: map[string][]float32{"known case": {1, 0, 0}},
		def:     []float32{0, 1, 0},
	}
	idx := NewIndex(emb, nil)
	require.NoError(t, idx.Add(context.Background(), FailureCase{ID: "c1", Text: "known case"}))

	cls, err := idx.Classify(context.Background(), "orthogonal document", 0.75)
	require.NoError(t, err)
	assert.False(t, cls.Similar)
}

func TestIndex_EmptyCorpus(t *testing.T) {
	idx := NewIndex(&mapEmbedder{def: []float32{1}}, nil)
	cls, err := idx.Classify(context.Background(), "anything", 0.75)
	require.NoError(t, err)
	assert.False(t, cls.Similar)
	assert.Empty(t, cls.CaseID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, -1.0, cosineSimilarity([]float32{1}, []float32{1, 2}), "dimension mismatch")
	assert.Equal(t, -1.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
}
