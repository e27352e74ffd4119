package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/llm"
)

type stubExtractor struct {
	fields     llm.InvoiceFields
	confidence float64
	err        error
	gotHint    *llm.Hint
}

func (e *stubExtractor) Run(_ context.Context, _ string, _ int, hint *llm.Hint) (llm.InvoiceFields, float64, error) {
	e.gotHint = hint
	return e.fields, e.confidence, e.err
}

func TestStage_BackupPathWins(t *testing.T) {
	stage := NewStage(nil, nil, 0.75, nil)

	rec, err := stage.Recover(context.Background(), labeledInvoice, 1, errors.New("llm unreachable"))
	require.NoError(t, err)
	assert.True(t, rec.Partial)
	assert.Equal(t, "INV-555", rec.Fields.InvoiceNumber)
	assert.Empty(t, rec.CaseID)
}

func TestStage_SimilarityPathRetriesWithHint(t *testing.T) {
	emb := &mapEmbedder{
		vectors: map[string][]float32{"corpus text": {1, 0}},
		def:     []float32{0.99, 0.01},
	}
	idx := NewIndex(emb, nil)
	require.NoError(t, idx.Add(context.Background(), FailureCase{
		ID:   "comma-decimals",
		Text: "corpus text",
		Hint: llm.Hint{Instruction: "Amounts use comma decimal separators."},
	}))

	extractor := &stubExtractor{
		fields:     llm.InvoiceFields{InvoiceNumber: "INV-1", VendorName: "V", InvoiceDate: "2026-01-01", TotalAmount: "10.00"},
		confidence: 0.89,
	}
	stage := NewStage(idx, extractor, 0.75, nil)

	rec, err := stage.Recover(context.Background(), "unlabeled document body", 1, errors.New("malformed response"))
	require.NoError(t, err)
	assert.False(t, rec.Partial)
	assert.Equal(t, "comma-decimals", rec.CaseID)
	assert.Equal(t, "INV-1", rec.Fields.InvoiceNumber)
	require.NotNil(t, extractor.gotHint)
	assert.Equal(t, "Amounts use comma decimal separators.", extractor.gotHint.Instruction)
}

func TestStage_ExhaustedWrapsOriginalFailure(t *testing.T) {
	emb := &mapEmbedder{
		vectors: map[string][]float32{"corpus text": {1, 0}},
		def:     []float32{0, 1},
	}
	idx := NewIndex(emb, nil)
	require.NoError(t, idx.Add(context.Background(), FailureCase{ID: "c1", Text: "corpus text"}))

	stage := NewStage(idx, &stubExtractor{err: errors.New("still failing")}, 0.75, nil)

	_, err := stage.Recover(context.Background(), "nothing recoverable here", 1, errors.New("original cause"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrExtractionFailed))
	assert.Contains(t, err.Error(), "original cause")
}

func TestStage_HintedRetryFailureExhausts(t *testing.T) {
	emb := &mapEmbedder{
		vectors: map[string][]float32{"corpus text": {1, 0}},
		def:     []float32{0.99, 0.01},
	}
	idx := NewIndex(emb, nil)
	require.NoError(t, idx.Add(context.Background(), FailureCase{ID: "c1", Text: "corpus text"}))

	stage := NewStage(idx, &stubExtractor{err: errors.New("retry also failed")}, 0.75, nil)

	_, err := stage.Recover(context.Background(), "unlabeled body", 1, errors.New("original cause"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrExtractionFailed))
}
