package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/okellar/invoiceflow/internal/llm"
)

// FailureCase is one curated entry in the failure corpus: the text of a
// previously seen failing document and the resolution strategy that fixed it.
type FailureCase struct {
	ID   string
	Text string
	Hint llm.Hint
}

// Classification is the nearest-neighbor verdict for a failing document.
type Classification struct {
	Similar    bool
	CaseID     string
	Similarity float64
	Hint       llm.Hint
}

type indexEntry struct {
	c   FailureCase
	vec []float32
}

// Index is an in-memory nearest-neighbor index over failure-case embeddings.
type Index struct {
	embedder llm.Embedder
	logger   *slog.Logger

	mu      sync.RWMutex
	entries []indexEntry
}

func NewIndex(embedder llm.Embedder, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{embedder: embedder, logger: logger}
}

// Add embeds a failure case and appends it to the corpus.
func (x *Index) Add(ctx context.Context, c FailureCase) error {
	vec, err := x.embedder.Embed(ctx, c.Text)
	if err != nil {
		return fmt.Errorf("embed failure case %s: %w", c.ID, err)
	}
	x.mu.Lock()
	x.entries = append(x.entries, indexEntry{c: c, vec: vec})
	x.mu.Unlock()
	x.logger.Info("fallback.index.added", "case_id", c.ID, "corpus_size", x.Len())
	return nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Classify embeds the failing document and finds its nearest neighbor. The
// result is Similar only when cosine similarity clears the threshold.
func (x *Index) Classify(ctx context.Context, text string, threshold float64) (Classification, error) {
	x.mu.RLock()
	empty := len(x.entries) == 0
	x.mu.RUnlock()
	if empty {
		return Classification{}, nil
	}

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return Classification{}, fmt.Errorf("embed query: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	best := Classification{Similarity: -1}
	for _, e := range x.entries {
		sim := cosineSimilarity(vec, e.vec)
		if sim > best.Similarity {
			best = Classification{CaseID: e.c.ID, Similarity: sim, Hint: e.c.Hint}
		}
	}
	best.Similar = best.Similarity >= threshold

	x.logger.Info("fallback.index.classified",
		"case_id", best.CaseID,
		"similarity", best.Similarity,
		"similar", best.Similar,
	)
	return best, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
