package fallback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/extract"
	"github.com/okellar/invoiceflow/internal/llm"
)

// Extractor is the slice of the extraction stage the fallback needs for the
// single hint-assisted retry.
type Extractor interface {
	Run(ctx context.Context, text string, pageCount int, hint *llm.Hint) (llm.InvoiceFields, float64, error)
}

// Recovery is the outcome of a successful fallback.
type Recovery struct {
	Fields     llm.InvoiceFields
	Confidence float64
	// Partial marks a regex-backup recovery: only a subset of fields was
	// recovered, so the record must not be auto-accepted.
	Partial bool
	// CaseID names the matched failure case when the similarity path won.
	CaseID string
}

// Stage recovers from extraction failures. Mechanisms are tried in order:
// the deterministic regex backup extractor, then similarity search against
// the failure corpus with a single hint-assisted re-extraction.
type Stage struct {
	index     *Index
	extractor Extractor
	threshold float64
	logger    *slog.Logger
}

func NewStage(index *Index, extractor Extractor, threshold float64, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = 0.75
	}
	return &Stage{index: index, extractor: extractor, threshold: threshold, logger: logger}
}

var _ Extractor = (*extract.Stage)(nil)

// Recover attempts both mechanisms. When neither recovers anything usable,
// the original failure is returned wrapped so the orchestrator can mark the
// record failed.
func (s *Stage) Recover(ctx context.Context, text string, pageCount int, cause error) (Recovery, error) {
	if res, ok := BackupExtract(text); ok {
		s.logger.Info("fallback.backup_recovered",
			"invoice_number", res.Fields.InvoiceNumber,
			"confidence", res.Confidence,
		)
		return Recovery{Fields: res.Fields, Confidence: res.Confidence, Partial: true}, nil
	}

	if s.index != nil && s.extractor != nil {
		cls, err := s.index.Classify(ctx, text, s.threshold)
		if err != nil {
			s.logger.Warn("fallback.classify_failed", "error", err)
		} else if cls.Similar {
			s.logger.Info("fallback.similar_case", "case_id", cls.CaseID, "similarity", cls.Similarity)
			hint := cls.Hint
			fields, confidence, rerr := s.extractor.Run(ctx, text, pageCount, &hint)
			if rerr == nil {
				return Recovery{Fields: fields, Confidence: confidence, CaseID: cls.CaseID}, nil
			}
			s.logger.Warn("fallback.hinted_retry_failed", "case_id", cls.CaseID, "error", rerr)
		}
	}

	return Recovery{}, fmt.Errorf("%w: fallback exhausted: %v", common.ErrExtractionFailed, cause)
}
