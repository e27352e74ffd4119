package match

import (
	"context"
	"log/slog"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/refdata"
)

// Stage fuzzy-matches an extracted vendor name and optional PO number
// against the reference dataset. An unmatched result is a normal terminal
// value, not an error.
type Stage struct {
	dataset   *refdata.Dataset
	threshold float64
	logger    *slog.Logger
}

func NewStage(dataset *refdata.Dataset, threshold float64, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = 0.85
	}
	return &Stage{dataset: dataset, threshold: threshold, logger: logger}
}

// Run resolves a PO reference. Exact PO-number lookup is preferred; fuzzy
// vendor matching is the fallback when no exact key exists.
func (s *Stage) Run(_ context.Context, vendorName, poNumber string) entity.MatchingResult {
	if poNumber != "" {
		if v, ok := s.dataset.FindByPO(poNumber); ok {
			s.logger.Info("match.exact_po", "po_number", poNumber, "vendor", v.Name)
			return entity.MatchingResult{
				Status:          entity.MatchMatched,
				PONumber:        poNumber,
				MatchConfidence: 1.0,
			}
		}
	}

	best := entity.MatchingResult{Status: entity.MatchUnmatched}
	needle := strings.ToLower(strings.TrimSpace(vendorName))
	if needle == "" {
		return best
	}

	for _, v := range s.dataset.Vendors() {
		score := levenshtein.Match(needle, strings.ToLower(v.Name), nil)
		if score >= s.threshold && score > best.MatchConfidence {
			po := ""
			if len(v.PONumbers) > 0 {
				po = v.PONumbers[0]
			}
			best = entity.MatchingResult{
				Status:          entity.MatchMatched,
				PONumber:        po,
				MatchConfidence: score,
			}
		}
	}

	s.logger.Info("match.done",
		"vendor", vendorName,
		"status", best.Status,
		"po_number", best.PONumber,
		"confidence", best.MatchConfidence,
	)
	return best
}
