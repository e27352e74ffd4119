package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/llm"
)

// Stage prompts the LLM capability with document text and returns
// normalized invoice fields plus a confidence score.
type Stage struct {
	llm    llm.ChatCompleter
	logger *slog.Logger
}

func NewStage(completer llm.ChatCompleter, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{llm: completer, logger: logger}
}

// Run extracts structured fields from document text. A malformed response is
// retried exactly once with an explicit JSON-only correction; a second
// failure raises common.ErrExtractionFailed so the orchestrator can route to
// the fallback stage. An optional hint adjusts the prompt and preprocessing.
func (s *Stage) Run(ctx context.Context, text string, pageCount int, hint *llm.Hint) (llm.InvoiceFields, float64, error) {
	if hint != nil && hint.StripCurrency {
		text = stripCurrencySymbols(text)
	}

	system := llm.BuildSystemPrompt(hint)
	user := llm.BuildUserPrompt(text, pageCount)

	fields, err := s.attempt(ctx, system, user)
	if err != nil {
		s.logger.Warn("extract.malformed_response", "error", err)
		fields, err = s.attempt(ctx, system+" "+llm.CorrectionInstruction, user)
		if err != nil {
			s.logger.Error("extract.failed_after_retry", "error", err)
			return llm.InvoiceFields{}, 0, fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
		}
	}

	normalized, err := Normalize(fields)
	if err != nil {
		return llm.InvoiceFields{}, 0, fmt.Errorf("%w: normalize: %v", common.ErrExtractionFailed, err)
	}
	confidence := Score(normalized)

	s.logger.Info("extract.ok",
		"invoice_number", normalized.InvoiceNumber,
		"vendor", normalized.VendorName,
		"total", normalized.TotalAmount,
		"confidence", confidence,
	)
	return normalized, confidence, nil
}

// attempt makes one LLM call and strictly decodes the response. Narrative
// wrapping around the JSON is a parse failure, not partial success.
func (s *Stage) attempt(ctx context.Context, system, user string) (llm.InvoiceFields, error) {
	content, err := s.llm.Complete(ctx, system, user)
	if err != nil {
		return llm.InvoiceFields{}, err
	}
	return llm.DecodeStrict([]byte(content))
}

func stripCurrencySymbols(text string) string {
	return strings.NewReplacer("$", "", "£", "", "€", "", "¥", "").Replace(text)
}
