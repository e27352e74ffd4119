package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/document"
	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/fallback"
	"github.com/okellar/invoiceflow/internal/llm"
	"github.com/okellar/invoiceflow/internal/repository"
	"github.com/okellar/invoiceflow/internal/review"
	"github.com/okellar/invoiceflow/internal/validate"
)

// Document is one unit of work: the raw bytes plus enough identity to tie
// results back to the source.
type Document struct {
	Name string
	Data []byte
	// Ref is the stable locator stored on the record, usually the path.
	Ref string
}

// DocumentReader turns raw bytes into text.
type DocumentReader interface {
	Read(ctx context.Context, data []byte, fileName string) (document.TextExtractionResult, error)
}

// Extractor produces structured fields from document text.
type Extractor interface {
	Run(ctx context.Context, text string, pageCount int, hint *llm.Hint) (llm.InvoiceFields, float64, error)
}

// Recoverer attempts to salvage a failed extraction.
type Recoverer interface {
	Recover(ctx context.Context, text string, pageCount int, cause error) (fallback.Recovery, error)
}

// Validator checks extracted fields and reports anomalies.
type Validator interface {
	Run(ctx context.Context, fields llm.InvoiceFields, confidence float64, fileName string) (validate.Result, error)
}

// Matcher resolves a vendor and optional PO reference against approved
// reference data.
type Matcher interface {
	Run(ctx context.Context, vendorName, poNumber string) entity.MatchingResult
}

// Config holds the orchestrator's persistence-retry tunables.
type Config struct {
	RetryAttempts  int
	RetryBaseDelay time.Duration
	StageTimeout   time.Duration
}

// Orchestrator drives one document through the full pipeline: read,
// extract (with fallback recovery), validate, match, route, persist. Every
// failure mode maps to an anomaly and a terminal record state; the only
// errors it returns are context cancellations.
type Orchestrator struct {
	reader    DocumentReader
	extractor Extractor
	recoverer Recoverer
	validator Validator
	matcher   Matcher
	gate      review.Gate
	store     repository.Store
	cfg       Config
	logger    *slog.Logger
}

func NewOrchestrator(
	reader DocumentReader,
	extractor Extractor,
	recoverer Recoverer,
	validator Validator,
	matcher Matcher,
	gate review.Gate,
	store repository.Store,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		reader:    reader,
		extractor: extractor,
		recoverer: recoverer,
		validator: validator,
		matcher:   matcher,
		gate:      gate,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs one document to a terminal outcome. A non-nil error is
// returned only when the context is done; every domain failure is absorbed
// into the outcome so one bad document cannot sink a batch.
func (o *Orchestrator) Process(ctx context.Context, doc Document) (*entity.InvoiceOutcome, error) {
	start := time.Now()
	outcome := &entity.InvoiceOutcome{
		Record: &entity.InvoiceRecord{
			ID:                uuid.New(),
			Status:            entity.StatusPending,
			SourceDocumentRef: doc.Ref,
			CreatedAt:         time.Now().UTC(),
		},
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	text, err := o.reader.Read(stageCtx, doc.Data, doc.Name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		typ := entity.AnomalyProcessingError
		if errors.Is(err, common.ErrInvalidDocument) {
			typ = entity.AnomalyInvalidPDF
		}
		o.failDocument(ctx, outcome, doc, typ, err)
		outcome.Timings.Total = time.Since(start)
		return outcome, nil
	}

	extractStart := time.Now()
	fields, confidence, recovered, err := o.extractWithFallback(stageCtx, text, doc, outcome)
	outcome.Timings.Extraction = time.Since(extractStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.failDocument(ctx, outcome, doc, entity.AnomalyExtractionError, err)
		outcome.Timings.Total = time.Since(start)
		return outcome, nil
	}
	fillRecord(outcome.Record, fields, confidence)

	if nonInvoice(fields) {
		a := entity.NewAnomaly(entity.AnomalyMissingData, doc.Name, "Non-invoice document detected")
		o.appendAnomaly(ctx, outcome, a)
	}

	validateStart := time.Now()
	vres, err := o.validator.Run(stageCtx, fields, confidence, doc.Name)
	outcome.Timings.Validation = time.Since(validateStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.failDocument(ctx, outcome, doc, entity.AnomalySystemError, err)
		outcome.Timings.Total = time.Since(start)
		return outcome, nil
	}
	outcome.Validation = vres.Validation
	outcome.Anomalies = append(outcome.Anomalies, vres.Anomalies...)

	matchStart := time.Now()
	outcome.Matching = o.matcher.Run(stageCtx, fields.VendorName, fields.PONumber)
	outcome.Timings.Matching = time.Since(matchStart)

	reviewStart := time.Now()
	decision := o.gate.Decide(review.Input{
		Validation: vres.Validation,
		Confidence: confidence,
		Duplicate:  vres.Duplicate,
		Recovered:  recovered,
	})
	outcome.Record.Status = decision.Status()
	outcome.Duplicate = vres.Duplicate

	if err := o.persist(ctx, outcome, doc); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a := entity.NewAnomaly(entity.AnomalySystemError, doc.Name,
			fmt.Sprintf("persistence failed after %d attempts: %v", o.cfg.RetryAttempts, err))
		a.InvoiceNumber = outcome.Record.InvoiceNumber
		o.appendAnomaly(ctx, outcome, a)
		outcome.Record.Status = entity.StatusFailed
	}
	outcome.Timings.Review = time.Since(reviewStart)
	outcome.Timings.Total = time.Since(start)

	o.logger.Info("pipeline.document_done",
		"file", doc.Name,
		"invoice_number", outcome.Record.InvoiceNumber,
		"status", outcome.Record.Status,
		"duplicate", outcome.Duplicate,
		"confidence", outcome.Record.Confidence,
		"anomalies", len(outcome.Anomalies),
		"elapsed", outcome.Timings.Total,
	)
	return outcome, nil
}

// extractWithFallback runs the primary extraction and, on failure, the
// recovery chain. The recovered flag marks fields the review gate must not
// auto-accept.
func (o *Orchestrator) extractWithFallback(ctx context.Context, text document.TextExtractionResult, doc Document, outcome *entity.InvoiceOutcome) (llm.InvoiceFields, float64, bool, error) {
	fields, confidence, err := o.extractor.Run(ctx, text.Text, text.PageCount, nil)
	if err == nil {
		return fields, confidence, false, nil
	}
	if ctx.Err() != nil || o.recoverer == nil {
		return llm.InvoiceFields{}, 0, false, err
	}

	o.logger.Warn("pipeline.extraction_failed", "file", doc.Name, "error", err)
	rec, rerr := o.recoverer.Recover(ctx, text.Text, text.PageCount, err)
	if rerr != nil {
		return llm.InvoiceFields{}, 0, false, rerr
	}

	reason := "extraction recovered via similarity hint"
	if rec.Partial {
		reason = "extraction recovered via backup extractor; partial fields"
	}
	a := entity.NewAnomaly(entity.AnomalyExtractionError, doc.Name, reason)
	a.InvoiceNumber = rec.Fields.InvoiceNumber
	a.Confidence = &rec.Confidence
	o.appendAnomaly(ctx, outcome, a)
	return rec.Fields, rec.Confidence, true, nil
}

// persist commits the terminal record. For non-failed records the invoice
// number is reserved first; losing the reservation race turns the outcome
// into a duplicate instead of a write.
func (o *Orchestrator) persist(ctx context.Context, outcome *entity.InvoiceOutcome, doc Document) error {
	rec := outcome.Record
	reserved := false
	if rec.Status != entity.StatusFailed && rec.InvoiceNumber != "" && !outcome.Duplicate {
		var inserted bool
		err := retryWithBackoff(ctx, o.cfg.RetryAttempts, o.cfg.RetryBaseDelay, func() error {
			var ierr error
			inserted, ierr = o.store.InsertIfAbsent(ctx, rec.InvoiceNumber)
			return ierr
		})
		if err != nil {
			return common.WrapError(common.ErrStorageUnavailable, err.Error())
		}
		if !inserted {
			outcome.Duplicate = true
			o.logger.Info("pipeline.duplicate_detected", "file", doc.Name, "invoice_number", rec.InvoiceNumber)
			return nil
		}
		reserved = true
	}
	if outcome.Duplicate {
		// Duplicates are skipped, never written over the original.
		return nil
	}
	err := retryWithBackoff(ctx, o.cfg.RetryAttempts, o.cfg.RetryBaseDelay, func() error {
		return o.store.Persist(ctx, rec)
	})
	if err != nil && reserved {
		// The record never landed; free the number so a resubmission is
		// not reported as a duplicate.
		if rerr := o.store.ReleaseReservation(ctx, rec.InvoiceNumber); rerr != nil {
			o.logger.Error("pipeline.reservation_release_failed",
				"invoice_number", rec.InvoiceNumber, "error", rerr)
		}
	}
	return err
}

// failDocument records a terminal failure: one anomaly plus a failed record
// so the document shows up in history.
func (o *Orchestrator) failDocument(ctx context.Context, outcome *entity.InvoiceOutcome, doc Document, typ entity.AnomalyType, cause error) {
	a := entity.NewAnomaly(typ, doc.Name, cause.Error())
	a.InvoiceNumber = outcome.Record.InvoiceNumber
	o.appendAnomaly(ctx, outcome, a)

	outcome.Record.Status = o.gate.Decide(review.Input{Unrecoverable: true}).Status()
	if err := retryWithBackoff(ctx, o.cfg.RetryAttempts, o.cfg.RetryBaseDelay, func() error {
		return o.store.Persist(ctx, outcome.Record)
	}); err != nil {
		o.logger.Error("pipeline.failed_record_persist_failed", "file", doc.Name, "error", err)
	}
	o.logger.Warn("pipeline.document_failed", "file", doc.Name, "type", typ, "error", cause)
}

func (o *Orchestrator) appendAnomaly(ctx context.Context, outcome *entity.InvoiceOutcome, a entity.Anomaly) {
	outcome.Anomalies = append(outcome.Anomalies, a)
	if err := o.store.Append(ctx, a); err != nil {
		o.logger.Error("pipeline.anomaly_append_failed", "file", a.FileName, "error", err)
	}
}

// fillRecord copies normalized fields onto the record. Parse failures leave
// zero values; validation has already flagged the field.
func fillRecord(rec *entity.InvoiceRecord, fields llm.InvoiceFields, confidence float64) {
	rec.InvoiceNumber = fields.InvoiceNumber
	rec.VendorName = fields.VendorName
	rec.Currency = fields.Currency
	rec.PONumber = fields.PONumber
	rec.Confidence = confidence
	if t, err := time.Parse("2006-01-02", fields.InvoiceDate); err == nil {
		rec.InvoiceDate = t
	}
	if d, err := decimal.NewFromString(fields.TotalAmount); err == nil {
		rec.TotalAmount = d
	}
	if fields.TaxAmount != "" {
		if d, err := decimal.NewFromString(fields.TaxAmount); err == nil {
			rec.TaxAmount = &d
		}
	}
}

// nonInvoice reports a document with no vendor identity, the strongest
// signal that the file is not an invoice at all.
func nonInvoice(fields llm.InvoiceFields) bool {
	return fields.VendorName == ""
}
