package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/progress"
)

// Processor is the per-document pipeline the runner fans out to.
type Processor interface {
	Process(ctx context.Context, doc Document) (*entity.InvoiceOutcome, error)
}

// BatchResult summarizes one finished batch. Current always equals
// Valid + NeedsReview + Failed + Skipped.
type BatchResult struct {
	Total       int
	Valid       int
	NeedsReview int
	Failed      int
	Skipped     int
	Outcomes    []*entity.InvoiceOutcome
}

// BatchConfig tunes the runner's concurrency and heartbeat cadence.
type BatchConfig struct {
	Workers           int
	HeartbeatInterval time.Duration
}

// BatchRunner fans a set of documents out over a fixed worker pool and
// aggregates per-document outcomes into batch counters. Progress is pushed
// after every completion, in completion order; a heartbeat fires while the
// batch is idle between completions. One document's failure never stops the
// others; only context cancellation does.
type BatchRunner struct {
	processor Processor
	sink      progress.Sink
	cfg       BatchConfig
	logger    *slog.Logger

	mu  sync.Mutex
	job entity.BatchJob
}

func NewBatchRunner(processor Processor, sink progress.Sink, cfg BatchConfig, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if sink == nil {
		sink = NewNopSink()
	}
	return &BatchRunner{processor: processor, sink: sink, cfg: cfg, logger: logger}
}

// Run processes every document and returns the aggregate. Cancellation is
// cooperative: in-flight documents finish their current stage, queued ones
// are abandoned, and the partial result is returned with ctx's error.
func (r *BatchRunner) Run(ctx context.Context, docs []Document) (*BatchResult, error) {
	r.mu.Lock()
	r.job = entity.BatchJob{Total: len(docs)}
	r.mu.Unlock()

	r.logger.Info("batch.start", "total", len(docs), "workers", r.cfg.Workers)
	r.emit(ctx, progress.EventProgress, fmt.Sprintf("processing %d documents", len(docs)))

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(hbCtx)
	}()
	defer func() {
		stopHeartbeat()
		<-hbDone
	}()

	jobs := make(chan Document)
	results := make(chan *entity.InvoiceOutcome, len(docs))

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, jobs, results)
		}()
	}

feed:
	for _, doc := range docs {
		select {
		case jobs <- doc:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	stopHeartbeat()
	<-hbDone

	res := &BatchResult{Total: len(docs)}
	for out := range results {
		res.Outcomes = append(res.Outcomes, out)
		switch {
		case out.Duplicate:
			res.Skipped++
		case out.Record.Status == entity.StatusValid:
			res.Valid++
		case out.Record.Status == entity.StatusNeedsReview:
			res.NeedsReview++
		default:
			res.Failed++
		}
	}

	summary := fmt.Sprintf("batch complete: %d valid, %d need review, %d failed, %d skipped",
		res.Valid, res.NeedsReview, res.Failed, res.Skipped)
	r.emit(ctx, progress.EventComplete, summary)
	r.logger.Info("batch.done",
		"total", res.Total,
		"valid", res.Valid,
		"needs_review", res.NeedsReview,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *BatchRunner) worker(ctx context.Context, jobs <-chan Document, results chan<- *entity.InvoiceOutcome) {
	for doc := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.setCurrentFile(doc.Name)

		out, err := r.processor.Process(ctx, doc)
		if err != nil {
			// Only cancellation reaches here; the document never
			// completed, so the counters stay untouched.
			r.logger.Warn("batch.document_aborted", "file", doc.Name, "error", err)
			return
		}

		job := r.recordCompletion(out)
		results <- out

		typ := progress.EventProgress
		msg := doc.Name
		switch {
		case out.Duplicate:
			typ = progress.EventWarning
			msg = fmt.Sprintf("%s: duplicate invoice %s skipped", doc.Name, out.Record.InvoiceNumber)
		case out.Record.Status == entity.StatusFailed:
			typ = progress.EventError
			msg = fmt.Sprintf("%s: processing failed", doc.Name)
		}
		r.emitJob(ctx, typ, job, msg)
	}
}

func (r *BatchRunner) setCurrentFile(name string) {
	r.mu.Lock()
	r.job.CurrentFile = name
	r.mu.Unlock()
}

func (r *BatchRunner) recordCompletion(out *entity.InvoiceOutcome) entity.BatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.job.Current++
	if out.Duplicate {
		r.job.Skipped++
	} else if out.Record.Status == entity.StatusFailed {
		r.job.Failed++
	}
	return r.job
}

func (r *BatchRunner) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.emit(ctx, progress.EventHeartbeat, "")
		}
	}
}

func (r *BatchRunner) emit(ctx context.Context, typ progress.EventType, message string) {
	r.mu.Lock()
	job := r.job
	r.mu.Unlock()
	r.emitJob(ctx, typ, job, message)
}

// emitJob delivers best-effort: a sink failure is logged and the batch
// keeps going.
func (r *BatchRunner) emitJob(ctx context.Context, typ progress.EventType, job entity.BatchJob, message string) {
	if err := r.sink.Emit(ctx, progress.FromJob(typ, job, message)); err != nil {
		r.logger.Warn("batch.progress_emit_failed", "type", typ, "error", err)
	}
}

// NopSink discards events. Used when no progress consumer is wired.
type NopSink struct{}

func NewNopSink() NopSink { return NopSink{} }

func (NopSink) Emit(context.Context, progress.Event) error { return nil }
func (NopSink) Close() error                               { return nil }
