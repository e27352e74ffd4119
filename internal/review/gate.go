package review

import (
	"log/slog"

	"github.com/okellar/invoiceflow/internal/entity"
)

// Decision is the gate's routing verdict for one processing pass.
type Decision string

const (
	AutoAccept  Decision = "auto_accept"
	NeedsReview Decision = "needs_review"
	Failed      Decision = "failed"
)

// Input is everything the gate looks at. The gate itself holds no state;
// the record transitions exactly once per pass.
type Input struct {
	Validation entity.ValidationResult
	Confidence float64
	// Duplicate blocks auto-accept even when confidence is high.
	Duplicate bool
	// Recovered marks fields produced by the fallback path; a recovered
	// record is reviewable at best.
	Recovered bool
	// Unrecoverable marks a document the pipeline could not process at
	// all, such as an unreadable file or an extraction the fallback could
	// not repair.
	Unrecoverable bool
}

// Gate routes invoices by confidence. The threshold is the single tunable
// knob governing automation rate and always comes from configuration.
type Gate struct {
	threshold float64
	logger    *slog.Logger
}

func NewGate(autoAcceptThreshold float64, logger *slog.Logger) Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if autoAcceptThreshold <= 0 {
		autoAcceptThreshold = 0.90
	}
	return Gate{threshold: autoAcceptThreshold, logger: logger}
}

// Decide applies the transition rule: AUTO_ACCEPT iff validation passed,
// confidence cleared the threshold, and no duplicate anomaly exists; FAILED
// iff extraction was unrecoverable; otherwise NEEDS_REVIEW.
func (g Gate) Decide(in Input) Decision {
	var d Decision
	switch {
	case in.Unrecoverable:
		d = Failed
	case in.Validation.Valid() && in.Confidence >= g.threshold && !in.Duplicate && !in.Recovered:
		d = AutoAccept
	default:
		d = NeedsReview
	}
	g.logger.Info("review.decide",
		"decision", d,
		"confidence", in.Confidence,
		"validation", in.Validation.Status,
		"duplicate", in.Duplicate,
		"recovered", in.Recovered,
	)
	return d
}

// Status maps a decision onto the record lifecycle.
func (d Decision) Status() entity.InvoiceStatus {
	switch d {
	case AutoAccept:
		return entity.StatusValid
	case Failed:
		return entity.StatusFailed
	default:
		return entity.StatusNeedsReview
	}
}
