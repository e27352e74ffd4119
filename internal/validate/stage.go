package validate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/llm"
	"github.com/okellar/invoiceflow/internal/repository"
)

// Config holds the outlier-check tunables.
type Config struct {
	// OutlierStdDevs is how many standard deviations from the vendor mean
	// a total may sit before it is flagged.
	OutlierStdDevs float64
	// MinVendorSamples disables the outlier check for vendors with fewer
	// historical records than this.
	MinVendorSamples int
}

// Result pairs the immutable validation verdict with the anomalies the
// stage emitted while producing it.
type Result struct {
	Validation entity.ValidationResult
	Anomalies  []entity.Anomaly
	// Duplicate is set when the invoice number already belongs to a
	// non-failed record. Duplicates are a distinct outcome, not an error.
	Duplicate bool
}

// Stage checks required fields, duplicate invoice numbers, and statistical
// outliers. It reads shared state but never mutates the invoice record;
// anomaly emission appends to the anomaly store.
type Stage struct {
	invoices  repository.InvoiceStore
	anomalies repository.AnomalyStore
	cfg       Config
	logger    *slog.Logger
}

func NewStage(invoices repository.InvoiceStore, anomalies repository.AnomalyStore, cfg Config, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutlierStdDevs <= 0 {
		cfg.OutlierStdDevs = 2.0
	}
	if cfg.MinVendorSamples <= 0 {
		cfg.MinVendorSamples = 5
	}
	return &Stage{invoices: invoices, anomalies: anomalies, cfg: cfg, logger: logger}
}

// Run validates extracted fields. fileName is attached to any anomalies.
func (s *Stage) Run(ctx context.Context, fields llm.InvoiceFields, confidence float64, fileName string) (Result, error) {
	errs := map[string]string{}

	if fields.VendorName == "" {
		errs["vendor_name"] = "missing"
	}
	if fields.InvoiceNumber == "" {
		errs["invoice_number"] = "missing"
	}
	if fields.InvoiceDate == "" {
		errs["invoice_date"] = "missing"
	} else if _, err := time.Parse("2006-01-02", fields.InvoiceDate); err != nil {
		errs["invoice_date"] = "invalid date format (expected YYYY-MM-DD)"
	}

	var total decimal.Decimal
	if fields.TotalAmount == "" {
		errs["total_amount"] = "missing"
	} else {
		var err error
		total, err = decimal.NewFromString(fields.TotalAmount)
		switch {
		case err != nil:
			errs["total_amount"] = "invalid numeric format"
		case total.IsNegative():
			errs["total_amount"] = "negative value not allowed"
		}
	}

	res := Result{}

	// Duplicate gate: read side only. The atomic reservation happens at the
	// persistence boundary.
	if fields.InvoiceNumber != "" {
		exists, err := s.invoices.ExistsActive(ctx, fields.InvoiceNumber)
		if err != nil {
			return Result{}, fmt.Errorf("duplicate lookup: %w", err)
		}
		if exists {
			res.Duplicate = true
			a := entity.NewAnomaly(entity.AnomalyMissingData, fileName,
				fmt.Sprintf("duplicate invoice number: %s", fields.InvoiceNumber))
			a.InvoiceNumber = fields.InvoiceNumber
			a.Confidence = &confidence
			res.Anomalies = append(res.Anomalies, a)
		}
	}

	// Outlier check against vendor history; skipped below the minimum
	// sample size.
	if fields.VendorName != "" && !total.IsZero() {
		if a, flagged, err := s.checkOutlier(ctx, fields, total, confidence, fileName); err != nil {
			s.logger.Warn("validate.outlier_check_failed", "vendor", fields.VendorName, "error", err)
		} else if flagged {
			res.Anomalies = append(res.Anomalies, a)
		}
	}

	for _, a := range res.Anomalies {
		if err := s.anomalies.Append(ctx, a); err != nil {
			s.logger.Error("validate.anomaly_append_failed", "type", a.Type, "error", err)
		}
	}

	status := entity.ValidationValid
	if len(errs) > 0 {
		status = entity.ValidationInvalid
	}
	res.Validation = entity.ValidationResult{Status: status, Errors: errs}

	s.logger.Info("validate.done",
		"invoice_number", fields.InvoiceNumber,
		"status", status,
		"errors", len(errs),
		"duplicate", res.Duplicate,
		"anomalies", len(res.Anomalies),
	)
	return res, nil
}

func (s *Stage) checkOutlier(ctx context.Context, fields llm.InvoiceFields, total decimal.Decimal, confidence float64, fileName string) (entity.Anomaly, bool, error) {
	stats, err := s.invoices.VendorHistory(ctx, fields.VendorName)
	if err != nil {
		return entity.Anomaly{}, false, err
	}
	if stats.Count < s.cfg.MinVendorSamples || stats.StdDev == 0 {
		return entity.Anomaly{}, false, nil
	}
	amount, _ := total.Float64()
	if math.Abs(amount-stats.Mean) <= s.cfg.OutlierStdDevs*stats.StdDev {
		return entity.Anomaly{}, false, nil
	}
	a := entity.NewAnomaly(entity.AnomalyLowConfidence, fileName,
		fmt.Sprintf("unusual total %.2f for vendor %s (mean %.2f, stddev %.2f over %d invoices)",
			amount, fields.VendorName, stats.Mean, stats.StdDev, stats.Count))
	a.InvoiceNumber = fields.InvoiceNumber
	a.Confidence = &confidence
	return a, true, nil
}
