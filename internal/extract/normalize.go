package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okellar/invoiceflow/internal/llm"
)

// Accepted input date layouts, tried in order. Output is always YYYY-MM-DD.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

const (
	baseConfidence      = 0.95
	missingFieldPenalty = 0.03
)

// optional fields that reduce confidence when absent
var optionalFields = []string{"currency", "po_number", "tax_amount"}

// Normalize brings raw extracted fields into canonical form: amounts to
// two-decimal strings, dates to YYYY-MM-DD, strings trimmed, currency
// upper-cased. It is pure and idempotent: normalizing an already-normalized
// value yields the same value.
func Normalize(f llm.InvoiceFields) (llm.InvoiceFields, error) {
	out := llm.InvoiceFields{
		VendorName:    strings.TrimSpace(f.VendorName),
		InvoiceNumber: strings.TrimSpace(f.InvoiceNumber),
		PONumber:      strings.TrimSpace(f.PONumber),
		Currency:      strings.ToUpper(strings.TrimSpace(f.Currency)),
	}

	date, err := normalizeDate(f.InvoiceDate)
	if err != nil {
		return llm.InvoiceFields{}, err
	}
	out.InvoiceDate = date

	amount, err := normalizeAmount(f.TotalAmount)
	if err != nil {
		return llm.InvoiceFields{}, fmt.Errorf("total_amount: %w", err)
	}
	out.TotalAmount = amount

	if strings.TrimSpace(f.TaxAmount) != "" {
		tax, err := normalizeAmount(f.TaxAmount)
		if err != nil {
			return llm.InvoiceFields{}, fmt.Errorf("tax_amount: %w", err)
		}
		out.TaxAmount = tax
	}
	return out, nil
}

// Score assigns extraction confidence: the base value for a clean structured
// response, reduced per missing optional field.
func Score(f llm.InvoiceFields) float64 {
	score := baseConfidence
	for _, field := range optionalFields {
		var v string
		switch field {
		case "currency":
			v = f.Currency
		case "po_number":
			v = f.PONumber
		case "tax_amount":
			v = f.TaxAmount
		}
		if strings.TrimSpace(v) == "" {
			score -= missingFieldPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("invoice_date: empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invoice_date: unrecognized format %q", s)
}

func normalizeAmount(s string) (string, error) {
	cleaned := strings.NewReplacer("$", "", "£", "", "€", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return "", fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("negative amount %q", s)
	}
	return d.StringFixed(2), nil
}
