package fallback

import (
	"regexp"
	"strings"

	"github.com/okellar/invoiceflow/internal/llm"
)

// Deterministic patterns for the few fields the backup extractor can
// reliably recover from labeled invoice text.
var (
	reVendor  = regexp.MustCompile(`(?m)Vendor:\s*(.+)$`)
	reInvoice = regexp.MustCompile(`(?m)Invoice\s*#?:\s*(\S+)`)
	reDate    = regexp.MustCompile(`(?m)Date:\s*(\d{4}-\d{2}-\d{2})`)
	reTotal   = regexp.MustCompile(`(?m)Total:\s*\$?\s*(\d+(?:,\d{3})*\.\d{2})`)
)

const recoveredFieldConfidence = 0.8

// BackupResult carries the partially recovered fields and the mean
// per-field confidence (recovered fields score 0.8, missing 0.0).
type BackupResult struct {
	Fields     llm.InvoiceFields
	Confidence float64
}

// BackupExtract applies the regex patterns to document text. It reports ok
// only when both the invoice number and total amount were recovered; with
// less than that, there is nothing worth persisting.
func BackupExtract(text string) (BackupResult, bool) {
	var res BackupResult
	found := 0
	total := 4

	if m := reVendor.FindStringSubmatch(text); m != nil {
		res.Fields.VendorName = strings.TrimSpace(m[1])
		found++
	}
	if m := reInvoice.FindStringSubmatch(text); m != nil {
		res.Fields.InvoiceNumber = strings.TrimSpace(m[1])
		found++
	}
	if m := reDate.FindStringSubmatch(text); m != nil {
		res.Fields.InvoiceDate = m[1]
		found++
	}
	if m := reTotal.FindStringSubmatch(text); m != nil {
		res.Fields.TotalAmount = strings.ReplaceAll(m[1], ",", "")
		found++
	}

	res.Confidence = recoveredFieldConfidence * float64(found) / float64(total)
	ok := res.Fields.InvoiceNumber != "" && res.Fields.TotalAmount != ""
	return res, ok
}
