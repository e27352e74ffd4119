package llm

import "context"

// InvoiceFields is the normalized shape we want from the LLM.
// Money fields are decimal strings; the date is YYYY-MM-DD.
type InvoiceFields struct {
	VendorName    string `json:"vendor_name"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`       // YYYY-MM-DD
	TotalAmount   string `json:"total_amount"`       // decimal
	Currency      string `json:"currency,omitempty"` // ISO 4217
	PONumber      string `json:"po_number,omitempty"`
	TaxAmount     string `json:"tax_amount,omitempty"` // decimal
}

// Hint carries a recovery strategy recorded against a previously seen
// failure case. The extraction stage applies it on a single retry.
type Hint struct {
	// Instruction is appended verbatim to the system prompt.
	Instruction string `json:"instruction,omitempty"`
	// StripCurrency removes currency symbols from the document text
	// before prompting, for vendors whose amounts confuse parsing.
	StripCurrency bool `json:"strip_currency,omitempty"`
}

// ChatCompleter is the capability the extraction stage calls. The response
// contract is pure JSON; anything else is treated as a parse failure by the
// caller, never as partial success.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Embedder turns document text into a vector for failure-similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
