package llm

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxPromptChars = 6000

// BuildSystemPrompt composes the system message: strict JSON-only output,
// date and currency formatting, plus an optional recovery hint.
func BuildSystemPrompt(hint *Hint) string {
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract: vendor_name, invoice_number, invoice_date, total_amount, and when present currency, po_number, tax_amount.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Money fields are plain decimal strings with up to two decimal places, no currency symbols or thousands separators.",
		"Currency, when present, must be a 3-letter ISO 4217 code.",
		"Never output null. If a field is not present, omit it.",
	}
	if hint != nil && hint.Instruction != "" {
		parts = append(parts, "Recovery hint for this document: "+hint.Instruction)
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages document text and the schema. Text is truncated
// to keep the request size bounded.
func BuildUserPrompt(documentText string, pageCount int) string {
	var b strings.Builder
	b.WriteString("Extract structured data from this invoice text")
	if pageCount > 1 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(pageCount))
		b.WriteString(" pages)")
	}
	b.WriteString(":\n\n")
	text := strings.TrimSpace(documentText)
	if len(text) > maxPromptChars {
		// back up to a rune boundary so the cut never splits a multi-byte
		// character
		n := maxPromptChars
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		b.WriteString(text[:n])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(mustJSON(BuildInvoiceJSONSchema()))
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

// CorrectionInstruction is appended on the single retry after a malformed
// response.
const CorrectionInstruction = "Your previous response was not valid JSON. Return ONLY the JSON object, with no narrative text, no markdown fences, and no explanation."

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
