package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as an output constraint and used
// locally to validate the response envelope.
func BuildInvoiceJSONSchema() map[string]any {
	props := map[string]any{
		"vendor_name":    map[string]any{"type": "string", "minLength": 1},
		"invoice_number": map[string]any{"type": "string", "minLength": 1},
		"invoice_date":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"total_amount":   decimalProp(),
		"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"po_number":      map[string]any{"type": "string"},
		"tax_amount":     decimalProp(),
	}
	required := []string{"vendor_name", "invoice_number", "invoice_date", "total_amount"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\d+(\.\d{1,2})?$`,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// DecodeStrict validates a raw model response against the invoice schema and
// unmarshals it. The envelope is untyped until it fully matches the schema;
// anything that does not match is rejected rather than partially trusted.
func DecodeStrict(raw []byte) (InvoiceFields, error) {
	if err := ValidateJSONAgainstSchema(BuildInvoiceJSONSchema(), raw); err != nil {
		return InvoiceFields{}, err
	}
	var out InvoiceFields
	if err := json.Unmarshal(raw, &out); err != nil {
		return InvoiceFields{}, fmt.Errorf("unmarshal fields: %w", err)
	}
	return out, nil
}
