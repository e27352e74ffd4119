package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okellar/invoiceflow/internal/llm"
)

func TestNormalize_CanonicalForm(t *testing.T) {
	out, err := Normalize(llm.InvoiceFields{
		VendorName:    "  Acme Corp  ",
		InvoiceNumber: " INV-001 ",
		InvoiceDate:   "Jan 5, 2026",
		TotalAmount:   "$1,234.5",
		Currency:      "usd",
		TaxAmount:     "99.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", out.VendorName)
	assert.Equal(t, "INV-001", out.InvoiceNumber)
	assert.Equal(t, "2026-01-05", out.InvoiceDate)
	assert.Equal(t, "1234.50", out.TotalAmount)
	assert.Equal(t, "USD", out.Currency)
	assert.Equal(t, "99.90", out.TaxAmount)
}

func TestNormalize_Idempotent(t *testing.T) {
	in := llm.InvoiceFields{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-001",
		InvoiceDate:   "2026-03-15",
		TotalAmount:   "$ 2,500.00",
		Currency:      "eur",
	}
	once, err := Normalize(in)
	require.NoError(t, err)
	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalize_DateFormats(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"2026-02-01", "2026-02-01"},
		{"2026/02/01", "2026-02-01"},
		{"15/03/2026", "2026-03-15"},
		{"March 2, 2026", "2026-03-02"},
		{"2 Mar 2026", "2026-03-02"},
	} {
		out, err := Normalize(llm.InvoiceFields{
			VendorName:    "V",
			InvoiceNumber: "N",
			InvoiceDate:   tc.in,
			TotalAmount:   "10",
		})
		require.NoError(t, err, "date %q", tc.in)
		assert.Equal(t, tc.want, out.InvoiceDate, "date %q", tc.in)
	}
}

func TestNormalize_RejectsBadValues(t *testing.T) {
	base := llm.InvoiceFields{
		VendorName:    "V",
		InvoiceNumber: "N",
		InvoiceDate:   "2026-01-01",
		TotalAmount:   "10.00",
	}

	bad := base
	bad.TotalAmount = "-5.00"
	_, err := Normalize(bad)
	assert.Error(t, err, "negative amount")

	bad = base
	bad.TotalAmount = "ten dollars"
	_, err = Normalize(bad)
	assert.Error(t, err, "non-numeric amount")

	bad = base
	bad.InvoiceDate = "next tuesday"
	_, err = Normalize(bad)
	assert.Error(t, err, "unparseable date")

	bad = base
	bad.TaxAmount = "n/a"
	_, err = Normalize(bad)
	assert.Error(t, err, "bad tax amount")
}

func TestScore_OptionalFieldDeductions(t *testing.T) {
	full := llm.InvoiceFields{
		Currency:  "USD",
		PONumber:  "PO-1",
		TaxAmount: "1.00",
	}
	assert.InDelta(t, 0.95, Score(full), 1e-9)

	noPO := full
	noPO.PONumber = ""
	assert.InDelta(t, 0.92, Score(noPO), 1e-9)

	none := llm.InvoiceFields{}
	assert.InDelta(t, 0.86, Score(none), 1e-9)
}
