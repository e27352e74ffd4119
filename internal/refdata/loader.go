package refdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Expected columns. "Approved PO List" and "Historical Amounts" hold
// semicolon-separated values; the amounts column is optional.
const (
	colVendorName = "Vendor Name"
	colPOList     = "Approved PO List"
	colAmounts    = "Historical Amounts"
)

// Load reads a reference dataset from a .csv or .xlsx file.
func Load(path string, logger *slog.Logger) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		vendors []Vendor
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		vendors, err = loadCSVFile(path)
	case ".xlsx":
		vendors, err = loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported reference data format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("refdata.loaded", "path", path, "vendors", len(vendors))
	return NewDataset(vendors), nil
}

func loadCSVFile(path string) ([]Vendor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadCSV(f)
}

// LoadCSV parses reference rows from CSV content.
func LoadCSV(r io.Reader) ([]Vendor, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read reference csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reference data is empty")
	}
	return rowsToVendors(records)
}

func loadXLSX(path string) ([]Vendor, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open reference xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("reference xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read reference xlsx: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("reference data is empty")
	}
	return rowsToVendors(rows)
}

func rowsToVendors(rows [][]string) ([]Vendor, error) {
	header := rows[0]
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	nameIdx, ok := idx[colVendorName]
	if !ok {
		return nil, fmt.Errorf("reference data missing required column %q", colVendorName)
	}
	poIdx, ok := idx[colPOList]
	if !ok {
		return nil, fmt.Errorf("reference data missing required column %q", colPOList)
	}
	amtIdx, hasAmounts := idx[colAmounts]

	var vendors []Vendor
	for _, row := range rows[1:] {
		if nameIdx >= len(row) || strings.TrimSpace(row[nameIdx]) == "" {
			continue
		}
		v := Vendor{Name: strings.TrimSpace(row[nameIdx])}
		if poIdx < len(row) {
			v.PONumbers = splitList(row[poIdx])
		}
		if hasAmounts && amtIdx < len(row) {
			for _, s := range splitList(row[amtIdx]) {
				d, err := decimal.NewFromString(s)
				if err != nil {
					return nil, fmt.Errorf("vendor %s: bad historical amount %q: %w", v.Name, s, err)
				}
				v.Amounts = append(v.Amounts, d)
			}
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
