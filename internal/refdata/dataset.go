package refdata

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Vendor is one reference entry: a canonical vendor name, its approved
// purchase orders, and optional historical invoice totals.
type Vendor struct {
	Name      string
	PONumbers []string
	Amounts   []decimal.Decimal
}

// Dataset is the vendor/PO reference data loaded once at startup and read
// by the matching stage. It is immutable after Load.
type Dataset struct {
	vendors []Vendor
	byPO    map[string]*Vendor
}

func NewDataset(vendors []Vendor) *Dataset {
	ds := &Dataset{vendors: vendors, byPO: make(map[string]*Vendor)}
	for i := range ds.vendors {
		v := &ds.vendors[i]
		for _, po := range v.PONumbers {
			ds.byPO[normalizePO(po)] = v
		}
	}
	return ds
}

// Vendors returns the reference vendors in load order.
func (d *Dataset) Vendors() []Vendor { return d.vendors }

// FindByPO resolves an exact PO number, case-insensitively.
func (d *Dataset) FindByPO(poNumber string) (*Vendor, bool) {
	v, ok := d.byPO[normalizePO(poNumber)]
	return v, ok
}

func (d *Dataset) Len() int { return len(d.vendors) }

func normalizePO(po string) string {
	return strings.ToUpper(strings.TrimSpace(po))
}
