// Package entities holds the plain data types shared by the matching,
// resolution and reimbursement packages.
package entities

// MedicineCatalogEntry is one stock line of a pharmacy catalog.
// PriceUnits is expressed in integer currency units (DZD).
type MedicineCatalogEntry struct {
	ID             string `json:"id"`
	CommercialName string `json:"commercialName"`
	GenericName    string `json:"genericName"`
	DosageText     string `json:"dosageText"`
	Category       string `json:"category"`
	PriceUnits     int64  `json:"priceUnits"`
	PharmacyID     string `json:"pharmacyId"`
	QuantityOnHand int64  `json:"quantityOnHand"`
	IsDonation     bool   `json:"isDonation"`
}

// InStock reports whether the entry can be offered to a patient
func (e MedicineCatalogEntry) InStock() bool {
	return e.QuantityOnHand > 0
}

// Pharmacy is the offering side of a catalog entry. Region is the wilaya name.
type Pharmacy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Region  string `json:"region"`
}

// CatalogFilter narrows a catalog read. Empty slices mean "no constraint".
// Names are compared exactly, as stored.
type CatalogFilter struct {
	CommercialNames []string
	GenericNames    []string
	InStockOnly     bool
}

// IsEmpty reports whether the filter selects the whole catalog
func (f CatalogFilter) IsEmpty() bool {
	return len(f.CommercialNames) == 0 && len(f.GenericNames) == 0 && !f.InStockOnly
}

// Matches applies the filter to a single entry. Commercial and generic name
// constraints are OR-ed together, the stock constraint is AND-ed.
func (f CatalogFilter) Matches(e MedicineCatalogEntry) bool {
	if f.InStockOnly && !e.InStock() {
		return false
	}
	if len(f.CommercialNames) == 0 && len(f.GenericNames) == 0 {
		return true
	}
	for _, name := range f.CommercialNames {
		if e.CommercialName == name {
			return true
		}
	}
	if e.GenericName == "" {
		return false
	}
	for _, name := range f.GenericNames {
		if e.GenericName == name {
			return true
		}
	}
	return false
}
