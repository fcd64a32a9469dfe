// Package interfaces defines the collaborators of the matching and
// reimbursement engine so that catalog sources, OCR engines and clocks can be
// swapped in tests and deployments.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/cnas-api/entities"
)

// CatalogQualityReport summarizes data quality issues of a catalog snapshot
type CatalogQualityReport struct {
	DuplicateEntryIDs      []string
	EntriesWithoutPharmacy int
	EntriesWithoutGeneric  int
	OutOfStockEntries      int
	DonationEntries        int
	OrphanPharmacyIDs      []string // pharmacies referenced by entries but never declared
	UnknownCategoryEntries int
}

// CatalogReader is the read side of the marketplace catalog.
// Implementations must be safe for concurrent use.
type CatalogReader interface {
	// ListEntries returns the entries selected by filter, in catalog order
	ListEntries(ctx context.Context, filter entities.CatalogFilter) ([]entities.MedicineCatalogEntry, error)

	// GetPharmacies returns the pharmacies with the given ids, keyed by id.
	// Unknown ids are absent from the result.
	GetPharmacies(ctx context.Context, ids []string) (map[string]entities.Pharmacy, error)
}

// CatalogStore is an in-memory catalog snapshot with atomic replacement
// for zero-downtime refreshes.
type CatalogStore interface {
	CatalogReader

	GetEntries() []entities.MedicineCatalogEntry
	GetPharmacyMap() map[string]entities.Pharmacy
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	UpdateCatalog(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy)
	BeginUpdate() bool
	EndUpdate()
}

// CatalogSource loads a full catalog from its origin (database, export file...)
type CatalogSource interface {
	Load(ctx context.Context) ([]entities.MedicineCatalogEntry, []entities.Pharmacy, error)
	Name() string
}

// OCRResult is the text recognized on an image
type OCRResult struct {
	Text       string
	Confidence float64
}

// OCREngine recognizes text on a prescription image. progress receives values
// in [0, 1] and may be nil. A cancelled context must leave no partial state.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, progress func(float64)) (OCRResult, error)
}

// Clock abstracts the current time
type Clock interface {
	Now() time.Time
}

// Scheduler manages the periodic catalog refresh
type Scheduler interface {
	Start() error
	Stop()

	// NextRefresh returns the next scheduled run, or the zero time when nothing is scheduled
	NextRefresh() time.Time
}

// HealthChecker reports the service health
type HealthChecker interface {
	// HealthCheck returns the status, its details and the HTTP status code to answer with
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled catalog refresh
	CalculateNextUpdate() time.Time
}

// HTTPHandler is the contract of the API endpoints
type HTTPHandler interface {
	CalculateReimbursement(w http.ResponseWriter, r *http.Request)
	CalculateReimbursementLine(w http.ResponseWriter, r *http.Request)
	ExportReimbursement(w http.ResponseWriter, r *http.Request)
	ExtractPrescription(w http.ResponseWriter, r *http.Request)
	ScanPrescription(w http.ResponseWriter, r *http.Request)
	ValidateInsurance(w http.ResponseWriter, r *http.Request)
	VerifyInsurance(w http.ResponseWriter, r *http.Request)
	SearchCatalog(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// DataValidator validates user input and catalog snapshots
type DataValidator interface {
	// ValidateEntry checks a single catalog entry
	ValidateEntry(e *entities.MedicineCatalogEntry) error

	// ValidateCatalogIntegrity rejects snapshots that must not replace the current one
	ValidateCatalogIntegrity(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) error

	// ReportCatalogQuality lists non blocking issues of a snapshot
	ReportCatalogQuality(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) *CatalogQualityReport

	// ValidateInput validates a catalog search query
	ValidateInput(input string) error

	// ValidatePrescriptionText validates recognized prescription text
	ValidatePrescriptionText(text string) error

	// ValidateRegion validates a wilaya name
	ValidateRegion(region string) error

	// ValidateInsuranceInput validates the charset of a CHIFA number
	ValidateInsuranceInput(number string) error

	// ValidateReimbursementLines checks the shape of a batch
	ValidateReimbursementLines(lines []entities.ReimbursementLineInput) error
}
