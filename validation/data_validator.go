// Package validation screens user input and catalog snapshots before they
// reach the matching and reimbursement engine.
package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/cnas-api/apperrors"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/reimbursement"
)

// Limits applied to user input
const (
	MaxPrescriptionTextLength = 20000
	MaxPrescriptionLines      = 500
	MaxReimbursementLines     = 200
	MaxPublicPrice            = 100_000_000
	MaxInsuranceInputLength   = 64
	MaxRegionLength           = 50

	maxNameLength = 200

	searchRepetition = 10
	textRepetition   = 200
)

// Pre-compiled regex patterns, compiled once and reused for all validations
var (
	// Search input: letters (Latin, accented and Arabic), digits and safe punctuation
	inputRegex = regexp.MustCompile(`^[\p{Latin}\p{Arabic}0-9\s\-\.\+'/%]+$`)

	regionRegex = regexp.MustCompile(`^[\p{L}\p{N}\s\-']+$`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "import ", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// LDAP injection patterns
		"*)(", "*|(", "*)%",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}

	// Recognized text legitimately holds separators such as "--" or "; ",
	// only markup and injection payloads are screened.
	dangerousTextPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"union select", "drop table", "delete from", "insert into",
		"$(", "${", "../", "..\\", "file://",
		"{$ne:", "{$gt:", "{$where:", "{$regex:",
	}
)

// Compile-time check to ensure DataValidatorImpl implements DataValidator
var _ interfaces.DataValidator = (*DataValidatorImpl)(nil)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateEntry checks if a catalog entry is valid
func (v *DataValidatorImpl) ValidateEntry(e *entities.MedicineCatalogEntry) error {
	if e == nil {
		return fmt.Errorf("catalog entry is nil")
	}

	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("empty catalog entry id")
	}

	if strings.TrimSpace(e.CommercialName) == "" {
		return fmt.Errorf("empty commercial name for entry %s", e.ID)
	}

	if len(e.CommercialName) > maxNameLength {
		return fmt.Errorf("commercial name too long for entry %s: %d characters", e.ID, len(e.CommercialName))
	}

	if len(e.GenericName) > maxNameLength {
		return fmt.Errorf("generic name too long for entry %s: %d characters", e.ID, len(e.GenericName))
	}

	if e.PriceUnits < 0 {
		return fmt.Errorf("negative price for entry %s: %d", e.ID, e.PriceUnits)
	}

	if e.QuantityOnHand < 0 {
		return fmt.Errorf("negative quantity for entry %s: %d", e.ID, e.QuantityOnHand)
	}

	if strings.TrimSpace(e.PharmacyID) == "" {
		return fmt.Errorf("empty pharmacy id for entry %s", e.ID)
	}

	return nil
}

// ValidateCatalogIntegrity rejects snapshots that must not replace the
// current one: empty catalogs, duplicate ids and invalid entries.
func (v *DataValidatorImpl) ValidateCatalogIntegrity(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) error {
	if len(entries) == 0 {
		return fmt.Errorf("no catalog entries found")
	}

	ids := make(map[string]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if ids[e.ID] {
			return fmt.Errorf("duplicate catalog entry id found: %s", e.ID)
		}
		ids[e.ID] = true

		if err := v.ValidateEntry(e); err != nil {
			return fmt.Errorf("invalid catalog entry %s: %w", e.ID, err)
		}
	}

	pharmacyIDs := make(map[string]bool, len(pharmacies))
	for _, p := range pharmacies {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("empty pharmacy id for %q", p.Name)
		}
		if pharmacyIDs[p.ID] {
			return fmt.Errorf("duplicate pharmacy id found: %s", p.ID)
		}
		pharmacyIDs[p.ID] = true
	}

	return nil
}

// ReportCatalogQuality lists the non blocking issues of a snapshot
func (v *DataValidatorImpl) ReportCatalogQuality(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) *interfaces.CatalogQualityReport {
	report := &interfaces.CatalogQualityReport{
		DuplicateEntryIDs: []string{},
		OrphanPharmacyIDs: []string{},
	}

	declared := make(map[string]bool, len(pharmacies))
	for _, p := range pharmacies {
		declared[p.ID] = true
	}

	seen := make(map[string]bool, len(entries))
	orphans := make(map[string]bool)
	for _, e := range entries {
		if seen[e.ID] {
			report.DuplicateEntryIDs = append(report.DuplicateEntryIDs, e.ID)
		}
		seen[e.ID] = true

		if e.PharmacyID == "" {
			report.EntriesWithoutPharmacy++
		} else if !declared[e.PharmacyID] && !orphans[e.PharmacyID] {
			orphans[e.PharmacyID] = true
			report.OrphanPharmacyIDs = append(report.OrphanPharmacyIDs, e.PharmacyID)
		}

		if strings.TrimSpace(e.GenericName) == "" {
			report.EntriesWithoutGeneric++
		}
		if !e.InStock() {
			report.OutOfStockEntries++
		}
		if e.IsDonation {
			report.DonationEntries++
		}
		if !reimbursement.IsKnownCategory(e.Category) {
			report.UnknownCategoryEntries++
		}
	}

	slices.Sort(report.OrphanPharmacyIDs)
	return report
}

// ValidateInput validates a catalog search query
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return apperrors.NewInvalidInputError("input cannot be empty")
	}

	length := utf8.RuneCountInString(input)
	if length < 3 {
		return apperrors.NewInvalidInputError("input too short: minimum 3 characters")
	}

	if length > 50 {
		return apperrors.NewInvalidInputError("input too long: maximum 50 characters")
	}

	// Word count validation to prevent DoS attacks with many short words
	if len(strings.Fields(input)) > 6 {
		return apperrors.NewInvalidInputError("search query too complex: maximum 6 words allowed")
	}

	if containsDangerousPattern(input, dangerousPatterns) {
		return apperrors.NewInvalidInputError("input contains potentially dangerous content")
	}

	if !inputRegex.MatchString(input) {
		return apperrors.NewInvalidInputError("input contains invalid characters. Only letters, numbers, spaces, hyphens, apostrophes, periods, slashes, percent and plus signs are allowed")
	}

	if hasExcessiveRepetition(input, searchRepetition) {
		return apperrors.NewInvalidInputError("input contains excessive character repetition")
	}

	return nil
}

// ValidatePrescriptionText validates recognized prescription text
func (v *DataValidatorImpl) ValidatePrescriptionText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.NewInvalidInputError("prescription text cannot be empty")
	}

	if len(text) > MaxPrescriptionTextLength {
		return apperrors.NewInvalidInputError("prescription text too long: maximum %d bytes", MaxPrescriptionTextLength)
	}

	if !utf8.ValidString(text) {
		return apperrors.NewInvalidInputError("prescription text is not valid UTF-8")
	}

	if lines := strings.Count(text, "\n") + 1; lines > MaxPrescriptionLines {
		return apperrors.NewInvalidInputError("prescription text has too many lines: maximum %d", MaxPrescriptionLines)
	}

	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return apperrors.NewInvalidInputError("prescription text contains control characters")
		}
	}

	if containsDangerousPattern(text, dangerousTextPatterns) {
		logging.Warn("Prescription text rejected", "reason", "dangerous content", "length", len(text))
		return apperrors.NewInvalidInputError("prescription text contains potentially dangerous content")
	}

	if hasExcessiveRepetition(text, textRepetition) {
		return apperrors.NewInvalidInputError("prescription text contains excessive character repetition")
	}

	return nil
}

// ValidateRegion validates a wilaya name. An empty region is accepted and
// means the caller location is unknown.
func (v *DataValidatorImpl) ValidateRegion(region string) error {
	region = strings.TrimSpace(region)
	if region == "" {
		return nil
	}

	if utf8.RuneCountInString(region) > MaxRegionLength {
		return apperrors.NewInvalidInputError("region too long: maximum %d characters", MaxRegionLength)
	}

	if !regionRegex.MatchString(region) {
		return apperrors.NewInvalidInputError("region contains invalid characters")
	}

	return nil
}

// ValidateInsuranceInput checks that a CHIFA number only holds digits and
// spaces. The exact length is checked by the chifa validator, which reports
// a wrong length as an invalid card instead of an error.
func (v *DataValidatorImpl) ValidateInsuranceInput(number string) error {
	if strings.TrimSpace(number) == "" {
		return apperrors.NewInvalidInputError("insurance number cannot be empty")
	}

	if len(number) > MaxInsuranceInputLength {
		return apperrors.NewInvalidInputError("insurance number too long: maximum %d characters", MaxInsuranceInputLength)
	}

	for _, r := range number {
		if (r < '0' || r > '9') && !unicode.IsSpace(r) {
			return apperrors.NewInvalidInputError("malformed insurance number: only digits are allowed")
		}
	}

	return nil
}

// ValidateReimbursementLines checks the shape of a batch before any amount is computed
func (v *DataValidatorImpl) ValidateReimbursementLines(lines []entities.ReimbursementLineInput) error {
	if len(lines) > MaxReimbursementLines {
		return apperrors.NewInvalidInputError("too many lines: maximum %d", MaxReimbursementLines)
	}

	for i, line := range lines {
		if line.PublicPrice < 0 {
			return apperrors.NewInvalidInputError("line %d: negative price %d", i+1, line.PublicPrice)
		}
		if line.PublicPrice > MaxPublicPrice {
			return apperrors.NewInvalidInputError("line %d: price %d exceeds %d", i+1, line.PublicPrice, MaxPublicPrice)
		}
	}

	return nil
}

func containsDangerousPattern(input string, patterns []string) bool {
	lower := strings.ToLower(input)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// hasExcessiveRepetition reports whether a byte is repeated more than limit
// times in a row
func hasExcessiveRepetition(input string, limit int) bool {
	run := 1
	for i := 1; i < len(input); i++ {
		if input[i] == input[i-1] {
			run++
			if run > limit {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
