// Package reimbursement computes the CNAS share and the patient remainder
// (ticket modérateur) of prescription lines.
//
// All amounts are integer currency units. For every line the insurer share is
// rounded to the nearest unit and the patient share is the exact remainder, so
// both always add up to the line total.
package reimbursement

import (
	"fmt"
	"math"
	"strings"

	"github.com/giygas/cnas-api/apperrors"
	"github.com/giygas/cnas-api/entities"
)

// MaxAmount is the largest line or batch total accepted. Above 2^53 amounts
// no longer convert exactly to float64 for the rate multiplication.
const MaxAmount int64 = 1 << 53

// Category selects a base rate
type Category string

const (
	CategoryEssential Category = "ESSENTIAL"
	CategoryChronic   Category = "CHRONIC"
	CategoryOther     Category = "OTHER"
)

// Mode selects the rate applied to a whole batch
type Mode string

const (
	ModeStandard Mode = "Standard"
	ModeChronic  Mode = "Chronic"
)

// ParseCategory maps free text to a category. Unknown values fall back to OTHER.
func ParseCategory(s string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryEssential:
		return CategoryEssential
	case CategoryChronic:
		return CategoryChronic
	default:
		return CategoryOther
	}
}

// IsKnownCategory reports whether s names a category without falling back
func IsKnownCategory(s string) bool {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryEssential, CategoryChronic, CategoryOther:
		return true
	}
	return false
}

// ParseMode maps free text to a batch mode, case-insensitively
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ModeStandard, nil
	case "chronic":
		return ModeChronic, nil
	default:
		return "", apperrors.NewInvalidInputError("unknown reimbursement mode %q", s)
	}
}

// Rates is the CNAS rate table
type Rates struct {
	Essential float64
	Chronic   float64
	Other     float64
}

// DefaultRates returns the standard CNAS coverage
func DefaultRates() Rates {
	return Rates{Essential: 0.80, Chronic: 1.00, Other: 0.80}
}

// Validate checks every rate lies in [0, 1]
func (r Rates) Validate() error {
	for name, rate := range map[string]float64{"essential": r.Essential, "chronic": r.Chronic, "other": r.Other} {
		if math.IsNaN(rate) || rate < 0 || rate > 1 {
			return fmt.Errorf("%s rate must be between 0 and 1, got %v", name, rate)
		}
	}
	return nil
}

// For returns the rate of a category
func (r Rates) For(category Category) float64 {
	switch category {
	case CategoryEssential:
		return r.Essential
	case CategoryChronic:
		return r.Chronic
	default:
		return r.Other
	}
}

// Split is the outcome of a single line
type Split struct {
	LineTotal    int64    `json:"lineTotal"`
	CNASShare    int64    `json:"cnasShare"`
	PatientShare int64    `json:"patientShare"`
	Rate         float64  `json:"rate"`
	Category     Category `json:"category"`
}

// Calculator applies a rate table. The zero value is not usable, use NewCalculator.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a calculator for rates
func NewCalculator(rates Rates) (*Calculator, error) {
	if err := rates.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate table: %w", err)
	}
	return &Calculator{rates: rates}, nil
}

// Rates returns the rate table in use
func (c *Calculator) Rates() Rates {
	return c.rates
}

// Calculate splits lineTotal between CNAS and the patient. The chronic flag
// overrides the category rate with full chronic coverage.
func (c *Calculator) Calculate(lineTotal int64, category Category, isChronic bool) (Split, error) {
	if lineTotal < 0 {
		return Split{}, apperrors.NewInvalidInputError("line total must not be negative, got %d", lineTotal)
	}
	if lineTotal > MaxAmount {
		return Split{}, apperrors.NewInvalidInputError("line total exceeds %d, got %d", MaxAmount, lineTotal)
	}

	category = ParseCategory(string(category))
	if isChronic {
		category = CategoryChronic
	}
	rate := c.rates.For(category)

	cnas := share(lineTotal, rate)
	return Split{
		LineTotal:    lineTotal,
		CNASShare:    cnas,
		PatientShare: lineTotal - cnas,
		Rate:         rate,
		Category:     category,
	}, nil
}

// CalculateBatch aggregates lines under a single mode. Non reimbursable lines
// are entirely paid by the patient. Any negative price rejects the whole batch.
func (c *Calculator) CalculateBatch(lines []entities.ReimbursementLineInput, mode Mode) (entities.ReimbursementResult, error) {
	_, result, err := c.CalculateStatement(lines, mode)
	return result, err
}

// CalculateStatement is CalculateBatch with the split of every line, in
// input order. The line splits add up to the aggregated result.
func (c *Calculator) CalculateStatement(lines []entities.ReimbursementLineInput, mode Mode) ([]Split, entities.ReimbursementResult, error) {
	var category Category
	switch mode {
	case ModeStandard:
		category = CategoryEssential
	case ModeChronic:
		category = CategoryChronic
	default:
		return nil, entities.ReimbursementResult{}, apperrors.NewInvalidInputError("unknown reimbursement mode %q", mode)
	}

	var total int64
	for i, line := range lines {
		if line.PublicPrice < 0 {
			return nil, entities.ReimbursementResult{}, apperrors.NewInvalidInputError("line %d: public price must not be negative, got %d", i+1, line.PublicPrice)
		}
		if line.PublicPrice > MaxAmount-total {
			return nil, entities.ReimbursementResult{}, apperrors.NewInvalidInputError("line %d: batch total exceeds %d", i+1, MaxAmount)
		}
		total += line.PublicPrice
	}

	rate := c.rates.For(category)
	splits := make([]Split, 0, len(lines))
	result := entities.ReimbursementResult{Category: string(category)}
	for _, line := range lines {
		split := Split{LineTotal: line.PublicPrice, PatientShare: line.PublicPrice, Category: category}
		if line.IsReimbursable {
			split.CNASShare = share(line.PublicPrice, rate)
			split.PatientShare = line.PublicPrice - split.CNASShare
			split.Rate = rate
		}
		splits = append(splits, split)

		result.TotalAmount += split.LineTotal
		result.ReimbursedAmount += split.CNASShare
	}
	result.RemainingAmount = result.TotalAmount - result.ReimbursedAmount

	if result.TotalAmount > 0 {
		result.Rate = float64(result.ReimbursedAmount) / float64(result.TotalAmount)
	}

	return splits, result, nil
}

func share(amount int64, rate float64) int64 {
	return min(int64(math.Round(float64(amount)*rate)), amount)
}
