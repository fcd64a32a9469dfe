// Package data holds the in-memory catalog snapshot served to the matching
// pipeline. Snapshots are replaced atomically so readers never observe a
// partially refreshed catalog.
package data

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
)

// Compile-time check to ensure CatalogContainer implements CatalogStore
var _ interfaces.CatalogStore = (*CatalogContainer)(nil)

// snapshot is immutable once stored
type snapshot struct {
	entries    []entities.MedicineCatalogEntry
	pharmacies map[string]entities.Pharmacy
	byName     map[string][]int // commercial name -> entry positions
	byGeneric  map[string][]int // generic name -> entry positions
}

func newSnapshot(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) *snapshot {
	if entries == nil {
		entries = []entities.MedicineCatalogEntry{}
	}
	s := &snapshot{
		entries:    entries,
		pharmacies: make(map[string]entities.Pharmacy, len(pharmacies)),
		byName:     make(map[string][]int),
		byGeneric:  make(map[string][]int),
	}
	for _, p := range pharmacies {
		s.pharmacies[p.ID] = p
	}
	for i, e := range entries {
		s.byName[e.CommercialName] = append(s.byName[e.CommercialName], i)
		if e.GenericName != "" {
			s.byGeneric[e.GenericName] = append(s.byGeneric[e.GenericName], i)
		}
	}
	return s
}

// CatalogContainer holds the catalog with an atomic pointer for zero-downtime updates
type CatalogContainer struct {
	current         atomic.Value // *snapshot
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewCatalogContainer creates a container with an empty catalog
func NewCatalogContainer() *CatalogContainer {
	cc := &CatalogContainer{}
	cc.current.Store(newSnapshot(nil, nil))
	cc.lastUpdated.Store(time.Time{})
	cc.serverStartTime.Store(time.Time{})
	return cc
}

func (cc *CatalogContainer) load() *snapshot {
	if v := cc.current.Load(); v != nil {
		if s, ok := v.(*snapshot); ok {
			return s
		}
	}

	logging.Warn("Catalog snapshot is empty or invalid")
	return newSnapshot(nil, nil)
}

// GetEntries returns every catalog entry. The slice must not be modified.
func (cc *CatalogContainer) GetEntries() []entities.MedicineCatalogEntry {
	return cc.load().entries
}

// GetPharmacyMap returns the pharmacies keyed by id. The map must not be modified.
func (cc *CatalogContainer) GetPharmacyMap() map[string]entities.Pharmacy {
	return cc.load().pharmacies
}

// ListEntries returns the entries selected by filter in catalog order
func (cc *CatalogContainer) ListEntries(ctx context.Context, filter entities.CatalogFilter) ([]entities.MedicineCatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := cc.load()
	if len(filter.CommercialNames) == 0 && len(filter.GenericNames) == 0 {
		result := make([]entities.MedicineCatalogEntry, 0, len(s.entries))
		for _, e := range s.entries {
			if filter.Matches(e) {
				result = append(result, e)
			}
		}
		return result, nil
	}

	var positions []int
	for _, name := range filter.CommercialNames {
		positions = append(positions, s.byName[name]...)
	}
	for _, name := range filter.GenericNames {
		positions = append(positions, s.byGeneric[name]...)
	}
	slices.Sort(positions)
	positions = slices.Compact(positions)

	result := make([]entities.MedicineCatalogEntry, 0, len(positions))
	for _, i := range positions {
		if e := s.entries[i]; filter.Matches(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

// GetPharmacies returns the known pharmacies among ids
func (cc *CatalogContainer) GetPharmacies(ctx context.Context, ids []string) (map[string]entities.Pharmacy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := cc.load().pharmacies
	result := make(map[string]entities.Pharmacy, len(ids))
	for _, id := range ids {
		if p, ok := all[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

// GetLastUpdated returns the timestamp of the last catalog update
func (cc *CatalogContainer) GetLastUpdated() time.Time {
	if v := cc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a catalog refresh is in progress
func (cc *CatalogContainer) IsUpdating() bool {
	return cc.updating.Load()
}

// SetServerStartTime sets the server start time
func (cc *CatalogContainer) SetServerStartTime(startTime time.Time) {
	cc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (cc *CatalogContainer) GetServerStartTime() time.Time {
	if v := cc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateCatalog atomically replaces the catalog
func (cc *CatalogContainer) UpdateCatalog(entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) {
	cc.current.Store(newSnapshot(entries, pharmacies))
	cc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a refresh.
// Returns false if another refresh is in progress.
func (cc *CatalogContainer) BeginUpdate() bool {
	return cc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a refresh
func (cc *CatalogContainer) EndUpdate() {
	cc.updating.Store(false)
}
