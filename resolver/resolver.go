// Package resolver attaches pharmacy stock offers and generic substitution
// candidates to matched prescription detections.
package resolver

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/giygas/cnas-api/apperrors"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
)

const (
	// NearbyLabel marks offers located in the caller's region
	NearbyLabel = "nearby"

	// UnknownRegionLabel is used when the offering pharmacy is not known
	UnknownRegionLabel = "unknown"

	DefaultQueryTimeout = 2 * time.Second
	defaultBatchWait    = 2 * time.Millisecond
)

// lookupKey selects catalog entries by commercial or generic name
type lookupKey struct {
	generic bool
	name    string
}

// Resolver looks up stock for detections. It is safe for concurrent use.
type Resolver struct {
	reader       interfaces.CatalogReader
	sortByPrice  bool
	queryTimeout time.Duration
	batchWait    time.Duration
}

// Option configures a Resolver
type Option func(*Resolver)

// WithSortByPrice orders offers and substitutions by ascending price
// instead of catalog order
func WithSortByPrice() Option {
	return func(r *Resolver) { r.sortByPrice = true }
}

// WithQueryTimeout bounds the catalog reads of a single Resolve call
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.queryTimeout = d
		}
	}
}

// New creates a resolver reading from reader
func New(reader interfaces.CatalogReader, opts ...Option) *Resolver {
	r := &Resolver{
		reader:       reader,
		queryTimeout: DefaultQueryTimeout,
		batchWait:    defaultBatchWait,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a copy of detections with offers and substitutions filled
// in. Catalog failures never fail the call: affected detections simply have
// no offers.
//
// Detections resolve concurrently against loaders shared by the call, so
// their catalog and pharmacy reads are merged into one query each and
// repeated names are read once.
func (r *Resolver) Resolve(ctx context.Context, detections []entities.OCRDetection, region string) []entities.OCRDetection {
	resolved := make([]entities.OCRDetection, len(detections))
	for i, d := range detections {
		d.Found = false
		d.StockOffers = []entities.StockOffer{}
		d.Substitutions = []entities.GenericSubstitutionOffer{}
		resolved[i] = d
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	l := r.newLoaders()

	var wg sync.WaitGroup
	for i := range resolved {
		if !resolved[i].IsMatched() {
			continue
		}
		wg.Go(func() {
			r.resolveOne(ctx, l, &resolved[i], region)
		})
	}
	wg.Wait()

	return resolved
}

// loaders batch the reads of a single Resolve call
type loaders struct {
	entries    *dataloader.Loader[lookupKey, []entities.MedicineCatalogEntry]
	pharmacies *dataloader.Loader[string, entities.Pharmacy]
}

func (r *Resolver) newLoaders() loaders {
	return loaders{
		entries: dataloader.NewBatchedLoader(r.batch,
			dataloader.WithWait[lookupKey, []entities.MedicineCatalogEntry](r.batchWait),
		),
		pharmacies: dataloader.NewBatchedLoader(r.pharmacyBatch,
			dataloader.WithWait[string, entities.Pharmacy](r.batchWait),
		),
	}
}

func (r *Resolver) resolveOne(ctx context.Context, l loaders, d *entities.OCRDetection, region string) {
	stockThunk := l.entries.Load(ctx, lookupKey{name: d.Name})
	var genericThunk dataloader.Thunk[[]entities.MedicineCatalogEntry]
	if d.GenericName != "" {
		genericThunk = l.entries.Load(ctx, lookupKey{generic: true, name: d.GenericName})
	}

	stock, err := stockThunk()
	if err != nil {
		logging.Warn("Catalog lookup failed, returning detection without offers", "name", d.Name, "error", err)
		return
	}
	var generics []entities.MedicineCatalogEntry
	if genericThunk != nil {
		if generics, err = genericThunk(); err != nil {
			logging.Warn("Catalog lookup failed, returning detection without offers", "name", d.Name, "error", err)
			return
		}
	}

	ids := pharmacyIDs(stock, generics)
	pharmacies := make(map[string]entities.Pharmacy, len(ids))
	if len(ids) > 0 {
		found, errs := l.pharmacies.LoadMany(ctx, ids)()
		for _, err := range errs {
			if err != nil {
				logging.Warn("Pharmacy lookup failed, returning detection without offers", "name", d.Name, "error", err)
				return
			}
		}
		for i, id := range ids {
			if found[i].ID != "" {
				pharmacies[id] = found[i]
			}
		}
	}

	d.StockOffers = r.stockOffers(stock, pharmacies, region)
	if d.GenericName != "" {
		d.Substitutions = r.substitutions(*d, generics, pharmacies)
	}
	d.Found = len(d.StockOffers) > 0
}

func (r *Resolver) batch(ctx context.Context, keys []lookupKey) []*dataloader.Result[[]entities.MedicineCatalogEntry] {
	results := make([]*dataloader.Result[[]entities.MedicineCatalogEntry], len(keys))

	filter := entities.CatalogFilter{InStockOnly: true}
	for _, k := range keys {
		if k.generic {
			filter.GenericNames = append(filter.GenericNames, k.name)
		} else {
			filter.CommercialNames = append(filter.CommercialNames, k.name)
		}
	}

	entries, err := r.reader.ListEntries(ctx, filter)
	if err != nil {
		upstream := apperrors.NewUpstreamError("list catalog entries", err)
		for i := range keys {
			results[i] = &dataloader.Result[[]entities.MedicineCatalogEntry]{Error: upstream}
		}
		return results
	}

	for i, k := range keys {
		var matched []entities.MedicineCatalogEntry
		for _, e := range entries {
			if !e.InStock() {
				continue
			}
			if (k.generic && e.GenericName == k.name) || (!k.generic && e.CommercialName == k.name) {
				matched = append(matched, e)
			}
		}
		results[i] = &dataloader.Result[[]entities.MedicineCatalogEntry]{Data: matched}
	}
	return results
}

// pharmacyBatch reads the pharmacies of a batch in one query. Unknown ids
// load as the zero Pharmacy.
func (r *Resolver) pharmacyBatch(ctx context.Context, ids []string) []*dataloader.Result[entities.Pharmacy] {
	results := make([]*dataloader.Result[entities.Pharmacy], len(ids))

	found, err := r.reader.GetPharmacies(ctx, ids)
	if err != nil {
		upstream := apperrors.NewUpstreamError("get pharmacies", err)
		for i := range ids {
			results[i] = &dataloader.Result[entities.Pharmacy]{Error: upstream}
		}
		return results
	}

	for i, id := range ids {
		results[i] = &dataloader.Result[entities.Pharmacy]{Data: found[id]}
	}
	return results
}

func pharmacyIDs(groups ...[]entities.MedicineCatalogEntry) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, entries := range groups {
		for _, e := range entries {
			if _, ok := seen[e.PharmacyID]; !ok && e.PharmacyID != "" {
				seen[e.PharmacyID] = struct{}{}
				ids = append(ids, e.PharmacyID)
			}
		}
	}
	return ids
}

func (r *Resolver) stockOffers(entries []entities.MedicineCatalogEntry, pharmacies map[string]entities.Pharmacy, region string) []entities.StockOffer {
	offers := make([]entities.StockOffer, 0, len(entries))
	for _, e := range entries {
		p := pharmacies[e.PharmacyID]
		offers = append(offers, entities.StockOffer{
			PharmacyID:        e.PharmacyID,
			PharmacyName:      p.Name,
			Address:           p.Address,
			PriceUnits:        e.PriceUnits,
			QuantityAvailable: e.QuantityOnHand,
			ProximityLabel:    ProximityLabel(p.Region, region),
		})
	}

	if r.sortByPrice {
		slices.SortStableFunc(offers, func(a, b entities.StockOffer) int {
			return cmp.Compare(a.PriceUnits, b.PriceUnits)
		})
	}
	return offers
}

func (r *Resolver) substitutions(d entities.OCRDetection, entries []entities.MedicineCatalogEntry, pharmacies map[string]entities.Pharmacy) []entities.GenericSubstitutionOffer {
	subs := make([]entities.GenericSubstitutionOffer, 0, len(entries))
	for _, e := range entries {
		if e.ID == d.MatchedEntryID || strings.EqualFold(e.CommercialName, d.Name) {
			continue
		}
		subs = append(subs, entities.GenericSubstitutionOffer{
			CandidateName:     e.CommercialName,
			PharmacyID:        e.PharmacyID,
			PharmacyName:      pharmacies[e.PharmacyID].Name,
			PriceUnits:        e.PriceUnits,
			QuantityAvailable: e.QuantityOnHand,
		})
	}

	if r.sortByPrice {
		slices.SortStableFunc(subs, func(a, b entities.GenericSubstitutionOffer) int {
			return cmp.Compare(a.PriceUnits, b.PriceUnits)
		})
	}
	return subs
}

// ProximityLabel describes where a pharmacy is relative to the caller
func ProximityLabel(pharmacyRegion, callerRegion string) string {
	pharmacyRegion = strings.TrimSpace(pharmacyRegion)
	switch {
	case pharmacyRegion == "":
		return UnknownRegionLabel
	case strings.EqualFold(pharmacyRegion, strings.TrimSpace(callerRegion)):
		return NearbyLabel
	default:
		return pharmacyRegion
	}
}
