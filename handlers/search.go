package handlers

import (
	"sort"
	"strings"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/fuzzy"
)

const (
	searchMinScore     = 0.6
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// SearchResult is one commercial name of the catalog close to the query
type SearchResult struct {
	Name        string  `json:"name"`
	GenericName string  `json:"genericName,omitempty"`
	Similarity  float64 `json:"similarity"`
	Offers      int     `json:"offers"`
	LowestPrice int64   `json:"lowestPrice,omitempty"`
}

// searchCatalog scores every commercial name, and its generic name, against
// query. A name containing the query always ranks above the minimum score.
func searchCatalog(entries []entities.MedicineCatalogEntry, query string, limit int) []SearchResult {
	query = strings.TrimSpace(query)
	results := []SearchResult{}
	if query == "" {
		return results
	}
	lowerQuery := strings.ToLower(query)

	index := make(map[string]int)
	for _, e := range entries {
		i, seen := index[e.CommercialName]
		if !seen {
			score := max(nameScore(lowerQuery, e.CommercialName), nameScore(lowerQuery, e.GenericName))
			if score < searchMinScore {
				index[e.CommercialName] = -1
				continue
			}
			i = len(results)
			index[e.CommercialName] = i
			results = append(results, SearchResult{
				Name:        e.CommercialName,
				GenericName: e.GenericName,
				Similarity:  score,
			})
		}
		if i < 0 || !e.InStock() {
			continue
		}

		r := &results[i]
		r.Offers++
		if r.LowestPrice == 0 || e.PriceUnits < r.LowestPrice {
			r.LowestPrice = e.PriceUnits
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Similarity != results[b].Similarity {
			return results[a].Similarity > results[b].Similarity
		}
		return results[a].Name < results[b].Name
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func nameScore(lowerQuery, name string) float64 {
	if name == "" {
		return 0
	}
	score := fuzzy.Similarity(lowerQuery, name)
	if strings.Contains(strings.ToLower(name), lowerQuery) {
		score = max(score, 0.8+0.2*score)
	}
	return score
}
