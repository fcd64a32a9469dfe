package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giygas/cnas-api/entities"
)

func benchmarkCatalog(n int) []entities.MedicineCatalogEntry {
	entries := make([]entities.MedicineCatalogEntry, 0, n)
	for i := range n {
		entries = append(entries, entities.MedicineCatalogEntry{
			ID:             fmt.Sprintf("e%d", i),
			CommercialName: fmt.Sprintf("Medic%04d", i%2000),
			GenericName:    fmt.Sprintf("Generic%03d", i%300),
			PharmacyID:     fmt.Sprintf("p%d", i%50),
			QuantityOnHand: int64(i % 7),
			PriceUnits:     int64(100 + i%900),
		})
	}
	return entries
}

func BenchmarkSearchCatalog(b *testing.B) {
	entries := benchmarkCatalog(10000)

	b.ReportAllocs()
	for b.Loop() {
		searchCatalog(entries, "medic0420", defaultSearchLimit)
	}
}

func BenchmarkCalculateReimbursement(b *testing.B) {
	h, _ := newTestHandler(b)

	var lines []string
	for i := range 50 {
		lines = append(lines, fmt.Sprintf(`{"publicPrice":%d,"isReimbursable":%t}`, 100+i*7, i%3 != 0))
	}
	body := `{"lines":[` + strings.Join(lines, ",") + `],"mode":"Standard"}`

	b.ReportAllocs()
	for b.Loop() {
		req := httptest.NewRequest(http.MethodPost, "/reimbursement/calculate", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.CalculateReimbursement(rr, req)
		if rr.Code != http.StatusOK {
			b.Fatalf("status = %d", rr.Code)
		}
	}
}
