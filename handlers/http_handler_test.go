package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/giygas/cnas-api/chifa"
	"github.com/giygas/cnas-api/data"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/extractor"
	"github.com/giygas/cnas-api/health"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/metrics"
	"github.com/giygas/cnas-api/ocr"
	"github.com/giygas/cnas-api/reimbursement"
	"github.com/giygas/cnas-api/report"
	"github.com/giygas/cnas-api/resolver"
	"github.com/giygas/cnas-api/scan"
	"github.com/giygas/cnas-api/validation"
)

func init() {
	logging.InitLogger("")
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestContainer() *data.CatalogContainer {
	cc := data.NewCatalogContainer()
	cc.SetServerStartTime(time.Now().Add(-90 * time.Minute))
	cc.UpdateCatalog(
		[]entities.MedicineCatalogEntry{
			{ID: "e1", CommercialName: "Doliprane", GenericName: "Paracetamol", DosageText: "1000mg", PharmacyID: "p1", QuantityOnHand: 10, PriceUnits: 120},
			{ID: "e2", CommercialName: "Doliprane", GenericName: "Paracetamol", DosageText: "1000mg", PharmacyID: "p2", QuantityOnHand: 4, PriceUnits: 110},
			{ID: "e3", CommercialName: "Efferalgan", GenericName: "Paracetamol", PharmacyID: "p2", QuantityOnHand: 3, PriceUnits: 150},
			{ID: "e4", CommercialName: "Augmentin", GenericName: "Amoxicilline", PharmacyID: "p1", QuantityOnHand: 0, PriceUnits: 600},
		},
		[]entities.Pharmacy{
			{ID: "p1", Name: "Pharmacie Centrale", Region: "Alger"},
			{ID: "p2", Name: "Pharmacie du Port", Region: "Oran"},
		},
	)
	return cc
}

func newTestHandler(t testing.TB) (*HTTPHandlerImpl, *data.CatalogContainer) {
	t.Helper()

	container := newTestContainer()
	calculator, err := reimbursement.NewCalculator(reimbursement.DefaultRates())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	scanner := scan.NewService(ocr.NewTextEngine(), container, extractor.New(extractor.DefaultConfig()), resolver.New(container),
		scan.WithIDGenerator(func() string { return "scan-1" }))

	h := NewHTTPHandler(
		container,
		validation.NewDataValidator(),
		calculator,
		scanner,
		chifa.NewValidator(chifa.DefaultNumberLength, fixedClock{testNow}),
		health.NewHealthChecker(container, time.Hour, nil),
	).(*HTTPHandlerImpl)
	h.now = func() time.Time { return testNow }
	return h, container
}

func postJSON(t *testing.T, handler http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestCalculateReimbursement(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       entities.ReimbursementResult
	}{
		{
			name:       "standard mode",
			body:       `{"lines":[{"publicPrice":1000,"isReimbursable":true},{"publicPrice":500,"isReimbursable":false}],"mode":"Standard"}`,
			wantStatus: http.StatusOK,
			want:       entities.ReimbursementResult{TotalAmount: 1500, ReimbursedAmount: 800, RemainingAmount: 700, Rate: 800.0 / 1500.0, Category: "ESSENTIAL"},
		},
		{
			name:       "chronic mode",
			body:       `{"lines":[{"publicPrice":1000,"isReimbursable":true}],"mode":"chronic"}`,
			wantStatus: http.StatusOK,
			want:       entities.ReimbursementResult{TotalAmount: 1000, ReimbursedAmount: 1000, RemainingAmount: 0, Rate: 1, Category: "CHRONIC"},
		},
		{
			name:       "empty batch",
			body:       `{"lines":[],"mode":"Standard"}`,
			wantStatus: http.StatusOK,
			want:       entities.ReimbursementResult{Category: "ESSENTIAL"},
		},
		{name: "negative price", body: `{"lines":[{"publicPrice":-1,"isReimbursable":true}],"mode":"Standard"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown mode", body: `{"lines":[],"mode":"premium"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"lines":[],"mode":"Standard","discount":10}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"lines":`, wantStatus: http.StatusBadRequest},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, h.CalculateReimbursement, "/reimbursement/calculate", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				errBody := decodeBody[map[string]any](t, rr)
				if errBody["message"] == "" || errBody["code"] != float64(tt.wantStatus) {
					t.Errorf("unexpected error body %v", errBody)
				}
				return
			}
			if got := decodeBody[entities.ReimbursementResult](t, rr); got != tt.want {
				t.Errorf("result = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculateReimbursementLine(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantCNAS    int64
		wantPatient int64
		wantCat     reimbursement.Category
	}{
		{"other category", `{"price":1000,"category":"OTHER"}`, http.StatusOK, 800, 200, reimbursement.CategoryOther},
		{"chronic override", `{"price":1000,"category":"essential","chronic":true}`, http.StatusOK, 1000, 0, reimbursement.CategoryChronic},
		{"no category", `{"price":999}`, http.StatusOK, 799, 200, reimbursement.CategoryOther},
		{"unknown category", `{"price":1000,"category":"VITAMIN"}`, http.StatusBadRequest, 0, 0, ""},
		{"negative", `{"price":-5,"category":"OTHER"}`, http.StatusBadRequest, 0, 0, ""},
		{"too expensive", `{"price":100000001}`, http.StatusBadRequest, 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, h.CalculateReimbursementLine, "/reimbursement/line", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			split := decodeBody[reimbursement.Split](t, rr)
			if split.CNASShare != tt.wantCNAS || split.PatientShare != tt.wantPatient || split.Category != tt.wantCat {
				t.Errorf("split = %+v, want cnas %d patient %d category %s", split, tt.wantCNAS, tt.wantPatient, tt.wantCat)
			}
			if split.CNASShare+split.PatientShare != split.LineTotal {
				t.Errorf("shares do not add up: %+v", split)
			}
		})
	}
}

func TestExportReimbursement(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := postJSON(t, h.ExportReimbursement, "/reimbursement/export",
		`{"lines":[{"label":"Doliprane 1000","publicPrice":1000,"isReimbursable":true},{"publicPrice":300,"isReimbursable":false}],"mode":"Standard"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != report.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="remboursement-20260310-093000.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	// xlsx workbooks are zip archives
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip archive")
	}

	rr = postJSON(t, h.ExportReimbursement, "/reimbursement/export", `{"lines":[{"publicPrice":-1}],"mode":"Standard"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative price status = %d, want 400", rr.Code)
	}
}

func TestExtractPrescription(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := postJSON(t, h.ExtractPrescription, "/ocr/extract",
		`{"text":"Dr Benali\nDoliprane 1000 mg matin et soir","region":"Alger"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	result := decodeBody[entities.ScanResult](t, rr)
	if result.ScanID != "scan-1" || result.LineCount != 1 {
		t.Errorf("unexpected result header %+v", result)
	}
	if len(result.Detections) != 1 {
		t.Fatalf("detections = %+v", result.Detections)
	}
	d := result.Detections[0]
	if d.Name != "Doliprane" || !d.Found || d.Provisional {
		t.Errorf("unexpected detection %+v", d)
	}
	if len(d.StockOffers) != 2 {
		t.Fatalf("offers = %+v", d.StockOffers)
	}
	if d.StockOffers[0].ProximityLabel != resolver.NearbyLabel {
		t.Errorf("first offer should be the nearby pharmacy, got %+v", d.StockOffers[0])
	}
}

func TestExtractPrescription_NothingFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := postJSON(t, h.ExtractPrescription, "/ocr/extract", `{"text":"Dr Benali Tel 021 00 00 00"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	result := decodeBody[entities.ScanResult](t, rr)
	if result.Message != scan.NoMedicinesMessage || len(result.Detections) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestExtractPrescription_InvalidInput(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"text":"   "}`},
		{"script", `{"text":"<script>alert(1)</script>"}`},
		{"bad region", `{"text":"Doliprane","region":"Alger<>"}`},
		{"unknown field", `{"text":"Doliprane","image":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, h.ExtractPrescription, "/ocr/extract", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
}

// recordingEngine counts the images it recognizes
type recordingEngine struct {
	ocr.TextEngine
	calls       int
	gotProgress bool
}

func (e *recordingEngine) Recognize(ctx context.Context, image []byte, progress func(float64)) (interfaces.OCRResult, error) {
	e.calls++
	e.gotProgress = progress != nil
	return e.TextEngine.Recognize(ctx, image, progress)
}

func TestExtractPrescription_RunsOCREngine(t *testing.T) {
	h, container := newTestHandler(t)
	engine := &recordingEngine{TextEngine: *ocr.NewTextEngine()}
	h.scanner = scan.NewService(engine, container, extractor.New(extractor.DefaultConfig()), resolver.New(container))

	rr := postJSON(t, h.ExtractPrescription, "/ocr/extract", `{"text":"Doliprane 1000 mg","region":"Oran"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if engine.calls != 1 || !engine.gotProgress {
		t.Errorf("engine calls = %d, progress callback = %v", engine.calls, engine.gotProgress)
	}
}

func TestScanPrescription(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/ocr/scan?region=Oran", strings.NewReader("Doliprane 1000 mg\nEfferalgan 1g"))
	rr := httptest.NewRecorder()
	h.ScanPrescription(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	result := decodeBody[entities.ScanResult](t, rr)
	if len(result.Detections) != 2 {
		t.Fatalf("detections = %+v", result.Detections)
	}
	d := result.Detections[0]
	if d.Name != "Doliprane" || len(d.StockOffers) != 2 {
		t.Fatalf("unexpected detection %+v", d)
	}
	if d.StockOffers[1].ProximityLabel != resolver.NearbyLabel {
		t.Errorf("Oran offer should be nearby, got %+v", d.StockOffers)
	}
}

func TestScanPrescription_UnreadableImageDegrades(t *testing.T) {
	h, _ := newTestHandler(t)
	before := testutil.ToFloat64(metrics.ScansTotal.WithLabelValues(scan.OutcomeOCRFailed))

	req := httptest.NewRequest(http.MethodPost, "/ocr/scan", bytes.NewReader([]byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}))
	rr := httptest.NewRecorder()
	h.ScanPrescription(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	result := decodeBody[entities.ScanResult](t, rr)
	if result.Message != scan.NoMedicinesMessage || len(result.Detections) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if got := testutil.ToFloat64(metrics.ScansTotal.WithLabelValues(scan.OutcomeOCRFailed)); got != before+1 {
		t.Errorf("ocr_failed scans = %v, want %v", got, before+1)
	}
}

func TestScanPrescription_InvalidInput(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"empty body", "/ocr/scan", ""},
		{"bad region", "/ocr/scan?region=Alger%3C%3E", "Doliprane 1g"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ScanPrescription(rr, httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestValidateInsurance(t *testing.T) {
	h, _ := newTestHandler(t)
	signer := chifa.NewValidator(chifa.DefaultNumberLength, fixedClock{testNow})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantState  string
	}{
		{"active", `{"number":"01234 56789","status":"active"}`, http.StatusOK, true, entities.StatusActive},
		{"unknown status is pending", `{"number":"0123456789","status":"suspended"}`, http.StatusOK, true, entities.StatusPending},
		{"wrong length", `{"number":"012345","status":"active"}`, http.StatusOK, false, entities.StatusInvalid},
		{"letters", `{"number":"01234ABCDE","status":"active"}`, http.StatusBadRequest, false, ""},
		{"empty", `{"number":"","status":"active"}`, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, h.ValidateInsurance, "/cnas/validate", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			identity := decodeBody[entities.InsuranceIdentity](t, rr)
			if identity.IsValidFormat != tt.wantValid || identity.Status != tt.wantState {
				t.Errorf("identity = %+v", identity)
			}
			if !tt.wantValid {
				if identity.VerificationHash != "" {
					t.Error("invalid numbers must not be signed")
				}
				return
			}
			if want := signer.GenerateHash(identity.Number, identity.Status); identity.VerificationHash != want {
				t.Errorf("hash = %s, want %s", identity.VerificationHash, want)
			}
		})
	}
}

func TestVerifyInsurance(t *testing.T) {
	h, _ := newTestHandler(t)
	hash := chifa.NewValidator(chifa.DefaultNumberLength, fixedClock{testNow}).GenerateHash("0123456789", entities.StatusActive)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
	}{
		{"matching token", `{"number":"0123456789","status":"active","hash":"` + hash + `"}`, http.StatusOK, true},
		{"upper case token", `{"number":"0123456789","status":"ACTIVE","hash":"` + strings.ToUpper(hash) + `"}`, http.StatusOK, true},
		{"status tampered", `{"number":"0123456789","status":"pending","hash":"` + hash + `"}`, http.StatusOK, false},
		{"malformed number", `{"number":"01234","status":"active","hash":"` + hash + `"}`, http.StatusOK, false},
		{"missing hash", `{"number":"0123456789","status":"active"}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, h.VerifyInsurance, "/cnas/verify", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decodeBody[map[string]any](t, rr)
			if got["valid"] != tt.wantValid {
				t.Errorf("valid = %v, want %v", got["valid"], tt.wantValid)
			}
		})
	}
}

func searchRouter(h *HTTPHandlerImpl) http.Handler {
	r := chi.NewRouter()
	r.Get("/catalog/search/{name}", h.SearchCatalog)
	return r
}

type searchResponse struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Results []SearchResult `json:"results"`
}

func TestSearchCatalog(t *testing.T) {
	h, _ := newTestHandler(t)
	router := searchRouter(h)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantNames  []string
	}{
		{"exact", "/catalog/search/Doliprane", http.StatusOK, []string{"Doliprane"}},
		{"typo", "/catalog/search/dolipran", http.StatusOK, []string{"Doliprane"}},
		{"by generic name", "/catalog/search/paracetamol", http.StatusOK, []string{"Doliprane", "Efferalgan"}},
		{"limit", "/catalog/search/paracetamol?limit=1", http.StatusOK, []string{"Doliprane"}},
		{"no match", "/catalog/search/zzzzzz", http.StatusNotFound, nil},
		{"too short", "/catalog/search/do", http.StatusBadRequest, nil},
		{"bad limit", "/catalog/search/doliprane?limit=500", http.StatusBadRequest, nil},
		{"dangerous", "/catalog/search/drop%20table%20x", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			got := decodeBody[searchResponse](t, rr)
			if got.Count != len(tt.wantNames) || len(got.Results) != len(tt.wantNames) {
				t.Fatalf("results = %+v, want %v", got.Results, tt.wantNames)
			}
			for i, name := range tt.wantNames {
				if got.Results[i].Name != name {
					t.Errorf("result %d = %s, want %s", i, got.Results[i].Name, name)
				}
			}
		})
	}
}

func TestSearchCatalog_Aggregates(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	searchRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/catalog/search/Doliprane", nil))

	got := decodeBody[searchResponse](t, rr)
	if len(got.Results) != 1 {
		t.Fatalf("results = %+v", got.Results)
	}
	r := got.Results[0]
	if r.Similarity != 1 || r.Offers != 2 || r.LowestPrice != 110 || r.GenericName != "Paracetamol" {
		t.Errorf("unexpected aggregate %+v", r)
	}
}

func TestSearchCatalog_OutOfStockHasNoOffers(t *testing.T) {
	results := searchCatalog(newTestContainer().GetEntries(), "augmentin", 10)
	if len(results) != 1 || results[0].Offers != 0 || results[0].LowestPrice != 0 {
		t.Errorf("results = %+v", results)
	}
}

func TestHealthCheck(t *testing.T) {
	h, container := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	got := decodeBody[HealthResponse](t, rr)
	if got.Status != health.StatusHealthy {
		t.Errorf("status = %s", got.Status)
	}
	if got.LastUpdate == "" || got.NextUpdate == "" {
		t.Errorf("missing update times: %+v", got)
	}
	if got.Data["entries"] != float64(4) || got.Data["pharmacies"] != float64(2) {
		t.Errorf("data = %v", got.Data)
	}
	if _, ok := got.System["goroutines"]; !ok {
		t.Error("system stats missing")
	}

	container.UpdateCatalog(nil, nil)
	rr = httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("empty catalog status = %d, want 503", rr.Code)
	}
}

func TestRespondWithJSON_Gzip(t *testing.T) {
	payload := map[string]string{"value": strings.Repeat("doliprane ", 200)}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rr := httptest.NewRecorder()
	RespondWithJSON(rr, req, http.StatusOK, payload)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers %v", rr.Header())
	}
	gz, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil || got["value"] != payload["value"] {
		t.Errorf("decompressed body mismatch: %v", err)
	}

	// small payloads and clients without gzip get plain JSON
	rr = httptest.NewRecorder()
	RespondWithJSON(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, payload)
	if rr.Header().Get("Content-Encoding") != "" {
		t.Error("response should not be compressed without Accept-Encoding")
	}
	rr = httptest.NewRecorder()
	RespondWithJSON(rr, req, http.StatusOK, map[string]string{"a": "b"})
	if rr.Header().Get("Content-Encoding") != "" {
		t.Error("small response should not be compressed")
	}
}

func TestFormatUptimeHuman(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{time.Hour + 2*time.Second, "1h 0m 2s"},
		{26*time.Hour + 3*time.Minute, "1d 2h 3m 0s"},
	}
	for _, tt := range tests {
		if got := formatUptimeHuman(tt.d); got != tt.want {
			t.Errorf("formatUptimeHuman(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
