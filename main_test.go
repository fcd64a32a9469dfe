package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/cnas-api/catalogstore"
	"github.com/giygas/cnas-api/config"
	"github.com/giygas/cnas-api/data"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/scheduler"
	"github.com/giygas/cnas-api/server"
	"github.com/giygas/cnas-api/validation"
)

func init() {
	logging.InitLogger("")
}

const (
	pharmaciesTSV = "p1\tPharmacie Centrale\t1 rue Didouche Mourad\tAlger\n" +
		"p2\tPharmacie du Port\tBoulevard de la Soummam\tOran\n"
	stockTSV = "e1\tDoliprane\tParacetamol\t1000mg\tESSENTIAL\t120\tp1\t10\t0\n" +
		"e2\tEfferalgan\tParacetamol\t1g\tESSENTIAL\t150\tp2\t3\t0\n" +
		"e3\tAugmentin\tAmoxicilline\t1g\tOTHER\t600\tp1\t0\t0\n"
)

func writeExportDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalogstore.PharmaciesFile), []byte(pharmaciesTSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalogstore.StockFile), []byte(stockTSV), 0o644))
	return dir
}

func testConfig(driver, dsn string) *config.Config {
	return &config.Config{
		Port:                "0",
		Address:             "127.0.0.1",
		Env:                 config.EnvTest,
		MaxRequestBody:      1 << 20,
		MaxHeaderSize:       1 << 20,
		MatchThreshold:      0.8,
		MinLineLength:       3,
		RateEssential:       0.8,
		RateChronic:         1,
		RateOther:           0.8,
		ChifaNumberLength:   10,
		CatalogDriver:       driver,
		CatalogDSN:          dsn,
		CatalogRefresh:      time.Hour,
		CatalogQueryTimeout: 2 * time.Second,
	}
}

// newRouter loads the catalog once and returns the full HTTP stack
func newRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	container := data.NewCatalogContainer()
	container.SetServerStartTime(time.Now())

	source, reader, closeSource, err := openCatalog(cfg, container)
	require.NoError(t, err)
	t.Cleanup(closeSource)
	require.NotNil(t, source)

	sched := scheduler.NewScheduler(container, source, validation.NewDataValidator(), cfg.CatalogRefresh)
	require.NoError(t, sched.Refresh(context.Background()))

	handler, err := buildHandler(cfg, container, reader, sched.Interval(), sched)
	require.NoError(t, err)
	return server.NewServer(cfg, handler).Router()
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:4000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func assertPrescriptionResolved(t *testing.T, router http.Handler) {
	t.Helper()

	rr := post(router, "/ocr/extract", `{"text":"Doliprane 1000 mg matin et soir\nXaramox 1g","region":"Alger"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result entities.ScanResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Detections, 2)

	doliprane := result.Detections[0]
	assert.Equal(t, "Doliprane", doliprane.Name)
	assert.True(t, doliprane.Found)
	require.Len(t, doliprane.StockOffers, 1)
	assert.Equal(t, "Pharmacie Centrale", doliprane.StockOffers[0].PharmacyName)
	require.Len(t, doliprane.Substitutions, 1)
	assert.Equal(t, "Efferalgan", doliprane.Substitutions[0].CandidateName)

	assert.True(t, result.Detections[1].Provisional)
}

func TestEndToEnd_TSVCatalog(t *testing.T) {
	router := newRouter(t, testConfig(config.DriverTSV, writeExportDir(t)))

	assertPrescriptionResolved(t, router)

	rr := post(router, "/reimbursement/calculate", `{"lines":[{"publicPrice":120,"isReimbursable":true},{"publicPrice":600,"isReimbursable":false}],"mode":"Standard"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result entities.ReimbursementResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, int64(720), result.TotalAmount)
	assert.Equal(t, int64(96), result.ReimbursedAmount)
	assert.Equal(t, int64(624), result.RemainingAmount)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRR := httptest.NewRecorder()
	router.ServeHTTP(healthRR, req)
	assert.Equal(t, http.StatusOK, healthRR.Code)
	assert.Contains(t, healthRR.Body.String(), `"status":"healthy"`)
}

func TestEndToEnd_SQLiteCatalog(t *testing.T) {
	cfg := testConfig(config.DriverSQLite, filepath.Join(t.TempDir(), "catalog.db"))

	require.NoError(t, importCatalog(cfg, writeExportDir(t)))

	assertPrescriptionResolved(t, newRouter(t, cfg))
}

func TestImportCatalog_RequiresSQLDriver(t *testing.T) {
	err := importCatalog(testConfig(config.DriverTSV, "unused"), writeExportDir(t))
	assert.ErrorContains(t, err, "CATALOG_DRIVER")
}

func TestImportCatalog_RejectsEmptyExport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalogstore.PharmaciesFile), []byte(pharmaciesTSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalogstore.StockFile), nil, 0o644))

	cfg := testConfig(config.DriverSQLite, filepath.Join(t.TempDir(), "catalog.db"))
	assert.ErrorContains(t, importCatalog(cfg, dir), "export rejected")
}

func TestDefaultCatalog_Loads(t *testing.T) {
	cfg := testConfig(config.DriverTSV, config.DefaultTSVLocation)
	router := newRouter(t, cfg)

	rr := post(router, "/ocr/extract", `{"text":"Glucophage 850 mg 2 fois par jour","region":"Alger"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result entities.ScanResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "Glucophage", result.Detections[0].Name)
	assert.True(t, result.Detections[0].Found)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRR := httptest.NewRecorder()
	router.ServeHTTP(healthRR, req)
	assert.Equal(t, http.StatusOK, healthRR.Code)
}

func TestHealth_ReportsScheduledRefresh(t *testing.T) {
	cfg := testConfig(config.DriverTSV, writeExportDir(t))
	container := data.NewCatalogContainer()

	source, reader, closeSource, err := openCatalog(cfg, container)
	require.NoError(t, err)
	defer closeSource()

	sched := scheduler.NewScheduler(container, source, validation.NewDataValidator(), cfg.CatalogRefresh)
	require.NoError(t, sched.Start())
	defer sched.Stop()

	handler, err := buildHandler(cfg, container, reader, sched.Interval(), sched)
	require.NoError(t, err)
	router := server.NewServer(cfg, handler).Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		NextUpdate string `json:"next_update"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, sched.NextRefresh().UTC().Format(time.RFC3339), body.NextUpdate)
}

func TestOpenCatalog_Memory(t *testing.T) {
	container := data.NewCatalogContainer()

	source, reader, closeSource, err := openCatalog(testConfig(config.DriverMemory, ""), container)
	defer closeSource()

	require.NoError(t, err)
	assert.Nil(t, source)
	assert.Same(t, container, reader)
}
