// Package handlers provides the HTTP handlers of the reimbursement and
// prescription matching API. Handlers decode and validate the request, call
// the engine and map engine errors to HTTP statuses.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/cnas-api/apperrors"
	"github.com/giygas/cnas-api/chifa"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/metrics"
	"github.com/giygas/cnas-api/reimbursement"
	"github.com/giygas/cnas-api/report"
	"github.com/giygas/cnas-api/validation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Scanner runs the OCR engine and the matching pipeline on a prescription
type Scanner interface {
	Scan(ctx context.Context, image []byte, region string, progress func(float64)) (entities.ScanResult, error)
}

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	store         interfaces.CatalogStore
	validator     interfaces.DataValidator
	calculator    *reimbursement.Calculator
	scanner       Scanner
	insurance     *chifa.Validator
	healthChecker interfaces.HealthChecker
	now           func() time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	store interfaces.CatalogStore,
	validator interfaces.DataValidator,
	calculator *reimbursement.Calculator,
	scanner Scanner,
	insurance *chifa.Validator,
	healthChecker interfaces.HealthChecker,
) interfaces.HTTPHandler {
	return &HTTPHandlerImpl{
		store:         store,
		validator:     validator,
		calculator:    calculator,
		scanner:       scanner,
		insurance:     insurance,
		healthChecker: healthChecker,
		now:           time.Now,
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	LastUpdate    string         `json:"last_update"`
	NextUpdate    string         `json:"next_update"`
	DataAgeHours  float64        `json:"data_age_hours"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Uptime        string         `json:"uptime"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

type calculateRequest struct {
	Lines []entities.ReimbursementLineInput `json:"lines"`
	Mode  string                            `json:"mode"`
}

type lineRequest struct {
	Price    int64  `json:"price"`
	Category string `json:"category"`
	Chronic  bool   `json:"chronic"`
}

type exportLine struct {
	Label          string `json:"label"`
	PublicPrice    int64  `json:"publicPrice"`
	IsReimbursable bool   `json:"isReimbursable"`
}

type exportRequest struct {
	Lines []exportLine `json:"lines"`
	Mode  string       `json:"mode"`
}

type extractRequest struct {
	Text   string `json:"text"`
	Region string `json:"region"`
}

type insuranceRequest struct {
	Number string `json:"number"`
	Status string `json:"status"`
	Hash   string `json:"hash,omitempty"`
}

// CalculateReimbursement splits a batch of lines between CNAS and the patient
func (h *HTTPHandlerImpl) CalculateReimbursement(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	mode, err := reimbursement.ParseMode(req.Mode)
	if err != nil {
		h.rejectCalculation(w, r, err)
		return
	}
	if err := h.validator.ValidateReimbursementLines(req.Lines); err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	result, err := h.calculator.CalculateBatch(req.Lines, mode)
	if err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	metrics.ReimbursementCalculationsTotal.WithLabelValues(result.Category, "ok").Inc()
	RespondWithJSON(w, r, http.StatusOK, result)
}

// CalculateReimbursementLine splits a single line. The chronic flag forces
// full chronic coverage whatever the category.
func (h *HTTPHandlerImpl) CalculateReimbursementLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	if req.Category != "" && !reimbursement.IsKnownCategory(req.Category) {
		h.rejectCalculation(w, r, apperrors.NewInvalidInputError("unknown category %q", req.Category))
		return
	}
	if req.Price > validation.MaxPublicPrice {
		h.rejectCalculation(w, r, apperrors.NewInvalidInputError("price exceeds %d", validation.MaxPublicPrice))
		return
	}

	split, err := h.calculator.Calculate(req.Price, reimbursement.ParseCategory(req.Category), req.Chronic)
	if err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	metrics.ReimbursementCalculationsTotal.WithLabelValues(string(split.Category), "ok").Inc()
	RespondWithJSON(w, r, http.StatusOK, split)
}

// ExportReimbursement returns the statement of a batch as an XLSX workbook
func (h *HTTPHandlerImpl) ExportReimbursement(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	mode, err := reimbursement.ParseMode(req.Mode)
	if err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	labels := make([]string, len(req.Lines))
	inputs := make([]entities.ReimbursementLineInput, len(req.Lines))
	for i, line := range req.Lines {
		labels[i] = strings.TrimSpace(line.Label)
		inputs[i] = entities.ReimbursementLineInput{PublicPrice: line.PublicPrice, IsReimbursable: line.IsReimbursable}
	}
	if err := h.validator.ValidateReimbursementLines(inputs); err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	splits, result, err := h.calculator.CalculateStatement(inputs, mode)
	if err != nil {
		h.rejectCalculation(w, r, err)
		return
	}

	now := h.now()
	stmt, err := report.NewStatement(labels, inputs, splits, result, mode, now)
	if err != nil {
		logging.Error("Failed to build reimbursement statement", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "failed to build statement")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, stmt); err != nil {
		logging.Error("Failed to render reimbursement statement", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "failed to render statement")
		return
	}

	metrics.ReimbursementCalculationsTotal.WithLabelValues(result.Category, "ok").Inc()

	filename := fmt.Sprintf("remboursement-%s.xlsx", now.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.Warn("Failed to send reimbursement statement", "error", err)
	}
}

// ExtractPrescription detects medicines in recognized prescription text and
// resolves pharmacy offers near region
func (h *HTTPHandlerImpl) ExtractPrescription(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithAppError(w, r, err)
		return
	}

	if err := h.validator.ValidatePrescriptionText(req.Text); err != nil {
		logging.Warn("Unusual user input", "field", "text", "length", len(req.Text), "error", err)
		RespondWithAppError(w, r, err)
		return
	}
	if err := h.validator.ValidateRegion(req.Region); err != nil {
		logging.Warn("Unusual user input", "field", "region", "region", req.Region)
		RespondWithAppError(w, r, err)
		return
	}

	h.scan(w, r, []byte(req.Text), req.Region)
}

// ScanPrescription runs the OCR engine on the raw request body. The caller
// region is read from the region query parameter.
func (h *HTTPHandlerImpl) ScanPrescription(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if err := h.validator.ValidateRegion(region); err != nil {
		logging.Warn("Unusual user input", "field", "region", "region", region)
		RespondWithAppError(w, r, err)
		return
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondWithError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", maxErr.Limit))
			return
		}
		RespondWithError(w, r, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(image) == 0 {
		RespondWithError(w, r, http.StatusBadRequest, "image is required")
		return
	}

	h.scan(w, r, image, region)
}

func (h *HTTPHandlerImpl) scan(w http.ResponseWriter, r *http.Request, image []byte, region string) {
	requestID := middleware.GetReqID(r.Context())
	progress := func(p float64) {
		logging.Debug("OCR progress", "request_id", requestID, "fraction", p)
	}

	result, err := h.scanner.Scan(r.Context(), image, region, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logging.Info("Prescription scan abandoned", "request_id", requestID, "error", err)
			RespondWithError(w, r, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		RespondWithAppError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, result)
}

// ValidateInsurance checks a CHIFA number and returns its identity with the
// daily verification token
func (h *HTTPHandlerImpl) ValidateInsurance(w http.ResponseWriter, r *http.Request) {
	var req insuranceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithAppError(w, r, err)
		return
	}
	if err := h.validator.ValidateInsuranceInput(req.Number); err != nil {
		logging.Warn("Unusual user input", "field", "number", "length", len(req.Number))
		metrics.ChifaValidationsTotal.WithLabelValues("rejected").Inc()
		RespondWithAppError(w, r, err)
		return
	}

	identity := h.insurance.Identify(req.Number, strings.ToLower(strings.TrimSpace(req.Status)))
	metrics.ChifaValidationsTotal.WithLabelValues(identity.Status).Inc()
	RespondWithJSON(w, r, http.StatusOK, identity)
}

// VerifyInsurance recomputes today's token of a number and status and
// compares it with the one presented
func (h *HTTPHandlerImpl) VerifyInsurance(w http.ResponseWriter, r *http.Request) {
	var req insuranceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithAppError(w, r, err)
		return
	}
	if err := h.validator.ValidateInsuranceInput(req.Number); err != nil {
		RespondWithAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Hash) == "" {
		RespondWithError(w, r, http.StatusBadRequest, "hash is required")
		return
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	valid := h.insurance.Validate(req.Number) && h.insurance.Verify(req.Number, status, req.Hash)

	outcome := "verified"
	if !valid {
		outcome = "mismatch"
	}
	metrics.ChifaValidationsTotal.WithLabelValues(outcome).Inc()

	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"number": chifa.Normalize(req.Number),
		"status": status,
		"valid":  valid,
	})
}

// SearchCatalog returns the commercial names closest to {name}
func (h *HTTPHandlerImpl) SearchCatalog(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		RespondWithError(w, r, http.StatusBadRequest, "Missing search term")
		return
	}
	if err := h.validator.ValidateInput(name); err != nil {
		logging.Warn("Unusual user input", "name", name)
		RespondWithAppError(w, r, err)
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			logging.Warn("Unusual user input", "limit", raw)
			RespondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit))
			return
		}
		limit = n
	}

	results := searchCatalog(h.store.GetEntries(), name, limit)
	if len(results) == 0 {
		RespondWithAppError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("no catalog entry matches %q", name)))
		return
	}
	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"query":   name,
		"count":   len(results),
		"results": results,
	})
}

// HealthCheck reports the catalog freshness and process statistics
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.healthChecker.HealthCheck()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := h.now().Sub(h.store.GetServerStartTime())
	if h.store.GetServerStartTime().IsZero() {
		uptime = 0
	}

	response := HealthResponse{
		Status:        status,
		NextUpdate:    h.healthChecker.CalculateNextUpdate().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(uptime.Seconds()),
		Uptime:        formatUptimeHuman(uptime),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}
	if v, ok := data["last_update"].(string); ok {
		response.LastUpdate = v
	}
	if v, ok := data["data_age_hours"].(float64); ok {
		response.DataAgeHours = v
	}

	RespondWithJSON(w, r, httpStatus, response)
}

func (h *HTTPHandlerImpl) rejectCalculation(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ReimbursementCalculationsTotal.WithLabelValues("none", "rejected").Inc()
	logging.Warn("Rejected reimbursement request", "path", r.URL.Path, "error", err)
	RespondWithAppError(w, r, err)
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
