// Package health reports whether the service can answer with a fresh catalog.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/cnas-api/interfaces"
)

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// maxCatalogAge is the age after which the catalog is unusable whatever the refresh interval
const maxCatalogAge = 24 * time.Hour

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	store     interfaces.CatalogStore
	interval  time.Duration
	clock     interfaces.Clock
	scheduler interfaces.Scheduler
}

// NewHealthChecker creates a health checker for a catalog refreshed every
// interval. A nil clock uses the system time.
func NewHealthChecker(store interfaces.CatalogStore, interval time.Duration, clock interfaces.Clock) *HealthCheckerImpl {
	if clock == nil {
		clock = systemClock{}
	}
	return &HealthCheckerImpl{
		store:    store,
		interval: interval,
		clock:    clock,
	}
}

// WithScheduler reports the scheduler's own next run instead of deriving it
// from the last update
func (h *HealthCheckerImpl) WithScheduler(s interfaces.Scheduler) *HealthCheckerImpl {
	h.scheduler = s
	return h
}

// HealthCheck returns the status with thresholds derived from the refresh
// interval. Used by the /health endpoint.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	entries := h.store.GetEntries()
	pharmacies := h.store.GetPharmacyMap()
	lastUpdate := h.store.GetLastUpdated()
	isUpdating := h.store.IsUpdating()

	now := h.clock.Now()
	dataAge := now.Sub(lastUpdate)

	switch {
	case len(entries) == 0 || lastUpdate.IsZero():
		status = StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable

	case dataAge > maxCatalogAge:
		status = StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable

	case h.interval > 0 && dataAge > 3*h.interval:
		// refreshes are failing but the snapshot is still usable
		status = StatusDegraded
		httpStatus = http.StatusOK

	case isUpdating && h.interval > 0 && dataAge > 2*h.interval:
		// a refresh is stuck
		status = StatusDegraded
		httpStatus = http.StatusOK

	default:
		status = StatusHealthy
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":    formatTime(lastUpdate),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"entries":        len(entries),
		"pharmacies":     len(pharmacies),
		"is_updating":    isUpdating,
	}

	if start := h.store.GetServerStartTime(); !start.IsZero() {
		data["uptime_seconds"] = int64(now.Sub(start).Seconds())
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled catalog refresh
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	if h.scheduler != nil {
		if next := h.scheduler.NextRefresh(); !next.IsZero() {
			return next
		}
	}

	now := h.clock.Now()
	last := h.store.GetLastUpdated()
	if last.IsZero() || h.interval <= 0 {
		return now
	}

	next := last.Add(h.interval)
	for next.Before(now) {
		next = next.Add(h.interval)
	}
	return next
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
