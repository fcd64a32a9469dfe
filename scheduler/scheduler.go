// Package scheduler keeps the in-memory catalog fresh. It reloads the snapshot
// from the configured catalog source on a fixed interval and warns when the
// catalog has not been refreshed for too long.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/metrics"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	DefaultInterval     = 30 * time.Minute
	defaultLoadTimeout  = 5 * time.Minute
	defaultMonitorEvery = time.Hour
)

// Scheduler refreshes the catalog store from a catalog source
type Scheduler struct {
	store     interfaces.CatalogStore
	source    interfaces.CatalogSource
	validator interfaces.DataValidator
	scheduler *gocron.Scheduler
	job       *gocron.Job

	interval     time.Duration
	loadTimeout  time.Duration
	monitorEvery time.Duration
	staleAfter   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLoadTimeout bounds a single catalog load
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// WithMonitorInterval sets how often the catalog age is checked
func WithMonitorInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.monitorEvery = d
		}
	}
}

// NewScheduler creates a scheduler refreshing store from source every
// interval. A nil validator skips the integrity check.
func NewScheduler(store interfaces.CatalogStore, source interfaces.CatalogSource, validator interfaces.DataValidator, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		store:        store,
		source:       source,
		validator:    validator,
		scheduler:    gocron.NewScheduler(time.UTC),
		interval:     interval,
		loadTimeout:  defaultLoadTimeout,
		monitorEvery: defaultMonitorEvery,
		staleAfter:   3 * interval,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the refresh interval
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start loads the catalog once, then schedules periodic refreshes and the
// staleness monitor. A failing initial load is returned: serving without a
// catalog would only produce provisional detections.
func (s *Scheduler) Start() error {
	if err := s.Refresh(context.Background()); err != nil {
		logging.Error("Failed to perform initial catalog load", "error", err)
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	job, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		if err := s.Refresh(context.Background()); err != nil {
			logging.Error("Failed to refresh catalog", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule catalog refresh", "error", err)
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}
	s.job = job

	s.scheduler.StartAsync()
	s.startHealthMonitoring()

	logging.Info("Catalog refresh scheduled", "source", s.source.Name(), "interval", s.interval.String())
	return nil
}

// Stop stops the periodic refresh and the monitor
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.scheduler.Stop()
		close(s.stop)
		s.wg.Wait()
	})
}

// NextRefresh returns the next scheduled refresh, or the zero time before Start
func (s *Scheduler) NextRefresh() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// Refresh loads a new snapshot and swaps it in. A snapshot failing the
// integrity check is discarded and the current one keeps being served.
// Concurrent calls are skipped while a refresh is running.
func (s *Scheduler) Refresh(ctx context.Context) error {
	if !s.store.BeginUpdate() {
		logging.Info("Catalog refresh already in progress, skipping...")
		return nil
	}
	defer s.store.EndUpdate()

	source := s.source.Name()
	logging.Info("Starting catalog refresh", "source", source)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	entries, pharmacies, err := s.source.Load(ctx)
	if err != nil {
		metrics.CatalogRefreshTotal.WithLabelValues(source, "error").Inc()
		return fmt.Errorf("failed to load catalog from %s: %w", source, err)
	}

	if s.validator != nil {
		if err := s.validator.ValidateCatalogIntegrity(entries, pharmacies); err != nil {
			metrics.CatalogRefreshTotal.WithLabelValues(source, "rejected").Inc()
			return fmt.Errorf("catalog from %s rejected: %w", source, err)
		}
		s.logQuality(s.validator.ReportCatalogQuality(entries, pharmacies))
	}

	s.store.UpdateCatalog(entries, pharmacies)
	metrics.CatalogEntries.Set(float64(len(entries)))
	metrics.CatalogRefreshTotal.WithLabelValues(source, "success").Inc()

	logging.Info("Catalog refresh completed",
		"duration", time.Since(start).String(),
		"entry_count", len(entries),
		"pharmacy_count", len(pharmacies))
	return nil
}

func (s *Scheduler) logQuality(report *interfaces.CatalogQualityReport) {
	if report == nil {
		return
	}

	if len(report.DuplicateEntryIDs) > 0 {
		logging.Warn("Duplicate catalog entry ids detected",
			"total", len(report.DuplicateEntryIDs),
			"id_list", report.DuplicateEntryIDs,
		)
	}

	if len(report.OrphanPharmacyIDs) > 0 {
		logging.Warn("Entries reference undeclared pharmacies",
			"total", len(report.OrphanPharmacyIDs),
			"pharmacy_ids", report.OrphanPharmacyIDs,
		)
	}

	if report.UnknownCategoryEntries > 0 {
		logging.Warn("Entries with unknown reimbursement category, OTHER rate applies",
			"count", report.UnknownCategoryEntries,
		)
	}

	logging.Debug("Catalog quality",
		"without_generic", report.EntriesWithoutGeneric,
		"out_of_stock", report.OutOfStockEntries,
		"donations", report.DonationEntries,
	)
}

// IsStale reports whether the catalog is older than three refresh intervals
func (s *Scheduler) IsStale(now time.Time) bool {
	last := s.store.GetLastUpdated()
	return last.IsZero() || now.Sub(last) > s.staleAfter
}

// startHealthMonitoring warns when refreshes keep failing
func (s *Scheduler) startHealthMonitoring() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.monitorEvery)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				if s.IsStale(now) {
					logging.Warn("Catalog hasn't been refreshed recently",
						"last_updated", s.store.GetLastUpdated(),
						"stale_after", s.staleAfter.String())
				}
			}
		}
	}()
}
