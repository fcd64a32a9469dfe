package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giygas/cnas-api/data"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/validation"
)

// mockSource is a configurable catalog source
type mockSource struct {
	mu         sync.Mutex
	entries    []entities.MedicineCatalogEntry
	pharmacies []entities.Pharmacy
	err        error
	loadCount  int
	block      chan struct{}
}

func (m *mockSource) Load(ctx context.Context) ([]entities.MedicineCatalogEntry, []entities.Pharmacy, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCount++
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.entries, m.pharmacies, nil
}

func (m *mockSource) Name() string {
	return "mock"
}

func (m *mockSource) loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCount
}

func newMockSource() *mockSource {
	return &mockSource{
		entries: []entities.MedicineCatalogEntry{
			{ID: "e1", CommercialName: "Doliprane", GenericName: "Paracetamol", Category: "ESSENTIAL", PharmacyID: "p1", QuantityOnHand: 4, PriceUnits: 200},
			{ID: "e2", CommercialName: "Ventoline", Category: "CHRONIC", PharmacyID: "p2", QuantityOnHand: 1, PriceUnits: 450},
		},
		pharmacies: []entities.Pharmacy{
			{ID: "p1", Name: "Pharmacie Centrale", Region: "Alger"},
		},
	}
}

func init() {
	logging.InitLogger("")
}

func TestRefresh_UpdatesStore(t *testing.T) {
	store := data.NewCatalogContainer()
	s := NewScheduler(store, newMockSource(), validation.NewDataValidator(), time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if got := len(store.GetEntries()); got != 2 {
		t.Errorf("Expected 2 entries, got %d", got)
	}
	if store.GetLastUpdated().IsZero() {
		t.Error("Last updated should be set")
	}
	if store.IsUpdating() {
		t.Error("Update flag should be released")
	}
}

func TestRefresh_SourceErrorKeepsSnapshot(t *testing.T) {
	store := data.NewCatalogContainer()
	source := newMockSource()
	s := NewScheduler(store, source, validation.NewDataValidator(), time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	source.err = errors.New("database unreachable")
	err := s.Refresh(context.Background())
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !errors.Is(err, source.err) {
		t.Errorf("Expected the source error to be wrapped, got %v", err)
	}
	if got := len(store.GetEntries()); got != 2 {
		t.Errorf("Previous snapshot should be kept, got %d entries", got)
	}
	if store.IsUpdating() {
		t.Error("Update flag should be released after a failure")
	}
}

func TestRefresh_RejectsInvalidCatalog(t *testing.T) {
	store := data.NewCatalogContainer()
	store.UpdateCatalog([]entities.MedicineCatalogEntry{{ID: "old", CommercialName: "Augmentin", PharmacyID: "p1"}}, nil)

	source := newMockSource()
	source.entries = nil
	s := NewScheduler(store, source, validation.NewDataValidator(), time.Hour)

	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("An empty catalog should be rejected")
	}
	if entries := store.GetEntries(); len(entries) != 1 || entries[0].ID != "old" {
		t.Errorf("Previous snapshot should be kept, got %v", entries)
	}
}

func TestRefresh_WithoutValidator(t *testing.T) {
	store := data.NewCatalogContainer()
	source := newMockSource()
	source.entries = nil
	s := NewScheduler(store, source, nil, time.Hour)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh without validator failed: %v", err)
	}
}

func TestRefresh_SkipsWhenInProgress(t *testing.T) {
	store := data.NewCatalogContainer()
	source := newMockSource()
	s := NewScheduler(store, source, validation.NewDataValidator(), time.Hour)

	if !store.BeginUpdate() {
		t.Fatal("BeginUpdate should succeed")
	}
	defer store.EndUpdate()

	if err := s.Refresh(context.Background()); err != nil {
		t.Errorf("Skipped refresh should not fail, got %v", err)
	}
	if source.loads() != 0 {
		t.Errorf("Source should not be read, got %d loads", source.loads())
	}
}

func TestRefresh_LoadTimeout(t *testing.T) {
	store := data.NewCatalogContainer()
	source := newMockSource()
	source.block = make(chan struct{})
	s := NewScheduler(store, source, nil, time.Hour, WithLoadTimeout(20*time.Millisecond))

	err := s.Refresh(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected a deadline error, got %v", err)
	}
}

func TestStart_InitialLoadFailure(t *testing.T) {
	source := newMockSource()
	source.err = errors.New("no such file")
	s := NewScheduler(data.NewCatalogContainer(), source, nil, time.Hour)
	defer s.Stop()

	if err := s.Start(); err == nil {
		t.Fatal("Start should fail when the initial load fails")
	}
	if !s.NextRefresh().IsZero() {
		t.Error("No refresh should be scheduled")
	}
}

func TestStartStop(t *testing.T) {
	store := data.NewCatalogContainer()
	source := newMockSource()
	s := NewScheduler(store, source, validation.NewDataValidator(), time.Hour, WithMonitorInterval(10*time.Millisecond))

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// the first periodic run waits for the schedule
	time.Sleep(50 * time.Millisecond)
	if source.loads() != 1 {
		t.Errorf("Expected only the initial load, got %d", source.loads())
	}

	next := s.NextRefresh()
	if next.Before(time.Now().Add(50*time.Minute)) || next.After(time.Now().Add(61*time.Minute)) {
		t.Errorf("Next refresh should be about an hour away, got %v", next)
	}

	s.Stop()
	// idempotent
	s.Stop()
}

func TestIsStale(t *testing.T) {
	store := data.NewCatalogContainer()
	s := NewScheduler(store, newMockSource(), nil, 10*time.Minute)

	if !s.IsStale(time.Now()) {
		t.Error("A catalog never loaded is stale")
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if s.IsStale(time.Now().Add(29 * time.Minute)) {
		t.Error("Catalog should not be stale within three intervals")
	}
	if !s.IsStale(time.Now().Add(31 * time.Minute)) {
		t.Error("Catalog should be stale after three intervals")
	}
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(data.NewCatalogContainer(), newMockSource(), nil, 0)
	if s.Interval() != DefaultInterval {
		t.Errorf("Expected default interval, got %v", s.Interval())
	}
}
