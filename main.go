package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/cnas-api/catalogstore"
	"github.com/giygas/cnas-api/chifa"
	"github.com/giygas/cnas-api/config"
	"github.com/giygas/cnas-api/data"
	"github.com/giygas/cnas-api/extractor"
	"github.com/giygas/cnas-api/handlers"
	"github.com/giygas/cnas-api/health"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/ocr"
	"github.com/giygas/cnas-api/ocrtext"
	"github.com/giygas/cnas-api/reimbursement"
	"github.com/giygas/cnas-api/resolver"
	"github.com/giygas/cnas-api/scan"
	"github.com/giygas/cnas-api/scheduler"
	"github.com/giygas/cnas-api/server"
	"github.com/giygas/cnas-api/validation"
)

func main() {
	importDir := flag.String("import", "", "load a TSV export directory into the SQL catalog and exit")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logService := logging.InitLoggerWithOptions(logging.Options{
		Dir:           cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
		MaxFileSize:   cfg.MaxLogFileSize,
		Env:           cfg.Env,
		Level:         cfg.LogLevel,
	})
	defer logService.Close()

	if *importDir != "" {
		if err := importCatalog(cfg, *importDir); err != nil {
			logging.Error("Catalog import failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		logging.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	container := data.NewCatalogContainer()
	container.SetServerStartTime(time.Now())

	validator := validation.NewDataValidator()

	source, reader, closeSource, err := openCatalog(cfg, container)
	if err != nil {
		return err
	}
	defer closeSource()

	interval := cfg.CatalogRefresh
	var refresher interfaces.Scheduler
	if source != nil {
		sched := scheduler.NewScheduler(container, source, validator, cfg.CatalogRefresh)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
		interval = sched.Interval()
		refresher = sched
	} else {
		logging.Warn("No catalog source configured, every detection will be provisional", "driver", cfg.CatalogDriver)
	}

	handler, err := buildHandler(cfg, container, reader, interval, refresher)
	if err != nil {
		return err
	}
	srv := server.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info("Signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// openCatalog returns the refresh source and the reader the resolver queries.
// SQL catalogs are queried directly, the other drivers through the in-memory
// snapshot.
func openCatalog(cfg *config.Config, container *data.CatalogContainer) (interfaces.CatalogSource, interfaces.CatalogReader, func(), error) {
	noop := func() {}

	switch cfg.CatalogDriver {
	case config.DriverSQLite, config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := catalogstore.OpenSQL(ctx, cfg.CatalogDriver, cfg.CatalogDSN)
		if err != nil {
			return nil, nil, noop, err
		}
		if cfg.CatalogDriver == config.DriverSQLite {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, nil, noop, err
			}
		}
		return store, store, func() { _ = store.Close() }, nil

	case config.DriverTSV:
		return catalogstore.NewTSVImporter(cfg.CatalogDSN), container, noop, nil

	default:
		return nil, container, noop, nil
	}
}

// importCatalog replaces the SQL catalog with a TSV export
func importCatalog(cfg *config.Config, dir string) error {
	if cfg.CatalogDriver != config.DriverSQLite && cfg.CatalogDriver != config.DriverPostgres {
		return errors.New("import requires CATALOG_DRIVER sqlite3 or postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	entries, pharmacies, err := catalogstore.NewTSVImporter(dir).Load(ctx)
	if err != nil {
		return err
	}
	if err := validation.NewDataValidator().ValidateCatalogIntegrity(entries, pharmacies); err != nil {
		return fmt.Errorf("export rejected: %w", err)
	}

	store, err := catalogstore.OpenSQL(ctx, cfg.CatalogDriver, cfg.CatalogDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.ReplaceAll(ctx, entries, pharmacies); err != nil {
		return err
	}

	logging.Info("Catalog imported", "entries", len(entries), "pharmacies", len(pharmacies), "driver", cfg.CatalogDriver)
	return nil
}

// buildHandler wires the matching and reimbursement engine behind the HTTP
// handlers. refresher may be nil when the catalog has no source.
func buildHandler(cfg *config.Config, container *data.CatalogContainer, reader interfaces.CatalogReader, interval time.Duration, refresher interfaces.Scheduler) (interfaces.HTTPHandler, error) {
	calculator, err := reimbursement.NewCalculator(reimbursement.Rates{
		Essential: cfg.RateEssential,
		Chronic:   cfg.RateChronic,
		Other:     cfg.RateOther,
	})
	if err != nil {
		return nil, err
	}

	extractorCfg := extractor.DefaultConfig()
	extractorCfg.AcceptanceThreshold = cfg.MatchThreshold
	extractorCfg.ProvisionalConfidence = cfg.ProvisionalConfidence

	resolverOpts := []resolver.Option{resolver.WithQueryTimeout(cfg.CatalogQueryTimeout)}
	if cfg.SortOffersByPrice {
		resolverOpts = append(resolverOpts, resolver.WithSortByPrice())
	}

	scanner := scan.NewService(
		ocr.NewTextEngine(),
		container,
		extractor.New(extractorCfg),
		resolver.New(reader, resolverOpts...),
		scan.WithNormalizer(&ocrtext.Normalizer{MinLineLength: cfg.MinLineLength}),
	)

	return handlers.NewHTTPHandler(
		container,
		validation.NewDataValidator(),
		calculator,
		scanner,
		chifa.NewValidator(cfg.ChifaNumberLength, nil),
		health.NewHealthChecker(container, interval, nil).WithScheduler(refresher),
	), nil
}
