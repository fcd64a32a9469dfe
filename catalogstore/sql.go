// Package catalogstore provides the catalog sources the in-memory snapshot is
// refreshed from: a SQL database owned by the marketplace and the TSV stock
// exports sent by pharmacies.
package catalogstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
)

// Table names
const (
	EntriesTable    = "catalog_entries"
	PharmaciesTable = "pharmacies"
)

var (
	_ interfaces.CatalogReader = (*SQLReader)(nil)
	_ interfaces.CatalogSource = (*SQLReader)(nil)
)

var entryColumns = []any{
	"id", "commercial_name", "generic_name", "dosage_text", "category",
	"price_units", "pharmacy_id", "quantity_on_hand", "is_donation",
}

var pharmacyColumns = []any{"id", "name", "address", "region"}

// schema works on both sqlite3 and postgres
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_entries (
		id TEXT PRIMARY KEY,
		commercial_name TEXT NOT NULL,
		generic_name TEXT NOT NULL DEFAULT '',
		dosage_text TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		price_units BIGINT NOT NULL DEFAULT 0 CHECK (price_units >= 0),
		pharmacy_id TEXT NOT NULL,
		quantity_on_hand BIGINT NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
		is_donation BOOLEAN NOT NULL DEFAULT FALSE,
		seq BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_entries_commercial_name ON catalog_entries (commercial_name)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_entries_generic_name ON catalog_entries (generic_name)`,
}

// SQLReader reads the catalog from a database shared with the marketplace.
// It is safe for concurrent use.
type SQLReader struct {
	db      *sql.DB
	qb      *goqu.Database
	dialect string
}

// OpenSQL opens and pings the database. driver is "sqlite3" or "postgres".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLReader, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s catalog: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s catalog: %w", driver, err)
	}

	logging.Info("Catalog database connected", "driver", driver)
	return NewSQLReader(db, driver), nil
}

// NewSQLReader wraps an open database. dialect selects the placeholder style.
func NewSQLReader(db *sql.DB, dialect string) *SQLReader {
	return &SQLReader{
		db:      db,
		qb:      goqu.New(dialect, db),
		dialect: dialect,
	}
}

// Name implements CatalogSource
func (r *SQLReader) Name() string {
	return "sql:" + r.dialect
}

// Close closes the underlying database
func (r *SQLReader) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the catalog tables when missing
func (r *SQLReader) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create catalog schema: %w", err)
		}
	}
	return nil
}

// ListEntries implements CatalogReader. Entries come back in insertion order,
// the order of the export ReplaceAll published, with id breaking ties for rows
// written by other tools.
func (r *SQLReader) ListEntries(ctx context.Context, filter entities.CatalogFilter) ([]entities.MedicineCatalogEntry, error) {
	ds := r.qb.From(EntriesTable).Select(entryColumns...).Prepared(true)

	var names []exp.Expression
	if len(filter.CommercialNames) > 0 {
		names = append(names, goqu.C("commercial_name").In(filter.CommercialNames))
	}
	if len(filter.GenericNames) > 0 {
		names = append(names, goqu.And(
			goqu.C("generic_name").Neq(""),
			goqu.C("generic_name").In(filter.GenericNames),
		))
	}
	if len(names) > 0 {
		ds = ds.Where(goqu.Or(names...))
	}
	if filter.InStockOnly {
		ds = ds.Where(goqu.C("quantity_on_hand").Gt(0))
	}
	ds = ds.Order(goqu.I("seq").Asc(), goqu.I("id").Asc())

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build entries query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog entries: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("Failed to close catalog rows", "error", err)
		}
	}()

	entries := []entities.MedicineCatalogEntry{}
	for rows.Next() {
		var e entities.MedicineCatalogEntry
		if err := rows.Scan(
			&e.ID,
			&e.CommercialName,
			&e.GenericName,
			&e.DosageText,
			&e.Category,
			&e.PriceUnits,
			&e.PharmacyID,
			&e.QuantityOnHand,
			&e.IsDonation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog entries: %w", err)
	}

	return entries, nil
}

// GetPharmacies implements CatalogReader
func (r *SQLReader) GetPharmacies(ctx context.Context, ids []string) (map[string]entities.Pharmacy, error) {
	if len(ids) == 0 {
		return map[string]entities.Pharmacy{}, nil
	}
	return r.queryPharmacies(ctx, goqu.Ex{"id": ids})
}

// Load implements CatalogSource by reading every entry and pharmacy
func (r *SQLReader) Load(ctx context.Context) ([]entities.MedicineCatalogEntry, []entities.Pharmacy, error) {
	entries, err := r.ListEntries(ctx, entities.CatalogFilter{})
	if err != nil {
		return nil, nil, err
	}

	byID, err := r.queryPharmacies(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	pharmacies := make([]entities.Pharmacy, 0, len(byID))
	for _, p := range byID {
		pharmacies = append(pharmacies, p)
	}
	return entries, pharmacies, nil
}

func (r *SQLReader) queryPharmacies(ctx context.Context, where goqu.Ex) (map[string]entities.Pharmacy, error) {
	ds := r.qb.From(PharmaciesTable).Select(pharmacyColumns...).Prepared(true)
	if where != nil {
		ds = ds.Where(where)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build pharmacies query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pharmacies: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("Failed to close pharmacy rows", "error", err)
		}
	}()

	result := make(map[string]entities.Pharmacy)
	for rows.Next() {
		var p entities.Pharmacy
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Region); err != nil {
			return nil, fmt.Errorf("failed to scan pharmacy: %w", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pharmacies: %w", err)
	}

	return result, nil
}

// ReplaceAll swaps the stored catalog for entries and pharmacies in one
// transaction. Used to publish a TSV export into the shared database.
func (r *SQLReader) ReplaceAll(ctx context.Context, entries []entities.MedicineCatalogEntry, pharmacies []entities.Pharmacy) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin catalog transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Warn("Failed to roll back catalog transaction", "error", rbErr)
			}
		}
	}()

	for _, table := range []string{EntriesTable, PharmaciesTable} {
		query, args, buildErr := r.qb.Delete(table).Prepared(true).ToSQL()
		if buildErr != nil {
			return fmt.Errorf("failed to build delete query: %w", buildErr)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if len(pharmacies) > 0 {
		rows := make([]any, 0, len(pharmacies))
		for _, p := range pharmacies {
			rows = append(rows, goqu.Record{"id": p.ID, "name": p.Name, "address": p.Address, "region": p.Region})
		}
		if err = r.insert(ctx, tx, PharmaciesTable, rows); err != nil {
			return err
		}
	}

	if len(entries) > 0 {
		rows := make([]any, 0, len(entries))
		for i, e := range entries {
			rows = append(rows, goqu.Record{
				"seq":              i + 1,
				"id":               e.ID,
				"commercial_name":  strings.TrimSpace(e.CommercialName),
				"generic_name":     strings.TrimSpace(e.GenericName),
				"dosage_text":      e.DosageText,
				"category":         e.Category,
				"price_units":      e.PriceUnits,
				"pharmacy_id":      e.PharmacyID,
				"quantity_on_hand": e.QuantityOnHand,
				"is_donation":      e.IsDonation,
			})
		}
		if err = r.insert(ctx, tx, EntriesTable, rows); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

// insertBatch keeps statements below the sqlite variable limit
const insertBatch = 50

func (r *SQLReader) insert(ctx context.Context, tx *sql.Tx, table string, rows []any) error {
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		query, args, err := r.qb.Insert(table).Rows(rows[start:end]...).Prepared(true).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}
