package catalogstore

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
)

// Export file names, relative to the importer location
const (
	PharmaciesFile = "pharmacies.txt"
	StockFile      = "stock.txt"
)

const (
	pharmacyColumnCount = 4
	stockColumnCount    = 9
	maxLineSize         = 1024 * 1024
)

var _ interfaces.CatalogSource = (*TSVImporter)(nil)

// SkipStats counts the lines ignored while parsing an export file
type SkipStats struct {
	TotalLines     int
	EmptyLines     int
	MissingColumns int
	FormatErrors   int
}

// Skipped returns the number of ignored lines
func (s SkipStats) Skipped() int {
	return s.EmptyLines + s.MissingColumns + s.FormatErrors
}

// TSVImporter loads the tab separated stock exports produced by pharmacy
// software. The location is either a local directory or an http(s) base URL
// holding pharmacies.txt and stock.txt. Files may be UTF-8 or ISO-8859-1.
//
// pharmacies.txt columns: id, name, address, region
// stock.txt columns: id, commercial name, generic name, dosage, category,
// price, pharmacy id, quantity, donation flag
type TSVImporter struct {
	location string
	client   *http.Client
}

// NewTSVImporter creates an importer reading from location
func NewTSVImporter(location string) *TSVImporter {
	return &TSVImporter{
		location: strings.TrimRight(location, "/"),
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name implements CatalogSource
func (t *TSVImporter) Name() string {
	return "tsv"
}

// Load implements CatalogSource
func (t *TSVImporter) Load(ctx context.Context) ([]entities.MedicineCatalogEntry, []entities.Pharmacy, error) {
	pharmacyData, err := t.fetch(ctx, PharmaciesFile)
	if err != nil {
		return nil, nil, err
	}
	stockData, err := t.fetch(ctx, StockFile)
	if err != nil {
		return nil, nil, err
	}

	pharmacies, stats, err := ParsePharmacies(decode(pharmacyData))
	if err != nil {
		return nil, nil, err
	}
	logSkipStats(PharmaciesFile, stats, len(pharmacies))

	entries, stats, err := ParseStock(decode(stockData))
	if err != nil {
		return nil, nil, err
	}
	logSkipStats(StockFile, stats, len(entries))

	return entries, pharmacies, nil
}

func (t *TSVImporter) isRemote() bool {
	return strings.HasPrefix(t.location, "http://") || strings.HasPrefix(t.location, "https://")
}

// fetch reads a whole export file
func (t *TSVImporter) fetch(ctx context.Context, name string) ([]byte, error) {
	if !t.isRemote() {
		path := filepath.Join(t.location, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}

	url := t.location + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}

// decode returns a UTF-8 reader, exports that are not valid UTF-8 are read as ISO-8859-1
func decode(data []byte) io.Reader {
	if utf8.Valid(data) {
		return bytes.NewReader(data)
	}
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(data))
}

func logSkipStats(file string, stats SkipStats, parsed int) {
	if stats.Skipped() == 0 {
		return
	}
	logging.Info(file+" skip statistics",
		"empty_lines", stats.EmptyLines,
		"missing_columns", stats.MissingColumns,
		"format_errors", stats.FormatErrors,
		"total_lines", stats.TotalLines,
		"records_parsed", parsed)
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// ParsePharmacies reads a pharmacies export. Malformed lines are skipped and counted.
func ParsePharmacies(r io.Reader) ([]entities.Pharmacy, SkipStats, error) {
	var stats SkipStats
	pharmacies := []entities.Pharmacy{}

	scanner := newScanner(r)
	for scanner.Scan() {
		stats.TotalLines++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			stats.EmptyLines++
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < pharmacyColumnCount {
			stats.MissingColumns++
			continue
		}

		id := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		if id == "" || name == "" {
			stats.FormatErrors++
			continue
		}

		pharmacies = append(pharmacies, entities.Pharmacy{
			ID:      id,
			Name:    name,
			Address: strings.TrimSpace(fields[2]),
			Region:  strings.TrimSpace(fields[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read pharmacies export: %w", err)
	}

	return pharmacies, stats, nil
}

// ParseStock reads a stock export. Malformed lines are skipped and counted.
func ParseStock(r io.Reader) ([]entities.MedicineCatalogEntry, SkipStats, error) {
	var stats SkipStats
	entries := []entities.MedicineCatalogEntry{}

	scanner := newScanner(r)
	for scanner.Scan() {
		stats.TotalLines++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			stats.EmptyLines++
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < stockColumnCount {
			stats.MissingColumns++
			continue
		}

		id := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		pharmacyID := strings.TrimSpace(fields[6])
		if id == "" || name == "" || pharmacyID == "" {
			stats.FormatErrors++
			continue
		}

		price, err := ParsePrice(fields[5])
		if err != nil {
			stats.FormatErrors++
			continue
		}

		quantity, err := strconv.ParseInt(strings.TrimSpace(fields[7]), 10, 64)
		if err != nil || quantity < 0 {
			stats.FormatErrors++
			continue
		}

		entries = append(entries, entities.MedicineCatalogEntry{
			ID:             id,
			CommercialName: name,
			GenericName:    strings.TrimSpace(fields[2]),
			DosageText:     strings.TrimSpace(fields[3]),
			Category:       strings.ToUpper(strings.TrimSpace(fields[4])),
			PriceUnits:     price,
			PharmacyID:     pharmacyID,
			QuantityOnHand: quantity,
			IsDonation:     parseFlag(fields[8]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read stock export: %w", err)
	}

	return entries, stats, nil
}

// ParsePrice reads a price in DZD rounded to the unit. Exports use spaces or
// dots as thousands separators and a comma as decimal separator
// ("1 250,50", "1.250,50"). An empty price is 0.
func ParsePrice(raw string) (int64, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return 0, nil
	}

	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		// keep only the last comma as decimal separator
		if n := strings.Count(s, ","); n > 1 {
			s = strings.Replace(s, ",", "", n-1)
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price value '%s': %w", raw, err)
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid price value '%s'", raw)
	}
	return int64(math.Round(value)), nil
}

func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "oui", "yes", "o", "y":
		return true
	}
	return false
}
