// Package extractor turns normalized prescription lines into ranked
// medicine detections by fuzzy-matching them against a catalog snapshot.
package extractor

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/cnas-api/apperrors"
	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/fuzzy"
	"github.com/giygas/cnas-api/ocrtext"
)

const (
	// DefaultAcceptanceThreshold is the similarity a token must exceed to match a catalog name
	DefaultAcceptanceThreshold = 0.8

	// DefaultProvisionalConfidence is assigned to names guessed from a dosage position
	DefaultProvisionalConfidence = 70

	minTokenLength         = 4 // tokens must be longer than 3 runes to be scored
	minProvisionalLength   = 4
	minSubstringNameLength = 3
)

// DefaultStopwords are words that precede a dosage without being a medicine
var DefaultStopwords = []string{"dr", "tel", "fax", "cite", "cité", "le", "pendant", "prendre", "boite", "boîte", "fois", "jour", "jours", "matin", "soir", "midi"}

// Config holds the tunable parameters of the extractor
type Config struct {
	AcceptanceThreshold   float64
	ProvisionalConfidence int
	Stopwords             []string
}

// DefaultConfig returns the extractor defaults
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold:   DefaultAcceptanceThreshold,
		ProvisionalConfidence: DefaultProvisionalConfidence,
		Stopwords:             DefaultStopwords,
	}
}

// Validate checks the configured values are usable
func (c Config) Validate() error {
	if c.AcceptanceThreshold < 0 || c.AcceptanceThreshold >= 1 {
		return fmt.Errorf("acceptance threshold must be in [0, 1), got %.2f", c.AcceptanceThreshold)
	}
	if c.ProvisionalConfidence < 0 || c.ProvisionalConfidence > 100 {
		return fmt.Errorf("provisional confidence must be in [0, 100], got %d", c.ProvisionalConfidence)
	}
	return nil
}

// Extractor matches lines against catalog entries
type Extractor struct {
	config    Config
	stopwords []string
}

// New creates an extractor. Invalid values fall back to the defaults.
func New(cfg Config) *Extractor {
	if cfg.Validate() != nil {
		defaults := DefaultConfig()
		if cfg.AcceptanceThreshold < 0 || cfg.AcceptanceThreshold >= 1 {
			cfg.AcceptanceThreshold = defaults.AcceptanceThreshold
		}
		if cfg.ProvisionalConfidence < 0 || cfg.ProvisionalConfidence > 100 {
			cfg.ProvisionalConfidence = defaults.ProvisionalConfidence
		}
	}
	if cfg.Stopwords == nil {
		cfg.Stopwords = DefaultStopwords
	}

	stopwords := make([]string, 0, len(cfg.Stopwords))
	for _, w := range cfg.Stopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			stopwords = append(stopwords, w)
		}
	}

	return &Extractor{config: cfg, stopwords: stopwords}
}

// Config returns the configuration in use
func (e *Extractor) Config() Config {
	return e.config
}

// preparedEntry caches the lower-cased names of a catalog entry
type preparedEntry struct {
	entry      entities.MedicineCatalogEntry
	commercial string
	generic    string
}

func prepare(catalog []entities.MedicineCatalogEntry) []preparedEntry {
	prepared := make([]preparedEntry, 0, len(catalog))
	for _, entry := range catalog {
		commercial := fuzzy.LowerASCII(strings.TrimSpace(entry.CommercialName))
		if commercial == "" {
			continue
		}
		prepared = append(prepared, preparedEntry{
			entry:      entry,
			commercial: commercial,
			generic:    fuzzy.LowerASCII(strings.TrimSpace(entry.GenericName)),
		})
	}
	return prepared
}

// Extract returns the detections found on lines, deduplicated by name and
// sorted by descending confidence. It never fails: empty or unreadable input
// yields an empty slice.
func (e *Extractor) Extract(lines []string, catalog []entities.MedicineCatalogEntry) []entities.OCRDetection {
	prepared := prepare(catalog)

	detections := []entities.OCRDetection{}
	for _, line := range lines {
		detections = append(detections, e.extractLine(line, prepared)...)
	}

	detections = rankAndDeduplicate(detections)
	markAmbiguous(detections)
	return detections
}

// ExtractLine returns every detection of a single line, without deduplication
func (e *Extractor) ExtractLine(line string, catalog []entities.MedicineCatalogEntry) []entities.OCRDetection {
	return e.extractLine(line, prepare(catalog))
}

func (e *Extractor) extractLine(line string, catalog []preparedEntry) []entities.OCRDetection {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	dosage, hasDosage := ocrtext.DetectDosage(line)
	lower := fuzzy.LowerASCII(line)
	tokens := scoringTokens(lower)

	var detections []entities.OCRDetection
	for _, p := range catalog {
		score := max(e.scoreName(lower, tokens, p.commercial), e.scoreName(lower, tokens, p.generic))
		if score <= e.config.AcceptanceThreshold {
			continue
		}

		detection := entities.OCRDetection{
			RawLine:         line,
			Name:            p.entry.CommercialName,
			MatchedEntryID:  p.entry.ID,
			ConfidenceScore: confidence(score),
			GenericName:     p.entry.GenericName,
		}
		if hasDosage {
			detection.DosageText = dosage.Text
		} else {
			detection.DosageText = p.entry.DosageText
		}
		detections = append(detections, detection)
	}

	if len(detections) > 0 || !hasDosage {
		return detections
	}

	name, ok := e.provisionalName(line, dosage)
	if !ok {
		return nil
	}

	return []entities.OCRDetection{{
		RawLine:         line,
		Name:            name,
		ConfidenceScore: e.config.ProvisionalConfidence,
		DosageText:      dosage.Text,
		Provisional:     true,
	}}
}

// scoreName returns 1 when name appears verbatim in the line, otherwise the
// best token similarity
func (e *Extractor) scoreName(line string, tokens []string, name string) float64 {
	if name == "" {
		return 0
	}
	if utf8.RuneCountInString(name) >= minSubstringNameLength && strings.Contains(line, name) {
		return 1.0
	}

	best := 0.0
	for _, token := range tokens {
		if s := fuzzy.Similarity(token, name); s > best {
			best = s
		}
	}
	return best
}

func scoringTokens(line string) []string {
	var tokens []string
	for _, token := range ocrtext.Tokens(line) {
		if utf8.RuneCountInString(token) >= minTokenLength {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// provisionalName takes the word right before the dosage as an unconfirmed medicine name
func (e *Extractor) provisionalName(line string, dosage ocrtext.Dosage) (string, bool) {
	before := ocrtext.Tokens(line[:dosage.Start])
	if len(before) == 0 {
		return "", false
	}
	word := before[len(before)-1]

	if e.isStopword(word) {
		return "", false
	}

	word = strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if utf8.RuneCountInString(word) < minProvisionalLength || !containsLetter(word) {
		return "", false
	}

	return strings.ToUpper(word), true
}

// isStopword is a case-insensitive prefix match, so "Dr." and "Telephone"
// are both rejected.
func (e *Extractor) isStopword(word string) bool {
	lower := strings.ToLower(word)
	for _, stop := range e.stopwords {
		if strings.HasPrefix(lower, stop) {
			return true
		}
	}
	return false
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func confidence(score float64) int {
	c := int(math.Round(score * 100))
	return min(max(c, 0), 100)
}

// rankAndDeduplicate sorts by descending confidence and keeps the first
// detection of each case-insensitive name
func rankAndDeduplicate(detections []entities.OCRDetection) []entities.OCRDetection {
	slices.SortStableFunc(detections, func(a, b entities.OCRDetection) int {
		return b.ConfidenceScore - a.ConfidenceScore
	})

	seen := make(map[string]struct{}, len(detections))
	result := detections[:0]
	for _, d := range detections {
		key := strings.ToLower(d.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, d)
	}
	return result
}

// markAmbiguous flags the detections sharing the best confidence of their
// line with another name
func markAmbiguous(detections []entities.OCRDetection) {
	type lineBest struct {
		score int
		count int
	}
	best := make(map[string]lineBest)
	for _, d := range detections {
		if d.Provisional {
			continue
		}
		b, ok := best[d.RawLine]
		switch {
		case !ok || d.ConfidenceScore > b.score:
			best[d.RawLine] = lineBest{score: d.ConfidenceScore, count: 1}
		case d.ConfidenceScore == b.score:
			b.count++
			best[d.RawLine] = b
		}
	}

	for i := range detections {
		d := &detections[i]
		if b := best[d.RawLine]; !d.Provisional && b.count > 1 && d.ConfidenceScore == b.score {
			d.Ambiguous = true
		}
	}
}

// Ambiguities returns one AmbiguousMatch error per line holding ambiguous
// detections, in detection order
func Ambiguities(detections []entities.OCRDetection) []error {
	var lines []string
	names := make(map[string][]string)
	for _, d := range detections {
		if !d.Ambiguous {
			continue
		}
		if _, ok := names[d.RawLine]; !ok {
			lines = append(lines, d.RawLine)
		}
		names[d.RawLine] = append(names[d.RawLine], d.Name)
	}

	errs := make([]error, 0, len(lines))
	for _, line := range lines {
		errs = append(errs, apperrors.NewAmbiguousMatchError(line, names[line]))
	}
	return errs
}
