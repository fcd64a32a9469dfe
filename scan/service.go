// Package scan runs the prescription pipeline: OCR, normalization, candidate
// extraction and stock resolution.
package scan

import (
	"context"
	"errors"
	"strings"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/extractor"
	"github.com/giygas/cnas-api/interfaces"
	"github.com/giygas/cnas-api/logging"
	"github.com/giygas/cnas-api/metrics"
	"github.com/giygas/cnas-api/ocrtext"
	"github.com/giygas/cnas-api/resolver"
	"github.com/google/uuid"
)

// NoMedicinesMessage is returned instead of an error when nothing usable was recognized
const NoMedicinesMessage = "no medicines identified"

// Scan outcomes, used as metric labels
const (
	OutcomeDetected  = "detected"
	OutcomeEmpty     = "empty"
	OutcomeOCRFailed = "ocr_failed"
	OutcomeCancelled = "cancelled"
)

// CatalogSnapshot gives the extractor the entries to match against
type CatalogSnapshot interface {
	GetEntries() []entities.MedicineCatalogEntry
}

// Service scans prescriptions. It holds no per-scan state and is safe for
// concurrent use.
type Service struct {
	engine     interfaces.OCREngine
	catalog    CatalogSnapshot
	normalizer *ocrtext.Normalizer
	extractor  *extractor.Extractor
	resolver   *resolver.Resolver
	newID      func() string
}

// Option configures a Service
type Option func(*Service)

// WithNormalizer replaces the default line normalizer
func WithNormalizer(n *ocrtext.Normalizer) Option {
	return func(s *Service) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// WithIDGenerator replaces the scan id generator
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService wires the pipeline stages together
func NewService(engine interfaces.OCREngine, catalog CatalogSnapshot, ext *extractor.Extractor, res *resolver.Resolver, opts ...Option) *Service {
	s := &Service{
		engine:     engine,
		catalog:    catalog,
		normalizer: ocrtext.NewNormalizer(),
		extractor:  ext,
		resolver:   res,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan recognizes image and resolves the medicines found on it for a caller
// located in region. OCR failures degrade to an empty result carrying
// NoMedicinesMessage. The only error returned is the context error when the
// caller gave up, in which case no result is produced.
func (s *Service) Scan(ctx context.Context, image []byte, region string, progress func(float64)) (entities.ScanResult, error) {
	result, err := s.engine.Recognize(ctx, image, progress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			metrics.ScansTotal.WithLabelValues(OutcomeCancelled).Inc()
			return entities.ScanResult{}, ctxErr
		}

		logging.Warn("OCR recognition failed", "error", err, "bytes", len(image))
		metrics.ScansTotal.WithLabelValues(OutcomeOCRFailed).Inc()
		return s.emptyResult(0), nil
	}

	return s.ScanText(ctx, result.Text, region)
}

// ScanText runs the pipeline on already recognized text
func (s *Service) ScanText(ctx context.Context, text, region string) (entities.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		metrics.ScansTotal.WithLabelValues(OutcomeCancelled).Inc()
		return entities.ScanResult{}, err
	}

	lines := s.normalizer.Lines(text)
	detections := s.extractor.Extract(lines, s.catalog.GetEntries())
	if len(detections) == 0 {
		metrics.ScansTotal.WithLabelValues(OutcomeEmpty).Inc()
		return s.emptyResult(len(lines)), nil
	}

	for _, err := range extractor.Ambiguities(detections) {
		logging.Info("Ambiguous prescription line, returning every candidate", "error", err)
	}

	detections = s.resolver.Resolve(ctx, detections, strings.TrimSpace(region))

	for _, d := range detections {
		kind := "matched"
		if d.Provisional {
			kind = "provisional"
		}
		metrics.DetectionsTotal.WithLabelValues(kind).Inc()
	}
	metrics.ScansTotal.WithLabelValues(OutcomeDetected).Inc()

	scanID := s.newID()
	logging.Debug("Prescription scanned", "scan_id", scanID, "lines", len(lines), "detections", len(detections))

	return entities.ScanResult{
		ScanID:     scanID,
		Detections: detections,
		LineCount:  len(lines),
	}, nil
}

func (s *Service) emptyResult(lineCount int) entities.ScanResult {
	return entities.ScanResult{
		ScanID:     s.newID(),
		Detections: []entities.OCRDetection{},
		LineCount:  lineCount,
		Message:    NoMedicinesMessage,
	}
}
