// Package ocr holds the OCR engines available to the scan pipeline.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"unicode/utf8"

	"github.com/giygas/cnas-api/interfaces"
)

var _ interfaces.OCREngine = (*TextEngine)(nil)

var (
	// ErrEmptyImage is returned when there is nothing to recognize
	ErrEmptyImage = errors.New("empty image")

	// ErrNotText is returned by TextEngine when the payload is not UTF-8 text
	ErrNotText = errors.New("payload is not UTF-8 text")
)

// progressStep is the number of bytes between two progress reports
const progressStep = 4096

// TextEngine is a passthrough engine for already recognized text, used by the
// text extraction endpoint and in tests.
type TextEngine struct {
	// Confidence reported with every result, in [0, 1]
	Confidence float64
}

// NewTextEngine returns a TextEngine reporting full confidence
func NewTextEngine() *TextEngine {
	return &TextEngine{Confidence: 1}
}

// Recognize returns image read as UTF-8 text. progress receives increasing
// values ending at 1 on success. A cancelled context returns the context error
// and no partial text.
func (e *TextEngine) Recognize(ctx context.Context, image []byte, progress func(float64)) (interfaces.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.OCRResult{}, err
	}
	if len(bytes.TrimSpace(image)) == 0 {
		return interfaces.OCRResult{}, ErrEmptyImage
	}
	if !utf8.Valid(image) {
		return interfaces.OCRResult{}, ErrNotText
	}

	for offset := progressStep; ; offset += progressStep {
		if err := ctx.Err(); err != nil {
			return interfaces.OCRResult{}, err
		}
		done := min(offset, len(image))
		if progress != nil {
			progress(float64(done) / float64(len(image)))
		}
		if done == len(image) {
			break
		}
	}

	return interfaces.OCRResult{Text: string(image), Confidence: e.Confidence}, nil
}
