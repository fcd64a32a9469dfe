// Package ocrtext turns raw recognized text into clean candidate lines and
// detects dosage expressions on them.
package ocrtext

import (
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMinLineLength is the shortest line, in runes, kept by the normalizer
const DefaultMinLineLength = 3

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reBlankRuns  = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	reBoxNoise   = regexp.MustCompile(`^[\s_\-=*.|]+$`)
	reNoiseWords = regexp.MustCompile(`(?i)(^|[^\p{L}])(dr|docteur|doctor|pr|professeur|t[eé]l|t[eé]l[eé]phone|phone|mobile|gsm|fax|adresse|address|date|cabinet|clinique|email|e-mail|courriel|n[eé]\(?e?\)?\s+le|ordre\s+des\s+m[eé]decins|sp[eé]cialiste|هاتف|الهاتف|فاكس|عنوان|العنوان|تاريخ|التاريخ|دكتور|الدكتور|طبيب)([^\p{L}]|$)`)
)

// Normalizer splits OCR output into meaningful lines
type Normalizer struct {
	MinLineLength int
}

// NewNormalizer creates a normalizer with the default minimum line length
func NewNormalizer() *Normalizer {
	return &Normalizer{MinLineLength: DefaultMinLineLength}
}

// Lines returns the cleaned candidate lines of text, in order
func (n *Normalizer) Lines(text string) []string {
	var lines []string
	for line := range n.All(text) {
		lines = append(lines, line)
	}
	return lines
}

// All yields the cleaned candidate lines of text. The sequence can be ranged
// over as many times as needed.
func (n *Normalizer) All(text string) iter.Seq[string] {
	minLen := n.MinLineLength
	if minLen <= 0 {
		minLen = DefaultMinLineLength
	}

	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		text := norm.NFKC.String(text)
		text = reCRLF.ReplaceAllString(text, "\n")

		for raw := range strings.SplitSeq(text, "\n") {
			line := CleanLine(raw)
			if utf8.RuneCountInString(line) < minLen {
				continue
			}
			if IsNoise(line) {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// CleanLine collapses blank runs and trims the line
func CleanLine(line string) string {
	line = reBlankRuns.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// IsNoise reports whether a line is a prescription header or a separator
// rather than a medication line.
func IsNoise(line string) bool {
	if reBoxNoise.MatchString(line) {
		return true
	}
	return reNoiseWords.MatchString(line)
}

// Tokens splits a line on whitespace
func Tokens(line string) []string {
	return strings.Fields(line)
}
