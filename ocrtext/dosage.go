package ocrtext

import (
	"regexp"
	"strings"
)

// reDosage recognizes "<number>(.<number>)? <unit>". The micro sign is listed
// in both its legacy (U+00B5) and NFKC (U+03BC) forms.
var reDosage = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s?(mcg|µg|μg|mg|ml|gel|g|cp|flacon|amp|ui|iu|box|x)\b`)

// Dosage is a dosage expression found on a line. Start and End are byte
// offsets into the line, End exclusive.
type Dosage struct {
	Text  string
	Value string
	Unit  string
	Start int
	End   int
}

// DetectDosage returns the first dosage expression of line
func DetectDosage(line string) (Dosage, bool) {
	loc := reDosage.FindStringSubmatchIndex(line)
	if loc == nil {
		return Dosage{}, false
	}

	return Dosage{
		Text:  line[loc[0]:loc[1]],
		Value: line[loc[2]:loc[3]],
		Unit:  strings.ToLower(line[loc[4]:loc[5]]),
		Start: loc[0],
		End:   loc[1],
	}, true
}

// HasDosage reports whether line carries a dosage expression
func HasDosage(line string) bool {
	return reDosage.MatchString(line)
}
