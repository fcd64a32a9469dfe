// Package chifa validates CHIFA insurance card numbers and produces the daily
// verification token shown next to a validated card.
//
// The token is a SHA-256 digest of the number, the status and the UTC day. It
// makes tampering with a displayed status evident within the day but holds no
// secret: anyone knowing the number can recompute it.
package chifa

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/interfaces"
)

// DefaultNumberLength is the digit count of a CHIFA number
const DefaultNumberLength = 10

const dayLayout = "2006-01-02"

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }

// Validator checks and signs insurance numbers
type Validator struct {
	numberLength int
	clock        interfaces.Clock
}

// NewValidator creates a validator. A non positive length selects the
// default, a nil clock the system clock.
func NewValidator(numberLength int, clock interfaces.Clock) *Validator {
	if numberLength <= 0 {
		numberLength = DefaultNumberLength
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Validator{numberLength: numberLength, clock: clock}
}

// Normalize removes every whitespace rune from number
func Normalize(number string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, number)
}

// Validate reports whether number has the CHIFA format, whitespace ignored
func (v *Validator) Validate(number string) bool {
	number = Normalize(number)
	if len(number) != v.numberLength {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}

// GenerateHash returns the verification token of number and status for the current UTC day
func (v *Validator) GenerateHash(number, status string) string {
	return hashFor(Normalize(number), status, v.clock.Now())
}

// Verify recomputes today's token and compares it with hash
func (v *Validator) Verify(number, status, hash string) bool {
	want := v.GenerateHash(number, status)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(strings.TrimSpace(hash)))) == 1
}

// Identify builds the identity of number. Malformed numbers are reported
// as invalid whatever the requested status.
func (v *Validator) Identify(number, status string) entities.InsuranceIdentity {
	number = Normalize(number)
	identity := entities.InsuranceIdentity{
		Number:        number,
		IsValidFormat: v.Validate(number),
	}

	if !identity.IsValidFormat {
		identity.Status = entities.StatusInvalid
		return identity
	}

	switch status {
	case entities.StatusActive, entities.StatusPending:
		identity.Status = status
	default:
		identity.Status = entities.StatusPending
	}

	now := v.clock.Now().UTC()
	identity.VerificationHash = hashFor(number, identity.Status, now)
	identity.ValidUntil = time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
	return identity
}

func hashFor(number, status string, at time.Time) string {
	sum := sha256.Sum256([]byte(number + "|" + status + "|" + at.UTC().Format(dayLayout)))
	return hex.EncodeToString(sum[:])
}
