package entities

import "time"

// Insurance card statuses
const (
	StatusActive  = "active"
	StatusPending = "pending"
	StatusInvalid = "invalid"
)

// InsuranceIdentity is a CHIFA card number as scanned or typed by a user
type InsuranceIdentity struct {
	Number           string    `json:"number"`
	IsValidFormat    bool      `json:"isValidFormat"`
	Status           string    `json:"status"`
	VerificationHash string    `json:"verificationHash,omitempty"`
	ValidUntil       time.Time `json:"validUntil,omitzero"`
}
