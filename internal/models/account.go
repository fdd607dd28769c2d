package models

import (
	"strings"
	"time"
)

// Account represents a registered user's identity and credential
type Account struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	PasswordDigest string     `json:"-" db:"password_digest"` // never sent to client
	ConfirmedAt    *time.Time `json:"confirmed_at" db:"confirmed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsConfirmed returns true once the account's email has been confirmed
func (a *Account) IsConfirmed() bool {
	return a.ConfirmedAt != nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Every email comparison and write goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
