package auth

import (
	"time"

	"github.com/parth-sh/backend-api/internal/models"
)

// Purpose scopes a token to exactly one action.
type Purpose int

const (
	PurposePasswordReset Purpose = iota + 1
	PurposeEmailConfirmation
)

func (p Purpose) String() string {
	switch p {
	case PurposePasswordReset:
		return "password_reset"
	case PurposeEmailConfirmation:
		return "email_confirmation"
	default:
		return ""
	}
}

// bcrypt digests look like $2a$12$<22 char salt><31 char hash>.
const (
	bcryptSaltEnd  = 29
	resetSaltChars = 10
)

// Fingerprint derives the part of the account's current state that a token
// of this purpose is bound to. A token stops verifying as soon as this
// value changes.
func (p Purpose) Fingerprint(a *models.Account) string {
	switch p {
	case PurposePasswordReset:
		if len(a.PasswordDigest) < bcryptSaltEnd {
			return ""
		}
		return a.PasswordDigest[bcryptSaltEnd-resetSaltChars : bcryptSaltEnd]
	case PurposeEmailConfirmation:
		confirmedAt := ""
		if a.ConfirmedAt != nil {
			confirmedAt = a.ConfirmedAt.UTC().Format(time.RFC3339Nano)
		}
		return a.Email + confirmedAt
	default:
		return ""
	}
}

// TokenTTLs holds the expiry window for each purpose.
type TokenTTLs struct {
	PasswordReset     time.Duration
	EmailConfirmation time.Duration
}

// DefaultTokenTTLs returns the standard windows: short for password
// resets, a day for email confirmation.
func DefaultTokenTTLs() TokenTTLs {
	return TokenTTLs{
		PasswordReset:     15 * time.Minute,
		EmailConfirmation: 24 * time.Hour,
	}
}

// For returns the expiry window for p.
func (t TokenTTLs) For(p Purpose) time.Duration {
	switch p {
	case PurposePasswordReset:
		return t.PasswordReset
	case PurposeEmailConfirmation:
		return t.EmailConfirmation
	default:
		return 0
	}
}
