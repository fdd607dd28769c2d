package auth

import (
	"errors"
	"strings"
)

var (
	ErrUnauthenticated      = errors.New("you must be logged in to do that")
	ErrAlreadyAuthenticated = errors.New("you must be logged out to do that")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountNotFound      = errors.New("user not found")

	// ErrInvalidToken matches every *TokenError.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError carries human-readable, field-level messages.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) add(msg string) {
	e.Messages = append(e.Messages, msg)
}

// errOrNil returns e only if it holds at least one message.
func (e *ValidationError) errOrNil() error {
	if len(e.Messages) == 0 {
		return nil
	}
	return e
}

// TokenErrorKind says why a purpose token was rejected.
type TokenErrorKind int

const (
	Tampered TokenErrorKind = iota + 1
	WrongPurpose
	Expired
	Stale
)

func (k TokenErrorKind) String() string {
	switch k {
	case Tampered:
		return "tampered"
	case WrongPurpose:
		return "wrong purpose"
	case Expired:
		return "expired"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// TokenError is returned by TokenCodec.Verify. Callers outside this package
// should only ever surface it as ErrInvalidToken.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

var (
	ErrTokenTampered     = &TokenError{Kind: Tampered}
	ErrTokenWrongPurpose = &TokenError{Kind: WrongPurpose}
	ErrTokenExpired      = &TokenError{Kind: Expired}
	ErrTokenStale        = &TokenError{Kind: Stale}
)

func (e *TokenError) Error() string {
	if e.Err != nil {
		return "token " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "token " + e.Kind.String()
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidToken and any *TokenError of the same kind.
func (e *TokenError) Is(target error) bool {
	if target == ErrInvalidToken {
		return true
	}
	var t *TokenError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}
