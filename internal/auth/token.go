package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zeebo/blake3"

	"github.com/parth-sh/backend-api/internal/config"
	"github.com/parth-sh/backend-api/internal/store"
)

const fingerprintKeyContext = "backend-api 2024-06 purpose token fingerprint"

// TokenClaims represents the claims in a purpose token
type TokenClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fgp"`
	jwt.RegisteredClaims
}

// FingerprintFunc returns the live fingerprint for an account. Returning
// an error matching store.ErrNotFound marks the token stale.
type FingerprintFunc func(ctx context.Context, accountID string) (string, error)

// TokenCodec issues and verifies signed, expiring, purpose-scoped tokens.
// Tokens are never stored; validity is recomputed from account state.
type TokenCodec struct {
	secretKey      []byte
	fingerprintKey [32]byte
	now            func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a new TokenCodec
func NewTokenCodec(secret string, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < config.MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", config.MinSecretLength)
	}

	c := &TokenCodec{
		secretKey: []byte(secret),
		now:       time.Now,
	}
	blake3.DeriveKey(fingerprintKeyContext, c.secretKey, c.fingerprintKey[:])

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// digest hides the raw fingerprint so account state never appears in a
// token in a reversible form.
func (c *TokenCodec) digest(purpose Purpose, fingerprint string) string {
	hasher, err := blake3.NewKeyed(c.fingerprintKey[:])
	if err != nil {
		panic("auth: blake3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(purpose.String()))
	hasher.Write([]byte{0})
	hasher.Write([]byte(fingerprint))
	return base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
}

// Issue creates a token for accountID that is valid for ttl.
func (c *TokenCodec) Issue(accountID string, purpose Purpose, ttl time.Duration, fingerprint string) (string, error) {
	if purpose.String() == "" {
		return "", fmt.Errorf("unknown token purpose %d", purpose)
	}

	now := c.now()
	claims := TokenClaims{
		Purpose:     purpose.String(),
		Fingerprint: c.digest(purpose, fingerprint),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry(now, ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secretKey)
}

// expiry returns now+ttl rounded up to the claim precision, so the encoded
// exp is never earlier than the real expiry instant.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if t := exp.Truncate(jwt.TimePrecision); t.Before(exp) {
		return t.Add(jwt.TimePrecision)
	}
	return exp
}

// Verify checks a token for purpose and returns the account it was issued
// for. Checks run in order: signature, purpose, expiry, fingerprint.
func (c *TokenCodec) Verify(ctx context.Context, tokenString string, purpose Purpose, current FingerprintFunc) (string, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", &TokenError{Kind: Tampered, Err: err}
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return "", &TokenError{Kind: Tampered}
	}

	if claims.Purpose != purpose.String() {
		return "", &TokenError{Kind: WrongPurpose}
	}

	if c.now().After(claims.ExpiresAt.Time) {
		return "", &TokenError{Kind: Expired}
	}

	fingerprint, err := current(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return "", &TokenError{Kind: Stale, Err: err}
	}
	if err != nil {
		return "", err
	}

	want := c.digest(purpose, fingerprint)
	if subtle.ConstantTimeCompare([]byte(want), []byte(claims.Fingerprint)) != 1 {
		return "", &TokenError{Kind: Stale}
	}

	return claims.Subject, nil
}
