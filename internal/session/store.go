// Package session holds the server-side session stores that map an opaque
// session id to the account bound to it.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

// IDBytes is the amount of randomness in a session id.
const IDBytes = 32

var ErrNotFound = errors.New("session not found")

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// Store persists session bindings. Implementations only ever see the hash
// of a session id, never the id itself.
type Store interface {
	// Get returns the account bound to the session, or ErrNotFound.
	Get(ctx context.Context, id string) (string, error)

	// Put binds id to accountID for ttl.
	Put(ctx context.Context, id, accountID string, ttl time.Duration) error

	// Delete removes the binding. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// NewID generates a random, URL-safe session id.
func NewID() (string, error) {
	b := make([]byte, IDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashID returns the storage key for a session id.
func HashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
