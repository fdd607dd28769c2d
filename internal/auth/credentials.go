package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/parth-sh/backend-api/internal/models"
	"github.com/parth-sh/backend-api/internal/store"
)

// AccountStore is the persistence the auth flows need. *store.Store
// implements it.
type AccountStore interface {
	CreateAccount(ctx context.Context, email, passwordDigest string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	UpdatePasswordDigest(ctx context.Context, id, passwordDigest string) error
	Confirm(ctx context.Context, id string, at time.Time) (bool, error)
}

// Credentials is the only component that reads or writes password digests.
type Credentials struct {
	accounts AccountStore
	policy   PasswordPolicy
	logger   *slog.Logger

	dummyOnce   sync.Once
	dummyDigest []byte
}

// NewCredentials creates a new Credentials
func NewCredentials(accounts AccountStore, policy PasswordPolicy, logger *slog.Logger) *Credentials {
	if policy.BcryptCost == 0 {
		policy.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Credentials{
		accounts: accounts,
		policy:   policy,
		logger:   logger.With("component", "auth.credentials"),
	}
}

func (c *Credentials) hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), c.policy.BcryptCost)
	if err != nil {
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return string(digest), nil
}

// dummyCompare burns the same bcrypt work as a real check so unknown
// emails take as long as wrong passwords.
func (c *Credentials) dummyCompare(password string) {
	c.dummyOnce.Do(func() {
		c.dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), c.policy.BcryptCost)
	})
	bcrypt.CompareHashAndPassword(c.dummyDigest, []byte(password))
}

// CheckPassword reports whether password matches the account's digest.
func (c *Credentials) CheckPassword(account *models.Account, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordDigest), []byte(password)) == nil
}

// Authenticate returns the account for email if password matches. Any
// mismatch, including an unknown email, returns ErrInvalidCredentials.
func (c *Credentials) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := c.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		c.dummyCompare(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !c.CheckPassword(account, password) {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// Register validates the input and creates an unconfirmed account.
func (c *Credentials) Register(ctx context.Context, email, password, confirmation string) (*models.Account, error) {
	v := &ValidationError{}
	email = models.NormalizeEmail(email)
	validateEmail(email, v)
	if len(v.Messages) == 0 {
		_, err := c.accounts.GetAccountByEmail(ctx, email)
		switch {
		case err == nil:
			v.add("Email has already been taken")
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	c.policy.validate(password, confirmation, v)
	if err := v.errOrNil(); err != nil {
		return nil, err
	}

	digest, err := c.hash(password)
	if err != nil {
		return nil, err
	}

	account, err := c.accounts.CreateAccount(ctx, email, digest)
	if errors.Is(err, store.ErrEmailTaken) {
		return nil, &ValidationError{Messages: []string{"Email has already been taken"}}
	}
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "account registered", "account_id", account.ID)
	return account, nil
}

// SetPassword validates and stores a new password for account. The new
// digest carries a fresh salt, which invalidates outstanding reset tokens.
func (c *Credentials) SetPassword(ctx context.Context, account *models.Account, password, confirmation string) error {
	v := &ValidationError{}
	c.policy.validate(password, confirmation, v)
	if err := v.errOrNil(); err != nil {
		return err
	}
	return c.setDigest(ctx, account, password)
}

func (c *Credentials) setDigest(ctx context.Context, account *models.Account, password string) error {
	digest, err := c.hash(password)
	if err != nil {
		return err
	}
	if err := c.accounts.UpdatePasswordDigest(ctx, account.ID, digest); err != nil {
		return err
	}
	account.PasswordDigest = digest

	c.logger.InfoContext(ctx, "password updated", "account_id", account.ID)
	return nil
}

// ChangePassword is SetPassword gated on the current password.
func (c *Credentials) ChangePassword(ctx context.Context, account *models.Account, password, confirmation, challenge string) error {
	v := &ValidationError{}
	if !c.CheckPassword(account, challenge) {
		v.add("Password challenge is invalid")
	}
	c.policy.validate(password, confirmation, v)
	if err := v.errOrNil(); err != nil {
		return err
	}
	return c.setDigest(ctx, account, password)
}
