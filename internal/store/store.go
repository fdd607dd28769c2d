package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/parth-sh/backend-api/internal/database"
	"github.com/parth-sh/backend-api/internal/models"
)

var (
	ErrNotFound   = errors.New("account not found")
	ErrEmailTaken = errors.New("email already taken")
)

const accountColumns = "id, email, password_digest, confirmed_at, created_at, updated_at"

// Store handles account persistence
type Store struct {
	db  *database.DB
	now func() time.Time
}

// New creates a new store instance
func New(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// timestamp normalizes times to what both drivers round-trip losslessly.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a           models.Account
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordDigest, &confirmedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := timestamp(confirmedAt.Time)
		a.ConfirmedAt = &t
	}
	a.CreatedAt = timestamp(a.CreatedAt)
	a.UpdatedAt = timestamp(a.UpdatedAt)
	return &a, nil
}

// CreateAccount inserts an unconfirmed account. The email is normalized
// before it is stored.
func (s *Store) CreateAccount(ctx context.Context, email, passwordDigest string) (*models.Account, error) {
	now := timestamp(s.now())
	account := &models.Account{
		ID:             uuid.NewString(),
		Email:          models.NormalizeEmail(email),
		PasswordDigest: passwordDigest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.ExecContext(ctx,
		s.db.Dialect.Rebind("INSERT INTO accounts (id, email, password_digest, confirmed_at, created_at, updated_at) VALUES (?, ?, ?, NULL, ?, ?)"),
		account.ID, account.Email, account.PasswordDigest, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "CreateAccount").Wrap(err)
	}

	return account, nil
}

// GetAccountByEmail retrieves an account by its normalized email
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Dialect.Rebind("SELECT "+accountColumns+" FROM accounts WHERE email = ?"),
		models.NormalizeEmail(email),
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "GetAccountByEmail").Wrap(err)
	}
	return account, nil
}

// GetAccountByID retrieves an account by ID
func (s *Store) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Dialect.Rebind("SELECT "+accountColumns+" FROM accounts WHERE id = ?"),
		id,
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "GetAccountByID").Wrap(err)
	}
	return account, nil
}

// UpdatePasswordDigest replaces the stored password digest in a single
// row update.
func (s *Store) UpdatePasswordDigest(ctx context.Context, id, passwordDigest string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Dialect.Rebind("UPDATE accounts SET password_digest = ?, updated_at = ? WHERE id = ?"),
		passwordDigest, timestamp(s.now()), id,
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "UpdatePasswordDigest").Wrap(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "UpdatePasswordDigest").Wrap(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Confirm sets the confirmation timestamp if it is not already set.
// It reports whether this call performed the confirmation.
func (s *Store) Confirm(ctx context.Context, id string, at time.Time) (bool, error) {
	at = timestamp(at)
	result, err := s.db.ExecContext(ctx,
		s.db.Dialect.Rebind("UPDATE accounts SET confirmed_at = ?, updated_at = ? WHERE id = ? AND confirmed_at IS NULL"),
		at, at, id,
	)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "Confirm").Wrap(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "Confirm").Wrap(err)
	}
	return rows == 1, nil
}
