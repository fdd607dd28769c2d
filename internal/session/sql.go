package session

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/parth-sh/backend-api/internal/database"
)

// SQLStore keeps sessions in the sessions table.
type SQLStore struct {
	db     *database.DB
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLStore creates a new SQLStore
func NewSQLStore(db *database.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{
		db:     db,
		now:    time.Now,
		logger: logger.With("component", "session.sql"),
	}
}

func (s *SQLStore) Get(ctx context.Context, id string) (string, error) {
	var (
		accountID string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		s.db.Dialect.Rebind("SELECT account_id, expires_at FROM sessions WHERE id_hash = ?"),
		HashID(id),
	).Scan(&accountID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oops.Code("SESSION_LOOKUP_FAILED").With("store", "sql").Wrap(err)
	}

	if !s.now().Before(expiresAt) {
		if err := s.Delete(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to delete expired session", "error", err)
		}
		return "", ErrNotFound
	}
	return accountID, nil
}

func (s *SQLStore) Put(ctx context.Context, id, accountID string, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		s.db.Dialect.Rebind("INSERT INTO sessions (id_hash, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)"),
		HashID(id), accountID, now, now.Add(ttl),
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("store", "sql").Wrap(err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Dialect.Rebind("DELETE FROM sessions WHERE id_hash = ?"),
		HashID(id),
	)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("store", "sql").Wrap(err)
	}
	return nil
}

// CleanupExpired removes expired session rows and returns how many went.
func (s *SQLStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Dialect.Rebind("DELETE FROM sessions WHERE expires_at <= ?"),
		s.now().UTC(),
	)
	if err != nil {
		return 0, oops.Code("SESSION_CLEANUP_FAILED").With("store", "sql").Wrap(err)
	}
	return result.RowsAffected()
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
func (s *SQLStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		removed, err := s.CleanupExpired(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "error cleaning up expired sessions", "error", err)
		} else if removed > 0 {
			s.logger.InfoContext(ctx, "removed expired sessions", "count", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
