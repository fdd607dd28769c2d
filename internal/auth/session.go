package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/parth-sh/backend-api/internal/models"
	"github.com/parth-sh/backend-api/internal/session"
	"github.com/parth-sh/backend-api/internal/store"
)

// Session is the request-scoped view of the caller's session. It lives in
// the request context and is never shared between requests.
type Session struct {
	id        string
	accountID string

	account  *models.Account
	resolved bool

	// changed is set when the cookie has to be rewritten.
	changed bool
}

// AccountID returns the bound account id, or "".
func (s *Session) AccountID() string {
	return s.accountID
}

// Changed reports whether the session id changed during this request.
func (s *Session) Changed() bool {
	return s.changed
}

type sessionContextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session stored in ctx by NewContext.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok
}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// SessionManager binds and unbinds accounts to sessions.
type SessionManager struct {
	store    session.Store
	accounts AccountStore
	opts     SessionOptions
	logger   *slog.Logger
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(sessions session.Store, accounts AccountStore, opts SessionOptions, logger *slog.Logger) *SessionManager {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:    sessions,
		accounts: accounts,
		opts:     opts,
		logger:   logger.With("component", "auth.session"),
	}
}

// CookieName returns the name of the session cookie.
func (m *SessionManager) CookieName() string {
	return m.opts.CookieName
}

// Load builds the request's Session from its cookie. A missing or unknown
// session id yields an anonymous session.
func (m *SessionManager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}, nil
	}

	accountID, err := m.store.Get(r.Context(), cookie.Value)
	if errors.Is(err, session.ErrNotFound) {
		// stale cookie, clear it on the way out
		return &Session{changed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Session{id: cookie.Value, accountID: accountID}, nil
}

// Login binds account to s under a freshly generated id. Any previous
// binding is removed first.
func (m *SessionManager) Login(ctx context.Context, s *Session, account *models.Account) error {
	if s.id != "" {
		if err := m.store.Delete(ctx, s.id); err != nil {
			return err
		}
	}

	id, err := session.NewID()
	if err != nil {
		return oops.Code("SESSION_ID_FAILED").Wrap(err)
	}
	if err := m.store.Put(ctx, id, account.ID, m.opts.TTL); err != nil {
		return err
	}

	s.id = id
	s.accountID = account.ID
	s.account = account
	s.resolved = true
	s.changed = true

	m.logger.InfoContext(ctx, "session started", "account_id", account.ID)
	return nil
}

// Logout removes the binding and leaves s anonymous.
func (m *SessionManager) Logout(ctx context.Context, s *Session) error {
	if s.id != "" {
		if err := m.store.Delete(ctx, s.id); err != nil {
			return err
		}
	}
	if s.accountID != "" {
		m.logger.InfoContext(ctx, "session ended", "account_id", s.accountID)
	}

	s.id = ""
	s.accountID = ""
	s.account = nil
	s.resolved = true
	s.changed = true
	return nil
}

// CurrentAccount resolves the bound account at most once per request. It
// returns ErrUnauthenticated when nothing is bound or the account is gone.
func (m *SessionManager) CurrentAccount(ctx context.Context, s *Session) (*models.Account, error) {
	if s.resolved {
		if s.account == nil {
			return nil, ErrUnauthenticated
		}
		return s.account, nil
	}
	if s.accountID == "" {
		s.resolved = true
		return nil, ErrUnauthenticated
	}

	account, err := m.accounts.GetAccountByID(ctx, s.accountID)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.WarnContext(ctx, "session bound to missing account", "account_id", s.accountID)
		if err := m.Logout(ctx, s); err != nil {
			return nil, err
		}
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	s.account = account
	s.resolved = true
	return account, nil
}

// WriteCookie sets or clears the session cookie if the id changed.
func (m *SessionManager) WriteCookie(w http.ResponseWriter, s *Session) {
	if s == nil || !s.changed {
		return
	}

	cookie := &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    s.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.id == "" {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(m.opts.TTL / time.Second)
	}
	http.SetCookie(w, cookie)
	s.changed = false
}
