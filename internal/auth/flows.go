package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parth-sh/backend-api/internal/models"
	"github.com/parth-sh/backend-api/internal/notify"
	"github.com/parth-sh/backend-api/internal/store"
)

// Mailer hands notifications off without waiting for delivery.
// *notify.Dispatcher implements it.
type Mailer interface {
	Dispatch(n notify.Notification)
}

type FlowsOptions struct {
	Accounts    AccountStore
	Credentials *Credentials
	Sessions    *SessionManager
	Tokens      *TokenCodec
	Mailer      Mailer
	TTLs        TokenTTLs
	Logger      *slog.Logger
	Now         func() time.Time
}

// Flows runs the user-facing auth flows. It is the only component that
// talks to the mailer.
type Flows struct {
	accounts    AccountStore
	credentials *Credentials
	sessions    *SessionManager
	tokens      *TokenCodec
	mailer      Mailer
	ttls        TokenTTLs
	logger      *slog.Logger
	now         func() time.Time
}

// NewFlows creates a new Flows
func NewFlows(opts FlowsOptions) *Flows {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TTLs == (TokenTTLs{}) {
		opts.TTLs = DefaultTokenTTLs()
	}
	return &Flows{
		accounts:    opts.Accounts,
		credentials: opts.Credentials,
		sessions:    opts.Sessions,
		tokens:      opts.Tokens,
		mailer:      opts.Mailer,
		ttls:        opts.TTLs,
		logger:      opts.Logger.With("component", "auth.flows"),
		now:         opts.Now,
	}
}

// Sessions returns the session manager the flows log in through.
func (f *Flows) Sessions() *SessionManager {
	return f.sessions
}

// RequireAuthenticated returns the signed-in account or ErrUnauthenticated.
func (f *Flows) RequireAuthenticated(ctx context.Context, s *Session) (*models.Account, error) {
	return f.sessions.CurrentAccount(ctx, s)
}

// RequireSignedOut fails with ErrAlreadyAuthenticated if s is signed in.
func (f *Flows) RequireSignedOut(ctx context.Context, s *Session) error {
	_, err := f.sessions.CurrentAccount(ctx, s)
	switch {
	case err == nil:
		return ErrAlreadyAuthenticated
	case errors.Is(err, ErrUnauthenticated):
		return nil
	default:
		return err
	}
}

func (f *Flows) fingerprint(p Purpose) FingerprintFunc {
	return func(ctx context.Context, accountID string) (string, error) {
		account, err := f.accounts.GetAccountByID(ctx, accountID)
		if err != nil {
			return "", err
		}
		return p.Fingerprint(account), nil
	}
}

// IssueToken creates a purpose token bound to the account's current state.
func (f *Flows) IssueToken(account *models.Account, p Purpose) (string, error) {
	return f.tokens.Issue(account.ID, p, f.ttls.For(p), p.Fingerprint(account))
}

func (f *Flows) notify(ctx context.Context, account *models.Account, p Purpose) error {
	token, err := f.IssueToken(account, p)
	if err != nil {
		return err
	}
	f.mailer.Dispatch(notify.Notification{
		AccountEmail: account.Email,
		Purpose:      p.String(),
		Token:        token,
	})
	f.logger.InfoContext(ctx, "notification queued", "account_id", account.ID, "purpose", p.String())
	return nil
}

// SignIn authenticates and starts a fresh session. Signing in while
// already signed in rotates the session id.
func (f *Flows) SignIn(ctx context.Context, s *Session, email, password string) (*models.Account, error) {
	account, err := f.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := f.sessions.Login(ctx, s, account); err != nil {
		return nil, err
	}
	f.logger.InfoContext(ctx, "account signed in", "account_id", account.ID, "confirmed", account.IsConfirmed())
	return account, nil
}

// SignOut ends the caller's session.
func (f *Flows) SignOut(ctx context.Context, s *Session) error {
	if _, err := f.RequireAuthenticated(ctx, s); err != nil {
		return err
	}
	return f.sessions.Logout(ctx, s)
}

// Register creates the account, signs it in right away and sends the
// email confirmation token. Unconfirmed accounts can use the app.
func (f *Flows) Register(ctx context.Context, s *Session, email, password, confirmation string) (*models.Account, error) {
	if err := f.RequireSignedOut(ctx, s); err != nil {
		return nil, err
	}

	account, err := f.credentials.Register(ctx, email, password, confirmation)
	if err != nil {
		return nil, err
	}
	if err := f.sessions.Login(ctx, s, account); err != nil {
		return nil, err
	}

	if err := f.notify(ctx, account, PurposeEmailConfirmation); err != nil {
		f.logger.ErrorContext(ctx, "failed to queue confirmation email", "account_id", account.ID, "error", err)
	}
	return account, nil
}

// RequestPasswordReset sends a reset token if the account exists. The
// result is the same either way.
func (f *Flows) RequestPasswordReset(ctx context.Context, s *Session, email string) error {
	if err := f.RequireSignedOut(ctx, s); err != nil {
		return err
	}

	account, err := f.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := f.notify(ctx, account, PurposePasswordReset); err != nil {
		f.logger.ErrorContext(ctx, "failed to queue password reset email", "account_id", account.ID, "error", err)
	}
	return nil
}

// CompletePasswordReset sets a new password using a reset token.
func (f *Flows) CompletePasswordReset(ctx context.Context, s *Session, token, password, confirmation string) error {
	if err := f.RequireSignedOut(ctx, s); err != nil {
		return err
	}

	accountID, err := f.tokens.Verify(ctx, token, PurposePasswordReset, f.fingerprint(PurposePasswordReset))
	if err != nil {
		return err
	}

	account, err := f.accounts.GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return &TokenError{Kind: Stale, Err: err}
	}
	if err != nil {
		return err
	}

	return f.credentials.SetPassword(ctx, account, password, confirmation)
}

// ConfirmEmail marks the account confirmed. A token confirms at most once:
// confirming changes the fingerprint, and a lost race is reported stale.
func (f *Flows) ConfirmEmail(ctx context.Context, token string) error {
	accountID, err := f.tokens.Verify(ctx, token, PurposeEmailConfirmation, f.fingerprint(PurposeEmailConfirmation))
	if err != nil {
		return err
	}

	confirmed, err := f.accounts.Confirm(ctx, accountID, f.now())
	if err != nil {
		return err
	}
	if !confirmed {
		return &TokenError{Kind: Stale}
	}

	f.logger.InfoContext(ctx, "email confirmed", "account_id", accountID)
	return nil
}

// ChangePassword updates the signed-in account's password. The current
// password must be supplied as the challenge.
func (f *Flows) ChangePassword(ctx context.Context, s *Session, password, confirmation, challenge string) error {
	account, err := f.RequireAuthenticated(ctx, s)
	if err != nil {
		return err
	}
	return f.credentials.ChangePassword(ctx, account, password, confirmation, challenge)
}

// LookupAccount finds an account by email for a signed-in caller.
func (f *Flows) LookupAccount(ctx context.Context, s *Session, email string) (*models.Account, error) {
	if _, err := f.RequireAuthenticated(ctx, s); err != nil {
		return nil, err
	}

	account, err := f.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
