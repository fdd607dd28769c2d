package auth

import (
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/parth-sh/backend-api/internal/config"
	"github.com/parth-sh/backend-api/internal/session"
)

// New wires the auth components from the application config.
func New(cfg *config.Config, accounts AccountStore, sessions session.Store, mailer Mailer, logger *slog.Logger) (*Flows, error) {
	if cost := cfg.Password.BcryptCost; cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside %d..%d", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	tokens, err := NewTokenCodec(cfg.Tokens.Secret)
	if err != nil {
		return nil, err
	}

	return NewFlows(FlowsOptions{
		Accounts: accounts,
		Credentials: NewCredentials(accounts, PasswordPolicy{
			MinLength:  cfg.Password.MinLength,
			BcryptCost: cfg.Password.BcryptCost,
		}, logger),
		Sessions: NewSessionManager(sessions, accounts, SessionOptions{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
		}, logger),
		Tokens: tokens,
		Mailer: mailer,
		TTLs: TokenTTLs{
			PasswordReset:     cfg.Tokens.PasswordResetTTL,
			EmailConfirmation: cfg.Tokens.EmailConfirmationTTL,
		},
		Logger: logger,
	}), nil
}
