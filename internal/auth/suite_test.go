package auth

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/parth-sh/backend-api/internal/config"
	"github.com/parth-sh/backend-api/internal/database"
	"github.com/parth-sh/backend-api/internal/notify"
	"github.com/parth-sh/backend-api/internal/session"
	"github.com/parth-sh/backend-api/internal/store"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (m *recordingMailer) Dispatch(n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

func (m *recordingMailer) Sent() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Notification(nil), m.sent...)
}

// Last returns the most recent notification for purpose.
func (m *recordingMailer) Last(purpose Purpose) (notify.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Purpose == purpose.String() {
			return m.sent[i], true
		}
	}
	return notify.Notification{}, false
}

// AuthTestSuite runs the auth components against a fresh sqlite file
type AuthTestSuite struct {
	suite.Suite
	ctx         context.Context
	db          *database.DB
	accounts    *store.Store
	sessions    *session.SQLStore
	mailer      *recordingMailer
	clock       *testClock
	credentials *Credentials
	manager     *SessionManager
	tokens      *TokenCodec
	flows       *Flows
	logs        *bytes.Buffer
}

func (s *AuthTestSuite) SetupTest() {
	db, err := database.Open(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(s.T().TempDir(), "auth.db"),
	})
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.db = db
	s.accounts = store.New(db)
	s.sessions = session.NewSQLStore(db, nil)
	s.mailer = &recordingMailer{}
	s.clock = newTestClock()
	s.logs = &bytes.Buffer{}

	s.credentials = NewCredentials(s.accounts, PasswordPolicy{MinLength: 8, BcryptCost: bcrypt.MinCost}, nil)
	s.manager = NewSessionManager(s.sessions, s.accounts, SessionOptions{TTL: time.Hour}, nil)
	s.tokens, err = NewTokenCodec(testSecret, WithClock(s.clock.Now))
	s.Require().NoError(err)

	s.flows = NewFlows(FlowsOptions{
		Accounts:    s.accounts,
		Credentials: s.credentials,
		Sessions:    s.manager,
		Tokens:      s.tokens,
		Mailer:      s.mailer,
		TTLs:        DefaultTokenTTLs(),
		Now:         s.clock.Now,
		Logger:      slog.New(slog.NewJSONHandler(s.logs, nil)),
	})
}

func (s *AuthTestSuite) TearDownTest() {
	s.db.Close()
}

// register creates an account through the registration flow and returns
// it with the session it was signed in on.
func (s *AuthTestSuite) register(email, password string) (*Session, string) {
	sess := &Session{}
	account, err := s.flows.Register(s.ctx, sess, email, password, password)
	s.Require().NoError(err)
	return sess, account.ID
}
