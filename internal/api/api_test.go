package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/parth-sh/backend-api/internal/auth"
	"github.com/parth-sh/backend-api/internal/config"
	"github.com/parth-sh/backend-api/internal/database"
	"github.com/parth-sh/backend-api/internal/notify"
	"github.com/parth-sh/backend-api/internal/session"
	"github.com/parth-sh/backend-api/internal/store"
)

const testSecret = "test-secret-key-that-is-at-least-32-bytes"

type capturingMailer struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (m *capturingMailer) Dispatch(n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

func (m *capturingMailer) last(purpose string) (notify.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Purpose == purpose {
			return m.sent[i], true
		}
	}
	return notify.Notification{}, false
}

func (m *capturingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testConfig() *config.Config {
	return &config.Config{
		APIPort: 8080,
		Session: config.SessionConfig{CookieName: "session", TTL: time.Hour},
		Tokens: config.TokensConfig{
			Secret:               testSecret,
			PasswordResetTTL:     15 * time.Minute,
			EmailConfirmationTTL: 24 * time.Hour,
		},
		Password: config.PasswordConfig{MinLength: 8, BcryptCost: 4},
	}
}

// APITestSuite drives the router over real HTTP with a cookie jar
type APITestSuite struct {
	suite.Suite
	db     *database.DB
	mailer *capturingMailer
	server *httptest.Server
	client *http.Client
}

func (s *APITestSuite) SetupTest() {
	db, err := database.Open(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(s.T().TempDir(), "api.db"),
	})
	s.Require().NoError(err)
	s.db = db

	cfg := testConfig()
	accounts := store.New(db)
	s.mailer = &capturingMailer{}
	flows, err := auth.New(cfg, accounts, session.NewSQLStore(db, nil), s.mailer, nil)
	s.Require().NoError(err)

	api, err := NewApi(cfg, flows, nil)
	s.Require().NoError(err)

	s.server = httptest.NewServer(api.Router)
	s.client = s.newClient()
}

func (s *APITestSuite) TearDownTest() {
	s.server.Close()
	s.db.Close()
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	return &http.Client{Jar: jar}
}

type apiResponse struct {
	Status  int
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
	raw     []byte
	cookies []*http.Cookie
}

func (s *APITestSuite) do(client *http.Client, method, path string, body any) apiResponse {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	out := apiResponse{Status: resp.StatusCode, raw: raw, cookies: resp.Cookies()}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func (s *APITestSuite) register(client *http.Client, email, password string) apiResponse {
	return s.do(client, http.MethodPost, "/registration", map[string]string{
		"email":                 email,
		"password":              password,
		"password_confirmation": password,
	})
}

func (s *APITestSuite) signIn(client *http.Client, email, password string) apiResponse {
	return s.do(client, http.MethodPost, "/sign-in", map[string]string{"email": email, "password": password})
}

func (s *APITestSuite) sessionCookie(client *http.Client) string {
	u, err := url.Parse(s.server.URL)
	s.Require().NoError(err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "session" {
			return c.Value
		}
	}
	return ""
}

func (s *APITestSuite) TestHealth() {
	resp := s.do(s.client, http.MethodGet, "/up", nil)
	s.Equal(http.StatusOK, resp.Status)
}

func (s *APITestSuite) TestNotFound() {
	resp := s.do(s.client, http.MethodGet, "/nope", nil)
	s.Equal(http.StatusNotFound, resp.Status)
	s.Equal([]string{"Not found"}, resp.Errors)
}

func (s *APITestSuite) TestRegisterConfirmSignIn() {
	resp := s.register(s.client, "journey@example.com", "password123")
	s.Require().Equal(http.StatusOK, resp.Status, string(resp.raw))
	s.Equal(msgRegistered, resp.Message)
	s.NotEmpty(s.sessionCookie(s.client), "registration signs the account in")

	n, ok := s.mailer.last("email_confirmation")
	s.Require().True(ok)
	s.Equal("journey@example.com", n.AccountEmail)

	resp = s.do(s.client, http.MethodDelete, "/session", nil)
	s.Require().Equal(http.StatusOK, resp.Status)

	resp = s.do(s.client, http.MethodGet, "/registration/confirm-email?token="+url.QueryEscape(n.Token), nil)
	s.Require().Equal(http.StatusOK, resp.Status)
	s.Equal(msgEmailConfirmed, resp.Message)

	resp = s.do(s.client, http.MethodGet, "/registration/confirm-email?token="+url.QueryEscape(n.Token), nil)
	s.Equal(http.StatusUnauthorized, resp.Status)
	s.Equal([]string{msgInvalidToken}, resp.Errors)

	resp = s.signIn(s.client, "journey@example.com", "password123")
	s.Equal(http.StatusOK, resp.Status)
	s.Equal(msgSignedIn, resp.Message)
}

func (s *APITestSuite) TestUnconfirmedSignIn() {
	s.register(s.newClient(), "unconfirmed@example.com", "password123")

	resp := s.signIn(s.client, "unconfirmed@example.com", "password123")
	s.Equal(http.StatusOK, resp.Status)
}

func (s *APITestSuite) TestLogoutThenProtectedRoute() {
	s.register(s.client, "logout@example.com", "password123")

	resp := s.do(s.client, http.MethodGet, "/api/users/find-by-email?email=logout@example.com", nil)
	s.Require().Equal(http.StatusOK, resp.Status)

	stolen := s.sessionCookie(s.client)
	resp = s.do(s.client, http.MethodDelete, "/session", nil)
	s.Require().Equal(http.StatusOK, resp.Status)
	s.Equal(msgSignedOut, resp.Message)
	s.Empty(s.sessionCookie(s.client), "cookie cleared on logout")

	resp = s.do(s.client, http.MethodGet, "/api/users/find-by-email?email=logout@example.com", nil)
	s.Equal(http.StatusUnauthorized, resp.Status)
	s.Equal([]string{msgUnauthenticated}, resp.Errors)

	req, err := http.NewRequest(http.MethodDelete, s.server.URL+"/session", nil)
	s.Require().NoError(err)
	req.AddCookie(&http.Cookie{Name: "session", Value: stolen})
	raw, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	raw.Body.Close()
	s.Equal(http.StatusUnauthorized, raw.StatusCode, "old session id is dead after logout")
}

func (s *APITestSuite) TestSignInRotatesSessionID() {
	s.register(s.client, "rotate@example.com", "password123")
	first := s.sessionCookie(s.client)

	resp := s.signIn(s.client, "rotate@example.com", "password123")
	s.Require().Equal(http.StatusOK, resp.Status)
	s.NotEqual(first, s.sessionCookie(s.client))
}

func (s *APITestSuite) TestCookieOnlySentWhenSessionChanges() {
	resp := s.register(s.client, "cookie@example.com", "password123")
	s.Require().Equal(http.StatusOK, resp.Status)
	s.Len(resp.cookies, 1)

	resp = s.do(s.client, http.MethodGet, "/api/users/find-by-email?email=cookie@example.com", nil)
	s.Require().Equal(http.StatusOK, resp.Status)
	s.Empty(resp.cookies, "an unchanged session does not rewrite the cookie")

	resp = s.do(s.client, http.MethodDelete, "/session", nil)
	s.Require().Equal(http.StatusOK, resp.Status)
	s.Require().Len(resp.cookies, 1)
	s.Equal(-1, resp.cookies[0].MaxAge)
}

func (s *APITestSuite) TestSignInFailuresAreIdentical() {
	s.register(s.newClient(), "known@example.com", "password123")

	wrong := s.signIn(s.client, "known@example.com", "wrong-password")
	unknown := s.signIn(s.client, "unknown@example.com", "password123")

	s.Equal(http.StatusUnprocessableEntity, wrong.Status)
	s.Equal(wrong.Status, unknown.Status)
	s.Equal(wrong.raw, unknown.raw)
	s.Equal([]string{msgInvalidCredentials}, wrong.Errors)
}

func (s *APITestSuite) TestRegisterValidation() {
	s.register(s.newClient(), "dup@example.com", "password123")

	resp := s.register(s.client, " DUP@example.com ", "password123")
	s.Equal(http.StatusUnprocessableEntity, resp.Status)
	s.Equal([]string{"Email has already been taken"}, resp.Errors)

	resp = s.do(s.client, http.MethodPost, "/registration", map[string]string{
		"email":                 "new@example.com",
		"password":              "password123",
		"password_confirmation": "password321",
	})
	s.Equal(http.StatusUnprocessableEntity, resp.Status)
	s.Equal([]string{"Password confirmation doesn't match Password"}, resp.Errors)
}

func (s *APITestSuite) TestSignedOutOnlyRoutes() {
	s.register(s.client, "busy@example.com", "password123")

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/registration"},
		{http.MethodPost, "/password-reset"},
		{http.MethodPut, "/password-reset"},
	} {
		resp := s.do(s.client, tc.method, tc.path, map[string]string{"email": "busy@example.com"})
		s.Equal(http.StatusUnauthorized, resp.Status, tc.method+" "+tc.path)
		s.Equal([]string{msgAlreadyAuthenticated}, resp.Errors)
	}
}

func (s *APITestSuite) TestPasswordReset() {
	s.register(s.newClient(), "reset@example.com", "password123")
	sent := s.mailer.count()

	resp := s.do(s.client, http.MethodPost, "/password-reset", map[string]string{"email": "nobody@example.com"})
	s.Equal(http.StatusOK, resp.Status)
	s.Equal(msgResetRequested, resp.Message)
	s.Equal(sent, s.mailer.count())

	resp = s.do(s.client, http.MethodPost, "/password-reset", map[string]string{"email": "reset@example.com"})
	s.Equal(http.StatusOK, resp.Status)
	s.Equal(msgResetRequested, resp.Message)
	n, ok := s.mailer.last("password_reset")
	s.Require().True(ok)

	resp = s.do(s.client, http.MethodPut, "/password-reset", map[string]string{
		"token":                 n.Token,
		"password":              "short",
		"password_confirmation": "short",
	})
	s.Equal(http.StatusUnprocessableEntity, resp.Status)
	s.Equal([]string{"Password is too short (minimum is 8 characters)"}, resp.Errors)

	resp = s.do(s.client, http.MethodPut, "/password-reset", map[string]string{
		"token":                 n.Token,
		"password":              "password456",
		"password_confirmation": "password456",
	})
	s.Require().Equal(http.StatusOK, resp.Status)
	s.Equal(msgResetCompleted, resp.Message)

	resp = s.do(s.client, http.MethodPut, "/password-reset", map[string]string{
		"token":                 n.Token,
		"password":              "password789",
		"password_confirmation": "password789",
	})
	s.Equal(http.StatusUnauthorized, resp.Status)
	s.Equal([]string{msgInvalidToken}, resp.Errors)

	s.Equal(http.StatusOK, s.signIn(s.client, "reset@example.com", "password456").Status)
}

func (s *APITestSuite) TestInvalidTokensLookTheSame() {
	s.register(s.newClient(), "tokens@example.com", "password123")
	confirmation, ok := s.mailer.last("email_confirmation")
	s.Require().True(ok)

	garbage := s.do(s.client, http.MethodPut, "/password-reset", map[string]string{
		"token": "garbage", "password": "password456", "password_confirmation": "password456",
	})
	wrongPurpose := s.do(s.client, http.MethodPut, "/password-reset", map[string]string{
		"token": confirmation.Token, "password": "password456", "password_confirmation": "password456",
	})

	s.Equal(http.StatusUnauthorized, garbage.Status)
	s.Equal(garbage.raw, wrongPurpose.raw)
}

func (s *APITestSuite) TestChangePassword() {
	s.register(s.client, "change@example.com", "password123")

	resp := s.do(s.client, http.MethodPut, "/password", map[string]string{
		"password":              "password456",
		"password_confirmation": "password456",
		"password_challenge":    "wrong",
	})
	s.Equal(http.StatusUnprocessableEntity, resp.Status)
	s.Equal([]string{"Password challenge is invalid"}, resp.Errors)

	resp = s.do(s.client, http.MethodPut, "/password", map[string]string{
		"password":              "password456",
		"password_confirmation": "password456",
		"password_challenge":    "password123",
	})
	s.Equal(http.StatusOK, resp.Status)
	s.Equal(msgPasswordChanged, resp.Message)

	resp = s.do(s.newClient(), http.MethodPut, "/password", map[string]string{"password": "x"})
	s.Equal(http.StatusUnauthorized, resp.Status)
}

func (s *APITestSuite) TestFindByEmail() {
	s.register(s.client, "finder@example.com", "password123")

	resp := s.do(s.client, http.MethodGet, "/api/users/find-by-email?email=FINDER@example.com", nil)
	s.Require().Equal(http.StatusOK, resp.Status)
	var account map[string]any
	s.Require().NoError(json.Unmarshal(resp.raw, &account))
	s.Equal("finder@example.com", account["email"])
	s.NotContains(account, "password_digest")

	resp = s.do(s.client, http.MethodGet, "/api/users/find-by-email?email=ghost@example.com", nil)
	s.Equal(http.StatusNotFound, resp.Status)
	s.Equal([]string{msgUserNotFound}, resp.Errors)

	resp = s.do(s.newClient(), http.MethodGet, "/api/users/find-by-email?email=finder@example.com", nil)
	s.Equal(http.StatusUnauthorized, resp.Status)
}

func (s *APITestSuite) TestInvalidBody() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/sign-in", strings.NewReader("{"))
	s.Require().NoError(err)
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	var body errorsResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal([]string{msgInvalidRequestBody}, body.Errors)
}

func (s *APITestSuite) TestCORSPreflight() {
	req, err := http.NewRequest(http.MethodOptions, s.server.URL+"/sign-in", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()

	s.Equal("http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	s.Equal("true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestNewApi(t *testing.T) {
	flows, err := auth.New(testConfig(), nil, nil, &capturingMailer{}, nil)
	require.NoError(t, err)

	t.Run("ValidConfig", func(t *testing.T) {
		api, err := NewApi(testConfig(), flows, nil)
		require.NoError(t, err)
		assert.Equal(t, 8080, api.Config.APIPort)
	})

	t.Run("InvalidConfigZeroPort", func(t *testing.T) {
		cfg := testConfig()
		cfg.APIPort = 0
		_, err := NewApi(cfg, flows, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Must have at least a port to start API")
	})

	t.Run("MissingFlows", func(t *testing.T) {
		_, err := NewApi(testConfig(), nil, nil)
		assert.Error(t, err)
	})
}

func TestRespondErrorHidesInternals(t *testing.T) {
	flows, err := auth.New(testConfig(), nil, nil, &capturingMailer{}, nil)
	require.NoError(t, err)
	api, err := NewApi(testConfig(), flows, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	api.respondError(rec, req, io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"errors":["Internal server error"]}`, rec.Body.String())
}
