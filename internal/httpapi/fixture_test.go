// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/internal/httpapi"
	"github.com/coursevoice/coursevoice/internal/sessionstore"
)

const (
	testSecret    = "an-http-test-secret-of-32-bytes!"
	resetLinkBase = "https://coursevoice.test/reset"
	firefox       = "Mozilla/5.0 Firefox/130.0"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[int64]*auth.User{}}
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			found := *u
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUsers) FindByID(_ context.Context, id int64) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	found := *u
	return &found, nil
}

func (r *memUsers) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	r.nextID++
	user.ID = r.nextID
	stored := *user
	r.byID[user.ID] = &stored
	return nil
}

func (r *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memResets struct {
	mu     sync.Mutex
	byHash map[string]auth.PasswordResetToken
}

func (r *memResets) Create(_ context.Context, t *auth.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[t.TokenHash] = *t
	return nil
}

func (r *memResets) GetByTokenHash(_ context.Context, hash string) (*auth.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &t, nil
}

func (r *memResets) DeleteByUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, t := range r.byHash {
		if t.UserID == userID {
			delete(r.byHash, h)
		}
	}
	return nil
}

func (r *memResets) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type outbox struct {
	mu    sync.Mutex
	mails []string
}

func (o *outbox) Send(_ context.Context, _, _, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mails = append(o.mails, body)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mails)
}

var resetLinkPattern = regexp.MustCompile(`href="([^"]+)"`)

func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.mails, "no mail sent")
	m := resetLinkPattern.FindStringSubmatch(o.mails[len(o.mails)-1])
	require.Len(t, m, 2)
	link, err := url.Parse(strings.ReplaceAll(m[1], "&amp;", "&"))
	require.NoError(t, err)
	return link.Query().Get("token")
}

type apiFixture struct {
	router *gin.Engine
	svc    *auth.Service
	tokens *auth.TokenService
	users  *memUsers
	mail   *outbox
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := discardLogger()

	users := newMemUsers()
	hasher := auth.NewArgon2idHasher()
	svc, err := auth.NewAuthService(users, hasher, logger)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:    []byte(testSecret),
		Issuer:    "coursevoice",
		Audience:  "coursevoice-api",
		Lifetime:  time.Hour,
		ClockSkew: 30 * time.Second,
	}, logger)
	require.NoError(t, err)

	// One failure locks a session out, which keeps Retry-After deterministic.
	sessMgr, err := auth.NewSessionManager(auth.SessionConfig{
		IdleTimeout:       30 * time.Minute,
		AbsoluteLifetime:  8 * time.Hour,
		MaxFailedAttempts: 1,
	}, logger)
	require.NoError(t, err)

	gate, err := auth.NewAccessGate(tokens, logger)
	require.NoError(t, err)

	mail := &outbox{}
	resets, err := auth.NewPasswordResetService(users, &memResets{byHash: map[string]auth.PasswordResetToken{}},
		hasher, mail, auth.ResetConfig{LinkBaseURL: resetLinkBase}, logger)
	require.NoError(t, err)

	store, closeStore, err := sessionstore.Open(context.Background(),
		sessionstore.Config{Secret: []byte(testSecret)}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	router, err := httpapi.NewRouter(httpapi.Deps{
		Auth:     svc,
		Tokens:   tokens,
		Sessions: sessMgr,
		Gate:     gate,
		Resets:   resets,
		Store:    store,
		Logger:   logger,
	}, httpapi.Options{CORSOrigins: []string{"https://app.coursevoice.test"}})
	require.NoError(t, err)

	return &apiFixture{router: router, svc: svc, tokens: tokens, users: users, mail: mail}
}

func (f *apiFixture) provision(t *testing.T, email, password string, role auth.Role) *auth.User {
	t.Helper()
	u, err := f.svc.Provision(context.Background(), email, password, role, "Test "+string(role))
	require.NoError(t, err)
	return u
}

// call describes one request from a browser identified by userAgent.
type call struct {
	method    string
	path      string
	body      any
	bearer    string
	cookie    *http.Cookie
	userAgent string
	header    map[string]string
}

type result struct {
	code   int
	header http.Header
	env    struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
		Data    json.RawMessage   `json:"data"`
	}
	cookie *http.Cookie
}

func (f *apiFixture) do(t *testing.T, c call) result {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		if raw, ok := c.body.(string); ok {
			body = strings.NewReader(raw)
		} else {
			b, err := json.Marshal(c.body)
			require.NoError(t, err)
			body = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en-GB")
	ua := c.userAgent
	if ua == "" {
		ua = firefox
	}
	req.Header.Set("User-Agent", ua)
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	res := result{code: w.Code, header: w.Header()}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res.env), w.Body.String())
	}
	for _, ck := range w.Result().Cookies() {
		if ck.Name == auth.DefaultSessionCookieName {
			res.cookie = ck
		}
	}
	return res
}

type loginData struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	Role      string `json:"role"`
}

func (f *apiFixture) login(t *testing.T, email, password string) (loginData, *http.Cookie) {
	t.Helper()
	res := f.do(t, call{method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"email": email, "password": password}})
	require.Equal(t, http.StatusOK, res.code, res.env.Message)
	var data loginData
	require.NoError(t, json.Unmarshal(res.env.Data, &data))
	require.NotNil(t, res.cookie)
	return data, res.cookie
}
