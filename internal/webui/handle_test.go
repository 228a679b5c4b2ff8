package webui

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu       sync.Mutex
	password string
	user     account.User
	access   map[string]bool
	refresh  map[string]bool
	issued   int
	calls    []string

	getUserErr error
	signOutErr error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		password: "correct horse",
		user:     account.User{ID: "user-1", Email: "alice@example.com"},
		access:   make(map[string]bool),
		refresh:  make(map[string]bool),
	}
}

func (a *fakeAuth) issue() account.Session {
	a.issued++
	sess := account.Session{
		Tokens: account.Tokens{
			AccessToken:  fmt.Sprintf("access-%v", a.issued),
			RefreshToken: fmt.Sprintf("refresh-%v", a.issued),
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		User: a.user,
	}
	a.access[sess.AccessToken] = true
	a.refresh[sess.RefreshToken] = true
	return sess
}

func (a *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (account.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "SignInWithPassword")
	if email != a.user.Email || password != a.password {
		return account.Session{}, account.ErrInvalidCredentials
	}
	return a.issue(), nil
}

func (a *fakeAuth) GetUser(_ context.Context, accessToken string) (account.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "GetUser "+accessToken)
	if a.getUserErr != nil {
		return account.User{}, a.getUserErr
	}
	if !a.access[accessToken] {
		return account.User{}, account.ErrInvalidToken
	}
	return a.user, nil
}

func (a *fakeAuth) RefreshSession(_ context.Context, refreshToken string) (account.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "RefreshSession "+refreshToken)
	if !a.refresh[refreshToken] {
		return account.Session{}, account.ErrInvalidToken
	}
	delete(a.refresh, refreshToken)
	return a.issue(), nil
}

func (a *fakeAuth) SignOut(_ context.Context, accessToken string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "SignOut "+accessToken)
	if a.signOutErr != nil {
		return a.signOutErr
	}
	delete(a.access, accessToken)
	return nil
}

func (a *fakeAuth) FailGetUser(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getUserErr = err
}

func (a *fakeAuth) FailSignOut(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOutErr = err
}

func (a *fakeAuth) Revoke(accessToken string, refreshToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.access, accessToken)
	if refreshToken != "" {
		delete(a.refresh, refreshToken)
	}
}

func (a *fakeAuth) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAuth) ResetCalls() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]account.Profile
	err      error
	lookups  []string
}

func (p *fakeProfiles) GetProfile(_ context.Context, sess *account.Session) (account.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups = append(p.lookups, sess.User.ID)
	if p.err != nil {
		return account.Profile{}, p.err
	}
	profile, ok := p.profiles[sess.User.ID]
	if !ok {
		return account.Profile{}, account.ErrProfileNotFound
	}
	return profile, nil
}

func (p *fakeProfiles) Lookups() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lookups...)
}

type cookieStoreFactory struct{}

func (cookieStoreFactory) NewSessionStore(_ context.Context, o SessionOptions) sessions.Store {
	return sessions.NewCookieStore(o.KeyPairs()...)
}

type testEnv struct {
	srv      *httptest.Server
	client   *http.Client
	auth     *fakeAuth
	profiles *fakeProfiles
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithOptions(t, Options{})
}

func newTestEnvWithOptions(t *testing.T, o Options) *testEnv {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	username := "alice"
	syllabus := "algebra-1"
	env := &testEnv{
		auth: newFakeAuth(),
		profiles: &fakeProfiles{
			profiles: map[string]account.Profile{
				"user-1": {
					ID:               "user-1",
					Username:         &username,
					SelectedSyllabus: &syllabus,
					Outcomes:         json.RawMessage(`{"linear-equations":"mastered"}`),
				},
			},
		},
	}

	o.Session.Key = key
	log := slogx.DiscardLogger()
	mux := http.NewServeMux()
	handle(context.Background(), log, mux, "", Config{
		Auth:                env.auth,
		Profiles:            env.profiles,
		SessionStoreFactory: cookieStoreFactory{},
		ServerID:            "test",
	}, o, &middlewareBuilder{Log: log})

	env.srv = httptest.NewServer(mux)
	t.Cleanup(env.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rsp, err := e.client.Do(req)
	require.NoError(t, err)
	defer rsp.Body.Close()
	data, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	return rsp, string(data)
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	rsp, _ := e.do(t, http.MethodPost, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct horse"},
	})
	require.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	require.Equal(t, "/account", rsp.Header.Get("Location"))
	e.auth.ResetCalls()
}

func TestAccountRedirectsWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rsp, _ := env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, "/", rsp.Header.Get("Location"))
	assert.Empty(t, env.profiles.Lookups())
	assert.Empty(t, env.auth.Calls())
}

func TestAccountShowsProfile(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	rsp, body := env.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, []string{"user-1"}, env.profiles.Lookups())
	assert.Contains(t, body, `data-profile-id="user-1"`)
	assert.Contains(t, body, "alice@example.com")
	assert.Contains(t, body, "algebra-1")
	assert.Contains(t, body, "linear-equations")
	assert.Equal(t, []string{"GetUser access-1"}, env.auth.Calls())
}

func TestAccountWithoutProfile(t *testing.T) {
	env := newTestEnv(t)
	delete(env.profiles.profiles, "user-1")
	env.signIn(t)

	rsp, body := env.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "No profile yet.")
	assert.NotContains(t, body, "data-profile-id")
}

func TestAccountProfileError(t *testing.T) {
	env := newTestEnv(t)
	env.profiles.err = errors.New("connection refused")
	env.signIn(t)

	rsp, _ := env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusInternalServerError, rsp.StatusCode)
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	rsp, _ := env.do(t, http.MethodPost, "/account?/signout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, "/", rsp.Header.Get("Location"))
	assert.Equal(t, []string{"GetUser access-1", "SignOut access-1"}, env.auth.Calls())

	env.auth.ResetCalls()
	rsp, _ = env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, "/", rsp.Header.Get("Location"))
	assert.Empty(t, env.auth.Calls())
}

func TestSignOutProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)
	env.auth.FailSignOut(errors.New("provider unavailable"))

	rsp, _ := env.do(t, http.MethodPost, "/account?/signout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, "/", rsp.Header.Get("Location"))
	assert.Equal(t, []string{"GetUser access-1", "SignOut access-1"}, env.auth.Calls())

	// The provider still accepts the token, but the cookie no longer carries it.
	env.auth.ResetCalls()
	rsp, _ = env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Empty(t, env.auth.Calls())
}

func TestTransientValidationErrorKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)
	env.auth.FailGetUser(errors.New("connection reset"))

	rsp, _ := env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, "/", rsp.Header.Get("Location"))
	assert.Equal(t, []string{"GetUser access-1"}, env.auth.Calls())

	env.auth.FailGetUser(nil)
	env.auth.ResetCalls()
	rsp, body := env.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, `data-profile-id="user-1"`)
	assert.Equal(t, []string{"GetUser access-1"}, env.auth.Calls())
}

func TestSignOutWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rsp, body := env.do(t, http.MethodPost, "/account?/signout", url.Values{})
	assert.Equal(t, http.StatusNoContent, rsp.StatusCode)
	assert.Empty(t, rsp.Header.Get("Location"))
	assert.Empty(t, body)
	assert.Empty(t, env.auth.Calls())
}

func TestAccountUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	rsp, _ := env.do(t, http.MethodPost, "/account?/delete", url.Values{})
	assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
	rsp, _ = env.do(t, http.MethodPost, "/account", url.Values{})
	assert.Equal(t, http.StatusMethodNotAllowed, rsp.StatusCode)
	assert.NotContains(t, env.auth.Calls(), "SignOut access-1")
}

func TestSessionRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)
	env.auth.Revoke("access-1", "")

	rsp, _ := env.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, []string{"GetUser access-1", "RefreshSession refresh-1"}, env.auth.Calls())

	env.auth.ResetCalls()
	rsp, _ = env.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, []string{"GetUser access-2"}, env.auth.Calls())
}

func TestRejectedSessionIsDropped(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)
	env.auth.Revoke("access-1", "refresh-1")

	rsp, _ := env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, []string{"GetUser access-1", "RefreshSession refresh-1"}, env.auth.Calls())

	env.auth.ResetCalls()
	rsp, _ = env.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Empty(t, env.auth.Calls())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rsp, body := env.do(t, http.MethodGet, "/login", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, `name="password"`)

	rsp, body = env.do(t, http.MethodPost, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong"},
	})
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "invalid email or password")
	assert.Contains(t, body, `value="alice@example.com"`)

	env.signIn(t)
	rsp, _ = env.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusSeeOther, rsp.StatusCode)
	assert.Equal(t, "/account", rsp.Header.Get("Location"))
}

func TestMainPage(t *testing.T) {
	env := newTestEnv(t)

	rsp, body := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "Sign in")

	env.signIn(t)
	rsp, body = env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "alice@example.com")
}

func TestNotFoundAndStatic(t *testing.T) {
	env := newTestEnv(t)

	rsp, body := env.do(t, http.MethodGet, "/no-such-page", nil)
	assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
	assert.Contains(t, body, "page not found")

	rsp, body = env.do(t, http.MethodGet, "/css/style.css", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "Space Grotesk")
	assert.Equal(t, "max-age=86400, public", rsp.Header.Get("Cache-Control"))
}

func TestStaticOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "theme.css"), []byte("body { color: red; }"), 0644))
	env := newTestEnvWithOptions(t, Options{StaticDir: dir})

	rsp, body := env.do(t, http.MethodGet, "/css/theme.css", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "color: red")

	rsp, body = env.do(t, http.MethodGet, "/css/style.css", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, body, "Space Grotesk")
}

func TestFormAction(t *testing.T) {
	for _, tc := range []struct {
		query  string
		action string
		ok     bool
	}{
		{query: "/signout", action: "signout", ok: true},
		{query: "/signout=", action: "signout", ok: true},
		{query: "x=1&/signout", action: "signout", ok: true},
		{query: "%2Fsignout", action: "signout", ok: true},
		{query: "%2fsignout=", action: "signout", ok: true},
		{query: "%zz&/signout", action: "signout", ok: true},
		{query: "", ok: false},
		{query: "/", ok: false},
		{query: "signout", ok: false},
	} {
		req := httptest.NewRequest(http.MethodPost, "/account?"+tc.query, nil)
		action, ok := formAction(req)
		assert.Equal(t, tc.ok, ok, tc.query)
		assert.Equal(t, tc.action, action, tc.query)
	}
}
