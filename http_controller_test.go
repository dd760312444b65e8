package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/neuronurture/go-auth"
	"github.com/neuronurture/go-auth/middleware/jwtware"
)

type mockExchanger struct {
	mock.Mock
}

func (m *mockExchanger) Exchange(ctx context.Context, idToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, idToken)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

type request struct {
	method string
	path   string
	body   string
	bearer string
	cookie *http.Cookie
}

type response struct {
	status  int
	body    map[string]any
	raw     string
	cookies []*http.Cookie
}

func newTestApp(t *testing.T, f *fixture, opts ...auth.AuthControllerOption) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(jwtware.New(jwtware.Config{
		TokenValidator:  f.service,
		ContextEnricher: auth.WithSubject,
		ContextClearer:  auth.WithoutSubject,
	}))

	opts = append([]auth.AuthControllerOption{
		auth.WithControllerLogger(nopLogger{}),
		auth.WithProtect(jwtware.RequireAuth()),
	}, opts...)

	auth.RegisterAuthRoutes(app, f.service, opts...)
	return app
}

func do(t *testing.T, app *fiber.App, r request) response {
	t.Helper()

	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set("Content-Type", "application/json")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	out := response{status: res.StatusCode, raw: string(raw), cookies: res.Cookies()}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

func loginPair(t *testing.T, app *fiber.App) (auth.TokenPair, response) {
	t.Helper()

	res := do(t, app, request{method: http.MethodPost, path: "/auth/login", body: `{"username":"alice","password":"pw1"}`})
	require.Equal(t, http.StatusOK, res.status, res.raw)

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal([]byte(res.raw), &pair))
	return pair, res
}

func registerAlice(t *testing.T, f *fixture) {
	t.Helper()
	_, err := f.service.Register(context.Background(), "alice", "pw1")
	require.NoError(t, err)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthControllerRegister(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)

	res := do(t, app, request{method: http.MethodPost, path: "/auth/register", body: `{"username":"alice","password":"pw1"}`})
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "User registered", res.body["message"])
	assert.Empty(t, res.cookies)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/register", body: `{"username":"alice","password":"pw2"}`})
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, auth.TextCodeAlreadyExists, res.body["text_code"])

	res = do(t, app, request{method: http.MethodPost, path: "/auth/register", body: `{"username":"","password":"pw2"}`})
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, auth.TextCodeInvalidRequestPayload, res.body["text_code"])

	res = do(t, app, request{method: http.MethodPost, path: "/auth/register", body: `{not json`})
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, auth.TextCodeInvalidRequestPayload, res.body["text_code"])
}

func TestAuthControllerLogin(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)

	tests := []struct {
		name string
		body string
	}{
		{name: "wrong password", body: `{"username":"alice","password":"wrong"}`},
		{name: "unknown user", body: `{"username":"mallory","password":"pw1"}`},
		{name: "missing password", body: `{"username":"alice"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, app, request{method: http.MethodPost, path: "/auth/login", body: tt.body})
			assert.Equal(t, http.StatusUnauthorized, res.status)
			assert.Equal(t, auth.TextCodeInvalidCredentials, res.body["text_code"])
			assert.Equal(t, "invalid credentials", res.body["error"])
		})
	}

	pair, res := loginPair(t, app)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	cookie := findCookie(res.cookies, auth.DefaultCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, pair.AccessToken, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, int(time.Hour/time.Second), cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestAuthControllerSecureCookie(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f, auth.WithCookie("session", true))

	_, res := loginPair(t, app)

	cookie := findCookie(res.cookies, "session")
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestAuthControllerSession(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)
	pair, _ := loginPair(t, app)

	tests := []struct {
		name          string
		req           request
		authenticated bool
	}{
		{name: "anonymous", req: request{}},
		{name: "bearer", req: request{bearer: pair.AccessToken}, authenticated: true},
		{name: "cookie", req: request{cookie: &http.Cookie{Name: auth.DefaultCookieName, Value: pair.AccessToken}}, authenticated: true},
		{name: "garbage bearer", req: request{bearer: "garbage"}},
		{
			name: "invalid bearer ignores valid cookie",
			req: request{
				bearer: "garbage",
				cookie: &http.Cookie{Name: auth.DefaultCookieName, Value: pair.AccessToken},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.method = http.MethodGet
			tt.req.path = "/auth/session"
			res := do(t, app, tt.req)
			assert.Equal(t, http.StatusOK, res.status)
			assert.Equal(t, tt.authenticated, res.body["authenticated"])
		})
	}

	t.Run("expired token", func(t *testing.T) {
		f.clock.Advance(time.Hour + time.Second)
		res := do(t, app, request{method: http.MethodGet, path: "/auth/session", bearer: pair.AccessToken})
		assert.Equal(t, false, res.body["authenticated"])
	})
}

func TestAuthControllerVerify(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)

	res := do(t, app, request{method: http.MethodPost, path: "/auth/verify", body: `{"username":"alice","password":"pw1"}`})
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "true", res.raw)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/verify", body: `{"username":"alice","password":"nope"}`})
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "false", res.raw)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/verify", body: `{"username":"mallory","password":"pw1"}`})
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, auth.TextCodeNotFound, res.body["text_code"])
}

func TestAuthControllerChangePassword(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)
	pair, _ := loginPair(t, app)

	res := do(t, app, request{method: http.MethodPost, path: "/auth/change-password", body: `{"oldPassword":"pw1","newPassword":"pw2"}`})
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, auth.TextCodeUnauthenticated, res.body["text_code"])

	res = do(t, app, request{method: http.MethodPost, path: "/auth/change-password", bearer: pair.AccessToken, body: `{"oldPassword":"wrong","newPassword":"pw2"}`})
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, auth.TextCodeInvalidCredentials, res.body["text_code"])

	res = do(t, app, request{method: http.MethodPost, path: "/auth/change-password", bearer: pair.AccessToken, body: `{"oldPassword":"pw1","newPassword":""}`})
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/change-password", bearer: pair.AccessToken, body: `{"oldPassword":"pw1","newPassword":"pw2"}`})
	assert.Equal(t, http.StatusOK, res.status)

	ok, err := f.service.Verify(context.Background(), "alice", "pw2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthControllerRefresh(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)
	pair, _ := loginPair(t, app)

	f.clock.Advance(time.Minute)

	res := do(t, app, request{method: http.MethodPost, path: "/auth/refresh-token", body: `{"refreshToken":"` + pair.RefreshToken + `"}`})
	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, pair.RefreshToken, res.body["refreshToken"])
	assert.NotEqual(t, pair.AccessToken, res.body["token"])

	subject, err := f.service.ValidateToken(res.body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/refresh-token", body: `{"refreshToken":"unknown"}`})
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, auth.TextCodeRefreshTokenNotFound, res.body["text_code"])

	f.clock.Advance(7 * 24 * time.Hour)
	res = do(t, app, request{method: http.MethodPost, path: "/auth/refresh-token", body: `{"refreshToken":"` + pair.RefreshToken + `"}`})
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, auth.TextCodeRefreshTokenExpired, res.body["text_code"])
}

func TestAuthControllerLogout(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)
	pair, _ := loginPair(t, app)

	res := do(t, app, request{method: http.MethodPost, path: "/auth/logout"})
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/logout", bearer: pair.AccessToken})
	require.Equal(t, http.StatusOK, res.status, res.raw)

	cookie := findCookie(res.cookies, auth.DefaultCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)

	res = do(t, app, request{method: http.MethodPost, path: "/auth/refresh-token", body: `{"refreshToken":"` + pair.RefreshToken + `"}`})
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, auth.TextCodeRefreshTokenNotFound, res.body["text_code"])

	// the stateless access token keeps authenticating until it expires
	f.clock.Advance(30 * time.Minute)
	res = do(t, app, request{method: http.MethodGet, path: "/auth/session", bearer: pair.AccessToken})
	assert.Equal(t, true, res.body["authenticated"])

	f.clock.Advance(31 * time.Minute)
	res = do(t, app, request{method: http.MethodGet, path: "/auth/session", bearer: pair.AccessToken})
	assert.Equal(t, false, res.body["authenticated"])
}

func TestAuthControllerOAuth2Token(t *testing.T) {
	f := newFixture(t)

	t.Run("route disabled without exchanger", func(t *testing.T) {
		app := newTestApp(t, f)
		res := do(t, app, request{method: http.MethodPost, path: "/auth/oauth2/token", body: `{"idToken":"x"}`})
		assert.Equal(t, http.StatusNotFound, res.status)
	})

	t.Run("exchanges id token", func(t *testing.T) {
		exchanger := new(mockExchanger)
		exchanger.On("Exchange", mock.Anything, "id-token").
			Return(&auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil).Once()

		app := newTestApp(t, f, auth.WithFederatedExchanger(exchanger))
		res := do(t, app, request{method: http.MethodPost, path: "/auth/oauth2/token", body: `{"idToken":"id-token"}`})
		require.Equal(t, http.StatusOK, res.status, res.raw)
		assert.Equal(t, "access", res.body["token"])
		assert.Equal(t, "refresh", res.body["refreshToken"])

		cookie := findCookie(res.cookies, auth.DefaultCookieName)
		require.NotNil(t, cookie)
		assert.Equal(t, "access", cookie.Value)
		exchanger.AssertExpectations(t)
	})

	t.Run("rejected id token", func(t *testing.T) {
		exchanger := new(mockExchanger)
		exchanger.On("Exchange", mock.Anything, "bad").Return(nil, auth.ErrInvalidCredentials).Once()

		app := newTestApp(t, f, auth.WithFederatedExchanger(exchanger))
		res := do(t, app, request{method: http.MethodPost, path: "/auth/oauth2/token", body: `{"idToken":"bad"}`})
		assert.Equal(t, http.StatusUnauthorized, res.status)
		assert.Empty(t, res.cookies)
	})
}

func TestAuthControllerInternalErrors(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	app := newTestApp(t, f)

	f.users.err = errors.New("connection refused")

	res := do(t, app, request{method: http.MethodPost, path: "/auth/login", body: `{"username":"alice","password":"pw1"}`})
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.Equal(t, "An unexpected server error occurred", res.body["error"])
	assert.NotContains(t, res.raw, "connection refused")
}

func TestNewAuthControllerRequiresService(t *testing.T) {
	assert.Panics(t, func() {
		auth.NewAuthController(nil)
	})
}
