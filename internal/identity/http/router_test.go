package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/obs"
	"github.com/harborcrm/identity/internal/identity/service"
	sqlitestore "github.com/harborcrm/identity/internal/identity/store/drivers/sqlite"
	"github.com/harborcrm/identity/pkg/cryptox"
	"github.com/harborcrm/identity/pkg/idx"
	"github.com/harborcrm/identity/pkg/jwtx"
	"github.com/harborcrm/identity/pkg/slogx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "identity-http-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testServer struct {
	router   *Router
	store    *sqlitestore.Store
	auth     *service.AuthService
	notifier *captureNotifier
}

type captureNotifier struct {
	verify map[string]string
	reset  map[string]string
}

func (n *captureNotifier) SendEmailVerification(_ context.Context, email, raw string) error {
	n.verify[email] = raw
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, raw string) error {
	n.reset[email] = raw
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlitestore.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "identity-test", time.Minute)
	require.NoError(t, err)

	wl := &service.WhitelistService{Store: st}
	tokens := &service.TokenService{
		Signer:     codec,
		Verifier:   codec,
		Store:      st,
		Whitelist:  wl,
		Issuer:     "identity-test",
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
	}
	notifier := &captureNotifier{verify: map[string]string{}, reset: map[string]string{}}

	auth := &service.AuthService{
		Store:                st,
		Tokens:               tokens,
		Verifications:        &service.VerificationService{Store: st},
		OAuth:                &service.OAuthService{Store: st},
		Notifier:             notifier,
		RequireVerifiedEmail: true,
	}

	logger := slogx.New(slogx.Config{Service: "identity", Level: "error", Format: "text"})
	router := NewRouter(codec, st, logger, obs.New())
	router.AuthService = auth
	router.WhitelistService = wl
	router.ApplyRoutes()

	return &testServer{router: router, store: st, auth: auth, notifier: notifier}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// registerAndVerify walks the register+confirm flow over the wire and returns
// a logged-in token response.
func (ts *testServer) registerAndVerify(t *testing.T, email, password string) tokenResponse {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/v1/auth/register", registerRequest{Email: email, Password: password}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/verify/confirm",
		tokenConfirmRequest{Token: ts.notifier.verify[email]}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/login", loginRequest{Email: email, Password: password}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[tokenResponse](t, rec)
}

const testPassword = "horse-staple-battery"

func TestRegisterLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/auth/register",
		registerRequest{Email: "flow@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Unverified accounts cannot log in yet.
	rec = ts.do(t, http.MethodPost, "/v1/auth/login",
		loginRequest{Email: "flow@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_not_verified", decodeBody[map[string]string](t, rec)["error"])

	rec = ts.do(t, http.MethodPost, "/v1/auth/verify/confirm",
		tokenConfirmRequest{Token: ts.notifier.verify["flow@example.com"]}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/login",
		loginRequest{Email: "flow@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pair := decodeBody[tokenResponse](t, rec)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestLogin_WrongPasswordAndUnknownEmailMatch(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "same@example.com", testPassword)

	recWrong := ts.do(t, http.MethodPost, "/v1/auth/login",
		loginRequest{Email: "same@example.com", Password: "incorrect-password"}, nil)
	recUnknown := ts.do(t, http.MethodPost, "/v1/auth/login",
		loginRequest{Email: "other@example.com", Password: "incorrect-password"}, nil)

	// Identical status and body either way.
	assert.Equal(t, http.StatusUnauthorized, recWrong.Code)
	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, recWrong.Body.String(), recUnknown.Body.String())
}

func TestRefreshAndReuseOverTheWire(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndVerify(t, "wire@example.com", testPassword)

	rec := ts.do(t, http.MethodPost, "/v1/auth/refresh",
		refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[tokenResponse](t, rec)

	// Replay of the consumed token: generic 401, nothing about reuse.
	rec = ts.do(t, http.MethodPost, "/v1/auth/refresh",
		refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decodeBody[map[string]string](t, rec)["error"])

	// The cascade also killed the successor.
	rec = ts.do(t, http.MethodPost, "/v1/auth/refresh",
		refreshRequest{RefreshToken: next.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndVerify(t, "me@example.com", testPassword)

	rec := ts.do(t, http.MethodGet, "/v1/me", nil,
		map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "me@example.com", body["email"])
	assert.Equal(t, "default", body["permission_source"])

	// No token, no answer.
	rec = ts.do(t, http.MethodGet, "/v1/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWhitelistRequiresPermission(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndVerify(t, "member@example.com", testPassword)

	// Plain members lack whitelist:manage.
	rec := ts.do(t, http.MethodGet, "/v1/whitelist", nil,
		map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// seedAdmin creates a verified admin account directly in the store and logs
// it in over the wire.
func (ts *testServer) seedAdmin(t *testing.T, email, password string) tokenResponse {
	t.Helper()
	ctx := context.Background()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, ts.store.Users().CreateUser(ctx, domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	rec := ts.do(t, http.MethodPost, "/v1/auth/login", loginRequest{Email: email, Password: password}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[tokenResponse](t, rec)
}

func TestWhitelistCRUDOverTheWire(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedAdmin(t, "admin@example.com", testPassword)
	auth := map[string]string{"Authorization": "Bearer " + admin.AccessToken}

	rec := ts.do(t, http.MethodPost, "/v1/whitelist", grantRequest{
		Email:       "vip@example.com",
		Tier:        "elevated",
		Permissions: []string{domain.PermReportsRead},
	}, auth)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[grantResponse](t, rec)
	require.NotEmpty(t, created.ID)

	rec = ts.do(t, http.MethodGet, "/v1/whitelist/"+created.ID, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/v1/whitelist/"+created.ID, grantRequest{
		Email:       "vip@example.com",
		Tier:        "custom",
		Permissions: []string{},
	}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[grantResponse](t, rec)
	assert.Equal(t, "custom", updated.Tier)
	assert.Empty(t, updated.Permissions)

	rec = ts.do(t, http.MethodDelete, "/v1/whitelist/"+created.ID, nil, auth)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/v1/whitelist/"+created.ID+"x", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPasswordResetOverTheWire(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "forgot@example.com", testPassword)

	rec := ts.do(t, http.MethodPost, "/v1/auth/password-reset/request",
		emailRequest{Email: "forgot@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Unknown addresses get the same ack.
	rec = ts.do(t, http.MethodPost, "/v1/auth/password-reset/request",
		emailRequest{Email: "stranger@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	const newPassword = "a-whole-new-secret-42"
	rec = ts.do(t, http.MethodPost, "/v1/auth/password-reset/confirm",
		resetConfirmRequest{Token: ts.notifier.reset["forgot@example.com"], NewPassword: newPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/auth/login",
		loginRequest{Email: "forgot@example.com", Password: newPassword}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/livez", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
