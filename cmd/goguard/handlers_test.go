package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/credentials"
	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	clientIP   = "203.0.113.10"
	clientAddr = clientIP + ":51000"
)

type testServer struct {
	handler http.Handler
	engine  *goGuard.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	a := &app{log: zerolog.Nop(), db: db, redis: rdb, users: credentials.NewStore(db)}
	require.NoError(t, a.migrate(context.Background()))

	cfg := goGuard.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.PublicKey = nil
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDB(db).
		WithCredentialStore(a.users).
		WithGeoResolver(geo.Static{clientIP: {City: "Berlin", Country: "DE", Latitude: 52.52, Longitude: 13.405}}).
		WithNotificationSender(notify.NewLogSender(zerolog.Nop())).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testServer{handler: newRouter(engine, zerolog.Nop()), engine: engine}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = clientAddr
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(middleware.FingerprintHeader, "fp-laptop")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func (s *testServer) signup(t *testing.T, identity string) tokenResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/accounts", credentialsBody{Identity: identity, Password: "correct-password-123"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/login", credentialsBody{Identity: identity, Password: "correct-password-123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	return tokens
}

func TestSignupLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	tokens := s.signup(t, "alice@example.com")

	rec := s.do(t, http.MethodGet, "/v1/me", nil, bearer(tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "user", me["role"])
	assert.Equal(t, tokens.SessionID, me["session_id"])
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice@example.com")

	rec := s.do(t, http.MethodPost, "/v1/login", credentialsBody{Identity: "alice@example.com", Password: "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/accounts", credentialsBody{Identity: "alice@example.com", Password: "another-password-1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader("{"))
	req.RemoteAddr = clientAddr
	bad := httptest.NewRecorder()
	s.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestSessionsListAndLogout(t *testing.T) {
	s := newTestServer(t)
	tokens := s.signup(t, "alice@example.com")

	rec := s.do(t, http.MethodGet, "/v1/sessions", nil, bearer(tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)
	assert.Equal(t, "Berlin", sessions[0].City)

	rec = s.do(t, http.MethodDelete, "/v1/sessions/not-mine", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/logout", nil, bearer(tokens.AccessToken))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/me", nil, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshKeepsSession(t *testing.T) {
	s := newTestServer(t)
	tokens := s.signup(t, "alice@example.com")

	rec := s.do(t, http.MethodPost, "/v1/refresh", nil, http.Header{middleware.RefreshHeader: {tokens.RefreshToken}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.Equal(t, tokens.SessionID, next.SessionID)
	assert.Equal(t, tokens.RefreshToken, next.RefreshToken)

	rec = s.do(t, http.MethodPost, "/v1/refresh", nil, http.Header{middleware.RefreshHeader: {"garbage"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoleEndpoint(t *testing.T) {
	s := newTestServer(t)
	tokens := s.signup(t, "alice@example.com")

	rec := s.do(t, http.MethodPut, "/v1/admin/users/whoever/role", map[string]string{"role": "admin"}, bearer(tokens.AccessToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogoutAllReportsCount(t *testing.T) {
	s := newTestServer(t)
	tokens := s.signup(t, "alice@example.com")

	rec := s.do(t, http.MethodPost, "/v1/logout-all", nil, bearer(tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body["revoked"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{goGuard.ErrInvalidInput, http.StatusBadRequest},
		{goGuard.ErrInvalidRole, http.StatusBadRequest},
		{goGuard.ErrInvalidCredentials, http.StatusUnauthorized},
		{goGuard.ErrChallengeIPMismatch, http.StatusUnauthorized},
		{goGuard.ErrUserNotFound, http.StatusNotFound},
		{goGuard.ErrSessionCapExceeded, http.StatusConflict},
		{goGuard.ErrDuplicateIdentity, http.StatusConflict},
		{errors.Join(goGuard.ErrStoreUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
