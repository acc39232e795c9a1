package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/application"
	"github.com/ventas-png/control-consumo-agua/internal/domain"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()

	res := f.do(t, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", res.Code)
	}
	body := decodeSuccess(t, res, nil)
	if body.Message != "ok" {
		t.Fatalf("unexpected healthz message: %q", body.Message)
	}

	res = f.do(t, http.MethodGet, "/readyz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("readyz returned %d", res.Code)
	}
}

func TestLoginReturnsSessionEnvelope(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/login", bytes.NewReader(mustJSON(t, map[string]string{
		"email":    "ana@example.com",
		"password": "Zona4!Lectura-Norte",
	})))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-123")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := res.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	var data application.LoginResponse
	decodeSuccess(t, res, &data)
	if data.Token == "" || data.SessionID == uuid.Nil {
		t.Fatalf("incomplete login payload: %+v", data)
	}
	if data.Role != "operator" || data.Email != "ana@example.com" {
		t.Fatalf("unexpected identity: %+v", data)
	}
	if data.RevalidateAfterSeconds != 60 {
		t.Fatalf("expected revalidate hint 60, got %d", data.RevalidateAfterSeconds)
	}
}

func TestLoginFailureBodiesIndistinguishable(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")
	inactive := f.seedUser("baja@example.com", "Zona4!Lectura-Norte", domain.RoleViewer, "Cuenta Baja")
	f.users.mu.Lock()
	inactive.IsActive = false
	f.users.byEmail[inactive.Email] = inactive
	f.users.byID[inactive.UserID] = inactive
	f.users.mu.Unlock()

	unknown := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "nadie@example.com", "password": "whatever-guess",
	})
	wrongPassword := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong-password",
	})
	inactiveRes := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "baja@example.com", "password": "Zona4!Lectura-Norte",
	})

	for name, res := range map[string]*httptest.ResponseRecorder{
		"unknown": unknown, "wrong password": wrongPassword, "inactive": inactiveRes,
	} {
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, res.Code)
		}
		body := decodeError(t, res)
		if body.Code != "INVALID_CREDENTIALS" || body.Message != "invalid email or password" {
			t.Fatalf("%s: unexpected body %+v", name, body)
		}
	}
	if unknown.Body.String() != wrongPassword.Body.String() || wrongPassword.Body.String() != inactiveRes.Body.String() {
		t.Fatalf("denial bodies must be byte-identical:\n%s\n%s\n%s", unknown.Body, wrongPassword.Body, inactiveRes.Body)
	}
}

func TestLoginRejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()

	cases := []struct {
		name string
		body string
	}{
		{"truncated json", `{"email": "ana@example.com"`},
		{"unknown field", `{"email":"ana@example.com","password":"x","boom":true}`},
		{"trailing value", `{"email":"ana@example.com","password":"x"} {"again":1}`},
		{"not an object", `"hola"`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/auth/v1/login", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		res := httptest.NewRecorder()
		f.router.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, res.Code)
		}
		if body := decodeError(t, res); body.Code != "VALIDATION_ERROR" {
			t.Fatalf("%s: expected VALIDATION_ERROR, got %+v", tc.name, body)
		}
	}

	res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "not-an-email", "password": "x",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: expected 400, got %d", res.Code)
	}
}

func TestLockoutReturnsAccountLocked(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")

	for i := 0; i < 3; i++ {
		res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
			"email": "ana@example.com", "password": "wrong-password",
		})
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("failure %d: expected 401, got %d", i+1, res.Code)
		}
	}

	res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "ana@example.com", "password": "Zona4!Lectura-Norte",
	})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 during lockout, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "ACCOUNT_LOCKED" {
		t.Fatalf("expected ACCOUNT_LOCKED, got %+v", body)
	}
}

func TestUnknownEmailBurstReturnsRateLimited(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()

	for i := 0; i < 3; i++ {
		res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
			"email": "sondeo@example.com", "password": "guess",
		})
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("probe %d: expected 401, got %d", i+1, res.Code)
		}
	}

	res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "sondeo@example.com", "password": "guess",
	})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after failure window fills, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED, got %+v", body)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()

	res := f.do(t, http.MethodGet, "/auth/v1/session", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", res.Code)
	}
	body := decodeError(t, res)
	if body.Code != "UNAUTHORIZED" || body.Message != "missing bearer token" {
		t.Fatalf("unexpected missing-bearer body: %+v", body)
	}

	res = f.do(t, http.MethodGet, "/auth/v1/session", "garbage-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "SESSION_INVALID" {
		t.Fatalf("expected SESSION_INVALID, got %+v", body)
	}
}

func TestSessionStatusAndLogoutFlow(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")
	login := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte")

	res := f.do(t, http.MethodGet, "/auth/v1/session", login.Token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("session status returned %d: %s", res.Code, res.Body.String())
	}
	var status application.SessionStatusResponse
	decodeSuccess(t, res, &status)
	if !status.Valid || status.SessionID != login.SessionID {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	res = f.do(t, http.MethodPost, "/auth/v1/logout", login.Token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", res.Code, res.Body.String())
	}
	if body := decodeSuccess(t, res, nil); body.Message != "Logged out successfully" {
		t.Fatalf("unexpected logout message: %q", body.Message)
	}

	res = f.do(t, http.MethodGet, "/auth/v1/session", login.Token, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "SESSION_INVALID" {
		t.Fatalf("expected SESSION_INVALID after logout, got %+v", body)
	}
}

func TestSessionListingAndRevocation(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")
	first := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte")
	second := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte")

	res := f.do(t, http.MethodGet, "/auth/v1/sessions", first.Token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list sessions returned %d: %s", res.Code, res.Body.String())
	}
	var listing struct {
		Sessions []application.SessionItem `json:"sessions"`
	}
	decodeSuccess(t, res, &listing)
	if len(listing.Sessions) != 2 {
		t.Fatalf("expected two sessions, got %d", len(listing.Sessions))
	}
	for _, item := range listing.Sessions {
		if item.Origin != "192.0.2.1" {
			t.Fatalf("expected observed remote address as origin, got %q", item.Origin)
		}
		if item.SessionID == first.SessionID && !item.IsCurrent {
			t.Fatalf("caller session should be current")
		}
	}

	res = f.do(t, http.MethodDelete, "/auth/v1/sessions/"+second.SessionID.String(), first.Token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("revoke returned %d: %s", res.Code, res.Body.String())
	}

	res = f.do(t, http.MethodDelete, "/auth/v1/sessions/not-a-uuid", first.Token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad session id, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Message != "invalid session_id" {
		t.Fatalf("unexpected validation message: %+v", body)
	}

	res = f.do(t, http.MethodDelete, "/auth/v1/sessions/"+uuid.NewString(), first.Token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", res.Code)
	}
}

func TestPasswordChangeEndpoint(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")
	login := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte")

	res := f.do(t, http.MethodPost, "/auth/v1/password", login.Token, map[string]string{
		"current_password": "wrong-password",
		"new_password":     "Lectura#Nueva44",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, "/auth/v1/password", login.Token, map[string]string{
		"current_password": "Zona4!Lectura-Norte",
		"new_password":     "Lectura#Nueva44",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("password change returned %d: %s", res.Code, res.Body.String())
	}
	if body := decodeSuccess(t, res, nil); body.Message != "Password changed successfully" {
		t.Fatalf("unexpected message: %q", body.Message)
	}

	// The rotation revokes every session, including the caller's.
	res = f.do(t, http.MethodGet, "/auth/v1/session", login.Token, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after password change, got %d", res.Code)
	}
}

func TestUserAdministrationEndpoints(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("jefe@example.com", "Zona4!Lectura-Norte", domain.RoleAdmin, "Jefa")
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")
	adminToken := f.loginHTTP(t, "jefe@example.com", "Zona4!Lectura-Norte").Token
	operatorToken := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte").Token

	createBody := map[string]string{
		"email":    "nuevo@example.com",
		"password": "Medidor!2026-Az",
		"name":     "Nuevo Operador",
		"role":     "operator",
	}

	res := f.do(t, http.MethodPost, "/auth/v1/users", operatorToken, createBody)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "AUTHORIZATION_DENIED" {
		t.Fatalf("expected AUTHORIZATION_DENIED, got %+v", body)
	}

	res = f.do(t, http.MethodPost, "/auth/v1/users", adminToken, createBody)
	if res.Code != http.StatusCreated {
		t.Fatalf("create user returned %d: %s", res.Code, res.Body.String())
	}
	var created application.CreateUserResponse
	decodeSuccess(t, res, &created)
	if created.UserID == uuid.Nil || created.Email != "nuevo@example.com" {
		t.Fatalf("unexpected create payload: %+v", created)
	}

	res = f.do(t, http.MethodPost, "/auth/v1/users", adminToken, createBody)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", res.Code)
	}

	res = f.do(t, http.MethodPatch, "/auth/v1/users/"+created.UserID.String()+"/role", adminToken, map[string]string{"role": "viewer"})
	if res.Code != http.StatusOK {
		t.Fatalf("role change returned %d: %s", res.Code, res.Body.String())
	}
	if body := decodeSuccess(t, res, nil); body.Message != "Role updated successfully" {
		t.Fatalf("unexpected message: %q", body.Message)
	}

	res = f.do(t, http.MethodPatch, "/auth/v1/users/not-a-uuid/role", adminToken, map[string]string{"role": "viewer"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad user id, got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, "/auth/v1/users/"+created.UserID.String()+"/deactivate", adminToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("deactivate returned %d: %s", res.Code, res.Body.String())
	}
	if body := decodeSuccess(t, res, nil); body.Message != "User deactivated successfully" {
		t.Fatalf("unexpected message: %q", body.Message)
	}
}

func TestLoginHistoryEndpoint(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")

	res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong-password",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("seed failure returned %d", res.Code)
	}
	f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte")
	login := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte")

	res = f.do(t, http.MethodGet, "/auth/v1/login-history", login.Token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("history returned %d: %s", res.Code, res.Body.String())
	}
	var history struct {
		Attempts []application.LoginHistoryItem `json:"attempts"`
	}
	decodeSuccess(t, res, &history)
	if len(history.Attempts) != 3 {
		t.Fatalf("expected three attempts, got %d", len(history.Attempts))
	}

	res = f.do(t, http.MethodGet, "/auth/v1/login-history?only_failures=true", login.Token, nil)
	decodeSuccess(t, res, &history)
	if len(history.Attempts) != 1 || history.Attempts[0].Reason != "INVALID_PASSWORD" {
		t.Fatalf("unexpected failure filter result: %+v", history.Attempts)
	}

	res = f.do(t, http.MethodGet, "/auth/v1/login-history?page=2&limit=2", login.Token, nil)
	decodeSuccess(t, res, &history)
	if len(history.Attempts) != 1 {
		t.Fatalf("expected one attempt on page 2, got %d", len(history.Attempts))
	}
}

func TestSecurityEventsEndpoint(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()
	f.seedUser("jefe@example.com", "Zona4!Lectura-Norte", domain.RoleAdmin, "Jefa")
	f.seedUser("ana@example.com", "Zona4!Lectura-Norte", domain.RoleOperator, "Ana Medina")
	adminToken := f.loginHTTP(t, "jefe@example.com", "Zona4!Lectura-Norte").Token
	operatorToken := f.loginHTTP(t, "ana@example.com", "Zona4!Lectura-Norte").Token

	res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong-password",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("seed failure returned %d", res.Code)
	}

	res = f.do(t, http.MethodGet, "/auth/v1/security-events?kind=login_failure", adminToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("security events returned %d: %s", res.Code, res.Body.String())
	}
	var listing struct {
		Events []application.SecurityEventItem `json:"events"`
	}
	decodeSuccess(t, res, &listing)
	if len(listing.Events) != 1 || listing.Events[0].Kind != "LOGIN_FAILURE" {
		t.Fatalf("unexpected kind filter result: %+v", listing.Events)
	}

	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	res = f.do(t, http.MethodGet, "/auth/v1/security-events?from="+future, adminToken, nil)
	decodeSuccess(t, res, &listing)
	if len(listing.Events) != 0 {
		t.Fatalf("expected no events after future cutoff, got %d", len(listing.Events))
	}

	res = f.do(t, http.MethodGet, "/auth/v1/security-events?from=ayer", adminToken, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad time param, got %d", res.Code)
	}

	res = f.do(t, http.MethodGet, "/auth/v1/security-events", operatorToken, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", res.Code)
	}
}

func TestJWKSServesBareKeySet(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture()

	res := f.do(t, http.MethodGet, "/auth/v1/jwks", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("jwks returned %d: %s", res.Code, res.Body.String())
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if _, ok := doc["status"]; ok {
		t.Fatalf("jwks must not use the service envelope: %s", res.Body.String())
	}
	var keys []map[string]any
	if err := json.Unmarshal(doc["keys"], &keys); err != nil {
		t.Fatalf("decode keys: %v", err)
	}
	if len(keys) != 1 || keys[0]["kid"] != "stub-key" {
		t.Fatalf("unexpected key set: %+v", keys)
	}
}

func TestLoginThrottlePerOrigin(t *testing.T) {
	t.Parallel()

	f := newHTTPFixtureWithThrottle(60, 2)

	body := map[string]string{"email": "ana@example.com", "password": "guess"}
	for i := 0; i < 2; i++ {
		res := f.do(t, http.MethodPost, "/auth/v1/login", "", body)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i+1, res.Code)
		}
	}

	res := f.do(t, http.MethodPost, "/auth/v1/login", "", body)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", res.Code)
	}
	if errBody := decodeError(t, res); errBody.Code != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED, got %+v", errBody)
	}

	// A different forwarded origin gets its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/auth/v1/login", bytes.NewReader(mustJSON(t, body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 70.41.3.18")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected fresh origin to pass the throttle, got %d", rec.Code)
	}
}

type httpFixture struct {
	router http.Handler
	users  *stubUsers
}

func newHTTPFixture() *httpFixture {
	return newHTTPFixtureWithThrottle(60, 10)
}

func newHTTPFixtureWithThrottle(perMinute, burst int) *httpFixture {
	users := &stubUsers{
		byEmail: map[string]domain.User{},
		byID:    map[uuid.UUID]domain.User{},
	}
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			FailedLoginThreshold:     3,
			RateLimitWindow:          5 * time.Minute,
			LockoutDuration:          15 * time.Minute,
			SessionLifetime:          8 * time.Hour,
			ClientRevalidateInterval: 60 * time.Second,
		},
		Users:          users,
		Sessions:       &stubSessions{byID: map[uuid.UUID]domain.Session{}},
		LoginAttempts:  &stubAttempts{},
		SecurityEvents: &stubEvents{},
		Revocations:    &stubRevocations{revoked: map[uuid.UUID]bool{}},
		Hasher:         stubHasher{},
		TokenSigner:    &stubSigner{tokens: map[string]ports.AuthClaims{}},
	})

	return &httpFixture{
		router: NewRouter(NewHandler(svc, perMinute, burst)),
		users:  users,
	}
}

func (f *httpFixture) seedUser(email, password string, role domain.Role, name string) domain.User {
	now := time.Now().UTC()
	u := domain.User{
		UserID:       uuid.New(),
		Email:        email,
		PasswordHash: "hash:" + password,
		Name:         name,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users.mu.Lock()
	f.users.byEmail[u.Email] = u
	f.users.byID[u.UserID] = u
	f.users.mu.Unlock()
	return u
}

func (f *httpFixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(mustJSON(t, body))
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func (f *httpFixture) loginHTTP(t *testing.T, email, password string) application.LoginResponse {
	t.Helper()
	res := f.do(t, http.MethodPost, "/auth/v1/login", "", map[string]string{
		"email": email, "password": password,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("login %s returned %d: %s", email, res.Code, res.Body.String())
	}
	var data application.LoginResponse
	decodeSuccess(t, res, &data)
	return data
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	buf, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return buf
}

type successEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeSuccess(t *testing.T, res *httptest.ResponseRecorder, into any) successEnvelope {
	t.Helper()
	var body successEnvelope
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, res.Body.String())
	}
	if body.Status != "success" {
		t.Fatalf("expected success envelope, got %s", res.Body.String())
	}
	if into != nil {
		if err := json.Unmarshal(body.Data, into); err != nil {
			t.Fatalf("decode data: %v (body %s)", err, res.Body.String())
		}
	}
	return body
}

func decodeError(t *testing.T, res *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var body errorEnvelope
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, res.Body.String())
	}
	if body.Status != "error" {
		t.Fatalf("expected error envelope, got %s", res.Body.String())
	}
	return body
}

type stubUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
	byID    map[uuid.UUID]domain.User
}

func (s *stubUsers) store(u domain.User) {
	s.byEmail[u.Email] = u
	s.byID[u.UserID] = u
}

func (s *stubUsers) Create(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return domain.User{}, domain.ErrConflict
	}
	s.store(user)
	return user, nil
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) RecordLoginFailure(_ context.Context, userID uuid.UUID, threshold int, lockUntil time.Time, at time.Time) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		u.LockedUntil = &lockUntil
	}
	u.UpdatedAt = at
	s.store(u)
	return u, nil
}

func (s *stubUsers) RecordLoginSuccess(_ context.Context, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &at
	u.UpdatedAt = at
	s.store(u)
	return nil
}

func (s *stubUsers) UpdateRole(_ context.Context, userID uuid.UUID, role domain.Role, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = updatedAt
	s.store(u)
	return nil
}

func (s *stubUsers) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	s.store(u)
	return nil
}

func (s *stubUsers) Deactivate(_ context.Context, userID uuid.UUID, deactivatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsActive = false
	u.UpdatedAt = deactivatedAt
	s.store(u)
	return nil
}

type stubSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
}

func (s *stubSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := domain.Session{
		SessionID: uuid.New(),
		UserID:    params.UserID,
		Role:      params.Role,
		Origin:    params.Origin,
		IssuedAt:  params.IssuedAt,
		ExpiresAt: params.ExpiresAt,
	}
	s.byID[sess.SessionID] = sess
	return sess, nil
}

func (s *stubSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return sess, nil
}

func (s *stubSessions) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, sess := range s.byID {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *stubSessions) ListActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, sess := range s.byID {
		if sess.UserID == userID && sess.RevokedAt == nil && !sess.ExpiredAt(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *stubSessions) TouchValidated(_ context.Context, sessionID uuid.UUID, validatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	sess.LastValidatedAt = &validatedAt
	s.byID[sessionID] = sess
	return nil
}

func (s *stubSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	sess.RevokedAt = &revokedAt
	s.byID[sessionID] = sess
	return nil
}

func (s *stubSessions) RevokeAllByUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.byID {
		if sess.UserID == userID && sess.RevokedAt == nil {
			sess.RevokedAt = &revokedAt
			s.byID[id] = sess
		}
	}
	return nil
}

type stubAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (s *stubAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt.ID = int64(len(s.attempts) + 1)
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *stubAttempts) CountRecentFailures(_ context.Context, email string, windowStart, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.attempts {
		if a.Email != email || a.Success {
			continue
		}
		if a.AttemptedAt.Before(windowStart) || a.AttemptedAt.After(now) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *stubAttempts) ListByEmail(_ context.Context, email string, limit, offset int, onlyFailures bool) ([]domain.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.LoginAttempt, 0)
	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if a.Email != email {
			continue
		}
		if onlyFailures && a.Success {
			continue
		}
		matched = append(matched, a)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type stubEvents struct {
	mu    sync.Mutex
	items []domain.SecurityEvent
}

func (s *stubEvents) Append(_ context.Context, event domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = int64(len(s.items) + 1)
	s.items = append(s.items, event)
	return nil
}

func (s *stubEvents) List(_ context.Context, filter ports.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.SecurityEvent, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		e := s.items[i]
		if len(filter.Kinds) > 0 && !eventKindIn(filter.Kinds, e.Kind) {
			continue
		}
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		if filter.Email != "" && e.Email != filter.Email {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *stubEvents) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.SecurityEventRecord, error) {
	return nil, nil
}

func (s *stubEvents) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (s *stubEvents) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (s *stubEvents) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func eventKindIn(kinds []domain.EventKind, kind domain.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type stubRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func (s *stubRevocations) MarkRevoked(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = true
	return nil
}

func (s *stubRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[sessionID], nil
}

type stubHasher struct{}

func (stubHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (stubHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type stubSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.AuthClaims
}

func (s *stubSigner) Sign(claims ports.AuthClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = claims
	return token, nil
}

func (s *stubSigner) ParseAndValidate(token string) (ports.AuthClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, ok := s.tokens[token]
	if !ok {
		return ports.AuthClaims{}, errors.New("token not recognized")
	}
	return claims, nil
}

func (s *stubSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "stub-key", "kty": "RSA"}}, nil
}
