package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/kasuganosora/socialgraph/audit"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(http.MethodPost, "/api/signup/", map[string]string{
		"email":                 "Alice@Example.com",
		"password":              "pass12345",
		"password_confirmation": "pass12345",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.NotZero(t, resp["id"])
	assert.Equal(t, "alice@example.com", resp["email"])
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, a.audit.actions(), audit.ActionSignup)
}

func TestSignup_Validation(t *testing.T) {
	a := newTestAPI(t)

	cases := map[string]map[string]string{
		"bad email":      {"email": "nope", "password": "pass12345", "password_confirmation": "pass12345"},
		"short password": {"email": "a@example.com", "password": "short", "password_confirmation": "short"},
		"missing confirm": {"email": "a@example.com", "password": "pass12345"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := a.do(http.MethodPost, "/api/signup/", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSignup_PasswordMismatch(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(http.MethodPost, "/api/signup/", map[string]string{
		"email":                 "a@example.com",
		"password":              "pass12345",
		"password_confirmation": "pass54321",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "passwords do not match", errorOf(t, w))
}

func TestSignup_DuplicateEmail(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "dup@example.com")

	w := a.do(http.MethodPost, "/api/signup/", map[string]string{
		"email":                 "DUP@example.com",
		"password":              "pass12345",
		"password_confirmation": "pass12345",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email already exists", errorOf(t, w))
}

func TestLogin_IssuesTokenPair(t *testing.T) {
	a := newTestAPI(t)
	id := a.signup(t, "bob@example.com")

	access, refresh := a.login(t, "BOB@example.com")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := mw.ParseTokenOfType(access, mw.TokenTypeAccess, a.sec.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	_, err = mw.ParseTokenOfType(refresh, mw.TokenTypeRefresh, a.sec.JWTSecret)
	require.NoError(t, err)

	ctx := context.Background()
	live, _ := a.cache.Exists(ctx, mw.SessionKey(access))
	assert.True(t, live)
	live, _ = a.cache.Exists(ctx, mw.RefreshKey(refresh))
	assert.True(t, live)
}

func TestLogin_WrongPassword(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "carol@example.com")

	w := a.do(http.MethodPost, "/api/login/", map[string]string{"email": "carol@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid credentials", errorOf(t, w))

	w = a.do(http.MethodPost, "/api/login/", map[string]string{"email": "ghost@example.com", "password": "pass12345"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_BadBody(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(http.MethodPost, "/api/login/", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefresh(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "dan@example.com")
	_, refresh := a.login(t, "dan@example.com")

	w := a.do(http.MethodPost, "/api/token/refresh/", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Access string `json:"access_token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Access)

	w = a.authed(http.MethodGet, "/api/friends/", resp.Access, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "erin@example.com")
	access, _ := a.login(t, "erin@example.com")

	w := a.do(http.MethodPost, "/api/token/refresh/", map[string]string{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshToken_NotAcceptedAsAccess(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "fay@example.com")
	_, refresh := a.login(t, "fay@example.com")

	w := a.authed(http.MethodGet, "/api/friends/", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "gus@example.com")
	access, refresh := a.login(t, "gus@example.com")

	w := a.authed(http.MethodPost, "/api/logout/", access, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.authed(http.MethodGet, "/api/friends/", access, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = a.do(http.MethodPost, "/api/token/refresh/", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, a.audit.actions(), audit.ActionLogout)
	assert.Equal(t, []string{access}, a.conns.closed())
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	a := newTestAPI(t)
	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/api/logout/"},
		{http.MethodPatch, "/api/update_name/"},
		{http.MethodGet, "/api/search/"},
		{http.MethodPost, "/api/friend-request/"},
		{http.MethodPatch, "/api/friend-request/accept/1/"},
		{http.MethodDelete, "/api/friend-request/reject/1/"},
		{http.MethodGet, "/api/friends/"},
		{http.MethodGet, "/api/pending-requests/"},
	} {
		w := a.do(rt.method, rt.path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
