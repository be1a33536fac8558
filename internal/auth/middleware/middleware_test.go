package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/pbpd/internal/auth/middleware"
	"github.com/mind-engage/pbpd/internal/rbac"
)

func creds(t *testing.T) auth.Credentials {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return auth.Credentials{User: "admin", PassHash: string(hash)}
}

func login(t *testing.T, a *auth.AuthService, c auth.Credentials, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	auth.LoginHandler(a, c).ServeHTTP(rec, req)
	return rec
}

func TestLoginAndMiddleware(t *testing.T) {
	a := auth.NewAuthService("test-secret")
	c := creds(t)

	rec := login(t, a, c, `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, rbac.RoleAdmin, out.Role)

	var gotSub, gotRole string
	h := auth.JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = auth.SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", gotSub)
	assert.Equal(t, rbac.RoleAdmin, gotRole)
}

func TestLoginRejects(t *testing.T) {
	a := auth.NewAuthService("test-secret")
	c := creds(t)

	assert.Equal(t, http.StatusUnauthorized, login(t, a, c, `{"username":"admin","password":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, a, c, `{"username":"root","password":"s3cret"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(t, a, c, `{`).Code)
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := auth.NewAuthService("test-secret")
	other := auth.NewAuthService("other-secret")
	forged, err := other.IssueJWT("admin", rbac.RoleAdmin)
	require.NoError(t, err)

	h := auth.JWTMiddleware(a)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	for _, hdr := range []string{"", "Basic abc", "Bearer garbage", "Bearer " + forged} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, hdr)
	}
}

func TestAnonymousRole(t *testing.T) {
	var role string
	h := auth.AnonymousRole(rbac.RoleOperator)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		role = rbac.RoleFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, rbac.RoleOperator, role)
}
