package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anonto42/streamify/backend/internal/auth"
	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	tokens  *auth.TokenManager
	revoked *auth.MemoryRevocationList
	store   *repositories.MemoryStore
	user    *models.User
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		tokens:  auth.NewTokenManager("middleware-secret"),
		revoked: auth.NewMemoryRevocationList(),
		store:   repositories.NewMemoryStore(),
		user:    &models.User{Name: "alice", Email: "alice@example.com"},
	}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), f.user))
	return f
}

// serve runs the middleware in front of a handler that echoes the resolved user id.
func (f *sessionFixture) serve(req *http.Request) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := SessionAuthMiddleware(f.tokens, f.revoked, f.store.Users())(func(c echo.Context) error {
		if CurrentClaims(c) == nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "claims missing")
		}
		return c.String(http.StatusOK, CurrentUser(c).ID)
	})
	return rec, h(c)
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestSessionFromCookie(t *testing.T) {
	f := newSessionFixture(t)
	token, _, err := f.tokens.Issue(f.user.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec, err := f.serve(req)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, rec.Body.String())
}

func TestSessionFromBearerHeader(t *testing.T) {
	f := newSessionFixture(t)
	token, _, err := f.tokens.Issue(f.user.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, err := f.serve(req)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, rec.Body.String())
}

func TestSessionRejections(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	assertUnauthorized(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "garbage"})
	_, err = f.serve(req)
	assertUnauthorized(t, err)

	foreign, _, err := auth.NewTokenManager("other-secret").Issue(f.user.ID)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: foreign})
	_, err = f.serve(req)
	assertUnauthorized(t, err)

	orphan, _, err := f.tokens.Issue("deleted-user")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: orphan})
	_, err = f.serve(req)
	assertUnauthorized(t, err)
}

func TestSessionRevoked(t *testing.T) {
	f := newSessionFixture(t)
	token, claims, err := f.tokens.Issue(f.user.ID)
	require.NoError(t, err)
	require.NoError(t, f.revoked.Revoke(context.Background(), claims.ID, time.Now().Add(time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	_, err = f.serve(req)
	assertUnauthorized(t, err)
}
