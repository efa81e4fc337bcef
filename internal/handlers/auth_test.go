package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/anonto42/streamify/backend/internal/auth"
	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/anonto42/streamify/backend/pkg/stream"
	"github.com/anonto42/streamify/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier struct {
	token *firebaseauth.Token
}

func (v staticVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return v.token, nil
}

// lateUsers hides the account from the first email lookup and creates it just before the
// handler's own insert, the way a concurrent first login would.
type lateUsers struct {
	repositories.UserRepository
	existing *models.User
	lookups  int
}

func (u *lateUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u.lookups++
	if u.lookups == 1 {
		return nil, repositories.ErrNotFound
	}
	return u.UserRepository.GetUserByEmail(ctx, email)
}

func (u *lateUsers) CreateUser(ctx context.Context, user *models.User) error {
	if u.existing.ID == "" {
		if err := u.UserRepository.CreateUser(ctx, u.existing); err != nil {
			return err
		}
	}
	return u.UserRepository.CreateUser(ctx, user)
}

func TestFirebaseLoginConcurrentFirstLogin(t *testing.T) {
	users := &lateUsers{
		UserRepository: repositories.NewMemoryStore().Users(),
		existing:       &models.User{Name: "Alice", Email: "alice@example.com", Password: "hash"},
	}
	h := NewAuthHandler(AuthHandlerConfig{
		Users:   users,
		Tokens:  auth.NewTokenManager("test-secret"),
		Revoked: auth.NewMemoryRevocationList(),
		Chat:    stream.Disabled{},
		FirebaseAuth: staticVerifier{token: &firebaseauth.Token{
			UID:    "firebase-uid",
			Claims: map[string]interface{}{"email": "alice@example.com", "name": "Alice"},
		}},
	})

	e := echo.New()
	e.Validator = validators.NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/firebase-login", strings.NewReader(`{"idToken":"token"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.FirebaseLogin(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), users.existing.ID)
	assert.Equal(t, 2, users.lookups)
}
