package router

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anonto42/streamify/backend/internal/auth"
	"github.com/anonto42/streamify/backend/internal/handlers"
	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/anonto42/streamify/backend/pkg/stream"
	"github.com/anonto42/streamify/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type fakeChat struct {
	mu         sync.Mutex
	names      map[string]string
	failUpsert bool
}

func (f *fakeChat) UpsertUser(_ context.Context, id, name, _ string) error {
	if f.failUpsert {
		return errors.New("stream unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[id] = name
	return nil
}

func (f *fakeChat) CreateToken(id string) (string, error) {
	return "chat-" + id, nil
}

type fakeMedia struct {
	keys []string
}

func (f *fakeMedia) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type testServer struct {
	e     *echo.Echo
	chat  *fakeChat
	media *fakeMedia
}

func newTestServer(t *testing.T, chat stream.ChatProvider) *testServer {
	t.Helper()
	ts := &testServer{media: &fakeMedia{}}
	if chat == nil {
		ts.chat = &fakeChat{names: map[string]string{}}
		chat = ts.chat
	}

	e := echo.New()
	e.HTTPErrorHandler = handlers.HTTPErrorHandler
	e.JSONSerializer = JSONSerializer{}
	e.Validator = validators.NewValidator()
	SetupRoutes(e, &Dependencies{
		Store:   repositories.NewMemoryStore(),
		Tokens:  auth.NewTokenManager("test-secret"),
		Revoked: auth.NewMemoryRevocationList(),
		Chat:    chat,
		Media:   ts.media,
	})
	ts.e = e
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) signup(t *testing.T, name string) (*models.User, *http.Cookie) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/signup", echo.Map{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user models.User
	decode(t, rec, &user)
	return &user, sessionCookie(t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "jwt" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handlers.ErrorResponse
	decode(t, rec, &body)
	return body.Message
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestSignupLoginAndCheck(t *testing.T) {
	ts := newTestServer(t, nil)

	user, cookie := ts.signup(t, "alice")
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.DefaultProfilePic, user.ProfilePic)
	assert.NotContains(t, strings.ToLower(ts.do(t, http.MethodGet, "/api/auth/check", nil, cookie).Body.String()), "password")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int(auth.SessionTTL.Seconds()), cookie.MaxAge)
	assert.Equal(t, "alice", ts.chat.names[user.ID])

	rec := ts.do(t, http.MethodPost, "/api/auth/signup", echo.Map{
		"name": "alice", "email": "ALICE@example.com", "password": "secret123",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", errorMessage(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/auth/login", echo.Map{"email": "alice@example.com", "password": "wrong-pass"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", echo.Map{"email": "alice@example.com", "password": "secret123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loginCookie := sessionCookie(t, rec)

	rec = ts.do(t, http.MethodGet, "/api/auth/check", nil, loginCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	decode(t, rec, &me)
	assert.Equal(t, user.ID, me.ID)

	rec = ts.do(t, http.MethodGet, "/api/auth/check", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, no token", errorMessage(t, rec))
}

func TestSignupValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/auth/signup", echo.Map{
		"name": "bob", "email": "bob@example.com", "password": "123",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "Password")

	rec = ts.do(t, http.MethodPost, "/api/auth/signup", echo.Map{
		"name": "bob", "email": "not-an-email", "password": "secret123",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "Email")
}

func TestSignupSurvivesChatFailure(t *testing.T) {
	ts := newTestServer(t, &fakeChat{names: map[string]string{}, failUpsert: true})
	user, _ := ts.signup(t, "carol")
	assert.NotEmpty(t, user.ID)
}

func TestLogoutRevokesSession(t *testing.T) {
	ts := newTestServer(t, nil)
	user, cookie := ts.signup(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var out models.User
	decode(t, rec, &out)
	assert.Equal(t, user.ID, out.ID)
	assert.False(t, out.LastSeen.IsZero())

	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)

	rec = ts.do(t, http.MethodGet, "/api/auth/check", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logged out successfully.")
}

func TestUpdateProfile(t *testing.T) {
	ts := newTestServer(t, nil)
	user, cookie := ts.signup(t, "alice")

	rec := ts.do(t, http.MethodPut, "/api/auth/updateProfile", echo.Map{}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Either profilePic or name is required", errorMessage(t, rec))

	rec = ts.do(t, http.MethodPut, "/api/auth/updateProfile", echo.Map{"name": "Alice Liddell"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.User
	decode(t, rec, &updated)
	assert.Equal(t, "Alice Liddell", updated.Name)
	assert.Equal(t, "Alice Liddell", ts.chat.names[user.ID])

	rec = ts.do(t, http.MethodPut, "/api/auth/updateProfile", echo.Map{"profilePic": "data:image/png;base64," + pixelPNG}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &updated)
	require.Len(t, ts.media.keys, 1)
	assert.True(t, strings.HasPrefix(ts.media.keys[0], "profile-pics/"+user.ID+"/"))
	assert.Equal(t, "https://cdn.example.com/"+ts.media.keys[0], updated.ProfilePic)

	rec = ts.do(t, http.MethodPut, "/api/auth/updateProfile", echo.Map{"profilePic": "https://images.example.com/me.jpg"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &updated)
	assert.Equal(t, "https://images.example.com/me.jpg", updated.ProfilePic)

	rec = ts.do(t, http.MethodPut, "/api/auth/updateProfile", echo.Map{"profilePic": "not a picture"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFriendRequestFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, aliceCookie := ts.signup(t, "alice")
	bob, bobCookie := ts.signup(t, "bob")

	rec := ts.do(t, http.MethodGet, "/api/users", nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var recommended []models.UserSummary
	decode(t, rec, &recommended)
	require.Len(t, recommended, 1)
	assert.Equal(t, bob.ID, recommended[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/users/friend-request/"+alice.ID, nil, aliceCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/users/friend-request/missing", nil, aliceCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/users/friend-request/"+bob.ID, nil, aliceCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	var req models.FriendRequest
	decode(t, rec, &req)
	assert.Equal(t, models.FriendRequestStatusPending, req.Status)

	rec = ts.do(t, http.MethodPost, "/api/users/friend-request/"+alice.ID, nil, bobCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/outgoing-friend-requests", nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var outgoing []models.FriendRequestView
	decode(t, rec, &outgoing)
	require.Len(t, outgoing, 1)
	assert.Equal(t, bob.ID, outgoing[0].Recipient.ID)

	rec = ts.do(t, http.MethodGet, "/api/users/friend-requests", nil, bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview models.FriendRequestOverview
	decode(t, rec, &overview)
	require.Len(t, overview.Incoming, 1)
	assert.Equal(t, alice.ID, overview.Incoming[0].Sender.ID)

	rec = ts.do(t, http.MethodPut, "/api/users/friend-request/"+req.ID+"/accept", nil, aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/users/friend-request/"+req.ID+"/accept", nil, bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/users/friend-request/"+req.ID+"/accept", nil, bobCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/users/friend-request/missing/accept", nil, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/friends", nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var friends []models.UserSummary
	decode(t, rec, &friends)
	require.Len(t, friends, 1)
	assert.Equal(t, bob.ID, friends[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/users", nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &recommended)
	assert.Empty(t, recommended)
}

func TestRejectThenResend(t *testing.T) {
	ts := newTestServer(t, nil)
	_, carolCookie := ts.signup(t, "carol")
	dave, daveCookie := ts.signup(t, "dave")

	rec := ts.do(t, http.MethodPost, "/api/users/friend-request/"+dave.ID, nil, carolCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	var req models.FriendRequest
	decode(t, rec, &req)

	rec = ts.do(t, http.MethodPost, "/api/users/friend-request/"+req.ID+"/reject", nil, daveCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/friend-requests", nil, carolCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview models.FriendRequestOverview
	decode(t, rec, &overview)
	require.Len(t, overview.Rejecting, 1)
	assert.Equal(t, dave.ID, overview.Rejecting[0].Recipient.ID)

	rec = ts.do(t, http.MethodPost, "/api/users/friend-request/"+dave.ID, nil, carolCookie)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestChatToken(t *testing.T) {
	ts := newTestServer(t, nil)
	user, cookie := ts.signup(t, "alice")

	rec := ts.do(t, http.MethodGet, "/api/chat/token", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "chat-"+user.ID, body["token"])

	rec = ts.do(t, http.MethodGet, "/api/chat/token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	disabled := newTestServer(t, stream.Disabled{})
	_, cookie = disabled.signup(t, "bob")
	rec = disabled.do(t, http.MethodGet, "/api/chat/token", nil, cookie)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
