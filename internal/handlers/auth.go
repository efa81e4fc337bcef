package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/anonto42/streamify/backend/internal/auth"
	"github.com/anonto42/streamify/backend/internal/middleware"
	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/anonto42/streamify/backend/pkg/media"
	"github.com/anonto42/streamify/backend/pkg/stream"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// IDTokenVerifier verifies Firebase ID tokens. *auth.Client from the Firebase SDK satisfies it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	userRepository repositories.UserRepository
	tokens         *auth.TokenManager
	revoked        auth.RevocationList
	chat           stream.ChatProvider
	media          media.Store
	firebaseAuth   IDTokenVerifier
	secureCookies  bool
}

// AuthHandlerConfig lists the collaborators of AuthHandler. Media and FirebaseAuth are optional.
type AuthHandlerConfig struct {
	Users         repositories.UserRepository
	Tokens        *auth.TokenManager
	Revoked       auth.RevocationList
	Chat          stream.ChatProvider
	Media         media.Store
	FirebaseAuth  IDTokenVerifier
	SecureCookies bool
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		userRepository: cfg.Users,
		tokens:         cfg.Tokens,
		revoked:        cfg.Revoked,
		chat:           cfg.Chat,
		media:          cfg.Media,
		firebaseAuth:   cfg.FirebaseAuth,
		secureCookies:  cfg.SecureCookies,
	}
}

// RegisterAuthRoutes registers authentication-related routes. protect guards the routes that
// need a session.
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group, protect echo.MiddlewareFunc) {
	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	if h.firebaseAuth != nil {
		g.POST("/firebase-login", h.FirebaseLogin)
	}
	g.PUT("/updateProfile", h.UpdateProfile, protect)
	g.GET("/check", h.Check, protect)
}

// Signup handles local user registration with email and password
func (h *AuthHandler) Signup(c echo.Context) error {
	var req models.SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Check if user with this email already exists
	if _, err := h.userRepository.GetUserByEmail(ctx, email); err == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return internalError(err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return internalError(err)
	}

	user := &models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: string(hashedPassword),
	}
	if err := h.userRepository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
		}
		return internalError(err)
	}

	h.syncChatUser(ctx, user)

	if err := h.startSession(c, user); err != nil {
		return internalError(err)
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID}).Info("User signed up")
	return c.JSON(http.StatusCreated, user)
}

// Login handles local user authentication with email and password
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.userRepository.GetUserByEmail(c.Request().Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid credentials")
		}
		return internalError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid credentials")
	}

	if err := h.startSession(c, user); err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// Logout clears the session cookie. When the request still carries a valid session, the token
// is revoked and the user's lastSeen is updated.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.clearSessionCookie(c)

	tokenString := middleware.TokenFromRequest(c)
	if tokenString == "" {
		return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully."})
	}
	claims, err := h.tokens.Parse(tokenString)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully."})
	}

	ctx := c.Request().Context()
	if err := h.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return internalError(err)
	}

	user, err := h.userRepository.TouchLastSeen(ctx, claims.UserID, time.Now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully."})
		}
		return internalError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile changes the caller's name and/or profile picture. A data URL picture is
// uploaded to the media store, an http(s) URL is stored as is.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	current := middleware.CurrentUser(c)

	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Name == "" && req.ProfilePic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Either profilePic or name is required")
	}

	ctx := c.Request().Context()
	var update models.ProfileUpdate
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		update.Name = &name
	}
	if req.ProfilePic != "" {
		url, err := h.storeProfilePic(ctx, current.ID, req.ProfilePic)
		if err != nil {
			return err
		}
		update.ProfilePic = &url
	}

	user, err := h.userRepository.UpdateProfile(ctx, current.ID, update)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return internalError(err)
	}

	h.syncChatUser(ctx, user)
	middleware.SetCurrentUser(c, user)
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) storeProfilePic(ctx context.Context, userID, pic string) (string, error) {
	if strings.HasPrefix(pic, "http://") || strings.HasPrefix(pic, "https://") {
		return pic, nil
	}

	img, err := media.DecodeImageDataURL(pic)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.media == nil {
		return "", echo.NewHTTPError(http.StatusServiceUnavailable, "Image uploads are not configured")
	}

	key := "profile-pics/" + userID + "/" + uuid.NewString() + img.Extension
	url, err := h.media.Upload(ctx, key, img.Data, img.ContentType)
	if err != nil {
		return "", internalError(err)
	}
	return url, nil
}

// Check returns the user resolved from the session
func (h *AuthHandler) Check(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	return c.JSON(http.StatusOK, user)
}

// FirebaseLogin verifies a Firebase ID token and starts a local session for the matching user,
// creating it on first login.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req models.FirebaseLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	token, err := h.firebaseAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}

	email, _ := token.Claims["email"].(string)
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Firebase account has no email")
	}
	email = strings.ToLower(email)

	user, err := h.userRepository.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrNotFound):
		user, err = h.createFirebaseUser(ctx, token, email)
		if errors.Is(err, repositories.ErrEmailTaken) {
			// A concurrent first login created the account.
			user, err = h.userRepository.GetUserByEmail(ctx, email)
		}
		if err != nil {
			return internalError(err)
		}
	default:
		return internalError(err)
	}

	if err := h.startSession(c, user); err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) createFirebaseUser(ctx context.Context, token *firebaseauth.Token, email string) (*models.User, error) {
	name, _ := token.Claims["name"].(string)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	picture, _ := token.Claims["picture"].(string)

	// Firebase users never log in with a password, so store an unguessable one.
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{Name: name, Email: email, Password: string(hashedPassword), ProfilePic: picture}
	if err := h.userRepository.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	h.syncChatUser(ctx, user)
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "firebase_uid": token.UID}).Info("User created from Firebase login")
	return user, nil
}

// syncChatUser upserts the chat identity. Failures never abort the account operation.
func (h *AuthHandler) syncChatUser(ctx context.Context, user *models.User) {
	if err := h.chat.UpsertUser(ctx, user.ID, user.Name, user.ProfilePic); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": user.ID}).Warn("Chat user upsert failed")
	}
}

func (h *AuthHandler) startSession(c echo.Context, user *models.User) error {
	token, _, err := h.tokens.Issue(user.ID)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
