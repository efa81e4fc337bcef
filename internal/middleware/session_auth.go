package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anonto42/streamify/backend/internal/auth"
	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "jwt"

const (
	userContextKey   = "user"
	claimsContextKey = "claims"
)

// SessionAuthMiddleware resolves the session token to a user and stores both on the context.
// Every failure is reported as 401.
func SessionAuthMiddleware(tokens *auth.TokenManager, revoked auth.RevocationList, users repositories.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := TokenFromRequest(c)
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, no token")
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, token failed")
			}

			ctx := c.Request().Context()
			isRevoked, err := revoked.IsRevoked(ctx, claims.ID)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"user_id": claims.UserID}).Error("Failed to check token revocation")
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, token failed")
			}
			if isRevoked {
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, token revoked")
			}

			user, err := users.GetUserByID(ctx, claims.UserID)
			if err != nil {
				if !errors.Is(err, repositories.ErrNotFound) {
					logrus.WithError(err).WithFields(logrus.Fields{"user_id": claims.UserID}).Error("Failed to load session user")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, no user found")
			}

			c.Set(userContextKey, user)
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// TokenFromRequest returns the session token from the cookie, or from a Bearer header.
func TokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.Split(c.Request().Header.Get("Authorization"), " ")
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}

// CurrentUser returns the user resolved by SessionAuthMiddleware, or nil.
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}

// CurrentClaims returns the token claims resolved by SessionAuthMiddleware, or nil.
func CurrentClaims(c echo.Context) *models.JwtCustomClaims {
	claims, _ := c.Get(claimsContextKey).(*models.JwtCustomClaims)
	return claims
}

// SetCurrentUser replaces the user on the context, e.g. after a profile update.
func SetCurrentUser(c echo.Context, user *models.User) {
	c.Set(userContextKey, user)
}
