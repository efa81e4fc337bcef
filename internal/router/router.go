package router

import (
	"github.com/anonto42/streamify/backend/internal/handlers"
	"github.com/anonto42/streamify/backend/internal/middleware"
	"github.com/anonto42/streamify/backend/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps *Dependencies) {
	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	users := deps.Store.Users()
	protect := middleware.SessionAuthMiddleware(deps.Tokens, deps.Revoked, users)

	// --- Auth routes, partly public ---
	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Users:         users,
		Tokens:        deps.Tokens,
		Revoked:       deps.Revoked,
		Chat:          deps.Chat,
		Media:         deps.Media,
		FirebaseAuth:  deps.FirebaseAuth,
		SecureCookies: deps.SecureCookies,
	})
	authHandler.RegisterAuthRoutes(e.Group("/api/auth"), protect)
	logrus.Info("Auth routes configured.")

	// --- Protected routes (require a session) ---
	friendshipHandler := handlers.NewFriendshipHandler(services.NewFriendshipService(deps.Store))
	friendshipHandler.RegisterFriendshipRoutes(e.Group("/api/users", protect))
	logrus.Info("Friendship routes configured.")

	chatHandler := handlers.NewChatHandler(deps.Chat)
	chatHandler.RegisterChatRoutes(e.Group("/api/chat", protect))
	logrus.Info("Chat routes configured.")

	logrus.Info("All routes configured.")
}
