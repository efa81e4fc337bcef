package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/streamify/backend/internal/middleware"
	"github.com/anonto42/streamify/backend/pkg/stream"
	"github.com/labstack/echo/v4"
)

// ChatHandler hands out chat provider tokens
type ChatHandler struct {
	chat stream.ChatProvider
}

func NewChatHandler(chat stream.ChatProvider) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// RegisterChatRoutes registers chat-related routes
func (h *ChatHandler) RegisterChatRoutes(g *echo.Group) {
	g.GET("/token", h.GetStreamToken)
}

// GetStreamToken mints a chat token for the authenticated user
func (h *ChatHandler) GetStreamToken(c echo.Context) error {
	token, err := h.chat.CreateToken(middleware.CurrentUser(c).ID)
	if err != nil {
		if errors.Is(err, stream.ErrDisabled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return internalError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}
