package handlers

import (
	"net/http"

	"github.com/anonto42/streamify/backend/internal/middleware"
	"github.com/anonto42/streamify/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// FriendshipHandler handles HTTP requests related to friendships
type FriendshipHandler struct {
	friendships *services.FriendshipService
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(friendships *services.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{friendships: friendships}
}

// RegisterFriendshipRoutes registers friendship-related routes on the users group
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.GET("", h.GetRecommendedUsers)
	g.GET("/friends", h.GetFriends)
	g.GET("/friend-requests", h.GetFriendRequests)
	g.GET("/outgoing-friend-requests", h.GetOutgoingFriendRequests)
	g.POST("/friend-request/:id", h.SendFriendRequest)
	g.PUT("/friend-request/:id/accept", h.AcceptFriendRequest)
	g.POST("/friend-request/:id/reject", h.RejectFriendRequest)
}

// GetRecommendedUsers lists every user the caller is not yet friends with
func (h *FriendshipHandler) GetRecommendedUsers(c echo.Context) error {
	users, err := h.friendships.Recommend(c.Request().Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusOK, users)
}

// GetFriends retrieves the list of friends for the authenticated user
func (h *FriendshipHandler) GetFriends(c echo.Context) error {
	friends, err := h.friendships.ListFriends(c.Request().Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusOK, friends)
}

// GetFriendRequests returns incoming pending requests plus the caller's answered outgoing ones
func (h *FriendshipHandler) GetFriendRequests(c echo.Context) error {
	overview, err := h.friendships.ListRequests(c.Request().Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusOK, overview)
}

// GetOutgoingFriendRequests returns requests the caller sent that are still pending
func (h *FriendshipHandler) GetOutgoingFriendRequests(c echo.Context) error {
	requests, err := h.friendships.ListOutgoingPending(c.Request().Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusOK, requests)
}

// SendFriendRequest sends a friend request to the user named by :id
func (h *FriendshipHandler) SendFriendRequest(c echo.Context) error {
	req, err := h.friendships.SendRequest(c.Request().Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusCreated, req)
}

// AcceptFriendRequest accepts the request named by :id. Only its recipient may do so.
func (h *FriendshipHandler) AcceptFriendRequest(c echo.Context) error {
	req, err := h.friendships.AcceptRequest(c.Request().Context(), c.Param("id"), middleware.CurrentUser(c).ID)
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Friend request accepted", "request": req})
}

func (h *FriendshipHandler) RejectFriendRequest(c echo.Context) error {
	req, err := h.friendships.RejectRequest(c.Request().Context(), c.Param("id"), middleware.CurrentUser(c).ID)
	if err != nil {
		return friendshipError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Friend request rejected", "request": req})
}
