package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultProfilePic is assigned to users that never uploaded a picture.
const DefaultProfilePic = "/avatar.png"

// User is a member of the directory together with the ids of its confirmed friends.
type User struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Password   string    `json:"-"` // bcrypt hash
	ProfilePic string    `json:"profilePic"`
	LastSeen   time.Time `json:"lastSeen"`
	Friends    []string  `json:"friends"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasFriend reports whether id is in the user's friend set.
func (u *User) HasFriend(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// ToSummary projects the user onto the fields shown in lists.
func (u *User) ToSummary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Name:       u.Name,
		ProfilePic: u.ProfilePic,
		LastSeen:   u.LastSeen,
	}
}

// UserSummary is the public profile of a user as seen by other users.
type UserSummary struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	ProfilePic string    `json:"profilePic"`
	LastSeen   time.Time `json:"lastSeen"`
}

// ProfileUpdate carries the optional fields of a profile mutation. Nil fields are left untouched.
type ProfileUpdate struct {
	Name       *string
	ProfilePic *string
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// UpdateProfileRequest accepts either a data URL or an http(s) URL as profile picture.
type UpdateProfileRequest struct {
	Name       string `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
