package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/streamify/backend/internal/models"
)

var (
	// ErrNotFound is returned when a user or friend request does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when creating a user whose email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrDuplicateRequest is returned when an active request already exists for a user pair.
	ErrDuplicateRequest = errors.New("active friend request already exists for this pair")
	// ErrStatusConflict is returned by TransitionStatus when the stored status is not the expected one.
	ErrStatusConflict = errors.New("friend request status changed concurrently")
)

// UserRepository defines the directory operations on users and their friend sets.
type UserRepository interface {
	// CreateUser assigns the ID and timestamps of user and persists it.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetSummariesByIDs resolves ids to summaries. Unknown ids are skipped.
	GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error)
	// ListSummariesExcluding returns every user whose id is not in excluded.
	ListSummariesExcluding(ctx context.Context, excluded []string) ([]models.UserSummary, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) (*models.User, error)
	// AddFriend adds friendID to the friend set of userID. Adding an existing friend is a no-op.
	AddFriend(ctx context.Context, userID, friendID string) error
}

// FriendRequestRepository defines the ledger operations on friend requests.
type FriendRequestRepository interface {
	// CreateFriendRequest persists req. It must fail with ErrDuplicateRequest, atomically with
	// the insert, when an active request exists for the same unordered pair.
	CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error
	GetFriendRequestByID(ctx context.Context, id string) (*models.FriendRequest, error)
	// FindActiveBetween returns the active request between a and b in either direction.
	FindActiveBetween(ctx context.Context, a, b string) (*models.FriendRequest, error)
	ListBySender(ctx context.Context, senderID string, status models.FriendRequestStatus) ([]models.FriendRequest, error)
	ListByRecipient(ctx context.Context, recipientID string, status models.FriendRequestStatus) ([]models.FriendRequest, error)
	// TransitionStatus moves the request from `from` to `to` only if it is currently in `from`,
	// and returns the updated request. Otherwise it fails with ErrStatusConflict.
	TransitionStatus(ctx context.Context, id string, from, to models.FriendRequestStatus) (*models.FriendRequest, error)
}

// Store bundles the directory and the ledger with a transaction boundary.
//
// RunInTransaction runs fn so that every repository call made with the context passed to fn
// commits or rolls back together. Repositories called with any other context run outside the
// transaction.
type Store interface {
	Users() UserRepository
	FriendRequests() FriendRequestRepository
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
