package models

import "time"

type FriendRequestStatus string

const (
	FriendRequestStatusPending  FriendRequestStatus = "pending"
	FriendRequestStatusAccepted FriendRequestStatus = "accepted"
	FriendRequestStatusRejected FriendRequestStatus = "rejected"
)

// Active reports whether a request in this status still occupies its user pair.
func (s FriendRequestStatus) Active() bool {
	return s == FriendRequestStatusPending || s == FriendRequestStatusAccepted
}

// FriendRequest is a directional request from Sender to Recipient.
type FriendRequest struct {
	ID        string              `json:"_id"`
	Sender    string              `json:"sender"`
	Recipient string              `json:"recipient"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// PairKey identifies the unordered pair of users, so A->B and B->A share a key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// FriendRequestView is a request with its counterpart resolved. Only one of Sender
// and Recipient is set, depending on which side the viewer is on.
type FriendRequestView struct {
	ID        string              `json:"_id"`
	Status    FriendRequestStatus `json:"status"`
	Sender    *UserSummary        `json:"sender,omitempty"`
	Recipient *UserSummary        `json:"recipient,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// FriendRequestOverview groups a user's requests the way the notification page shows them.
type FriendRequestOverview struct {
	Incoming  []FriendRequestView `json:"incoming"`
	Outgoing  []FriendRequestView `json:"outgoing"`
	Rejecting []FriendRequestView `json:"rejecting"`
}
