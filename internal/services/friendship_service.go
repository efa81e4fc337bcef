package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

var (
	ErrSelfRequest       = errors.New("cannot send request to yourself")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrAlreadyFriends    = errors.New("you are already friends")
	ErrDuplicateRequest  = errors.New("a friend request already exists between you")
	ErrRequestNotFound   = errors.New("friend request not found")
	ErrNotAuthorized     = errors.New("you are not authorized to respond to this request")
	ErrRequestNotPending = errors.New("friend request has already been answered")
	ErrUserNotFound      = errors.New("user not found")
)

// FriendshipService runs the friend request workflow and keeps the friend sets of the
// directory consistent with accepted requests.
type FriendshipService struct {
	store repositories.Store
}

// NewFriendshipService creates a new FriendshipService
func NewFriendshipService(store repositories.Store) *FriendshipService {
	return &FriendshipService{store: store}
}

// Recommend returns every user except the caller and the caller's friends.
func (s *FriendshipService) Recommend(ctx context.Context, callerID string) ([]models.UserSummary, error) {
	me, err := s.getUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	excluded := append([]string{me.ID}, me.Friends...)
	users, err := s.store.Users().ListSummariesExcluding(ctx, excluded)
	if err != nil {
		return nil, fmt.Errorf("list recommended users: %w", err)
	}
	return users, nil
}

// ListFriends resolves the caller's friend set to summaries.
func (s *FriendshipService) ListFriends(ctx context.Context, callerID string) ([]models.UserSummary, error) {
	me, err := s.getUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if len(me.Friends) == 0 {
		return []models.UserSummary{}, nil
	}
	friends, err := s.store.Users().GetSummariesByIDs(ctx, me.Friends)
	if err != nil {
		return nil, fmt.Errorf("resolve friends: %w", err)
	}
	return friends, nil
}

// SendRequest creates a pending request from senderID to recipientID. A rejected request
// between the pair does not block a new one.
func (s *FriendshipService) SendRequest(ctx context.Context, senderID, recipientID string) (*models.FriendRequest, error) {
	if senderID == recipientID {
		return nil, ErrSelfRequest
	}

	sender, err := s.getUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.store.Users().GetUserByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	if sender.HasFriend(recipient.ID) || recipient.HasFriend(sender.ID) {
		return nil, ErrAlreadyFriends
	}

	_, err = s.store.FriendRequests().FindActiveBetween(ctx, sender.ID, recipient.ID)
	if err == nil {
		return nil, ErrDuplicateRequest
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("check existing requests: %w", err)
	}

	req := &models.FriendRequest{
		Sender:    sender.ID,
		Recipient: recipient.ID,
		Status:    models.FriendRequestStatusPending,
	}
	// The store rejects a concurrent insert for the same pair.
	if err := s.store.FriendRequests().CreateFriendRequest(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrDuplicateRequest) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("create friend request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"request_id": req.ID,
		"sender":     req.Sender,
		"recipient":  req.Recipient,
	}).Info("Friend request sent")
	return req, nil
}

// AcceptRequest marks the request accepted and links both users as friends in one transaction.
func (s *FriendshipService) AcceptRequest(ctx context.Context, requestID, actingUserID string) (*models.FriendRequest, error) {
	if _, err := s.authorize(ctx, requestID, actingUserID); err != nil {
		return nil, err
	}

	var accepted *models.FriendRequest
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		req, err := s.transition(ctx, requestID, models.FriendRequestStatusAccepted)
		if err != nil {
			return err
		}
		if err := s.store.Users().AddFriend(ctx, req.Sender, req.Recipient); err != nil {
			return fmt.Errorf("add friend to sender: %w", err)
		}
		if err := s.store.Users().AddFriend(ctx, req.Recipient, req.Sender); err != nil {
			return fmt.Errorf("add friend to recipient: %w", err)
		}
		accepted = req
		return nil
	})
	if errors.Is(err, repositories.ErrStatusConflict) {
		return nil, ErrRequestNotPending
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"request_id": accepted.ID,
		"sender":     accepted.Sender,
		"recipient":  accepted.Recipient,
	}).Info("Friend request accepted")
	return accepted, nil
}

// RejectRequest marks the request rejected. Friend sets are not touched.
func (s *FriendshipService) RejectRequest(ctx context.Context, requestID, actingUserID string) (*models.FriendRequest, error) {
	if _, err := s.authorize(ctx, requestID, actingUserID); err != nil {
		return nil, err
	}
	req, err := s.transition(ctx, requestID, models.FriendRequestStatusRejected)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"request_id": req.ID,
		"sender":     req.Sender,
		"recipient":  req.Recipient,
	}).Info("Friend request rejected")
	return req, nil
}

// authorize loads the request and checks that actingUserID is its recipient and that it is
// still pending.
func (s *FriendshipService) authorize(ctx context.Context, requestID, actingUserID string) (*models.FriendRequest, error) {
	req, err := s.store.FriendRequests().GetFriendRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("load friend request: %w", err)
	}
	if req.Recipient != actingUserID {
		return nil, ErrNotAuthorized
	}
	if req.Status != models.FriendRequestStatusPending {
		return nil, ErrRequestNotPending
	}
	return req, nil
}

func (s *FriendshipService) transition(ctx context.Context, requestID string, to models.FriendRequestStatus) (*models.FriendRequest, error) {
	req, err := s.store.FriendRequests().TransitionStatus(ctx, requestID, models.FriendRequestStatusPending, to)
	switch {
	case err == nil:
		return req, nil
	case errors.Is(err, repositories.ErrStatusConflict):
		return nil, ErrRequestNotPending
	case errors.Is(err, repositories.ErrNotFound):
		return nil, ErrRequestNotFound
	default:
		return nil, fmt.Errorf("update friend request status: %w", err)
	}
}

// ListRequests returns the caller's incoming pending requests, its outgoing accepted requests
// and its outgoing rejected requests.
func (s *FriendshipService) ListRequests(ctx context.Context, callerID string) (*models.FriendRequestOverview, error) {
	ledger := s.store.FriendRequests()

	incoming, err := ledger.ListByRecipient(ctx, callerID, models.FriendRequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	outgoing, err := ledger.ListBySender(ctx, callerID, models.FriendRequestStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("list accepted requests: %w", err)
	}
	rejecting, err := ledger.ListBySender(ctx, callerID, models.FriendRequestStatusRejected)
	if err != nil {
		return nil, fmt.Errorf("list rejected requests: %w", err)
	}

	overview := &models.FriendRequestOverview{}
	if overview.Incoming, err = s.resolve(ctx, incoming, true); err != nil {
		return nil, err
	}
	if overview.Outgoing, err = s.resolve(ctx, outgoing, false); err != nil {
		return nil, err
	}
	if overview.Rejecting, err = s.resolve(ctx, rejecting, false); err != nil {
		return nil, err
	}
	return overview, nil
}

// ListOutgoingPending returns the caller's sent requests still waiting for an answer.
func (s *FriendshipService) ListOutgoingPending(ctx context.Context, callerID string) ([]models.FriendRequestView, error) {
	pending, err := s.store.FriendRequests().ListBySender(ctx, callerID, models.FriendRequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}
	return s.resolve(ctx, pending, false)
}

// resolve expands the sender (bySender) or the recipient of each request. Requests whose
// counterpart no longer resolves are dropped.
func (s *FriendshipService) resolve(ctx context.Context, requests []models.FriendRequest, bySender bool) ([]models.FriendRequestView, error) {
	views := make([]models.FriendRequestView, 0, len(requests))
	if len(requests) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(requests))
	seen := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		id := r.Recipient
		if bySender {
			id = r.Sender
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	summaries, err := s.store.Users().GetSummariesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve request users: %w", err)
	}
	userMap := make(map[string]models.UserSummary, len(summaries))
	for _, u := range summaries {
		userMap[u.ID] = u
	}

	for _, r := range requests {
		view := models.FriendRequestView{
			ID:        r.ID,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
		id := r.Recipient
		if bySender {
			id = r.Sender
		}
		u, ok := userMap[id]
		if !ok {
			logrus.WithFields(logrus.Fields{
				"request_id": r.ID,
				"user_id":    id,
			}).Warn("Friend request counterpart not found, skipping")
			continue
		}
		if bySender {
			view.Sender = &u
		} else {
			view.Recipient = &u
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *FriendshipService) getUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.Users().GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}
