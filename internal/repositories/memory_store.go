package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps users and friend requests in process memory. It backs tests and the
// "memory" store driver for local development.
//
// A transaction works on a private copy of the data and records its writes. On commit the
// writes are replayed against the live data and the result is swapped in under one lock, so
// readers never see a partial transaction and a rollback never touches writes made outside it.
type MemoryStore struct {
	// txMu serializes transactions, mu guards state.
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	users    map[string]*models.User
	requests map[string]*models.FriendRequest
}

func (st *memoryState) clone() *memoryState {
	cp := &memoryState{
		users:    make(map[string]*models.User, len(st.users)),
		requests: make(map[string]*models.FriendRequest, len(st.requests)),
	}
	for id, u := range st.users {
		cp.users[id] = cloneUser(u)
	}
	for id, r := range st.requests {
		req := *r
		cp.requests[id] = &req
	}
	return cp
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.Friends = append(make([]string, 0, len(u.Friends)), u.Friends...)
	return &cp
}

// memoryOp is a write against a state. It must be replayable: ids and timestamps are chosen
// before the op is built.
type memoryOp func(st *memoryState) error

type memoryTx struct {
	store *MemoryStore
	mu    sync.Mutex
	state *memoryState
	log   []memoryOp
}

type memoryTxKey struct{}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			users:    make(map[string]*models.User),
			requests: make(map[string]*models.FriendRequest),
		},
		now: time.Now,
	}
}

func (s *MemoryStore) Users() UserRepository { return (*memoryUserRepository)(s) }

func (s *MemoryStore) FriendRequests() FriendRequestRepository {
	return (*memoryFriendRequestRepository)(s)
}

// RunInTransaction runs fn against a private copy and publishes its writes only when fn
// succeeds. A replayed write that no longer applies, e.g. a status changed meanwhile by another
// request, fails the whole commit.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &memoryTx{store: s, state: s.state.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.log) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	for _, op := range tx.log {
		if err := op(next); err != nil {
			return fmt.Errorf("commit memory transaction: %w", err)
		}
	}
	s.state = next
	return nil
}

func (s *MemoryStore) txFrom(ctx context.Context) *memoryTx {
	tx, _ := ctx.Value(memoryTxKey{}).(*memoryTx)
	if tx == nil || tx.store != s {
		return nil
	}
	return tx
}

// read runs fn against the transaction copy bound to ctx, or the live state.
func (s *MemoryStore) read(ctx context.Context, fn func(st *memoryState)) {
	if tx := s.txFrom(ctx); tx != nil {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		fn(tx.state)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// write applies op to the transaction copy bound to ctx and logs it for commit, or applies it
// to the live state directly.
func (s *MemoryStore) write(ctx context.Context, op memoryOp) error {
	if tx := s.txFrom(ctx); tx != nil {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		if err := op(tx.state); err != nil {
			return err
		}
		tx.log = append(tx.log, op)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return op(s.state)
}

type memoryUserRepository MemoryStore

func (r *memoryUserRepository) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := r.now()
	created := cloneUser(user)
	created.ID = uuid.NewString()
	created.CreatedAt, created.UpdatedAt = now, now
	if created.LastSeen.IsZero() {
		created.LastSeen = now
	}
	if created.ProfilePic == "" {
		created.ProfilePic = models.DefaultProfilePic
	}

	err := r.store().write(ctx, func(st *memoryState) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, created.Email) {
				return ErrEmailTaken
			}
		}
		st.users[created.ID] = cloneUser(created)
		return nil
	})
	if err != nil {
		return err
	}

	*user = *cloneUser(created)
	return nil
}

func (r *memoryUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var found *models.User
	r.store().read(ctx, func(st *memoryState) {
		if u, ok := st.users[id]; ok {
			found = cloneUser(u)
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var found *models.User
	r.store().read(ctx, func(st *memoryState) {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				found = cloneUser(u)
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryUserRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	summaries := make([]models.UserSummary, 0, len(ids))
	r.store().read(ctx, func(st *memoryState) {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				summaries = append(summaries, u.ToSummary())
			}
		}
	})
	return summaries, nil
}

func (r *memoryUserRepository) ListSummariesExcluding(ctx context.Context, excluded []string) ([]models.UserSummary, error) {
	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	summaries := make([]models.UserSummary, 0)
	r.store().read(ctx, func(st *memoryState) {
		for id, u := range st.users {
			if _, ok := skip[id]; ok {
				continue
			}
			summaries = append(summaries, u.ToSummary())
		}
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

func (r *memoryUserRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	return r.mutate(ctx, id, func(u *models.User) {
		if update.Name != nil {
			u.Name = *update.Name
		}
		if update.ProfilePic != nil {
			u.ProfilePic = *update.ProfilePic
		}
	})
}

func (r *memoryUserRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) (*models.User, error) {
	return r.mutate(ctx, id, func(u *models.User) {
		u.LastSeen = at
	})
}

func (r *memoryUserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	now := r.now()
	return r.store().write(ctx, func(st *memoryState) error {
		u, ok := st.users[userID]
		if !ok {
			return ErrNotFound
		}
		if u.HasFriend(friendID) {
			return nil
		}
		u.Friends = append(u.Friends, friendID)
		u.UpdatedAt = now
		return nil
	})
}

// mutate applies change to the stored user and returns the result of the first application.
func (r *memoryUserRepository) mutate(ctx context.Context, id string, change func(u *models.User)) (*models.User, error) {
	now := r.now()
	var out *models.User
	err := r.store().write(ctx, func(st *memoryState) error {
		u, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		change(u)
		u.UpdatedAt = now
		if out == nil {
			out = cloneUser(u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type memoryFriendRequestRepository MemoryStore

func (r *memoryFriendRequestRepository) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryFriendRequestRepository) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	now := r.now()
	created := *req
	created.ID = uuid.NewString()
	created.CreatedAt, created.UpdatedAt = now, now
	key := models.PairKey(created.Sender, created.Recipient)

	err := r.store().write(ctx, func(st *memoryState) error {
		for _, existing := range st.requests {
			if existing.Status.Active() && models.PairKey(existing.Sender, existing.Recipient) == key {
				return ErrDuplicateRequest
			}
		}
		cp := created
		st.requests[cp.ID] = &cp
		return nil
	})
	if err != nil {
		return err
	}

	*req = created
	return nil
}

func (r *memoryFriendRequestRepository) GetFriendRequestByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	var found *models.FriendRequest
	r.store().read(ctx, func(st *memoryState) {
		if req, ok := st.requests[id]; ok {
			cp := *req
			found = &cp
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryFriendRequestRepository) FindActiveBetween(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	key := models.PairKey(a, b)
	var found *models.FriendRequest
	r.store().read(ctx, func(st *memoryState) {
		for _, req := range st.requests {
			if req.Status.Active() && models.PairKey(req.Sender, req.Recipient) == key {
				cp := *req
				found = &cp
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryFriendRequestRepository) ListBySender(ctx context.Context, senderID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	return r.list(ctx, func(req *models.FriendRequest) bool {
		return req.Sender == senderID && req.Status == status
	}), nil
}

func (r *memoryFriendRequestRepository) ListByRecipient(ctx context.Context, recipientID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	return r.list(ctx, func(req *models.FriendRequest) bool {
		return req.Recipient == recipientID && req.Status == status
	}), nil
}

func (r *memoryFriendRequestRepository) list(ctx context.Context, match func(*models.FriendRequest) bool) []models.FriendRequest {
	out := make([]models.FriendRequest, 0)
	r.store().read(ctx, func(st *memoryState) {
		for _, req := range st.requests {
			if match(req) {
				out = append(out, *req)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memoryFriendRequestRepository) TransitionStatus(ctx context.Context, id string, from, to models.FriendRequestStatus) (*models.FriendRequest, error) {
	now := r.now()
	var out *models.FriendRequest
	err := r.store().write(ctx, func(st *memoryState) error {
		req, ok := st.requests[id]
		if !ok {
			return ErrNotFound
		}
		if req.Status != from {
			return ErrStatusConflict
		}
		req.Status = to
		req.UpdatedAt = now
		if out == nil {
			cp := *req
			out = &cp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
