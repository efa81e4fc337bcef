package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u := &models.User{Name: "alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, store.Users().CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.DefaultProfilePic, u.ProfilePic)
	assert.False(t, u.CreatedAt.IsZero())

	err := store.Users().CreateUser(ctx, &models.User{Name: "other", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	got, err := store.Users().GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = store.Users().GetUserByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAddFriendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := &models.User{Name: "a", Email: "a@example.com"}
	b := &models.User{Name: "b", Email: "b@example.com"}
	require.NoError(t, store.Users().CreateUser(ctx, a))
	require.NoError(t, store.Users().CreateUser(ctx, b))

	require.NoError(t, store.Users().AddFriend(ctx, a.ID, b.ID))
	require.NoError(t, store.Users().AddFriend(ctx, a.ID, b.ID))

	got, err := store.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.Friends)

	assert.ErrorIs(t, store.Users().AddFriend(ctx, "nope", b.ID), ErrNotFound)
}

func TestMemoryStoreProfileAndLastSeen(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := &models.User{Name: "alice", Email: "alice@example.com"}
	require.NoError(t, store.Users().CreateUser(ctx, u))

	name := "Alice"
	updated, err := store.Users().UpdateProfile(ctx, u.ID, models.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, models.DefaultProfilePic, updated.ProfilePic)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	touched, err := store.Users().TouchLastSeen(ctx, u.ID, at)
	require.NoError(t, err)
	assert.True(t, touched.LastSeen.Equal(at))
}

func TestMemoryStoreSummaries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var ids []string
	for _, name := range []string{"carol", "alice", "bob"} {
		u := &models.User{Name: name, Email: name + "@example.com"}
		require.NoError(t, store.Users().CreateUser(ctx, u))
		ids = append(ids, u.ID)
	}

	all, err := store.Users().ListSummariesExcluding(ctx, []string{ids[0]})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Name)
	assert.Equal(t, "bob", all[1].Name)

	some, err := store.Users().GetSummariesByIDs(ctx, []string{ids[1], "unknown"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, ids[1], some[0].ID)
}

func TestMemoryStoreActivePairIsUnique(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore().FriendRequests()

	first := &models.FriendRequest{Sender: "a", Recipient: "b", Status: models.FriendRequestStatusPending}
	require.NoError(t, ledger.CreateFriendRequest(ctx, first))

	reverse := &models.FriendRequest{Sender: "b", Recipient: "a", Status: models.FriendRequestStatusPending}
	assert.ErrorIs(t, ledger.CreateFriendRequest(ctx, reverse), ErrDuplicateRequest)

	found, err := ledger.FindActiveBetween(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = ledger.TransitionStatus(ctx, first.ID, models.FriendRequestStatusPending, models.FriendRequestStatusRejected)
	require.NoError(t, err)

	_, err = ledger.FindActiveBetween(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, ledger.CreateFriendRequest(ctx, reverse))
}

func TestMemoryStoreTransitionStatusIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore().FriendRequests()

	req := &models.FriendRequest{Sender: "a", Recipient: "b", Status: models.FriendRequestStatusPending}
	require.NoError(t, ledger.CreateFriendRequest(ctx, req))

	updated, err := ledger.TransitionStatus(ctx, req.ID, models.FriendRequestStatusPending, models.FriendRequestStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestStatusAccepted, updated.Status)

	_, err = ledger.TransitionStatus(ctx, req.ID, models.FriendRequestStatusPending, models.FriendRequestStatusRejected)
	assert.ErrorIs(t, err, ErrStatusConflict)

	_, err = ledger.TransitionStatus(ctx, "nope", models.FriendRequestStatusPending, models.FriendRequestStatusRejected)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := &models.User{Name: "a", Email: "a@example.com"}
	b := &models.User{Name: "b", Email: "b@example.com"}
	require.NoError(t, store.Users().CreateUser(ctx, a))
	require.NoError(t, store.Users().CreateUser(ctx, b))

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Users().AddFriend(ctx, a.ID, b.ID))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Friends)

	require.NoError(t, store.RunInTransaction(ctx, func(ctx context.Context) error {
		return store.Users().AddFriend(ctx, a.ID, b.ID)
	}))
	got, err = store.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.Friends)
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, models.PairKey("x", "y"), models.PairKey("y", "x"))
	assert.NotEqual(t, models.PairKey("x", "y"), models.PairKey("x", "z"))
}

func TestMemoryStoreRollbackKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := &models.User{Name: "a", Email: "a@example.com"}
	b := &models.User{Name: "b", Email: "b@example.com"}
	require.NoError(t, store.Users().CreateUser(ctx, a))
	require.NoError(t, store.Users().CreateUser(ctx, b))

	zed := &models.User{Name: "zed", Email: "zed@example.com"}
	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, store.Users().AddFriend(txCtx, a.ID, b.ID))
		// A concurrent signup, not part of the transaction.
		require.NoError(t, store.Users().CreateUser(ctx, zed))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Users().GetUserByID(ctx, zed.ID)
	require.NoError(t, err)
	assert.Equal(t, "zed", got.Name)

	gotA, err := store.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, gotA.Friends)
}

func TestMemoryStoreReadersSeeCommittedStateOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := &models.User{Name: "a", Email: "a@example.com"}
	b := &models.User{Name: "b", Email: "b@example.com"}
	require.NoError(t, store.Users().CreateUser(ctx, a))
	require.NoError(t, store.Users().CreateUser(ctx, b))

	require.NoError(t, store.RunInTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, store.Users().AddFriend(txCtx, a.ID, b.ID))

		inside, err := store.Users().GetUserByID(txCtx, a.ID)
		require.NoError(t, err)
		assert.True(t, inside.HasFriend(b.ID))

		outsideA, err := store.Users().GetUserByID(ctx, a.ID)
		require.NoError(t, err)
		outsideB, err := store.Users().GetUserByID(ctx, b.ID)
		require.NoError(t, err)
		assert.False(t, outsideA.HasFriend(b.ID))
		assert.False(t, outsideB.HasFriend(a.ID))

		return store.Users().AddFriend(txCtx, b.ID, a.ID)
	}))

	gotA, err := store.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := store.Users().GetUserByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gotA.HasFriend(b.ID))
	assert.True(t, gotB.HasFriend(a.ID))
}

func TestMemoryStoreCommitFailsOnConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := store.FriendRequests()
	req := &models.FriendRequest{Sender: "a", Recipient: "b", Status: models.FriendRequestStatusPending}
	require.NoError(t, ledger.CreateFriendRequest(ctx, req))

	err := store.RunInTransaction(ctx, func(txCtx context.Context) error {
		_, err := ledger.TransitionStatus(txCtx, req.ID, models.FriendRequestStatusPending, models.FriendRequestStatusAccepted)
		require.NoError(t, err)
		_, err = ledger.TransitionStatus(ctx, req.ID, models.FriendRequestStatusPending, models.FriendRequestStatusRejected)
		require.NoError(t, err)
		return nil
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	stored, err := ledger.GetFriendRequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestStatusRejected, stored.Status)
}
