package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/streamify/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRecord struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	Name       string    `gorm:"not null"`
	Email      string    `gorm:"uniqueIndex;not null"`
	Password   string    `gorm:"not null"`
	ProfilePic string    `gorm:"not null"`
	LastSeen   time.Time `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (userRecord) TableName() string { return "users" }

func (u *userRecord) toSummary() models.UserSummary {
	return models.UserSummary{ID: u.ID, Name: u.Name, ProfilePic: u.ProfilePic, LastSeen: u.LastSeen}
}

// friendshipRecord is one side of a friendship. The composite key gives the adjacency list
// set semantics.
type friendshipRecord struct {
	UserID    string `gorm:"primaryKey;type:uuid"`
	FriendID  string `gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time
}

func (friendshipRecord) TableName() string { return "friendships" }

type friendRequestRecord struct {
	ID          string                     `gorm:"primaryKey;type:uuid"`
	SenderID    string                     `gorm:"type:uuid;index:idx_friend_requests_sender_status"`
	RecipientID string                     `gorm:"type:uuid;index:idx_friend_requests_recipient_status"`
	Status      models.FriendRequestStatus `gorm:"type:varchar(20);default:'pending';index:idx_friend_requests_sender_status;index:idx_friend_requests_recipient_status"`
	PairKey     string                     `gorm:"size:80;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (friendRequestRecord) TableName() string { return "friend_requests" }

func (r *friendRequestRecord) toModel() *models.FriendRequest {
	return &models.FriendRequest{
		ID:        r.ID,
		Sender:    r.SenderID,
		Recipient: r.RecipientID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type txKey struct{}

// conn returns the transaction bound to ctx by RunInTransaction, or the base handle.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// PostgresStore implements Store for PostgreSQL through GORM. The *gorm.DB must be opened with
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Users() UserRepository { return (*PostgresUserRepository)(s) }

func (s *PostgresStore) FriendRequests() FriendRequestRepository {
	return (*PostgresFriendRequestRepository)(s)
}

func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// AutoMigrate creates the tables and the partial unique index on active request pairs.
func (s *PostgresStore) AutoMigrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&userRecord{}, &friendshipRecord{}, &friendRequestRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_active_pair
		ON friend_requests (pair_key) WHERE status <> 'rejected'`).Error
	if err != nil {
		return fmt.Errorf("create active pair index: %w", err)
	}
	return nil
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository PostgresStore

func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	rec := userRecord{
		ID:         uuid.NewString(),
		Name:       user.Name,
		Email:      user.Email,
		Password:   user.Password,
		ProfilePic: user.ProfilePic,
		LastSeen:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rec.ProfilePic == "" {
		rec.ProfilePic = models.DefaultProfilePic
	}
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	*user = models.User{
		ID:         rec.ID,
		Name:       rec.Name,
		Email:      rec.Email,
		Password:   rec.Password,
		ProfilePic: rec.ProfilePic,
		LastSeen:   rec.LastSeen,
		Friends:    []string{},
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	return nil
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if !validUUID(id) {
		return nil, ErrNotFound
	}
	return r.load(ctx, conn(ctx, r.db).Where("id = ?", id))
}

func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.load(ctx, conn(ctx, r.db).Where("email = ?", email))
}

// load fetches the user matched by query together with its friend ids.
func (r *PostgresUserRepository) load(ctx context.Context, query *gorm.DB) (*models.User, error) {
	var rec userRecord
	if err := query.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	friends := []string{}
	err := conn(ctx, r.db).Model(&friendshipRecord{}).
		Where("user_id = ?", rec.ID).
		Order("created_at").
		Pluck("friend_id", &friends).Error
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:         rec.ID,
		Name:       rec.Name,
		Email:      rec.Email,
		Password:   rec.Password,
		ProfilePic: rec.ProfilePic,
		LastSeen:   rec.LastSeen,
		Friends:    friends,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func (r *PostgresUserRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []models.UserSummary{}, nil
	}
	return r.findSummaries(conn(ctx, r.db).Where("id IN ?", valid))
}

func (r *PostgresUserRepository) ListSummariesExcluding(ctx context.Context, excluded []string) ([]models.UserSummary, error) {
	query := conn(ctx, r.db)
	valid := make([]string, 0, len(excluded))
	for _, id := range excluded {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	// NOT IN with an empty list matches nothing in SQL
	if len(valid) > 0 {
		query = query.Where("id NOT IN ?", valid)
	}
	return r.findSummaries(query)
}

func (r *PostgresUserRepository) findSummaries(query *gorm.DB) ([]models.UserSummary, error) {
	var recs []userRecord
	if err := query.Select("id", "name", "profile_pic", "last_seen").Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	summaries := make([]models.UserSummary, len(recs))
	for i := range recs {
		summaries[i] = recs[i].toSummary()
	}
	return summaries, nil
}

func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	fields := map[string]interface{}{"updated_at": time.Now()}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.ProfilePic != nil {
		fields["profile_pic"] = *update.ProfilePic
	}
	return r.updateFields(ctx, id, fields)
}

func (r *PostgresUserRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) (*models.User, error) {
	return r.updateFields(ctx, id, map[string]interface{}{"last_seen": at, "updated_at": time.Now()})
}

func (r *PostgresUserRepository) updateFields(ctx context.Context, id string, fields map[string]interface{}) (*models.User, error) {
	if !validUUID(id) {
		return nil, ErrNotFound
	}
	res := conn(ctx, r.db).Model(&userRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetUserByID(ctx, id)
}

func (r *PostgresUserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	if !validUUID(userID) || !validUUID(friendID) {
		return ErrNotFound
	}
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&friendshipRecord{UserID: userID, FriendID: friendID, CreatedAt: time.Now()}).Error
}

// PostgresFriendRequestRepository implements FriendRequestRepository for PostgreSQL
type PostgresFriendRequestRepository PostgresStore

func (r *PostgresFriendRequestRepository) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	if !validUUID(req.Sender) || !validUUID(req.Recipient) {
		return ErrNotFound
	}
	now := time.Now()
	rec := friendRequestRecord{
		ID:          uuid.NewString(),
		SenderID:    req.Sender,
		RecipientID: req.Recipient,
		Status:      req.Status,
		PairKey:     models.PairKey(req.Sender, req.Recipient),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateRequest
		}
		return err
	}
	*req = *rec.toModel()
	return nil
}

func (r *PostgresFriendRequestRepository) GetFriendRequestByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	if !validUUID(id) {
		return nil, ErrNotFound
	}
	return r.first(conn(ctx, r.db).Where("id = ?", id))
}

func (r *PostgresFriendRequestRepository) FindActiveBetween(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	return r.first(conn(ctx, r.db).Where("pair_key = ? AND status <> ?", models.PairKey(a, b), models.FriendRequestStatusRejected))
}

func (r *PostgresFriendRequestRepository) first(query *gorm.DB) (*models.FriendRequest, error) {
	var rec friendRequestRecord
	if err := query.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *PostgresFriendRequestRepository) ListBySender(ctx context.Context, senderID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	if !validUUID(senderID) {
		return []models.FriendRequest{}, nil
	}
	return r.find(conn(ctx, r.db).Where("sender_id = ? AND status = ?", senderID, status))
}

func (r *PostgresFriendRequestRepository) ListByRecipient(ctx context.Context, recipientID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	if !validUUID(recipientID) {
		return []models.FriendRequest{}, nil
	}
	return r.find(conn(ctx, r.db).Where("recipient_id = ? AND status = ?", recipientID, status))
}

func (r *PostgresFriendRequestRepository) find(query *gorm.DB) ([]models.FriendRequest, error) {
	var recs []friendRequestRecord
	if err := query.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	requests := make([]models.FriendRequest, len(recs))
	for i := range recs {
		requests[i] = *recs[i].toModel()
	}
	return requests, nil
}

func (r *PostgresFriendRequestRepository) TransitionStatus(ctx context.Context, id string, from, to models.FriendRequestStatus) (*models.FriendRequest, error) {
	if !validUUID(id) {
		return nil, ErrNotFound
	}
	res := conn(ctx, r.db).Model(&friendRequestRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	req, err := r.GetFriendRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrStatusConflict
	}
	return req, nil
}
