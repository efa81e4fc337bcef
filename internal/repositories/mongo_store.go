package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/streamify/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names are shared with existing deployments of the app.
const (
	usersCollection          = "users"
	friendRequestsCollection = "friendrequests"
)

// MongoStore implements Store on MongoDB. Transactions need a replica set deployment.
type MongoStore struct {
	client   *mongo.Client
	users    *MongoUserRepository
	requests *MongoFriendRequestRepository
}

// NewMongoStore creates a MongoStore on the given database
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		users:    &MongoUserRepository{collection: db.Collection(usersCollection)},
		requests: &MongoFriendRequestRepository{collection: db.Collection(friendRequestsCollection)},
	}
}

func (s *MongoStore) Users() UserRepository { return s.users }

func (s *MongoStore) FriendRequests() FriendRequestRepository { return s.requests }

// RunInTransaction runs fn inside a multi-document transaction.
func (s *MongoStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the unique email index and the partial unique index that allows a
// single active request per user pair.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}

	_, err = s.requests.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().
				SetName("active_pair_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create friend request indexes: %w", err)
	}
	return nil
}

type userDocument struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	Name       string               `bson:"name"`
	Email      string               `bson:"email"`
	Password   string               `bson:"password"`
	ProfilePic string               `bson:"profilePic"`
	LastSeen   time.Time            `bson:"lastSeen"`
	Friends    []primitive.ObjectID `bson:"friends"`
	CreatedAt  time.Time            `bson:"createdAt"`
	UpdatedAt  time.Time            `bson:"updatedAt"`
}

func (d *userDocument) toModel() *models.User {
	friends := make([]string, len(d.Friends))
	for i, f := range d.Friends {
		friends[i] = f.Hex()
	}
	return &models.User{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		Email:      d.Email,
		Password:   d.Password,
		ProfilePic: d.ProfilePic,
		LastSeen:   d.LastSeen,
		Friends:    friends,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type userSummaryDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"name"`
	ProfilePic string             `bson:"profilePic"`
	LastSeen   time.Time          `bson:"lastSeen"`
}

var summaryProjection = bson.M{"name": 1, "profilePic": 1, "lastSeen": 1}

// MongoUserRepository implements UserRepository for MongoDB
type MongoUserRepository struct {
	collection *mongo.Collection
}

func (r *MongoUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	doc := userDocument{
		ID:         primitive.NewObjectID(),
		Name:       user.Name,
		Email:      user.Email,
		Password:   user.Password,
		ProfilePic: user.ProfilePic,
		LastSeen:   now,
		Friends:    []primitive.ObjectID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if doc.ProfilePic == "" {
		doc.ProfilePic = models.DefaultProfilePic
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return err
	}
	*user = *doc.toModel()
	return nil
}

func (r *MongoUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": objID})
}

func (r *MongoUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoUserRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	objIDs := toObjectIDs(ids)
	if len(objIDs) == 0 {
		return []models.UserSummary{}, nil
	}
	return r.findSummaries(ctx, bson.M{"_id": bson.M{"$in": objIDs}})
}

func (r *MongoUserRepository) ListSummariesExcluding(ctx context.Context, excluded []string) ([]models.UserSummary, error) {
	return r.findSummaries(ctx, bson.M{"_id": bson.M{"$nin": toObjectIDs(excluded)}})
}

func (r *MongoUserRepository) findSummaries(ctx context.Context, filter bson.M) ([]models.UserSummary, error) {
	findOptions := options.Find().SetProjection(summaryProjection).SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []userSummaryDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	summaries := make([]models.UserSummary, len(docs))
	for i, d := range docs {
		summaries[i] = models.UserSummary{
			ID:         d.ID.Hex(),
			Name:       d.Name,
			ProfilePic: d.ProfilePic,
			LastSeen:   d.LastSeen,
		}
	}
	return summaries, nil
}

func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.ProfilePic != nil {
		set["profilePic"] = *update.ProfilePic
	}
	return r.findOneAndSet(ctx, id, set)
}

func (r *MongoUserRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) (*models.User, error) {
	return r.findOneAndSet(ctx, id, bson.M{"lastSeen": at, "updatedAt": time.Now()})
}

func (r *MongoUserRepository) findOneAndSet(ctx context.Context, id string, set bson.M) (*models.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc userDocument
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

// AddFriend uses $addToSet so the friend list keeps set semantics.
func (r *MongoUserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	userObjID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrNotFound
	}
	friendObjID, err := primitive.ObjectIDFromHex(friendID)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userObjID},
		bson.M{
			"$addToSet": bson.M{"friends": friendObjID},
			"$set":      bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func toObjectIDs(ids []string) []primitive.ObjectID {
	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if objID, err := primitive.ObjectIDFromHex(id); err == nil {
			objIDs = append(objIDs, objID)
		}
	}
	return objIDs
}

// friendRequestDocument stores the pair key and an active flag next to the request so the
// partial unique index can enforce one active request per pair.
type friendRequestDocument struct {
	ID        primitive.ObjectID         `bson:"_id,omitempty"`
	Sender    primitive.ObjectID         `bson:"sender"`
	Recipient primitive.ObjectID         `bson:"recipient"`
	Status    models.FriendRequestStatus `bson:"status"`
	PairKey   string                     `bson:"pairKey"`
	Active    bool                       `bson:"active"`
	CreatedAt time.Time                  `bson:"createdAt"`
	UpdatedAt time.Time                  `bson:"updatedAt"`
}

func (d *friendRequestDocument) toModel() *models.FriendRequest {
	return &models.FriendRequest{
		ID:        d.ID.Hex(),
		Sender:    d.Sender.Hex(),
		Recipient: d.Recipient.Hex(),
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoFriendRequestRepository implements FriendRequestRepository for MongoDB
type MongoFriendRequestRepository struct {
	collection *mongo.Collection
}

func (r *MongoFriendRequestRepository) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	sender, err := primitive.ObjectIDFromHex(req.Sender)
	if err != nil {
		return ErrNotFound
	}
	recipient, err := primitive.ObjectIDFromHex(req.Recipient)
	if err != nil {
		return ErrNotFound
	}

	now := time.Now()
	doc := friendRequestDocument{
		ID:        primitive.NewObjectID(),
		Sender:    sender,
		Recipient: recipient,
		Status:    req.Status,
		PairKey:   models.PairKey(req.Sender, req.Recipient),
		Active:    req.Status.Active(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRequest
		}
		return err
	}
	*req = *doc.toModel()
	return nil
}

func (r *MongoFriendRequestRepository) GetFriendRequestByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": objID})
}

func (r *MongoFriendRequestRepository) FindActiveBetween(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	return r.findOne(ctx, bson.M{"pairKey": models.PairKey(a, b), "active": true})
}

func (r *MongoFriendRequestRepository) findOne(ctx context.Context, filter bson.M) (*models.FriendRequest, error) {
	var doc friendRequestDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoFriendRequestRepository) ListBySender(ctx context.Context, senderID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	objID, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		return []models.FriendRequest{}, nil
	}
	return r.find(ctx, bson.M{"sender": objID, "status": status})
}

func (r *MongoFriendRequestRepository) ListByRecipient(ctx context.Context, recipientID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	objID, err := primitive.ObjectIDFromHex(recipientID)
	if err != nil {
		return []models.FriendRequest{}, nil
	}
	return r.find(ctx, bson.M{"recipient": objID, "status": status})
}

func (r *MongoFriendRequestRepository) find(ctx context.Context, filter bson.M) ([]models.FriendRequest, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []friendRequestDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	requests := make([]models.FriendRequest, len(docs))
	for i := range docs {
		requests[i] = *docs[i].toModel()
	}
	return requests, nil
}

// TransitionStatus matches on the expected status so two concurrent transitions cannot both win.
func (r *MongoFriendRequestRepository) TransitionStatus(ctx context.Context, id string, from, to models.FriendRequestStatus) (*models.FriendRequest, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc friendRequestDocument
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objID, "status": from},
		bson.M{"$set": bson.M{"status": to, "active": to.Active(), "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toModel(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, err := r.GetFriendRequestByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrStatusConflict
}
