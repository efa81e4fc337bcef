package router

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/streamify/backend/internal/auth"
	"github.com/anonto42/streamify/backend/internal/handlers"
	"github.com/anonto42/streamify/backend/internal/repositories"
	"github.com/anonto42/streamify/backend/pkg/config"
	"github.com/anonto42/streamify/backend/pkg/firebase"
	"github.com/anonto42/streamify/backend/pkg/media"
	"github.com/anonto42/streamify/backend/pkg/stream"
	"github.com/sirupsen/logrus"
)

const startupTimeout = 30 * time.Second

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Store         repositories.Store
	Tokens        *auth.TokenManager
	Revoked       auth.RevocationList
	Chat          stream.ChatProvider
	Media         media.Store
	FirebaseAuth  handlers.IDTokenVerifier
	SecureCookies bool
}

// BuildDependencies wires the store, session, chat and media backends selected by cfg on top of
// the connections in db.
func BuildDependencies(ctx context.Context, cfg *config.Config, db *config.DB) (*Dependencies, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	deps := &Dependencies{
		Tokens:        auth.NewTokenManager(cfg.JWTSecret),
		SecureCookies: cfg.IsProduction(),
	}

	store, err := buildStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	deps.Store = store

	if db.Redis != nil {
		deps.Revoked = auth.NewRedisRevocationList(db.Redis)
		logrus.Info("Session revocation backed by Redis")
	} else {
		deps.Revoked = auth.NewMemoryRevocationList()
		logrus.Warn("REDIS_ADDR not set, session revocation is kept in memory")
	}

	if cfg.StreamAPIKey == "" || cfg.StreamAPISecret == "" {
		logrus.Warn("Stream API key or secret is missing, chat is disabled")
		deps.Chat = stream.Disabled{}
	} else {
		client, err := stream.NewClient(cfg.StreamAPIKey, cfg.StreamAPISecret)
		if err != nil {
			return nil, err
		}
		deps.Chat = client
	}

	var firebaseApp *firebase.App
	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err = firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseStorageBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		deps.FirebaseAuth = firebaseApp.AuthClient
	}

	switch cfg.MediaDriver {
	case config.MediaMinIO:
		minioStore, err := media.NewMinIOStore(ctx, media.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
		}
		deps.Media = minioStore
	case config.MediaFirebase:
		if firebaseApp == nil {
			return nil, fmt.Errorf("MEDIA_DRIVER=firebase requires FIREBASE_CREDENTIALS_PATH")
		}
		firebaseStore, err := media.NewFirebaseStore(firebaseApp.StorageClient, cfg.FirebaseStorageBucket)
		if err != nil {
			return nil, err
		}
		deps.Media = firebaseStore
	case config.MediaNone:
		logrus.Warn("Media uploads are disabled, only profile picture URLs are accepted")
	default:
		return nil, fmt.Errorf("unknown MEDIA_DRIVER %q", cfg.MediaDriver)
	}

	return deps, nil
}

func buildStore(ctx context.Context, cfg *config.Config, db *config.DB) (repositories.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		store := repositories.NewMongoStore(db.Mongo, db.Mongo.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create MongoDB indexes: %w", err)
		}
		logrus.WithFields(logrus.Fields{"database": cfg.MongoDatabase}).Info("MongoDB indexes ensured")
		return store, nil
	case config.StorePostgres:
		store := repositories.NewPostgresStore(db.Postgres)
		if err := store.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to auto migrate models: %w", err)
		}
		logrus.Info("PostgreSQL auto-migrations completed")
		return store, nil
	case config.StoreMemory:
		return repositories.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
