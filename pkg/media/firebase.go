package media

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/storage"
)

// FirebaseStore uploads media to the Cloud Storage bucket of a Firebase project.
type FirebaseStore struct {
	client *storage.Client
	bucket string
}

func NewFirebaseStore(client *storage.Client, bucket string) (*FirebaseStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("FIREBASE_STORAGE_BUCKET must be set for the firebase media driver")
	}
	return &FirebaseStore{client: client, bucket: bucket}, nil
}

func (s *FirebaseStore) Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return "", fmt.Errorf("open bucket %s: %w", s.bucket, err)
	}

	w := bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
}
