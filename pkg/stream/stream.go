package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	stream "github.com/GetStream/stream-chat-go/v6"
	"github.com/sirupsen/logrus"
)

// TokenTTL bounds the lifetime of chat tokens handed to clients.
const TokenTTL = 24 * time.Hour

// ChatProvider is the hosted chat/video service. It only learns about user identities and
// mints tokens for them.
type ChatProvider interface {
	UpsertUser(ctx context.Context, id, name, image string) error
	CreateToken(id string) (string, error)
}

// Client implements ChatProvider on top of the Stream Chat server SDK.
type Client struct {
	client *stream.Client
}

// NewClient creates a Stream client from the API key pair
func NewClient(apiKey, apiSecret string) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("STREAM_API_KEY and STREAM_API_SECRET must be set")
	}
	client, err := stream.NewClient(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("error initializing stream client: %w", err)
	}
	logrus.Info("Stream chat client initialized")
	return &Client{client: client}, nil
}

func (c *Client) UpsertUser(ctx context.Context, id, name, image string) error {
	logrus.WithFields(logrus.Fields{"user_id": id}).Debug("Upserting stream user")
	if _, err := c.client.UpsertUser(ctx, &stream.User{ID: id, Name: name, Image: image}); err != nil {
		return fmt.Errorf("upsert stream user %s: %w", id, err)
	}
	return nil
}

func (c *Client) CreateToken(id string) (string, error) {
	token, err := c.client.CreateToken(id, time.Now().Add(TokenTTL))
	if err != nil {
		return "", fmt.Errorf("create stream token for %s: %w", id, err)
	}
	return token, nil
}

// ErrDisabled is returned for tokens when no Stream credentials are configured.
var ErrDisabled = errors.New("chat provider is not configured")

// Disabled is the provider used when Stream credentials are missing. Users are not synced and
// no tokens can be minted.
type Disabled struct{}

func (Disabled) UpsertUser(_ context.Context, id, _, _ string) error {
	logrus.WithFields(logrus.Fields{"user_id": id}).Debug("Chat provider disabled, skipping user upsert")
	return nil
}

func (Disabled) CreateToken(string) (string, error) {
	return "", ErrDisabled
}
