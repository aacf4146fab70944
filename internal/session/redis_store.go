// Package session provides the Redis backend for refresh-token storage.
// When Redis is not configured the Postgres store serves the same interface.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hoonex/chat-app/internal/store"
)

// TokenData holds the data stored for each refresh token
type TokenData struct {
	UserID    string    `json:"user_id"`
	Nickname  string    `json:"nickname"`
	Color     string    `json:"color"`
	IsGuest   bool      `json:"is_guest"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore implements refresh token storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "refresh:",
	}, nil
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// SaveRefreshSession stores a refresh token with expiration. Admin and guest
// identities carry their own flags because admins have no account row to
// look up later.
func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash string, identity store.Identity, expiresAt time.Time) error {
	data := TokenData{
		UserID:    identity.UserID,
		Nickname:  identity.Nickname,
		Color:     identity.Color,
		IsGuest:   identity.IsGuest,
		IsAdmin:   identity.IsAdmin,
		CreatedAt: time.Now(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// LookupRefreshSession retrieves a refresh token and returns the identity it
// was issued for. A missing or expired token reports sql.ErrNoRows, the same
// sentinel the Postgres session store uses.
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.Identity, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return store.Identity{}, sql.ErrNoRows
	}
	if err != nil {
		return store.Identity{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return store.Identity{}, fmt.Errorf("unmarshal token data: %w", err)
	}

	return store.Identity{
		UserID:   data.UserID,
		Nickname: data.Nickname,
		Color:    data.Color,
		IsGuest:  data.IsGuest,
		IsAdmin:  data.IsAdmin,
	}, nil
}

// RevokeRefreshSession deletes a refresh token
func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
