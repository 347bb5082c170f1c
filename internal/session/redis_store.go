// Package session provides session storage backends for refresh tokens.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// TokenData holds the data stored for each refresh token
type TokenData struct {
	UserUID   string    `json:"user_uid"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
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

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "refresh:",
	}
}

// key generates the Redis key for a token hash
func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// userKey generates the per-user index key. The index lets every live
// session for a user be revoked at once when the account is banned.
func (s *RedisStore) userKey(uid string) string {
	return s.prefix + "user:" + uid
}

// SaveRefreshSession stores a refresh token with expiration and indexes it
// under the owning user.
func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	data := TokenData{
		UserUID:   user.UID,
		Username:  user.Username,
		Role:      user.Role,
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
	if err := s.client.SAdd(ctx, s.userKey(user.UID), tokenHash).Err(); err != nil {
		return fmt.Errorf("index refresh token: %w", err)
	}
	if err := s.client.Expire(ctx, s.userKey(user.UID), ttl).Err(); err != nil {
		return fmt.Errorf("expire token index: %w", err)
	}

	return nil
}

// LookupRefreshSession retrieves a refresh token and returns user info
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return store.User{}, fmt.Errorf("token not found or expired")
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return store.User{}, fmt.Errorf("unmarshal token data: %w", err)
	}

	if data.Role == "" {
		data.Role = "member"
	}

	return store.User{
		UID:      data.UserUID,
		Username: data.Username,
		Role:     data.Role,
	}, nil
}

// RevokeRefreshSession deletes a refresh token
func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == nil {
		var data TokenData
		if json.Unmarshal([]byte(jsonData), &data) == nil && data.UserUID != "" {
			s.client.SRem(ctx, s.userKey(data.UserUID), tokenHash)
		}
	}
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserSessions deletes every refresh token indexed under a user.
func (s *RedisStore) RevokeUserSessions(ctx context.Context, uid string) error {
	hashes, err := s.client.SMembers(ctx, s.userKey(uid)).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}
	for _, hash := range hashes {
		if err := s.client.Del(ctx, s.key(hash)).Err(); err != nil {
			return fmt.Errorf("revoke user session: %w", err)
		}
	}
	if err := s.client.Del(ctx, s.userKey(uid)).Err(); err != nil {
		return fmt.Errorf("drop session index: %w", err)
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
