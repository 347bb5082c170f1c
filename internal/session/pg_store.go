package session

import (
	"context"
	"time"

	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// PGStore adapts the Postgres refresh_sessions table to the same interface
// as RedisStore. Used when no Redis URL is configured.
type PGStore struct {
	store *store.PostgresStore
}

// NewPGStore creates a Postgres-backed session store.
func NewPGStore(s *store.PostgresStore) *PGStore {
	return &PGStore{store: s}
}

func (s *PGStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return s.store.SaveRefreshSession(ctx, tokenHash, user.UID, expiresAt)
}

func (s *PGStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return s.store.LookupRefreshSession(ctx, tokenHash)
}

func (s *PGStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return s.store.RevokeRefreshSession(ctx, tokenHash)
}

func (s *PGStore) RevokeUserSessions(ctx context.Context, uid string) error {
	return s.store.RevokeUserSessions(ctx, uid)
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *PGStore) Close() error {
	return nil
}
