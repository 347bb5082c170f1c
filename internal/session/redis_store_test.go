package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pomidornijfrukt/medium-project/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return rs, s
}

func testUser(uid string) store.User {
	return store.User{UID: uid, Username: "u-" + uid, Role: "member"}
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer rs.Close()

	ctx := context.Background()
	if err := rs.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	tokenHash := "test-token-hash"
	expiresAt := time.Now().Add(24 * time.Hour)

	err := rs.SaveRefreshSession(ctx, tokenHash, testUser("user-123"), expiresAt)
	if err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := rs.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}

	if user.UID != "user-123" {
		t.Errorf("expected user UID user-123, got %s", user.UID)
	}
	if user.Username != "u-user-123" {
		t.Errorf("expected username u-user-123, got %s", user.Username)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	tokenHash := "expired-token"

	// Save with very short TTL
	expiresAt := time.Now().Add(1 * time.Millisecond)
	err := rs.SaveRefreshSession(ctx, tokenHash, testUser("user-456"), expiresAt)
	if err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Millisecond)

	_, err = rs.LookupRefreshSession(ctx, tokenHash)
	if err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()

	_, err := rs.LookupRefreshSession(ctx, "non-existent-token")
	if err == nil {
		t.Error("expected error for non-existent token, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	tokenHash := "token-to-revoke"
	expiresAt := time.Now().Add(24 * time.Hour)

	err := rs.SaveRefreshSession(ctx, tokenHash, testUser("user-789"), expiresAt)
	if err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	_, err = rs.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		t.Fatalf("Lookup before revoke failed: %v", err)
	}

	err = rs.RevokeRefreshSession(ctx, tokenHash)
	if err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}

	_, err = rs.LookupRefreshSession(ctx, tokenHash)
	if err == nil {
		t.Error("expected error for revoked token, got nil")
	}
}

func TestRevokeNonExistentSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()

	// Revoking non-existent token should not error
	err := rs.RevokeRefreshSession(ctx, "non-existent-token")
	if err != nil {
		t.Errorf("RevokeRefreshSession for non-existent token failed: %v", err)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	// Two sessions for the same user, one for another
	if err := rs.SaveRefreshSession(ctx, "token-a", testUser("user-1"), expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession a failed: %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "token-b", testUser("user-1"), expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession b failed: %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "token-c", testUser("user-2"), expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession c failed: %v", err)
	}

	if err := rs.RevokeUserSessions(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeUserSessions failed: %v", err)
	}

	if _, err := rs.LookupRefreshSession(ctx, "token-a"); err == nil {
		t.Error("expected token-a to be revoked")
	}
	if _, err := rs.LookupRefreshSession(ctx, "token-b"); err == nil {
		t.Error("expected token-b to be revoked")
	}

	// Other user's session survives
	user, err := rs.LookupRefreshSession(ctx, "token-c")
	if err != nil {
		t.Fatalf("Lookup token-c after revoke failed: %v", err)
	}
	if user.UID != "user-2" {
		t.Errorf("expected user-2, got %s", user.UID)
	}
}

func TestSessionIsolation(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	err := rs.SaveRefreshSession(ctx, "token-1", testUser("user-1"), expiresAt)
	if err != nil {
		t.Fatalf("SaveRefreshSession 1 failed: %v", err)
	}

	err = rs.SaveRefreshSession(ctx, "token-2", testUser("user-2"), expiresAt)
	if err != nil {
		t.Fatalf("SaveRefreshSession 2 failed: %v", err)
	}

	user1, err := rs.LookupRefreshSession(ctx, "token-1")
	if err != nil {
		t.Fatalf("Lookup token-1 failed: %v", err)
	}
	if user1.UID != "user-1" {
		t.Errorf("expected user-1, got %s", user1.UID)
	}

	user2, err := rs.LookupRefreshSession(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 failed: %v", err)
	}
	if user2.UID != "user-2" {
		t.Errorf("expected user-2, got %s", user2.UID)
	}

	err = rs.RevokeRefreshSession(ctx, "token-1")
	if err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}

	_, err = rs.LookupRefreshSession(ctx, "token-1")
	if err == nil {
		t.Error("expected error for revoked token-1, got nil")
	}

	user2, err = rs.LookupRefreshSession(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if user2.UID != "user-2" {
		t.Errorf("expected user-2 after revoke, got %s", user2.UID)
	}
}
