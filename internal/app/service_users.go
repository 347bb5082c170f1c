package app

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/pomidornijfrukt/medium-project/internal/authpw"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// GetProfile returns the caller's own account, email included, with the
// five newest own posts in any status.
func (s *Service) GetProfile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByUID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	posts, _, err := s.store.ListUserPosts(ctx, session.UserID, false, 5, 0)
	if err != nil {
		return nil, err
	}

	payload := privateUserPayload(user)
	payload["posts"] = postPayloads(posts)
	return payload, nil
}

// UpdateProfile changes username and/or email. Each change is written to
// the audit trail by the store.
func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (map[string]any, error) {
	var username, email *string

	if input.Username != nil {
		name := strings.TrimSpace(*input.Username)
		if len(name) < 3 || len(name) > 255 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "username must be between 3 and 255 characters", nil)
		}
		taken, err := s.store.UsernameTaken(ctx, name, session.UserID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domainError(http.StatusConflict, "CONFLICT", "Username already taken", nil)
		}
		username = &name
	}

	if input.Email != nil {
		addr := strings.TrimSpace(strings.ToLower(*input.Email))
		if addr == "" || !strings.Contains(addr, "@") || len(addr) > 255 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a valid email is required", nil)
		}
		taken, err := s.store.EmailTaken(ctx, addr, session.UserID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domainError(http.StatusConflict, "CONFLICT", "Email already registered", nil)
		}
		email = &addr
	}

	user, err := s.store.UpdateUserProfile(ctx, session.UserID, session.UserID, username, email)
	if err != nil {
		return nil, err
	}
	return privateUserPayload(user), nil
}

// UpdatePassword verifies the current password, writes the new hash, and
// drops every refresh session so other devices must sign in again.
func (s *Service) UpdatePassword(ctx context.Context, session Session, currentPassword, newPassword string) error {
	if err := s.accounts.ChangePassword(ctx, session.UserID, currentPassword, newPassword); err != nil {
		return mapAccountError(err)
	}
	_ = s.sessions.RevokeUserSessions(ctx, session.UserID)
	return nil
}

// DeleteAccount soft-deletes the caller. The username and email are
// scrambled so they become reusable, every post the user wrote is
// soft-deleted in the same transaction, and all sessions are revoked.
func (s *Service) DeleteAccount(ctx context.Context, session Session) error {
	username, email := authpw.ScrambledIdentity(session.UserID)
	if err := s.store.DeleteUserAccount(ctx, session.UserID, username, email); err != nil {
		return err
	}

	_ = s.sessions.RevokeUserSessions(ctx, session.UserID)
	_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	return nil
}

// GetPublicProfile returns the public view of a user.
func (s *Service) GetPublicProfile(ctx context.Context, uid string) (map[string]any, error) {
	user, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if user.Status == "deleted" {
		return nil, sql.ErrNoRows
	}

	posts, postCount, err := s.store.ListUserPosts(ctx, user.UID, true, 10, 0)
	if err != nil {
		return nil, err
	}

	payload := publicUserPayload(user)
	payload["posts"] = postPayloads(posts)
	payload["publishedPosts"] = postCount
	return payload, nil
}

func privateUserPayload(user store.User) map[string]any {
	payload := publicUserPayload(user)
	payload["email"] = user.Email
	payload["status"] = user.Status
	payload["updatedAt"] = user.UpdatedAt
	if user.LastLoginAt != nil {
		payload["lastLoginAt"] = *user.LastLoginAt
	} else {
		payload["lastLoginAt"] = nil
	}
	return payload
}

func publicUserPayload(user store.User) map[string]any {
	return map[string]any{
		"uid":       user.UID,
		"username":  user.Username,
		"role":      user.Role,
		"createdAt": user.CreatedAt,
	}
}
