// Package authpw provides username/password authentication over bcrypt.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pomidornijfrukt/medium-project/internal/rbac"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrAccountBanned      = errors.New("account is banned")
	ErrAccountDeleted     = errors.New("account is deleted")
	ErrWrongPassword      = errors.New("current password is incorrect")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByLogin(ctx context.Context, login string) (store.User, error)
	GetUserByUID(ctx context.Context, uid string) (store.User, error)
	UsernameTaken(ctx context.Context, username, excludeUID string) (bool, error)
	EmailTaken(ctx context.Context, email, excludeUID string) (bool, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, actorUID, uid, oldHash, newHash string) error
	UpdateLastLogin(ctx context.Context, uid string) error
}

// Service provides username/password authentication
type Service struct {
	store UserStore
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains registration parameters
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Register creates a new member account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if username == "" || email == "" || req.Password == "" {
		return store.User{}, errors.New("username, email, and password are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if taken, err := s.store.UsernameTaken(ctx, username, ""); err != nil {
		return store.User{}, fmt.Errorf("check username: %w", err)
	} else if taken {
		return store.User{}, ErrUsernameTaken
	}
	if taken, err := s.store.EmailTaken(ctx, email, ""); err != nil {
		return store.User{}, fmt.Errorf("check email: %w", err)
	} else if taken {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		UID:          uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         string(rbac.RoleMember),
		Status:       "active",
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// SignIn authenticates a user by username or email. Banned and deleted
// accounts fail even with the right password.
func (s *Service) SignIn(ctx context.Context, login, password string) (store.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	switch user.Status {
	case "banned":
		return store.User{}, ErrAccountBanned
	case "deleted":
		return store.User{}, ErrAccountDeleted
	}

	if err := s.store.UpdateLastLogin(ctx, user.UID); err != nil {
		return store.User{}, fmt.Errorf("update last login: %w", err)
	}
	now := time.Now()
	user.LastLoginAt = &now

	return user, nil
}

// ChangePassword verifies the current password before writing the new hash.
// The change is audited by the store.
func (s *Service) ChangePassword(ctx context.Context, uid, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return errors.New("current and new password are required")
	}
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	user, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdateUserPassword(ctx, uid, uid, user.PasswordHash, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ScrambledIdentity returns replacement username and email values for a
// soft-deleted account so the originals can be reused.
func ScrambledIdentity(uid string) (username, email string) {
	suffix := uid
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	nonce := randomHex(4)
	return "deleted_" + suffix + "_" + nonce, "deleted_" + suffix + "_" + nonce + "@removed.invalid"
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
