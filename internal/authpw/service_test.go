package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	lastLogins map[string]int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		lastLogins: make(map[string]int),
	}
}

func (m *mockUserStore) GetUserByLogin(ctx context.Context, login string) (store.User, error) {
	for _, user := range m.users {
		if user.Username == login || user.Email == login {
			return user, nil
		}
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByUID(ctx context.Context, uid string) (store.User, error) {
	if user, ok := m.users[uid]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) UsernameTaken(ctx context.Context, username, excludeUID string) (bool, error) {
	for _, user := range m.users {
		if user.Username == username && user.UID != excludeUID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserStore) EmailTaken(ctx context.Context, email, excludeUID string) (bool, error) {
	for _, user := range m.users {
		if user.Email == email && user.UID != excludeUID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.UID] = user
	return nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, actorUID, uid, oldHash, newHash string) error {
	user, ok := m.users[uid]
	if !ok {
		return errors.New("user not found")
	}
	user.PasswordHash = newHash
	m.users[uid] = user
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, uid string) error {
	m.lastLogins[uid]++
	return nil
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful registration", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterRequest{
			Username: "freya",
			Email:    "freya@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.UID == "" {
			t.Error("expected UID to be set")
		}
		if user.Role != "member" {
			t.Errorf("expected role member, got %s", user.Role)
		}
		if user.Status != "active" {
			t.Errorf("expected status active, got %s", user.Status)
		}
		if user.PasswordHash == "password123" {
			t.Error("expected password to be hashed")
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Username: "freya",
			Email:    "other@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrUsernameTaken) {
			t.Errorf("expected ErrUsernameTaken, got %v", err)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Username: "freya2",
			Email:    "freya@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("email is lowercased", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterRequest{
			Username: "loki",
			Email:    "Loki@Example.COM",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "loki@example.com" {
			t.Errorf("expected lowercased email, got %s", user.Email)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Username: "short",
			Email:    "short@example.com",
			Password: "short",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{})
		if err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	registered, err := svc.Register(ctx, RegisterRequest{
		Username: "freya",
		Email:    "freya@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("sign in by username", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "freya", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.UID != registered.UID {
			t.Errorf("expected UID %s, got %s", registered.UID, user.UID)
		}
		if mockStore.lastLogins[user.UID] == 0 {
			t.Error("expected last login to be recorded")
		}
	})

	t.Run("sign in by email", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "freya@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.UID != registered.UID {
			t.Errorf("expected UID %s, got %s", registered.UID, user.UID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "freya", "wrongpassword")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "nobody", "password123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("banned account", func(t *testing.T) {
		banned := mockStore.users[registered.UID]
		banned.Status = "banned"
		mockStore.users[registered.UID] = banned

		_, err := svc.SignIn(ctx, "freya", "password123")
		if !errors.Is(err, ErrAccountBanned) {
			t.Errorf("expected ErrAccountBanned, got %v", err)
		}

		banned.Status = "active"
		mockStore.users[registered.UID] = banned
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	user, err := svc.Register(ctx, RegisterRequest{
		Username: "freya",
		Email:    "freya@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.UID, "wrongpassword", "newpassword123")
		if !errors.Is(err, ErrWrongPassword) {
			t.Errorf("expected ErrWrongPassword, got %v", err)
		}
	})

	t.Run("short new password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.UID, "password123", "short")
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("successful change", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.UID, "password123", "newpassword123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := svc.SignIn(ctx, "freya", "password123"); err == nil {
			t.Error("expected old password to stop working")
		}
		if _, err := svc.SignIn(ctx, "freya", "newpassword123"); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
	})
}

func TestScrambledIdentity(t *testing.T) {
	username, email := ScrambledIdentity("3f8a2b1c-9d4e-4f6a-b7c8-d9e0f1a2b3c4")

	if !strings.HasPrefix(username, "deleted_3f8a2b1c") {
		t.Errorf("unexpected username %q", username)
	}
	if !strings.HasSuffix(email, "@removed.invalid") {
		t.Errorf("unexpected email %q", email)
	}

	// Two calls for the same uid must not collide
	username2, _ := ScrambledIdentity("3f8a2b1c-9d4e-4f6a-b7c8-d9e0f1a2b3c4")
	if username == username2 {
		t.Error("expected distinct scrambled usernames")
	}
}
