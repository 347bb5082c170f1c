package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pomidornijfrukt/medium-project/internal/auth"
	"github.com/pomidornijfrukt/medium-project/internal/authpw"
	"github.com/pomidornijfrukt/medium-project/internal/config"
	"github.com/pomidornijfrukt/medium-project/internal/rbac"
	"github.com/pomidornijfrukt/medium-project/internal/search"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type CreatePostInput struct {
	Topic        string   `json:"topic"`
	Content      string   `json:"content"`
	Status       string   `json:"status"`
	ParentPostID *int64   `json:"parentPostId"`
	Tags         []string `json:"tags"`
}

type UpdatePostInput struct {
	Topic        *string  `json:"topic"`
	Content      *string  `json:"content"`
	Status       *string  `json:"status"`
	ParentPostID *int64   `json:"parentPostId"`
	Tags         []string `json:"tags"`
}

type UpdateProfileInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

var allowedPostStatuses = map[string]struct{}{
	"draft":     {},
	"published": {},
}

var allowedUserStatuses = map[string]struct{}{
	"active":  {},
	"banned":  {},
	"pending": {},
	"deleted": {},
}

type dataStore interface {
	GetUserByUID(context.Context, string) (store.User, error)
	GetUserByLogin(context.Context, string) (store.User, error)
	UsernameTaken(context.Context, string, string) (bool, error)
	EmailTaken(context.Context, string, string) (bool, error)
	ListUsers(context.Context, string, string, string) ([]store.User, error)
	UpdateUserProfile(context.Context, string, string, *string, *string) (store.User, error)
	UpdateUserRole(context.Context, string, string, string) (store.User, error)
	UpdateUserStatus(context.Context, string, string) (store.User, error)
	DeleteUserAccount(context.Context, string, string, string) error
	RoleExists(context.Context, string) (bool, error)
	ListRoles(context.Context) ([]store.Role, error)

	CreatePost(context.Context, store.Post, []string) (store.Post, error)
	GetPost(context.Context, int64) (store.Post, error)
	UpdatePost(context.Context, int64, store.PostUpdate) (store.Post, error)
	SoftDeletePost(context.Context, int64, bool) error
	ListPosts(context.Context, string, int, int) ([]store.Post, int, error)
	ListChildPosts(context.Context, int64, bool) ([]store.Post, error)
	ListLinkedPosts(context.Context, int64, bool, int, int) ([]store.Post, int, error)
	ListPostsByTag(context.Context, string, int, int) ([]store.Post, int, error)
	ListUserPosts(context.Context, string, bool, int, int) ([]store.Post, int, error)
	ListAllPosts(context.Context) ([]store.Post, error)

	ListTags(context.Context, string) ([]store.Tag, error)
	GetTag(context.Context, string) (store.Tag, error)
	TagExists(context.Context, string) (bool, error)
	CreateTag(context.Context, string, string) (store.Tag, error)
	UpdateTag(context.Context, string, string) (store.Tag, error)
	DeleteTag(context.Context, string) error
	TagPostCount(context.Context, string) (int, error)

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	RecordModerationAction(context.Context, string, string) error
	ListActions(context.Context, int) ([]map[string]any, error)

	DashboardStats(context.Context) (store.DashboardStats, error)
	UserActivity(context.Context, int, int) ([]map[string]any, error)
	ContentInsights(context.Context, int) ([]map[string]any, error)
	UserBehavior(context.Context, int) ([]map[string]any, error)
	PostRelationships(context.Context, int) ([]map[string]any, error)
	AdvancedSearch(context.Context, store.AdvancedSearchOptions) ([]map[string]any, int, error)
	SearchAggregations(context.Context) (map[string]any, error)
	TrendingPosts(context.Context, int, int) ([]map[string]any, error)
	RecommendedPosts(context.Context, string, int) ([]map[string]any, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis-backed when configured, with a
// Postgres table as the fallback implementation.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeUserSessions(ctx context.Context, uid string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	search   *search.Service
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore, accounts *authpw.Service, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: accounts,
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionsPing(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, username, email, password string) (Session, error) {
	user, err := s.accounts.Register(ctx, authpw.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return Session{}, mapAccountError(err)
	}
	return s.issueSession(ctx, user)
}

// Login authenticates by username or email.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, login, password)
	if err != nil {
		return Session{}, mapAccountError(err)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token and issues a new access token. The
// account is re-read so a ban lands even on a still-valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByUID(ctx, cached.UID)
	if err != nil {
		return Session{}, err
	}
	if user.Status != "active" {
		_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		return Session{}, auth.ErrInvalidToken
	}

	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := uuid.NewString()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.UID,
		Name: user.Username,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := randomToken()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.UID,
		Username:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token. Banned and deleted accounts
// are rejected here, which locks them out of every authenticated route as
// soon as the status flips.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByUID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.Status == "banned" || user.Status == "deleted" {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.UID,
		Username:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Search runs the keyword search over posts and tags.
func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func mapAccountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrUsernameTaken):
		return domainError(http.StatusConflict, "CONFLICT", "Username already taken", nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "CONFLICT", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid login or password", nil)
	case errors.Is(err, authpw.ErrAccountBanned):
		return domainError(http.StatusForbidden, "FORBIDDEN", "Account is banned", nil)
	case errors.Is(err, authpw.ErrAccountDeleted):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid login or password", nil)
	case errors.Is(err, authpw.ErrWrongPassword):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Current password is incorrect", nil)
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
}

func randomToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
