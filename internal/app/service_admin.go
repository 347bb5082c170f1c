package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/pomidornijfrukt/medium-project/internal/rbac"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// ListAllUsers is the admin user directory with optional search, role, and
// status filters.
func (s *Service) ListAllUsers(ctx context.Context, session Session, keyword, role, status string) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if status != "" {
		if _, ok := allowedUserStatuses[status]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status filter", nil)
		}
	}

	users, err := s.store.ListUsers(ctx, strings.TrimSpace(keyword), role, status)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, privateUserPayload(user))
	}
	return items, nil
}

// GetUser returns a single account, admin view.
func (s *Service) GetUser(ctx context.Context, session Session, uid string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	user, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}

	// The detail view carries every post the user wrote, any status.
	_, total, err := s.store.ListUserPosts(ctx, uid, false, 1, 0)
	if err != nil {
		return nil, err
	}
	posts := []store.Post{}
	if total > 0 {
		posts, _, err = s.store.ListUserPosts(ctx, uid, false, total, 0)
		if err != nil {
			return nil, err
		}
	}

	payload := privateUserPayload(user)
	payload["posts"] = postPayloads(posts)
	return payload, nil
}

// ChangeUserRole assigns a role. Admins cannot change their own role,
// which prevents locking the last admin out by accident.
func (s *Service) ChangeUserRole(ctx context.Context, session Session, uid, role string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if uid == session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "cannot change your own role", nil)
	}

	role = strings.TrimSpace(role)
	exists, err := s.store.RoleExists(ctx, role)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown role", nil)
	}

	user, err := s.store.UpdateUserRole(ctx, session.UserID, uid, role)
	if err != nil {
		return nil, err
	}
	return privateUserPayload(user), nil
}

// BanUser flips an account to banned, records the action, and revokes the
// user's refresh sessions. Access tokens die at the next request because
// session validation rejects banned accounts.
func (s *Service) BanUser(ctx context.Context, session Session, uid string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if uid == session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "cannot ban yourself", nil)
	}

	target, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if rbac.Normalize(target.Role) == rbac.RoleAdmin {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "cannot ban an admin", nil)
	}

	user, err := s.store.UpdateUserStatus(ctx, uid, "banned")
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordModerationAction(ctx, session.UserID, uid); err != nil {
		return nil, err
	}
	_ = s.sessions.RevokeUserSessions(ctx, uid)

	return privateUserPayload(user), nil
}

// UnbanUser restores a banned account to active.
func (s *Service) UnbanUser(ctx context.Context, session Session, uid string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	target, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if target.Status != "banned" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "user is not banned", nil)
	}

	user, err := s.store.UpdateUserStatus(ctx, uid, "active")
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordModerationAction(ctx, session.UserID, uid); err != nil {
		return nil, err
	}
	return privateUserPayload(user), nil
}

// ListAllPostsAdmin returns every post regardless of status.
func (s *Service) ListAllPostsAdmin(ctx context.Context, session Session) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	posts, err := s.store.ListAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	return postPayloads(posts), nil
}

// ListRoles returns the role catalogue.
func (s *Service) ListRoles(ctx context.Context, session Session) ([]store.Role, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.store.ListRoles(ctx)
}

// AuditTrail returns the newest audit actions.
func (s *Service) AuditTrail(ctx context.Context, session Session, limit int) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListActions(ctx, limit)
}

// Dashboard returns the admin overview counters.
func (s *Service) Dashboard(ctx context.Context, session Session) (store.DashboardStats, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return store.DashboardStats{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.store.DashboardStats(ctx)
}

// ---- analytics, moderator and admin ----

func (s *Service) UserActivityReport(ctx context.Context, session Session, days, limit int) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionViewAnalytics) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if days <= 0 || days > 365 {
		days = 30
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.UserActivity(ctx, days, limit)
}

func (s *Service) ContentInsightsReport(ctx context.Context, session Session, limit int) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionViewAnalytics) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ContentInsights(ctx, limit)
}

func (s *Service) UserBehaviorReport(ctx context.Context, session Session, days int) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionViewAnalytics) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if days <= 0 || days > 365 {
		days = 30
	}
	return s.store.UserBehavior(ctx, days)
}

func (s *Service) PostRelationshipsReport(ctx context.Context, session Session, limit int) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionViewAnalytics) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.PostRelationships(ctx, limit)
}

// ---- discovery ----

// AdvancedSearch filters published posts by keyword, tags, and author
// role, with reply statistics and a role aggregation alongside.
func (s *Service) AdvancedSearch(ctx context.Context, opts store.AdvancedSearchOptions) (map[string]any, error) {
	opts.Limit, opts.Offset = clampPage(opts.Limit, opts.Offset)
	if opts.SortBy != "" {
		switch opts.SortBy {
		case "newest", "oldest", "most_replies", "most_participants", "recently_active":
		default:
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown sort order", nil)
		}
	}

	posts, total, err := s.store.AdvancedSearch(ctx, opts)
	if err != nil {
		return nil, err
	}
	aggregations, err := s.store.SearchAggregations(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"posts":        posts,
		"total":        total,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
		"aggregations": aggregations,
	}, nil
}

// TrendingPosts ranks threads by recent reply activity.
func (s *Service) TrendingPosts(ctx context.Context, days, limit int) ([]map[string]any, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.store.TrendingPosts(ctx, days, limit)
}

// RecommendedPosts suggests threads sharing tags with the caller's posts.
func (s *Service) RecommendedPosts(ctx context.Context, session Session, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.store.RecommendedPosts(ctx, session.UserID, limit)
}
