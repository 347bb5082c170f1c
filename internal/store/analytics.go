package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Aggregation queries feeding the analytics and discovery endpoints. Rows
// come back as generic maps since every endpoint has its own shape and the
// payloads go straight into JSON.

func (s *PostgresStore) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE status = 'active'),
			(SELECT COUNT(*) FROM users WHERE status = 'banned'),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM posts WHERE status = 'published'),
			(SELECT COUNT(*) FROM posts WHERE status = 'draft'),
			(SELECT COUNT(*) FROM posts WHERE status = 'deleted'),
			(SELECT COUNT(*) FROM posts WHERE post_type = 'main'),
			(SELECT COUNT(*) FROM posts WHERE post_type = 'linked'),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM actions)
	`).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.BannedUsers,
		&stats.TotalPosts, &stats.PublishedPosts, &stats.DraftPosts, &stats.DeletedPosts,
		&stats.MainPosts, &stats.LinkedPosts, &stats.TotalTags, &stats.TotalActions)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

// UserActivity summarizes posting volume per user over a trailing window.
func (s *PostgresStore) UserActivity(ctx context.Context, days, limit int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT u.uid AS user_id, u.username, u.role,
			COUNT(p.post_id) AS posts_count,
			COUNT(p.post_id) FILTER (WHERE p.post_type = 'main') AS threads_started,
			COUNT(p.post_id) FILTER (WHERE p.post_type = 'linked') AS replies_written,
			MAX(p.created_at) AS last_post_at
		FROM users u
		LEFT JOIN posts p ON p.author = u.uid
			AND p.status <> 'deleted'
			AND p.created_at > NOW() - make_interval(days => $1)
		WHERE u.status = 'active'
		GROUP BY u.uid, u.username, u.role
		ORDER BY posts_count DESC, u.username
		LIMIT $2
	`, days, limit)
}

// ContentInsights breaks published content down by tag and by status.
func (s *PostgresStore) ContentInsights(ctx context.Context, limit int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT t.tag_name, t.description,
			COUNT(tu.post_id) AS posts_count,
			COUNT(DISTINCT p.author) AS unique_authors,
			MAX(p.created_at) AS last_used_at
		FROM tags t
		LEFT JOIN tag_is_used tu ON tu.tag_name = t.tag_name
		LEFT JOIN posts p ON p.post_id = tu.post_id AND p.status = 'published'
		GROUP BY t.tag_name, t.description
		ORDER BY posts_count DESC, t.tag_name
		LIMIT $1
	`, limit)
}

// UserBehavior reports registration and moderation trends by day.
func (s *PostgresStore) UserBehavior(ctx context.Context, days int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT d.day::date AS day,
			(SELECT COUNT(*) FROM users u WHERE u.created_at::date = d.day::date) AS registrations,
			(SELECT COUNT(*) FROM posts p WHERE p.created_at::date = d.day::date AND p.status <> 'deleted') AS posts,
			(SELECT COUNT(*) FROM actions a WHERE a.action_at::date = d.day::date) AS moderation_actions
		FROM generate_series(NOW() - make_interval(days => $1), NOW(), '1 day') AS d(day)
		ORDER BY day
	`, days)
}

// PostRelationships summarizes each discussion thread: reply volume,
// distinct participants and the time of the latest reply.
func (s *PostgresStore) PostRelationships(ctx context.Context, limit int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT p.post_id, p.topic, u.username AS author,
			COUNT(c.post_id) AS reply_count,
			COUNT(DISTINCT c.author) AS participant_count,
			MAX(c.created_at) AS last_reply_at,
			p.created_at
		FROM posts p
		JOIN users u ON u.uid = p.author
		LEFT JOIN posts c ON c.parent_post_id = p.post_id AND c.status = 'published'
		WHERE p.post_type = 'main' AND p.status = 'published'
		GROUP BY p.post_id, p.topic, u.username, p.created_at
		ORDER BY reply_count DESC, p.created_at DESC
		LIMIT $1
	`, limit)
}

// AdvancedSearchOptions narrows the post search beyond the plain keyword
// listing. Zero values mean the filter is off.
type AdvancedSearchOptions struct {
	Search      string
	Tags        []string
	ExcludeTags []string
	AuthorRole  string
	SortBy      string
	Limit       int
	Offset      int
}

func (s *PostgresStore) AdvancedSearch(ctx context.Context, opts AdvancedSearchOptions) ([]map[string]any, int, error) {
	where := []string{`p.status = 'published'`, `p.post_type = 'main'`}
	var args []any

	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(p.topic ILIKE $%d OR p.content ILIKE $%d)", n, n))
	}
	if opts.AuthorRole != "" {
		args = append(args, opts.AuthorRole)
		where = append(where, fmt.Sprintf("u.role = $%d", len(args)))
	}
	for _, tag := range opts.Tags {
		args = append(args, tag)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM tag_is_used tu WHERE tu.post_id = p.post_id AND tu.tag_name = $%d)", len(args)))
	}
	for _, tag := range opts.ExcludeTags {
		args = append(args, tag)
		where = append(where, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM tag_is_used tu WHERE tu.post_id = p.post_id AND tu.tag_name = $%d)", len(args)))
	}
	condition := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM posts p JOIN users u ON u.uid = p.author WHERE ` + condition
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count advanced search: %w", err)
	}

	order := "p.created_at DESC"
	switch opts.SortBy {
	case "oldest":
		order = "p.created_at ASC"
	case "most_replies":
		order = "reply_count DESC, p.created_at DESC"
	case "most_participants":
		order = "participant_count DESC, p.created_at DESC"
	case "recently_active":
		order = "last_activity DESC NULLS LAST, p.created_at DESC"
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT p.post_id, p.topic, p.content, p.post_type, u.username AS author, u.role AS author_role,
			COUNT(c.post_id) AS reply_count,
			COUNT(DISTINCT c.author) AS participant_count,
			MAX(c.created_at) AS last_activity,
			p.created_at
		FROM posts p
		JOIN users u ON u.uid = p.author
		LEFT JOIN posts c ON c.parent_post_id = p.post_id AND c.status = 'published'
		WHERE %s
		GROUP BY p.post_id, p.topic, p.content, p.post_type, u.username, u.role, p.created_at
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, condition, order, len(args)-1, len(args))

	rows, err := s.queryMaps(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SearchAggregations returns the role breakdown shown alongside advanced
// search results.
func (s *PostgresStore) SearchAggregations(ctx context.Context) (map[string]any, error) {
	rows, err := s.queryMaps(ctx, `
		SELECT u.role, COUNT(p.post_id) AS posts_count
		FROM posts p JOIN users u ON u.uid = p.author
		WHERE p.status = 'published'
		GROUP BY u.role
		ORDER BY u.role
	`)
	if err != nil {
		return nil, err
	}
	byRole := make(map[string]any, len(rows))
	for _, row := range rows {
		role, _ := row["role"].(string)
		byRole[role] = row["posts_count"]
	}
	return map[string]any{"by_role": byRole}, nil
}

// TrendingPosts scores recent threads by reply volume and participant
// spread inside the trailing window.
func (s *PostgresStore) TrendingPosts(ctx context.Context, days, limit int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT p.post_id, p.topic, u.username AS author,
			COUNT(c.post_id) AS recent_replies,
			COUNT(DISTINCT c.author) AS recent_participants,
			COUNT(c.post_id) + 2 * COUNT(DISTINCT c.author) AS trend_score,
			p.created_at
		FROM posts p
		JOIN users u ON u.uid = p.author
		JOIN posts c ON c.parent_post_id = p.post_id
			AND c.status = 'published'
			AND c.created_at > NOW() - make_interval(days => $1)
		WHERE p.post_type = 'main' AND p.status = 'published'
		GROUP BY p.post_id, p.topic, u.username, p.created_at
		ORDER BY trend_score DESC, p.created_at DESC
		LIMIT $2
	`, days, limit)
}

// RecommendedPosts suggests threads sharing tags with posts the user wrote,
// excluding the user's own threads.
func (s *PostgresStore) RecommendedPosts(ctx context.Context, uid string, limit int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT p.post_id, p.topic, u.username AS author,
			COUNT(DISTINCT tu.tag_name) AS shared_tags,
			p.created_at
		FROM posts p
		JOIN users u ON u.uid = p.author
		JOIN tag_is_used tu ON tu.post_id = p.post_id
		WHERE p.status = 'published'
			AND p.post_type = 'main'
			AND p.author <> $1
			AND tu.tag_name IN (
				SELECT DISTINCT mt.tag_name
				FROM tag_is_used mt
				JOIN posts mp ON mp.post_id = mt.post_id
				WHERE mp.author = $1 AND mp.status <> 'deleted'
			)
		GROUP BY p.post_id, p.topic, u.username, p.created_at
		ORDER BY shared_tags DESC, p.created_at DESC
		LIMIT $2
	`, uid, limit)
}

func (s *PostgresStore) queryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case time.Time:
				row[col] = v.UTC()
			default:
				row[col] = v
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
