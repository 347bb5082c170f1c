package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, username, email, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.UID, user.Username, user.Email, user.PasswordHash, user.Role, user.Status)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `uid, username, email, password_hash, role, status, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var lastLogin sql.NullTime
	err := row.Scan(&user.UID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.Status, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUID(ctx context.Context, uid string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid)
	return scanUser(row)
}

// GetUserByLogin resolves a user by username or email.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1
	`, login)
	return scanUser(row)
}

func (s *PostgresStore) UsernameTaken(ctx context.Context, username, excludeUID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND uid <> $2)`,
		username, excludeUID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) EmailTaken(ctx context.Context, email, excludeUID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND uid <> $2)`,
		email, excludeUID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) UpdateLastLogin(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, search, role, status string) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var conditions []string
	var args []any
	if search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d)", n, n))
	}
	if role != "" {
		args = append(args, role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUserProfile changes username and/or email, writing one audit change
// row plus one action row per changed field, all in one transaction.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, actorUID, uid string, username, email *string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin profile tx: %w", err)
	}
	defer tx.Rollback()

	current, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid))
	if err != nil {
		return User{}, err
	}

	if username != nil && *username != current.Username {
		if err := recordChangeTx(ctx, tx, actorUID, uid, Change{Kind: ChangeUsername, OldValue: current.Username, NewValue: *username}); err != nil {
			return User{}, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET username = $1, updated_at = NOW() WHERE uid = $2`, *username, uid); err != nil {
			return User{}, fmt.Errorf("update username: %w", err)
		}
		current.Username = *username
	}
	if email != nil && *email != current.Email {
		if err := recordChangeTx(ctx, tx, actorUID, uid, Change{Kind: ChangeEmail, OldValue: current.Email, NewValue: *email}); err != nil {
			return User{}, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET email = $1, updated_at = NOW() WHERE uid = $2`, *email, uid); err != nil {
			return User{}, fmt.Errorf("update email: %w", err)
		}
		current.Email = *email
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit profile tx: %w", err)
	}
	return current, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, actorUID, uid, oldHash, newHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin password tx: %w", err)
	}
	defer tx.Rollback()

	if err := recordChangeTx(ctx, tx, actorUID, uid, Change{Kind: ChangePassword, OldValue: oldHash, NewValue: newHash}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE uid = $2`, newHash, uid); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, actorUID, uid, newRole string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin role tx: %w", err)
	}
	defer tx.Rollback()

	current, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid))
	if err != nil {
		return User{}, err
	}
	if err := recordChangeTx(ctx, tx, actorUID, uid, Change{Kind: ChangeRole, OldValue: current.Role, NewValue: newRole}); err != nil {
		return User{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET role = $1, updated_at = NOW() WHERE uid = $2`, newRole, uid); err != nil {
		return User{}, fmt.Errorf("update role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit role tx: %w", err)
	}
	current.Role = newRole
	return current, nil
}

func (s *PostgresStore) UpdateUserStatus(ctx context.Context, uid, status string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET status = $1, updated_at = NOW() WHERE uid = $2
		RETURNING `+userColumns+`
	`, status, uid)
	return scanUser(row)
}

// DeleteUserAccount soft-deletes the user and every post they authored.
// Username and email are replaced so the unique columns stay reusable.
func (s *PostgresStore) DeleteUserAccount(ctx context.Context, uid, scrambledUsername, scrambledEmail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete account tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE posts SET status = 'deleted', last_edited_at = NOW(), updated_at = NOW()
		WHERE author = $1
	`, uid); err != nil {
		return fmt.Errorf("soft delete user posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET status = 'deleted', username = $1, email = $2, updated_at = NOW()
		WHERE uid = $3
	`, scrambledUsername, scrambledEmail, uid); err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return tx.Commit()
}

func recordChangeTx(ctx context.Context, tx *sql.Tx, actorUID, victimUID string, change Change) error {
	var table, fkColumn string
	switch change.Kind {
	case ChangeUsername:
		table, fkColumn = "username_changes", "username_change_id"
	case ChangeEmail:
		table, fkColumn = "email_changes", "email_change_id"
	case ChangePassword:
		table, fkColumn = "password_changes", "password_change_id"
	case ChangeRole:
		table, fkColumn = "role_changes", "role_change_id"
	default:
		return fmt.Errorf("unknown change kind %q", change.Kind)
	}

	var changeID int64
	insertChange := fmt.Sprintf(`INSERT INTO %s (old_%s, new_%s) VALUES ($1, $2) RETURNING id`,
		table, columnStem(change.Kind), columnStem(change.Kind))
	if err := tx.QueryRowContext(ctx, insertChange, change.OldValue, change.NewValue).Scan(&changeID); err != nil {
		return fmt.Errorf("insert %s change: %w", change.Kind, err)
	}

	insertAction := fmt.Sprintf(`INSERT INTO actions (author, victim, %s) VALUES ($1, $2, $3)`, fkColumn)
	if _, err := tx.ExecContext(ctx, insertAction, actorUID, victimUID, changeID); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func columnStem(kind ChangeKind) string {
	switch kind {
	case ChangeUsername:
		return "username"
	case ChangeEmail:
		return "email"
	case ChangePassword:
		return "password_hash"
	case ChangeRole:
		return "role"
	}
	return string(kind)
}

// RecordModerationAction writes an audit action with no field change
// attached. Used for bans and unbans.
func (s *PostgresStore) RecordModerationAction(ctx context.Context, authorUID, victimUID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO actions (author, victim) VALUES ($1, $2)`, authorUID, victimUID)
	if err != nil {
		return fmt.Errorf("insert moderation action: %w", err)
	}
	return nil
}

// ListActions returns the audit trail, newest first. Each row resolves the
// attached change table, if any, into kind/old/new columns.
func (s *PostgresStore) ListActions(ctx context.Context, limit int) ([]map[string]any, error) {
	return s.queryMaps(ctx, `
		SELECT a.id, au.username AS author, vu.username AS victim, a.action_at,
			CASE
				WHEN a.username_change_id IS NOT NULL THEN 'username'
				WHEN a.email_change_id IS NOT NULL THEN 'email'
				WHEN a.password_change_id IS NOT NULL THEN 'password'
				WHEN a.role_change_id IS NOT NULL THEN 'role'
				ELSE 'moderation'
			END AS change_kind,
			COALESCE(uc.old_username, ec.old_email, rc.old_role) AS old_value,
			COALESCE(uc.new_username, ec.new_email, rc.new_role) AS new_value
		FROM actions a
		JOIN users au ON au.uid = a.author
		JOIN users vu ON vu.uid = a.victim
		LEFT JOIN username_changes uc ON uc.id = a.username_change_id
		LEFT JOIN email_changes ec ON ec.id = a.email_change_id
		LEFT JOIN role_changes rc ON rc.id = a.role_change_id
		ORDER BY a.action_at DESC, a.id DESC
		LIMIT $1
	`, limit)
}

func (s *PostgresStore) RoleExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ---- posts ----

const postColumns = `p.post_id, p.author, p.topic, p.content, p.status, p.post_type,
	p.parent_post_id, p.last_edited_at, p.created_at, p.updated_at, u.username`

const postFrom = ` FROM posts p JOIN users u ON u.uid = p.author `

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var post Post
	var parent sql.NullInt64
	var edited sql.NullTime
	err := row.Scan(&post.PostID, &post.Author, &post.Topic, &post.Content, &post.Status,
		&post.PostType, &parent, &edited, &post.CreatedAt, &post.UpdatedAt, &post.AuthorUsername)
	if err != nil {
		return Post{}, err
	}
	if parent.Valid {
		id := parent.Int64
		post.ParentPostID = &id
	}
	if edited.Valid {
		t := edited.Time
		post.LastEditedAt = &t
	}
	return post, nil
}

// CreatePost inserts the post and its tag associations in one transaction.
// Tags are created on first use with the description defaulting to the name.
func (s *PostgresStore) CreatePost(ctx context.Context, post Post, tags []string) (Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("begin create post tx: %w", err)
	}
	defer tx.Rollback()

	var parent any
	if post.ParentPostID != nil {
		parent = *post.ParentPostID
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO posts (author, topic, content, status, post_type, parent_post_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING post_id, created_at, updated_at
	`, post.Author, post.Topic, post.Content, post.Status, post.PostType, parent).
		Scan(&post.PostID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	if err := attachTagsTx(ctx, tx, post.PostID, tags); err != nil {
		return Post{}, err
	}

	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("commit create post tx: %w", err)
	}
	return s.GetPost(ctx, post.PostID)
}

func attachTagsTx(ctx context.Context, tx *sql.Tx, postID int64, tags []string) error {
	for _, name := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (tag_name, description) VALUES ($1, $1)
			ON CONFLICT (tag_name) DO NOTHING
		`, name); err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tag_is_used (tag_name, post_id) VALUES ($1, $2)
			ON CONFLICT (tag_name, post_id) DO NOTHING
		`, name, postID); err != nil {
			return fmt.Errorf("attach tag %q: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID int64) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+postFrom+`WHERE p.post_id = $1`, postID)
	post, err := scanPost(row)
	if err != nil {
		return Post{}, err
	}
	tags, err := s.ListPostTags(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	post.Tags = tags
	return post, nil
}

func (s *PostgresStore) ListPostTags(ctx context.Context, postID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.tag_name, t.description, t.created_at, t.updated_at
		FROM tags t JOIN tag_is_used tu ON tu.tag_name = t.tag_name
		WHERE tu.post_id = $1
		ORDER BY t.tag_name
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.TagName, &tag.Description, &tag.CreatedAt, &tag.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// PostUpdate carries the optional fields of an update. Nil means keep the
// stored value; Tags nil means keep the tag set, non-nil replaces it.
type PostUpdate struct {
	Topic        *string
	Content      *string
	Status       *string
	ParentPostID *int64
	Tags         []string
	ReplaceTags  bool
}

func (s *PostgresStore) UpdatePost(ctx context.Context, postID int64, update PostUpdate) (Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("begin update post tx: %w", err)
	}
	defer tx.Rollback()

	set := []string{"last_edited_at = NOW()", "updated_at = NOW()"}
	var args []any
	if update.Topic != nil {
		args = append(args, *update.Topic)
		set = append(set, fmt.Sprintf("topic = $%d", len(args)))
	}
	if update.Content != nil {
		args = append(args, *update.Content)
		set = append(set, fmt.Sprintf("content = $%d", len(args)))
	}
	if update.Status != nil {
		args = append(args, *update.Status)
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.ParentPostID != nil {
		args = append(args, *update.ParentPostID)
		set = append(set, fmt.Sprintf("parent_post_id = $%d", len(args)))
	}
	args = append(args, postID)
	query := fmt.Sprintf("UPDATE posts SET %s WHERE post_id = $%d", strings.Join(set, ", "), len(args))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Post{}, fmt.Errorf("update post rows: %w", err)
	}
	if affected == 0 {
		return Post{}, sql.ErrNoRows
	}

	if update.ReplaceTags {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_is_used WHERE post_id = $1`, postID); err != nil {
			return Post{}, fmt.Errorf("clear post tags: %w", err)
		}
		if err := attachTagsTx(ctx, tx, postID, update.Tags); err != nil {
			return Post{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("commit update post tx: %w", err)
	}
	return s.GetPost(ctx, postID)
}

// SoftDeletePost marks the post deleted and, when cascade is set, every
// direct child regardless of the child's own status. One transaction, so a
// failure leaves neither side half-deleted.
func (s *PostgresStore) SoftDeletePost(ctx context.Context, postID int64, cascade bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete post tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE posts SET status = 'deleted', last_edited_at = NOW(), updated_at = NOW()
		WHERE post_id = $1
	`, postID); err != nil {
		return fmt.Errorf("soft delete post: %w", err)
	}
	if cascade {
		if _, err := tx.ExecContext(ctx, `
			UPDATE posts SET status = 'deleted', last_edited_at = NOW(), updated_at = NOW()
			WHERE parent_post_id = $1
		`, postID); err != nil {
			return fmt.Errorf("cascade delete replies: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListPosts(ctx context.Context, search string, limit, offset int) ([]Post, int, error) {
	where := `WHERE p.status = 'published'`
	var args []any
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND (p.topic ILIKE $%d OR p.content ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+postFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`,
		postColumns, postFrom, where, len(args)-1, len(args))
	return s.queryPosts(ctx, query, total, args...)
}

// ListChildPosts returns every direct child of a post ordered by creation
// time ascending. publishedOnly filters to status = published.
func (s *PostgresStore) ListChildPosts(ctx context.Context, parentID int64, publishedOnly bool) ([]Post, error) {
	where := `WHERE p.parent_post_id = $1`
	if publishedOnly {
		where += ` AND p.status = 'published'`
	}
	query := `SELECT ` + postColumns + postFrom + where + ` ORDER BY p.created_at ASC`
	posts, _, err := s.queryPosts(ctx, query, 0, parentID)
	return posts, err
}

func (s *PostgresStore) ListLinkedPosts(ctx context.Context, parentID int64, includeUnpublished bool, limit, offset int) ([]Post, int, error) {
	where := `WHERE p.parent_post_id = $1`
	if !includeUnpublished {
		where += ` AND p.status = 'published'`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+postFrom+where, parentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count linked posts: %w", err)
	}

	query := `SELECT ` + postColumns + postFrom + where + ` ORDER BY p.created_at ASC LIMIT $2 OFFSET $3`
	return s.queryPosts(ctx, query, total, parentID, limit, offset)
}

func (s *PostgresStore) ListPostsByTag(ctx context.Context, tag string, limit, offset int) ([]Post, int, error) {
	from := postFrom + `JOIN tag_is_used tu ON tu.post_id = p.post_id `
	where := `WHERE tu.tag_name = $1 AND p.status = 'published'`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from+where, tag).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts by tag: %w", err)
	}

	query := `SELECT ` + postColumns + ` ` + from + where + ` ORDER BY p.created_at DESC LIMIT $2 OFFSET $3`
	return s.queryPosts(ctx, query, total, tag, limit, offset)
}

func (s *PostgresStore) ListUserPosts(ctx context.Context, uid string, publishedOnly bool, limit, offset int) ([]Post, int, error) {
	where := `WHERE p.author = $1`
	if publishedOnly {
		where += ` AND p.status = 'published'`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+postFrom+where, uid).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user posts: %w", err)
	}

	query := `SELECT ` + postColumns + postFrom + where + ` ORDER BY p.created_at DESC LIMIT $2 OFFSET $3`
	return s.queryPosts(ctx, query, total, uid, limit, offset)
}

func (s *PostgresStore) ListAllPosts(ctx context.Context) ([]Post, error) {
	query := `SELECT ` + postColumns + postFrom + `ORDER BY p.created_at DESC`
	posts, _, err := s.queryPosts(ctx, query, 0)
	return posts, err
}

func (s *PostgresStore) queryPosts(ctx context.Context, query string, total int, args ...any) ([]Post, int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range posts {
		tags, err := s.ListPostTags(ctx, posts[i].PostID)
		if err != nil {
			return nil, 0, err
		}
		posts[i].Tags = tags
	}
	return posts, total, nil
}

// ---- tags ----

func (s *PostgresStore) ListTags(ctx context.Context, search string) ([]Tag, error) {
	query := `
		SELECT t.tag_name, t.description, t.created_at, t.updated_at, COUNT(tu.post_id)
		FROM tags t LEFT JOIN tag_is_used tu ON tu.tag_name = t.tag_name
	`
	var args []any
	if search != "" {
		args = append(args, "%"+search+"%")
		query += ` WHERE t.tag_name ILIKE $1 OR t.description ILIKE $1`
	}
	query += ` GROUP BY t.tag_name, t.description, t.created_at, t.updated_at ORDER BY t.tag_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.TagName, &tag.Description, &tag.CreatedAt, &tag.UpdatedAt, &tag.PostsCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) GetTag(ctx context.Context, name string) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT t.tag_name, t.description, t.created_at, t.updated_at, COUNT(tu.post_id)
		FROM tags t LEFT JOIN tag_is_used tu ON tu.tag_name = t.tag_name
		WHERE t.tag_name = $1
		GROUP BY t.tag_name, t.description, t.created_at, t.updated_at
	`, name).Scan(&tag.TagName, &tag.Description, &tag.CreatedAt, &tag.UpdatedAt, &tag.PostsCount)
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) TagExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tags WHERE tag_name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tag: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateTag(ctx context.Context, name, description string) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (tag_name, description) VALUES ($1, $2)
		RETURNING tag_name, description, created_at, updated_at
	`, name, description).Scan(&tag.TagName, &tag.Description, &tag.CreatedAt, &tag.UpdatedAt)
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

func (s *PostgresStore) UpdateTag(ctx context.Context, name, description string) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `
		UPDATE tags SET description = $1, updated_at = NOW() WHERE tag_name = $2
		RETURNING tag_name, description, created_at, updated_at
	`, description, name).Scan(&tag.TagName, &tag.Description, &tag.CreatedAt, &tag.UpdatedAt)
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE tag_name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tag rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) TagPostCount(ctx context.Context, name string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tag_is_used WHERE tag_name = $1`, name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tag usage: %w", err)
	}
	return count, nil
}

// ---- refresh sessions (Postgres fallback) and access-token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, uid string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_uid, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_uid=EXCLUDED.user_uid, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, uid, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+prefixedUserColumns("u")+`
		FROM refresh_sessions rs
		JOIN users u ON u.uid = rs.user_uid
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash)
	return scanUser(row)
}

func prefixedUserColumns(alias string) string {
	cols := strings.Split(userColumns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeUserSessions drops every live refresh session for a user. Used when
// an account is banned or deleted.
func (s *PostgresStore) RevokeUserSessions(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE user_uid=$1 AND revoked_at IS NULL`, uid)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
