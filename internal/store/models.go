package store

import "time"

type User struct {
	UID          string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Status       string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Post struct {
	PostID       int64
	Author       string
	Topic        string
	Content      string
	Status       string
	PostType     string
	ParentPostID *int64
	LastEditedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Populated on demand, not by every query.
	AuthorUsername string
	Tags           []Tag
}

type Tag struct {
	TagName     string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PostsCount  int
}

// ChangeKind identifies which audit table a change row was written to.
type ChangeKind string

const (
	ChangeUsername ChangeKind = "username"
	ChangeEmail    ChangeKind = "email"
	ChangePassword ChangeKind = "password"
	ChangeRole     ChangeKind = "role"
)

// Change is an append-only before/after record tied to an Action.
type Change struct {
	Kind     ChangeKind
	OldValue string
	NewValue string
}

// Action records who performed a change and whom it affected.
type Action struct {
	ActionID int64
	Author   string
	Victim   string
	ActionAt time.Time
	Change   Change
}

type DashboardStats struct {
	TotalUsers     int
	ActiveUsers    int
	BannedUsers    int
	TotalPosts     int
	PublishedPosts int
	DraftPosts     int
	DeletedPosts   int
	MainPosts      int
	LinkedPosts    int
	TotalTags      int
	TotalActions   int
}

type Role struct {
	Name        string
	Description string
}
