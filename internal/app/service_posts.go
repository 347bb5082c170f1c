package app

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/pomidornijfrukt/medium-project/internal/rbac"
	"github.com/pomidornijfrukt/medium-project/internal/search"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// maxThreadDepth caps reply-tree reconstruction. Storage only ever links
// one level deep, so the display tree is rebuilt by walking children and
// this bound keeps a cyclic parent chain from hanging the walk.
const maxThreadDepth = 10

// CreatePost validates and stores a post. A post with a parent becomes a
// linked post; the parent must be a main post that still exists and is not
// deleted, otherwise the thread link is rejected.
func (s *Service) CreatePost(ctx context.Context, session Session, input CreatePostInput) (map[string]any, error) {
	topic := strings.TrimSpace(input.Topic)
	content := strings.TrimSpace(input.Content)
	if topic == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "topic is required", nil)
	}
	if len(topic) > 255 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "topic must be at most 255 characters", nil)
	}
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = "published"
	}
	if _, ok := allowedPostStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be draft or published", nil)
	}

	tags, err := normalizeTags(input.Tags)
	if err != nil {
		return nil, err
	}

	postType := "main"
	if input.ParentPostID != nil {
		if err := s.validateThreadLink(ctx, *input.ParentPostID, 0); err != nil {
			return nil, err
		}
		postType = "linked"
	}

	post, err := s.store.CreatePost(ctx, store.Post{
		Author:       session.UserID,
		Topic:        topic,
		Content:      content,
		Status:       status,
		PostType:     postType,
		ParentPostID: input.ParentPostID,
	}, tags)
	if err != nil {
		return nil, err
	}

	s.indexPost(post)
	return postPayload(post), nil
}

// validateThreadLink checks that parentID can take a reply from selfID
// (selfID 0 on create). Replies attach to main posts only, which is what
// keeps stored linkage one level deep.
func (s *Service) validateThreadLink(ctx context.Context, parentID, selfID int64) error {
	if selfID != 0 && parentID == selfID {
		return domainError(http.StatusUnprocessableEntity, "INVALID_THREAD_LINK", "a post cannot reply to itself", nil)
	}
	// An absent parent is a plain 404, not a link violation.
	parent, err := s.store.GetPost(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.PostType != "main" || parent.ParentPostID != nil {
		return domainError(http.StatusUnprocessableEntity, "INVALID_THREAD_LINK", "replies can only attach to a main post", nil)
	}
	if parent.Status == "deleted" {
		return domainError(http.StatusUnprocessableEntity, "INVALID_THREAD_LINK", "cannot reply to a deleted post", nil)
	}
	return nil
}

// GetPost returns a post together with its reply tree. Visibility of
// replies depends on the viewer: the thread author and admins see every
// reply, everyone else sees only published ones.
func (s *Service) GetPost(ctx context.Context, viewer *Session, postID int64) (map[string]any, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	seeAll := viewer != nil && (viewer.UserID == post.Author || s.Can(viewer.Role, rbac.ActionAdmin))
	return s.buildThread(ctx, post, seeAll)
}

// buildThread reconstructs the display tree iteratively. Children are
// fetched per node in creation order; depth is bounded by maxThreadDepth.
func (s *Service) buildThread(ctx context.Context, root store.Post, seeAll bool) (map[string]any, error) {
	rootPayload := postPayload(root)

	type frame struct {
		id      int64
		depth   int
		payload map[string]any
	}

	work := []frame{{id: root.PostID, depth: 0, payload: rootPayload}}
	for len(work) > 0 {
		current := work[0]
		work = work[1:]

		if current.depth >= maxThreadDepth {
			current.payload["linkedPosts"] = []map[string]any{}
			continue
		}

		children, err := s.store.ListChildPosts(ctx, current.id, !seeAll)
		if err != nil {
			return nil, err
		}

		childPayloads := make([]map[string]any, 0, len(children))
		for _, child := range children {
			payload := postPayload(child)
			childPayloads = append(childPayloads, payload)
			work = append(work, frame{id: child.PostID, depth: current.depth + 1, payload: payload})
		}
		current.payload["linkedPosts"] = childPayloads
	}

	return rootPayload, nil
}

// UpdatePost applies a partial update. Only the author or an admin may
// edit; a non-nil Tags replaces the whole tag set.
func (s *Service) UpdatePost(ctx context.Context, session Session, postID int64, input UpdatePostInput) (map[string]any, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Author != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the author can edit this post", nil)
	}
	// Deletion is terminal, a deleted post cannot be edited back to life.
	if post.Status == "deleted" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a deleted post cannot be edited", nil)
	}

	update := store.PostUpdate{}

	if input.Topic != nil {
		topic := strings.TrimSpace(*input.Topic)
		if topic == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "topic cannot be empty", nil)
		}
		if len(topic) > 255 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "topic must be at most 255 characters", nil)
		}
		update.Topic = &topic
	}
	if input.Content != nil {
		content := strings.TrimSpace(*input.Content)
		if content == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content cannot be empty", nil)
		}
		update.Content = &content
	}
	if input.Status != nil {
		status := strings.TrimSpace(*input.Status)
		if _, ok := allowedPostStatuses[status]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be draft or published", nil)
		}
		update.Status = &status
	}
	if input.ParentPostID != nil {
		if err := s.validateThreadLink(ctx, *input.ParentPostID, postID); err != nil {
			return nil, err
		}
		// A post with replies of its own cannot become a reply, that
		// would bury its children two levels deep.
		children, err := s.store.ListChildPosts(ctx, postID, false)
		if err != nil {
			return nil, err
		}
		if len(children) > 0 {
			return nil, domainError(http.StatusUnprocessableEntity, "INVALID_THREAD_LINK", "a post with replies cannot become a reply", nil)
		}
		update.ParentPostID = input.ParentPostID
	}
	if input.Tags != nil {
		tags, err := normalizeTags(input.Tags)
		if err != nil {
			return nil, err
		}
		update.Tags = tags
		update.ReplaceTags = true
	}

	updated, err := s.store.UpdatePost(ctx, postID, update)
	if err != nil {
		return nil, err
	}

	s.indexPost(updated)
	return postPayload(updated), nil
}

// DeletePost soft-deletes a post and, in the same transaction, every
// direct reply. Deleting an already-deleted post succeeds and cascades
// again, which keeps the operation idempotent for the caller.
func (s *Service) DeletePost(ctx context.Context, session Session, postID int64) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Author != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the author can delete this post", nil)
	}

	children, err := s.store.ListChildPosts(ctx, postID, false)
	if err != nil {
		return err
	}

	if err := s.store.SoftDeletePost(ctx, postID, true); err != nil {
		return err
	}

	s.search.DeletePost(strconv.FormatInt(postID, 10))
	for _, child := range children {
		s.search.DeletePost(strconv.FormatInt(child.PostID, 10))
	}
	return nil
}

// GetLinkedPosts lists a post's direct replies, paginated. The thread
// author and admins also see unpublished replies.
func (s *Service) GetLinkedPosts(ctx context.Context, viewer *Session, postID int64, limit, offset int) (map[string]any, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.PostType != "main" {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_THREAD_LINK", "linked posts can only be retrieved for a main post", nil)
	}

	seeAll := viewer != nil && (viewer.UserID == post.Author || s.Can(viewer.Role, rbac.ActionAdmin))
	limit, offset = clampPage(limit, offset)

	replies, total, err := s.store.ListLinkedPosts(ctx, postID, seeAll, limit, offset)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"parentPostId": postID,
		"linkedPosts":  postPayloads(replies),
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	}, nil
}

// ListPosts returns published posts, newest first, with optional keyword
// filtering.
func (s *Service) ListPosts(ctx context.Context, keyword string, limit, offset int) (map[string]any, error) {
	limit, offset = clampPage(limit, offset)
	posts, total, err := s.store.ListPosts(ctx, strings.TrimSpace(keyword), limit, offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"posts":  postPayloads(posts),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, nil
}

// ListPostsByTag returns published posts carrying a tag.
func (s *Service) ListPostsByTag(ctx context.Context, tag string, limit, offset int) (map[string]any, error) {
	exists, err := s.store.TagExists(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	limit, offset = clampPage(limit, offset)
	posts, total, err := s.store.ListPostsByTag(ctx, tag, limit, offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tag":    tag,
		"posts":  postPayloads(posts),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, nil
}

// ListUserPosts returns another user's published posts.
func (s *Service) ListUserPosts(ctx context.Context, uid string, limit, offset int) (map[string]any, error) {
	user, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if user.Status == "deleted" {
		return nil, sql.ErrNoRows
	}

	limit, offset = clampPage(limit, offset)
	posts, total, err := s.store.ListUserPosts(ctx, user.UID, true, limit, offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username": user.Username,
		"posts":    postPayloads(posts),
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	}, nil
}

// ListMyPosts returns the caller's posts in every status, drafts and
// deleted included.
func (s *Service) ListMyPosts(ctx context.Context, session Session, limit, offset int) (map[string]any, error) {
	limit, offset = clampPage(limit, offset)
	posts, total, err := s.store.ListUserPosts(ctx, session.UserID, false, limit, offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"posts":  postPayloads(posts),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, nil
}

func (s *Service) indexPost(post store.Post) {
	tags := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tags = append(tags, tag.TagName)
	}
	s.search.IndexPost(search.PostRecord{
		ID:       strconv.FormatInt(post.PostID, 10),
		Topic:    post.Topic,
		Content:  post.Content,
		Author:   post.AuthorUsername,
		PostType: post.PostType,
		Status:   post.Status,
		Tags:     tags,
	})
}

func normalizeTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tag := range raw {
		name := strings.TrimSpace(tag)
		if name == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag names cannot be empty", nil)
		}
		if len(name) > 50 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag names must be at most 50 characters", nil)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, name)
	}
	return tags, nil
}

func postPayload(post store.Post) map[string]any {
	tags := make([]map[string]any, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tags = append(tags, map[string]any{
			"name":        tag.TagName,
			"description": tag.Description,
		})
	}

	payload := map[string]any{
		"postId":       post.PostID,
		"topic":        post.Topic,
		"content":      post.Content,
		"status":       post.Status,
		"postType":     post.PostType,
		"author":       post.AuthorUsername,
		"authorUid":    post.Author,
		"tags":         tags,
		"createdAt":    post.CreatedAt,
		"updatedAt":    post.UpdatedAt,
		"parentPostId": nil,
		"lastEditedAt": nil,
	}
	if post.ParentPostID != nil {
		payload["parentPostId"] = *post.ParentPostID
	}
	if post.LastEditedAt != nil {
		payload["lastEditedAt"] = *post.LastEditedAt
	}
	return payload
}

func postPayloads(posts []store.Post) []map[string]any {
	items := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		items = append(items, postPayload(post))
	}
	return items
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
