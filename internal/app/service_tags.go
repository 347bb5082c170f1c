package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/pomidornijfrukt/medium-project/internal/rbac"
	"github.com/pomidornijfrukt/medium-project/internal/search"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

// ListTags returns every tag with its usage count, optionally filtered by
// a keyword over name and description.
func (s *Service) ListTags(ctx context.Context, keyword string) ([]map[string]any, error) {
	tags, err := s.store.ListTags(ctx, strings.TrimSpace(keyword))
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagPayload(tag))
	}
	return items, nil
}

// GetTag returns a tag and a page of the published posts carrying it.
func (s *Service) GetTag(ctx context.Context, name string, limit, offset int) (map[string]any, error) {
	tag, err := s.store.GetTag(ctx, name)
	if err != nil {
		return nil, err
	}

	limit, offset = clampPage(limit, offset)
	posts, total, err := s.store.ListPostsByTag(ctx, name, limit, offset)
	if err != nil {
		return nil, err
	}

	payload := tagPayload(tag)
	payload["posts"] = postPayloads(posts)
	payload["total"] = total
	payload["limit"] = limit
	payload["offset"] = offset
	return payload, nil
}

// CreateTag creates a tag explicitly. Moderators and admins only; the
// description falls back to the tag name when omitted.
func (s *Service) CreateTag(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionManageTags) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag name is required", nil)
	}
	if len(name) > 50 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag name must be at most 50 characters", nil)
	}

	exists, err := s.store.TagExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Tag already exists", nil)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		description = name
	}

	tag, err := s.store.CreateTag(ctx, name, description)
	if err != nil {
		return nil, err
	}

	s.search.IndexTag(search.TagRecord{ID: tag.TagName, Name: tag.TagName, Description: tag.Description})
	return tagPayload(tag), nil
}

// UpdateTag changes a tag's description. Moderators and admins only.
func (s *Service) UpdateTag(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionManageTags) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		description = name
	}

	tag, err := s.store.UpdateTag(ctx, name, description)
	if err != nil {
		return nil, err
	}

	s.search.IndexTag(search.TagRecord{ID: tag.TagName, Name: tag.TagName, Description: tag.Description})
	return tagPayload(tag), nil
}

// DeleteTag hard-deletes a tag. Admin only, and only when no post still
// carries it.
func (s *Service) DeleteTag(ctx context.Context, session Session, name string) error {
	if !s.Can(session.Role, rbac.ActionDeleteTags) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	count, err := s.store.TagPostCount(ctx, name)
	if err != nil {
		return err
	}
	if count > 0 {
		return domainError(http.StatusConflict, "CONFLICT", "Tag is still in use", map[string]any{"posts": count})
	}

	if err := s.store.DeleteTag(ctx, name); err != nil {
		return err
	}

	s.search.DeleteTag(name)
	return nil
}

func tagPayload(tag store.Tag) map[string]any {
	return map[string]any{
		"name":        tag.TagName,
		"description": tag.Description,
		"postsCount":  tag.PostsCount,
		"createdAt":   tag.CreatedAt,
		"updatedAt":   tag.UpdatedAt,
	}
}
