package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pomidornijfrukt/medium-project/internal/auth"
	"github.com/pomidornijfrukt/medium-project/internal/search"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeSuccess(w, http.StatusOK, "", map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	// Auth routes, no session required
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/register":
		s.handleRegister(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/login":
		s.handleLogin(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/refresh":
		s.handleRefresh(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/logout":
		s.handleLogout(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	parts = parts[1:]

	// Public reads carry an optional bearer token; the viewer identity
	// changes which replies are visible.
	if len(parts) > 0 {
		switch parts[0] {
		case "posts":
			if s.handlePublicPosts(w, r, parts[1:]) {
				return
			}
		case "tags":
			if r.Method == http.MethodGet {
				s.handlePublicTags(w, r, parts[1:])
				return
			}
		case "users":
			if r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "profile" {
				s.handlePublicProfile(w, r, parts[1])
				return
			}
		case "search":
			if r.Method == http.MethodGet && len(parts) == 1 {
				s.handleSearch(w, r)
				return
			}
		}
	}

	// Unknown paths stay 404 for anonymous callers too.
	if len(parts) == 0 || !authenticatedPrefixes[parts[0]] {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) > 0 && parts[0] == "user":
		s.handleUser(w, r, session, parts[1:])
	case len(parts) > 0 && parts[0] == "posts":
		s.handlePosts(w, r, session, parts[1:])
	case len(parts) > 0 && parts[0] == "tags":
		s.handleTags(w, r, session, parts[1:])
	case len(parts) == 2 && parts[0] == "recommendations":
		s.handleRecommendations(w, r, session, parts[1])
	case len(parts) > 1 && parts[0] == "admin":
		s.handleAdmin(w, r, session, parts[1:])
	case len(parts) == 2 && parts[0] == "analytics":
		s.handleAnalytics(w, r, session, parts[1])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

var authenticatedPrefixes = map[string]bool{
	"user":            true,
	"posts":           true,
	"tags":            true,
	"recommendations": true,
	"admin":           true,
	"analytics":       true,
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"sessions": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.SessionsPing(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"success": status == "ready",
		"data":    map[string]any{"status": status, "checks": checks},
	})
}

// ---- auth ----

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Registration successful", sessionPayload(session))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), body.Login, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeSuccess(w, http.StatusOK, "", sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeSuccess(w, http.StatusOK, "Logged out", nil)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"user": map[string]any{
			"uid":      session.UserID,
			"username": session.Username,
			"role":     session.Role,
		},
		"expiresAt": session.ExpiresAt,
	}
}

// ---- public post reads ----

// handlePublicPosts serves the unauthenticated post surface. Returns false
// when the route belongs to the authenticated dispatch below.
func (s *HTTPServer) handlePublicPosts(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if r.Method != http.MethodGet {
		return false
	}
	viewer := s.optionalSession(r)
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return true
	}

	switch {
	case len(parts) == 0:
		payload, err := s.service.ListPosts(r.Context(), r.URL.Query().Get("search"), limit, offset)
		respond(w, payload, err)
	case len(parts) == 1 && parts[0] == "advanced-search":
		s.handleAdvancedSearch(w, r, limit, offset)
	case len(parts) == 1 && parts[0] == "trending":
		days, _ := strconv.Atoi(r.URL.Query().Get("days"))
		payload, err := s.service.TrendingPosts(r.Context(), days, limit)
		respond(w, map[string]any{"posts": payload}, err)
	case len(parts) == 2 && parts[0] == "tag":
		payload, err := s.service.ListPostsByTag(r.Context(), parts[1], limit, offset)
		respond(w, payload, err)
	case len(parts) == 2 && parts[0] == "user":
		payload, err := s.service.ListUserPosts(r.Context(), parts[1], limit, offset)
		respond(w, payload, err)
	case len(parts) == 1:
		postID, ok := parsePostID(w, parts[0])
		if !ok {
			return true
		}
		payload, err := s.service.GetPost(r.Context(), viewer, postID)
		respond(w, payload, err)
	case len(parts) == 2 && parts[1] == "linked":
		postID, ok := parsePostID(w, parts[0])
		if !ok {
			return true
		}
		payload, err := s.service.GetLinkedPosts(r.Context(), viewer, postID, limit, offset)
		respond(w, payload, err)
	default:
		return false
	}
	return true
}

func (s *HTTPServer) handleAdvancedSearch(w http.ResponseWriter, r *http.Request, limit, offset int) {
	query := r.URL.Query()
	opts := store.AdvancedSearchOptions{
		Search:     strings.TrimSpace(query.Get("search")),
		AuthorRole: strings.TrimSpace(query.Get("authorRole")),
		SortBy:     strings.TrimSpace(query.Get("sortBy")),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := strings.TrimSpace(query.Get("tags")); raw != "" {
		opts.Tags = strings.Split(raw, ",")
	}
	if raw := strings.TrimSpace(query.Get("excludeTags")); raw != "" {
		opts.ExcludeTags = strings.Split(raw, ",")
	}

	payload, err := s.service.AdvancedSearch(r.Context(), opts)
	respond(w, payload, err)
}

func (s *HTTPServer) handlePublicTags(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0:
		tags, err := s.service.ListTags(r.Context(), r.URL.Query().Get("search"))
		respond(w, map[string]any{"tags": tags}, err)
	case len(parts) == 1:
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}
		payload, err := s.service.GetTag(r.Context(), parts[0], limit, offset)
		respond(w, payload, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePublicProfile(w http.ResponseWriter, r *http.Request, uid string) {
	payload, err := s.service.GetPublicProfile(r.Context(), uid)
	respond(w, payload, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	response := s.service.Search(search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		FilterType: search.ResultType(strings.TrimSpace(query.Get("type"))),
		FilterTag:  strings.TrimSpace(query.Get("tag")),
		Limit:      limit,
		Offset:     offset,
	})
	writeSuccess(w, http.StatusOK, "", response)
}

// ---- authenticated routes ----

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		payload, err := s.service.GetProfile(r.Context(), session)
		respond(w, payload, err)
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "profile":
		payload, err := s.service.GetProfile(r.Context(), session)
		respond(w, payload, err)
	case r.Method == http.MethodPut && len(parts) == 1 && parts[0] == "profile":
		var body UpdateProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateProfile(r.Context(), session, body)
		respondWithMessage(w, "Profile updated", payload, err)
	case r.Method == http.MethodPut && len(parts) == 1 && parts[0] == "password":
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdatePassword(r.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Password updated", nil)
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "posts":
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}
		payload, err := s.service.ListMyPosts(r.Context(), session, limit, offset)
		respond(w, payload, err)
	case r.Method == http.MethodDelete && len(parts) == 1 && parts[0] == "account":
		if err := s.service.DeleteAccount(r.Context(), session); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Account deleted", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePosts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body CreatePostInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreatePost(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "Post created", payload)
	case r.Method == http.MethodPut && len(parts) == 1:
		postID, ok := parsePostID(w, parts[0])
		if !ok {
			return
		}
		var body UpdatePostInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdatePost(r.Context(), session, postID, body)
		respondWithMessage(w, "Post updated", payload, err)
	case r.Method == http.MethodDelete && len(parts) == 1:
		postID, ok := parsePostID(w, parts[0])
		if !ok {
			return
		}
		if err := s.service.DeletePost(r.Context(), session, postID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Post deleted", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateTag(r.Context(), session, body.Name, body.Description)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "Tag created", payload)
	case r.Method == http.MethodPut && len(parts) == 1:
		var body struct {
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateTag(r.Context(), session, parts[0], body.Description)
		respondWithMessage(w, "Tag updated", payload, err)
	case r.Method == http.MethodDelete && len(parts) == 1:
		if err := s.service.DeleteTag(r.Context(), session, parts[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Tag deleted", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRecommendations(w http.ResponseWriter, r *http.Request, session Session, uid string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if uid != session.UserID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}
	limit, _, ok := pageParams(w, r)
	if !ok {
		return
	}
	payload, err := s.service.RecommendedPosts(r.Context(), session, limit)
	respond(w, map[string]any{"posts": payload}, err)
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "users":
		query := r.URL.Query()
		users, err := s.service.ListAllUsers(r.Context(), session, query.Get("search"), query.Get("role"), query.Get("status"))
		respond(w, map[string]any{"users": users}, err)
	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "users":
		payload, err := s.service.GetUser(r.Context(), session, parts[1])
		respond(w, payload, err)
	case r.Method == http.MethodPut && len(parts) == 3 && parts[0] == "users" && parts[2] == "role":
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ChangeUserRole(r.Context(), session, parts[1], body.Role)
		respondWithMessage(w, "Role updated", payload, err)
	case r.Method == http.MethodPut && len(parts) == 3 && parts[0] == "users" && parts[2] == "status":
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var payload map[string]any
		var err error
		switch body.Status {
		case "banned":
			payload, err = s.service.BanUser(r.Context(), session, parts[1])
		case "active":
			payload, err = s.service.UnbanUser(r.Context(), session, parts[1])
		default:
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be banned or active", nil)
			return
		}
		respondWithMessage(w, "Status updated", payload, err)
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "posts":
		posts, err := s.service.ListAllPostsAdmin(r.Context(), session)
		respond(w, map[string]any{"posts": posts}, err)
	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "posts":
		postID, ok := parsePostID(w, parts[1])
		if !ok {
			return
		}
		if err := s.service.DeletePost(r.Context(), session, postID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Post deleted", nil)
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "stats":
		stats, err := s.service.Dashboard(r.Context(), session)
		respond(w, map[string]any{"stats": stats}, err)
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "roles":
		roles, err := s.service.ListRoles(r.Context(), session)
		respond(w, map[string]any{"roles": roles}, err)
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "actions":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		actions, err := s.service.AuditTrail(r.Context(), session, limit)
		respond(w, map[string]any{"actions": actions}, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request, session Session, report string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	query := r.URL.Query()
	days, _ := strconv.Atoi(query.Get("days"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	var payload []map[string]any
	var err error
	switch report {
	case "user-activity":
		payload, err = s.service.UserActivityReport(r.Context(), session, days, limit)
	case "content-insights":
		payload, err = s.service.ContentInsightsReport(r.Context(), session, limit)
	case "user-behavior":
		payload, err = s.service.UserBehaviorReport(r.Context(), session, days)
	case "post-relationships":
		payload, err = s.service.PostRelationshipsReport(r.Context(), session, limit)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	respond(w, map[string]any{"report": report, "rows": payload}, err)
}

// ---- session helpers ----

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// optionalSession resolves the bearer token if present. Anonymous readers
// get a nil viewer.
func (s *HTTPServer) optionalSession(r *http.Request) *Session {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return nil
	}
	return &session
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	response := map[string]any{"success": true}
	if message != "" {
		response["message"] = message
	}
	if data != nil {
		response["data"] = data
	}
	writeJSON(w, status, response)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["errors"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", payload)
}

func respondWithMessage(w http.ResponseWriter, message string, payload any, err error) {
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, message, payload)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parsePostID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "post id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return 0, 0, false
		}
		limit = parsed
	}
	offset = 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
