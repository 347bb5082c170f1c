package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pomidornijfrukt/medium-project/internal/auth"
	"github.com/pomidornijfrukt/medium-project/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, fs *fakeStore) (*httptest.Server, *Service) {
	t.Helper()
	svc := newTestService(fs, newFakeSessions())
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc
}

func mintToken(t *testing.T, svc *Service, uid, username, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:  uid,
		Name: username,
		Role: role,
		JTI:  uuid.NewString(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp, env := doRequest(t, http.MethodGet, server.URL+"/api/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !env.Success {
		t.Error("expected success envelope")
	}
}

func TestUnknownRouteReturnsNotFoundEnvelope(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp, env := doRequest(t, http.MethodGet, server.URL+"/api/nope", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if env.Success || env.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND error envelope, got success=%v code=%s", env.Success, env.Code)
	}
}

func TestCreatePostRequiresAuth(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp, env := doRequest(t, http.MethodPost, server.URL+"/api/posts", "", `{"topic":"t","content":"c"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if env.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", env.Code)
	}
}

func TestThreadVisibilityOverHTTP(t *testing.T) {
	published := linkedPost(2, 1, "replier", "published")
	draft := linkedPost(3, 1, "replier", "draft")

	fs := &fakeStore{
		getUserByUIDFn: func(_ context.Context, uid string) (store.User, error) {
			role := "member"
			if uid == "root" {
				role = "admin"
			}
			return store.User{UID: uid, Username: uid, Role: role, Status: "active"}, nil
		},
		getPostFn: func(_ context.Context, id int64) (store.Post, error) {
			if id == 1 {
				return mainPost(1, "owner"), nil
			}
			return store.Post{}, sql.ErrNoRows
		},
		listChildPostsFn: func(_ context.Context, parent int64, publishedOnly bool) ([]store.Post, error) {
			if parent != 1 {
				return nil, nil
			}
			if publishedOnly {
				return []store.Post{published}, nil
			}
			return []store.Post{published, draft}, nil
		},
	}
	server, svc := newTestServer(t, fs)

	replyCount := func(env envelope) int {
		var payload struct {
			LinkedPosts []json.RawMessage `json:"linkedPosts"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("decode thread payload: %v", err)
		}
		return len(payload.LinkedPosts)
	}

	resp, env := doRequest(t, http.MethodGet, server.URL+"/api/posts/1", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous get: expected 200, got %d", resp.StatusCode)
	}
	if got := replyCount(env); got != 1 {
		t.Errorf("anonymous viewer: expected 1 reply, got %d", got)
	}

	strangerToken := mintToken(t, svc, "stranger", "stranger", "member")
	_, env = doRequest(t, http.MethodGet, server.URL+"/api/posts/1", strangerToken, "")
	if got := replyCount(env); got != 1 {
		t.Errorf("stranger: expected 1 reply, got %d", got)
	}

	ownerToken := mintToken(t, svc, "owner", "owner", "member")
	_, env = doRequest(t, http.MethodGet, server.URL+"/api/posts/1", ownerToken, "")
	if got := replyCount(env); got != 2 {
		t.Errorf("thread author: expected 2 replies, got %d", got)
	}

	adminToken := mintToken(t, svc, "root", "root", "admin")
	_, env = doRequest(t, http.MethodGet, server.URL+"/api/posts/1", adminToken, "")
	if got := replyCount(env); got != 2 {
		t.Errorf("admin: expected 2 replies, got %d", got)
	}
}

func TestTagManagementRBAC(t *testing.T) {
	fs := &fakeStore{
		getUserByUIDFn: func(_ context.Context, uid string) (store.User, error) {
			role := "member"
			if uid == "mod" {
				role = "moderator"
			}
			return store.User{UID: uid, Username: uid, Role: role, Status: "active"}, nil
		},
	}
	server, svc := newTestServer(t, fs)

	memberToken := mintToken(t, svc, "u1", "u1", "member")
	resp, env := doRequest(t, http.MethodPost, server.URL+"/api/tags", memberToken, `{"name":"golang"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member create tag: expected 403, got %d", resp.StatusCode)
	}
	if env.Code != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN, got %s", env.Code)
	}

	modToken := mintToken(t, svc, "mod", "mod", "moderator")
	resp, env = doRequest(t, http.MethodPost, server.URL+"/api/tags", modToken, `{"name":"golang"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("moderator create tag: expected 201, got %d", resp.StatusCode)
	}
	if !env.Success {
		t.Error("expected success envelope")
	}

	// Tag deletion is admin only
	resp, _ = doRequest(t, http.MethodDelete, server.URL+"/api/tags/golang", modToken, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("moderator delete tag: expected 403, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesGated(t *testing.T) {
	fs := &fakeStore{
		getUserByUIDFn: func(_ context.Context, uid string) (store.User, error) {
			role := "member"
			if uid == "root" {
				role = "admin"
			}
			return store.User{UID: uid, Username: uid, Role: role, Status: "active"}, nil
		},
	}
	server, svc := newTestServer(t, fs)

	memberToken := mintToken(t, svc, "u1", "u1", "member")
	resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/admin/users", memberToken, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member admin access: expected 403, got %d", resp.StatusCode)
	}

	adminToken := mintToken(t, svc, "root", "root", "admin")
	resp, env := doRequest(t, http.MethodGet, server.URL+"/api/admin/users", adminToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin users list: expected 200, got %d", resp.StatusCode)
	}
	if !env.Success {
		t.Error("expected success envelope")
	}
}

func TestBannedUserLockedOut(t *testing.T) {
	fs := &fakeStore{
		getUserByUIDFn: func(_ context.Context, uid string) (store.User, error) {
			return store.User{UID: uid, Username: uid, Role: "member", Status: "banned"}, nil
		},
		getPostFn: func(_ context.Context, id int64) (store.Post, error) {
			return mainPost(1, "owner"), nil
		},
	}
	server, svc := newTestServer(t, fs)

	token := mintToken(t, svc, "u1", "u1", "member")
	resp, env := doRequest(t, http.MethodPost, server.URL+"/api/posts", token, `{"topic":"t","content":"c"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("banned user: expected 401, got %d", resp.StatusCode)
	}
	if env.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", env.Code)
	}
}

func TestInvalidBodyRejected(t *testing.T) {
	fs := &fakeStore{}
	server, svc := newTestServer(t, fs)

	token := mintToken(t, svc, "u1", "u1", "member")
	resp, env := doRequest(t, http.MethodPost, server.URL+"/api/posts", token, `{"topic":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if env.Code != "INVALID_BODY" {
		t.Errorf("expected INVALID_BODY, got %s", env.Code)
	}
}
