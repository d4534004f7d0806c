package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/models"
	"heartline/internal/service"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testEnv struct {
	app    *fiber.App
	server *Server
	db     *gorm.DB
	mr     *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		Port:             "0",
		JWTSecret:        testSecret,
		JWTTTLHours:      1,
		AllowedOrigins:   "http://localhost:5173",
		FeatureFlags:     "like_rate_limit=on",
		LikeRateLimit:    3,
		FeedCacheTTLSecs: 30,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	return &testEnv{app: s.App(), server: s, db: db, mr: mr}
}

func (e *testEnv) seedUser(t *testing.T, username, password string) (*models.User, string) {
	t.Helper()
	user, err := e.server.authService.Register(t.Context(), service.RegisterInput{Username: username, Password: password})
	require.NoError(t, err)
	token, err := e.server.authService.IssueToken(user)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) seedPost(t *testing.T, author *models.User, content string) *models.Post {
	t.Helper()
	p := &models.Post{UserID: author.ID, Content: content}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestHealthChecks(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"redis":"healthy"`)

	env.mr.Close()
	resp, _ = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestToggleLike_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	author, _ := env.seedUser(t, "author", "password123")
	viewer, token := env.seedUser(t, "viewer", "password123")
	post := env.seedPost(t, author, "hello")
	path := "/api/posts/" + itoa(post.ID) + "/like"

	resp, raw := env.do(t, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var result models.LikeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.Liked)
	assert.Equal(t, 1, result.Post.LikesCount)
	assert.Equal(t, []uint{viewer.ID}, result.Post.LikerIDs)
	assert.True(t, result.Post.Liked)

	resp, raw = env.do(t, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.Liked)
	assert.Equal(t, 0, result.Post.LikesCount)
	assert.Empty(t, result.Post.LikerIDs)
}

func TestFeed_ReflectsLikesAndViewer(t *testing.T) {
	env := newTestEnv(t)
	author, _ := env.seedUser(t, "author", "password123")
	_, token := env.seedUser(t, "viewer", "password123")
	older := env.seedPost(t, author, "first")
	newer := env.seedPost(t, author, "second")

	resp, raw := env.do(t, http.MethodGet, "/api/feed", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed []models.Post
	require.NoError(t, json.Unmarshal(raw, &feed))
	require.Len(t, feed, 2)
	assert.Equal(t, newer.ID, feed[0].ID)
	assert.Equal(t, older.ID, feed[1].ID)

	resp, _ = env.do(t, http.MethodPost, "/api/posts/"+itoa(older.ID)+"/like", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, raw = env.do(t, http.MethodGet, "/api/feed", token, nil)
	require.NoError(t, json.Unmarshal(raw, &feed))
	assert.True(t, feed[1].Liked, "liked is relative to the caller")
	assert.Equal(t, 1, feed[1].LikesCount, "cached page must be invalidated by the toggle")

	_, raw = env.do(t, http.MethodGet, "/api/feed", "", nil)
	require.NoError(t, json.Unmarshal(raw, &feed))
	assert.False(t, feed[1].Liked)
	assert.Equal(t, 1, feed[1].LikesCount)
}

func TestToggleLike_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "viewer", "password123")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"unauthenticated", "/api/posts/1/like", "", http.StatusUnauthorized, models.CodeUnauthorized},
		{"missing post", "/api/posts/999/like", token, http.StatusNotFound, models.CodeNotFound},
		{"bad id", "/api/posts/abc/like", token, http.StatusBadRequest, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := env.do(t, http.MethodPost, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestUnlike_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	author, token := env.seedUser(t, "author", "password123")
	post := env.seedPost(t, author, "hello")
	path := "/api/posts/" + itoa(post.ID) + "/like"

	for range 2 {
		resp, raw := env.do(t, http.MethodDelete, path, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result models.LikeResult
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.False(t, result.Liked)
		assert.Equal(t, 0, result.Post.LikesCount)
	}
}

func TestToggleLike_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.LikeRateLimit = 2 })
	author, token := env.seedUser(t, "author", "password123")
	post := env.seedPost(t, author, "hello")
	path := "/api/posts/" + itoa(post.ID) + "/like"

	var last int
	for range 3 {
		resp, _ := env.do(t, http.MethodPost, path, token, nil)
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "password123")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"username":"Alice","password":"password123"}`, http.StatusOK},
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"bob","password":"password123"}`, http.StatusUnauthorized},
		{"missing fields", `{"username":"alice"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := env.do(t, http.MethodPost, "/api/auth/login", "", strings.NewReader(tt.body))
			assert.Equal(t, tt.status, resp.StatusCode, string(raw))
			if tt.status == http.StatusOK {
				var out AuthResponse
				require.NoError(t, json.Unmarshal(raw, &out))
				assert.NotEmpty(t, out.Token)
				assert.Equal(t, "alice", out.User.Username)
			}
		})
	}
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodPost, "/api/auth/signup", "",
		strings.NewReader(`{"username":"carol","password":"password123","name":"Carol"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, _ = env.do(t, http.MethodPost, "/api/auth/signup", "",
		strings.NewReader(`{"username":"carol","password":"password123"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/signup", "",
		strings.NewReader(`{"username":"dave","password":"short"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/signup", "",
		strings.NewReader(`{"username":"admin","password":"password123"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetFeatureFlags(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodGet, "/api/feature-flags", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"raw":{"like_rate_limit":"on"},"evaluated":{"like_rate_limit":true}}`, string(raw))
}
