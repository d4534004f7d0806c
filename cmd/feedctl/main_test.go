package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/likes"
	"heartline/internal/models"
	"heartline/internal/notifications"
	"heartline/internal/repository"
	"heartline/internal/server"
	"heartline/internal/service"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type fixture struct {
	baseURL string
	postIDs []string
}

// startAPI serves a real API backed by in-memory SQLite with one user "ana"
// (password123) and two posts.
func startAPI(t *testing.T) fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	hash, err := service.HashPassword("password123")
	require.NoError(t, err)
	ana := &models.User{Username: "ana", DisplayName: "Ana", Password: hash}
	require.NoError(t, repository.NewUserRepository(db).Create(context.Background(), ana))

	var ids []string
	for _, content := range []string{"first post", "second post"} {
		p := &models.Post{UserID: ana.ID, Content: content}
		require.NoError(t, db.Create(p).Error)
		ids = append(ids, strconv.FormatUint(uint64(p.ID), 10))
	}

	srv, err := server.NewServerWithDeps(&config.Config{
		Env:            "test",
		JWTSecret:      testSecret,
		JWTTTLHours:    1,
		AllowedOrigins: "*",
		LikeRateLimit:  100,
	}, db, nil)
	require.NoError(t, err)

	app := srv.App()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() {
		_ = app.Shutdown()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return fixture{baseURL: "http://" + ln.Addr().String(), postIDs: ids}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCLI(baseURL, token string, out *syncBuffer) *cli {
	c := newCLI(&config.Config{APIBaseURL: baseURL, APIToken: token, LikeTimeoutMS: 2000}, out)
	c.redis = func(context.Context) *redis.Client { return nil }
	return c
}

func login(t *testing.T, fx fixture) string {
	t.Helper()
	var out syncBuffer
	require.NoError(t, newTestCLI(fx.baseURL, "", &out).run(context.Background(), []string{"login", "ana", "password123"}))
	token, ok := strings.CutPrefix(strings.TrimSpace(out.String()), "export API_TOKEN=")
	require.True(t, ok, out.String())
	return token
}

func TestRun_Usage(t *testing.T) {
	c := newTestCLI("http://127.0.0.1:1", "", &syncBuffer{})

	assert.ErrorIs(t, c.run(context.Background(), nil), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"dance"}), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"like"}), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"login", "only-user"}), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"feed", "-o"}), errUsage)
}

func TestLogin_WrongPassword(t *testing.T) {
	fx := startAPI(t)
	err := newTestCLI(fx.baseURL, "", &syncBuffer{}).run(context.Background(), []string{"login", "ana", "nope"})
	assert.Equal(t, likes.KindUnauthenticated, likes.KindOf(err))
}

func TestFeed_JSON(t *testing.T) {
	fx := startAPI(t)
	var out syncBuffer

	require.NoError(t, newTestCLI(fx.baseURL, "", &out).run(context.Background(), []string{"feed", "-o", "json"}))

	var views []postView
	require.NoError(t, json.Unmarshal([]byte(out.String()), &views))
	require.Len(t, views, 2)
	assert.Equal(t, fx.postIDs[1], views[0].ID, "newest first")
	assert.Equal(t, "ana", views[0].Author)
	assert.False(t, views[0].Liked)
}

func TestLike_RoundTrip(t *testing.T) {
	fx := startAPI(t)
	token := login(t, fx)

	var out syncBuffer
	require.NoError(t, newTestCLI(fx.baseURL, token, &out).run(context.Background(), []string{"like", "-o", "yaml", fx.postIDs[0]}))

	var views []postView
	require.NoError(t, yaml.Unmarshal([]byte(out.String()), &views))
	require.Len(t, views, 1)
	assert.Equal(t, postView{ID: fx.postIDs[0], Author: "ana", Content: "first post", Liked: true, Likes: 1, Outcome: "success"}, views[0])

	var again syncBuffer
	require.NoError(t, newTestCLI(fx.baseURL, token, &again).run(context.Background(), []string{"like", "-o", "json", fx.postIDs[0]}))
	require.NoError(t, json.Unmarshal([]byte(again.String()), &views))
	assert.False(t, views[0].Liked)
	assert.Equal(t, 0, views[0].Likes)
}

func TestLike_Failures(t *testing.T) {
	fx := startAPI(t)
	token := login(t, fx)

	tests := []struct {
		name    string
		token   string
		args    []string
		outcome string
		message string
	}{
		{"signed out", "", []string{fx.postIDs[0]}, "failure", "Sign in to like posts."},
		{"missing post", token, []string{"999"}, "refused", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out syncBuffer
			args := append([]string{"like", "-o", "json"}, tt.args...)
			err := newTestCLI(fx.baseURL, tt.token, &out).run(context.Background(), args)
			assert.ErrorIs(t, err, errToggleFailed)

			var views []postView
			require.NoError(t, json.Unmarshal([]byte(out.String()), &views))
			last := views[len(views)-1]
			assert.Equal(t, tt.outcome, last.Outcome)
			assert.Contains(t, last.Message, tt.message)
		})
	}
}

func TestWatch_PrintsOutcomes(t *testing.T) {
	fx := startAPI(t)
	token := login(t, fx)
	mr := miniredis.RunT(t)

	var out syncBuffer
	c := newTestCLI(fx.baseURL, token, &out)
	c.redis = func(context.Context) *redis.Client {
		return redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	userID, ok := c.session.ID()
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.run(ctx, []string{"watch"}) }()

	publisher := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = publisher.Close() }()
	obs := notifications.NewOutcomeNotifier(notifications.NewNotifier(publisher))

	require.Eventually(t, func() bool {
		obs.OnOutcome(context.Background(), likes.Outcome{
			Kind:    likes.OutcomeFailure,
			Reason:  likes.KindNetwork,
			Message: likes.FailureMessage(likes.KindNetwork, true),
			PostID:  fx.postIDs[0],
			UserID:  userID,
		})
		return strings.Contains(out.String(), "Check your connection")
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestDescribeEvent(t *testing.T) {
	payload, err := json.Marshal(notifications.NewOutcomeEvent(likes.Outcome{
		Kind:    likes.OutcomeSuccess,
		PostID:  "4",
		Display: likes.DisplayState{Liked: true, Count: 11},
	}))
	require.NoError(t, err)

	assert.Equal(t, "post 4 liked (11 likes)", describeEvent(string(payload)))
	assert.Equal(t, "raw text", describeEvent("raw text"))
}
