// Package remote is the HTTP adapter between the like engine and the feed API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"heartline/internal/likes"
	"heartline/internal/models"
	"heartline/internal/observability"
)

// DefaultTimeout applies when the caller's context carries no deadline.
const DefaultTimeout = 10 * time.Second

// TokenSource supplies the bearer token for each request. An empty token sends none.
type TokenSource interface {
	Token() string
}

// Client talks to the feed API. It implements likes.RemotePostService.
type Client struct {
	baseURL string
	tokens  TokenSource
	timeout time.Duration
}

var _ likes.RemotePostService = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout used without a context deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Client for the API rooted at baseURL, e.g. http://localhost:8375.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToggleLike asks the authority to flip the caller's like on postID.
func (c *Client) ToggleLike(ctx context.Context, postID string) error {
	_, err := c.do(ctx, fiber.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/like", nil)
	return err
}

// FetchFeed returns up to limit posts, newest first.
func (c *Client) FetchFeed(ctx context.Context, limit int) ([]likes.Post, error) {
	path := "/api/feed"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	body, err := c.do(ctx, fiber.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var wire []wirePost
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, likes.NewNetworkError(fmt.Errorf("decode feed: %w", err))
	}
	posts := make([]likes.Post, len(wire))
	for i, w := range wire {
		posts[i] = w.toPost()
	}
	return posts, nil
}

// FetchPost returns a single post.
func (c *Client) FetchPost(ctx context.Context, postID string) (likes.Post, error) {
	body, err := c.do(ctx, fiber.MethodGet, "/api/posts/"+url.PathEscape(postID), nil)
	if err != nil {
		return likes.Post{}, err
	}
	var w wirePost
	if err := json.Unmarshal(body, &w); err != nil {
		return likes.Post{}, likes.NewNetworkError(fmt.Errorf("decode post: %w", err))
	}
	return w.toPost(), nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := c.do(ctx, fiber.MethodPost, "/api/auth/login", fiber.Map{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		return "", likes.NewRemoteRejectedError("login response carried no token", err)
	}
	return resp.Token, nil
}

type result struct {
	status int
	body   []byte
	err    error
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, likes.NewNetworkError(err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	agent := newAgent(method, c.baseURL+path)
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
	}
	if payload != nil {
		agent.JSON(payload)
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		status, body, errs := agent.Bytes()
		done <- result{status: status, body: body, err: errors.Join(errs...)}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, likes.NewNetworkError(ctx.Err())
	case res = <-done:
	}

	observability.GlobalLogger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", res.status),
		slog.Duration("latency", time.Since(start)))

	if res.err != nil {
		return nil, transportError(res.err)
	}
	if err := statusError(res.status, res.body); err != nil {
		return nil, err
	}
	return res.body, nil
}

func newAgent(method, rawURL string) *fiber.Agent {
	switch method {
	case fiber.MethodPost:
		return fiber.Post(rawURL)
	case fiber.MethodDelete:
		return fiber.Delete(rawURL)
	default:
		return fiber.Get(rawURL)
	}
}

func transportError(err error) error {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return likes.NewNetworkError(fmt.Errorf("request timed out: %w", err))
	}
	return likes.NewNetworkError(err)
}

// statusError maps an HTTP status onto the engine's error kinds.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var resp models.ErrorResponse
	_ = json.Unmarshal(body, &resp)
	cause := fmt.Errorf("status %d", status)
	if resp.Code != "" {
		cause = fmt.Errorf("status %d (%s)", status, resp.Code)
	}

	switch status {
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		return likes.NewUnauthenticatedError(cause)
	case fiber.StatusBadGateway, fiber.StatusServiceUnavailable, fiber.StatusGatewayTimeout:
		return likes.NewNetworkError(cause)
	default:
		return likes.NewRemoteRejectedError(resp.Error, cause)
	}
}
