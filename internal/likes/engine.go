package likes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"heartline/internal/observability"
)

// DefaultTimeout bounds a single remote toggle.
const DefaultTimeout = 10 * time.Second

// RemotePostService is the authority that owns like state.
// ToggleLike flips the caller's like on postID and returns exactly once.
type RemotePostService interface {
	ToggleLike(ctx context.Context, postID string) error
}

// CurrentUser resolves the signed-in user. ok is false when nobody is signed in.
type CurrentUser interface {
	ID() (id string, ok bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTokens replaces the pending-token generator, for tests.
func WithTokens(next func() string) Option {
	return func(e *Engine) {
		e.newToken = next
	}
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type stateKey struct {
	postID string
	userID string
}

// Engine applies like toggles optimistically and reconciles them with a RemotePostService.
// One Engine belongs to one viewing session and is safe for concurrent use.
type Engine struct {
	remote   RemotePostService
	observer Observer
	timeout  time.Duration
	now      func() time.Time
	newToken func() string
	logger   *observability.Logger

	mu     sync.Mutex
	states map[stateKey]*interaction
	wg     sync.WaitGroup
}

// NewEngine wires an engine to its remote authority and outcome observer.
func NewEngine(remote RemotePostService, observer Observer, opts ...Option) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	e := &Engine{
		remote:   remote,
		observer: observer,
		timeout:  DefaultTimeout,
		now:      time.Now,
		newToken: uuid.NewString,
		logger:   observability.GlobalLogger,
		states:   make(map[stateKey]*interaction),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Toggle flips userID's like on post. The optimistic state is visible through
// DisplayState before Toggle returns; the outcome arrives later on the observer.
// It returns ErrAlreadyPending, without touching any state, while an earlier
// toggle for the same post and user is unresolved.
func (e *Engine) Toggle(ctx context.Context, post Post, userID string) error {
	if post.ID == "" {
		return ErrMissingPostID
	}
	if userID == "" {
		e.wg.Add(1)
		go e.rejectUnauthenticated(context.WithoutCancel(ctx), post)
		return nil
	}

	key := stateKey{postID: post.ID, userID: userID}

	e.mu.Lock()
	st, ok := e.states[key]
	if !ok {
		st = &interaction{settled: post.DisplayFor(userID)}
		e.states[key] = st
	}
	pending, accepted := st.begin(e.newToken, e.now())
	if !accepted {
		e.mu.Unlock()
		observability.LikeTogglesRejected.Inc()
		return ErrAlreadyPending
	}
	e.wg.Add(1)
	e.mu.Unlock()

	observability.LikeTogglesInFlight.Inc()
	go e.complete(context.WithoutCancel(ctx), key, pending.token, pending.optimistic.Liked)
	return nil
}

// ToggleFor resolves the user from user and toggles on their behalf.
func (e *Engine) ToggleFor(ctx context.Context, post Post, user CurrentUser) error {
	var userID string
	if user != nil {
		if id, ok := user.ID(); ok {
			userID = id
		}
	}
	return e.Toggle(ctx, post, userID)
}

func (e *Engine) complete(ctx context.Context, key stateKey, token string, liking bool) {
	defer e.wg.Done()
	defer observability.LikeTogglesInFlight.Dec()

	fields := map[string]any{"post_id": key.postID, "user_id": key.userID, "token": token}
	observability.LogAsyncOperationStart(ctx, "like_toggle", fields)

	err := e.callRemote(ctx, key.postID)

	out := Outcome{
		PostID: key.postID,
		UserID: key.userID,
		Token:  token,
		Liking: liking,
		Err:    err,
	}

	e.mu.Lock()
	st, ok := e.states[key]
	switch {
	case !ok || !st.owns(token):
		out.Discarded = true
	case st.detached:
		out.Discarded = true
		out.Latency = e.now().Sub(st.pending.startedAt)
		delete(e.states, key)
	default:
		out.Latency = e.now().Sub(st.pending.startedAt)
		if err == nil {
			out.Display, _ = st.confirm(token)
		} else {
			out.Display, _ = st.rollback(token)
		}
	}
	e.mu.Unlock()

	out.Kind = OutcomeSuccess
	if err != nil {
		out.Kind = OutcomeFailure
		out.Reason = KindOf(err)
		out.Message = FailureMessage(out.Reason, liking)
		fields["reason"] = string(out.Reason)
	}
	// Outcomes are logged by LogObserver; a rollback is not a server error.
	fields["outcome"] = string(out.Kind)
	observability.LogAsyncOperationEnd(ctx, "like_toggle", fields)
	e.notify(ctx, out)
}

func (e *Engine) callRemote(ctx context.Context, postID string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	span, ctx := observability.NewSpan(ctx, "likes.toggle", trace.WithSpanKind(trace.SpanKindClient))
	span.AddAttributes(attribute.String("post.id", postID))
	defer func() {
		if r := recover(); r != nil {
			err = NewNetworkError(fmt.Errorf("remote panicked: %v", r))
		}
		span.SetError(err)
		span.End()
	}()

	if e.remote == nil {
		return NewNetworkError(fmt.Errorf("no remote post service configured"))
	}
	return e.remote.ToggleLike(ctx, postID)
}

func (e *Engine) rejectUnauthenticated(ctx context.Context, post Post) {
	defer e.wg.Done()
	reason := NewUnauthenticatedError(nil)
	e.notify(ctx, Outcome{
		Kind:    OutcomeFailure,
		Reason:  reason.Kind,
		Message: FailureMessage(reason.Kind, true),
		PostID:  post.ID,
		Liking:  true,
		Display: post.DisplayFor(""),
		Err:     reason,
	})
}

func (e *Engine) notify(ctx context.Context, out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "like outcome observer panicked",
				slog.String("post_id", out.PostID),
				slog.Any("panic", r),
			)
		}
	}()
	e.observer.OnOutcome(ctx, out)
}

// DisplayState returns what the UI should render for userID on post: the
// optimistic value while a toggle is pending, the engine's settled value after
// one resolved, or the snapshot itself when the engine holds nothing.
func (e *Engine) DisplayState(post Post, userID string) DisplayState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[stateKey{postID: post.ID, userID: userID}]; ok && !st.detached {
		return st.display()
	}
	return post.DisplayFor(userID)
}

// Phase reports whether a toggle is in flight for the pair.
func (e *Engine) Phase(postID, userID string) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[stateKey{postID: postID, userID: userID}]; ok {
		return st.phase()
	}
	return PhaseSettled
}

// Pending reports whether a toggle is in flight for the pair.
func (e *Engine) Pending(postID, userID string) bool {
	return e.Phase(postID, userID) == PhasePending
}

// Snapshot returns a copy of post whose liker set and count reflect the
// engine's settled state for userID. Optimistic values are not included.
func (e *Engine) Snapshot(post Post, userID string) Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[stateKey{postID: post.ID, userID: userID}]
	if !ok || st.detached || userID == "" {
		return post
	}
	return post.withDisplay(userID, st.settled)
}

// Refresh drops settled state for post now that a fresh snapshot from the
// authority supersedes it. Pending interactions are kept.
func (e *Engine) Refresh(post Post) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, st := range e.states {
		if key.postID == post.ID && st.pending == nil {
			delete(e.states, key)
		}
	}
}

// Evict forgets postID. A toggle still in flight keeps blocking new toggles for
// the same pair until it resolves; its result is then discarded.
func (e *Engine) Evict(postID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, st := range e.states {
		if key.postID != postID {
			continue
		}
		if st.pending == nil {
			delete(e.states, key)
			continue
		}
		st.detached = true
	}
}

// Wait blocks until every accepted toggle has delivered its outcome.
func (e *Engine) Wait() {
	e.wg.Wait()
}
