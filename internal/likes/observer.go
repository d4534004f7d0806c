package likes

import (
	"context"
	"log/slog"
	"time"

	"heartline/internal/observability"
)

// OutcomeKind is either success or failure.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is delivered exactly once for every toggle the engine accepts.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Reason  ErrorKind   `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
	PostID  string      `json:"post_id"`
	UserID  string      `json:"user_id,omitempty"`
	Token   string      `json:"token,omitempty"`
	// Liking is the direction the user asked for.
	Liking bool `json:"liking"`
	// Display is the displayed state once the outcome has been applied.
	Display DisplayState `json:"display"`
	// Discarded is set when the post was evicted before the remote answered.
	Discarded bool          `json:"discarded,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Err       error         `json:"-"`
}

// Succeeded reports whether the remote confirmed the toggle.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Observer consumes toggle outcomes. Implementations must not block for long;
// they run on the goroutine that completed the remote call.
type Observer interface {
	OnOutcome(ctx context.Context, outcome Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, outcome Outcome)

func (f ObserverFunc) OnOutcome(ctx context.Context, outcome Outcome) {
	f(ctx, outcome)
}

// MultiObserver fans an outcome out to every member in order.
type MultiObserver []Observer

func (m MultiObserver) OnOutcome(ctx context.Context, outcome Outcome) {
	for _, o := range m {
		if o != nil {
			o.OnOutcome(ctx, outcome)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnOutcome(context.Context, Outcome) {}

// LogObserver writes every outcome to a structured logger.
type LogObserver struct {
	logger *observability.Logger
}

// NewLogObserver returns a LogObserver; a nil logger means observability.GlobalLogger.
func NewLogObserver(logger *observability.Logger) *LogObserver {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &LogObserver{logger: logger}
}

func (l *LogObserver) OnOutcome(ctx context.Context, o Outcome) {
	attrs := []any{
		slog.String("post_id", o.PostID),
		slog.String("user_id", o.UserID),
		slog.Bool("liking", o.Liking),
		slog.Bool("liked", o.Display.Liked),
		slog.Int("count", o.Display.Count),
		slog.Duration("latency", o.Latency),
	}
	if o.Discarded {
		attrs = append(attrs, slog.Bool("discarded", true))
	}
	if o.Succeeded() {
		l.logger.InfoContext(ctx, "like toggle confirmed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("reason", string(o.Reason)))
	if o.Err != nil {
		attrs = append(attrs, slog.String("error", o.Err.Error()))
	}
	l.logger.WarnContext(ctx, "like toggle rolled back", attrs...)
}

// MetricsObserver records outcomes in prometheus.
type MetricsObserver struct{}

func (MetricsObserver) OnOutcome(_ context.Context, o Outcome) {
	observability.LikeToggleOutcomes.WithLabelValues(string(o.Kind), string(o.Reason)).Inc()
	if o.Latency > 0 {
		observability.LikeToggleLatency.WithLabelValues(string(o.Kind)).Observe(o.Latency.Seconds())
	}
}
