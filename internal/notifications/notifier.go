// Package notifications publishes like outcomes to per-user Redis channels for the toast layer.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/redis/go-redis/v9"

	"heartline/internal/likes"
	"heartline/internal/observability"
)

// UserChannel is the pub/sub channel for one user's notifications.
func UserChannel(userID string) string {
	return fmt.Sprintf("notifications:user:%s", userID)
}

// Notifier publishes payloads into Redis channels. A nil client makes it a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends payload to userID's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID string, payload []byte) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// SubscribeUser delivers every payload on userID's channel to onMessage until ctx ends.
// The subscription is confirmed before SubscribeUser returns.
func (n *Notifier) SubscribeUser(ctx context.Context, userID string, onMessage func(payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, UserChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", UserChannel(userID), err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver(ctx, onMessage, msg.Payload)
			}
		}
	}()
	return nil
}

func deliver(ctx context.Context, onMessage func(string), payload string) {
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.ErrorContext(ctx, "notification handler panicked",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	onMessage(payload)
}

// Toast is the presentation hint attached to failed outcomes.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}

// OutcomeEvent is the JSON published for each like outcome.
type OutcomeEvent struct {
	Type    string        `json:"type"`
	Outcome likes.Outcome `json:"outcome"`
	Toast   *Toast        `json:"toast,omitempty"`
}

const outcomeEventType = "like_outcome"

// NewOutcomeEvent wraps o, adding a destructive toast for failures.
func NewOutcomeEvent(o likes.Outcome) OutcomeEvent {
	ev := OutcomeEvent{Type: outcomeEventType, Outcome: o}
	if !o.Succeeded() {
		ev.Toast = &Toast{Title: "Error", Description: o.Message, Variant: "destructive"}
	}
	return ev
}

// OutcomeNotifier is a likes.Observer that publishes outcomes to the acting user's channel.
type OutcomeNotifier struct {
	notifier *Notifier
}

func NewOutcomeNotifier(n *Notifier) *OutcomeNotifier {
	return &OutcomeNotifier{notifier: n}
}

func (o *OutcomeNotifier) OnOutcome(ctx context.Context, out likes.Outcome) {
	if out.UserID == "" {
		return
	}
	payload, err := json.Marshal(NewOutcomeEvent(out))
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "encode like outcome", slog.String("error", err.Error()))
		return
	}
	if err := o.notifier.PublishUser(ctx, out.UserID, payload); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "publish like outcome failed",
			slog.String("user_id", out.UserID), slog.String("error", err.Error()))
	}
}
