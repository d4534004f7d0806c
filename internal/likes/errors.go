package likes

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a toggle failed or was refused.
type ErrorKind string

const (
	KindNetwork         ErrorKind = "NETWORK_ERROR"
	KindRemoteRejected  ErrorKind = "REMOTE_REJECTED"
	KindUnauthenticated ErrorKind = "UNAUTHENTICATED"
	KindAlreadyPending  ErrorKind = "ALREADY_PENDING"
)

// Error is the error type used across the like engine and its remote adapters.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrAlreadyPending is returned by Toggle when a toggle for the same post and user is in flight.
var ErrAlreadyPending = &Error{Kind: KindAlreadyPending, Message: "a like update for this post is already in progress"}

// ErrMissingPostID is returned by Toggle for a post without an ID.
var ErrMissingPostID = errors.New("likes: post has no id")

// NewNetworkError wraps a transport failure or timeout.
func NewNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "could not reach the server", Err: err}
}

// NewRemoteRejectedError reports that the authority refused the mutation.
func NewRemoteRejectedError(message string, err error) *Error {
	if message == "" {
		message = "the server rejected the request"
	}
	return &Error{Kind: KindRemoteRejected, Message: message, Err: err}
}

// NewUnauthenticatedError reports a missing or invalid identity.
func NewUnauthenticatedError(err error) *Error {
	return &Error{Kind: KindUnauthenticated, Message: "you need to sign in again", Err: err}
}

// KindOf maps err onto an ErrorKind. Errors that carry no kind are treated as network failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var likeErr *Error
	if errors.As(err, &likeErr) {
		return likeErr.Kind
	}
	return KindNetwork
}

// FailureMessage is the toast text shown for a failed toggle.
func FailureMessage(kind ErrorKind, liking bool) string {
	action := "unlike"
	if liking {
		action = "like"
	}
	switch kind {
	case KindNetwork:
		return fmt.Sprintf("Failed to %s post. Check your connection and try again.", action)
	case KindRemoteRejected:
		return fmt.Sprintf("Failed to %s post. It may have been removed.", action)
	case KindUnauthenticated:
		return fmt.Sprintf("Sign in to %s posts.", action)
	default:
		return fmt.Sprintf("Failed to %s post.", action)
	}
}
