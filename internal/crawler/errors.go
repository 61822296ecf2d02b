package crawler

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind tags a pipeline failure so callers can tell skippable targets from run-fatal ones.
type ErrorKind string

// Failure kinds written to the failure ledger.
const (
	KindNavigationTimeout ErrorKind = "NavigationTimeout"
	KindExpansionTimeout  ErrorKind = "ExpansionTimeout"
	KindExtraction        ErrorKind = "ExtractionError"
	KindStoreWrite        ErrorKind = "StoreWriteError"
	KindUnknown           ErrorKind = "UnknownError"
)

// ErrQueueClosed is returned by queues that have been drained and closed.
var ErrQueueClosed = errors.New("queue closed")

// Error is a classified pipeline failure for one target URL.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

// NewError wraps err with a kind. A nil err yields a message-only error.
func NewError(kind ErrorKind, url string, err error) *Error {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Error{Kind: kind, URL: url, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, url string, format string, args ...any) *Error {
	return NewError(kind, url, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the underlying error text without the kind prefix.
func (e *Error) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// KindOf classifies err. Untagged errors are UnknownError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// HaltsRun reports whether the failure risks silent data loss if the run continues.
func HaltsRun(err error) bool {
	return KindOf(err) == KindStoreWrite
}

// Retryable reports whether an orchestration-level re-attempt could plausibly succeed.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindNavigationTimeout, KindExpansionTimeout, KindUnknown:
		return true
	default:
		return false
	}
}
