package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

// Kind classifies why an external model call did not produce usable output.
type Kind string

const (
	KindNone        Kind = ""
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindCanceled    Kind = "canceled"
	KindRateLimited Kind = "rate_limited"
	KindRejected    Kind = "rejected"
	KindEmpty       Kind = "empty"
)

// CallError is returned by every external call wrapper in this module.
type CallError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ErrEmptyOutput marks a call that succeeded but returned no text.
var ErrEmptyOutput = errors.New("model returned no content")

// Wrap classifies err into a CallError for op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return err
	}
	return &CallError{Op: op, Kind: classify(err), Err: err}
}

// KindOf reports the failure kind of err, or KindNone for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrEmptyOutput):
		return KindEmpty
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return KindRejected
		}
	}
	return KindUnavailable
}
