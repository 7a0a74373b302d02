package generation

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failed generation for the caller.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindMissingCredential Kind = "missing_credential"
	KindUpstreamError     Kind = "upstream_error"
	KindNoImageProduced   Kind = "no_image_produced"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// ErrMissingCredential is returned by a Model that has no API key.
var ErrMissingCredential = errors.New("image model API key is not configured")

// Error is the single failure type returned by Service.Generate.
// Limit and Used are set for quota failures and whenever a unit was consumed.
type Error struct {
	Kind     Kind
	Message  string
	Limit    int
	Used     int
	ResetsAt time.Time
	Timeout  bool
	Err      error
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

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

func canceled(err error) *Error {
	return &Error{Kind: KindCanceled, Message: "request was canceled by the client", Err: err}
}

func invalid(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}
