package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// AppError is the uniform failure body. Limit and Used are present only when
// the failure carries quota state.
type AppError struct {
	Code       int           `json:"-"`
	Message    string        `json:"error"`
	Kind       string        `json:"kind"`
	Limit      *int          `json:"limit,omitempty"`
	Used       *int          `json:"used,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

const (
	KindInvalidRequest = "invalid_request"
	KindUnauthorized   = "unauthorized"
	KindNotFound       = "not_found"
	KindRateLimited    = "rate_limited"
	KindInternal       = "internal"
)

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request", Kind: KindInvalidRequest}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized", Kind: KindUnauthorized}
	ErrInvalidToken   = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token", Kind: KindUnauthorized}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found", Kind: KindNotFound}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error", Kind: KindInternal}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg, Kind: KindInvalidRequest}
}

func NewRateLimitedError(retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       http.StatusTooManyRequests,
		Message:    "too many requests",
		Kind:       KindRateLimited,
		RetryAfter: retryAfter,
	}
}

// HandleError is the single place failures become HTTP responses. Anything
// that is not an *AppError is logged and rendered as a generic 500.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", "error", err)
		appErr = ErrInternalServer
	}

	if appErr.RetryAfter > 0 {
		secs := int64((appErr.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	json.NewEncoder(w).Encode(appErr)
}
