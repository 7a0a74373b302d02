package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/Manny1440/DreamScapers/internal/api"
	"github.com/Manny1440/DreamScapers/internal/auth"
	"github.com/Manny1440/DreamScapers/internal/middleware"
)

// DefaultMaxBodyBytes caps a generate request body. Photos travel base64
// encoded inside the JSON, so this is roughly 15 MiB of image.
const DefaultMaxBodyBytes = 20 << 20

// statusClientClosedRequest is the nginx convention for a caller that hung up.
const statusClientClosedRequest = 499

// Handler exposes the gateway over HTTP.
type Handler struct {
	svc          *Service
	maxBodyBytes int64
}

func NewHandler(svc *Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// Generate handles POST /api/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.HandleError(w, h.appError(invalid("request body is too large")))
			return
		}
		api.HandleError(w, h.appError(invalid("request body must be a JSON object")))
		return
	}

	// An authenticated identity wins over whatever the body claims.
	if id := auth.Identity(r.Context()); id != "" {
		req.Identity = id
	}
	req.RequestID = middleware.GetRequestID(r.Context())

	res, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		api.HandleError(w, h.appError(err))
		return
	}

	api.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) appError(err error) *api.AppError {
	return ToAppError(err, h.svc.opts.Now())
}

// ToAppError maps a gateway failure onto the HTTP contract.
func ToAppError(err error, now time.Time) *api.AppError {
	var ge *Error
	if !errors.As(err, &ge) {
		return api.ErrInternalServer
	}

	appErr := &api.AppError{
		Code:    statusOf(ge),
		Message: ge.Message,
		Kind:    string(ge.Kind),
	}
	if ge.Limit > 0 {
		appErr.Limit = lo.ToPtr(ge.Limit)
		appErr.Used = lo.ToPtr(ge.Used)
	}
	if ge.Kind == KindQuotaExceeded && ge.ResetsAt.After(now) {
		appErr.RetryAfter = ge.ResetsAt.Sub(now)
	}
	return appErr
}

func statusOf(e *Error) int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUpstreamError:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindNoImageProduced:
		return http.StatusBadGateway
	case KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
