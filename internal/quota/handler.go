package quota

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Manny1440/DreamScapers/internal/api"
	"github.com/Manny1440/DreamScapers/internal/auth"
)

type statusResponse struct {
	Usage
	Remaining int `json:"remaining"`
}

// Handler exposes read-only quota status.
type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// GetQuota returns the current period's usage for ?email= or the token identity.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	identity := auth.Identity(r.Context())
	if identity == "" {
		identity = NormalizeIdentity(r.URL.Query().Get("email"))
	}
	if identity == "" {
		api.HandleError(w, api.NewBadRequestError("email is required"))
		return
	}

	usage, err := h.svc.Status(r.Context(), identity, h.now())
	if err != nil {
		slog.Error("quota: status lookup failed", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.WriteJSON(w, http.StatusOK, statusResponse{Usage: usage, Remaining: usage.Remaining()})
}
