package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Manny1440/DreamScapers/internal/api"
	"github.com/Manny1440/DreamScapers/internal/auth"
	"github.com/Manny1440/DreamScapers/internal/quota"
)

// Lister reads an identity's history.
type Lister interface {
	ListByIdentity(ctx context.Context, identityDigest string, params ListParams) ([]Entry, error)
}

// Handler provides HTTP handlers for generation history.
type Handler struct {
	repo Lister
}

// NewHandler creates a new ledger Handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// ListGenerations returns the authenticated caller's generation history.
func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	identity := auth.Identity(r.Context())
	if identity == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseListParams(r)
	entries, err := h.repo.ListByIdentity(r.Context(), quota.Digest(identity), params)
	if err != nil {
		slog.Error("ledger: listing generations", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	q := r.URL.Query()

	params.Period = q.Get("weekKey")
	params.Outcome = q.Get("outcome")
	if p := q.Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}

	return params
}
