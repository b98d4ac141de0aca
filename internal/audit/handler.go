package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/urumi-provisioner/internal/httpserver"
)

// Handler exposes the audit log query surface: GET /api/audit (spec §6).
type Handler struct {
	log Log
}

// NewHandler creates an audit Handler over log.
func NewHandler(log Log) *Handler {
	return &Handler{log: log}
}

// Routes returns a chi.Router with the audit query route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleQuery)
	return r
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		StoreID: q.Get("storeId"),
		Action:  q.Get("action"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpserver.RespondError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.log.Query(r.Context(), filter)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to query audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, entries)
}
