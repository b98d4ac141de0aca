// Package admission is the thin HTTP surface that validates, rate-limits,
// and maps requests onto the orchestrator (spec §4.10, §6).
package admission

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/urumi-provisioner/internal/apierr"
	"github.com/wisbric/urumi-provisioner/internal/audit"
	"github.com/wisbric/urumi-provisioner/internal/httpserver"
	"github.com/wisbric/urumi-provisioner/internal/ratelimit"
	"github.com/wisbric/urumi-provisioner/internal/repository"
	"github.com/wisbric/urumi-provisioner/pkg/store"
)

// Orchestrator is the subset of pkg/orchestrator.Orchestrator the admission
// surface drives.
type Orchestrator interface {
	CreateStore(ctx context.Context, name string, engine store.Engine, sourceIP string) (*store.Store, error)
	DeleteStore(ctx context.Context, id, sourceIP string) error
}

// CreateRequest is the POST /api/stores body (spec §6).
type CreateRequest struct {
	Name   string `json:"name" validate:"required,min=3,max=50"`
	Engine string `json:"engine" validate:"required"`
}

// Handler exposes the store lifecycle routes (spec §6's HTTP surface table).
type Handler struct {
	orch        Orchestrator
	repo        repository.Repository
	auditLog    audit.Log
	createLimit *ratelimit.Limiter
	deleteLimit *ratelimit.Limiter
}

// NewHandler wires a Handler from its collaborators. auditLog may be nil, in
// which case GET /{id}/events reports an empty history instead of erroring.
func NewHandler(orch Orchestrator, repo repository.Repository, auditLog audit.Log, createLimit, deleteLimit *ratelimit.Limiter) *Handler {
	return &Handler{orch: orch, repo: repo, auditLog: auditLog, createLimit: createLimit, deleteLimit: deleteLimit}
}

// Routes returns a chi.Router with the store lifecycle routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/events", h.handleEvents)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if h.createLimit != nil {
		allowed, err := h.createLimit.Allow(r.Context(), ip)
		if err != nil {
			httpserver.RespondErr(w, apierr.Internal(err))
			return
		}
		if !allowed {
			httpserver.RespondErr(w, apierr.RateLimited("create rate limit exceeded, try again later"))
			return
		}
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !store.ValidName(req.Name) {
		httpserver.RespondErr(w, apierr.Validation("name must be 3-50 lowercase alphanumerics and hyphens", nil))
		return
	}

	engine := store.Engine(req.Engine)
	if engine != store.EngineWooCommerce && engine != store.EngineMedusa {
		httpserver.RespondErr(w, apierr.Validation("engine must be \"woocommerce\" or \"medusa\"", nil))
		return
	}

	s, err := h.orch.CreateStore(r.Context(), req.Name, engine, ip)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]any{
		"store":   s,
		"message": "store provisioning started",
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	stores, err := h.repo.FindAll(r.Context())
	if err != nil {
		httpserver.RespondErr(w, apierr.Internal(err))
		return
	}
	httpserver.Respond(w, http.StatusOK, stores)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpserver.RespondErr(w, apierr.NotFound("store not found"))
			return
		}
		httpserver.RespondErr(w, apierr.Internal(err))
		return
	}
	httpserver.Respond(w, http.StatusOK, s)
}

// handleEvents is a convenience alias of GET /api/audit?storeId= scoped to
// the path's store id (SPEC_FULL supplement; spec.md's Non-goals don't
// cover audit presentation, so this stays a one-line delegation).
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.auditLog == nil {
		httpserver.Respond(w, http.StatusOK, []audit.Entry{})
		return
	}
	entries, err := h.auditLog.Query(r.Context(), audit.Filter{StoreID: id})
	if err != nil {
		httpserver.RespondErr(w, apierr.Internal(err))
		return
	}
	httpserver.Respond(w, http.StatusOK, entries)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if h.deleteLimit != nil {
		allowed, err := h.deleteLimit.Allow(r.Context(), ip)
		if err != nil {
			httpserver.RespondErr(w, apierr.Internal(err))
			return
		}
		if !allowed {
			httpserver.RespondErr(w, apierr.RateLimited("delete rate limit exceeded, try again later"))
			return
		}
	}

	id := chi.URLParam(r, "id")
	if err := h.orch.DeleteStore(r.Context(), id, ip); err != nil {
		httpserver.RespondErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// clientIP extracts the client address, trusting one proxy hop via
// X-Forwarded-For (spec §6: "one trusted proxy hop is assumed").
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
