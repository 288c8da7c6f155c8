package claimhook

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"boostnet/internal/graph"
	"boostnet/internal/platform/middleware"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/httputil"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/boosts/{boostId}/hooks", h.create)
	r.Get("/boosts/{boostId}/hooks", h.list)
	r.Delete("/hooks/{hookId}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}
	in.ClaimBoostID = chi.URLParam(r, "boostId")

	hook, err := h.service.Create(r.Context(), middleware.GetProfileID(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, hook)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.service.List(r.Context(), middleware.GetProfileID(r.Context()), chi.URLParam(r, "boostId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if hooks == nil {
		hooks = []graph.ClaimHook{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"hooks": hooks})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), middleware.GetProfileID(r.Context()), chi.URLParam(r, "hookId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
