package boost

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

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
	r.Post("/boosts", h.create)
	r.Get("/boosts/{boostId}", h.get)
	r.Post("/boosts/{boostId}/publish", h.publish)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	b, err := h.service.Create(r.Context(), middleware.GetProfileID(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), chi.URLParam(r, "boostId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	err := h.service.Publish(r.Context(), middleware.GetProfileID(r.Context()), chi.URLParam(r, "boostId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "LIVE"})
}
