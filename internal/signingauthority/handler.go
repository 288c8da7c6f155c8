package signingauthority

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
	r.Post("/signing-authorities", h.register)
	r.Get("/signing-authorities", h.list)
	r.Put("/signing-authorities/primary", h.setPrimary)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	rel, err := h.service.Register(r.Context(), middleware.GetProfileID(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rels, err := h.service.List(r.Context(), middleware.GetProfileID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if rels == nil {
		rels = []graph.SigningAuthorityRel{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"signingAuthorities": rels})
}

type setPrimaryRequest struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
}

func (h *Handler) setPrimary(w http.ResponseWriter, r *http.Request) {
	var req setPrimaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	err := h.service.SetPrimary(r.Context(), middleware.GetProfileID(r.Context()), req.Endpoint, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
