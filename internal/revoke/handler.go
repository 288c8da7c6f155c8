package revoke

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"boostnet/internal/platform/middleware"
	"boostnet/pkg/platform/httputil"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials/{credentialId}/revoke", h.revoke)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	instance, err := h.service.Revoke(r.Context(),
		middleware.GetProfileID(r.Context()), chi.URLParam(r, "credentialId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"credentialId": instance.ID,
		"revoked":      instance.Revoked,
		"revokedAt":    instance.RevokedAt,
	})
}
