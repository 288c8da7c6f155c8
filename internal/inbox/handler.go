package inbox

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"boostnet/internal/platform/middleware"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/httputil"
)

// Handler exposes the universal inbox endpoints. All routes require an
// authenticated caller.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/inbox/issue", h.issue)
	r.Post("/inbox/claim/{token}", h.claim)
	r.Get("/inbox/issued", h.issued)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var in IssueInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	result, err := h.service.Issue(r.Context(), middleware.GetProfileID(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "claim token is required"))
		return
	}

	result, err := h.service.Claim(r.Context(),
		middleware.GetProfileID(r.Context()), middleware.GetDid(r.Context()), token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) issued(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.GetMyIssuedCredentials(r.Context(), middleware.GetProfileID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []Credential{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credentials": records})
}
